package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"propctl/devicesim"
)

func newSimulateCmd(a *app) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a fake device on the configured ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := a.cfg.Device
			sim, err := devicesim.Start(cmd.Context(), devicesim.Config{
				CommandAddr: net.JoinHostPort(bind, strconv.Itoa(d.CommandPort)),
				DataAddr:    net.JoinHostPort(bind, strconv.Itoa(d.DataPort)),
				PacketSize:  d.PacketSize,
				Logger:      a.log,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "simulating device: command %s, data %s\n", sim.CommandAddr(), sim.DataAddr())
			return sim.Wait()
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "127.0.0.1", "address to listen on")
	return cmd
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"propctl/device"
	"propctl/protocol"
)

// newOpcodeCmds returns one subcommand per catalogue opcode.
func newOpcodeCmds(a *app) []*cobra.Command {
	ops := protocol.Opcodes()
	cmds := make([]*cobra.Command, 0, len(ops))
	for _, op := range ops {
		cmds = append(cmds, &cobra.Command{
			Use:   op.Name,
			Short: op.Help,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.send(cmd, op, op.ExpectReply)
			},
		})
	}
	return cmds
}

func newSlotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "slot <index>",
		Short: fmt.Sprintf("Select a playlist slot (0-%d)", protocol.MaxPlaylistSlot),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("slot index %q is not a number", args[0])
			}
			op, err := protocol.PlaylistSlot(i)
			if err != nil {
				return err
			}
			return a.send(cmd, op, false)
		},
	}
}

func (a *app) send(cmd *cobra.Command, op protocol.Opcode, expectReply bool) error {
	s := device.NewSender(a.cfg.Device, device.WithLogger(a.log), device.WithReporter(a.mon))
	reply, err := s.Send(cmd.Context(), op, expectReply)
	if err != nil {
		return err
	}
	if expectReply {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", reply)
		if a.verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s]\n", protocol.FormatBytes(reply))
		}
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"propctl/protocol"
	"propctl/render"
)

type opcodeRow struct {
	Name  string `json:"name" yaml:"name"`
	Bytes string `json:"bytes" yaml:"bytes"`
	Reply bool   `json:"reply" yaml:"reply"`
	Help  string `json:"help" yaml:"help"`
}

func newOpcodesCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "opcodes",
		Short: "List the command opcodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := render.NewFormatter(output)
			if err != nil {
				return err
			}
			var rows []opcodeRow
			for _, op := range protocol.Opcodes() {
				rows = append(rows, opcodeRow{Name: op.Name, Bytes: string(op.Bytes), Reply: op.ExpectReply, Help: op.Help})
			}
			fmt.Fprint(cmd.OutOrStdout(), f.Format(rows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json, yaml")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := render.NewFormatter(output)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), f.Format(a.cfg))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: table, json, yaml")
	return cmd
}

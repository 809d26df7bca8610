package cmd

import (
	"fmt"

	"github.com/psantana5/xwrap/internal/xfile"
	"github.com/spf13/cobra"
)

func (a *app) newUnwrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unwrap <file.x> <output.bin>",
		Short: "Extract the raw payload from a Human68k .X executable",
		Long: `Writes the text and data sections that follow the .X header to a new
file. For files produced by xwrap this is the original input, byte for byte.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := xfile.Unwrap(args[0], args[1], a.xfileOptions()...)
			if err != nil {
				a.record("unwrap", 0, err)
				return err
			}
			a.record("unwrap", res.TotalSize, nil)
			fmt.Fprintln(cmd.OutOrStdout(), res.String())
			return nil
		},
	}
}

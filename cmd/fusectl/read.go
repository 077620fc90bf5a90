package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joshuapare/fusekit/pkg/fusekit"
)

var readTarget target

func init() {
	cmd := newReadCmd()
	readTarget.AddFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read [fuse...]",
		Short: "Read logical fuse values",
		Long: `The read command prints the value the chip sees for each named fuse, or
for every fuse in the definition when no names are given.

Example:
  fusectl read -d chip.yaml -i chip.otp
  fusectl read -d chip.yaml -i chip.otp secure_boot debug_lock --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd.Context(), args)
		},
	}
}

func runRead(ctx context.Context, names []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, release, err := readTarget.open()
	if err != nil {
		return err
	}
	defer release()

	var readings []fusekit.Reading
	if len(names) == 0 {
		if readings, err = s.ReadAll(ctx); err != nil {
			return err
		}
	} else {
		for _, name := range names {
			v, err := s.ReadLogicalValue(ctx, name)
			if err != nil {
				return err
			}
			f, _ := s.Definition().Fuse(name)
			readings = append(readings, fusekit.Reading{Fuse: f.Name, Value: v, Width: f.Width()})
		}
	}

	if jsonOut {
		return printJSON(readings)
	}
	for _, r := range readings {
		printInfo("%-24s 0x%0*X\n", r.Fuse, (r.Width+3)/4, r.Value)
	}
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var setTarget target

func init() {
	cmd := newSetCmd()
	setTarget.AddFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <fuse> <value>",
		Short: "Program a single fuse",
		Long: `The set command programs one fuse to a value. Values may be decimal,
0x hex or 0b binary.

Example:
  fusectl set -d chip.yaml -i chip.otp secure_boot 0x9
  fusectl set -d chip.yaml -i chip.otp debug_lock 0 --journal commits.log`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd.Context(), args)
		},
	}
}

func runSet(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	value, err := parseUint(args[1])
	if err != nil {
		return err
	}
	s, release, err := setTarget.open()
	if err != nil {
		return err
	}
	defer release()

	rep, err := s.CommitSingleFuse(ctx, args[0], value)
	if err != nil {
		return fmt.Errorf("failed to set fuse: %w", err)
	}
	return printReport(rep)
}

package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/fusekit/internal/secret"
	"github.com/joshuapare/fusekit/pkg/payload"
)

var keygenRecipients []string

func init() {
	cmd := newKeygenCmd()
	cmd.Flags().StringSliceVarP(&keygenRecipients, "recipient", "r", nil, "age recipient (repeatable); writes an encrypted key file")
	rootCmd.AddCommand(cmd)
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <out>",
		Short: "Generate an XTS key file",
		Long: `The keygen command writes a random 512-bit XTS key. With --recipient the
key file is age-encrypted to the given recipients.

Example:
  fusectl keygen fw.key
  fusectl keygen fw.key.age -r age1...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(args[0])
		},
	}
}

func runKeygen(out string) error {
	key, err := payload.GenerateKey()
	if err != nil {
		return err
	}
	defer key.Close()
	k, err := key.Bytes()
	if err != nil {
		return err
	}

	var data []byte
	if len(keygenRecipients) > 0 {
		if data, err = payload.SealKey(k, keygenRecipients...); err != nil {
			return err
		}
	} else {
		data = []byte(hex.EncodeToString(k) + "\n")
		defer secret.Zero(data)
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	printInfo("wrote %d-bit key to %s\n", len(k)*8, out)
	return nil
}

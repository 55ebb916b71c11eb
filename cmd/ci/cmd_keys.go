package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"bitmap/internal/security"
)

func (c *cli) keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys <dir>",
		Short: "Create the ledger signing key pair in dir, or show the existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, _, generated, err := security.EnsureKeyPair(args[0])
			if err != nil {
				return err
			}
			verb := "existing"
			if generated {
				verb = "generated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s public key %s\n", verb, hex.EncodeToString(pub))
			return nil
		},
	}
}

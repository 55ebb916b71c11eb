package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bitmap/internal/ledger"
)

func (c *cli) ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect, verify or tamper with a step ledger",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "inspect <ledger.jsonl>",
			Short: "List the blocks of a ledger",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				l, err := ledger.OpenLedger(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, b := range l.Blocks() {
					fmt.Fprintf(out, "%4d %s %-8s %-10s %-24s exit=%d hash=%s\n",
						b.Index, b.Timestamp, b.Job, b.Status, b.Step, b.ExitCode, short(b.Hash))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "verify <ledger.jsonl>",
			Short: "Check hashes, links and signatures of a ledger",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				l, err := ledger.OpenLedger(args[0])
				if err != nil {
					return err
				}
				if err := l.VerifyChain(); err != nil {
					return fmt.Errorf("verification failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ledger ok, %d blocks\n", l.NextIndex())
				return nil
			},
		},
		&cobra.Command{
			Use:   "tamper <ledger.jsonl> <index>",
			Short: "Corrupt the log hash of one block, for verification drills",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				idx, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("block index: %w", err)
				}
				l, err := ledger.OpenLedger(args[0])
				if err != nil {
					return err
				}
				blocks := l.Blocks()
				if idx < 0 || idx >= len(blocks) {
					return fmt.Errorf("block index %d out of range [0, %d)", idx, len(blocks))
				}
				blocks[idx].LogHash = "FAKE_HASH_TAMPERED"
				if err := l.Rewrite(blocks); err != nil {
					return err
				}
				c.logger.Warn("tampered ledger block")
				fmt.Fprintf(cmd.OutOrStdout(), "tampered block %d\n", idx)
				return nil
			},
		},
	)
	return cmd
}

func short(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

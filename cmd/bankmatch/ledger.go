package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Reconcile transactions against the external reservation ledger",
	}
	cmd.AddCommand(ledgerMatchCmd())
	cmd.AddCommand(ledgerSweepCmd())
	return cmd
}

func ledgerMatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match <transaction-id>",
		Short: "Classify one transaction against the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			matcher, ledgerStore, err := initLedgerMatcher(store)
			if err != nil {
				return err
			}
			if matcher == nil {
				return fmt.Errorf("no external ledger configured (set ledger.dsn)")
			}
			defer func() { _ = ledgerStore.Close() }()

			result, err := matcher.Match(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func ledgerSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-match transactions pending past the grace period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			matcher, ledgerStore, err := initLedgerMatcher(store)
			if err != nil {
				return err
			}
			if matcher == nil {
				return fmt.Errorf("no external ledger configured (set ledger.dsn)")
			}
			defer func() { _ = ledgerStore.Close() }()

			stats, err := matcher.SweepPending(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Printf("swept %d pending: %d now matched, %d still pending, %d errors\n",
				stats.Total, stats.NowMatched, stats.StillPending, stats.Errors)
			return nil
		},
	}
	cmd.Flags().Int("limit", 100, "maximum pending transactions to re-match")
	return cmd
}

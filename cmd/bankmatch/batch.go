package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mleitner/bankmatch/internal/service"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Match and book all new transactions",
		Long: `Run the full pipeline over every transaction still in status "new":
classify against open invoices, book matches as payment allocations, and
report aggregate counts. One transaction's failure never aborts the run.`,
		RunE: runBatch,
	}
	cmd.Flags().Int("limit", 0, "maximum number of transactions to process (0 = all)")
	cmd.Flags().String("account", "", "restrict to one bank account IBAN")
	cmd.Flags().Int("days", 0, "restrict to transactions from the last N days")
	return cmd
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	account, _ := cmd.Flags().GetString("account")
	days, _ := cmd.Flags().GetInt("days")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	_, _, batch, err := initPipeline(store, true)
	if err != nil {
		return err
	}

	filter := service.TransactionFilter{BankAccount: account}
	if days > 0 {
		from := time.Now().AddDate(0, 0, -days)
		filter.FromDate = &from
	}

	result, err := batch.RunBatch(ctx, "match-batch", filter, limit)
	if err != nil {
		return err
	}

	fmt.Printf("processed %d transactions: %d booked, %d partial, %d unmatched, %d legacy, %d errors\n",
		result.Total, result.Booked, result.Partial, result.Unmatched, result.Legacy, result.Errors)
	for tier, count := range result.ByTier {
		fmt.Printf("  tier %s: %d\n", tier, count)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Fetch transactions from the Hibiscus server",
		Long: `Import transactions for every auto-fetch account. The default window
starts a few days before the newest stored transaction; duplicates are
dropped by ID. Each run is recorded in the sync log.`,
		RunE: runImport,
	}
	cmd.Flags().Bool("all", false, "fetch the full history instead of the incremental window")
	return cmd
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	fetchAll, _ := cmd.Flags().GetBool("all")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	importer, err := initHibiscus(store)
	if err != nil {
		return err
	}

	result, err := importer.SyncAccounts(ctx, "Manual", fetchAll)
	if err != nil {
		return err
	}

	fmt.Printf("synced %d account(s), %d new transaction(s)\n",
		result.AccountsProcessed, result.TransactionsFetched)
	for iban, msg := range result.AccountErrors {
		fmt.Printf("  %s failed: %s\n", iban, msg)
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <transaction-id>",
		Short: "Classify one transaction against open invoices",
		Long: `Run the tiered matcher for a single transaction and print the result.

Without --book this is a dry run: nothing is written. With --book the
match is handed to the booking engine, allocations are persisted and the
transaction status is updated.`,
		Args: cobra.ExactArgs(1),
		RunE: runMatch,
	}
	cmd.Flags().Bool("book", false, "book the match instead of a dry run")
	return cmd
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	book, _ := cmd.Flags().GetBool("book")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	classifier, booker, _, err := initPipeline(store, false)
	if err != nil {
		return err
	}

	result, err := classifier.Classify(ctx, args[0])
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if !book {
		return nil
	}

	bookResult, err := booker.Book(ctx, result)
	if err != nil {
		return fmt.Errorf("booking failed: %w", err)
	}
	fmt.Printf("outcome: %s\n", bookResult.Outcome)
	if bookResult.Explanation != "" {
		fmt.Println(bookResult.Explanation)
	}
	return nil
}

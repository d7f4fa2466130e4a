package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mleitner/bankmatch/internal/export"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <iban>",
		Short: "Export a statement period as MT940 or CAMT.053",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().String("format", "mt940", "export format (mt940, camt053)")
	cmd.Flags().String("from", "", "period start (YYYY-MM-DD, default 30 days ago)")
	cmd.Flags().String("to", "", "period end (YYYY-MM-DD, default today)")
	cmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, _ := cmd.Flags().GetString("format")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	output, _ := cmd.Flags().GetString("output")

	from := time.Now().AddDate(0, 0, -30)
	if fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return fmt.Errorf("invalid from date: %w", err)
		}
		from = parsed
	}
	to := time.Now()
	if toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return fmt.Errorf("invalid to date: %w", err)
		}
		to = parsed
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stmt, err := export.BuildStatement(ctx, store, args[0], from, to)
	if err != nil {
		return err
	}

	var content []byte
	switch format {
	case "mt940":
		content = []byte(export.MT940(stmt))
	case "camt053":
		content, err = export.CAMT053(stmt, uuid.NewString())
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	if output == "" {
		_, err = os.Stdout.Write(content)
		return err
	}
	return os.WriteFile(output, content, 0600)
}

package storage

import (
	"context"
	"fmt"

	"github.com/mleitner/bankmatch/internal/model"
)

// Statistics aggregates counts across the database for the status API.
func (s *SQLiteStorage) Statistics(ctx context.Context) (*model.Statistics, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	stats := &model.Statistics{
		TransactionsByStatus: make(map[string]int),
		LedgerByStatus:       make(map[string]int),
	}

	if err := s.countByGroup(ctx,
		`SELECT status, COUNT(*) FROM transactions GROUP BY status`,
		stats.TransactionsByStatus, &stats.TotalTransactions); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var ledgerTotal int
	if err := s.countByGroup(ctx,
		`SELECT status, COUNT(*) FROM ledger_matches GROUP BY status`,
		stats.LedgerByStatus, &ledgerTotal); err != nil {
		return nil, fmt.Errorf("failed to count ledger matches: %w", err)
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(outstanding), 0) FROM invoices
		WHERE status IN (?, ?)`,
		string(model.InvoiceOpen), string(model.InvoiceOverdue)).
		Scan(&stats.OpenInvoices, &stats.OpenInvoiceTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to count open invoices: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(submitted), 0) FROM payment_entries`).
		Scan(&stats.PaymentEntries, &stats.SubmittedEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count payment entries: %w", err)
	}

	return stats, nil
}

func (s *SQLiteStorage) countByGroup(ctx context.Context, query string, into map[string]int, total *int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
		*total += count
	}
	return rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

// SavePaymentEntry inserts or updates a payment entry header. Allocations
// are persisted separately through UpsertAllocation so a crashed booking run
// can resume without losing already-written rows.
func (s *SQLiteStorage) SavePaymentEntry(ctx context.Context, entry *model.PaymentEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePaymentEntry(entry); err != nil {
		return err
	}

	skipped := ""
	if len(entry.SkippedInvoices) > 0 {
		data, err := json.Marshal(entry.SkippedInvoices)
		if err != nil {
			return fmt.Errorf("failed to marshal skipped invoices: %w", err)
		}
		skipped = string(data)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_entries (
			id, transaction_id, customer, customer_name, paid_from, paid_to,
			remarks, skipped_invoices, paid_amount, submitted, reference_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer = excluded.customer,
			customer_name = excluded.customer_name,
			paid_from = excluded.paid_from,
			paid_to = excluded.paid_to,
			remarks = excluded.remarks,
			skipped_invoices = excluded.skipped_invoices,
			paid_amount = excluded.paid_amount,
			submitted = excluded.submitted`,
		entry.ID, entry.TransactionID, entry.Customer, entry.CustomerName,
		entry.PaidFrom, entry.PaidTo, entry.Remarks, skipped,
		entry.PaidAmount, entry.Submitted, nullableTime(entry.ReferenceDate), createdAt)
	if err != nil {
		return fmt.Errorf("failed to save payment entry %s: %w", entry.ID, err)
	}
	return nil
}

// UpsertAllocation writes one allocation row keyed by (entry, invoice).
// Re-running a booking overwrites instead of duplicating, which keeps
// crash-retry runs idempotent.
func (s *SQLiteStorage) UpsertAllocation(ctx context.Context, entryID string, alloc model.PaymentAllocation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(entryID, "entryID"); err != nil {
		return err
	}
	if err := validateString(alloc.InvoiceID, "alloc.InvoiceID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_allocations (
			entry_id, invoice_id, total_amount, outstanding, allocated, due_date
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id, invoice_id) DO UPDATE SET
			total_amount = excluded.total_amount,
			outstanding = excluded.outstanding,
			allocated = excluded.allocated,
			due_date = excluded.due_date`,
		entryID, alloc.InvoiceID, alloc.TotalAmount, alloc.Outstanding,
		alloc.Allocated, nullableTime(alloc.DueDate))
	if err != nil {
		return fmt.Errorf("failed to upsert allocation %s/%s: %w", entryID, alloc.InvoiceID, err)
	}
	return nil
}

// GetPaymentEntryForTransaction loads the payment entry for a transaction
// with all its allocations, or nil if none exists yet.
func (s *SQLiteStorage) GetPaymentEntryForTransaction(ctx context.Context, transactionID string) (*model.PaymentEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	var entry model.PaymentEntry
	var skipped string
	var referenceDate sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, customer, customer_name, paid_from, paid_to,
			remarks, skipped_invoices, paid_amount, submitted, reference_date, created_at
		FROM payment_entries WHERE transaction_id = ?`, transactionID).
		Scan(&entry.ID, &entry.TransactionID, &entry.Customer, &entry.CustomerName,
			&entry.PaidFrom, &entry.PaidTo, &entry.Remarks, &skipped,
			&entry.PaidAmount, &entry.Submitted, &referenceDate, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment entry for %s: %w", transactionID, err)
	}
	if referenceDate.Valid {
		entry.ReferenceDate = referenceDate.Time
	}
	if skipped != "" {
		if err := json.Unmarshal([]byte(skipped), &entry.SkippedInvoices); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skipped invoices for %s: %w", entry.ID, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, total_amount, outstanding, allocated, due_date
		FROM payment_allocations WHERE entry_id = ?
		ORDER BY invoice_id`, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations for %s: %w", entry.ID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var alloc model.PaymentAllocation
		var dueDate sql.NullTime
		if err := rows.Scan(&alloc.InvoiceID, &alloc.TotalAmount,
			&alloc.Outstanding, &alloc.Allocated, &dueDate); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		if dueDate.Valid {
			alloc.DueDate = dueDate.Time
		}
		entry.Allocations = append(entry.Allocations, alloc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate allocations: %w", err)
	}
	return &entry, nil
}

// SubmitPaymentEntry marks an entry as submitted. Submission is final.
func (s *SQLiteStorage) SubmitPaymentEntry(ctx context.Context, entryID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(entryID, "entryID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE payment_entries SET submitted = 1 WHERE id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("failed to submit payment entry %s: %w", entryID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check submit of %s: %w", entryID, err)
	}
	if affected == 0 {
		return fmt.Errorf("payment entry %s: %w", entryID, common.ErrNotFound)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

const invoiceColumns = `id, customer, receivable_account, status, grand_total, outstanding, due_date`

// SaveInvoices replaces the mirrored invoice rows. The records system owns
// invoices; this mirror only exists so matching can run without a live
// connection to it.
func (s *SQLiteStorage) SaveInvoices(ctx context.Context, invoices []model.Invoice) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer = excluded.customer,
			receivable_account = excluded.receivable_account,
			status = excluded.status,
			grand_total = excluded.grand_total,
			outstanding = excluded.outstanding,
			due_date = excluded.due_date`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, inv := range invoices {
		if inv.ID == "" {
			return fmt.Errorf("%w: invoice ID", ErrEmptyString)
		}
		if _, execErr := stmt.ExecContext(ctx,
			inv.ID, inv.Customer, inv.ReceivableAccount, string(inv.Status),
			inv.GrandTotal, inv.Outstanding, nullableTime(inv.DueDate)); execErr != nil {
			return fmt.Errorf("failed to save invoice %s: %w", inv.ID, execErr)
		}
	}

	return tx.Commit()
}

// GetInvoice retrieves one invoice by its full identifier.
func (s *SQLiteStorage) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice %s: %w", id, err)
	}
	return inv, nil
}

// GetOpenInvoices returns all invoices in a payable state, ordered by ID.
func (s *SQLiteStorage) GetOpenInvoices(ctx context.Context) ([]model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryInvoices(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status IN (?, ?)
		ORDER BY id`,
		string(model.InvoiceOpen), string(model.InvoiceOverdue))
}

// GetOpenInvoicesForCustomer returns a customer's payable invoices with a
// grand total not exceeding maxTotal, ordered by ID. These are the subset-sum
// candidates for one payment.
func (s *SQLiteStorage) GetOpenInvoicesForCustomer(ctx context.Context, customer string, maxTotal float64) ([]model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(customer, "customer"); err != nil {
		return nil, err
	}
	return s.queryInvoices(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE customer = ? AND status IN (?, ?) AND grand_total <= ?
		ORDER BY id`,
		customer, string(model.InvoiceOpen), string(model.InvoiceOverdue), maxTotal)
}

func (s *SQLiteStorage) queryInvoices(ctx context.Context, query string, args ...any) ([]model.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invoices []model.Invoice
	for rows.Next() {
		inv, scanErr := scanInvoice(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", scanErr)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}
	return invoices, nil
}

func scanInvoice(row scanner) (*model.Invoice, error) {
	var inv model.Invoice
	var status string
	var dueDate sql.NullTime
	err := row.Scan(&inv.ID, &inv.Customer, &inv.ReceivableAccount, &status,
		&inv.GrandTotal, &inv.Outstanding, &dueDate)
	if err != nil {
		return nil, err
	}
	inv.Status = model.InvoiceStatus(status)
	if dueDate.Valid {
		inv.DueDate = dueDate.Time
	}
	return &inv, nil
}

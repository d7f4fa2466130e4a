package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
)

const transactionColumns = `
	id, bank_account, transaction_date, value_date, purpose, purpose_raw,
	counterparty_name, counterparty_iban, counterparty_bic, transaction_type,
	end_to_end_id, primanota, customer_ref, gv_code, comment, currency,
	status, customer, log, amount, balance`

// SaveTransactions inserts transactions, skipping ones already present.
// The returned count is the number of newly inserted rows, which is how
// import runs report how many transactions were actually new.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return 0, fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, txn := range transactions {
		if txn.Status == "" {
			txn.Status = model.StatusNew
		}
		result, execErr := stmt.ExecContext(ctx,
			txn.ID, txn.BankAccount, txn.TransactionDate, nullableTime(txn.ValueDate),
			txn.Purpose, txn.PurposeRaw,
			txn.CounterpartyName, txn.CounterpartyIBAN, txn.CounterpartyBIC,
			txn.TransactionType, txn.EndToEndID, txn.Primanota,
			txn.CustomerRef, txn.GVCode, txn.Comment, txn.Currency,
			string(txn.Status), txn.Customer, txn.Log, txn.Amount, txn.Balance)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, execErr)
		}
		affected, affErr := result.RowsAffected()
		if affErr != nil {
			return 0, fmt.Errorf("failed to check insert of transaction %s: %w", txn.ID, affErr)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

// GetTransaction retrieves one transaction by its Hibiscus ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return txn, nil
}

// GetTransactions retrieves transactions matching the filter, newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any
	if filter.FromDate != nil {
		conditions = append(conditions, "transaction_date >= ?")
		args = append(args, *filter.FromDate)
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "transaction_date <= ?")
		args = append(args, *filter.ToDate)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.BankAccount != "" {
		conditions = append(conditions, "bank_account = ?")
		args = append(args, filter.BankAccount)
	}
	if filter.MinAmount != nil {
		conditions = append(conditions, "amount >= ?")
		args = append(args, *filter.MinAmount)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY transaction_date DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// TransactionExists reports whether a transaction ID is already stored.
func (s *SQLiteStorage) TransactionExists(ctx context.Context, id string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(id, "id"); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM transactions WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction %s: %w", id, err)
	}
	return count > 0, nil
}

// UpdateTransactionStatus sets the booking lifecycle status.
func (s *SQLiteStorage) UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) error {
	return s.updateTransactionField(ctx, id, "status", string(status))
}

// UpdateTransactionCustomer records the resolved customer.
func (s *SQLiteStorage) UpdateTransactionCustomer(ctx context.Context, id, customer string) error {
	return s.updateTransactionField(ctx, id, "customer", customer)
}

// UpdateTransactionLog appends nothing; it replaces the audit note.
func (s *SQLiteStorage) UpdateTransactionLog(ctx context.Context, id, log string) error {
	return s.updateTransactionField(ctx, id, "log", log)
}

func (s *SQLiteStorage) updateTransactionField(ctx context.Context, id, column, value string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	// column comes from a fixed caller set, never user input
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE transactions SET %s = ? WHERE id = ?`, column), value, id)
	if err != nil {
		return fmt.Errorf("failed to update %s for transaction %s: %w", column, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update for transaction %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// LatestTransactionForAccount returns the newest stored transaction for an
// account, used to pick the start date of incremental imports.
func (s *SQLiteStorage) LatestTransactionForAccount(ctx context.Context, iban string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(iban, "iban"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE bank_account = ?
		ORDER BY transaction_date DESC, id DESC LIMIT 1`, iban)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no transactions for account %s: %w", iban, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transaction for %s: %w", iban, err)
	}
	return txn, nil
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var txn model.Transaction
	var valueDate sql.NullTime
	var status string
	err := row.Scan(
		&txn.ID, &txn.BankAccount, &txn.TransactionDate, &valueDate,
		&txn.Purpose, &txn.PurposeRaw,
		&txn.CounterpartyName, &txn.CounterpartyIBAN, &txn.CounterpartyBIC,
		&txn.TransactionType, &txn.EndToEndID, &txn.Primanota,
		&txn.CustomerRef, &txn.GVCode, &txn.Comment, &txn.Currency,
		&status, &txn.Customer, &txn.Log, &txn.Amount, &txn.Balance)
	if err != nil {
		return nil, err
	}
	if valueDate.Valid {
		txn.ValueDate = valueDate.Time
	}
	txn.Status = model.TransactionStatus(status)
	return &txn, nil
}

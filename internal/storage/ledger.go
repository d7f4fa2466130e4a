package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
)

// SaveLedgerMatch stores the full classification snapshot as JSON plus a few
// denormalized columns for filtering. One row per transaction; re-matching
// replaces the previous snapshot.
func (s *SQLiteStorage) SaveLedgerMatch(ctx context.Context, match *model.LedgerMatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if match == nil {
		return fmt.Errorf("%w: match", ErrNilParameter)
	}
	if err := validateString(match.TransactionID, "match.TransactionID"); err != nil {
		return err
	}

	snapshot, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger match for %s: %w", match.TransactionID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_matches (
			transaction_id, status, quality_score, ledger_total, matched_at, snapshot
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			status = excluded.status,
			quality_score = excluded.quality_score,
			ledger_total = excluded.ledger_total,
			matched_at = excluded.matched_at,
			snapshot = excluded.snapshot`,
		match.TransactionID, string(match.Status), match.QualityScore,
		match.LedgerTotal, match.MatchedAt, string(snapshot))
	if err != nil {
		return fmt.Errorf("failed to save ledger match for %s: %w", match.TransactionID, err)
	}
	return nil
}

// GetLedgerMatch loads the stored classification snapshot for a transaction.
func (s *SQLiteStorage) GetLedgerMatch(ctx context.Context, transactionID string) (*model.LedgerMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM ledger_matches WHERE transaction_id = ?`, transactionID).
		Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger match for %s: %w", transactionID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger match for %s: %w", transactionID, err)
	}

	var match model.LedgerMatch
	if err := json.Unmarshal([]byte(snapshot), &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger match for %s: %w", transactionID, err)
	}
	return &match, nil
}

// GetLedgerMatchTransactions returns transactions whose latest ledger match
// is in the given state, oldest match first. The sweep uses this to find
// pending transactions past the grace period.
func (s *SQLiteStorage) GetLedgerMatchTransactions(ctx context.Context, filter service.LedgerMatchFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT t.id, t.bank_account, t.transaction_date, t.value_date,
			t.purpose, t.purpose_raw, t.counterparty_name, t.counterparty_iban,
			t.counterparty_bic, t.transaction_type, t.end_to_end_id,
			t.primanota, t.customer_ref, t.gv_code, t.comment, t.currency,
			t.status, t.customer, t.log, t.amount, t.balance
		FROM transactions t
		JOIN ledger_matches lm ON lm.transaction_id = t.id
		WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += " AND lm.status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.MatchedBefore != nil {
		query += " AND lm.matched_at < ?"
		args = append(args, *filter.MatchedBefore)
	}
	query += " ORDER BY lm.matched_at"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger match transactions: %w", err)
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

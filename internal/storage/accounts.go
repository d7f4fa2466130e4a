package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

// SaveBankAccount inserts or updates a bank account keyed by IBAN.
func (s *SQLiteStorage) SaveBankAccount(ctx context.Context, account *model.BankAccount) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBankAccount(account); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (
			iban, bic, hibiscus_id, account_holder, description,
			account_number, bank_code, sub_account, customer_number,
			currency, receivable_target, comment,
			balance, available_balance, balance_date, auto_fetch
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(iban) DO UPDATE SET
			bic = excluded.bic,
			hibiscus_id = excluded.hibiscus_id,
			account_holder = excluded.account_holder,
			description = excluded.description,
			account_number = excluded.account_number,
			bank_code = excluded.bank_code,
			sub_account = excluded.sub_account,
			customer_number = excluded.customer_number,
			currency = excluded.currency,
			receivable_target = excluded.receivable_target,
			comment = excluded.comment,
			balance = excluded.balance,
			available_balance = excluded.available_balance,
			balance_date = excluded.balance_date,
			auto_fetch = excluded.auto_fetch`,
		account.IBAN, account.BIC, account.HibiscusID, account.AccountHolder,
		account.Description, account.AccountNumber, account.BankCode,
		account.SubAccount, account.CustomerNumber, account.Currency,
		account.ReceivableTarget, account.Comment,
		account.Balance, account.AvailableBalance, nullableTime(account.BalanceDate),
		account.AutoFetch)
	if err != nil {
		return fmt.Errorf("failed to save bank account %s: %w", account.IBAN, err)
	}
	return nil
}

// GetBankAccount retrieves one bank account by IBAN.
func (s *SQLiteStorage) GetBankAccount(ctx context.Context, iban string) (*model.BankAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(iban, "iban"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT iban, bic, hibiscus_id, account_holder, description,
			account_number, bank_code, sub_account, customer_number,
			currency, receivable_target, comment,
			balance, available_balance, balance_date, auto_fetch
		FROM bank_accounts WHERE iban = ?`, iban)

	account, err := scanBankAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bank account %s: %w", iban, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank account %s: %w", iban, err)
	}
	return account, nil
}

// ListBankAccounts returns all accounts, optionally only those flagged for
// automatic fetching.
func (s *SQLiteStorage) ListBankAccounts(ctx context.Context, autoFetchOnly bool) ([]model.BankAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT iban, bic, hibiscus_id, account_holder, description,
			account_number, bank_code, sub_account, customer_number,
			currency, receivable_target, comment,
			balance, available_balance, balance_date, auto_fetch
		FROM bank_accounts`
	if autoFetchOnly {
		query += ` WHERE auto_fetch = 1`
	}
	query += ` ORDER BY iban`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.BankAccount
	for rows.Next() {
		account, scanErr := scanBankAccount(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan bank account: %w", scanErr)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bank accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccountBalance refreshes the stored balance after an import run.
func (s *SQLiteStorage) UpdateAccountBalance(ctx context.Context, iban string, balance float64, balanceDate time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(iban, "iban"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE bank_accounts SET balance = ?, balance_date = ? WHERE iban = ?`,
		balance, balanceDate, iban)
	if err != nil {
		return fmt.Errorf("failed to update balance for %s: %w", iban, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check balance update for %s: %w", iban, err)
	}
	if affected == 0 {
		return fmt.Errorf("bank account %s: %w", iban, common.ErrNotFound)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBankAccount(row scanner) (*model.BankAccount, error) {
	var account model.BankAccount
	var balanceDate sql.NullTime
	err := row.Scan(
		&account.IBAN, &account.BIC, &account.HibiscusID, &account.AccountHolder,
		&account.Description, &account.AccountNumber, &account.BankCode,
		&account.SubAccount, &account.CustomerNumber, &account.Currency,
		&account.ReceivableTarget, &account.Comment,
		&account.Balance, &account.AvailableBalance, &balanceDate,
		&account.AutoFetch)
	if err != nil {
		return nil, err
	}
	if balanceDate.Valid {
		account.BalanceDate = balanceDate.Time
	}
	return &account, nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

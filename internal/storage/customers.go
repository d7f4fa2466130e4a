package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

// SaveCustomer inserts or updates a mirrored customer record.
func (s *SQLiteStorage) SaveCustomer(ctx context.Context, customer *model.Customer) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if customer == nil {
		return fmt.Errorf("%w: customer", ErrNilParameter)
	}
	if err := validateString(customer.ID, "customer.ID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		customer.ID, customer.Name)
	if err != nil {
		return fmt.Errorf("failed to save customer %s: %w", customer.ID, err)
	}
	return nil
}

// GetCustomer retrieves a customer by ID.
func (s *SQLiteStorage) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var customer model.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM customers WHERE id = ?`, id).
		Scan(&customer.ID, &customer.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %s: %w", id, err)
	}
	return &customer, nil
}

// GetCustomerBankAccountByIBAN resolves a counterparty IBAN to a customer
// bank account link. Returns nil without error when no link exists; most
// incoming payments are from unlinked accounts.
func (s *SQLiteStorage) GetCustomerBankAccountByIBAN(ctx context.Context, iban string) (*model.CustomerBankAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(iban, "iban"); err != nil {
		return nil, err
	}

	var account model.CustomerBankAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_name, bank, customer, iban
		FROM customer_bank_accounts WHERE iban = ?`, iban).
		Scan(&account.ID, &account.AccountName, &account.Bank, &account.Customer, &account.IBAN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer bank account %s: %w", iban, err)
	}
	return &account, nil
}

// SaveCustomerBankAccount stores a counterparty IBAN to customer link.
// The IBAN is unique; saving an already-linked IBAN again updates the link.
func (s *SQLiteStorage) SaveCustomerBankAccount(ctx context.Context, account *model.CustomerBankAccount) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if err := validateString(account.ID, "account.ID"); err != nil {
		return err
	}
	if err := validateString(account.IBAN, "account.IBAN"); err != nil {
		return err
	}
	if err := validateString(account.Customer, "account.Customer"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_bank_accounts (id, account_name, bank, customer, iban)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(iban) DO UPDATE SET
			account_name = excluded.account_name,
			bank = excluded.bank,
			customer = excluded.customer`,
		account.ID, account.AccountName, account.Bank, account.Customer, account.IBAN)
	if err != nil {
		return fmt.Errorf("failed to save customer bank account %s: %w", account.IBAN, err)
	}
	return nil
}

// GetBankByBIC retrieves a bank record by BIC. Returns nil without error
// when the BIC is unknown; the booking engine provisions a placeholder then.
func (s *SQLiteStorage) GetBankByBIC(ctx context.Context, bic string) (*model.Bank, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(bic, "bic"); err != nil {
		return nil, err
	}

	var bank model.Bank
	err := s.db.QueryRowContext(ctx,
		`SELECT bic, name FROM banks WHERE bic = ?`, bic).
		Scan(&bank.BIC, &bank.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank %s: %w", bic, err)
	}
	return &bank, nil
}

// SaveBank stores a bank record keyed by BIC.
func (s *SQLiteStorage) SaveBank(ctx context.Context, bank *model.Bank) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if bank == nil {
		return fmt.Errorf("%w: bank", ErrNilParameter)
	}
	if err := validateString(bank.BIC, "bank.BIC"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO banks (bic, name) VALUES (?, ?)
		ON CONFLICT(bic) DO UPDATE SET name = excluded.name`,
		bank.BIC, bank.Name)
	if err != nil {
		return fmt.Errorf("failed to save bank %s: %w", bank.BIC, err)
	}
	return nil
}

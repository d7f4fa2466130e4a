package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mleitner/bankmatch/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidAccount     = errors.New("invalid bank account")
	ErrInvalidEntry       = errors.New("invalid payment entry")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.BankAccount == "" {
		return fmt.Errorf("%w: missing bank account", ErrInvalidTransaction)
	}
	if txn.TransactionDate.IsZero() {
		return fmt.Errorf("%w: missing transaction date", ErrInvalidTransaction)
	}
	return nil
}

// validateBankAccount validates a bank account record.
func validateBankAccount(account *model.BankAccount) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if strings.TrimSpace(account.IBAN) == "" {
		return fmt.Errorf("%w: missing IBAN", ErrInvalidAccount)
	}
	return nil
}

// validatePaymentEntry validates a payment entry.
func validatePaymentEntry(entry *model.PaymentEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidEntry)
	}
	if entry.TransactionID == "" {
		return fmt.Errorf("%w: missing transaction ID", ErrInvalidEntry)
	}
	return nil
}

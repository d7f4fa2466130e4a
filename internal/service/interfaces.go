// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/mleitner/bankmatch/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	FromDate    *time.Time
	ToDate      *time.Time
	Status      model.TransactionStatus
	BankAccount string
	MinAmount   *float64
	Limit       int
}

// LedgerMatchFilter selects transactions by their ledger-match state.
type LedgerMatchFilter struct {
	MatchedBefore *time.Time
	Status        model.LedgerMatchStatus
	Limit         int
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Bank account operations
	SaveBankAccount(ctx context.Context, account *model.BankAccount) error
	GetBankAccount(ctx context.Context, iban string) (*model.BankAccount, error)
	ListBankAccounts(ctx context.Context, autoFetchOnly bool) ([]model.BankAccount, error)
	UpdateAccountBalance(ctx context.Context, iban string, balance float64, balanceDate time.Time) error

	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	TransactionExists(ctx context.Context, id string) (bool, error)
	UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) error
	UpdateTransactionCustomer(ctx context.Context, id, customer string) error
	UpdateTransactionLog(ctx context.Context, id, log string) error
	LatestTransactionForAccount(ctx context.Context, iban string) (*model.Transaction, error)

	// Invoice operations (read-only, mirrored from the records system)
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	GetOpenInvoices(ctx context.Context) ([]model.Invoice, error)
	GetOpenInvoicesForCustomer(ctx context.Context, customer string, maxTotal float64) ([]model.Invoice, error)

	// Customer and counterparty bank account operations
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	GetCustomerBankAccountByIBAN(ctx context.Context, iban string) (*model.CustomerBankAccount, error)
	SaveCustomerBankAccount(ctx context.Context, account *model.CustomerBankAccount) error
	GetBankByBIC(ctx context.Context, bic string) (*model.Bank, error)
	SaveBank(ctx context.Context, bank *model.Bank) error

	// Payment entry operations
	SavePaymentEntry(ctx context.Context, entry *model.PaymentEntry) error
	UpsertAllocation(ctx context.Context, entryID string, alloc model.PaymentAllocation) error
	GetPaymentEntryForTransaction(ctx context.Context, transactionID string) (*model.PaymentEntry, error)
	SubmitPaymentEntry(ctx context.Context, entryID string) error

	// Ledger match persistence (secondary reconciliation audit trail)
	SaveLedgerMatch(ctx context.Context, match *model.LedgerMatch) error
	GetLedgerMatch(ctx context.Context, transactionID string) (*model.LedgerMatch, error)
	GetLedgerMatchTransactions(ctx context.Context, filter LedgerMatchFilter) ([]model.Transaction, error)

	// Sync log operations
	CreateSyncLog(ctx context.Context, log *model.SyncLog) (int64, error)
	FinishSyncLog(ctx context.Context, log *model.SyncLog) error
	RecentSyncLogs(ctx context.Context, since time.Time) ([]model.SyncLog, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// JobStore is a key-value store with timed expiry for batch progress
// documents. The expiry is a first-class parameter, not an implementation
// detail of the backing store.
type JobStore interface {
	Set(ctx context.Context, key string, status *model.JobStatus, ttl time.Duration) error
	Get(ctx context.Context, key string) (*model.JobStatus, error)
	Delete(ctx context.Context, key string) error
}

// LedgerStore reads the external payments ledger for the secondary
// reconciliation pipeline. Implementations query the reservation system's
// database directly; the core never writes to it.
type LedgerStore interface {
	PaymentEntries(ctx context.Context, customerLot, bookingNr int64) ([]model.LedgerEntry, error)
	Customer(ctx context.Context, customerLot int64) (*model.LedgerCustomer, error)
	Reservation(ctx context.Context, bookingNr int64) (*model.LedgerReservation, error)
}

// TransactionFetcher retrieves accounts and transactions from the banking
// middleware (the Hibiscus payment server).
type TransactionFetcher interface {
	GetAccounts(ctx context.Context) ([]model.BankAccount, error)
	GetTransactions(ctx context.Context, hibiscusAccountID string, from, to time.Time) ([]model.Transaction, error)
}

// RetryOptions configures retry behavior for external lookups.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

package hibiscus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
)

// DefaultDaysBack is the fetch window when an account has no stored
// transactions yet.
const DefaultDaysBack = 30

// Importer pulls transactions from the Hibiscus server into local storage.
type Importer struct {
	fetcher service.TransactionFetcher
	storage service.Storage
	retry   service.RetryOptions
}

// NewImporter creates an importer. Zero retry options select the defaults.
func NewImporter(fetcher service.TransactionFetcher, storage service.Storage, retry service.RetryOptions) *Importer {
	return &Importer{fetcher: fetcher, storage: storage, retry: retry}
}

// SyncResult aggregates one import run across accounts.
type SyncResult struct {
	AccountErrors       map[string]string
	AccountsProcessed   int
	TransactionsFetched int
}

// SyncAccounts imports new transactions for every auto-fetch account. Each
// account is isolated: one account's failure is recorded in the sync log and
// the run continues. fetchAll widens the window to everything the server has.
func (i *Importer) SyncAccounts(ctx context.Context, trigger string, fetchAll bool) (*SyncResult, error) {
	syncLog := &model.SyncLog{TriggerType: trigger}
	if _, err := i.storage.CreateSyncLog(ctx, syncLog); err != nil {
		return nil, fmt.Errorf("failed to create sync log: %w", err)
	}

	accounts, err := i.storage.ListBankAccounts(ctx, true)
	if err != nil {
		syncLog.Status = model.SyncFailed
		syncLog.ErrorLog = err.Error()
		_ = i.storage.FinishSyncLog(ctx, syncLog)
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	result := &SyncResult{AccountErrors: make(map[string]string)}
	for _, account := range accounts {
		fetched, accErr := i.syncAccount(ctx, &account, fetchAll)
		if accErr != nil {
			slog.Error("Account sync failed", "iban", account.IBAN, "error", accErr)
			result.AccountErrors[account.IBAN] = accErr.Error()
			continue
		}
		result.AccountsProcessed++
		result.TransactionsFetched += fetched
	}

	syncLog.AccountsProcessed = result.AccountsProcessed
	syncLog.TransactionsFetched = result.TransactionsFetched
	syncLog.ErrorsCount = len(result.AccountErrors)
	syncLog.Status = model.SyncComplete
	if len(result.AccountErrors) > 0 {
		var lines []string
		for iban, msg := range result.AccountErrors {
			lines = append(lines, iban+": "+msg)
		}
		syncLog.ErrorLog = strings.Join(lines, "\n")
		if result.AccountsProcessed == 0 {
			syncLog.Status = model.SyncFailed
		}
	}
	if err := i.storage.FinishSyncLog(ctx, syncLog); err != nil {
		slog.Warn("Failed to finish sync log", "id", syncLog.ID, "error", err)
	}

	slog.Info("Sync complete",
		"trigger", trigger,
		"accounts", result.AccountsProcessed,
		"fetched", result.TransactionsFetched,
		"errors", len(result.AccountErrors))
	return result, nil
}

// syncAccount imports one account and returns the number of new
// transactions. The fetch window starts a few days before the newest stored
// transaction so late-booked entries are not missed; duplicates are dropped
// by the store.
func (i *Importer) syncAccount(ctx context.Context, account *model.BankAccount, fetchAll bool) (int, error) {
	if account.HibiscusID == "" {
		return 0, fmt.Errorf("account %s has no hibiscus ID", account.IBAN)
	}

	var from time.Time
	if !fetchAll {
		from = time.Now().AddDate(0, 0, -DefaultDaysBack)
		latest, err := i.storage.LatestTransactionForAccount(ctx, account.IBAN)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return 0, err
		}
		if latest != nil {
			overlap := latest.TransactionDate.AddDate(0, 0, -3)
			if overlap.After(from) {
				from = overlap
			}
		}
	}

	var transactions []model.Transaction
	fetch := func() error {
		var fetchErr error
		transactions, fetchErr = i.fetcher.GetTransactions(ctx, account.HibiscusID, from, time.Now())
		if fetchErr != nil && !errors.Is(fetchErr, common.ErrHibiscusConnection) {
			// API faults won't heal on retry, only connection problems do.
			return &common.RetryableError{Err: fetchErr, Retryable: false}
		}
		return fetchErr
	}
	if err := common.WithRetry(ctx, fetch, i.retry); err != nil {
		return 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	// Zero-balance entries are incomplete bookings still settling.
	kept := transactions[:0]
	for _, tx := range transactions {
		if tx.Balance == 0 {
			continue
		}
		tx.BankAccount = account.IBAN
		kept = append(kept, tx)
	}
	if len(kept) == 0 {
		return 0, nil
	}

	inserted, err := i.storage.SaveTransactions(ctx, kept)
	if err != nil {
		return 0, fmt.Errorf("failed to save transactions: %w", err)
	}

	// Refresh the stored balance from the newest transaction.
	newest := kept[0]
	for _, tx := range kept[1:] {
		if tx.TransactionDate.After(newest.TransactionDate) {
			newest = tx
		}
	}
	if err := i.storage.UpdateAccountBalance(ctx, account.IBAN, newest.Balance, newest.TransactionDate); err != nil {
		slog.Warn("Failed to update balance", "iban", account.IBAN, "error", err)
	}

	slog.Info("Account synced", "iban", account.IBAN, "new", inserted, "fetched", len(transactions))
	return inserted, nil
}

// SyncAccountList mirrors the server's account records into storage.
// Existing accounts keep their local settings only for fields the server
// does not own.
func (i *Importer) SyncAccountList(ctx context.Context) (int, error) {
	accounts, err := i.fetcher.GetAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch accounts: %w", err)
	}

	saved := 0
	for _, account := range accounts {
		if account.IBAN == "" {
			slog.Warn("Skipping account without IBAN", "hibiscus_id", account.HibiscusID)
			continue
		}
		if existing, getErr := i.storage.GetBankAccount(ctx, account.IBAN); getErr == nil {
			account.ReceivableTarget = existing.ReceivableTarget
			account.AutoFetch = existing.AutoFetch
			account.Comment = existing.Comment
		} else if !errors.Is(getErr, common.ErrNotFound) {
			return saved, getErr
		} else {
			account.AutoFetch = true
		}
		if err := i.storage.SaveBankAccount(ctx, &account); err != nil {
			return saved, fmt.Errorf("failed to save account %s: %w", account.IBAN, err)
		}
		saved++
	}
	return saved, nil
}

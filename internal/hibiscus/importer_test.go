package hibiscus

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
	"github.com/mleitner/bankmatch/internal/storage"
)

// fakeFetcher serves canned data per hibiscus account ID and records the
// requested fetch windows.
type fakeFetcher struct {
	accounts     []model.BankAccount
	transactions map[string][]model.Transaction
	errs         map[string]error
	fromSeen     map[string]time.Time
	calls        int
}

func (f *fakeFetcher) GetAccounts(context.Context) ([]model.BankAccount, error) {
	return f.accounts, nil
}

func (f *fakeFetcher) GetTransactions(_ context.Context, id string, from, _ time.Time) ([]model.Transaction, error) {
	f.calls++
	if f.fromSeen == nil {
		f.fromSeen = make(map[string]time.Time)
	}
	f.fromSeen[id] = from
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.transactions[id], nil
}

func newImporterStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func autoFetchAccount(iban, hibiscusID string) *model.BankAccount {
	return &model.BankAccount{IBAN: iban, HibiscusID: hibiscusID, AutoFetch: true}
}

func fetchedTransaction(id string, date time.Time, amount, balance float64) model.Transaction {
	return model.Transaction{
		ID:              id,
		TransactionDate: date,
		Purpose:         "Zahlung " + id,
		Status:          model.StatusNew,
		Amount:          amount,
		Balance:         balance,
	}
}

func TestSyncAccounts(t *testing.T) {
	store := newImporterStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveBankAccount(ctx, autoFetchAccount("DE02120300000000202051", "1")))

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{transactions: map[string][]model.Transaction{
		"1": {
			fetchedTransaction("ht-1", day, 119.00, 1119.00),
			fetchedTransaction("ht-2", day.AddDate(0, 0, 1), 50.00, 1169.00),
			// Still settling, must be skipped.
			fetchedTransaction("ht-3", day.AddDate(0, 0, 2), 10.00, 0),
		},
	}}

	importer := NewImporter(fetcher, store, service.RetryOptions{})
	result, err := importer.SyncAccounts(ctx, "Manual", false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.AccountsProcessed)
	assert.Equal(t, 2, result.TransactionsFetched)
	assert.Empty(t, result.AccountErrors)

	// Kept transactions carry the owning IBAN.
	tx, err := store.GetTransaction(ctx, "ht-1")
	require.NoError(t, err)
	assert.Equal(t, "DE02120300000000202051", tx.BankAccount)

	_, err = store.GetTransaction(ctx, "ht-3")
	assert.Error(t, err)

	// Balance refreshed from the newest kept transaction.
	account, err := store.GetBankAccount(ctx, "DE02120300000000202051")
	require.NoError(t, err)
	assert.Equal(t, 1169.00, account.Balance)

	logs, err := store.RecentSyncLogs(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncComplete, logs[0].Status)
	assert.Equal(t, "Manual", logs[0].TriggerType)
	assert.Equal(t, 2, logs[0].TransactionsFetched)
}

func TestSyncAccountsIsolatesFailures(t *testing.T) {
	store := newImporterStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveBankAccount(ctx, autoFetchAccount("DE02120300000000202051", "1")))
	require.NoError(t, store.SaveBankAccount(ctx, autoFetchAccount("DE89370400440532013000", "2")))

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{
		transactions: map[string][]model.Transaction{
			"2": {fetchedTransaction("ht-9", day, 25.00, 525.00)},
		},
		errs: map[string]error{"1": fmt.Errorf("%w: boom", common.ErrHibiscusAPI)},
	}

	importer := NewImporter(fetcher, store, service.RetryOptions{})
	result, err := importer.SyncAccounts(ctx, "Scheduled", false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.AccountsProcessed)
	assert.Equal(t, 1, result.TransactionsFetched)
	assert.Contains(t, result.AccountErrors, "DE02120300000000202051")

	logs, err := store.RecentSyncLogs(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncComplete, logs[0].Status)
	assert.Equal(t, 1, logs[0].ErrorsCount)
}

func TestSyncAccountsAllFailed(t *testing.T) {
	store := newImporterStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveBankAccount(ctx, autoFetchAccount("DE02120300000000202051", "1")))

	fetcher := &fakeFetcher{errs: map[string]error{"1": fmt.Errorf("%w: boom", common.ErrHibiscusAPI)}}
	importer := NewImporter(fetcher, store, service.RetryOptions{})
	result, err := importer.SyncAccounts(ctx, "Scheduled", false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.AccountsProcessed)

	logs, err := store.RecentSyncLogs(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncFailed, logs[0].Status)
}

func TestSyncAccountFetchWindow(t *testing.T) {
	store := newImporterStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveBankAccount(ctx, autoFetchAccount("DE02120300000000202051", "1")))

	// Seed a recent stored transaction; the next fetch must start shortly
	// before it, not the full default window back.
	recent := time.Now().AddDate(0, 0, -5).Truncate(24 * time.Hour)
	_, err := store.SaveTransactions(ctx, []model.Transaction{{
		ID:              "old-1",
		BankAccount:     "DE02120300000000202051",
		TransactionDate: recent,
		Status:          model.StatusNew,
		Amount:          10,
		Balance:         100,
	}})
	require.NoError(t, err)

	fetcher := &fakeFetcher{}
	importer := NewImporter(fetcher, store, service.RetryOptions{})
	_, err = importer.SyncAccounts(ctx, "Scheduled", false)
	require.NoError(t, err)

	want := recent.AddDate(0, 0, -3)
	assert.WithinDuration(t, want, fetcher.fromSeen["1"], time.Hour)

	// fetchAll clears the window entirely.
	_, err = importer.SyncAccounts(ctx, "Scheduled", true)
	require.NoError(t, err)
	assert.True(t, fetcher.fromSeen["1"].IsZero())
}

func TestSyncAccountRetriesConnectionErrors(t *testing.T) {
	store := newImporterStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveBankAccount(ctx, autoFetchAccount("DE02120300000000202051", "1")))

	fetcher := &fakeFetcher{errs: map[string]error{"1": fmt.Errorf("%w: refused", common.ErrHibiscusConnection)}}
	importer := NewImporter(fetcher, store, service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	})

	result, err := importer.SyncAccounts(ctx, "Scheduled", false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.AccountsProcessed)
	assert.Equal(t, 3, fetcher.calls)

	// API faults are not retried.
	fetcher.calls = 0
	fetcher.errs["1"] = fmt.Errorf("%w: bad request", common.ErrHibiscusAPI)
	_, err = importer.SyncAccounts(ctx, "Scheduled", false)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
}

func TestSyncAccountList(t *testing.T) {
	store := newImporterStore(t)
	ctx := context.Background()

	// Pre-existing account with local settings the server must not clobber.
	require.NoError(t, store.SaveBankAccount(ctx, &model.BankAccount{
		IBAN:             "DE02120300000000202051",
		HibiscusID:       "1",
		ReceivableTarget: "1200 - Bank - TG",
		Comment:          "local note",
		AutoFetch:        false,
	}))

	fetcher := &fakeFetcher{accounts: []model.BankAccount{
		{IBAN: "DE02120300000000202051", HibiscusID: "1", AccountHolder: "Test GmbH"},
		{IBAN: "DE89370400440532013000", HibiscusID: "2", AccountHolder: "Neu GmbH"},
		{HibiscusID: "3"}, // no IBAN, skipped
	}}

	importer := NewImporter(fetcher, store, service.RetryOptions{})
	saved, err := importer.SyncAccountList(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	existing, err := store.GetBankAccount(ctx, "DE02120300000000202051")
	require.NoError(t, err)
	assert.Equal(t, "Test GmbH", existing.AccountHolder)
	assert.Equal(t, "1200 - Bank - TG", existing.ReceivableTarget)
	assert.Equal(t, "local note", existing.Comment)
	assert.False(t, existing.AutoFetch)

	created, err := store.GetBankAccount(ctx, "DE89370400440532013000")
	require.NoError(t, err)
	assert.True(t, created.AutoFetch, "new accounts default to auto-fetch")
}

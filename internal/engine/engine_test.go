package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mleitner/bankmatch/internal/booking"
	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/match"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
	"github.com/mleitner/bankmatch/internal/storage"
)

func newBatchEngine(t *testing.T) (*Engine, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	require.NoError(t, store.SaveBankAccount(ctx, &model.BankAccount{
		IBAN:             "DE02120300000000202051",
		ReceivableTarget: "1200 - Bank - TG",
	}))
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveInvoices(ctx, []model.Invoice{
		{ID: "SINV-00042", Customer: "CUST-0007", ReceivableAccount: "1400 - Debitoren", Status: model.InvoiceOpen, GrandTotal: 119.00, Outstanding: 119.00, DueDate: due},
		{ID: "SINV-00043", Customer: "CUST-0009", ReceivableAccount: "1400 - Debitoren", Status: model.InvoiceOpen, GrandTotal: 50.00, Outstanding: 50.00, DueDate: due},
	}))

	classifier, err := match.NewClassifier(store, match.DefaultConfig())
	require.NoError(t, err)
	booker := booking.NewEngine(store, booking.Config{AutoSubmit: true})

	return New(store, store.NewJobStatusStore(), classifier, booker, Config{ProgressEvery: 1}), store
}

func batchTransaction(id, purpose string, amount float64) model.Transaction {
	return model.Transaction{
		ID:               id,
		BankAccount:      "DE02120300000000202051",
		TransactionDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Purpose:          purpose,
		CounterpartyIBAN: "DE89370400440532013000",
		Status:           model.StatusNew,
		Amount:           amount,
		Balance:          1000,
	}
}

func TestRunBatch(t *testing.T) {
	engine, store := newBatchEngine(t)
	ctx := context.Background()

	legacy := batchTransaction("b-3", "Alte Zahlung", 10.00)
	legacy.Comment = "manuell gebucht als PE-00417"
	outgoing := batchTransaction("b-4", "Miete", -800.00)

	_, err := store.SaveTransactions(ctx, []model.Transaction{
		batchTransaction("b-1", "RECHNUNG SINV-00042", 119.00),
		batchTransaction("b-2", "Unbekannter Zweck", 77.77),
		legacy,
		outgoing,
	})
	require.NoError(t, err)

	result, err := engine.RunBatch(ctx, "match-batch", service.TransactionFilter{}, 0)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 1, result.Booked)
	assert.Equal(t, 1, result.Legacy)
	assert.Equal(t, 2, result.Unmatched)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, 1, result.ByTier[string(model.TierStrict)])

	// The matched transaction is booked and its counterparty provisioned.
	tx, err := store.GetTransaction(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAutoBooked, tx.Status)
	acc, err := store.GetCustomerBankAccountByIBAN(ctx, "DE89370400440532013000")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "CUST-0007", acc.Customer)

	lt, err := store.GetTransaction(ctx, "b-3")
	require.NoError(t, err)
	assert.Equal(t, model.StatusLegacyBooked, lt.Status)

	// Final job status is published with the result counters.
	jobs := store.NewJobStatusStore()
	status, err := jobs.Get(ctx, "match-batch")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, status.State)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, 1, status.Results["booked"])
	assert.Equal(t, 1, status.Results["legacy"])
	assert.Equal(t, 1, status.Results["tier_strict"])
}

func TestRunBatchErrorIsolation(t *testing.T) {
	engine, store := newBatchEngine(t)
	ctx := context.Background()

	// An ambiguous purpose is counted as an error without stopping the run.
	_, err := store.SaveTransactions(ctx, []model.Transaction{
		batchTransaction("e-1", "CUST-0007 und CUST-0009", 42.00),
		batchTransaction("e-2", "RECHNUNG SINV-00042", 119.00),
	})
	require.NoError(t, err)

	result, err := engine.RunBatch(ctx, "match-batch", service.TransactionFilter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.Booked)
}

func TestRunBatchRefusesConcurrentRun(t *testing.T) {
	engine, store := newBatchEngine(t)
	ctx := context.Background()

	jobs := store.NewJobStatusStore()
	require.NoError(t, jobs.Set(ctx, "match-batch", &model.JobStatus{
		JobID: "other",
		Name:  "match-batch",
		State: model.JobRunning,
	}, time.Hour))

	_, err := engine.RunBatch(ctx, "match-batch", service.TransactionFilter{}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrJobAlreadyRunning))

	// A finished previous run does not block.
	require.NoError(t, jobs.Set(ctx, "match-batch", &model.JobStatus{
		JobID: "other",
		Name:  "match-batch",
		State: model.JobCompleted,
	}, time.Hour))
	_, err = engine.RunBatch(ctx, "match-batch", service.TransactionFilter{}, 0)
	require.NoError(t, err)
}

func TestRunBatchHonorsLimit(t *testing.T) {
	engine, store := newBatchEngine(t)
	ctx := context.Background()

	var txs []model.Transaction
	for i := 0; i < 5; i++ {
		txs = append(txs, batchTransaction(fmt.Sprintf("l-%d", i), "Zweck", 1.00))
	}
	_, err := store.SaveTransactions(ctx, txs)
	require.NoError(t, err)

	result, err := engine.RunBatch(ctx, "match-batch", service.TransactionFilter{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
}

func TestMarkOtherIncome(t *testing.T) {
	engine, store := newBatchEngine(t)
	ctx := context.Background()

	_, err := store.SaveTransactions(ctx, []model.Transaction{
		batchTransaction("o-1", "Zinsen", 1.23),
		batchTransaction("o-2", "Erstattung", 4.56),
	})
	require.NoError(t, err)

	updated, err := engine.MarkOtherIncome(ctx, []string{"o-1", "o-2", "o-missing"})
	require.Error(t, err)
	assert.Equal(t, 2, updated)

	tx, err := store.GetTransaction(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOtherIncome, tx.Status)
}

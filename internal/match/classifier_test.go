package match

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedClassifierFixture(t *testing.T, store *storage.SQLiteStorage) {
	t.Helper()
	ctx := context.Background()

	account := &model.BankAccount{
		IBAN:             "DE02120300000000202051",
		ReceivableTarget: "1200 - Bank - TG",
		Currency:         "EUR",
	}
	require.NoError(t, store.SaveBankAccount(ctx, account))

	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveInvoices(ctx, []model.Invoice{
		{ID: "SINV-00042", Customer: "CUST-0007", ReceivableAccount: "1400 - Debitoren", Status: model.InvoiceOpen, GrandTotal: 119.00, Outstanding: 119.00, DueDate: due},
		{ID: "SINV-00043", Customer: "CUST-0007", ReceivableAccount: "1400 - Debitoren", Status: model.InvoiceOpen, GrandTotal: 238.00, Outstanding: 238.00, DueDate: due},
		{ID: "SINV-00044", Customer: "CUST-0009", ReceivableAccount: "1400 - Debitoren", Status: model.InvoiceOverdue, GrandTotal: 50.00, Outstanding: 50.00, DueDate: due},
	}))
}

func saveTestTransaction(t *testing.T, store *storage.SQLiteStorage, id, purpose string, amount float64) {
	t.Helper()
	_, err := store.SaveTransactions(context.Background(), []model.Transaction{{
		ID:              id,
		BankAccount:     "DE02120300000000202051",
		TransactionDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Purpose:         purpose,
		Status:          model.StatusNew,
		Currency:        "EUR",
		Amount:          amount,
		Balance:         1000,
	}})
	require.NoError(t, err)
}

func TestClassifyTiers(t *testing.T) {
	store := newTestStore(t)
	seedClassifierFixture(t, store)

	classifier, err := NewClassifier(store, DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name     string
		purpose  string
		amount   float64
		wantTier model.MatchTier
		wantIDs  []string
	}{
		{
			name:     "strict single invoice",
			purpose:  "RECHNUNG SINV-00042",
			amount:   119.00,
			wantTier: model.TierStrict,
			wantIDs:  []string{"SINV-00042"},
		},
		{
			name:     "strict multiple invoices summing up",
			purpose:  "SINV-00042 SINV-00043",
			amount:   357.00,
			wantTier: model.TierStrict,
			wantIDs:  []string{"SINV-00042", "SINV-00043"},
		},
		{
			name:     "strict reference with wrong amount falls through",
			purpose:  "SINV-00042",
			amount:   100.00,
			wantTier: model.TierNone,
		},
		{
			name:     "loose spaced reference",
			purpose:  "RG 000 42 DANKE",
			amount:   119.00,
			wantTier: model.TierLoose,
			wantIDs:  []string{"SINV-00042"},
		},
		{
			name:     "customer token with subset sum",
			purpose:  "Sammelzahlung CUST-0007",
			amount:   357.00,
			wantTier: model.TierCustomer,
			wantIDs:  []string{"SINV-00042", "SINV-00043"},
		},
		{
			name:     "customer token without fitting combination",
			purpose:  "Zahlung CUST-0007",
			amount:   300.00,
			wantTier: model.TierNone,
		},
		{
			name:     "nothing recognizable",
			purpose:  "Miete April",
			amount:   500.00,
			wantTier: model.TierNone,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := "ct-" + string(rune('a'+i))
			saveTestTransaction(t, store, id, tt.purpose, tt.amount)

			result, err := classifier.Classify(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, result.Tier)
			if tt.wantTier != model.TierNone {
				assert.True(t, result.TotalsMatched)
				assert.ElementsMatch(t, tt.wantIDs, result.Invoices())
			} else {
				assert.False(t, result.TotalsMatched)
			}
		})
	}
}

func TestClassifyAmbiguousCustomer(t *testing.T) {
	store := newTestStore(t)
	seedClassifierFixture(t, store)

	classifier, err := NewClassifier(store, DefaultConfig())
	require.NoError(t, err)

	saveTestTransaction(t, store, "amb-1", "CUST-0007 fuer CUST-0009", 119.00)
	_, err = classifier.Classify(context.Background(), "amb-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrAmbiguousCustomer))
}

func TestClassifyCustomerByIBAN(t *testing.T) {
	store := newTestStore(t)
	seedClassifierFixture(t, store)
	ctx := context.Background()

	require.NoError(t, store.SaveCustomerBankAccount(ctx, &model.CustomerBankAccount{
		ID:       "cba-1",
		Customer: "CUST-0009",
		IBAN:     "DE89370400440532013000",
	}))

	classifier, err := NewClassifier(store, DefaultConfig())
	require.NoError(t, err)

	_, err = store.SaveTransactions(ctx, []model.Transaction{{
		ID:               "iban-1",
		BankAccount:      "DE02120300000000202051",
		TransactionDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Purpose:          "Danke",
		CounterpartyIBAN: "DE89370400440532013000",
		Status:           model.StatusNew,
		Amount:           50.00,
	}})
	require.NoError(t, err)

	result, err := classifier.Classify(ctx, "iban-1")
	require.NoError(t, err)
	assert.Equal(t, model.TierCustomer, result.Tier)
	assert.Equal(t, "CUST-0009", result.Customer)
	assert.Equal(t, []string{"SINV-00044"}, result.CustomerInvoices)
}

func TestClassifyTooManyCandidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBankAccount(ctx, &model.BankAccount{IBAN: "DE02120300000000202051"}))
	invoices := make([]model.Invoice, 5)
	for i := range invoices {
		invoices[i] = model.Invoice{
			ID:          "SINV-1000" + string(rune('0'+i)),
			Customer:    "CUST-0001",
			Status:      model.InvoiceOpen,
			GrandTotal:  1.00,
			Outstanding: 1.00,
		}
	}
	require.NoError(t, store.SaveInvoices(ctx, invoices))

	cfg := DefaultConfig()
	cfg.MaxCandidates = 3
	classifier, err := NewClassifier(store, cfg)
	require.NoError(t, err)

	saveTestTransaction(t, store, "many-1", "CUST-0001", 4.00)
	_, err = classifier.Classify(ctx, "many-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTooManyCandidates))
}

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
)

func TestLedgerMatchRoundTrip(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	createTestAccount(t, store, "DE02120300000000202051")
	if _, err := store.SaveTransactions(ctx, createTestTransactions("DE02120300000000202051", 1)); err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}

	match := &model.LedgerMatch{
		TransactionID: "tx-001",
		Status:        model.LedgerPerfect,
		QualityScore:  100,
		Amount:        250.00,
		LedgerTotal:   250.00,
		MatchedAt:     time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
		Reference:     &model.LedgerReference{CustomerLot: 1234567, Code: "ABCD", BookingNr: 654321},
		Entries: []model.LedgerEntry{
			{ID: 1, ItemNr: "100", Amount: 250.00, TransID: "ext-1"},
		},
		Customer: &model.LedgerCustomer{Lot: 1234567, FirstName: "Erika", LastName: "Muster"},
	}
	if err := store.SaveLedgerMatch(ctx, match); err != nil {
		t.Fatalf("SaveLedgerMatch failed: %v", err)
	}

	got, err := store.GetLedgerMatch(ctx, "tx-001")
	if err != nil {
		t.Fatalf("GetLedgerMatch failed: %v", err)
	}
	if got.Status != model.LedgerPerfect || got.QualityScore != 100 {
		t.Errorf("Unexpected match: %+v", got)
	}
	if got.Reference == nil || got.Reference.Code != "ABCD" {
		t.Errorf("Reference not preserved: %+v", got.Reference)
	}
	if len(got.Entries) != 1 || got.Entries[0].Amount != 250.00 {
		t.Errorf("Entries not preserved: %+v", got.Entries)
	}

	// A re-match replaces the previous snapshot.
	match.Status = model.LedgerMismatch
	match.QualityScore = 40
	if err := store.SaveLedgerMatch(ctx, match); err != nil {
		t.Fatalf("SaveLedgerMatch upsert failed: %v", err)
	}
	got, err = store.GetLedgerMatch(ctx, "tx-001")
	if err != nil {
		t.Fatalf("GetLedgerMatch failed: %v", err)
	}
	if got.Status != model.LedgerMismatch {
		t.Errorf("Expected replaced status, got %q", got.Status)
	}

	if _, err := store.GetLedgerMatch(ctx, "tx-missing"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetLedgerMatchTransactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	createTestAccount(t, store, "DE02120300000000202051")
	if _, err := store.SaveTransactions(ctx, createTestTransactions("DE02120300000000202051", 3)); err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}

	old := time.Now().Add(-100 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)
	saves := []*model.LedgerMatch{
		{TransactionID: "tx-001", Status: model.LedgerPending, MatchedAt: old},
		{TransactionID: "tx-002", Status: model.LedgerPending, MatchedAt: recent},
		{TransactionID: "tx-003", Status: model.LedgerPerfect, QualityScore: 100, MatchedAt: old},
	}
	for _, m := range saves {
		if err := store.SaveLedgerMatch(ctx, m); err != nil {
			t.Fatalf("SaveLedgerMatch failed: %v", err)
		}
	}

	cutoff := time.Now().Add(-72 * time.Hour)
	txs, err := store.GetLedgerMatchTransactions(ctx, service.LedgerMatchFilter{
		Status:        model.LedgerPending,
		MatchedBefore: &cutoff,
	})
	if err != nil {
		t.Fatalf("GetLedgerMatchTransactions failed: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "tx-001" {
		t.Errorf("Expected only tx-001 past the cutoff, got %+v", txs)
	}
}

// Package ledgermatch reconciles transactions against the external
// reservation system's payments ledger. It is a structurally parallel,
// simpler variant of the invoice matcher: one fixed purpose pattern, amount
// ratio checks and a quality score instead of tiered extraction.
package ledgermatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
)

// referenceRe matches the structured three-part code: customer lot number,
// four-letter code, booking number.
var referenceRe = regexp.MustCompile(`(\d{7})-([A-Z]{4})-(\d{6,7})`)

// DefaultGracePeriod is how long a pending match waits before the sweep
// re-attempts it. The external system posts its ledger side with delay.
const DefaultGracePeriod = 72 * time.Hour

// Matcher classifies transactions against the external ledger.
type Matcher struct {
	storage service.Storage
	ledger  service.LedgerStore
	grace   time.Duration
}

// NewMatcher creates a ledger matcher. A zero grace period selects the
// default.
func NewMatcher(storage service.Storage, ledger service.LedgerStore, grace time.Duration) *Matcher {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Matcher{storage: storage, ledger: ledger, grace: grace}
}

// ParseReference extracts the structured code from a purpose string, or nil
// if the purpose carries no recognizable reference.
func ParseReference(purpose string) *model.LedgerReference {
	m := referenceRe.FindStringSubmatch(purpose)
	if m == nil {
		return nil
	}
	lot, _ := strconv.ParseInt(m[1], 10, 64)
	booking, _ := strconv.ParseInt(m[3], 10, 64)
	return &model.LedgerReference{CustomerLot: lot, Code: m[2], BookingNr: booking}
}

// Match classifies one transaction and persists the full audit snapshot.
// Every classification records a quality score and every record fetched
// along the way, so operators can retrace the decision.
func (m *Matcher) Match(ctx context.Context, transactionID string) (*model.LedgerMatch, error) {
	tx, err := m.storage.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}

	result := &model.LedgerMatch{
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		MatchedAt:     time.Now(),
	}

	ref := ParseReference(tx.Purpose)
	if ref == nil {
		result.Status = model.LedgerNoMatch
		result.Notes = "no structured reference in purpose"
		return result, m.storage.SaveLedgerMatch(ctx, result)
	}
	result.Reference = ref

	entries, err := m.ledger.PaymentEntries(ctx, ref.CustomerLot, ref.BookingNr)
	if err != nil {
		return nil, fmt.Errorf("ledger lookup for lot %d booking %d: %w", ref.CustomerLot, ref.BookingNr, err)
	}
	customer, err := m.ledger.Customer(ctx, ref.CustomerLot)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("ledger customer lookup for lot %d: %w", ref.CustomerLot, err)
	}
	reservation, err := m.ledger.Reservation(ctx, ref.BookingNr)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("ledger reservation lookup for booking %d: %w", ref.BookingNr, err)
	}

	result.Entries = entries
	result.Customer = customer
	result.Reservation = reservation

	var total float64
	for _, e := range entries {
		total += e.Amount
	}
	result.LedgerTotal = model.Round2(total)
	result.Difference = model.Round2(math.Abs(tx.Amount - total))

	m.classify(result)

	if err := m.storage.SaveLedgerMatch(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save ledger match for %s: %w", tx.ID, err)
	}
	return result, nil
}

// classify assigns status and quality score from the fetched records.
func (m *Matcher) classify(r *model.LedgerMatch) {
	switch {
	case len(r.Entries) == 0:
		// The external system has not posted its side yet. Customer and
		// reservation both existing means the reference is real, so the
		// sweep re-attempts it after the grace period.
		if r.Customer != nil && r.Reservation != nil {
			r.Status = model.LedgerPending
			r.Notes = "reference resolves but no ledger entries posted yet"
		} else {
			r.Status = model.LedgerNoMatch
		}
		r.QualityScore = 0
	case r.Difference < 0.01:
		r.Status = model.LedgerPerfect
		r.QualityScore = 100
	case r.Difference < 1.0:
		r.Status = model.LedgerPerfect
		r.QualityScore = 95
	default:
		if r.LedgerTotal > 0 && r.Amount > 0 {
			pct := r.LedgerTotal / r.Amount * 100
			if pct >= 15 && pct <= 35 {
				// Typical down payment is 20-30% of the full amount.
				r.Status = model.LedgerPartial
				r.QualityScore = 60
				r.IsDeposit = true
				r.Notes = fmt.Sprintf("deposit detected, ~%d%% of full amount", int(pct))
			} else {
				r.Status = model.LedgerMismatch
				r.QualityScore = 40
			}
		} else {
			r.Status = model.LedgerMismatch
			r.QualityScore = 30
		}
	}
}

// SweepStats summarizes one re-match pass over pending transactions.
type SweepStats struct {
	Total        int
	Rematched    int
	NowMatched   int
	StillPending int
	Errors       int
}

// SweepPending re-attempts transactions stuck in pending state longer than
// the grace period. The full classification runs again rather than just
// re-checking ledger presence, so amount changes are picked up too.
// Individual failures are counted and do not abort the sweep.
func (m *Matcher) SweepPending(ctx context.Context, limit int) (SweepStats, error) {
	cutoff := time.Now().Add(-m.grace)
	txs, err := m.storage.GetLedgerMatchTransactions(ctx, service.LedgerMatchFilter{
		Status:        model.LedgerPending,
		MatchedBefore: &cutoff,
		Limit:         limit,
	})
	if err != nil {
		return SweepStats{}, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	stats := SweepStats{Total: len(txs)}
	for _, tx := range txs {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		result, matchErr := m.Match(ctx, tx.ID)
		if matchErr != nil {
			stats.Errors++
			slog.Error("Re-match failed", "transaction", tx.ID, "error", matchErr)
			continue
		}
		stats.Rematched++
		switch result.Status {
		case model.LedgerPending:
			stats.StillPending++
		case model.LedgerPerfect, model.LedgerPartial, model.LedgerMismatch:
			stats.NowMatched++
		}
	}

	slog.Info("Pending sweep complete",
		"total", stats.Total,
		"now_matched", stats.NowMatched,
		"still_pending", stats.StillPending,
		"errors", stats.Errors)
	return stats, nil
}

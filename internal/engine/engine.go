// Package engine runs the classification and booking pipeline over batches
// of imported transactions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/mleitner/bankmatch/internal/booking"
	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/match"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
)

// legacyRe detects references to payment entries created by hand before this
// system took over. Transactions carrying one are marked instead of re-booked.
var legacyRe = regexp.MustCompile(`PE-\d{5}`)

// Config controls batch behavior.
type Config struct {
	// ProgressEvery is how many transactions are processed between job
	// status updates.
	ProgressEvery int
	// JobTTL is how long a finished job's status stays readable.
	JobTTL time.Duration
	// ShowProgress renders a terminal progress bar during the run.
	ShowProgress bool
}

// DefaultConfig returns the batch defaults.
func DefaultConfig() Config {
	return Config{
		ProgressEvery: 10,
		JobTTL:        time.Hour,
	}
}

// Engine wires the classifier and booking engine into a sequential batch
// runner with progress publishing.
type Engine struct {
	storage    service.Storage
	jobs       service.JobStore
	classifier *match.Classifier
	booker     *booking.Engine
	cfg        Config
}

// New creates a batch engine.
func New(storage service.Storage, jobs service.JobStore, classifier *match.Classifier, booker *booking.Engine, cfg Config) *Engine {
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	return &Engine{
		storage:    storage,
		jobs:       jobs,
		classifier: classifier,
		booker:     booker,
		cfg:        cfg,
	}
}

// BatchResult aggregates one batch run.
type BatchResult struct {
	ByTier    map[string]int
	Total     int
	Booked    int
	Partial   int
	Unmatched int
	Legacy    int
	Errors    int
}

// RunBatch classifies and books all new incoming transactions matching the
// filter, sequentially. One transaction's failure never aborts the batch;
// it is counted and logged with context. Progress is published to the job
// store under the given name, and a second batch under the same name is
// refused while the first is still active.
func (e *Engine) RunBatch(ctx context.Context, name string, filter service.TransactionFilter, limit int) (*BatchResult, error) {
	if existing, err := e.jobs.Get(ctx, name); err == nil && existing.Active() {
		return nil, fmt.Errorf("job %q: %w", name, common.ErrJobAlreadyRunning)
	}

	if filter.Status == "" {
		filter.Status = model.StatusNew
	}
	if limit > 0 {
		filter.Limit = limit
	}

	transactions, err := e.storage.GetTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for batch: %w", err)
	}

	status := &model.JobStatus{
		JobID:     uuid.NewString(),
		Name:      name,
		State:     model.JobRunning,
		StartedAt: time.Now(),
		Total:     len(transactions),
	}
	if err := e.jobs.Set(ctx, name, status, e.cfg.JobTTL); err != nil {
		return nil, fmt.Errorf("failed to publish job status: %w", err)
	}

	slog.Info("Starting batch", "job", name, "transactions", len(transactions))

	var bar *progressbar.ProgressBar
	if e.cfg.ShowProgress {
		bar = progressbar.Default(int64(len(transactions)), "matching")
	}

	result := &BatchResult{
		ByTier: make(map[string]int),
		Total:  len(transactions),
	}

	for i, tx := range transactions {
		select {
		case <-ctx.Done():
			status.State = model.JobFailed
			status.Error = ctx.Err().Error()
			_ = e.jobs.Set(ctx, name, status, e.cfg.JobTTL)
			return result, ctx.Err()
		default:
		}

		e.processOne(ctx, &tx, result)

		status.Processed = i + 1
		status.Matched = result.Booked + result.Partial
		status.Errors = result.Errors
		if status.Total > 0 {
			status.Progress = status.Processed * 100 / status.Total
		}
		if (i+1)%e.cfg.ProgressEvery == 0 {
			if setErr := e.jobs.Set(ctx, name, status, e.cfg.JobTTL); setErr != nil {
				slog.Warn("Failed to publish progress", "job", name, "error", setErr)
			}
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	status.State = model.JobCompleted
	status.CompletedAt = time.Now()
	status.Progress = 100
	status.Results = map[string]int{
		"booked":    result.Booked,
		"partial":   result.Partial,
		"unmatched": result.Unmatched,
		"legacy":    result.Legacy,
		"errors":    result.Errors,
	}
	for tier, count := range result.ByTier {
		status.Results["tier_"+tier] = count
	}
	if err := e.jobs.Set(ctx, name, status, e.cfg.JobTTL); err != nil {
		slog.Warn("Failed to publish final job status", "job", name, "error", err)
	}

	slog.Info("Batch complete",
		"job", name,
		"total", result.Total,
		"booked", result.Booked,
		"partial", result.Partial,
		"unmatched", result.Unmatched,
		"errors", result.Errors)
	return result, nil
}

// processOne runs classify and book for a single transaction. All failures
// are absorbed into the result counters.
func (e *Engine) processOne(ctx context.Context, tx *model.Transaction, result *BatchResult) {
	if !tx.IsIncoming() {
		result.Unmatched++
		return
	}

	if legacyRe.MatchString(tx.Comment) || legacyRe.MatchString(tx.Log) {
		if err := e.storage.UpdateTransactionStatus(ctx, tx.ID, model.StatusLegacyBooked); err != nil {
			slog.Error("Failed to mark legacy transaction", "transaction", tx.ID, "error", err)
			result.Errors++
			return
		}
		result.Legacy++
		return
	}

	matchResult, err := e.classifier.Classify(ctx, tx.ID)
	if err != nil {
		if errors.Is(err, common.ErrAmbiguousCustomer) || errors.Is(err, common.ErrTooManyCandidates) {
			slog.Warn("Classification refused", "transaction", tx.ID, "error", err)
		} else {
			slog.Error("Classification failed", "transaction", tx.ID, "error", err)
		}
		result.Errors++
		return
	}
	result.ByTier[string(matchResult.Tier)]++

	bookResult, err := e.booker.Book(ctx, matchResult)
	if err != nil {
		slog.Error("Booking failed", "transaction", tx.ID, "error", err)
		result.Errors++
		return
	}

	// The booked entry carries the resolved customer even when the match
	// came from an invoice reference rather than a customer token.
	customer := matchResult.Customer
	if bookResult.Entry != nil && bookResult.Entry.Customer != "" {
		customer = bookResult.Entry.Customer
	}

	switch bookResult.Outcome {
	case model.BookingBooked:
		result.Booked++
		e.provisionCounterparty(ctx, tx, customer)
	case model.BookingPartial:
		result.Partial++
		e.provisionCounterparty(ctx, tx, customer)
		slog.Info("Partial booking", "transaction", tx.ID, "explanation", bookResult.Explanation)
	default:
		result.Unmatched++
		slog.Debug("No booking", "transaction", tx.ID, "explanation", bookResult.Explanation)
	}
}

// provisionCounterparty links the counterparty IBAN to the matched customer
// so the next payment from the same account resolves without a reference.
func (e *Engine) provisionCounterparty(ctx context.Context, tx *model.Transaction, customer string) {
	if customer == "" || tx.CounterpartyIBAN == "" {
		return
	}
	if err := e.booker.EnsureCounterpartyAccount(ctx, customer, tx.CounterpartyIBAN, tx.CounterpartyBIC); err != nil {
		slog.Warn("Failed to provision counterparty account",
			"transaction", tx.ID,
			"iban", tx.CounterpartyIBAN,
			"error", err)
	}
}

// MarkOtherIncome sets a group of transactions to the other-income status so
// they drop out of future matching batches. Missing IDs are reported, valid
// ones are still updated.
func (e *Engine) MarkOtherIncome(ctx context.Context, ids []string) (int, error) {
	updated := 0
	var firstErr error
	for _, id := range ids {
		if err := e.storage.UpdateTransactionStatus(ctx, id, model.StatusOtherIncome); err != nil {
			slog.Warn("Failed to mark other income", "transaction", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		updated++
	}
	return updated, firstErr
}

package match

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
)

// Config holds the matching engine configuration.
type Config struct {
	// NamingSeries is the invoice numbering template, e.g. "SINV-.#####".
	NamingSeries string
	// SeriesPrefix is prepended when synthesizing full identifiers from
	// bare numbers, e.g. "SINV-".
	SeriesPrefix string
	// ReturnPrefix marks credit-note identifiers excluded from matching,
	// e.g. "SINV-RET-".
	ReturnPrefix string
	// MaxCandidates bounds the subset-sum search per customer.
	MaxCandidates int
}

// DefaultConfig returns the default matching configuration.
func DefaultConfig() Config {
	return Config{
		NamingSeries:  "SINV-.#####",
		SeriesPrefix:  "SINV-",
		ReturnPrefix:  "SINV-RET-",
		MaxCandidates: DefaultMaxCandidates,
	}
}

// Classifier decides which unpaid invoices a transaction pays. It is a pure
// function of (transaction, invoice snapshot): classification never writes;
// all persistence happens in the booking engine.
type Classifier struct {
	storage   service.Storage
	extractor *Extractor
	cfg       Config
}

// NewClassifier creates a classifier with the given storage and config.
func NewClassifier(storage service.Storage, cfg Config) (*Classifier, error) {
	ex, err := NewExtractor(cfg.NamingSeries, cfg.SeriesPrefix)
	if err != nil {
		return nil, err
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	return &Classifier{storage: storage, extractor: ex, cfg: cfg}, nil
}

// Snapshot builds a fresh invoice index for one matching pass.
func (c *Classifier) Snapshot(ctx context.Context) (*Index, error) {
	invoices, err := c.storage.GetOpenInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load open invoices: %w", err)
	}
	return NewIndex(invoices, c.cfg.ReturnPrefix), nil
}

// Classify loads the transaction, builds a fresh invoice snapshot and
// classifies against it.
func (c *Classifier) Classify(ctx context.Context, transactionID string) (*model.MatchResult, error) {
	tx, err := c.storage.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}
	idx, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return c.ClassifyTransaction(ctx, tx, idx)
}

// ClassifyTransaction runs the tiers in fixed priority order against a
// shared invoice snapshot, short-circuiting on the first full match:
//
//  1. strict: full identifiers in the literal purpose, grand totals must
//     equal the amount
//  2. loose: bare numbers in the whitespace-stripped purpose, grand totals
//     must equal the amount
//  3. customer: resolve a customer (existing link, purpose token,
//     counterparty IBAN), then search that customer's open invoices for a
//     subset summing to the amount
//
// A purpose naming two distinct customers is a hard error for this
// transaction, surfaced to the operator rather than guessed at.
func (c *Classifier) ClassifyTransaction(ctx context.Context, tx *model.Transaction, idx *Index) (*model.MatchResult, error) {
	result := &model.MatchResult{
		TransactionID: tx.ID,
		BankAccount:   tx.BankAccount,
		Purpose:       tx.Purpose,
		Amount:        tx.Amount,
		Tier:          model.TierNone,
	}

	// Tier 1: strict.
	result.StrictInvoices = c.extractor.Strict(tx.Purpose, idx)
	if len(result.StrictInvoices) > 0 {
		sum := idx.GrandTotalSum(result.StrictInvoices)
		if model.SameAmount(sum, tx.Amount) {
			result.Tier = model.TierStrict
			result.CandidateSum = sum
			result.TotalsMatched = true
			return result, nil
		}
		slog.Debug("strict references found but totals differ",
			"transaction", tx.ID, "sum", sum, "amount", tx.Amount)
	}

	// Tier 2: loose.
	result.LooseInvoices = c.extractor.Loose(tx.Purpose, idx)
	if len(result.LooseInvoices) > 0 {
		sum := idx.GrandTotalSum(result.LooseInvoices)
		if model.SameAmount(sum, tx.Amount) {
			result.Tier = model.TierLoose
			result.CandidateSum = sum
			result.TotalsMatched = true
			return result, nil
		}
	}

	// Tier 3: customer. Resolution priority: existing link on the
	// transaction, then purpose token, then counterparty IBAN.
	customer := tx.Customer
	if customer == "" {
		var err error
		customer, err = c.extractor.CustomerMatch(tx.Purpose, idx)
		if err != nil {
			return nil, err
		}
	}
	if customer == "" && tx.CounterpartyIBAN != "" {
		acc, err := c.storage.GetCustomerBankAccountByIBAN(ctx, tx.CounterpartyIBAN)
		if err != nil {
			return nil, fmt.Errorf("failed to look up counterparty IBAN: %w", err)
		}
		if acc != nil {
			customer = acc.Customer
		}
	}
	result.Customer = customer

	if customer != "" {
		ids, err := c.matchCustomerInvoices(ctx, tx, customer)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			result.CustomerInvoices = ids
			result.Tier = model.TierCustomer
			result.CandidateSum = model.Round2(tx.Amount)
			result.TotalsMatched = true
			return result, nil
		}
	}

	return result, nil
}

// matchCustomerInvoices fetches the customer's open invoices whose
// individual grand total fits under the paid amount, ordered by identifier
// ascending, and runs the subset-sum search against the transaction amount.
// The ascending order is the documented traversal order of the solver, not
// an artifact of the underlying query.
func (c *Classifier) matchCustomerInvoices(ctx context.Context, tx *model.Transaction, customer string) ([]string, error) {
	invoices, err := c.storage.GetOpenInvoicesForCustomer(ctx, customer, tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to load open invoices for %s: %w", customer, err)
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].ID < invoices[j].ID })

	totals := make([]float64, len(invoices))
	for i, inv := range invoices {
		totals[i] = inv.GrandTotal
	}

	subset, err := FindSubsetBounded(totals, tx.Amount, c.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", customer, err)
	}
	if len(subset) == 0 {
		return nil, nil
	}

	ids := make([]string, len(subset))
	for i, n := range subset {
		ids[i] = invoices[n].ID
	}
	return ids, nil
}

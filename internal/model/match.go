package model

// MatchTier identifies which recognition tier produced a full match.
// Tiers are tried in fixed priority order; the first full match wins.
type MatchTier string

// Match tiers, in evaluation order.
const (
	TierStrict   MatchTier = "strict"
	TierLoose    MatchTier = "loose"
	TierCustomer MatchTier = "customer"
	TierNone     MatchTier = "none"
)

// MatchResult is the outcome of one invoice-matching attempt for one
// transaction. It is transient: consumed by the booking engine or shown to
// the operator, never persisted directly.
type MatchResult struct {
	TransactionID string
	BankAccount   string
	Purpose       string
	Customer      string // resolved customer, empty if none
	Tier          MatchTier

	// Candidate invoice lists per extraction mode, in discovery order.
	StrictInvoices   []string
	LooseInvoices    []string
	CustomerInvoices []string

	Amount        float64
	CandidateSum  float64 // grand-total sum of the winning tier's invoices
	TotalsMatched bool
}

// Matched reports whether any tier produced a full match.
func (r *MatchResult) Matched() bool {
	return r.Tier != TierNone && r.Tier != ""
}

// Invoices returns the deduplicated union of all candidate lists,
// preserving discovery order (strict, then loose, then customer). The
// booking engine sorts this before applying allocations.
func (r *MatchResult) Invoices() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{r.StrictInvoices, r.LooseInvoices, r.CustomerInvoices} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Package match implements the tiered payment-matching engine: invoice
// reference extraction from purpose text, subset-sum amount verification and
// the strict/loose/customer classification tiers.
package match

import (
	"sort"
	"strings"

	"github.com/mleitner/bankmatch/internal/model"
)

// Index is a point-in-time snapshot of the unpaid invoices. One snapshot is
// built per matching pass and shared between extraction and the solver so a
// pass sees a consistent view; it is read-only after construction.
type Index struct {
	invoices map[string]model.Invoice
	ids      []string // full identifiers, sorted
}

// NewIndex builds a snapshot from the given invoices, excluding paid and
// returned ones as well as identifiers carrying the configured return
// prefix (credit notes share the numbering space but never receive
// payments).
func NewIndex(invoices []model.Invoice, returnPrefix string) *Index {
	idx := &Index{invoices: make(map[string]model.Invoice, len(invoices))}
	for _, inv := range invoices {
		if inv.Status == model.InvoicePaid || inv.Status == model.InvoiceReturned {
			continue
		}
		if returnPrefix != "" && strings.HasPrefix(inv.ID, returnPrefix) {
			continue
		}
		if _, ok := idx.invoices[inv.ID]; ok {
			continue
		}
		idx.invoices[inv.ID] = inv
		idx.ids = append(idx.ids, inv.ID)
	}
	sort.Strings(idx.ids)
	return idx
}

// UnpaidFullIDs returns the full identifiers of all unpaid invoices, sorted.
func (x *Index) UnpaidFullIDs() []string {
	out := make([]string, len(x.ids))
	copy(out, x.ids)
	return out
}

// UnpaidNumbers returns the bare numeric identifiers of all unpaid
// invoices, sorted, without duplicates.
func (x *Index) UnpaidNumbers() []string {
	seen := make(map[string]bool, len(x.ids))
	var out []string
	for _, id := range x.ids {
		inv := x.invoices[id]
		n := inv.Number()
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Has reports whether the full identifier is in the unpaid set.
func (x *Index) Has(id string) bool {
	_, ok := x.invoices[id]
	return ok
}

// Invoice returns the snapshot's copy of an unpaid invoice.
func (x *Index) Invoice(id string) (model.Invoice, bool) {
	inv, ok := x.invoices[id]
	return inv, ok
}

// FullIDForNumber resolves a bare number back to its full identifier.
func (x *Index) FullIDForNumber(number string) (string, bool) {
	for _, id := range x.ids {
		inv := x.invoices[id]
		if inv.Number() == number {
			return id, true
		}
	}
	return "", false
}

// Customers returns the distinct customer identifiers across all unpaid
// invoices, sorted.
func (x *Index) Customers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range x.ids {
		c := x.invoices[id].Customer
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// GrandTotalSum sums the grand totals of the given invoice identifiers at
// currency precision. Unknown identifiers are skipped.
func (x *Index) GrandTotalSum(ids []string) float64 {
	var sum float64
	for _, id := range ids {
		if inv, ok := x.invoices[id]; ok {
			sum += inv.GrandTotal
		}
	}
	return model.Round2(sum)
}

// Len returns the number of unpaid invoices in the snapshot.
func (x *Index) Len() int {
	return len(x.ids)
}

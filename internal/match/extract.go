package match

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mleitner/bankmatch/internal/common"
)

// Extractor scans free-text payment purpose strings for invoice references
// and customer identifiers.
type Extractor struct {
	strictRe     *regexp.Regexp
	seriesPrefix string
}

// NewExtractor compiles the strict pattern from the invoice numbering
// template. Placeholder '#' characters become digit classes and literal
// dots are dropped, so "SINV-.#####" matches "SINV-00042".
func NewExtractor(namingSeries, seriesPrefix string) (*Extractor, error) {
	if namingSeries == "" {
		return nil, fmt.Errorf("%w: invoice naming series must be set", common.ErrInvalidConfig)
	}
	if !strings.Contains(namingSeries, "#") {
		namingSeries += "######"
	}
	pattern := strings.ReplaceAll(namingSeries, ".", "")
	pattern = strings.ReplaceAll(regexp.QuoteMeta(pattern), `#`, `\d`)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid naming series %q: %w", namingSeries, err)
	}
	return &Extractor{strictRe: re, seriesPrefix: seriesPrefix}, nil
}

// Strict finds full invoice identifiers in the literal purpose text
// (whitespace preserved) and keeps only those present in the unpaid set.
// Matches are deduplicated preserving first-seen order.
func (e *Extractor) Strict(purpose string, idx *Index) []string {
	matches := e.strictRe.FindAllString(purpose, -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		if seen[m] || !idx.Has(m) {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Loose strips all whitespace from the purpose, then searches for any bare
// numeric identifier of an unpaid invoice as a substring, in both its
// stored form and with leading zeros trimmed ("SINV 42" hits SINV-00042).
// Hits are resolved back to full identifiers, deduplicated preserving
// discovery order. This deliberately tolerates spacing and prefix typos at
// the cost of false positives on numerically coincidental substrings; the
// amount check in the classifier is the only guard against those.
func (e *Extractor) Loose(purpose string, idx *Index) []string {
	stripped := stripWhitespace(purpose)
	if stripped == "" {
		return nil
	}

	tokens := make(map[string]string) // search token -> full identifier
	for _, n := range idx.UnpaidNumbers() {
		full, ok := idx.FullIDForNumber(n)
		if !ok {
			full = e.seriesPrefix + n
		}
		tokens[n] = full
		if trimmed := strings.TrimLeft(n, "0"); trimmed != "" && trimmed != n {
			tokens[trimmed] = full
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	// Longer tokens first so "1042" is not shadowed by "42" in the
	// alternation.
	alts := make([]string, 0, len(tokens))
	for t := range tokens {
		alts = append(alts, t)
	}
	sort.Slice(alts, func(i, j int) bool {
		if len(alts[i]) != len(alts[j]) {
			return len(alts[i]) > len(alts[j])
		}
		return alts[i] < alts[j]
	})
	re, err := regexp.Compile(strings.Join(alts, "|"))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, m := range re.FindAllString(stripped, -1) {
		full := tokens[m]
		if full == "" || seen[full] {
			continue
		}
		seen[full] = true
		out = append(out, full)
	}
	return out
}

// CustomerMatch searches the whitespace-stripped, lowercased purpose for a
// customer identifier drawn from the unpaid-invoice customer set. Finding
// more than one distinct customer is an unresolvable ambiguity and fails
// loudly rather than silently picking one.
func (e *Extractor) CustomerMatch(purpose string, idx *Index) (string, error) {
	haystack := strings.ToLower(stripWhitespace(purpose))
	if haystack == "" {
		return "", nil
	}

	var found []string
	for _, cust := range idx.Customers() {
		token := strings.ToLower(stripWhitespace(cust))
		if token == "" {
			continue
		}
		if strings.Contains(haystack, token) {
			found = append(found, cust)
		}
	}

	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %s", common.ErrAmbiguousCustomer, strings.Join(found, ", "))
	}
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

package match

import (
	"fmt"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

// DefaultMaxCandidates bounds the subset-sum search. The search is
// exponential in the worst case; beyond this many candidates it fails fast
// instead of hanging.
const DefaultMaxCandidates = 30

// FindSubset searches the candidate totals, in the order given, for a
// subset summing to target. Traversal is depth-first, extending the partial
// subset by one later element per recursion level and pruning branches
// whose partial sum already exceeds the target (amounts are assumed
// non-negative). Equality is tested at 3 fractional digits. The returned
// indices identify the first satisfying subset found by this fixed
// traversal order, which is not necessarily minimal; callers that care
// about which subset wins must order their candidates accordingly.
//
// Returns nil (and no error) when no subset sums to the target.
func FindSubset(totals []float64, target float64) ([]int, error) {
	return FindSubsetBounded(totals, target, DefaultMaxCandidates)
}

// FindSubsetBounded is FindSubset with an explicit candidate bound.
func FindSubsetBounded(totals []float64, target float64, maxCandidates int) ([]int, error) {
	if maxCandidates > 0 && len(totals) > maxCandidates {
		return nil, fmt.Errorf("%w: %d candidates, limit %d",
			common.ErrTooManyCandidates, len(totals), maxCandidates)
	}
	return search(totals, target, 0, 0, nil), nil
}

func search(totals []float64, target, partial float64, start int, chosen []int) []int {
	if model.Round3(partial) == model.Round3(target) {
		out := make([]int, len(chosen))
		copy(out, chosen)
		return out
	}
	if partial > target {
		return nil
	}
	for i := start; i < len(totals); i++ {
		if result := search(totals, target, partial+totals[i], i+1, append(chosen, i)); result != nil {
			return result
		}
	}
	return nil
}

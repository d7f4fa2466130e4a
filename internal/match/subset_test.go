package match

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

func TestFindSubset(t *testing.T) {
	tests := []struct {
		name   string
		totals []float64
		target float64
		want   []int
	}{
		{
			name:   "single element",
			totals: []float64{119.00},
			target: 119.00,
			want:   []int{0},
		},
		{
			name:   "pair",
			totals: []float64{50.00, 119.00, 69.00},
			target: 119.00,
			want:   []int{0, 2},
		},
		{
			name:   "whole set",
			totals: []float64{10.00, 20.00, 30.00},
			target: 60.00,
			want:   []int{0, 1, 2},
		},
		{
			name:   "no solution",
			totals: []float64{10.00, 20.00},
			target: 25.00,
			want:   nil,
		},
		{
			name:   "cent amounts survive float accumulation",
			totals: []float64{0.10, 0.20, 0.30, 0.40},
			target: 0.60,
			want:   []int{0, 1, 2},
		},
		{
			name:   "first subset in traversal order wins",
			totals: []float64{30.00, 20.00, 10.00, 50.00},
			target: 50.00,
			want:   []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindSubset(tt.totals, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindSubsetCandidateBound(t *testing.T) {
	totals := make([]float64, DefaultMaxCandidates+1)
	for i := range totals {
		totals[i] = 1.00
	}
	_, err := FindSubset(totals, 2.00)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTooManyCandidates))

	// An explicit zero bound disables the limit.
	got, err := FindSubsetBounded(totals, 2.00, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// Cross-check the solver against exhaustive enumeration on small random
// instances: whenever brute force finds a subset, the solver must too, and
// the solver's subset must actually sum to the target.
func TestFindSubsetAgainstBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(9)
		totals := make([]float64, n)
		for i := range totals {
			totals[i] = float64(1+rng.Intn(500)) / 10 // 0.10 .. 50.00
		}

		var target float64
		if trial%2 == 0 {
			// Half the trials use a real subset's sum as the target.
			for i := range totals {
				if rng.Intn(2) == 0 {
					target += totals[i]
				}
			}
		} else {
			target = float64(1+rng.Intn(2000)) / 10
		}

		got, err := FindSubset(totals, target)
		require.NoError(t, err)

		if got != nil {
			var sum float64
			for _, i := range got {
				sum += totals[i]
			}
			assert.Equal(t, model.Round3(target), model.Round3(sum),
				"trial %d: subset %v does not sum to target", trial, got)
		} else {
			assert.False(t, bruteForceHasSubset(totals, target),
				"trial %d: solver missed a subset for target %v in %v", trial, target, totals)
		}
	}
}

func bruteForceHasSubset(totals []float64, target float64) bool {
	for mask := 0; mask < 1<<len(totals); mask++ {
		var sum float64
		for i := range totals {
			if mask&(1<<i) != 0 {
				sum += totals[i]
			}
		}
		if model.Round3(sum) == model.Round3(target) {
			return true
		}
	}
	return false
}

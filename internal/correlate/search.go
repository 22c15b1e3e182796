package correlate

import (
	"cmp"
	"slices"

	"github.com/fourmitrack/fourmitrack/internal/database/types"
)

// MaxTerms caps the size of an explaining combination.
const MaxTerms = 3

// candidate is a ranking snapshot with its diff on one metric.
type candidate struct {
	snapshot *types.RankingSnapshot
	diff     int64
}

// candidates keeps the snapshots that moved on the metric, sorted by absolute
// diff descending with ties broken by ID.
func candidates(metric Metric, window []*types.RankingSnapshot) []candidate {
	result := make([]candidate, 0, len(window))

	for _, snapshot := range window {
		if _, diff := metric.ranking(snapshot); diff != 0 {
			result = append(result, candidate{snapshot: snapshot, diff: diff})
		}
	}

	slices.SortStableFunc(result, func(a, b candidate) int {
		if c := cmp.Compare(abs(b.diff), abs(a.diff)); c != 0 {
			return c
		}

		return cmp.Compare(a.snapshot.ID, b.snapshot.ID)
	})

	return result
}

// Conserve finds the smallest combination of diffs, at most maxTerms long,
// summing to -target. Combinations of one size are tried in lexicographic
// index order and the first match wins. It returns the matched indexes or
// nil when nothing matches.
func Conserve(diffs []int64, target int64, maxTerms int) []int {
	want := -target

	for size := 1; size <= min(maxTerms, len(diffs)); size++ {
		indexes := make([]int, size)
		for i := range indexes {
			indexes[i] = i
		}

		for {
			var sum int64
			for _, i := range indexes {
				sum += diffs[i]
			}

			if sum == want {
				return indexes
			}

			if !nextCombination(indexes, len(diffs)) {
				break
			}
		}
	}

	return nil
}

// nextCombination advances indexes to the next combination of n elements in
// lexicographic order. It returns false after the last one.
func nextCombination(indexes []int, n int) bool {
	size := len(indexes)

	i := size - 1
	for i >= 0 && indexes[i] == n-size+i {
		i--
	}

	if i < 0 {
		return false
	}

	indexes[i]++
	for j := i + 1; j < size; j++ {
		indexes[j] = indexes[j-1] + 1
	}

	return true
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}

	return v
}

// Package pairs builds the candidate image-pair list handed to correspondence
// search. Restricting pairs to the same date plus a short lookahead keeps the
// matching graph sparse while still connecting consecutive acquisitions for
// cross-date triangulation.
package pairs

import (
	"github.com/lionlai1989/sat-bundleadjust/internal/timeline"
)

// Pair is an unordered candidate pair of image indices (A < B). Indices are
// positions in the concatenation of the selected dates' image lists, in
// selection order.
type Pair struct {
	A int `json:"a"`
	B int `json:"b"`
}

// FromTimeline builds the pair candidates for the dates of entries picked by
// selected, in order. For each selected date it emits all unordered pairs
// within the date (when intraDate is set) and all pairs between the date and
// each of the next lookahead selected dates. The lookahead is clamped to the
// dates remaining in the selection.
func FromTimeline(entries []timeline.Entry, selected []int, lookahead int, intraDate bool) []Pair {
	counts := make([]int, len(selected))
	for i, idx := range selected {
		counts[i] = entries[idx].ImageCount()
	}
	return Build(counts, lookahead, intraDate)
}

// Build is the counts-based core of FromTimeline: counts[k] is the number of
// images of the k-th selected date.
func Build(counts []int, lookahead int, intraDate bool) []Pair {
	// offsets[k] is the index of the first image of date k in the
	// concatenated image list.
	offsets := make([]int, len(counts)+1)
	for k, n := range counts {
		offsets[k+1] = offsets[k] + n
	}

	var out []Pair
	for k := range counts {
		if intraDate {
			for i := offsets[k]; i < offsets[k+1]; i++ {
				for j := i + 1; j < offsets[k+1]; j++ {
					out = append(out, Pair{A: i, B: j})
				}
			}
		}
		for next := 1; next <= lookahead && k+next < len(counts); next++ {
			for i := offsets[k]; i < offsets[k+1]; i++ {
				for j := offsets[k+next]; j < offsets[k+next+1]; j++ {
					out = append(out, Pair{A: i, B: j})
				}
			}
		}
	}
	return out
}

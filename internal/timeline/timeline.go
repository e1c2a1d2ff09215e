// Package timeline groups satellite acquisitions into discrete date clusters.
// Images taken within half an hour of each other belong to the same pass and
// are optimized as one acquisition date.
package timeline

import (
	"sort"
	"time"
)

// ClusterMargin is the maximum acquisition time difference allowed between an
// image and the representative timestamp of the cluster it joins.
const ClusterMargin = 30 * time.Minute

// IDFormat is the layout of a cluster identifier, derived from the cluster's
// representative timestamp.
const IDFormat = "20060102_150405"

// Image is one timestamped input image.
type Image struct {
	ID       string
	Datetime time.Time
}

// Entry is one acquisition-date cluster of a scene timeline.
type Entry struct {
	// Datetime is the cluster's representative timestamp: the acquisition
	// time of its earliest-sorted member, fixed at creation.
	Datetime time.Time `json:"datetime"`
	// ID is Datetime formatted as YYYYMMDD_HHMMSS, unique within a timeline.
	ID string `json:"id"`
	// Images holds the member image identifiers in acquisition order.
	Images []string `json:"images"`
	// Adjusted is set once a prior run produced adjusted camera models for
	// this date.
	Adjusted bool `json:"adjusted"`
	// Weights is reserved for per-image confidence weights assigned by the
	// optimization core.
	Weights []float64 `json:"weights,omitempty"`
}

// ImageCount returns the number of images in the cluster.
func (e *Entry) ImageCount() int { return len(e.Images) }

// Cluster builds the timeline for a set of timestamped images.
//
// Images are sorted by acquisition time and assigned greedily: each image
// joins the already-created cluster whose representative timestamp is nearest,
// provided the gap is strictly below ClusterMargin; otherwise it starts a new
// cluster with its own timestamp as representative. Assignment is single-pass
// and never revisited, and representatives are never recomputed, so the
// result is deterministic. When two representatives are equidistant the
// earliest-created one wins. An empty input yields an empty timeline.
func Cluster(images []Image) []Entry {
	sorted := make([]Image, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Datetime.Before(sorted[j].Datetime)
	})

	var entries []Entry
	for _, img := range sorted {
		best, bestDiff := -1, time.Duration(0)
		for i := range entries {
			diff := img.Datetime.Sub(entries[i].Datetime)
			if diff < 0 {
				diff = -diff
			}
			if best == -1 || diff < bestDiff {
				best, bestDiff = i, diff
			}
		}
		if best >= 0 && bestDiff < ClusterMargin {
			entries[best].Images = append(entries[best].Images, img.ID)
			continue
		}
		entries = append(entries, Entry{
			Datetime: img.Datetime,
			ID:       img.Datetime.Format(IDFormat),
			Images:   []string{img.ID},
		})
	}
	return entries
}

// TotalImages sums the image counts of the entries at the given indices.
func TotalImages(entries []Entry, indices []int) int {
	total := 0
	for _, idx := range indices {
		total += entries[idx].ImageCount()
	}
	return total
}

// AllIndices returns 0..len(entries)-1.
func AllIndices(entries []Entry) []int {
	indices := make([]int, len(entries))
	for i := range indices {
		indices[i] = i
	}
	return indices
}

// ResetAdjusted clears the adjusted flag on every entry.
func ResetAdjusted(entries []Entry) {
	for i := range entries {
		entries[i].Adjusted = false
	}
}

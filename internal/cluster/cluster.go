// Package cluster groups timestamped images into bursts. Images belong to
// the same burst while the gap to the previous image does not exceed the
// interval; bursts smaller than the minimum size are dropped.
package cluster

import (
	"sort"
	"time"

	"focus-stacker/internal/media"
)

// Cluster is one burst, sorted by capture time ascending.
type Cluster struct {
	Assets []media.Asset
}

// Len is the number of images in the cluster.
func (c Cluster) Len() int { return len(c.Assets) }

// Start is the capture time of the first image.
func (c Cluster) Start() time.Time {
	if len(c.Assets) == 0 {
		return time.Time{}
	}
	return c.Assets[0].Taken
}

// End is the capture time of the last image.
func (c Cluster) End() time.Time {
	if len(c.Assets) == 0 {
		return time.Time{}
	}
	return c.Assets[len(c.Assets)-1].Taken
}

// Span is the time between the first and last image.
func (c Cluster) Span() time.Duration { return c.End().Sub(c.Start()) }

// Result is the outcome of Build.
type Result struct {
	// Clusters that reached the minimum size, in capture order.
	Clusters []Cluster
	// Discarded counts clusters dropped for being too small.
	Discarded int
	// DiscardedFiles counts the images in those clusters.
	DiscardedFiles int
	// Skipped counts assets that carried no timestamp.
	Skipped int
}

// Files is the number of images across all surviving clusters.
func (r Result) Files() int {
	n := 0
	for _, c := range r.Clusters {
		n += c.Len()
	}
	return n
}

// Build partitions assets into clusters. Assets are sorted by capture time
// with ties kept in input order. A gap strictly greater than interval starts
// a new cluster; a cluster is kept when it holds at least minSize images.
func Build(assets []media.Asset, interval time.Duration, minSize int) Result {
	var res Result

	sorted := make([]media.Asset, 0, len(assets))
	for _, a := range assets {
		if !a.HasTimestamp() {
			res.Skipped++
			continue
		}
		sorted = append(sorted, a)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Taken.Before(sorted[j].Taken)
	})

	var current []media.Asset
	closeCurrent := func() {
		if len(current) == 0 {
			return
		}
		if len(current) >= minSize {
			res.Clusters = append(res.Clusters, Cluster{Assets: current})
		} else {
			res.Discarded++
			res.DiscardedFiles += len(current)
		}
		current = nil
	}

	var last time.Time
	for _, a := range sorted {
		if len(current) > 0 && a.Taken.Sub(last) > interval {
			closeCurrent()
		}
		current = append(current, a)
		last = a.Taken
	}
	closeCurrent()

	return res
}

// Interval converts a gap in (fractional) seconds to a Duration.
func Interval(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// Package pack implements the packer: greedy longest-processing-time
// (LPT) bin packing of components into N buckets, exactly as specified
// in spec §4.4. The algorithm is pure — no I/O, no concurrency — and
// must be reproduced bit-for-bit to preserve cross-run determinism.
package pack

import (
	"fmt"
	"math"
	"sort"

	"github.com/kaito-project/chunkah/pkg/component"
)

// Component is the packer's view of one component: its total byte size
// and its stability score, both computed upstream by the walker/ledger
// and the stability oracle respectively.
type Component struct {
	ID        component.ID
	Size      int64
	Stability float64
}

// Bucket is one output layer: an ordered (by Components' insertion,
// immaterial) set of components, its index in 0..N-1, and its
// annotation-facing aggregated stability, already formatted per spec
// §4.4 step 5.
type Bucket struct {
	Index          int
	Components     []Component
	TotalSize      int64
	MeanStability  float64 // raw size-weighted mean, full precision
	StabilityLabel string  // formatted to three decimals, round-half-away-from-zero
}

// Pack partitions components into at most n buckets per spec §4.4.
//
//  1. If len(components) <= n, each gets its own bucket (degenerate case;
//     the returned slice may have fewer than n entries).
//  2. Otherwise components are sorted by descending size (ties by
//     ascending id), then placed greedily into the currently-lightest
//     bucket (ties by smallest bucket index) — classic LPT.
//  3. Non-empty buckets are reordered ascending by mean stability (ties
//     by ascending original bucket index) before being returned; Index
//     on the returned Bucket reflects this final emission order, not the
//     LPT placement order.
func Pack(components []Component, n int) []Bucket {
	if n <= 0 {
		n = 1
	}

	if len(components) <= n {
		sorted := make([]Component, len(components))
		copy(sorted, components)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

		buckets := make([]rawBucket, len(sorted))
		for i, c := range sorted {
			buckets[i] = rawBucket{components: []Component{c}, totalSize: c.Size}
		}
		return finalize(buckets)
	}

	sorted := make([]Component, len(components))
	copy(sorted, components)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size > sorted[j].Size
		}
		return sorted[i].ID < sorted[j].ID
	})

	buckets := make([]rawBucket, n)
	for _, c := range sorted {
		best := 0
		for i := 1; i < n; i++ {
			if buckets[i].totalSize < buckets[best].totalSize {
				best = i
			}
		}
		buckets[best].components = append(buckets[best].components, c)
		buckets[best].totalSize += c.Size
	}

	return finalize(buckets)
}

type rawBucket struct {
	components []Component
	totalSize  int64
}

// finalize drops empty buckets, computes each bucket's size-weighted
// mean stability and formatted label, then sorts ascending by that mean
// (ties by ascending original index) to produce the emission order.
func finalize(buckets []rawBucket) []Bucket {
	type indexed struct {
		rawBucket
		origIndex int
		mean      float64
	}

	nonEmpty := make([]indexed, 0, len(buckets))
	for i, b := range buckets {
		if len(b.components) == 0 {
			continue
		}
		nonEmpty = append(nonEmpty, indexed{rawBucket: b, origIndex: i, mean: weightedMean(b)})
	}

	sort.SliceStable(nonEmpty, func(i, j int) bool {
		if nonEmpty[i].mean != nonEmpty[j].mean {
			return nonEmpty[i].mean < nonEmpty[j].mean
		}
		return nonEmpty[i].origIndex < nonEmpty[j].origIndex
	})

	out := make([]Bucket, len(nonEmpty))
	for i, b := range nonEmpty {
		out[i] = Bucket{
			Index:          i,
			Components:     b.components,
			TotalSize:      b.totalSize,
			MeanStability:  b.mean,
			StabilityLabel: formatStability(b.mean),
		}
	}
	return out
}

func weightedMean(b rawBucket) float64 {
	if b.totalSize == 0 {
		// All components in the bucket are zero-byte; fall back to an
		// unweighted mean so the result stays defined.
		var sum float64
		for _, c := range b.components {
			sum += c.Stability
		}
		return sum / float64(len(b.components))
	}
	var sum float64
	for _, c := range b.components {
		sum += c.Stability * float64(c.Size)
	}
	return sum / float64(b.totalSize)
}

// formatStability renders x to three fractional digits using
// round-half-away-from-zero, per spec §4.4 step 5. strconv's usual
// round-half-to-even would occasionally disagree with the spec on an
// exact .0005 boundary, so the rounding is done explicitly before
// handing off to fmt for the fixed-width string.
func formatStability(x float64) string {
	scaled := x * 1000
	var rounded float64
	if scaled >= 0 {
		rounded = math.Floor(scaled + 0.5)
	} else {
		rounded = math.Ceil(scaled - 0.5)
	}
	return fmt.Sprintf("%.3f", rounded/1000)
}

package rtc

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const filteredDefaultMaxOffsets = 128

// FilteredRTC wraps a RangeRTC and smooths its boundary estimate with the
// median of a bounded ring history of recent phase observations, guarding
// against individual noisy intervals.
type FilteredRTC struct {
	inner    *RangeRTC
	timeline *Timeline

	MaxOffsets int

	offsets []float64 // centred on [-500, 500), representing ms-into-second

	haveAnchor   bool
	anchorLocal  int64
	anchorSecond time.Time
}

// NewFilteredRTC allocates a FilteredRTC around a fresh inner RangeRTC.
func NewFilteredRTC(slack int32, log zerolog.Logger) *FilteredRTC {
	return &FilteredRTC{
		inner:      NewRangeRTC(slack, log),
		timeline:   NewTimeline(slack),
		MaxOffsets: filteredDefaultMaxOffsets,
	}
}

// Align feeds the same (rtc, ctr) observation to the inner RangeRTC and to
// the phase ring.
func (f *FilteredRTC) Align(rtc time.Time, ctr uint16) {
	f.inner.Align(rtc, ctr)
	local := f.timeline.FeedAndTransform(ctr)

	if f.haveAnchor {
		delta := float64(local - f.anchorLocal)
		for i := range f.offsets {
			f.offsets[i] = centerPhase(f.offsets[i] + delta)
		}
	}

	if f.inner.Ready() {
		mid := (f.inner.lower + f.inner.upper) / 2
		phase := centerPhase(float64(local) - mid)
		f.offsets = append(f.offsets, phase)
		if len(f.offsets) > f.MaxOffsets {
			f.offsets = f.offsets[len(f.offsets)-f.MaxOffsets:]
		}
		f.anchorSecond = f.inner.anchorSecond
	}

	f.anchorLocal = local
	f.haveAnchor = true
}

// MapToRTC converts ctr to an absolute timestamp using the ring median of
// recent phase observations rather than the inner RangeRTC's single current
// interval, for additional stability against isolated jitter.
func (f *FilteredRTC) MapToRTC(ctr uint16) time.Time {
	if len(f.offsets) == 0 {
		return f.inner.MapToRTC(ctr)
	}

	local := f.timeline.PeekTransform(ctr)
	phase := ringMedian(f.offsets)
	deltaTicks := float64(local-f.anchorLocal) - phase
	return f.anchorSecond.Add(time.Duration(deltaTicks * float64(time.Millisecond)))
}

// Reset clears all accumulated state.
func (f *FilteredRTC) Reset() {
	f.inner.Reset()
	f.timeline.Uninitialize()
	f.offsets = nil
	f.haveAnchor = false
	f.anchorLocal = 0
	f.anchorSecond = time.Time{}
}

// Ready reports whether the inner RangeRTC has formed an interval.
func (f *FilteredRTC) Ready() bool {
	return f.inner.Ready()
}

var _ Mapper = (*FilteredRTC)(nil)

// centerPhase folds v into [-500, 500).
func centerPhase(v float64) float64 {
	for v >= 500 {
		v -= 1000
	}
	for v < -500 {
		v += 1000
	}
	return v
}

// ringMedian computes the median of a set of phase values living on a
// circle of circumference 1000 centred on [-500, 500), avoiding the false
// split a naive linear median produces when observations straddle the seam
// at +/-500: it locates the widest gap between consecutive sorted values,
// treats that gap as the ring's seam, unwraps the circle into a line at
// that point, and computes a standard median there.
func ringMedian(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n == 1 {
		return sorted[0]
	}

	seam := 0
	maxGap := sorted[0] + 1000 - sorted[n-1]
	for i := 1; i < n; i++ {
		gap := sorted[i] - sorted[i-1]
		if gap > maxGap {
			maxGap = gap
			seam = i
		}
	}

	if maxGap < 500 {
		return linearMedian(sorted)
	}

	unwrapped := make([]float64, n)
	copy(unwrapped, sorted[seam:])
	for i, v := range sorted[:seam] {
		unwrapped[n-seam+i] = v + 1000
	}

	m := linearMedian(unwrapped)
	if m >= 500 {
		m -= 1000
	}
	return m
}

func linearMedian(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

package rtc

import (
	"math"
	"time"

	"github.com/rs/zerolog"
)

// RangeRTC maps a free-running millisecond counter to wall-clock time by
// narrowing an interval that brackets each observed second boundary.
//
// The remote counter ticks roughly once per millisecond; the wall clock is
// only known at integer-second granularity. Two consecutive aligns that
// report the same wall-clock second give no information about where the
// boundary into that second falls; two that report different seconds
// bracket the boundary between the counter readings of those two aligns.
// Successive brackets are projected forward by the nominal one-second
// (1000-tick) advance and intersected, which narrows the estimate over
// time; a bracket that no longer overlaps the projection (jitter) resets
// to a smaller window centred on the previous estimate, per spec.
type RangeRTC struct {
	timeline *Timeline
	log      zerolog.Logger

	haveLast   bool
	lastSecond time.Time
	lastLocal  int64

	haveInterval bool
	lower, upper float64
	anchorSecond time.Time
}

// NewRangeRTC allocates a RangeRTC. slack is passed through to the internal
// Timeline (see Timeline for its meaning).
func NewRangeRTC(slack int32, log zerolog.Logger) *RangeRTC {
	return &RangeRTC{
		timeline: NewTimeline(slack),
		log:      log,
	}
}

// Align records a wall-clock second observed alongside the counter ctr.
func (r *RangeRTC) Align(rtc time.Time, ctr uint16) {
	sec := rtc.Truncate(time.Second)
	local := r.timeline.FeedAndTransform(ctr)

	if !r.haveLast {
		r.lastSecond, r.lastLocal = sec, local
		r.haveLast = true
		return
	}

	if !sec.Equal(r.lastSecond) {
		candLower, candUpper := float64(r.lastLocal), float64(local)

		switch {
		case !r.haveInterval:
			r.lower, r.upper = candLower, candUpper

		default:
			wholeSeconds := int64(sec.Sub(r.anchorSecond) / time.Second)
			if wholeSeconds < 1 {
				wholeSeconds = 1
			}
			projectedLower := r.lower + 1000*float64(wholeSeconds)
			projectedUpper := r.upper + 1000*float64(wholeSeconds)

			nl := math.Max(projectedLower, candLower)
			nu := math.Min(projectedUpper, candUpper)

			if nl > nu {
				width := 0.2 * (candUpper - candLower)
				mid := (projectedLower + projectedUpper) / 2
				nl, nu = mid-width/2, mid+width/2
				r.log.Warn().
					Time("rtc", rtc).
					Float64("projected_lower", projectedLower).
					Float64("projected_upper", projectedUpper).
					Float64("candidate_lower", candLower).
					Float64("candidate_upper", candUpper).
					Msg("range RTC reconciliation produced an empty interval, widening around previous midpoint")
			}

			r.lower, r.upper = nl, nu
		}

		r.haveInterval = true
		r.anchorSecond = sec
	}

	r.lastSecond, r.lastLocal = sec, local
}

// MapToRTC converts ctr to an absolute timestamp using the current
// boundary estimate.
func (r *RangeRTC) MapToRTC(ctr uint16) time.Time {
	local := r.timeline.PeekTransform(ctr)
	mid := (r.lower + r.upper) / 2
	deltaMs := float64(local) - mid
	return r.anchorSecond.Add(time.Duration(deltaMs * float64(time.Millisecond)))
}

// Reset clears all accumulated state.
func (r *RangeRTC) Reset() {
	r.timeline.Uninitialize()
	r.haveLast = false
	r.haveInterval = false
	r.lower, r.upper = 0, 0
	r.lastSecond = time.Time{}
	r.anchorSecond = time.Time{}
}

// Ready reports whether at least one second-boundary bracket has formed.
func (r *RangeRTC) Ready() bool {
	return r.haveInterval
}

var _ Mapper = (*RangeRTC)(nil)

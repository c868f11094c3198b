package rtc

import (
	"time"
)

const (
	linearDefaultMaxHistory  = 32
	linearDefaultJumpSeconds = 60
	linearReadyAfterNAligns  = 10
)

type linearEntry struct {
	rtc    time.Time
	offset time.Duration // how far in the past (in Timeline ms) this sample now sits, negated
}

// LinearRTC maps the counter to wall-clock time by averaging the deviation
// between a bounded history of past aligns, extrapolated to the present
// using the Timeline, and the newly observed wall clock. A deviation larger
// than JumpThreshold is treated as a clock jump and resets the history.
type LinearRTC struct {
	timeline *Timeline

	MaxHistory    int
	JumpThreshold time.Duration

	history []linearEntry
	aligns  int

	haveAnchor     bool
	anchorEpoch    time.Time
	anchorLocalTip int64
}

// NewLinearRTC allocates a LinearRTC with the spec's default jump threshold
// (60s) and a bounded history of the most recent aligns.
func NewLinearRTC(slack int32) *LinearRTC {
	return &LinearRTC{
		timeline:      NewTimeline(slack),
		MaxHistory:    linearDefaultMaxHistory,
		JumpThreshold: linearDefaultJumpSeconds * time.Second,
	}
}

// Align records a wall-clock observation alongside the counter ctr.
func (l *LinearRTC) Align(rtc time.Time, ctr uint16) {
	prevTip := l.timeline.localTip
	newLocal := l.timeline.FeedAndTransform(ctr)
	delta := newLocal - prevTip

	for i := range l.history {
		l.history[i].offset -= time.Duration(delta) * time.Millisecond
	}
	l.history = append(l.history, linearEntry{rtc: rtc, offset: 0})
	if len(l.history) > l.MaxHistory {
		l.history = l.history[len(l.history)-l.MaxHistory:]
	}

	var sum time.Duration
	for _, e := range l.history {
		predicted := e.rtc.Add(-e.offset)
		sum += predicted.Sub(rtc)
	}
	avgDeviation := sum / time.Duration(len(l.history))

	if avgDeviation < -l.JumpThreshold || avgDeviation > l.JumpThreshold {
		l.history = []linearEntry{{rtc: rtc, offset: 0}}
		avgDeviation = 0
	}

	l.anchorEpoch = rtc.Add(avgDeviation)
	l.anchorLocalTip = newLocal
	l.haveAnchor = true
	l.aligns++
}

// MapToRTC converts ctr to an absolute timestamp by extrapolating from the
// most recent anchor using the Timeline.
func (l *LinearRTC) MapToRTC(ctr uint16) time.Time {
	local := l.timeline.PeekTransform(ctr)
	deltaMs := local - l.anchorLocalTip
	return l.anchorEpoch.Add(time.Duration(deltaMs) * time.Millisecond)
}

// Reset clears all accumulated state.
func (l *LinearRTC) Reset() {
	l.timeline.Uninitialize()
	l.history = nil
	l.aligns = 0
	l.haveAnchor = false
	l.anchorEpoch = time.Time{}
	l.anchorLocalTip = 0
}

// Ready reports whether at least linearReadyAfterNAligns aligns have been observed.
func (l *LinearRTC) Ready() bool {
	return l.aligns >= linearReadyAfterNAligns
}

var _ Mapper = (*LinearRTC)(nil)

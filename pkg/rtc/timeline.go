// Package rtc reconstructs absolute wall-clock timestamps from a
// free-running, wrapping millisecond counter observed alongside occasional
// 1 Hz wall-clock ticks. It plays the same role for sensor-node uptime
// counters that rtptimedec plays for RTP timestamps: absorb the wraparound
// of a narrow hardware counter into a monotonically growing 64-bit value.
package rtc

import "github.com/horazont/metric-relay/internal/serialnum"

// Timeline converts a 16-bit remote counter into a 64-bit monotonically
// increasing local counter, never losing a wraparound.
type Timeline struct {
	remoteTip uint16
	localTip  int64
	slack     int32

	initialized bool
}

// NewTimeline allocates a Timeline. A step whose backward distance is below
// slack is taken as a backward jump (a negative difference); any other step
// is taken as forward progress. The specification recommends values in
// [1000, 30000].
func NewTimeline(slack int32) *Timeline {
	return &Timeline{slack: slack}
}

// FeedAndTransform computes the wrap-aware signed difference between remote
// and the last-seen remote tip, adds it to the local tip, and returns the
// updated local tip.
func (tl *Timeline) FeedAndTransform(remote uint16) int64 {
	if !tl.initialized {
		tl.remoteTip = remote
		tl.localTip = 0
		tl.initialized = true
		return tl.localTip
	}

	diff := serialnum.WrapDiff(remote, tl.remoteTip, tl.slack)
	tl.localTip += int64(diff)
	tl.remoteTip = remote
	return tl.localTip
}

// Reset re-anchors the timeline at a new remote tip with local tip zero.
func (tl *Timeline) Reset(newTip uint16) {
	tl.remoteTip = newTip
	tl.localTip = 0
	tl.initialized = true
}

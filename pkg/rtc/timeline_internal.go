package rtc

import "github.com/horazont/metric-relay/internal/serialnum"

// PeekTransform computes what FeedAndTransform would return for remote
// without mutating state. RTC mappers use this to evaluate MapToRTC for a
// counter value that has not itself been fed through Align.
func (tl *Timeline) PeekTransform(remote uint16) int64 {
	if !tl.initialized {
		return 0
	}
	diff := serialnum.WrapDiff(remote, tl.remoteTip, tl.slack)
	return tl.localTip + diff
}

// Uninitialize clears the anchor so the next FeedAndTransform call behaves
// like the very first one again.
func (tl *Timeline) Uninitialize() {
	tl.initialized = false
	tl.remoteTip = 0
	tl.localTip = 0
}

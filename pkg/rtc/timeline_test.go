package rtc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimelineFirstFeedIsZero(t *testing.T) {
	tl := NewTimeline(30000)
	require.Equal(t, int64(0), tl.FeedAndTransform(1000))
}

func TestTimelineMonotonicForward(t *testing.T) {
	tl := NewTimeline(30000)
	var prev int64
	first := true
	for _, ctr := range []uint16{0, 100, 500, 900, 30000, 55000, 65400, 300, 1000} {
		got := tl.FeedAndTransform(ctr)
		if !first {
			require.Greater(t, got, prev)
		}
		prev = got
		first = false
	}
}

func TestTimelineWrapsForward(t *testing.T) {
	tl := NewTimeline(1000)
	require.Equal(t, int64(0), tl.FeedAndTransform(65500))
	// wraps past 65535 to 100: forward distance is 136, since the backward
	// distance (65400) is not below the slack
	got := tl.FeedAndTransform(100)
	require.Equal(t, int64(136), got)
}

func TestTimelineReset(t *testing.T) {
	tl := NewTimeline(1000)
	tl.FeedAndTransform(40000)
	tl.Reset(500)
	require.Equal(t, int64(500), tl.FeedAndTransform(1000))
}

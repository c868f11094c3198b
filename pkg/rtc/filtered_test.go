package rtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCenterPhaseFolding(t *testing.T) {
	require.InDelta(t, -500.0, centerPhase(500), 0.0001)
	require.InDelta(t, 0.0, centerPhase(1000), 0.0001)
	require.InDelta(t, -10.0, centerPhase(-10), 0.0001)
	require.InDelta(t, -10.0, centerPhase(990), 0.0001)
}

func TestRingMedianTightCluster(t *testing.T) {
	got := ringMedian([]float64{10, 20, 30})
	require.InDelta(t, 20.0, got, 0.0001)
}

func TestRingMedianAcrossSeam(t *testing.T) {
	got := ringMedian([]float64{480, 490, -480, -490})
	require.InDelta(t, -500.0, got, 0.0001)
}

func TestFilteredRTCReadyMirrorsInner(t *testing.T) {
	f := NewFilteredRTC(30000, testLogger())
	require.False(t, f.Ready())
	f.Align(dt0, 0)
	require.False(t, f.Ready())
	f.Align(dt0.Add(time.Second), 1000)
	require.True(t, f.Ready())
}

func TestFilteredRTCReset(t *testing.T) {
	f := NewFilteredRTC(30000, testLogger())
	f.Align(dt0, 0)
	f.Align(dt0.Add(time.Second), 1000)
	require.True(t, f.Ready())
	f.Reset()
	require.False(t, f.Ready())
}

func TestFilteredRTCMonotonicWithinAnchor(t *testing.T) {
	f := NewFilteredRTC(30000, testLogger())
	f.Align(dt0, 0)
	f.Align(dt0.Add(time.Second), 1000)

	var prev time.Time
	for i, ctr := range []uint16{1000, 1200, 1500, 1999} {
		got := f.MapToRTC(ctr)
		if i > 0 {
			require.True(t, got.After(prev))
		}
		prev = got
	}
}

package graph

import (
	"testing"
	"time"

	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSummaryComputesStatsPerChunk(t *testing.T) {
	src := newStubStreamSource(4)
	s := NewSummary(src, 3, 4, zerolog.Nop())
	sub := s.SubscribeSamples()

	path := testPath("imu", "a")
	scale := model.Value{Magnitude: 32767}
	blk := i16Block(path, time.Unix(0, 0).UTC(), 10*time.Millisecond, scale, 0, 16384, 32767)
	src.Publish(blk)

	r, ok := recvWithTimeout(sub, time.Second)
	require.True(t, ok)

	min, _ := r.Get("min")
	max, _ := r.Get("max")
	avg, _ := r.Get("avg")
	require.InDelta(t, 0, min.Magnitude, 1e-6)
	require.InDelta(t, 32767, max.Magnitude, 1e-6)
	require.InDelta(t, (0.0+16384.0+32767.0)/3, avg.Magnitude, 1e-3)

	src.Close()
	s.Stop()
}

func TestSummaryDropsTrailingPartialChunk(t *testing.T) {
	src := newStubStreamSource(4)
	s := NewSummary(src, 4, 4, zerolog.Nop())
	sub := s.SubscribeSamples()

	path := testPath("imu", "a")
	blk := i16Block(path, time.Unix(0, 0).UTC(), 10*time.Millisecond, model.Value{Magnitude: 1}, 1, 2, 3, 4, 5, 6)
	src.Publish(blk)

	_, ok := recvWithTimeout(sub, time.Second)
	require.True(t, ok)

	src.Close()
	s.Stop()

	_, ok = recvWithTimeout(sub, 100*time.Millisecond)
	require.False(t, ok)
}

func TestSummarySkipsChunkWithAllMaskedEntries(t *testing.T) {
	src := newStubStreamSource(4)
	s := NewSummary(src, 2, 4, zerolog.Nop())
	sub := s.SubscribeSamples()

	path := testPath("imu", "a")
	m := model.NewMaskedArray[int16](4)
	// first chunk [0:2) left entirely invalid
	m.Set(2, 100)
	m.Set(3, 200)
	blk := model.StreamBlock{
		T0:     time.Unix(0, 0).UTC(),
		Period: 10 * time.Millisecond,
		Path:   path,
		Scale:  model.Value{Magnitude: 1},
		Data:   model.NewRawDataI16(m),
	}
	src.Publish(blk)

	r, ok := recvWithTimeout(sub, time.Second)
	require.True(t, ok)
	avg, _ := r.Get("avg")
	require.InDelta(t, (100.0/32767.0+200.0/32767.0)/2, avg.Magnitude, 1e-6)

	src.Close()
	s.Stop()

	_, ok = recvWithTimeout(sub, 100*time.Millisecond)
	require.False(t, ok)
}

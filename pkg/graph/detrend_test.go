package graph

import (
	"testing"
	"time"

	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDetrendConstantSubtractsMean(t *testing.T) {
	src := newStubStreamSource(4)
	d := NewDetrend(src, DetrendConstant, 4, zerolog.Nop())
	sub := d.SubscribeStreams()

	path := testPath("imu", "a")
	blk := i16Block(path, time.Unix(0, 0).UTC(), 10*time.Millisecond, model.Value{Magnitude: 1}, 10, 20, 30)
	src.Publish(blk)

	out, ok := recvWithTimeout(sub, time.Second)
	require.True(t, ok)
	require.Equal(t, int16(-10), out.Data.I16.Values[0])
	require.Equal(t, int16(0), out.Data.I16.Values[1])
	require.Equal(t, int16(10), out.Data.I16.Values[2])

	src.Close()
	d.Stop()
}

func TestDetrendLinearRemovesRamp(t *testing.T) {
	src := newStubStreamSource(4)
	d := NewDetrend(src, DetrendLinear, 4, zerolog.Nop())
	sub := d.SubscribeStreams()

	path := testPath("imu", "a")
	blk := i16Block(path, time.Unix(0, 0).UTC(), 10*time.Millisecond, model.Value{Magnitude: 1}, 0, 10, 20, 30)
	src.Publish(blk)

	out, ok := recvWithTimeout(sub, time.Second)
	require.True(t, ok)
	for i := 0; i < 4; i++ {
		require.InDelta(t, 0, int(out.Data.I16.Values[i]), 1)
	}

	src.Close()
	d.Stop()
}

func TestDetrendSkipsMaskedEntries(t *testing.T) {
	src := newStubStreamSource(4)
	d := NewDetrend(src, DetrendConstant, 4, zerolog.Nop())
	sub := d.SubscribeStreams()

	path := testPath("imu", "a")
	m := model.NewMaskedArray[int16](3)
	m.Set(0, 10)
	// index 1 left unset/invalid
	m.Set(2, 30)
	blk := model.StreamBlock{
		T0:     time.Unix(0, 0).UTC(),
		Period: 10 * time.Millisecond,
		Path:   path,
		Scale:  model.Value{Magnitude: 1},
		Data:   model.NewRawDataI16(m),
	}
	src.Publish(blk)

	out, ok := recvWithTimeout(sub, time.Second)
	require.True(t, ok)
	require.False(t, out.Data.I16.Valid[1])
	require.Equal(t, int16(-10), out.Data.I16.Values[0])
	require.Equal(t, int16(10), out.Data.I16.Values[2])

	src.Close()
	d.Stop()
}

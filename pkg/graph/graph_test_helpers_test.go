package graph

import (
	"time"

	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/horazont/metric-relay/pkg/model"
)

type stubSampleSource struct {
	b *ringbuf.Broadcaster[*model.Readout]
}

func newStubSampleSource(capacity int) *stubSampleSource {
	return &stubSampleSource{b: ringbuf.NewBroadcaster[*model.Readout](capacity)}
}

func (s *stubSampleSource) SubscribeSamples() *ringbuf.Subscription[*model.Readout] {
	return s.b.Subscribe()
}

func (s *stubSampleSource) Publish(r *model.Readout) { s.b.Publish(r) }
func (s *stubSampleSource) Close()                   { s.b.Close() }

type stubStreamSource struct {
	b *ringbuf.Broadcaster[model.StreamBlock]
}

func newStubStreamSource(capacity int) *stubStreamSource {
	return &stubStreamSource{b: ringbuf.NewBroadcaster[model.StreamBlock](capacity)}
}

func (s *stubStreamSource) SubscribeStreams() *ringbuf.Subscription[model.StreamBlock] {
	return s.b.Subscribe()
}

func (s *stubStreamSource) Publish(blk model.StreamBlock) { s.b.Publish(blk) }
func (s *stubStreamSource) Close()                        { s.b.Close() }

func testPath(deviceType, instance string) model.DevicePath {
	return model.DevicePath{DeviceType: deviceType, Instance: instance}
}

func i16Block(path model.DevicePath, t0 time.Time, period time.Duration, scale model.Value, vals ...int16) model.StreamBlock {
	m := model.NewMaskedArray[int16](len(vals))
	for i, v := range vals {
		m.Set(i, v)
	}
	return model.StreamBlock{
		T0:     t0,
		Period: period,
		Path:   path,
		Scale:  scale,
		Data:   model.NewRawDataI16(m),
	}
}

func recvWithTimeout[T any](sub *ringbuf.Subscription[T], timeout time.Duration) (T, bool) {
	type result struct {
		v  T
		ok bool
	}
	ch := make(chan result, 1)
	go func() {
		v, _, ok := sub.Next()
		ch <- result{v, ok}
	}()
	select {
	case r := <-ch:
		return r.v, r.ok
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// Package graph implements the sample/stream task graph: sources, sinks,
// routers and converters wired together over bounded broadcast channels.
package graph

import (
	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/horazont/metric-relay/pkg/model"
)

// Default broadcast channel capacities, per the subscriber channel
// interface: 8 for control, 128 for sample routers, 384-1024 for sensor
// sources.
const (
	ControlCapacity      = 8
	SampleRouterCapacity = 128
	StreamSourceCapacity = 512
)

// SampleSource exposes a fresh broadcast reader of sample readouts.
// Readouts are shared by reference; a consumer that needs to mutate one
// must Clone it first.
type SampleSource interface {
	SubscribeSamples() *ringbuf.Subscription[*model.Readout]
}

// StreamSource exposes a fresh broadcast reader of stream blocks.
type StreamSource interface {
	SubscribeStreams() *ringbuf.Subscription[model.StreamBlock]
}

// SampleSink accepts one sample source to drain.
type SampleSink interface {
	AttachSampleSource(src SampleSource)
}

// StreamSink accepts one stream source to drain.
type StreamSink interface {
	AttachStreamSource(src StreamSource)
}

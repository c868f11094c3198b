package graph

import (
	"time"

	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
)

// Samplify is the inverse of Streamify: it expands each element of an
// incoming StreamBlock back into an individual sample readout, timestamped
// at block.T0 + i*block.Period.
type Samplify struct {
	log         zerolog.Logger
	component   string
	sub         *ringbuf.Subscription[model.StreamBlock]
	broadcaster *ringbuf.Broadcaster[*model.Readout]
	done        chan struct{}
}

// NewSamplify starts a Samplify reading from src, emitting the expanded
// component under name component ("value" if empty).
func NewSamplify(src StreamSource, component string, capacity int, log zerolog.Logger) *Samplify {
	if component == "" {
		component = "value"
	}
	s := &Samplify{
		log:         log,
		component:   component,
		sub:         src.SubscribeStreams(),
		broadcaster: ringbuf.NewBroadcaster[*model.Readout](capacity),
		done:        make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Samplify) run() {
	defer close(s.done)
	defer s.broadcaster.Close()
	for {
		blk, lag, ok := s.sub.Next()
		if !ok {
			return
		}
		if lag > 0 {
			s.log.Warn().Int("lag", lag).Msg("samplify input lagged")
		}
		s.emit(blk)
	}
}

func (s *Samplify) emit(blk model.StreamBlock) {
	n := blk.Data.Len()
	for i := 0; i < n; i++ {
		norm, ok := normalisedValue(blk, i)
		if !ok {
			continue
		}
		ts := blk.T0.Add(time.Duration(i) * blk.Period)
		r := model.NewReadout(ts, blk.Path)
		r.Set(s.component, model.Value{
			Magnitude: blk.Scale.Magnitude * norm,
			Unit:      blk.Scale.Unit,
		})
		s.broadcaster.Publish(r)
	}
}

// SubscribeSamples implements SampleSource.
func (s *Samplify) SubscribeSamples() *ringbuf.Subscription[*model.Readout] {
	return s.broadcaster.Subscribe()
}

// Stop terminates Samplify's worker at its next suspension point.
func (s *Samplify) Stop() {
	s.sub.Close()
	<-s.done
}

package graph

import (
	"math"
	"time"

	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
)

// Summary is a sink+source that chunks each incoming StreamBlock into
// groups of chunkSize samples and emits one readout per chunk holding
// min/max/avg/rms/stddev components. A trailing partial chunk is dropped.
type Summary struct {
	log         zerolog.Logger
	chunkSize   int
	pool        *Pool
	sub         *ringbuf.Subscription[model.StreamBlock]
	broadcaster *ringbuf.Broadcaster[*model.Readout]
	done        chan struct{}
}

// NewSummary starts a Summary node reading from src.
func NewSummary(src StreamSource, chunkSize int, capacity int, log zerolog.Logger) *Summary {
	s := &Summary{
		log:         log,
		chunkSize:   chunkSize,
		pool:        NewPool(capacity),
		sub:         src.SubscribeStreams(),
		broadcaster: ringbuf.NewBroadcaster[*model.Readout](capacity),
		done:        make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Summary) run() {
	defer close(s.done)
	for {
		blk, lag, ok := s.sub.Next()
		if !ok {
			break
		}
		if lag > 0 {
			s.log.Warn().Int("lag", lag).Msg("summary input lagged")
		}
		s.pool.Submit(func() { s.process(blk) })
	}
	s.pool.Close()
	s.broadcaster.Close()
}

func (s *Summary) process(blk model.StreamBlock) {
	n := blk.Data.Len()
	for base := 0; base+s.chunkSize <= n; base += s.chunkSize {
		var sum, sumSq float64
		var min, max float64
		var count int
		for i := 0; i < s.chunkSize; i++ {
			norm, ok := normalisedValue(blk, base+i)
			if !ok {
				continue
			}
			v := norm * blk.Scale.Magnitude
			if count == 0 || v < min {
				min = v
			}
			if count == 0 || v > max {
				max = v
			}
			sum += v
			sumSq += v * v
			count++
		}
		if count == 0 {
			continue
		}
		avg := sum / float64(count)
		rms := math.Sqrt(sumSq / float64(count))
		variance := sumSq/float64(count) - avg*avg
		if variance < 0 {
			variance = 0
		}
		stddev := math.Sqrt(variance)

		ts := blk.T0.Add(time.Duration(base) * blk.Period)
		r := model.NewReadout(ts, blk.Path)
		unit := blk.Scale.Unit
		r.Set("min", model.Value{Magnitude: min, Unit: unit})
		r.Set("max", model.Value{Magnitude: max, Unit: unit})
		r.Set("avg", model.Value{Magnitude: avg, Unit: unit})
		r.Set("rms", model.Value{Magnitude: rms, Unit: unit})
		r.Set("stddev", model.Value{Magnitude: stddev, Unit: unit})
		s.broadcaster.Publish(r)
	}
}

// SubscribeSamples implements SampleSource.
func (s *Summary) SubscribeSamples() *ringbuf.Subscription[*model.Readout] {
	return s.broadcaster.Subscribe()
}

// Stop terminates Summary's worker at its next suspension point.
func (s *Summary) Stop() {
	s.sub.Close()
	<-s.done
}

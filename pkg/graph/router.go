package graph

import (
	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
)

// Router applies an ordered pipeline of Filters to each inbound readout,
// publishing survivors to its own output broadcast channel. It owns one
// worker and exits when its upstream source closes or Stop is called.
type Router struct {
	log         zerolog.Logger
	filters     []Filter
	sub         *ringbuf.Subscription[*model.Readout]
	broadcaster *ringbuf.Broadcaster[*model.Readout]
	done        chan struct{}
}

// NewRouter starts a Router reading from src and applying filters in order.
func NewRouter(src SampleSource, filters []Filter, capacity int, log zerolog.Logger) *Router {
	r := &Router{
		log:         log,
		filters:     filters,
		sub:         src.SubscribeSamples(),
		broadcaster: ringbuf.NewBroadcaster[*model.Readout](capacity),
		done:        make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Router) run() {
	defer close(r.done)
	defer r.broadcaster.Close()
	for {
		item, lag, ok := r.sub.Next()
		if !ok {
			return
		}
		if lag > 0 {
			r.log.Warn().Int("lag", lag).Msg("router input lagged")
		}
		cur := item
		keep := true
		for _, f := range r.filters {
			cur, keep = f.Apply(cur)
			if !keep {
				break
			}
		}
		if keep {
			r.broadcaster.Publish(cur)
		}
	}
}

// SubscribeSamples implements SampleSource.
func (r *Router) SubscribeSamples() *ringbuf.Subscription[*model.Readout] {
	return r.broadcaster.Subscribe()
}

// Stop terminates the router's worker at its next suspension point.
func (r *Router) Stop() {
	r.sub.Close()
	<-r.done
}

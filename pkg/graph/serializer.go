package graph

import (
	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/rs/zerolog"
)

// Serializer adapts a multi-consumer broadcast Subscription into a single
// bounded queue drained by one worker. On producer close it exits cleanly;
// on lag it logs and continues.
type Serializer[T any] struct {
	log  zerolog.Logger
	sub  *ringbuf.Subscription[T]
	out  chan T
	done chan struct{}
}

// NewSerializer starts draining sub into a channel of the given capacity.
func NewSerializer[T any](sub *ringbuf.Subscription[T], capacity int, log zerolog.Logger) *Serializer[T] {
	s := &Serializer[T]{
		log:  log,
		sub:  sub,
		out:  make(chan T, capacity),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Serializer[T]) run() {
	defer close(s.done)
	defer close(s.out)
	for {
		v, lag, ok := s.sub.Next()
		if !ok {
			return
		}
		if lag > 0 {
			s.log.Warn().Int("lag", lag).Msg("serializer subscriber fell behind, skipped items")
		}
		s.out <- v
	}
}

// C returns the drained output channel; it closes once the upstream
// broadcaster closes or Stop is called.
func (s *Serializer[T]) C() <-chan T {
	return s.out
}

// Stop terminates the serializer's worker at its next suspension point.
func (s *Serializer[T]) Stop() {
	s.sub.Close()
	<-s.done
}

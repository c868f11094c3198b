// Command metric-relay runs a relay TCP listener that accepts forwarded
// sensor readouts and stream blocks from node-side collectors, filters
// readouts against a small sanity table, and logs everything that survives.
//
// Graph wiring and node configuration are out of scope for the core
// library; this binary wires one fixed pipeline in Go, in the style of
// bluenviron-gortsplib's examples/server.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/horazont/metric-relay/pkg/graph"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/horazont/metric-relay/pkg/relay"
	"github.com/rs/zerolog"
)

// sampleBroadcastSource adapts a ringbuf.Broadcaster to graph.SampleSource.
type sampleBroadcastSource struct {
	b *ringbuf.Broadcaster[*model.Readout]
}

func (s sampleBroadcastSource) SubscribeSamples() *ringbuf.Subscription[*model.Readout] {
	return s.b.Subscribe()
}

// streamBroadcastSource adapts a ringbuf.Broadcaster to graph.StreamSource.
type streamBroadcastSource struct {
	b *ringbuf.Broadcaster[model.StreamBlock]
}

func (s streamBroadcastSource) SubscribeStreams() *ringbuf.Subscription[model.StreamBlock] {
	return s.b.Subscribe()
}

// ingestHandler implements relay.DataHandler, republishing everything the
// relay session hands it onto in-process broadcast channels so the graph
// package can filter and expand it exactly as it would any other source.
type ingestHandler struct {
	readouts *ringbuf.Broadcaster[*model.Readout]
	streams  *ringbuf.Broadcaster[model.StreamBlock]
}

func (h *ingestHandler) HandleReadout(r *model.Readout) {
	h.readouts.Publish(r)
}

func (h *ingestHandler) HandleStreamBlock(blk model.StreamBlock) {
	h.streams.Publish(blk)
}

func logReadouts(sub *ringbuf.Subscription[*model.Readout], log zerolog.Logger) {
	for {
		r, lag, ok := sub.Next()
		if !ok {
			return
		}
		if lag > 0 {
			log.Warn().Int("lag", lag).Msg("readout log sink lagged")
		}
		ev := log.Info().
			Time("timestamp", r.Timestamp).
			Str("device_type", r.Path.DeviceType).
			Str("instance", r.Path.Instance)
		for _, name := range r.Names() {
			v, _ := r.Get(name)
			ev = ev.Float64(name, v.Magnitude)
		}
		ev.Msg("readout")
	}
}

func logStreamBlocks(sub *ringbuf.Subscription[model.StreamBlock], log zerolog.Logger) {
	for {
		blk, lag, ok := sub.Next()
		if !ok {
			return
		}
		if lag > 0 {
			log.Warn().Int("lag", lag).Msg("stream block log sink lagged")
		}
		log.Info().
			Time("t0", blk.T0).
			Str("device_type", blk.Path.DeviceType).
			Str("instance", blk.Path.Instance).
			Dur("period", blk.Period).
			Int("samples", blk.Data.Len()).
			Msg("stream block")
	}
}

func main() {
	listenAddr := flag.String("listen", ":7590", "address to accept relay connections on")
	softTimeout := flag.Duration("soft-timeout", 5*time.Second, "idle time before a keepalive Ping is sent")
	hardTimeout := flag.Duration("hard-timeout", 30*time.Second, "idle time before a session is dropped")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	listener, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatal().Err(err).Str("listen", *listenAddr).Msg("could not open relay listener")
	}

	handler := &ingestHandler{
		readouts: ringbuf.NewBroadcaster[*model.Readout](graph.SampleRouterCapacity),
		streams:  ringbuf.NewBroadcaster[model.StreamBlock](graph.StreamSourceCapacity),
	}

	sanity := &graph.KeepIfPlausibleFilter{
		Ranges: []graph.PlausibleRange{
			{DeviceType: "bme280", Component: "temperature", Min: -40, Max: 85},
			{DeviceType: "bme280", Component: "humidity", Min: 0, Max: 100},
		},
	}
	router := graph.NewRouter(sampleBroadcastSource{handler.readouts}, []graph.Filter{sanity}, graph.SampleRouterCapacity, log.With().Str("node", "sanity-router").Logger())
	defer router.Stop()

	expanded := graph.NewSamplify(streamBroadcastSource{handler.streams}, "value", graph.SampleRouterCapacity, log.With().Str("node", "samplify").Logger())
	defer expanded.Stop()

	go logReadouts(router.SubscribeSamples(), log.With().Str("sink", "readouts").Logger())
	go logReadouts(expanded.SubscribeSamples(), log.With().Str("sink", "expanded-streams").Logger())
	go logStreamBlocks(streamBroadcastSource{handler.streams}.SubscribeStreams(), log.With().Str("sink", "raw-streams").Logger())

	srv := relay.NewServer(listener, handler, *softTimeout, *hardTimeout, log.With().Str("node", "relay-server").Logger())
	log.Info().Str("listen", *listenAddr).Msg("relay server ready")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	if err := srv.Close(); err != nil {
		log.Warn().Err(err).Msg("error while closing relay server")
	}
}

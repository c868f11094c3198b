package graph

import (
	"math"
	"time"

	"github.com/horazont/metric-relay/internal/ringbuf"
	"github.com/horazont/metric-relay/internal/serialnum"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/horazont/metric-relay/pkg/streambuffer"
	"github.com/rs/zerolog"
)

// StreamifyRegistration names one (device_path, component) pair to
// accumulate into stream blocks, with the period/slice/scale the resulting
// blocks carry.
type StreamifyRegistration struct {
	Path      model.DevicePath
	Component string
	Period    time.Duration
	Slice     time.Duration
	Scale     model.Value
}

type streamifyKey struct {
	path      model.DevicePath
	component string
}

type streamifyState struct {
	reg      StreamifyRegistration
	buf      *streambuffer.InMemoryBuffer
	lastT0   time.Time
	haveLast bool
	seq      serialnum.SerialNumber
}

// Streamify is a sink+source that reads sample readouts and, for each
// registered (device_path, component), accumulates the named component
// into slice-aligned StreamBlocks.
type Streamify struct {
	log         zerolog.Logger
	states      map[streamifyKey]*streamifyState
	sub         *ringbuf.Subscription[*model.Readout]
	broadcaster *ringbuf.Broadcaster[model.StreamBlock]
	done        chan struct{}
}

// NewStreamify starts a Streamify reading from src for the given
// registrations.
func NewStreamify(src SampleSource, regs []StreamifyRegistration, capacity int, log zerolog.Logger) *Streamify {
	s := &Streamify{
		log:         log,
		states:      make(map[streamifyKey]*streamifyState, len(regs)),
		sub:         src.SubscribeSamples(),
		broadcaster: ringbuf.NewBroadcaster[model.StreamBlock](capacity),
		done:        make(chan struct{}),
	}
	for _, reg := range regs {
		key := streamifyKey{path: reg.Path, component: reg.Component}
		s.states[key] = &streamifyState{
			reg: reg,
			buf: streambuffer.NewInMemoryBuffer(reg.Slice),
		}
	}
	go s.run()
	return s
}

func (s *Streamify) run() {
	defer close(s.done)
	defer s.broadcaster.Close()
	for {
		item, lag, ok := s.sub.Next()
		if !ok {
			return
		}
		if lag > 0 {
			s.log.Warn().Int("lag", lag).Msg("streamify input lagged")
		}
		s.ingest(item)
	}
}

func (s *Streamify) ingest(r *model.Readout) {
	for key, st := range s.states {
		if key.path != r.Path {
			continue
		}
		v, ok := r.Get(key.component)
		if !ok {
			continue
		}
		s.ingestOne(st, r.Timestamp, v)
	}
}

func (s *Streamify) ingestOne(st *streamifyState, ts time.Time, v model.Value) {
	t0 := ts.Truncate(st.reg.Period)
	if st.haveLast && !t0.After(st.lastT0) {
		s.log.Warn().
			Str("component", st.reg.Component).
			Time("timestamp", t0).
			Msg("streamify dropping non-increasing timestamp")
		return
	}

	var seq serialnum.SerialNumber
	if st.haveLast {
		periods := int32(t0.Sub(st.lastT0) / st.reg.Period)
		seq = st.seq.Add(periods)
	}
	st.lastT0, st.seq, st.haveLast = t0, seq, true

	data := model.NewRawDataI16(model.NewMaskedArray[int16](1))
	norm := v.Magnitude
	if st.reg.Scale.Magnitude != 0 {
		norm /= st.reg.Scale.Magnitude
	}
	data.I16.Set(0, denormaliseI16(norm))

	if err := st.buf.Write(t0, seq, st.reg.Period, st.reg.Path, st.reg.Scale, data); err != nil {
		s.log.Warn().Err(err).Str("component", st.reg.Component).Msg("streamify buffer rejected sample")
		return
	}
	for {
		blk, ok := st.buf.PopReady()
		if !ok {
			break
		}
		s.broadcaster.Publish(blk)
	}
}

func denormaliseI16(norm float64) int16 {
	scaled := math.Round(norm * i16FullScale)
	if scaled > 32767 {
		scaled = 32767
	}
	if scaled < -32768 {
		scaled = -32768
	}
	return int16(scaled)
}

// SubscribeStreams implements StreamSource.
func (s *Streamify) SubscribeStreams() *ringbuf.Subscription[model.StreamBlock] {
	return s.broadcaster.Subscribe()
}

// Stop terminates Streamify's worker at its next suspension point.
func (s *Streamify) Stop() {
	s.sub.Close()
	<-s.done
}

package relay

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horazont/metric-relay/pkg/liberrors"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
)

// State names one point in the receiver's session lifecycle.
type State int

const (
	StateHandshaking State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// HandshakeTimeout bounds the entire Handshaking state, per spec.
const HandshakeTimeout = 10 * time.Second

// ioTickInterval bounds each individual read, so the session loop wakes up
// often enough to evaluate soft/hard timeouts even on an idle connection.
const ioTickInterval = time.Second

// DataHandler receives forwarded payloads from an active Session.
type DataHandler interface {
	HandleReadout(r *model.Readout)
	HandleStreamBlock(blk model.StreamBlock)
}

// Session runs one receiver-side connection through the Handshaking/Active/
// Closed state machine described in spec §4.9.
type Session struct {
	conn         net.Conn
	clientID     uuid.UUID
	handler      DataHandler
	softTimeout  time.Duration
	hardTimeout  time.Duration
	log          zerolog.Logger

	mu           sync.Mutex
	lastReceived *uint64

	state State

	quitOnce sync.Once
	quit     chan struct{}
	closed   chan struct{}
}

// handshake performs the receiver side of the handshake: read ClientHello,
// look up any prior LastReceived via lookup, reply ServerHello then Ping,
// and wait for Pong. It bounds the whole exchange to HandshakeTimeout.
func handshake(conn net.Conn, lookup func(uuid.UUID) *uint64) (uuid.UUID, *uint64, error) {
	deadline := time.Now().Add(HandshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return uuid.UUID{}, nil, err
	}
	defer conn.SetDeadline(time.Time{})

	frame, err := ReadFrame(conn)
	if err != nil {
		return uuid.UUID{}, nil, err
	}
	hello, ok := frame.(ClientHello)
	if !ok {
		return uuid.UUID{}, nil, &liberrors.ErrProtocolViolation{State: StateHandshaking.String(), Frame: frameName(frame)}
	}

	lastReceived := lookup(hello.ClientID)
	if err := WriteFrame(conn, ServerHello{LastReceived: lastReceived}); err != nil {
		return uuid.UUID{}, nil, err
	}
	if err := WriteFrame(conn, Ping{}); err != nil {
		return uuid.UUID{}, nil, err
	}

	frame, err = ReadFrame(conn)
	if err != nil {
		return uuid.UUID{}, nil, err
	}
	if _, ok := frame.(Pong); !ok {
		return uuid.UUID{}, nil, &liberrors.ErrProtocolViolation{State: StateHandshaking.String(), Frame: frameName(frame)}
	}

	return hello.ClientID, lastReceived, nil
}

func newSession(conn net.Conn, clientID uuid.UUID, lastReceived *uint64, handler DataHandler, softTimeout, hardTimeout time.Duration, log zerolog.Logger) *Session {
	return &Session{
		conn:         conn,
		clientID:     clientID,
		handler:      handler,
		softTimeout:  softTimeout,
		hardTimeout:  hardTimeout,
		log:          log,
		lastReceived: lastReceived,
		state:        StateActive,
		quit:         make(chan struct{}),
		closed:       make(chan struct{}),
	}
}

// LastReceived reports the last value this session would report in an Ack,
// nil if no Data frame has been forwarded yet.
func (s *Session) LastReceived() *uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReceived
}

func (s *Session) advanceLastReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := uint64(1)
	if s.lastReceived != nil {
		next = *s.lastReceived + 1
	}
	s.lastReceived = &next
}

// stop gracefully ends the session: its guard is dropped, which unblocks
// the read loop via the now-closed connection.
func (s *Session) stop() {
	s.quitOnce.Do(func() {
		close(s.quit)
		s.conn.Close()
	})
	<-s.closed
}

// run drives the Active state until the connection closes, a protocol
// violation occurs, the hard timeout elapses, or stop is called.
func (s *Session) run() {
	defer close(s.closed)
	defer s.conn.Close()

	lastContact := time.Now()
	pingSent := false

	for {
		select {
		case <-s.quit:
			s.state = StateClosed
			return
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(ioTickInterval)); err != nil {
			s.state = StateClosed
			return
		}
		frame, err := ReadFrame(s.conn)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				now := time.Now()
				if now.Sub(lastContact) > s.hardTimeout {
					s.log.Warn().Str("client_id", s.clientID.String()).Msg("relay session hard timeout")
					s.state = StateClosed
					return
				}
				if !pingSent && now.Sub(lastContact) > s.softTimeout {
					if err := s.conn.SetWriteDeadline(time.Now().Add(ioTickInterval)); err != nil {
						s.state = StateClosed
						return
					}
					if err := WriteFrame(s.conn, Ping{}); err != nil {
						s.state = StateClosed
						return
					}
					pingSent = true
				}
				continue
			}
			s.state = StateClosed
			return
		}

		lastContact = time.Now()
		pingSent = false

		if err := s.handleFrame(frame); err != nil {
			s.log.Warn().Err(err).Str("client_id", s.clientID.String()).Msg("relay session closing")
			s.state = StateClosed
			return
		}
	}
}

func (s *Session) handleFrame(frame any) error {
	switch f := frame.(type) {
	case Ping:
		if err := s.conn.SetWriteDeadline(time.Now().Add(ioTickInterval)); err != nil {
			return err
		}
		return WriteFrame(s.conn, Pong{})
	case Pong:
		return nil
	case RequestAck:
		lr := s.LastReceived()
		var v uint64
		if lr != nil {
			v = *lr
		}
		if err := s.conn.SetWriteDeadline(time.Now().Add(ioTickInterval)); err != nil {
			return err
		}
		return WriteFrame(s.conn, Ack{LastReceived: v})
	case Data:
		switch {
		case f.Readout != nil:
			s.handler.HandleReadout(f.Readout)
		case f.Block != nil:
			s.handler.HandleStreamBlock(*f.Block)
		}
		s.advanceLastReceived()
		return nil
	default:
		return &liberrors.ErrProtocolViolation{State: StateActive.String(), Frame: frameName(frame)}
	}
}

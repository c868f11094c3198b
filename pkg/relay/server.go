package relay

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server accepts relay connections, runs each through the handshake, and
// keeps at most one live Session per client id; a reconnecting client that
// supersedes an existing session gracefully stops the old one first,
// preserving LastReceived.
type Server struct {
	log         zerolog.Logger
	listener    net.Listener
	handler     DataHandler
	softTimeout time.Duration
	hardTimeout time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	wg sync.WaitGroup
}

// NewServer starts accepting connections on listener. softTimeout and
// hardTimeout configure every accepted Session; see spec §4.9 defaults
// (5s / 30s) if the caller has no stronger preference.
func NewServer(listener net.Listener, handler DataHandler, softTimeout, hardTimeout time.Duration, log zerolog.Logger) *Server {
	s := &Server{
		log:         log,
		listener:    listener,
		handler:     handler,
		softTimeout: softTimeout,
		hardTimeout: hardTimeout,
		sessions:    make(map[uuid.UUID]*Session),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	clientID, lastReceived, err := handshake(conn, s.lookupLastReceived)
	if err != nil {
		s.log.Warn().Err(err).Msg("relay handshake failed")
		conn.Close()
		return
	}

	sess := newSession(conn, clientID, lastReceived, s.handler, s.softTimeout, s.hardTimeout, s.log)

	s.mu.Lock()
	if old, ok := s.sessions[clientID]; ok {
		s.mu.Unlock()
		old.stop()
		s.mu.Lock()
	}
	s.sessions[clientID] = sess
	s.mu.Unlock()

	sess.run()

	// the ended session stays registered under clientID, so a later
	// ClientHello with the same id still finds its LastReceived.
}

func (s *Server) lookupLastReceived(clientID uuid.UUID) *uint64 {
	s.mu.Lock()
	sess, ok := s.sessions[clientID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.LastReceived()
}

// Close stops accepting new connections and stops every active session.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.stop()
	}
	s.wg.Wait()
	return err
}

package relay

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	readouts []*model.Readout
	blocks   []model.StreamBlock
}

func (h *recordingHandler) HandleReadout(r *model.Readout) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readouts = append(h.readouts, r)
}

func (h *recordingHandler) HandleStreamBlock(blk model.StreamBlock) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocks = append(h.blocks, blk)
}

func (h *recordingHandler) readoutCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.readouts)
}

func TestHandshakeSucceedsAndReportsLastReceived(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	id := uuid.New()
	prior := uint64(9)
	lookup := func(got uuid.UUID) *uint64 {
		require.Equal(t, id, got)
		return &prior
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := handshake(serverConn, lookup)
		done <- err
	}()

	require.NoError(t, WriteFrame(clientConn, ClientHello{ClientID: id}))
	frame, err := ReadFrame(clientConn)
	require.NoError(t, err)
	sh, ok := frame.(ServerHello)
	require.True(t, ok)
	require.NotNil(t, sh.LastReceived)
	require.Equal(t, prior, *sh.LastReceived)

	frame, err = ReadFrame(clientConn)
	require.NoError(t, err)
	_, ok = frame.(Ping)
	require.True(t, ok)

	require.NoError(t, WriteFrame(clientConn, Pong{}))
	require.NoError(t, <-done)
}

func TestHandshakeFailsOnUnexpectedFirstFrame(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	done := make(chan error, 1)
	go func() {
		_, _, err := handshake(serverConn, func(uuid.UUID) *uint64 { return nil })
		done <- err
	}()

	require.NoError(t, WriteFrame(clientConn, Ping{}))
	err := <-done
	require.Error(t, err)
}

func newActiveSessionPair(t *testing.T, softTimeout, hardTimeout time.Duration) (*Session, net.Conn, *recordingHandler) {
	clientConn, serverConn := net.Pipe()
	handler := &recordingHandler{}
	sess := newSession(serverConn, uuid.New(), nil, handler, softTimeout, hardTimeout, zerolog.Nop())
	return sess, clientConn, handler
}

func TestSessionForwardsDataAndAdvancesLastReceived(t *testing.T) {
	sess, clientConn, handler := newActiveSessionPair(t, time.Minute, time.Minute)
	defer clientConn.Close()

	runDone := make(chan struct{})
	go func() {
		sess.run()
		close(runDone)
	}()

	require.Nil(t, sess.LastReceived())

	r := model.NewReadout(time.Unix(1, 0).UTC(), model.DevicePath{DeviceType: "thermo", Instance: "a"})
	require.NoError(t, WriteFrame(clientConn, Data{Readout: r}))

	require.Eventually(t, func() bool { return handler.readoutCount() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		lr := sess.LastReceived()
		return lr != nil && *lr == 1
	}, time.Second, time.Millisecond)

	sess.stop()
	<-runDone
}

func TestSessionAnswersRequestAckWithCurrentLastReceived(t *testing.T) {
	sess, clientConn, _ := newActiveSessionPair(t, time.Minute, time.Minute)
	defer clientConn.Close()

	go sess.run()
	defer sess.stop()

	require.NoError(t, WriteFrame(clientConn, RequestAck{}))
	frame, err := ReadFrame(clientConn)
	require.NoError(t, err)
	ack, ok := frame.(Ack)
	require.True(t, ok)
	require.Equal(t, uint64(0), ack.LastReceived)
}

func TestSessionAnswersPingWithPong(t *testing.T) {
	sess, clientConn, _ := newActiveSessionPair(t, time.Minute, time.Minute)
	defer clientConn.Close()

	go sess.run()
	defer sess.stop()

	require.NoError(t, WriteFrame(clientConn, Ping{}))
	frame, err := ReadFrame(clientConn)
	require.NoError(t, err)
	_, ok := frame.(Pong)
	require.True(t, ok)
}

func TestSessionClosesOnProtocolViolation(t *testing.T) {
	sess, clientConn, _ := newActiveSessionPair(t, time.Minute, time.Minute)
	defer clientConn.Close()

	runDone := make(chan struct{})
	go func() {
		sess.run()
		close(runDone)
	}()

	require.NoError(t, WriteFrame(clientConn, ClientHello{ClientID: uuid.New()}))

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("session did not close on protocol violation")
	}
	require.Equal(t, StateClosed, sess.state)
}

func TestSessionSendsPingAfterSoftTimeoutThenClosesAfterHardTimeout(t *testing.T) {
	// ioTickInterval bounds each read at 1s, so timeouts shorter than that
	// can never be observed between ticks; keep both comfortably above it.
	sess, clientConn, _ := newActiveSessionPair(t, 1200*time.Millisecond, 2500*time.Millisecond)
	defer clientConn.Close()

	runDone := make(chan struct{})
	go func() {
		sess.run()
		close(runDone)
	}()

	clientConn.SetReadDeadline(time.Now().Add(4 * time.Second))
	frame, err := ReadFrame(clientConn)
	require.NoError(t, err)
	_, ok := frame.(Ping)
	require.True(t, ok, "expected a keepalive Ping after the soft timeout")

	select {
	case <-runDone:
	case <-time.After(4 * time.Second):
		t.Fatal("session did not close after hard timeout")
	}
}

func TestSessionStopUnblocksRun(t *testing.T) {
	sess, clientConn, _ := newActiveSessionPair(t, time.Minute, time.Minute)
	defer clientConn.Close()

	runDone := make(chan struct{})
	go func() {
		sess.run()
		close(runDone)
	}()

	sess.stop()
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("stop did not unblock run")
	}
}

package relay

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// newClientWithBackoff mirrors NewClient but lets tests use a short backoff
// so reconnect/backoff behavior doesn't make the suite slow.
func newClientWithBackoff(dial func() (net.Conn, error), clientID uuid.UUID, capacity int, backoff time.Duration, log zerolog.Logger) *Client {
	c := &Client{
		log:      log,
		dial:     dial,
		clientID: clientID,
		backoff:  backoff,
		outbound: make(chan Data, capacity),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

func TestClientConnectsAndForwardsReadout(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	handler := &recordingHandler{}
	srv := NewServer(listener, handler, time.Minute, time.Minute, zerolog.Nop())
	defer srv.Close()

	addr := listener.Addr().String()
	dial := func() (net.Conn, error) { return net.DialTimeout("tcp", addr, time.Second) }
	client := newClientWithBackoff(dial, uuid.New(), 4, ReconnectBackoff, zerolog.Nop())
	defer client.Stop()

	r := model.NewReadout(time.Unix(1, 0).UTC(), model.DevicePath{DeviceType: "thermo", Instance: "a"})
	r.Set("temperature", model.Value{Magnitude: 20, Unit: model.UnitCelsius})
	client.SendReadout(r)

	require.Eventually(t, func() bool { return handler.readoutCount() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestClientReconnectsOnDialFailureThenSucceeds(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	attempts := make(chan struct{}, 8)
	dial := func() (net.Conn, error) {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return net.DialTimeout("tcp", addr, 200*time.Millisecond)
	}

	client := newClientWithBackoff(dial, uuid.New(), 4, 20*time.Millisecond, zerolog.Nop())
	defer client.Stop()

	require.Eventually(t, func() bool { return len(attempts) >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestClientStopReturnsWithoutWaitingForBackoff(t *testing.T) {
	badDial := func() (net.Conn, error) {
		return net.DialTimeout("tcp", "127.0.0.1:1", 50*time.Millisecond)
	}

	client := newClientWithBackoff(badDial, uuid.New(), 4, time.Hour, zerolog.Nop())

	stopped := make(chan struct{})
	go func() {
		client.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly despite a long backoff")
	}
}

package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horazont/metric-relay/pkg/liberrors"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ReconnectBackoff is the delay between connection attempts after an I/O
// error or failed dial, per spec §4.9.
const ReconnectBackoff = 5 * time.Second

// Client is the transmitter side of the relay protocol: it dials, performs
// the handshake, then concurrently forwards queued data frames and answers
// keepalives, reconnecting with backoff on any I/O error.
type Client struct {
	log      zerolog.Logger
	dial     func() (net.Conn, error)
	clientID uuid.UUID
	backoff  time.Duration

	outbound chan Data

	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// NewClient starts a Client that dials via dial and identifies itself with
// clientID. capacity bounds how many outgoing Data frames may be queued
// while disconnected or mid-handshake before SendReadout/SendStreamBlock
// block.
func NewClient(dial func() (net.Conn, error), clientID uuid.UUID, capacity int, log zerolog.Logger) *Client {
	c := &Client{
		log:      log,
		dial:     dial,
		clientID: clientID,
		backoff:  ReconnectBackoff,
		outbound: make(chan Data, capacity),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

// SendReadout queues a readout for forwarding; it blocks if the outbound
// queue is full, and returns early if Stop is called first.
func (c *Client) SendReadout(r *model.Readout) {
	select {
	case c.outbound <- Data{Readout: r}:
	case <-c.quit:
	}
}

// SendStreamBlock queues a stream block for forwarding; it blocks if the
// outbound queue is full, and returns early if Stop is called first.
func (c *Client) SendStreamBlock(blk model.StreamBlock) {
	select {
	case c.outbound <- Data{Block: &blk}:
	case <-c.quit:
	}
}

func (c *Client) run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		default:
		}

		conn, err := c.dial()
		if err != nil {
			c.log.Warn().Err(err).Msg("relay client dial failed")
			if !c.sleepOrQuit(c.backoff) {
				return
			}
			continue
		}

		if err := c.runConnection(conn); err != nil {
			c.log.Warn().Err(err).Msg("relay client connection ended")
		}
		conn.Close()

		select {
		case <-c.quit:
			return
		default:
		}
		if !c.sleepOrQuit(c.backoff) {
			return
		}
	}
}

func (c *Client) sleepOrQuit(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.quit:
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) runConnection(conn net.Conn) error {
	if err := conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return err
	}
	if err := WriteFrame(conn, ClientHello{ClientID: c.clientID}); err != nil {
		return err
	}
	frame, err := ReadFrame(conn)
	if err != nil {
		return err
	}
	if _, ok := frame.(ServerHello); !ok {
		return &liberrors.ErrProtocolViolation{State: StateHandshaking.String(), Frame: frameName(frame)}
	}
	frame, err = ReadFrame(conn)
	if err != nil {
		return err
	}
	if _, ok := frame.(Ping); !ok {
		return &liberrors.ErrProtocolViolation{State: StateHandshaking.String(), Frame: frameName(frame)}
	}
	if err := WriteFrame(conn, Pong{}); err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return err
	}

	control := make(chan any, 4)
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return c.readLoop(ctx, conn, control) })
	g.Go(func() error { return c.writeLoop(ctx, conn, control) })
	g.Go(func() error {
		select {
		case <-c.quit:
			conn.Close()
		case <-ctx.Done():
		}
		return nil
	})
	return g.Wait()
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn, control chan<- any) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := conn.SetReadDeadline(time.Now().Add(ioTickInterval)); err != nil {
			return err
		}
		frame, err := ReadFrame(conn)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}
		switch frame.(type) {
		case Ping:
			select {
			case control <- Pong{}:
			case <-ctx.Done():
				return nil
			}
		case Pong, Ack:
		default:
			return &liberrors.ErrProtocolViolation{State: StateActive.String(), Frame: frameName(frame)}
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, conn net.Conn, control <-chan any) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-control:
			if err := conn.SetWriteDeadline(time.Now().Add(ioTickInterval)); err != nil {
				return err
			}
			if err := WriteFrame(conn, f); err != nil {
				return err
			}
		case d := <-c.outbound:
			if err := conn.SetWriteDeadline(time.Now().Add(ioTickInterval)); err != nil {
				return err
			}
			if err := WriteFrame(conn, d); err != nil {
				return err
			}
		}
	}
}

// Stop terminates the client's worker at its next suspension point.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

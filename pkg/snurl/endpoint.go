package snurl

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/horazont/metric-relay/internal/serialnum"
	"github.com/horazont/metric-relay/pkg/liberrors"
	"github.com/rs/zerolog"
)

// DefaultMSS is the default maximum outbound packet body size, leaving
// generous headroom below the common Ethernet path MTU.
const DefaultMSS = 1240

// DefaultRecvCapacity is the default RecvQueue window size.
const DefaultRecvCapacity = 256

// DefaultSendCapacity is the default SendQueue depth.
const DefaultSendCapacity = 256

// Mode selects whether an Endpoint participates in connection-id election
// (Active, the default) or silently follows the peer's choice (Passive).
type Mode int

const (
	Active Mode = iota
	Passive
)

// peerView tracks what this endpoint currently believes about the remote's
// receive state, used to decide which frames are safe to stop retransmitting.
type peerView struct {
	minAvailSN  serialnum.SerialNumber
	maxRecvdSN  serialnum.SerialNumber
	lastRecvdSN serialnum.SerialNumber
	have        bool
}

// Endpoint is one side of a SNURL session bound to a single peer address.
type Endpoint struct {
	conn net.PacketConn
	peer net.Addr
	mode Mode
	mss  int
	log  zerolog.Logger

	localPort uint16

	mu       sync.Mutex
	election *election
	recv     *RecvQueue
	send     *SendQueue
	peerView peerView

	localMaxRecvd  serialnum.SerialNumber
	localLastRecvd serialnum.SerialNumber
	haveLocalRecvd bool

	deliveries chan Delivery
}

// NewEndpoint wires an Endpoint around an already-bound socket and a single
// peer address. localPort is used for election tie-breaking.
func NewEndpoint(conn net.PacketConn, peer net.Addr, localPort uint16, mode Mode, log zerolog.Logger) *Endpoint {
	return &Endpoint{
		conn:       conn,
		peer:       peer,
		mode:       mode,
		mss:        DefaultMSS,
		log:        log,
		localPort:  localPort,
		election:   newElection(localPort),
		recv:       NewRecvQueue(DefaultRecvCapacity, 0),
		send:       NewSendQueue(DefaultSendCapacity),
		deliveries: make(chan Delivery, DefaultRecvCapacity),
	}
}

// Deliveries returns the channel on which resync markers and in-order
// payloads are published.
func (e *Endpoint) Deliveries() <-chan Delivery {
	return e.deliveries
}

// Send enqueues payload for reliable delivery and transmits a Data packet
// carrying it plus as many still-unacknowledged older frames as fit in the
// MSS.
func (e *Endpoint) Send(payload []byte) error {
	e.mu.Lock()
	e.send.Push(payload)
	pkt := e.buildDataPacketLocked()
	e.mu.Unlock()

	_, err := e.conn.WriteTo(pkt, e.peer)
	return err
}

func (e *Endpoint) buildDataPacketLocked() []byte {
	if e.peerView.have {
		e.send.DiscardUpToIncl(e.peerView.lastRecvdSN)
	}

	hdr := Header{
		Type:         PacketData,
		ConnectionID: e.election.ID(),
		MinAvailSN:   e.recv.LowestSN(),
		MaxRecvdSN:   e.localMaxRecvd,
		LastRecvdSN:  e.localLastRecvd,
	}
	budget := e.mss - HeaderLen
	frames := e.send.Frames(budget)

	out := hdr.Encode()
	return EncodeDataFrames(out, frames)
}

// SendEchoRequest transmits a bare liveness probe.
func (e *Endpoint) SendEchoRequest() error {
	return e.sendControl(PacketEchoRequest)
}

// sendControl transmits a bare header of type t carrying the current
// connection id and local receive state.
func (e *Endpoint) sendControl(t PacketType) error {
	e.mu.Lock()
	hdr := Header{
		Type:         t,
		ConnectionID: e.election.ID(),
		MinAvailSN:   e.recv.LowestSN(),
		MaxRecvdSN:   e.localMaxRecvd,
		LastRecvdSN:  e.localLastRecvd,
	}
	e.mu.Unlock()
	_, err := e.conn.WriteTo(hdr.Encode(), e.peer)
	return err
}

// HandlePacket processes one inbound datagram received from the given
// source port. It runs election, applies receive-side bookkeeping,
// publishes newly in-order payloads, and sends any reply the protocol
// requires.
func (e *Endpoint) HandlePacket(srcPort uint16, data []byte) error {
	if srcPort == e.localPort {
		return &liberrors.ErrLoopbackPacket{}
	}

	hdr, body, err := DecodeHeader(data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	outcome := e.election.OnPacket(srcPort, hdr.ConnectionID)
	if outcome.resync {
		deliveries := e.recv.Flush(hdr.MinAvailSN)
		e.mu.Unlock()
		for _, d := range deliveries {
			e.deliveries <- d
		}
		e.mu.Lock()
	}

	e.recv.MarkUnreceivableUpTo(hdr.MinAvailSN)
	e.peerView = peerView{
		minAvailSN:  hdr.MinAvailSN,
		maxRecvdSN:  hdr.MaxRecvdSN,
		lastRecvdSN: hdr.LastRecvdSN,
		have:        true,
	}

	// while half-synced, the local id has not yet round-tripped to the
	// peer and back, so the frames of an inbound Data packet are neither
	// parsed nor accepted into the receive queue; the header bookkeeping
	// above still applies.
	skipData := e.mode == Active && e.election.HalfSynced()
	var accepted bool
	var newMax, newLast serialnum.SerialNumber
	var haveNewRecvd bool

	if hdr.Type == PacketData && !skipData {
		frames, derr := DecodeDataFrames(body)
		if derr != nil {
			e.mu.Unlock()
			return derr
		}
		for _, f := range frames {
			if e.recv.Set(f.SN, f.Payload) {
				accepted = true
				if !haveNewRecvd {
					newMax, newLast = f.SN, f.SN
					haveNewRecvd = true
				} else {
					if less, ok := newMax.Less(f.SN); ok && less {
						newMax = f.SN
					}
					newLast = f.SN
				}
			}
		}
		if accepted {
			if !e.haveLocalRecvd {
				e.localMaxRecvd, e.localLastRecvd = newMax, newLast
				e.haveLocalRecvd = true
			} else {
				if less, ok := e.localMaxRecvd.Less(newMax); ok && less {
					e.localMaxRecvd = newMax
				}
				e.localLastRecvd = newLast
			}
		}
	}
	mode := e.mode
	e.mu.Unlock()

	e.drainReady()

	switch {
	case hdr.Type == PacketEchoRequest:
		return e.sendControl(PacketEchoResponse)
	case hdr.Type == PacketData && accepted && mode == Active:
		return e.sendControl(PacketDataAck)
	}
	return nil
}

// drainReady publishes every frame now available at the front of the
// receive queue, in order.
func (e *Endpoint) drainReady() {
	for {
		p, ok := e.recv.TryRead()
		if !ok {
			return
		}
		e.deliveries <- Delivery{Payload: p}
	}
}

// Run listens for inbound packets until ctx is cancelled, dispatching each
// to HandlePacket. The caller's conn must return the source net.Addr with a
// resolvable port via (*net.UDPAddr).Port.
func (e *Endpoint) Run(ctx context.Context) error {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_ = e.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}

		srcPort := addrPort(addr)
		if herr := e.HandlePacket(srcPort, buf[:n]); herr != nil {
			e.log.Warn().Err(herr).Msg("dropping malformed snurl packet")
		}
	}
}

func addrPort(addr net.Addr) uint16 {
	if udp, ok := addr.(*net.UDPAddr); ok {
		return uint16(udp.Port)
	}
	return 0
}

package snurl

import "math/rand"

// electionOutcome reports the side effects of processing one inbound
// packet's connection-id fields through the election state machine.
type electionOutcome struct {
	// idChanged reports whether the local connection id was just assigned
	// or replaced by this packet.
	idChanged bool
	// resync reports that the receive queue must be flushed and
	// resynchronised to the peer's advertised MinAvailSN.
	resync bool
}

// election tracks one endpoint's side of the connection-id negotiation
// described for SNURL: both peers start at id 0 and converge on a shared
// non-zero id, with the lower local port breaking ties.
type election struct {
	localPort  uint16
	id         uint32
	halfSynced bool

	// randUint32 is overridable by tests; defaults to a non-zero value
	// drawn from math/rand.
	randUint32 func() uint32
}

func newElection(localPort uint16) *election {
	return &election{
		localPort:  localPort,
		randUint32: defaultRandNonZero,
	}
}

func defaultRandNonZero() uint32 {
	for {
		if v := rand.Uint32(); v != 0 { //nolint:gosec // not security sensitive, just tie-breaking
			return v
		}
	}
}

// ID returns the currently held connection id (0 if none yet).
func (e *election) ID() uint32 {
	return e.id
}

// HalfSynced reports whether the local id is still awaiting echo from the
// peer before data is accepted.
func (e *election) HalfSynced() bool {
	return e.halfSynced
}

// OnPacket runs one inbound packet's (remotePort, remoteID) pair through the
// election rules and updates local state accordingly.
func (e *election) OnPacket(remotePort uint16, remoteID uint32) electionOutcome {
	switch {
	case e.id == 0 && remoteID == 0:
		rolled := e.localPort < remotePort
		if rolled {
			e.id = e.randUint32()
		}
		e.halfSynced = true
		return electionOutcome{idChanged: rolled}

	case e.id == 0 && remoteID != 0:
		e.id = remoteID
		e.halfSynced = false
		return electionOutcome{idChanged: true, resync: true}

	case e.id != 0 && remoteID == 0:
		e.halfSynced = true
		return electionOutcome{}

	case e.id == remoteID:
		wasHalf := e.halfSynced
		e.halfSynced = false
		return electionOutcome{resync: wasHalf}

	default: // both non-zero and different
		if e.localPort < remotePort {
			return electionOutcome{}
		}
		e.id = remoteID
		e.halfSynced = false
		return electionOutcome{idChanged: true, resync: true}
	}
}

// Package liberrors contains the error types returned by this module.
package liberrors

import "fmt"

// ErrMalformedPacket is returned when a SNURL datagram fails to parse.
type ErrMalformedPacket struct {
	Reason string
}

func (e ErrMalformedPacket) Error() string {
	return fmt.Sprintf("malformed packet: %s", e.Reason)
}

// ErrUnsupportedVersion is returned when a SNURL header carries an unknown version.
type ErrUnsupportedVersion struct {
	Version uint8
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("unsupported protocol version %d", e.Version)
}

// ErrLoopbackPacket is returned when a datagram's source port equals the local port.
type ErrLoopbackPacket struct{}

func (ErrLoopbackPacket) Error() string {
	return "refusing packet from local port (loopback on broadcast socket)"
}

// ErrQueueFull describes a RecvQueue slot that cannot accept a frame.
// RecvQueue.Set reports that case through its bool result and does not
// return this error.
type ErrQueueFull struct {
	SequenceNumber uint16
}

func (e ErrQueueFull) Error() string {
	return fmt.Sprintf("receive queue has no room for sn %d", e.SequenceNumber)
}

// ErrOutOfWindow describes a sequence number outside the receive window.
// RecvQueue.Set reports that case through its bool result and does not
// return this error.
type ErrOutOfWindow struct {
	SequenceNumber uint16
	LowestAccepted uint16
}

func (e ErrOutOfWindow) Error() string {
	return fmt.Sprintf("sn %d is outside window starting at %d", e.SequenceNumber, e.LowestAccepted)
}

// ErrUndefinedOrdering describes the wraparound boundary at which the ordering
// of two serial numbers is undefined. SerialNumber.Less and SerialNumber.Sub
// report that case through their ok result and do not return this error.
type ErrUndefinedOrdering struct {
	A, B uint16
}

func (e ErrUndefinedOrdering) Error() string {
	return fmt.Sprintf("ordering between %d and %d is undefined (difference is exactly half the range)", e.A, e.B)
}

// ErrTooLong is returned when an inbound stream block exceeds the maximum element count.
type ErrTooLong struct {
	Length int
}

func (e ErrTooLong) Error() string {
	return fmt.Sprintf("stream block of %d samples exceeds the maximum accepted length", e.Length)
}

// ErrInvalidPeriod is returned when a stream block's period does not divide the slice duration
// into an accepted number of samples-per-slice.
type ErrInvalidPeriod struct {
	Reason string
}

func (e ErrInvalidPeriod) Error() string {
	return fmt.Sprintf("invalid period: %s", e.Reason)
}

// ErrIncompatibleBlock describes a write whose shape differs from the partial
// block in progress. InMemoryBuffer.Write does not return it: it flushes the
// partial block and starts a new one instead.
type ErrIncompatibleBlock struct {
	Reason string
}

func (e ErrIncompatibleBlock) Error() string {
	return fmt.Sprintf("incompatible with in-progress block: %s", e.Reason)
}

// ErrInThePast is returned when a write targets a position already consumed by the cursor.
type ErrInThePast struct {
	SequenceNumber uint16
}

func (e ErrInThePast) Error() string {
	return fmt.Sprintf("sn %d precedes the current write cursor", e.SequenceNumber)
}

// ErrUnexpectedEOF is returned by the stream decompressor when the payload is shorter than
// the bitmap demands.
type ErrUnexpectedEOF struct{}

func (ErrUnexpectedEOF) Error() string {
	return "unexpected end of compressed stream payload"
}

// ErrProtocolViolation is returned by the relay session state machine on an out-of-state frame.
type ErrProtocolViolation struct {
	State string
	Frame string
}

func (e ErrProtocolViolation) Error() string {
	return fmt.Sprintf("unexpected frame %s while in state %s", e.Frame, e.State)
}

// ErrFrameTooLarge is returned when a relay frame payload exceeds the maximum wire size.
type ErrFrameTooLarge struct {
	Length int
}

func (e ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame payload of %d bytes exceeds maximum of 65535", e.Length)
}

// ErrUndefinedName is a script evaluation error: a reference has no binding in the namespace.
type ErrUndefinedName struct {
	Name string
}

func (e ErrUndefinedName) Error() string {
	return fmt.Sprintf("undefined name %q", e.Name)
}

// ErrUndefinedFunction is a script build-time error: a call names an unknown function.
type ErrUndefinedFunction struct {
	Name string
}

func (e ErrUndefinedFunction) Error() string {
	return fmt.Sprintf("undefined function %q", e.Name)
}

// ErrArityMismatch is a script build-time error: a function call has the wrong argument count.
type ErrArityMismatch struct {
	Name     string
	Expected int
	Got      int
}

func (e ErrArityMismatch) Error() string {
	return fmt.Sprintf("%s expects %d argument(s), got %d", e.Name, e.Expected, e.Got)
}

// ErrInvalidToken is a script parse error.
type ErrInvalidToken struct {
	Token string
}

func (e ErrInvalidToken) Error() string {
	return fmt.Sprintf("invalid token %q", e.Token)
}

// ErrGraphConstruction is a fatal, build-time-only error raised while wiring a task graph.
type ErrGraphConstruction struct {
	Reason string
}

func (e ErrGraphConstruction) Error() string {
	return fmt.Sprintf("graph construction failed: %s", e.Reason)
}

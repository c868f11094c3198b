// Package snurl implements a datagram reliability and reordering layer on
// top of UDP: connection-id election between two peers, an ordered receive
// queue, a retransmitting send queue, and the wire codec tying them
// together.
package snurl

import (
	"encoding/binary"

	"github.com/horazont/metric-relay/internal/serialnum"
	"github.com/horazont/metric-relay/pkg/liberrors"
)

// PacketType tags the common header's purpose.
type PacketType uint8

// Packet types, per the wire format.
const (
	PacketEchoRequest  PacketType = 0x01
	PacketEchoResponse PacketType = 0x02
	PacketAppRequest   PacketType = 0x03
	PacketAppResponse  PacketType = 0x04
	PacketDataAck      PacketType = 0x05
	PacketData         PacketType = 0x06
)

// Version is the only wire version this package speaks.
const Version uint8 = 0x00

// HeaderLen is the fixed size of the common header in bytes.
const HeaderLen = 12

// MaxFrameLen is the largest payload a single data-frame may carry (u8 length).
const MaxFrameLen = 255

// Header is the 12-byte common header prefixing every SNURL packet.
type Header struct {
	Type         PacketType
	ConnectionID uint32
	MinAvailSN   serialnum.SerialNumber
	MaxRecvdSN   serialnum.SerialNumber
	LastRecvdSN  serialnum.SerialNumber
}

// Encode writes the header's wire representation.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderLen)
	b[0] = Version
	b[1] = byte(h.Type)
	binary.LittleEndian.PutUint32(b[2:6], h.ConnectionID)
	binary.LittleEndian.PutUint16(b[6:8], uint16(h.MinAvailSN))
	binary.LittleEndian.PutUint16(b[8:10], uint16(h.MaxRecvdSN))
	binary.LittleEndian.PutUint16(b[10:12], uint16(h.LastRecvdSN))
	return b
}

// DecodeHeader parses the common header from the front of b, returning the
// header and the remaining bytes.
func DecodeHeader(b []byte) (Header, []byte, error) {
	if len(b) < HeaderLen {
		return Header{}, nil, &liberrors.ErrMalformedPacket{Reason: "packet shorter than common header"}
	}
	if b[0] != Version {
		return Header{}, nil, &liberrors.ErrUnsupportedVersion{Version: b[0]}
	}
	h := Header{
		Type:         PacketType(b[1]),
		ConnectionID: binary.LittleEndian.Uint32(b[2:6]),
		MinAvailSN:   serialnum.SerialNumber(binary.LittleEndian.Uint16(b[6:8])),
		MaxRecvdSN:   serialnum.SerialNumber(binary.LittleEndian.Uint16(b[8:10])),
		LastRecvdSN:  serialnum.SerialNumber(binary.LittleEndian.Uint16(b[10:12])),
	}
	return h, b[HeaderLen:], nil
}

// DataFrame is one retransmittable unit packed into a Data packet's body.
type DataFrame struct {
	SN      serialnum.SerialNumber
	Payload []byte
}

// EncodeDataFrames appends the wire representation of frames to dst.
func EncodeDataFrames(dst []byte, frames []DataFrame) []byte {
	for _, f := range frames {
		var hdr [3]byte
		binary.LittleEndian.PutUint16(hdr[0:2], uint16(f.SN))
		hdr[2] = byte(len(f.Payload))
		dst = append(dst, hdr[:]...)
		dst = append(dst, f.Payload...)
	}
	return dst
}

// DecodeDataFrames parses a sequence of data-frames from b until it is
// exhausted.
func DecodeDataFrames(b []byte) ([]DataFrame, error) {
	var out []DataFrame
	for len(b) > 0 {
		if len(b) < 3 {
			return nil, &liberrors.ErrUnexpectedEOF{}
		}
		sn := serialnum.SerialNumber(binary.LittleEndian.Uint16(b[0:2]))
		n := int(b[2])
		b = b[3:]
		if len(b) < n {
			return nil, &liberrors.ErrUnexpectedEOF{}
		}
		out = append(out, DataFrame{SN: sn, Payload: append([]byte(nil), b[:n]...)})
		b = b[n:]
	}
	return out, nil
}

package relay

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/horazont/metric-relay/pkg/liberrors"
	"github.com/horazont/metric-relay/pkg/model"
)

// MaxFrameLen is the largest frame body (tag byte included) either side
// will send or accept.
const MaxFrameLen = 65535

type frameTag uint8

const (
	tagClientHello frameTag = 0x01
	tagServerHello frameTag = 0x02
	tagPing        frameTag = 0x03
	tagPong        frameTag = 0x04
	tagData        frameTag = 0x05
	tagRequestAck  frameTag = 0x06
	tagAck         frameTag = 0x07
)

const (
	dataKindReadout     = 0x01
	dataKindStreamBlock = 0x02
)

// ClientHello opens a session, naming the client by a random persistent id.
type ClientHello struct {
	ClientID uuid.UUID
}

// ServerHello answers a ClientHello. LastReceived is nil when the server has
// never forwarded a Data frame from this client id before.
type ServerHello struct {
	LastReceived *uint64
}

// Ping requests a Pong; either side may send it as a keepalive.
type Ping struct{}

// Pong answers a Ping; it carries no information of its own.
type Pong struct{}

// Data carries exactly one of Readout or Block.
type Data struct {
	Readout *model.Readout
	Block   *model.StreamBlock
}

// RequestAck asks the receiver to report its current LastReceived.
type RequestAck struct{}

// Ack answers a RequestAck.
type Ack struct {
	LastReceived uint64
}

func frameName(f any) string {
	switch f.(type) {
	case ClientHello:
		return "ClientHello"
	case ServerHello:
		return "ServerHello"
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	case Data:
		return "Data"
	case RequestAck:
		return "RequestAck"
	case Ack:
		return "Ack"
	default:
		return fmt.Sprintf("%T", f)
	}
}

func encodeFrame(f any) ([]byte, error) {
	var body []byte
	switch v := f.(type) {
	case ClientHello:
		body = append([]byte{byte(tagClientHello)}, v.ClientID[:]...)
	case ServerHello:
		body = append(body, byte(tagServerHello))
		if v.LastReceived != nil {
			var lbuf [9]byte
			lbuf[0] = 1
			binary.LittleEndian.PutUint64(lbuf[1:], *v.LastReceived)
			body = append(body, lbuf[:]...)
		} else {
			body = append(body, make([]byte, 9)...)
		}
	case Ping:
		body = []byte{byte(tagPing)}
	case Pong:
		body = []byte{byte(tagPong)}
	case Data:
		body = append(body, byte(tagData))
		switch {
		case v.Readout != nil:
			body = append(body, dataKindReadout)
			body = append(body, EncodeReadout(v.Readout)...)
		case v.Block != nil:
			body = append(body, dataKindStreamBlock)
			body = append(body, EncodeStreamBlock(*v.Block)...)
		default:
			return nil, &liberrors.ErrMalformedPacket{Reason: "Data frame carries neither a readout nor a stream block"}
		}
	case RequestAck:
		body = []byte{byte(tagRequestAck)}
	case Ack:
		var buf [9]byte
		buf[0] = byte(tagAck)
		binary.LittleEndian.PutUint64(buf[1:], v.LastReceived)
		body = buf[:]
	default:
		return nil, &liberrors.ErrMalformedPacket{Reason: fmt.Sprintf("unknown frame type %T", f)}
	}
	if len(body) > MaxFrameLen {
		return nil, &liberrors.ErrFrameTooLarge{Length: len(body)}
	}
	return body, nil
}

func decodeFrame(body []byte) (any, error) {
	if len(body) < 1 {
		return nil, &liberrors.ErrUnexpectedEOF{}
	}
	tag := frameTag(body[0])
	body = body[1:]
	switch tag {
	case tagClientHello:
		if len(body) < 16 {
			return nil, &liberrors.ErrUnexpectedEOF{}
		}
		var id uuid.UUID
		copy(id[:], body[:16])
		return ClientHello{ClientID: id}, nil
	case tagServerHello:
		if len(body) < 9 {
			return nil, &liberrors.ErrUnexpectedEOF{}
		}
		if body[0] == 0 {
			return ServerHello{}, nil
		}
		v := binary.LittleEndian.Uint64(body[1:9])
		return ServerHello{LastReceived: &v}, nil
	case tagPing:
		return Ping{}, nil
	case tagPong:
		return Pong{}, nil
	case tagData:
		if len(body) < 1 {
			return nil, &liberrors.ErrUnexpectedEOF{}
		}
		kind := body[0]
		body = body[1:]
		switch kind {
		case dataKindReadout:
			r, err := DecodeReadout(body)
			if err != nil {
				return nil, err
			}
			return Data{Readout: r}, nil
		case dataKindStreamBlock:
			blk, err := DecodeStreamBlock(body)
			if err != nil {
				return nil, err
			}
			return Data{Block: &blk}, nil
		default:
			return nil, &liberrors.ErrMalformedPacket{Reason: "unknown Data payload kind"}
		}
	case tagRequestAck:
		return RequestAck{}, nil
	case tagAck:
		if len(body) < 8 {
			return nil, &liberrors.ErrUnexpectedEOF{}
		}
		return Ack{LastReceived: binary.LittleEndian.Uint64(body[:8])}, nil
	default:
		return nil, &liberrors.ErrMalformedPacket{Reason: fmt.Sprintf("unknown frame tag 0x%02x", tag)}
	}
}

// WriteFrame writes f to w as a u32-LE length prefix followed by its tagged
// body. It does not manage read/write deadlines; callers set those on the
// underlying connection before calling.
func WriteFrame(w io.Writer, f any) error {
	body, err := encodeFrame(f)
	if err != nil {
		return err
	}
	var lbuf [4]byte
	binary.LittleEndian.PutUint32(lbuf[:], uint32(len(body)))
	if _, err := w.Write(lbuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame from r and decodes it.
func ReadFrame(r io.Reader) (any, error) {
	var lbuf [4]byte
	if _, err := io.ReadFull(r, lbuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lbuf[:])
	if n > MaxFrameLen {
		return nil, &liberrors.ErrFrameTooLarge{Length: int(n)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return decodeFrame(body)
}

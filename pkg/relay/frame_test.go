package relay

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/horazont/metric-relay/pkg/liberrors"
	"github.com/horazont/metric-relay/pkg/model"
	"github.com/stretchr/testify/require"
)

func roundTripFrame(t *testing.T, f any) any {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, f))
	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	return out
}

func TestFrameRoundTripClientHello(t *testing.T) {
	id := uuid.New()
	out := roundTripFrame(t, ClientHello{ClientID: id})
	require.Equal(t, ClientHello{ClientID: id}, out)
}

func TestFrameRoundTripServerHelloWithLastReceived(t *testing.T) {
	v := uint64(42)
	out := roundTripFrame(t, ServerHello{LastReceived: &v})
	sh, ok := out.(ServerHello)
	require.True(t, ok)
	require.NotNil(t, sh.LastReceived)
	require.Equal(t, v, *sh.LastReceived)
}

func TestFrameRoundTripServerHelloNilLastReceived(t *testing.T) {
	out := roundTripFrame(t, ServerHello{})
	sh, ok := out.(ServerHello)
	require.True(t, ok)
	require.Nil(t, sh.LastReceived)
}

func TestFrameRoundTripPingPong(t *testing.T) {
	require.Equal(t, Ping{}, roundTripFrame(t, Ping{}))
	require.Equal(t, Pong{}, roundTripFrame(t, Pong{}))
}

func TestFrameRoundTripRequestAckAndAck(t *testing.T) {
	require.Equal(t, RequestAck{}, roundTripFrame(t, RequestAck{}))
	out := roundTripFrame(t, Ack{LastReceived: 7})
	require.Equal(t, Ack{LastReceived: 7}, out)
}

func TestFrameRoundTripDataReadout(t *testing.T) {
	path := model.DevicePath{DeviceType: "thermo", Instance: "a"}
	r := model.NewReadout(time.Unix(1, 0).UTC(), path)
	r.Set("temperature", model.Value{Magnitude: 10, Unit: model.UnitCelsius})

	out := roundTripFrame(t, Data{Readout: r})
	d, ok := out.(Data)
	require.True(t, ok)
	require.NotNil(t, d.Readout)
	require.Nil(t, d.Block)
	require.True(t, d.Readout.Timestamp.Equal(r.Timestamp))
}

func TestFrameRoundTripDataStreamBlock(t *testing.T) {
	m := model.NewMaskedArray[int16](1)
	m.Set(0, 5)
	blk := model.StreamBlock{
		T0:     time.Unix(1, 0).UTC(),
		Path:   model.DevicePath{DeviceType: "imu", Instance: "a"},
		Period: time.Millisecond,
		Scale:  model.Value{Magnitude: 1},
		Data:   model.NewRawDataI16(m),
	}
	out := roundTripFrame(t, Data{Block: &blk})
	d, ok := out.(Data)
	require.True(t, ok)
	require.Nil(t, d.Readout)
	require.NotNil(t, d.Block)
	require.Equal(t, blk.Path, d.Block.Path)
}

func TestWriteFrameRejectsDataWithNoPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, Data{})
	require.Error(t, err)
	var malformed *liberrors.ErrMalformedPacket
	require.ErrorAs(t, err, &malformed)
}

func TestReadFrameRejectsOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	var lbuf [4]byte
	lbuf[0] = 0xff
	lbuf[1] = 0xff
	lbuf[2] = 0xff
	lbuf[3] = 0xff
	buf.Write(lbuf[:])
	_, err := ReadFrame(&buf)
	require.Error(t, err)
	var tooLarge *liberrors.ErrFrameTooLarge
	require.ErrorAs(t, err, &tooLarge)
}

func TestReadFrameRejectsTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	var lbuf [4]byte
	lbuf[0] = 10
	buf.Write(lbuf[:])
	buf.Write([]byte{byte(tagPing)})
	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameRejectsUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Ping{}))
	raw := buf.Bytes()
	raw[4] = 0xee
	_, err := ReadFrame(bytes.NewReader(raw))
	require.Error(t, err)
	var malformed *liberrors.ErrMalformedPacket
	require.ErrorAs(t, err, &malformed)
}

func TestFrameNameCoversAllFrameTypes(t *testing.T) {
	require.Equal(t, "ClientHello", frameName(ClientHello{}))
	require.Equal(t, "ServerHello", frameName(ServerHello{}))
	require.Equal(t, "Ping", frameName(Ping{}))
	require.Equal(t, "Pong", frameName(Pong{}))
	require.Equal(t, "Data", frameName(Data{}))
	require.Equal(t, "RequestAck", frameName(RequestAck{}))
	require.Equal(t, "Ack", frameName(Ack{}))
}

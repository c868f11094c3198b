package snurl

import (
	"testing"

	"github.com/horazont/metric-relay/internal/serialnum"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Type:         PacketData,
		ConnectionID: 0xdeadbeef,
		MinAvailSN:   serialnum.SerialNumber(10),
		MaxRecvdSN:   serialnum.SerialNumber(20),
		LastRecvdSN:  serialnum.SerialNumber(15),
	}
	enc := h.Encode()
	require.Len(t, enc, HeaderLen)

	got, rest, err := DecodeHeader(enc)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, h, got)
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, _, err := DecodeHeader([]byte{0x00, 0x01})
	require.Error(t, err)
}

func TestDecodeHeaderBadVersion(t *testing.T) {
	enc := Header{Type: PacketData}.Encode()
	enc[0] = 0x01
	_, _, err := DecodeHeader(enc)
	require.Error(t, err)
}

func TestDataFramesRoundTrip(t *testing.T) {
	frames := []DataFrame{
		{SN: serialnum.SerialNumber(5), Payload: []byte{1, 2, 3}},
		{SN: serialnum.SerialNumber(6), Payload: []byte{9}},
	}
	enc := EncodeDataFrames(nil, frames)
	got, err := DecodeDataFrames(enc)
	require.NoError(t, err)
	require.Equal(t, frames, got)
}

func TestDecodeDataFramesTruncatedHeader(t *testing.T) {
	_, err := DecodeDataFrames([]byte{0x01, 0x00})
	require.Error(t, err)
}

func TestDecodeDataFramesTruncatedPayload(t *testing.T) {
	// sn=1, len=5, but only 2 bytes follow.
	_, err := DecodeDataFrames([]byte{0x01, 0x00, 0x05, 0xAA, 0xBB})
	require.Error(t, err)
}

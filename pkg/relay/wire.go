// Package relay implements the node-to-node forwarding protocol: a
// length-prefixed, tagged-frame stream over TCP with a handshake and
// keepalive session state machine.
package relay

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/horazont/metric-relay/internal/serialnum"
	"github.com/horazont/metric-relay/pkg/liberrors"
	"github.com/horazont/metric-relay/pkg/model"
)

func putString(dst []byte, s string) []byte {
	dst = append(dst, byte(len(s)))
	dst = append(dst, s...)
	return dst
}

func takeString(b []byte) (string, []byte, error) {
	if len(b) < 1 {
		return "", nil, &liberrors.ErrUnexpectedEOF{}
	}
	n := int(b[0])
	b = b[1:]
	if len(b) < n {
		return "", nil, &liberrors.ErrUnexpectedEOF{}
	}
	return string(b[:n]), b[n:], nil
}

func putDevicePath(dst []byte, p model.DevicePath) []byte {
	dst = putString(dst, p.DeviceType)
	dst = putString(dst, p.Instance)
	return dst
}

func takeDevicePath(b []byte) (model.DevicePath, []byte, error) {
	deviceType, b, err := takeString(b)
	if err != nil {
		return model.DevicePath{}, nil, err
	}
	instance, b, err := takeString(b)
	if err != nil {
		return model.DevicePath{}, nil, err
	}
	return model.DevicePath{DeviceType: deviceType, Instance: instance}, b, nil
}

func putValue(dst []byte, v model.Value) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Magnitude))
	dst = append(dst, buf[:]...)
	dst = append(dst, byte(v.Unit))
	dst = putString(dst, v.OtherUnit)
	return dst
}

func takeValue(b []byte) (model.Value, []byte, error) {
	if len(b) < 9 {
		return model.Value{}, nil, &liberrors.ErrUnexpectedEOF{}
	}
	mag := math.Float64frombits(binary.LittleEndian.Uint64(b[0:8]))
	unit := model.Unit(b[8])
	b = b[9:]
	other, b, err := takeString(b)
	if err != nil {
		return model.Value{}, nil, err
	}
	return model.Value{Magnitude: mag, Unit: unit, OtherUnit: other}, b, nil
}

// EncodeReadout serializes r into the relay's stable little-endian wire
// format: timestamp, device path, then a length-prefixed sequence of named
// components in their insertion order.
func EncodeReadout(r *model.Readout) []byte {
	var buf []byte
	var tbuf [8]byte
	binary.LittleEndian.PutUint64(tbuf[:], uint64(r.Timestamp.UnixNano()))
	buf = append(buf, tbuf[:]...)
	buf = putDevicePath(buf, r.Path)

	names := r.Names()
	var cbuf [2]byte
	binary.LittleEndian.PutUint16(cbuf[:], uint16(len(names)))
	buf = append(buf, cbuf[:]...)
	for _, name := range names {
		v, _ := r.Get(name)
		buf = putString(buf, name)
		buf = putValue(buf, v)
	}
	return buf
}

// DecodeReadout parses a Readout from EncodeReadout's wire format.
func DecodeReadout(b []byte) (*model.Readout, error) {
	if len(b) < 8 {
		return nil, &liberrors.ErrUnexpectedEOF{}
	}
	ts := time.Unix(0, int64(binary.LittleEndian.Uint64(b[0:8]))).UTC()
	b = b[8:]

	path, b, err := takeDevicePath(b)
	if err != nil {
		return nil, err
	}
	if len(b) < 2 {
		return nil, &liberrors.ErrUnexpectedEOF{}
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	b = b[2:]

	r := model.NewReadout(ts, path)
	for i := 0; i < n; i++ {
		var name string
		name, b, err = takeString(b)
		if err != nil {
			return nil, err
		}
		var v model.Value
		v, b, err = takeValue(b)
		if err != nil {
			return nil, err
		}
		r.Set(name, v)
	}
	return r, nil
}

// EncodeStreamBlock serializes blk into the relay's stable little-endian
// wire format: origin, path, period and scale, then one validity flag plus
// raw element per sample.
func EncodeStreamBlock(blk model.StreamBlock) []byte {
	var buf []byte
	var tbuf [8]byte
	binary.LittleEndian.PutUint64(tbuf[:], uint64(blk.T0.UnixNano()))
	buf = append(buf, tbuf[:]...)

	var sbuf [2]byte
	binary.LittleEndian.PutUint16(sbuf[:], uint16(blk.Seq0))
	buf = append(buf, sbuf[:]...)

	buf = putDevicePath(buf, blk.Path)

	var pbuf [8]byte
	binary.LittleEndian.PutUint64(pbuf[:], uint64(blk.Period))
	buf = append(buf, pbuf[:]...)

	buf = putValue(buf, blk.Scale)
	buf = append(buf, byte(blk.Data.Kind))

	n := blk.Data.Len()
	var nbuf [2]byte
	binary.LittleEndian.PutUint16(nbuf[:], uint16(n))
	buf = append(buf, nbuf[:]...)

	switch blk.Data.Kind {
	case model.RawDataI16:
		for i := 0; i < n; i++ {
			buf = append(buf, validByte(blk.Data.I16.Valid[i]))
			var vbuf [2]byte
			binary.LittleEndian.PutUint16(vbuf[:], uint16(blk.Data.I16.Values[i]))
			buf = append(buf, vbuf[:]...)
		}
	case model.RawDataF64:
		for i := 0; i < n; i++ {
			buf = append(buf, validByte(blk.Data.F64.Valid[i]))
			var vbuf [8]byte
			binary.LittleEndian.PutUint64(vbuf[:], math.Float64bits(blk.Data.F64.Values[i]))
			buf = append(buf, vbuf[:]...)
		}
	}
	return buf
}

func validByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// DecodeStreamBlock parses a StreamBlock from EncodeStreamBlock's wire format.
func DecodeStreamBlock(b []byte) (model.StreamBlock, error) {
	if len(b) < 8 {
		return model.StreamBlock{}, &liberrors.ErrUnexpectedEOF{}
	}
	t0 := time.Unix(0, int64(binary.LittleEndian.Uint64(b[0:8]))).UTC()
	b = b[8:]

	if len(b) < 2 {
		return model.StreamBlock{}, &liberrors.ErrUnexpectedEOF{}
	}
	seq0 := serialnum.SerialNumber(binary.LittleEndian.Uint16(b[0:2]))
	b = b[2:]

	path, b, err := takeDevicePath(b)
	if err != nil {
		return model.StreamBlock{}, err
	}

	if len(b) < 8 {
		return model.StreamBlock{}, &liberrors.ErrUnexpectedEOF{}
	}
	period := time.Duration(binary.LittleEndian.Uint64(b[0:8]))
	b = b[8:]

	scale, b, err := takeValue(b)
	if err != nil {
		return model.StreamBlock{}, err
	}

	if len(b) < 3 {
		return model.StreamBlock{}, &liberrors.ErrUnexpectedEOF{}
	}
	kind := model.RawDataKind(b[0])
	n := int(binary.LittleEndian.Uint16(b[1:3]))
	b = b[3:]

	var data model.RawData
	switch kind {
	case model.RawDataI16:
		m := model.NewMaskedArray[int16](n)
		for i := 0; i < n; i++ {
			if len(b) < 3 {
				return model.StreamBlock{}, &liberrors.ErrUnexpectedEOF{}
			}
			valid := b[0] == 1
			v := int16(binary.LittleEndian.Uint16(b[1:3]))
			b = b[3:]
			if valid {
				m.Set(i, v)
			}
		}
		data = model.NewRawDataI16(m)
	case model.RawDataF64:
		m := model.NewMaskedArray[float64](n)
		for i := 0; i < n; i++ {
			if len(b) < 9 {
				return model.StreamBlock{}, &liberrors.ErrUnexpectedEOF{}
			}
			valid := b[0] == 1
			v := math.Float64frombits(binary.LittleEndian.Uint64(b[1:9]))
			b = b[9:]
			if valid {
				m.Set(i, v)
			}
		}
		data = model.NewRawDataF64(m)
	default:
		return model.StreamBlock{}, &liberrors.ErrMalformedPacket{Reason: "unknown stream data kind"}
	}

	return model.StreamBlock{T0: t0, Seq0: seq0, Path: path, Period: period, Scale: scale, Data: data}, nil
}

// Package streamcodec implements the bitmap/delta codec used to compress
// IMU sample streams: a bitmap selects, per sample, whether a one-byte
// signed delta or a two-byte raw delta follows in the payload region.
package streamcodec

import "github.com/horazont/metric-relay/pkg/liberrors"

// Decode expands an encoded block into the full sequence of samples it
// represents, starting from firstSample. encoded is the bitmap region
// followed immediately by the payload region; the bitmap's length is not
// given explicitly and is inferred by walking the payload (see
// bitmapLen).
//
// The returned slice has one entry per decoded sample, beginning with
// firstSample itself. Every delta is applied against firstSample directly,
// not against the previously decoded sample: firstSample is the block's
// fixed reference value for its whole lifetime.
func Decode(firstSample int16, encoded []byte) ([]int16, error) {
	bmLen, sampleCount, err := bitmapLen(encoded)
	if err != nil {
		return nil, err
	}
	payload := encoded[bmLen:]

	out := make([]int16, sampleCount+1)
	out[0] = firstSample
	anchor := uint16(firstSample)

	for k := 0; k < sampleCount; k++ {
		var delta int32
		if bitAt(encoded, k) {
			delta = int32(int8(payload[0]))
			payload = payload[1:]
		} else {
			delta = int32(int16(uint16(payload[0]) | uint16(payload[1])<<8))
			payload = payload[2:]
		}
		out[k+1] = int16(uint16(int32(anchor) + delta))
	}

	return out, nil
}

// bitmapLen infers how many leading bytes of encoded are the bitmap versus
// the payload. Bit k of the bitmap (MSB-first, byte k/8 of encoded, which
// is always within the bitmap prefix once that many bits have been
// considered) determines whether sample k costs 1 or 2 payload bytes. The
// walk advances one bit at a time until the bitmap length implied by the
// bit count so far (ceil(bits/8)) leaves exactly enough trailing bytes to
// satisfy everything consumed — at that point the payload is exhausted and
// the split point is found. An empty encoded region needs zero bits, zero
// bitmap bytes and zero payload, so it is a block with no samples beyond
// firstSample, not an error.
func bitmapLen(encoded []byte) (bmLen int, sampleCount int, err error) {
	total := len(encoded)
	if total == 0 {
		return 0, 0, nil
	}

	payloadConsumed := 0
	for bitIdx := 0; ; bitIdx++ {
		byteIdx := bitIdx / 8
		if byteIdx >= total {
			return 0, 0, &liberrors.ErrUnexpectedEOF{}
		}

		if bitAt(encoded, bitIdx) {
			payloadConsumed++
		} else {
			payloadConsumed += 2
		}

		n := bitIdx + 1
		candidateBmLen := (n + 7) / 8
		if candidateBmLen > total {
			return 0, 0, &liberrors.ErrUnexpectedEOF{}
		}
		remaining := total - candidateBmLen
		if remaining < payloadConsumed {
			return 0, 0, &liberrors.ErrUnexpectedEOF{}
		}
		if remaining == payloadConsumed {
			return candidateBmLen, n, nil
		}
	}
}

// bitAt reads bit i of buf, MSB-first within each byte.
func bitAt(buf []byte, i int) bool {
	byteIdx := i / 8
	bitIdx := 7 - (i % 8)
	return buf[byteIdx]&(1<<uint(bitIdx)) != 0
}

// Package serialnum implements RFC 1982 serial number arithmetic over
// 16-bit counters, used throughout the relay for sequence numbers and
// wrapping uptime counters.
package serialnum

const (
	modulus   = 1 << 16
	halfSpace = 1 << 15
)

// SerialNumber is a 16-bit counter that wraps around modulo 2^16.
type SerialNumber uint16

// Equal reports bit-equality.
func (a SerialNumber) Equal(b SerialNumber) bool {
	return a == b
}

// Less reports whether a precedes b under the RFC 1982 ordering. ok is false
// at the boundary where |a-b| mod 2^16 == 2^15, where ordering is undefined.
func (a SerialNumber) Less(b SerialNumber) (less bool, ok bool) {
	diff := int32(b) - int32(a)
	diff = ((diff % modulus) + modulus) % modulus
	if diff == halfSpace {
		return false, false
	}
	return diff < halfSpace, true
}

// Add returns a+k modulo 2^16. It panics if |k| >= 2^15, matching the
// programmer-error contract in the specification: such an offset is never
// meaningful under the RFC 1982 ordering.
func (a SerialNumber) Add(k int32) SerialNumber {
	if k >= halfSpace || k <= -halfSpace {
		panic("serialnum: offset magnitude must be < 2^15")
	}
	v := (int32(a) + k) % modulus
	if v < 0 {
		v += modulus
	}
	return SerialNumber(v)
}

// Sub returns the signed difference a-b, defined only where the ordering
// between a and b is defined. ok is false at the undefined boundary.
func (a SerialNumber) Sub(b SerialNumber) (diff int32, ok bool) {
	fwd := int32(a) - int32(b)
	fwd = ((fwd % modulus) + modulus) % modulus
	if fwd == halfSpace {
		return 0, false
	}
	if fwd < halfSpace {
		return fwd, true
	}
	return fwd - modulus, true
}

// WrapDiff computes the wrap-aware signed difference v1-v2 using a
// configured slack, as used by Timeline. The forward difference is
// (v1-v2) mod 2^16; the backward difference is (v2-v1) mod 2^16. If the
// backward difference is smaller than slack, the true difference is
// negative (-backward); otherwise it is the forward difference.
func WrapDiff(v1, v2 uint16, slack int32) int32 {
	fwd := int32(v1) - int32(v2)
	fwd = ((fwd % modulus) + modulus) % modulus

	bwd := int32(v2) - int32(v1)
	bwd = ((bwd % modulus) + modulus) % modulus

	if bwd < slack {
		return -bwd
	}
	return fwd
}

package graph

import (
	"math"

	"github.com/horazont/metric-relay/pkg/model"
)

// i16FullScale is the divisor Samplify/FFT/Summary use to turn a raw i16
// sample into a [-1, 1]-normalised fraction before applying a block's
// scale; f64 streams are assumed already normalised to that range.
const i16FullScale = 32767.0

// normalisedValue returns element i of blk's data as a value in [-1, 1]
// (for i16 data) or as-is (for f64 data), plus whether it is valid.
func normalisedValue(blk model.StreamBlock, i int) (float64, bool) {
	switch blk.Data.Kind {
	case model.RawDataI16:
		if !blk.Data.I16.Valid[i] {
			return 0, false
		}
		return float64(blk.Data.I16.Values[i]) / i16FullScale, true
	case model.RawDataF64:
		if !blk.Data.F64.Valid[i] {
			return 0, false
		}
		return blk.Data.F64.Values[i], true
	default:
		return 0, false
	}
}

// blockToFloat64 copies blk's raw (non-normalised) element values and
// validity mask into plain slices for numeric processing.
func blockToFloat64(blk model.StreamBlock) ([]float64, []bool) {
	n := blk.Data.Len()
	values := make([]float64, n)
	valid := make([]bool, n)
	switch blk.Data.Kind {
	case model.RawDataI16:
		for i := 0; i < n; i++ {
			valid[i] = blk.Data.I16.Valid[i]
			values[i] = float64(blk.Data.I16.Values[i])
		}
	case model.RawDataF64:
		copy(values, blk.Data.F64.Values)
		copy(valid, blk.Data.F64.Valid)
	}
	return values, valid
}

// writeFloat64 clips values back into blk's raw representation, for
// masked-out entries it leaves the existing (invalid) slot untouched.
func writeFloat64(blk *model.StreamBlock, values []float64, valid []bool) {
	switch blk.Data.Kind {
	case model.RawDataI16:
		for i, v := range values {
			if !valid[i] {
				continue
			}
			clipped := math.Round(v)
			if clipped > 32767 {
				clipped = 32767
			}
			if clipped < -32768 {
				clipped = -32768
			}
			blk.Data.I16.Set(i, int16(clipped))
		}
	case model.RawDataF64:
		for i, v := range values {
			if valid[i] {
				blk.Data.F64.Set(i, v)
			}
		}
	}
}

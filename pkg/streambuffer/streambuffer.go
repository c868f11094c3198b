// Package streambuffer reassembles jittered, possibly overlapping or
// out-of-order stream deliveries into uniform slice-aligned StreamBlocks.
package streambuffer

import (
	"time"

	"github.com/horazont/metric-relay/internal/serialnum"
	"github.com/horazont/metric-relay/pkg/liberrors"
	"github.com/horazont/metric-relay/pkg/model"
)

const maxElements = 32768

const resyncHorizon = 32765

// partialBlock is the block currently under construction.
type partialBlock struct {
	t0     time.Time
	seq0   serialnum.SerialNumber
	path   model.DevicePath
	period time.Duration
	scale  model.Value
	data   model.RawData
	cursor int
}

// InMemoryBuffer accumulates inbound sub-blocks into slice-aligned
// StreamBlocks, one device path's worth at a time.
type InMemoryBuffer struct {
	Slice time.Duration

	haveRef bool
	refT0   time.Time
	refSeq0 serialnum.SerialNumber

	partial *partialBlock
	ready   []model.StreamBlock
}

// NewInMemoryBuffer allocates a buffer for the given slice duration.
func NewInMemoryBuffer(slice time.Duration) *InMemoryBuffer {
	return &InMemoryBuffer{Slice: slice}
}

// Write ingests one inbound sub-block delivery.
func (b *InMemoryBuffer) Write(
	t0 time.Time,
	seq0 serialnum.SerialNumber,
	period time.Duration,
	path model.DevicePath,
	scale model.Value,
	data model.RawData,
) error {
	n := data.Len()
	if n >= maxElements {
		return &liberrors.ErrTooLong{Length: n}
	}
	if period <= 0 || period > b.Slice {
		return &liberrors.ErrInvalidPeriod{Reason: "period exceeds slice duration"}
	}
	if b.Slice%period != 0 {
		return &liberrors.ErrInvalidPeriod{Reason: "period does not evenly divide slice"}
	}
	samplesPerSlice := int(b.Slice / period)
	if samplesPerSlice < 1 || samplesPerSlice > 20000 {
		return &liberrors.ErrInvalidPeriod{Reason: "samples-per-slice outside [1, 20000]"}
	}

	outBlockT0, outBlockSeq0 := b.resolveBlockOrigin(t0, seq0, period)

	if b.needsNewPartial(seq0, period, scale, path, data.Kind, samplesPerSlice) {
		b.flushPartial()
		b.startPartial(outBlockT0, outBlockSeq0, period, path, scale, data.Kind, samplesPerSlice)
	}

	rel, ok := seq0.Sub(b.partial.seq0)
	if !ok || int(rel) < b.partial.cursor {
		return &liberrors.ErrInThePast{SequenceNumber: uint16(seq0)}
	}

	copied := copyInto(b.partial, int(rel), data)
	if end := int(rel) + copied; end > b.partial.cursor {
		b.partial.cursor = end
	}

	if b.partial.cursor >= samplesPerSlice {
		b.flushPartial()
	}

	if overhang := n - copied; overhang > 0 {
		newT0 := outBlockT0.Add(b.Slice)
		newSeq0 := outBlockSeq0.Add(int32(samplesPerSlice))
		b.startPartial(newT0, newSeq0, period, path, scale, data.Kind, samplesPerSlice)
		seeded := copyFrom(b.partial, data, copied)
		b.partial.cursor = seeded
	}

	return nil
}

// resolveBlockOrigin computes the slice-aligned (out_block_t0,
// out_block_seq0) pair a delivery belongs to, preferring sequence-number
// continuity with the current reference over raw timestamps when both are
// available and the sequence has not run backwards or past the horizon.
func (b *InMemoryBuffer) resolveBlockOrigin(t0 time.Time, seq0 serialnum.SerialNumber, period time.Duration) (time.Time, serialnum.SerialNumber) {
	if b.haveRef {
		if diff, ok := seq0.Sub(b.refSeq0); ok && diff >= 0 && diff < resyncHorizon {
			derivedT0 := b.refT0.Add(time.Duration(diff) * period)
			outBlockT0 := truncTime(derivedT0, b.Slice)
			alignPeriods := int32(derivedT0.Sub(outBlockT0) / period)
			return outBlockT0, seq0.Add(-alignPeriods)
		}
	}

	inBlockT0 := truncTime(t0, period)
	outBlockT0 := truncTime(inBlockT0, b.Slice)
	alignPeriods := int32(inBlockT0.Sub(outBlockT0) / period)
	return outBlockT0, seq0.Add(-alignPeriods)
}

func (b *InMemoryBuffer) needsNewPartial(
	seq0 serialnum.SerialNumber,
	period time.Duration,
	scale model.Value,
	path model.DevicePath,
	kind model.RawDataKind,
	capacity int,
) bool {
	if b.partial == nil {
		return true
	}
	if b.partial.period != period || b.partial.scale != scale || b.partial.path != path || b.partial.data.Kind != kind {
		return true
	}
	diff, ok := seq0.Sub(b.partial.seq0)
	return !ok || diff < 0 || int(diff) >= capacity
}

func (b *InMemoryBuffer) startPartial(
	t0 time.Time,
	seq0 serialnum.SerialNumber,
	period time.Duration,
	path model.DevicePath,
	scale model.Value,
	kind model.RawDataKind,
	capacity int,
) {
	var data model.RawData
	switch kind {
	case model.RawDataI16:
		data = model.NewRawDataI16(model.NewMaskedArray[int16](capacity))
	case model.RawDataF64:
		data = model.NewRawDataF64(model.NewMaskedArray[float64](capacity))
	}
	b.partial = &partialBlock{t0: t0, seq0: seq0, path: path, period: period, scale: scale, data: data}
	b.refT0, b.refSeq0, b.haveRef = t0, seq0, true
}

func (b *InMemoryBuffer) flushPartial() {
	if b.partial == nil {
		return
	}
	b.ready = append(b.ready, model.StreamBlock{
		T0:     b.partial.t0,
		Seq0:   b.partial.seq0,
		Path:   b.partial.path,
		Period: b.partial.period,
		Scale:  b.partial.scale,
		Data:   b.partial.data,
	})
	b.partial = nil
}

// PopReady returns and removes the oldest completed block, if any.
func (b *InMemoryBuffer) PopReady() (model.StreamBlock, bool) {
	if len(b.ready) == 0 {
		return model.StreamBlock{}, false
	}
	blk := b.ready[0]
	b.ready = b.ready[1:]
	return blk, true
}

// Flush force-emits the current partial block, if any, e.g. on stream close.
func (b *InMemoryBuffer) Flush() {
	b.flushPartial()
}

func copyInto(block *partialBlock, rel int, data model.RawData) int {
	capacity := block.data.Len()
	count := data.Len()
	if rel+count > capacity {
		count = capacity - rel
	}
	if count <= 0 {
		return 0
	}
	switch data.Kind {
	case model.RawDataI16:
		for i := 0; i < count; i++ {
			if data.I16.Valid[i] {
				block.data.I16.Set(rel+i, data.I16.Values[i])
			}
		}
	case model.RawDataF64:
		for i := 0; i < count; i++ {
			if data.F64.Valid[i] {
				block.data.F64.Set(rel+i, data.F64.Values[i])
			}
		}
	}
	return count
}

func copyFrom(block *partialBlock, data model.RawData, fromIdx int) int {
	capacity := block.data.Len()
	count := data.Len() - fromIdx
	if count > capacity {
		count = capacity
	}
	if count <= 0 {
		return 0
	}
	switch data.Kind {
	case model.RawDataI16:
		for i := 0; i < count; i++ {
			if data.I16.Valid[fromIdx+i] {
				block.data.I16.Set(i, data.I16.Values[fromIdx+i])
			}
		}
	case model.RawDataF64:
		for i := 0; i < count; i++ {
			if data.F64.Valid[fromIdx+i] {
				block.data.F64.Set(i, data.F64.Values[fromIdx+i])
			}
		}
	}
	return count
}

func truncTime(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	n := t.UnixNano()
	dn := d.Nanoseconds()
	rem := n % dn
	if rem < 0 {
		rem += dn
	}
	return t.Add(-time.Duration(rem))
}

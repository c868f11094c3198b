package model

import (
	"time"

	"github.com/horazont/metric-relay/internal/serialnum"
)

// StreamBlock is a slice-aligned run of raw samples from a single device
// path, along with the scale needed to turn a raw element into a physical
// Value. Built once by a decoder or InMemoryBuffer and then shared
// immutably among subscribers.
type StreamBlock struct {
	T0     time.Time
	Seq0   serialnum.SerialNumber
	Path   DevicePath
	Period time.Duration
	Scale  Value
	Data   RawData
}

// End returns the timestamp one period past the block's last sample.
func (b StreamBlock) End() time.Time {
	return b.T0.Add(time.Duration(b.Data.Len()) * b.Period)
}

// Clone returns a deep copy safe for independent mutation, e.g. by Detrend.
func (b StreamBlock) Clone() StreamBlock {
	b.Data = b.Data.Clone()
	return b
}

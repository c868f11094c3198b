package graph

import (
	"path"
	"strings"

	"github.com/horazont/metric-relay/pkg/model"
)

// Predicate gates whether a router filter applies to a given readout. It
// matches a readout's "device_type/instance" path against a case-insensitive
// glob pattern in which '/' is never consumed by a wildcard, mirroring
// path.Match's own separator handling. An empty Pattern matches everything.
type Predicate struct {
	Pattern string
	Invert  bool
}

// Matches reports whether path satisfies the predicate.
func (p Predicate) Matches(dp model.DevicePath) bool {
	matched := true
	if p.Pattern != "" {
		matched, _ = path.Match(strings.ToLower(p.Pattern), strings.ToLower(dp.String()))
	}
	if p.Invert {
		matched = !matched
	}
	return matched
}

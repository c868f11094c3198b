package graph

import "github.com/horazont/metric-relay/pkg/model"

// SelectByPathFilter keeps or drops whole readouts by matching their
// device path against Predicate.
type SelectByPathFilter struct {
	Predicate Predicate
}

func (f *SelectByPathFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	return r, f.Predicate.Matches(r.Path)
}

// DropComponentFilter removes a named component, if present.
type DropComponentFilter struct {
	Predicate Predicate
	Name      string
}

func (f *DropComponentFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	if !f.Predicate.Matches(r.Path) {
		return r, true
	}
	if _, ok := r.Get(f.Name); !ok {
		return r, true
	}
	out := r.Clone()
	out.Delete(f.Name)
	return out, true
}

// KeepComponentFilter keeps only the named components, dropping all others.
type KeepComponentFilter struct {
	Predicate Predicate
	Names     []string
}

func (f *KeepComponentFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	if !f.Predicate.Matches(r.Path) {
		return r, true
	}
	keep := make(map[string]struct{}, len(f.Names))
	for _, n := range f.Names {
		keep[n] = struct{}{}
	}
	out := model.NewReadout(r.Timestamp, r.Path)
	for _, n := range r.Names() {
		if _, ok := keep[n]; ok {
			v, _ := r.Get(n)
			out.Set(n, v)
		}
	}
	return out, true
}

// MapInstanceFilter substitutes DevicePath.Instance via an exact-string
// lookup table; readouts whose instance is not in the table pass through
// unchanged.
type MapInstanceFilter struct {
	Predicate Predicate
	Table     map[string]string
}

func (f *MapInstanceFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	if !f.Predicate.Matches(r.Path) {
		return r, true
	}
	mapped, ok := f.Table[r.Path.Instance]
	if !ok {
		return r, true
	}
	out := r.Clone()
	out.Path = r.Path.WithInstance(mapped)
	return out, true
}

// MapDeviceTypeFilter substitutes DevicePath.DeviceType via an exact-string
// lookup table.
type MapDeviceTypeFilter struct {
	Predicate Predicate
	Table     map[string]string
}

func (f *MapDeviceTypeFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	if !f.Predicate.Matches(r.Path) {
		return r, true
	}
	mapped, ok := f.Table[r.Path.DeviceType]
	if !ok {
		return r, true
	}
	out := r.Clone()
	out.Path = r.Path.WithDeviceType(mapped)
	return out, true
}

// ValueInstanceRange maps one half-open [Min, Max) magnitude range of a
// component to a replacement instance.
type ValueInstanceRange struct {
	Min, Max float64
	Instance string
}

// MapInstanceValueFilter replaces DevicePath.Instance based on which range a
// named component's value falls into. Ranges are tested in order; the first
// match wins.
type MapInstanceValueFilter struct {
	Predicate Predicate
	Component string
	Ranges    []ValueInstanceRange
}

func (f *MapInstanceValueFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	if !f.Predicate.Matches(r.Path) {
		return r, true
	}
	v, ok := r.Get(f.Component)
	if !ok {
		return r, true
	}
	for _, rg := range f.Ranges {
		if v.Magnitude >= rg.Min && v.Magnitude < rg.Max {
			out := r.Clone()
			out.Path = r.Path.WithInstance(rg.Instance)
			return out, true
		}
	}
	return r, true
}

// RenameFilter renames a component key without evaluating a script.
type RenameFilter struct {
	Predicate Predicate
	From, To  string
}

func (f *RenameFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	if !f.Predicate.Matches(r.Path) {
		return r, true
	}
	v, ok := r.Get(f.From)
	if !ok {
		return r, true
	}
	out := r.Clone()
	out.Delete(f.From)
	out.Set(f.To, v)
	return out, true
}

// PlausibleRange bounds one component's accepted magnitude range, keyed by
// device type and component, with an optional per-instance override
// (an empty Instance matches any instance of that device type).
type PlausibleRange struct {
	DeviceType string
	Component  string
	Instance   string
	Min, Max   float64
}

// KeepIfPlausibleFilter drops readouts carrying a component outside its
// configured sanity range.
type KeepIfPlausibleFilter struct {
	Ranges []PlausibleRange
}

func (f *KeepIfPlausibleFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	type candidate struct {
		rg    PlausibleRange
		exact bool
	}
	chosen := make(map[string]candidate)
	for _, rg := range f.Ranges {
		if rg.DeviceType != r.Path.DeviceType {
			continue
		}
		if rg.Instance != "" && rg.Instance != r.Path.Instance {
			continue
		}
		exact := rg.Instance != ""
		if cur, ok := chosen[rg.Component]; !ok || (exact && !cur.exact) {
			chosen[rg.Component] = candidate{rg: rg, exact: exact}
		}
	}
	for component, c := range chosen {
		v, ok := r.Get(component)
		if !ok {
			continue
		}
		if v.Magnitude < c.rg.Min || v.Magnitude > c.rg.Max {
			return r, false
		}
	}
	return r, true
}

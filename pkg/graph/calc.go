package graph

import (
	"math"

	"github.com/horazont/metric-relay/pkg/model"
	"github.com/horazont/metric-relay/pkg/script"
)

// CalcFilter evaluates a compiled script over the readout's own components
// (by name) as the namespace, inserting or overwriting Target with the
// result. Per the undefined-name/NaN handling in the error taxonomy, a
// script referencing a missing component or producing NaN leaves the
// readout unchanged rather than failing the pipeline.
type CalcFilter struct {
	Predicate Predicate
	Program   script.Node
	Target    string
	Unit      model.Unit
}

func (f *CalcFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	if !f.Predicate.Matches(r.Path) {
		return r, true
	}
	ns := make(script.MapNamespace, r.Len())
	r.Each(func(name string, v model.Value) {
		ns[name] = v.Magnitude
	})
	v, err := f.Program.Eval(ns)
	if err != nil || math.IsNaN(v) {
		return r, true
	}
	out := r.Clone()
	out.Set(f.Target, model.Value{Magnitude: v, Unit: f.Unit})
	return out, true
}

// MapFilter evaluates a compiled script whose namespace exposes one source
// component's own magnitude under the singleton name "value", writing the
// result to Target (which may equal Source, to transform a component
// in place).
type MapFilter struct {
	Predicate Predicate
	Source    string
	Target    string
	Program   script.Node
	Unit      model.Unit
}

func (f *MapFilter) Apply(r *model.Readout) (*model.Readout, bool) {
	if !f.Predicate.Matches(r.Path) {
		return r, true
	}
	src, ok := r.Get(f.Source)
	if !ok {
		return r, true
	}
	v, err := f.Program.Eval(script.MapNamespace{"value": src.Magnitude})
	if err != nil || math.IsNaN(v) {
		return r, true
	}
	unit := f.Unit
	if unit == model.UnitArbitrary && f.Target == f.Source {
		unit = src.Unit
	}
	out := r.Clone()
	out.Set(f.Target, model.Value{Magnitude: v, Unit: unit})
	return out, true
}

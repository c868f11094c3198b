package graph

import (
	"testing"
	"time"

	"github.com/horazont/metric-relay/pkg/model"
	"github.com/horazont/metric-relay/pkg/script"
	"github.com/stretchr/testify/require"
)

func TestCalcFilterWritesComputedComponent(t *testing.T) {
	prog, err := script.ParseRPN("a b +")
	require.NoError(t, err)
	f := &CalcFilter{Program: prog, Target: "sum"}

	r := newTestReadout(testPath("thermo", "a"), map[string]float64{"a": 3, "b": 4})
	out, keep := f.Apply(r)
	require.True(t, keep)
	v, ok := out.Get("sum")
	require.True(t, ok)
	require.Equal(t, 7.0, v.Magnitude)
}

func TestCalcFilterLeavesReadoutUnchangedOnUndefinedName(t *testing.T) {
	prog, err := script.ParseRPN("missing 1 +")
	require.NoError(t, err)
	f := &CalcFilter{Program: prog, Target: "sum"}

	r := newTestReadout(testPath("thermo", "a"), map[string]float64{"a": 3})
	out, keep := f.Apply(r)
	require.True(t, keep)
	require.Same(t, r, out)
	_, ok := out.Get("sum")
	require.False(t, ok)
}

func TestCalcFilterSkipsNonMatchingPath(t *testing.T) {
	prog, err := script.ParseRPN("1")
	require.NoError(t, err)
	f := &CalcFilter{Predicate: Predicate{Pattern: "imu/*"}, Program: prog, Target: "x"}

	r := newTestReadout(testPath("thermo", "a"), nil)
	out, keep := f.Apply(r)
	require.True(t, keep)
	require.Same(t, r, out)
}

func TestMapFilterTransformsSourceInPlace(t *testing.T) {
	prog, err := script.ParseSExpr("(* value 2)")
	require.NoError(t, err)
	f := &MapFilter{Source: "raw", Target: "raw", Program: prog}

	r := newTestReadout(testPath("thermo", "a"), map[string]float64{"raw": 5})
	out, keep := f.Apply(r)
	require.True(t, keep)
	v, ok := out.Get("raw")
	require.True(t, ok)
	require.Equal(t, 10.0, v.Magnitude)
}

func TestMapFilterInheritsSourceUnitWhenTargetEqualsSourceAndUnitUnset(t *testing.T) {
	prog, err := script.ParseSExpr("(* value 2)")
	require.NoError(t, err)
	f := &MapFilter{Source: "raw", Target: "raw", Program: prog}

	r := model.NewReadout(time.Unix(0, 0).UTC(), testPath("thermo", "a"))
	r.Set("raw", model.Value{Magnitude: 5, Unit: model.UnitCelsius})
	out, keep := f.Apply(r)
	require.True(t, keep)
	v, _ := out.Get("raw")
	require.Equal(t, model.UnitCelsius, v.Unit)
}

func TestMapFilterSkipsMissingSource(t *testing.T) {
	prog, err := script.ParseSExpr("(* value 2)")
	require.NoError(t, err)
	f := &MapFilter{Source: "missing", Target: "out", Program: prog}

	r := newTestReadout(testPath("thermo", "a"), nil)
	out, keep := f.Apply(r)
	require.True(t, keep)
	require.Same(t, r, out)
}

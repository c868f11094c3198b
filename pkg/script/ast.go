// Package script implements the small arithmetic expression language used
// by router filters: two front-end parsers (S-expression and reverse
// Polish) compiling down to a shared AST and evaluator.
package script

import (
	"math"

	"github.com/horazont/metric-relay/pkg/liberrors"
)

// Namespace resolves a bare reference to a value during evaluation.
type Namespace interface {
	Lookup(name string) (float64, bool)
}

// MapNamespace is a Namespace backed by a plain map, used for the Map
// filter's singleton "value" namespace and in tests.
type MapNamespace map[string]float64

func (m MapNamespace) Lookup(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

// Node is one compiled expression tree node.
type Node interface {
	Eval(ns Namespace) (float64, error)
}

type constantNode float64

func (c constantNode) Eval(Namespace) (float64, error) {
	return float64(c), nil
}

type refNode string

func (r refNode) Eval(ns Namespace) (float64, error) {
	v, ok := ns.Lookup(string(r))
	if !ok {
		return 0, &liberrors.ErrUndefinedName{Name: string(r)}
	}
	return v, nil
}

// binOpNode implements +, -, *, /, ^.
type binOpNode struct {
	op       byte
	lhs, rhs Node
}

func (n *binOpNode) Eval(ns Namespace) (float64, error) {
	l, err := n.lhs.Eval(ns)
	if err != nil {
		return 0, err
	}
	r, err := n.rhs.Eval(ns)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		return l / r, nil
	case '^':
		return math.Pow(l, r), nil
	default:
		panic("script: unknown operator " + string(n.op))
	}
}

// callNode invokes one of the named functions in funcTable.
type callNode struct {
	name string
	args []Node
	fn   func([]float64) float64
}

func (n *callNode) Eval(ns Namespace) (float64, error) {
	vals := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.Eval(ns)
		if err != nil {
			return 0, err
		}
		vals[i] = v
	}
	return n.fn(vals), nil
}

package script

import (
	"strconv"
	"strings"

	"github.com/horazont/metric-relay/pkg/liberrors"
)

// ParseRPN compiles a reverse-Polish expression, e.g. "a b + 1 !to-decibel".
// Operators pop two operands; a function call is spelled "!name" and pops
// as many operands as the function's arity.
func ParseRPN(src string) (Node, error) {
	var stack []Node

	for _, tok := range strings.Fields(src) {
		switch {
		case isNumberToken(tok):
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, &liberrors.ErrInvalidToken{Token: tok}
			}
			stack = append(stack, constantNode(v))

		case len(tok) == 1 && strings.ContainsRune("+-*/^", rune(tok[0])):
			if len(stack) < 2 {
				return nil, &liberrors.ErrArityMismatch{Name: tok, Expected: 2, Got: len(stack)}
			}
			rhs, lhs := stack[len(stack)-1], stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			stack = append(stack, &binOpNode{op: tok[0], lhs: lhs, rhs: rhs})

		case strings.HasPrefix(tok, "!"):
			name := tok[1:]
			if name == "" {
				return nil, &liberrors.ErrInvalidToken{Token: tok}
			}
			spec, ok := funcTable[name]
			if !ok {
				return nil, &liberrors.ErrUndefinedFunction{Name: name}
			}
			if len(stack) < spec.arity {
				return nil, &liberrors.ErrArityMismatch{Name: name, Expected: spec.arity, Got: len(stack)}
			}
			split := len(stack) - spec.arity
			args := append([]Node(nil), stack[split:]...)
			stack = stack[:split]
			stack = append(stack, &callNode{name: name, args: args, fn: spec.call})

		default:
			stack = append(stack, refNode(tok))
		}
	}

	if len(stack) != 1 {
		return nil, &liberrors.ErrInvalidToken{Token: src}
	}
	return stack[0], nil
}

func isNumberToken(tok string) bool {
	if tok == "" {
		return false
	}
	if tok[0] >= '0' && tok[0] <= '9' {
		return true
	}
	return tok[0] == '-' && len(tok) > 1 && tok[1] >= '0' && tok[1] <= '9'
}

package script

import (
	"strconv"
	"strings"

	"github.com/horazont/metric-relay/pkg/liberrors"
)

// ParseSExpr compiles a parenthesised prefix expression, e.g.
// "(+ a (heat-index temp hum))". Bare operators (+ - * / ^) and function
// names are both written as the head of a parenthesised form; + and * are
// variadic and left-fold, the rest take exactly two arguments (functions
// take their declared arity).
func ParseSExpr(src string) (Node, error) {
	toks := tokenizeSExpr(src)
	node, rest, err := parseSExprNode(toks)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, &liberrors.ErrInvalidToken{Token: rest[0]}
	}
	return node, nil
}

func tokenizeSExpr(src string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range src {
		switch r {
		case '(', ')':
			flush()
			toks = append(toks, string(r))
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

func parseSExprNode(toks []string) (Node, []string, error) {
	if len(toks) == 0 {
		return nil, nil, &liberrors.ErrInvalidToken{Token: ""}
	}

	head := toks[0]
	switch head {
	case "(":
		if len(toks) < 2 {
			return nil, nil, &liberrors.ErrInvalidToken{Token: "("}
		}
		op := toks[1]
		rest := toks[2:]
		var args []Node
		for len(rest) > 0 && rest[0] != ")" {
			var arg Node
			var err error
			arg, rest, err = parseSExprNode(rest)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, arg)
		}
		if len(rest) == 0 {
			return nil, nil, &liberrors.ErrInvalidToken{Token: "("}
		}
		rest = rest[1:] // consume ")"
		node, err := buildCall(op, args)
		if err != nil {
			return nil, nil, err
		}
		return node, rest, nil

	case ")":
		return nil, nil, &liberrors.ErrInvalidToken{Token: ")"}

	default:
		return parseAtom(head), toks[1:], nil
	}
}

func parseAtom(tok string) Node {
	if v, err := strconv.ParseFloat(tok, 64); err == nil {
		return constantNode(v)
	}
	return refNode(tok)
}

func buildCall(op string, args []Node) (Node, error) {
	switch op {
	case "+", "*":
		if len(args) < 1 {
			return nil, &liberrors.ErrArityMismatch{Name: op, Expected: 1, Got: len(args)}
		}
		expr := args[0]
		for _, more := range args[1:] {
			expr = &binOpNode{op: op[0], lhs: expr, rhs: more}
		}
		return expr, nil

	case "-", "/", "^":
		if len(args) != 2 {
			return nil, &liberrors.ErrArityMismatch{Name: op, Expected: 2, Got: len(args)}
		}
		return &binOpNode{op: op[0], lhs: args[0], rhs: args[1]}, nil

	default:
		spec, ok := funcTable[op]
		if !ok {
			return nil, &liberrors.ErrUndefinedFunction{Name: op}
		}
		if len(args) != spec.arity {
			return nil, &liberrors.ErrArityMismatch{Name: op, Expected: spec.arity, Got: len(args)}
		}
		return &callNode{name: op, args: args, fn: spec.call}, nil
	}
}

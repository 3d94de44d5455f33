// Package formula compiles arithmetic expression strings into expression
// graph nodes. Identifiers resolve against a caller-supplied variable set,
// so a compiled formula participates in the graph's dirty tracking like any
// hand-built node.
//
// Supported syntax: + - * / ^ with usual precedence, unary minus,
// parentheses, numeric literals and single-argument function calls
// (sin, cos, tan, exp, log, sqrt, abs) plus two-argument pow, min and max.
package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/orneryd/skuld/pkg/graph"
)

// expr is a compiled expression fragment evaluating against the current
// server values.
type expr func(args []float64) float64

var functions = map[string]struct {
	arity int
	eval  func(v []float64) float64
}{
	"sin":  {1, func(v []float64) float64 { return math.Sin(v[0]) }},
	"cos":  {1, func(v []float64) float64 { return math.Cos(v[0]) }},
	"tan":  {1, func(v []float64) float64 { return math.Tan(v[0]) }},
	"exp":  {1, func(v []float64) float64 { return math.Exp(v[0]) }},
	"log":  {1, func(v []float64) float64 { return math.Log(v[0]) }},
	"sqrt": {1, func(v []float64) float64 { return math.Sqrt(v[0]) }},
	"abs":  {1, func(v []float64) float64 { return math.Abs(v[0]) }},
	"pow":  {2, func(v []float64) float64 { return math.Pow(v[0], v[1]) }},
	"min":  {2, func(v []float64) float64 { return math.Min(v[0], v[1]) }},
	"max":  {2, func(v []float64) float64 { return math.Max(v[0], v[1]) }},
}

// Parse compiles source into a formula node named name. Every identifier in
// the expression must name a member of vars; the referenced variables
// become the node's servers in order of first appearance.
func Parse(name, source string, vars *graph.Set) (*graph.Func, error) {
	tokens := tokenize(source)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("formula %q: empty expression", name)
	}

	p := &parser{vars: vars, slots: map[string]int{}}
	root, pos, err := p.parseSum(tokens, 0)
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", name, err)
	}
	if pos != len(tokens) {
		return nil, fmt.Errorf("formula %q: unexpected %q", name, tokens[pos])
	}

	return graph.NewFunc(name, source, root, p.servers...), nil
}

type parser struct {
	vars    *graph.Set
	servers []graph.Real
	slots   map[string]int
}

// parseSum handles + and -, the lowest precedence level.
func (p *parser) parseSum(tokens []string, pos int) (expr, int, error) {
	left, pos, err := p.parseProduct(tokens, pos)
	if err != nil {
		return nil, pos, err
	}
	for pos < len(tokens) && (tokens[pos] == "+" || tokens[pos] == "-") {
		op := tokens[pos]
		right, newPos, err := p.parseProduct(tokens, pos+1)
		if err != nil {
			return nil, newPos, err
		}
		pos = newPos
		l, r := left, right
		if op == "+" {
			left = func(v []float64) float64 { return l(v) + r(v) }
		} else {
			left = func(v []float64) float64 { return l(v) - r(v) }
		}
	}
	return left, pos, nil
}

// parseProduct handles * and /.
func (p *parser) parseProduct(tokens []string, pos int) (expr, int, error) {
	left, pos, err := p.parseUnary(tokens, pos)
	if err != nil {
		return nil, pos, err
	}
	for pos < len(tokens) && (tokens[pos] == "*" || tokens[pos] == "/") {
		op := tokens[pos]
		right, newPos, err := p.parseUnary(tokens, pos+1)
		if err != nil {
			return nil, newPos, err
		}
		pos = newPos
		l, r := left, right
		if op == "*" {
			left = func(v []float64) float64 { return l(v) * r(v) }
		} else {
			left = func(v []float64) float64 { return l(v) / r(v) }
		}
	}
	return left, pos, nil
}

// parseUnary handles leading minus.
func (p *parser) parseUnary(tokens []string, pos int) (expr, int, error) {
	if pos < len(tokens) && tokens[pos] == "-" {
		inner, newPos, err := p.parseUnary(tokens, pos+1)
		if err != nil {
			return nil, newPos, err
		}
		return func(v []float64) float64 { return -inner(v) }, newPos, nil
	}
	return p.parsePower(tokens, pos)
}

// parsePower handles ^, right associative.
func (p *parser) parsePower(tokens []string, pos int) (expr, int, error) {
	base, pos, err := p.parsePrimary(tokens, pos)
	if err != nil {
		return nil, pos, err
	}
	if pos < len(tokens) && tokens[pos] == "^" {
		exponent, newPos, err := p.parseUnary(tokens, pos+1)
		if err != nil {
			return nil, newPos, err
		}
		b, e := base, exponent
		return func(v []float64) float64 { return math.Pow(b(v), e(v)) }, newPos, nil
	}
	return base, pos, nil
}

// parsePrimary handles literals, identifiers, calls and parentheses.
func (p *parser) parsePrimary(tokens []string, pos int) (expr, int, error) {
	if pos >= len(tokens) {
		return nil, pos, fmt.Errorf("unexpected end of expression")
	}
	tok := tokens[pos]

	if tok == "(" {
		inner, newPos, err := p.parseSum(tokens, pos+1)
		if err != nil {
			return nil, newPos, err
		}
		if newPos >= len(tokens) || tokens[newPos] != ")" {
			return nil, newPos, fmt.Errorf("missing closing parenthesis")
		}
		return inner, newPos + 1, nil
	}

	if n, err := strconv.ParseFloat(tok, 64); err == nil {
		return func([]float64) float64 { return n }, pos + 1, nil
	}

	if !isIdentifier(tok) {
		return nil, pos, fmt.Errorf("unexpected %q", tok)
	}

	// Function call
	if fn, ok := functions[tok]; ok && pos+1 < len(tokens) && tokens[pos+1] == "(" {
		args := make([]expr, 0, fn.arity)
		newPos := pos + 2
		for k := 0; k < fn.arity; k++ {
			if k > 0 {
				if newPos >= len(tokens) || tokens[newPos] != "," {
					return nil, newPos, fmt.Errorf("%s expects %d arguments", tok, fn.arity)
				}
				newPos++
			}
			arg, p2, err := p.parseSum(tokens, newPos)
			if err != nil {
				return nil, p2, err
			}
			args = append(args, arg)
			newPos = p2
		}
		if newPos >= len(tokens) || tokens[newPos] != ")" {
			return nil, newPos, fmt.Errorf("missing closing parenthesis after %s arguments", tok)
		}
		eval := fn.eval
		scratch := make([]float64, fn.arity)
		call := func(v []float64) float64 {
			for i, a := range args {
				scratch[i] = a(v)
			}
			return eval(scratch)
		}
		return call, newPos + 1, nil
	}

	// Variable reference
	slot, ok := p.slots[tok]
	if !ok {
		ref := p.vars.Find(tok)
		if ref == nil {
			return nil, pos, fmt.Errorf("unknown identifier %q", tok)
		}
		slot = len(p.servers)
		p.servers = append(p.servers, ref)
		p.slots[tok] = slot
	}
	return func(v []float64) float64 { return v[slot] }, pos + 1, nil
}

func isIdentifier(tok string) bool {
	for i, c := range tok {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return len(tok) > 0
}

// tokenize splits an expression into tokens, keeping numeric literals with
// exponent notation intact.
func tokenize(source string) []string {
	tokens := make([]string, 0)
	current := strings.Builder{}
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(source); i++ {
		c := source[i]
		switch c {
		case ' ', '\t', '\n', '\r':
			flush()
		case '(', ')', ',', '*', '/', '^':
			flush()
			tokens = append(tokens, string(c))
		case '+', '-':
			// Part of an exponent like 1e-5 stays in the literal.
			if current.Len() > 0 && isExponentTail(current.String(), source, i) {
				current.WriteByte(c)
				continue
			}
			flush()
			tokens = append(tokens, string(c))
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return tokens
}

func isExponentTail(cur string, source string, i int) bool {
	last := cur[len(cur)-1]
	if last != 'e' && last != 'E' {
		return false
	}
	if _, err := strconv.ParseFloat(cur[:len(cur)-1], 64); err != nil {
		return false
	}
	return i+1 < len(source) && source[i+1] >= '0' && source[i+1] <= '9'
}

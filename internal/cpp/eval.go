package cpp

import (
	"strconv"

	"github.com/sysprog21/shecc-sub000/internal/diag"
	"github.com/sysprog21/shecc-sub000/internal/token"
)

// evalConstExpr evaluates a #if/#elif line as a constant integer
// expression, per spec.md §4.B: unary + - ~ !, the binary operators listed
// there, and the defined(X) predicate. && and || are NOT short-circuit
// here — both sides are always evaluated — preserving the source's
// documented TODO rather than guessing intent, per spec.md §9.
func (p *Preprocessor) evalConstExpr(line []token.Token, loc diag.Location) (int64, error) {
	toks, err := p.expandForEval(line)
	if err != nil {
		return 0, err
	}
	ev := &evaluator{p: p, toks: toks, loc: loc}
	v, err := ev.parseExpr(0)
	if err != nil {
		return 0, err
	}
	if ev.pos != len(ev.toks) {
		return 0, diag.New(diag.Preprocess, loc, "unexpected token in constant expression")
	}
	return v, nil
}

// expandForEval macro-expands a #if/#elif line's tokens (other than the
// defined(X) operator, whose operand must not be macro-expanded) before
// constant evaluation.
func (p *Preprocessor) expandForEval(line []token.Token) ([]token.Token, error) {
	var out []token.Token
	pending := append([]token.Token{}, line...)
	for len(pending) > 0 {
		t := pending[0]
		if isSpaceKind(t.Kind) {
			pending = pending[1:]
			continue
		}
		if t.Kind == token.Identifier && t.Text == "defined" {
			rest := pending[1:]
			i := skipSpace(rest)
			paren := false
			if i < len(rest) && rest[i].Kind == token.LParen {
				paren = true
				i++
			}
			i += skipSpace(rest[i:])
			if i >= len(rest) || rest[i].Kind != token.Identifier {
				return nil, diag.New(diag.Preprocess, t.Loc, "defined() requires a macro name")
			}
			name := rest[i].Text
			i++
			if paren {
				i += skipSpace(rest[i:])
				if i >= len(rest) || rest[i].Kind != token.RParen {
					return nil, diag.New(diag.Preprocess, t.Loc, "unterminated defined()")
				}
				i++
			}
			val := int64(0)
			if m, ok := p.Macros[name]; ok && !m.IsDisabled {
				val = 1
			}
			out = append(out, token.Token{Kind: token.Numeric, Text: strconv.FormatInt(val, 10), Loc: t.Loc})
			pending = rest[i:]
			continue
		}
		if t.Kind == token.Identifier {
			ok, expansion, remaining, err := p.expandOne(t, pending[1:])
			if err != nil {
				return nil, err
			}
			if ok {
				pending = append(append([]token.Token{}, expansion...), remaining...)
				continue
			}
			// An undefined identifier in a constant expression evaluates to 0,
			// matching the preprocessor convention for unexpanded names.
			out = append(out, token.Token{Kind: token.Numeric, Text: "0", Loc: t.Loc})
			pending = pending[1:]
			continue
		}
		out = append(out, t)
		pending = pending[1:]
	}
	return out, nil
}

type evaluator struct {
	p    *Preprocessor
	toks []token.Token
	pos  int
	loc  diag.Location
}

func (e *evaluator) peek() token.Token {
	if e.pos < len(e.toks) {
		return e.toks[e.pos]
	}
	return token.Token{Kind: token.EOF}
}

func (e *evaluator) advance() token.Token {
	t := e.peek()
	e.pos++
	return t
}

// binPrec maps a binary operator kind to its precedence; higher binds
// tighter. Mirrors spec.md §4.B's listed operator set.
var binPrec = map[token.Kind]int{
	token.LogOr:  1,
	token.LogAnd: 2,
	token.Pipe:   3,
	token.Caret:  4,
	token.Amp:    5,
	token.Eq:     6, token.Neq: 6,
	token.Lt: 7, token.Leq: 7, token.Gt: 7, token.Geq: 7,
	token.Shl: 8, token.Shr: 8,
	token.Plus: 9, token.Minus: 9,
	token.Star: 10, token.Slash: 10, token.Percent: 10,
}

func (e *evaluator) parseExpr(minPrec int) (int64, error) {
	lhs, err := e.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op := e.peek().Kind
		prec, ok := binPrec[op]
		if !ok || prec < minPrec {
			return lhs, nil
		}
		e.advance()
		rhs, err := e.parseExpr(prec + 1)
		if err != nil {
			return 0, err
		}
		lhs, err = applyBinary(op, lhs, rhs, e.loc)
		if err != nil {
			return 0, err
		}
	}
}

func applyBinary(op token.Kind, a, b int64, loc diag.Location) (int64, error) {
	switch op {
	case token.Plus:
		return a + b, nil
	case token.Minus:
		return a - b, nil
	case token.Star:
		return a * b, nil
	case token.Slash:
		if b == 0 {
			return 0, diag.New(diag.Preprocess, loc, "division by zero in constant expression")
		}
		return a / b, nil
	case token.Percent:
		if b == 0 {
			return 0, diag.New(diag.Preprocess, loc, "division by zero in constant expression")
		}
		return a % b, nil
	case token.Amp:
		return a & b, nil
	case token.Pipe:
		return a | b, nil
	case token.Caret:
		return a ^ b, nil
	case token.Shl:
		return a << uint(b), nil
	case token.Shr:
		return a >> uint(b), nil
	case token.Lt:
		return boolInt(a < b), nil
	case token.Leq:
		return boolInt(a <= b), nil
	case token.Gt:
		return boolInt(a > b), nil
	case token.Geq:
		return boolInt(a >= b), nil
	case token.Eq:
		return boolInt(a == b), nil
	case token.Neq:
		return boolInt(a != b), nil
	case token.LogAnd:
		// Not short-circuit: both sides already evaluated by the caller.
		return boolInt(a != 0 && b != 0), nil
	case token.LogOr:
		return boolInt(a != 0 || b != 0), nil
	}
	return 0, diag.New(diag.Preprocess, loc, "unknown operator in constant expression")
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (e *evaluator) parseUnary() (int64, error) {
	switch e.peek().Kind {
	case token.Plus:
		e.advance()
		return e.parseUnary()
	case token.Minus:
		e.advance()
		v, err := e.parseUnary()
		return -v, err
	case token.Tilde:
		e.advance()
		v, err := e.parseUnary()
		return ^v, err
	case token.LogNot:
		e.advance()
		v, err := e.parseUnary()
		return boolInt(v == 0), err
	}
	return e.parsePrimary()
}

func (e *evaluator) parsePrimary() (int64, error) {
	t := e.peek()
	switch t.Kind {
	case token.Numeric:
		e.advance()
		return parseIntLiteral(t.Text)
	case token.LParen:
		e.advance()
		v, err := e.parseExpr(0)
		if err != nil {
			return 0, err
		}
		if e.peek().Kind != token.RParen {
			return 0, diag.New(diag.Preprocess, e.loc, "expected ')' in constant expression")
		}
		e.advance()
		return v, nil
	}
	return 0, diag.New(diag.Preprocess, e.loc, "unexpected token in constant expression")
}

func parseIntLiteral(text string) (int64, error) {
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		v, err := strconv.ParseInt(text[2:], 16, 64)
		return v, err
	}
	if len(text) > 2 && text[0] == '0' && (text[1] == 'b' || text[1] == 'B') {
		v, err := strconv.ParseInt(text[2:], 2, 64)
		return v, err
	}
	if len(text) > 1 && text[0] == '0' {
		v, err := strconv.ParseInt(text, 8, 64)
		return v, err
	}
	return strconv.ParseInt(text, 10, 64)
}

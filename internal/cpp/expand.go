package cpp

import (
	"github.com/sysprog21/shecc-sub000/internal/diag"
	"github.com/sysprog21/shecc-sub000/internal/token"
)

// expandOne attempts to expand the macro invocation starting at tok, with
// rest holding the tokens that follow it in the queue (not yet consumed).
// It reports ok=false when tok is not a live macro invocation, in which
// case the caller emits tok verbatim. On success it returns the expansion
// (hide-set tagged per spec.md §4.B) and the remaining tokens after any
// actual-argument list the invocation consumed.
func (p *Preprocessor) expandOne(tok token.Token, rest []token.Token) (ok bool, expansion, remaining []token.Token, err error) {
	m, defined := p.Macros[tok.Text]
	if !defined || m.IsDisabled || tok.InHideSet(tok.Text) {
		return false, nil, rest, nil
	}

	if m.Builtin != nil {
		hs := unionHideSet(tok)
		out := tagAll(m.Builtin(p, tok), hs)
		return true, out, rest, nil
	}

	if !m.IsFunctionLike() {
		hs := unionHideSet(tok)
		return true, tagAll(copyToks(m.Body), hs), rest, nil
	}

	// Function-like: the next non-whitespace token must be '(' or this is
	// not an invocation at all (a bare reference to the macro name).
	i := skipSpace(rest)
	if i >= len(rest) || rest[i].Kind != token.LParen {
		return false, nil, rest, nil
	}
	args, afterCall, err := collectArgs(rest[i+1:], tok.Loc)
	if err != nil {
		return false, nil, rest, err
	}

	body, err := substitute(m, args, tok.Loc)
	if err != nil {
		return false, nil, rest, err
	}
	hs := unionHideSet(tok)
	return true, tagAll(body, hs), afterCall, nil
}

// unionHideSet returns the invocation token's own hide-set with its macro
// name added, per spec.md §4.B: a macro's name is unioned into the
// hide-set carried forward, never substituted for it, so a cycle of two or
// more mutually-recursive macros (A -> B -> A) terminates instead of
// repeating its starting state forever.
func unionHideSet(tok token.Token) map[string]bool {
	hs := make(map[string]bool, len(tok.HideSet)+1)
	for k := range tok.HideSet {
		hs[k] = true
	}
	hs[tok.Text] = true
	return hs
}

func tagAll(toks []token.Token, hs map[string]bool) []token.Token {
	out := make([]token.Token, len(toks))
	for i, t := range toks {
		out[i] = t.WithHideSet(hs)
	}
	return out
}

func copyToks(toks []token.Token) []token.Token {
	return append([]token.Token{}, toks...)
}

func skipSpace(toks []token.Token) int {
	i := 0
	for i < len(toks) && (toks[i].Kind == token.Whitespace || toks[i].Kind == token.Tab || toks[i].Kind == token.Newline) {
		i++
	}
	return i
}

// collectArgs scans a balanced-parenthesis actual-argument list starting
// just after the invocation's '(', splitting on top-level commas, per
// spec.md §4.B. It returns the argument token lists (each with surrounding
// whitespace stripped) and the tokens remaining after the matching ')'.
func collectArgs(toks []token.Token, loc diag.Location) (args [][]token.Token, remaining []token.Token, err error) {
	depth := 0
	var cur []token.Token
	i := 0
	for {
		if i >= len(toks) {
			return nil, nil, diag.New(diag.Preprocess, loc, "unterminated macro argument list")
		}
		t := toks[i]
		if t.Kind == token.LParen {
			depth++
			cur = append(cur, t)
			i++
			continue
		}
		if t.Kind == token.RParen {
			if depth == 0 {
				args = append(args, trimSpace(cur))
				return args, toks[i+1:], nil
			}
			depth--
			cur = append(cur, t)
			i++
			continue
		}
		if t.Kind == token.Comma && depth == 0 {
			args = append(args, trimSpace(cur))
			cur = nil
			i++
			continue
		}
		cur = append(cur, t)
		i++
	}
}

func trimSpace(toks []token.Token) []token.Token {
	start := 0
	for start < len(toks) && isSpaceKind(toks[start].Kind) {
		start++
	}
	end := len(toks)
	for end > start && isSpaceKind(toks[end-1].Kind) {
		end--
	}
	return toks[start:end]
}

func isSpaceKind(k token.Kind) bool {
	return k == token.Whitespace || k == token.Tab || k == token.Newline
}

// substitute performs parameter substitution for a function-like macro
// invocation, restoring commas between excess variadic actuals as
// __VA_ARGS__, per spec.md §4.B. Too few actuals is a diagnostic at the
// invocation site; excess actuals attach to the variadic parameter.
func substitute(m *Macro, args [][]token.Token, loc diag.Location) ([]token.Token, error) {
	if len(args) == 1 && len(args[0]) == 0 && len(m.Params) == 0 && !m.IsVariadic {
		args = nil
	}
	minArgs := len(m.Params)
	if !m.IsVariadic && len(args) != minArgs {
		return nil, diag.New(diag.Preprocess, loc, "macro %q expects %d argument(s), got %d", m.Name, minArgs, len(args))
	}
	if m.IsVariadic && len(args) < minArgs {
		return nil, diag.New(diag.Preprocess, loc, "macro %q expects at least %d argument(s), got %d", m.Name, minArgs, len(args))
	}

	bound := make(map[string][]token.Token, len(m.Params)+1)
	for i, p := range m.Params {
		bound[p] = args[i]
	}
	if m.IsVariadic {
		var varargs []token.Token
		for i := minArgs; i < len(args); i++ {
			if i > minArgs {
				varargs = append(varargs, token.Token{Kind: token.Comma})
			}
			varargs = append(varargs, args[i]...)
		}
		bound[m.VariadicToken] = varargs
	}

	var out []token.Token
	for _, t := range m.Body {
		if t.Kind == token.Identifier {
			if actual, ok := bound[t.Text]; ok {
				out = append(out, actual...)
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

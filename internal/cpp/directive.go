package cpp

import (
	"path/filepath"

	"github.com/sysprog21/shecc-sub000/internal/diag"
	"github.com/sysprog21/shecc-sub000/internal/token"
)

// handleDirective executes the directive tok (already known to be a
// directive kind) against the remaining pending tokens (the rest of its
// line plus everything after), mutating stack, and returns the tokens that
// remain to be processed after this directive's line.
func (p *Preprocessor) handleDirective(tok token.Token, after []token.Token, stack *[]condFrame) ([]token.Token, error) {
	line, rest := consumeLine(after)
	live := allIncluded(*stack)

	switch tok.Kind {
	case token.DirIfdef, token.DirIfndef:
		if !live {
			*stack = append(*stack, condFrame{ctx: "if_then", included: false})
			return rest, nil
		}
		if len(line) == 0 {
			return nil, diag.New(diag.Preprocess, tok.Loc, "#%s requires a macro name", tok.Text)
		}
		_, defined := p.Macros[line[0].Text]
		if tok.Kind == token.DirIfndef {
			defined = !defined
		}
		*stack = append(*stack, condFrame{ctx: "if_then", included: defined, taken: defined})
		return rest, nil

	case token.DirIf:
		if !live {
			*stack = append(*stack, condFrame{ctx: "if_then", included: false})
			return rest, nil
		}
		v, err := p.evalConstExpr(line, tok.Loc)
		if err != nil {
			return nil, err
		}
		*stack = append(*stack, condFrame{ctx: "if_then", included: v != 0, taken: v != 0})
		return rest, nil

	case token.DirElif:
		if len(*stack) == 0 {
			return nil, diag.New(diag.Preprocess, tok.Loc, "stray #elif")
		}
		top := &(*stack)[len(*stack)-1]
		if top.ctx == "else_then" {
			return nil, diag.New(diag.Preprocess, tok.Loc, "stray #elif after #else")
		}
		parentLive := allIncluded((*stack)[:len(*stack)-1])
		if !parentLive || top.taken {
			top.ctx, top.included = "elif_then", false
			return rest, nil
		}
		v, err := p.evalConstExpr(line, tok.Loc)
		if err != nil {
			return nil, err
		}
		top.ctx = "elif_then"
		top.included = v != 0
		if v != 0 {
			top.taken = true
		}
		return rest, nil

	case token.DirElse:
		if len(*stack) == 0 {
			return nil, diag.New(diag.Preprocess, tok.Loc, "stray #else")
		}
		top := &(*stack)[len(*stack)-1]
		if top.ctx == "else_then" {
			return nil, diag.New(diag.Preprocess, tok.Loc, "stray #else")
		}
		parentLive := allIncluded((*stack)[:len(*stack)-1])
		top.ctx = "else_then"
		top.included = parentLive && !top.taken
		return rest, nil

	case token.DirEndif:
		if len(*stack) == 0 {
			return nil, diag.New(diag.Preprocess, tok.Loc, "stray #endif")
		}
		*stack = (*stack)[:len(*stack)-1]
		return rest, nil
	}

	if !live {
		return rest, nil
	}

	switch tok.Kind {
	case token.DirDefine:
		if err := p.define(line, tok.Loc); err != nil {
			return nil, err
		}
		return rest, nil

	case token.DirUndef:
		if len(line) == 0 {
			return nil, diag.New(diag.Preprocess, tok.Loc, "#undef requires a macro name")
		}
		delete(p.Macros, line[0].Text)
		return rest, nil

	case token.DirError:
		msg := ""
		for i, t := range line {
			if i > 0 {
				msg += " "
			}
			msg += t.Text
		}
		return nil, diag.New(diag.Preprocess, tok.Loc, "#error %s", msg)

	case token.DirPragma:
		if len(line) == 1 && line[0].Text == "once" {
			p.pragmaOnce[tok.Loc.File] = true
		}
		return rest, nil

	case token.DirInclude:
		included, err := p.include(line, tok.Loc)
		if err != nil {
			return nil, err
		}
		return append(append([]token.Token{}, included...), rest...), nil
	}

	return rest, nil
}

// define registers an object- or function-like macro from a #define line's
// tokens (the macro name and everything after), per spec.md §4.B.
func (p *Preprocessor) define(line []token.Token, loc diag.Location) error {
	if len(line) == 0 {
		return diag.New(diag.Preprocess, loc, "#define requires a macro name")
	}
	name := line[0].Text
	rest := line[1:]

	m := &Macro{Name: name}
	if len(rest) > 0 && rest[0].Kind == token.LParen {
		rest = rest[1:]
		for len(rest) > 0 && rest[0].Kind != token.RParen {
			if rest[0].Kind == token.Ellipsis {
				m.IsVariadic = true
				m.VariadicToken = "__VA_ARGS__"
				rest = rest[1:]
			} else if rest[0].Kind == token.Identifier {
				m.Params = append(m.Params, rest[0].Text)
				rest = rest[1:]
			}
			if len(rest) > 0 && rest[0].Kind == token.Comma {
				rest = rest[1:]
			}
		}
		if len(rest) == 0 {
			return diag.New(diag.Preprocess, loc, "unterminated macro parameter list for %q", name)
		}
		rest = rest[1:] // RParen
	}
	m.Body = rest
	p.Macros[name] = m
	return nil
}

// include resolves one #include line and splices the included file's raw
// (unexpanded) tokens into the queue so the same directive/macro pass
// handles them, per spec.md §4.B's quote/angle-bracket and #pragma-once
// rules. Resolution is relative to the directory of the file containing
// the #include directive, taken from the directive token's own location.
func (p *Preprocessor) include(line []token.Token, loc diag.Location) ([]token.Token, error) {
	if len(line) == 0 {
		return nil, diag.New(diag.Preprocess, loc, "#include requires a file name")
	}
	spelling := line[0].Text
	if line[0].Kind != token.String {
		// "<...>" was lexed as punctuation tokens; angle-bracket includes
		// are recognized and silently ignored (libc is inlined at build
		// time), per spec.md §4.B.
		return nil, nil
	}
	target := filepath.Join(includeDir(loc.File), spelling)
	if p.pragmaOnce[target] {
		return nil, nil
	}
	return p.loadAndLex(target)
}

// Package cpp implements the directive- and macro-expanding preprocessor
// described in spec.md §4.B: hide-set-based macro expansion, balanced-paren
// argument collection with variadic support, conditional inclusion,
// #pragma once, textual #include, and a precedence-climbing
// constant-expression evaluator for #if/#elif.
//
// Grounded on std/compiler/frontend.go's worklist-based resolution of
// imports (ResolveModule's `for len(worklist) > 0` loop), generalized here
// from "resolve each imported package once" to "expand each macro
// invocation, rescanning its replacement for further invocations" — the
// same queue-driven fixed-point shape, applied to tokens instead of
// packages.
package cpp

import (
	"path/filepath"

	"github.com/sysprog21/shecc-sub000/internal/diag"
	"github.com/sysprog21/shecc-sub000/internal/token"
)

// FileLoader reads the contents of an included file given a resolved path.
type FileLoader func(path string) ([]byte, error)

// Lexer lexes a single file's source into a token stream.
type Lexer func(file string, src []byte) ([]token.Token, error)

// Preprocessor holds the macro table and per-run state for one
// translation unit.
type Preprocessor struct {
	Macros     map[string]*Macro
	pragmaOnce map[string]bool
	loader     FileLoader
	lex        Lexer
	arch       string // "__arm__" or "__riscv"
}

// New creates a Preprocessor with the built-in macros spec.md §3 names
// (__FILE__, __LINE__, __SHECC__, and the architecture predefine)
// pre-registered.
func New(loader FileLoader, lex Lexer, arch string) *Preprocessor {
	p := &Preprocessor{
		Macros:     make(map[string]*Macro),
		pragmaOnce: make(map[string]bool),
		loader:     loader,
		lex:        lex,
		arch:       arch,
	}
	p.Macros["__FILE__"] = &Macro{Name: "__FILE__", Builtin: func(pp *Preprocessor, invoke token.Token) []token.Token {
		return []token.Token{{Kind: token.String, Text: invoke.Loc.File, Loc: invoke.Loc}}
	}}
	p.Macros["__LINE__"] = &Macro{Name: "__LINE__", Builtin: func(pp *Preprocessor, invoke token.Token) []token.Token {
		return []token.Token{{Kind: token.Numeric, Text: itoa(invoke.Loc.Line), Loc: invoke.Loc}}
	}}
	p.Macros["__SHECC__"] = &Macro{Name: "__SHECC__", Body: []token.Token{{Kind: token.Numeric, Text: "1"}}}
	p.Macros[arch] = &Macro{Name: arch, Body: []token.Token{{Kind: token.Numeric, Text: "1"}}}
	return p
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ProcessFile preprocesses the translation unit rooted at path, returning a
// single expanded token stream terminated by exactly one EOF token, per
// spec.md §4.B's "Termination" rule.
func (p *Preprocessor) ProcessFile(path string) ([]token.Token, error) {
	toks, err := p.loadAndLex(path)
	if err != nil {
		return nil, err
	}
	out, err := p.processTokens(toks)
	if err != nil {
		return nil, err
	}
	out = append(out, token.Token{Kind: token.EOF})
	return out, nil
}

func (p *Preprocessor) loadAndLex(path string) ([]token.Token, error) {
	src, err := p.loader(path)
	if err != nil {
		return nil, diag.New(diag.Preprocess, diag.Location{File: path}, "cannot read %q: %v", path, err)
	}
	toks, err := p.lex(path, src)
	if err != nil {
		return nil, err
	}
	// Drop the trailing EOF; the caller decides when the overall stream ends.
	if n := len(toks); n > 0 && toks[n-1].Kind == token.EOF {
		toks = toks[:n-1]
	}
	return toks, nil
}

// condFrame tracks one level of conditional-inclusion nesting, per
// spec.md §4.B.
type condFrame struct {
	ctx      string // "if_then", "elif_then", "else_then"
	included bool   // whether this branch's tokens are currently live
	taken    bool   // whether any branch at this level has already been taken
}

// processTokens runs the directive/macro pass over a token queue that may
// splice in further files mid-stream via #include (spec.md §4.B). Each
// token carries its own originating file in its Location, so #include
// resolution and __FILE__/__LINE__ never depend on mutable preprocessor
// state — only on the token currently at the head of the queue.
func (p *Preprocessor) processTokens(toks []token.Token) ([]token.Token, error) {
	var out []token.Token
	var stack []condFrame
	pending := toks // queue of tokens still to be processed/rescanned
	var lastLoc diag.Location

	atLineStart := true
	for len(pending) > 0 {
		tok := pending[0]
		lastLoc = tok.Loc

		live := allIncluded(stack)

		switch tok.Kind {
		case token.Newline:
			out = appendIf(out, tok, live)
			pending = pending[1:]
			atLineStart = true
			continue
		case token.Whitespace, token.Tab, token.Backslash:
			out = appendIf(out, tok, live)
			pending = pending[1:]
			continue
		}

		if atLineStart && isDirective(tok.Kind) {
			rest, err := p.handleDirective(tok, pending[1:], &stack)
			if err != nil {
				return nil, err
			}
			pending = rest
			atLineStart = true
			continue
		}
		atLineStart = false

		if !live {
			pending = pending[1:]
			continue
		}

		if tok.Kind == token.Identifier {
			ok, expanded, rest, err := p.expandOne(tok, pending[1:])
			if err != nil {
				return nil, err
			}
			if ok {
				pending = append(append([]token.Token{}, expanded...), rest...)
				continue
			}
		}

		out = append(out, tok)
		pending = pending[1:]
	}

	if len(stack) > 0 {
		return nil, diag.New(diag.Preprocess, lastLoc, "unterminated #if")
	}
	return out, nil
}

func appendIf(out []token.Token, tok token.Token, live bool) []token.Token {
	if live {
		return append(out, tok)
	}
	return out
}

func allIncluded(stack []condFrame) bool {
	for _, f := range stack {
		if !f.included {
			return false
		}
	}
	return true
}

func isDirective(k token.Kind) bool {
	switch k {
	case token.DirInclude, token.DirDefine, token.DirUndef, token.DirIf, token.DirIfdef,
		token.DirIfndef, token.DirElif, token.DirElse, token.DirEndif, token.DirError, token.DirPragma:
		return true
	}
	return false
}

// consumeLine splits tokens at the first Newline/EOF, returning the line's
// tokens (excluding whitespace) and the remainder starting after the
// newline.
func consumeLine(toks []token.Token) (line []token.Token, rest []token.Token) {
	i := 0
	for i < len(toks) && toks[i].Kind != token.Newline && toks[i].Kind != token.EOF {
		if toks[i].Kind != token.Whitespace && toks[i].Kind != token.Tab {
			line = append(line, toks[i])
		}
		i++
	}
	if i < len(toks) && toks[i].Kind == token.Newline {
		rest = toks[i+1:]
	} else {
		rest = toks[i:]
	}
	return line, rest
}

func includeDir(file string) string {
	return filepath.Dir(file)
}

package cpp

import (
	"testing"

	"github.com/sysprog21/shecc-sub000/internal/diag"
	"github.com/sysprog21/shecc-sub000/internal/lexer"
	"github.com/sysprog21/shecc-sub000/internal/token"
)

func lexSrc(file string, src []byte) ([]token.Token, error) {
	return lexer.New(file, src).Tokenize()
}

func newTestPP(files map[string]string) *Preprocessor {
	load := func(path string) ([]byte, error) {
		return []byte(files[path]), nil
	}
	return New(load, lexSrc, "__arm__")
}

func identText(toks []token.Token) []string {
	var out []string
	for _, tok := range toks {
		switch tok.Kind {
		case token.Whitespace, token.Tab, token.Newline, token.Backslash, token.EOF:
			continue
		}
		text := tok.Text
		if text == "" {
			text = tok.Kind.String()
		}
		out = append(out, text)
	}
	return out
}

func TestObjectMacroExpansion(t *testing.T) {
	files := map[string]string{"a.c": "#define N 3\nint x = N;\n"}
	pp := newTestPP(files)
	toks, err := pp.ProcessFile("a.c")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	got := identText(toks)
	want := []string{"int", "x", "=", "3", ";"}
	if !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFunctionMacroExpansion(t *testing.T) {
	files := map[string]string{"a.c": "#define ADD(a,b) (a+b)\nint x = ADD(1,2);\n"}
	pp := newTestPP(files)
	toks, err := pp.ProcessFile("a.c")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	got := identText(toks)
	want := []string{"int", "x", "=", "(", "1", "+", "2", ")", ";"}
	if !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMacroHideSetPreventsSelfRecursion(t *testing.T) {
	files := map[string]string{"a.c": "#define A A\nint x = A;\n"}
	pp := newTestPP(files)
	toks, err := pp.ProcessFile("a.c")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	got := identText(toks)
	want := []string{"int", "x", "=", "A", ";"}
	if !equalStrings(got, want) {
		t.Errorf("got %v, want %v (hide-set should stop recursive re-expansion)", got, want)
	}
}

func TestMacroHideSetPreventsMutualRecursion(t *testing.T) {
	files := map[string]string{"a.c": "#define A B\n#define B A\nint x = A;\n"}
	pp := newTestPP(files)
	toks, err := pp.ProcessFile("a.c")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	got := identText(toks)
	want := []string{"int", "x", "=", "A", ";"}
	if !equalStrings(got, want) {
		t.Errorf("got %v, want %v (hide-set must be unioned across expansions to stop a 2-cycle)", got, want)
	}
}

func TestConditionalInclusion(t *testing.T) {
	files := map[string]string{"a.c": "#if 1\nint yes;\n#else\nint no;\n#endif\n"}
	pp := newTestPP(files)
	toks, err := pp.ProcessFile("a.c")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	got := identText(toks)
	want := []string{"int", "yes", ";"}
	if !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPragmaOnce(t *testing.T) {
	files := map[string]string{
		"h.h": "#pragma once\nint counted;\n",
		"a.c": "#include \"h.h\"\n#include \"h.h\"\n",
	}
	pp := newTestPP(files)
	toks, err := pp.ProcessFile("a.c")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	got := identText(toks)
	want := []string{"int", "counted", ";"}
	if !equalStrings(got, want) {
		t.Errorf("got %v, want %v (pragma once should admit h.h only once)", got, want)
	}
}

func TestConstExprEvaluatorDoesNotShortCircuit(t *testing.T) {
	// Both sides of && / || are always evaluated by this evaluator, per
	// spec.md §9's documented ambiguity, so a division by zero in the right
	// operand of a true || is still reported as an error.
	pp := newTestPP(nil)
	v, err := pp.evalConstExpr(mustLex(t, "1 || (1/0)"), diag.Location{File: "e.c"})
	if err == nil {
		t.Fatalf("expected a division-by-zero diagnostic, got value %d", v)
	}
}

func mustLex(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := lexSrc("e.c", []byte(src))
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	return toks
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

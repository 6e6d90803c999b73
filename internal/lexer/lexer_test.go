package lexer

import (
	"testing"

	"github.com/sysprog21/shecc-sub000/internal/token"
)

func tokenize(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := New("test.c", []byte(src)).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", src, err)
	}
	return toks
}

// significant drops whitespace/tab/newline/backslash tokens, which the
// lexer emits explicitly so the preprocessor can see line structure but
// which most tests don't care about.
func significant(toks []token.Token) []token.Token {
	var out []token.Token
	for _, tok := range toks {
		switch tok.Kind {
		case token.Whitespace, token.Tab, token.Newline, token.Backslash:
			continue
		}
		out = append(out, tok)
	}
	return out
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestTokenizeKeywordsAndIdentifiers(t *testing.T) {
	toks := significant(tokenize(t, "int main"))
	if len(toks) != 3 || toks[2].Kind != token.EOF {
		t.Fatalf("unexpected token count: %v", kinds(toks))
	}
	if toks[0].Kind != token.KwInt {
		t.Errorf("got %s, want KwInt", toks[0].Kind)
	}
	if toks[1].Kind != token.Identifier || toks[1].Text != "main" {
		t.Errorf("got %+v, want identifier \"main\"", toks[1])
	}
}

func TestTokenizeNumerics(t *testing.T) {
	cases := []struct {
		src  string
		text string
	}{
		{"0x1F", "0x1F"},
		{"0b101", "0b101"},
		{"017", "017"},
		{"42", "42"},
	}
	for _, c := range cases {
		toks := tokenize(t, c.src)
		if toks[0].Kind != token.Numeric || toks[0].Text != c.text {
			t.Errorf("Tokenize(%q) = %+v, want Numeric %q", c.src, toks[0], c.text)
		}
	}
}

func TestTokenizeRejectsEmptyHexLiteral(t *testing.T) {
	if _, err := New("test.c", []byte("0x")).Tokenize(); err == nil {
		t.Fatal("expected an error for 0x with no digits")
	}
}

func TestTokenizeRejectsInvalidOctalDigit(t *testing.T) {
	if _, err := New("test.c", []byte("018")).Tokenize(); err == nil {
		t.Fatal("expected an error for an invalid octal digit")
	}
}

func TestTokenizeStringAndCharEscapes(t *testing.T) {
	toks := significant(tokenize(t, `"a\nb" '\t'`))
	if toks[0].Kind != token.String {
		t.Fatalf("got %s, want String", toks[0].Kind)
	}
	if toks[1].Kind != token.Char {
		t.Fatalf("got %s, want Char", toks[1].Kind)
	}
}

func TestTokenizeOperators(t *testing.T) {
	toks := significant(tokenize(t, "-> ... += -= |= &= && || == != <= >= << >>"))
	want := []token.Kind{
		token.Arrow, token.Ellipsis, token.PlusAssign, token.MinusAssign,
		token.OrAssign, token.AndAssign, token.LogAnd, token.LogOr,
		token.Eq, token.Neq, token.Leq, token.Geq, token.Shl, token.Shr, token.EOF,
	}
	if got := kinds(toks); !equalKinds(got, want) {
		t.Errorf("Tokenize operators = %v, want %v", got, want)
	}
}

func TestTokenizeDirectiveMustStartAtColumnOne(t *testing.T) {
	toks := tokenize(t, "#define FOO 1\n")
	if toks[0].Kind != token.DirDefine {
		t.Fatalf("got %s, want DirDefine", toks[0].Kind)
	}
	if _, err := New("test.c", []byte(" #define FOO 1\n")).Tokenize(); err == nil {
		t.Fatal("expected an error for '#' not at column 1")
	}
}

func equalKinds(a, b []token.Kind) bool {
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

package parser

import (
	"testing"

	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/lexer"
	"github.com/sysprog21/shecc-sub000/internal/session"
)

func parseSource(t *testing.T, src string) *session.Context {
	t.Helper()
	toks, err := lexer.New("t.c", []byte(src)).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	ctx := session.NewContext(session.Options{})
	if err := Parse(ctx, toks); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return ctx
}

func findFunc(ctx *session.Context, name string) *ir.Function {
	for _, fn := range ctx.Funcs {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

func TestParseSimpleFunctionReturningConstant(t *testing.T) {
	ctx := parseSource(t, "int main() { return 42; }")
	fn := findFunc(ctx, "main")
	if fn == nil {
		t.Fatal("expected a main function")
	}
	found := false
	for _, in := range fn.Entry.Insn {
		if in.Op == ir.OpReturn {
			found = true
		}
	}
	if !found {
		t.Error("expected a return instruction in main's entry block")
	}
}

func TestParseIfElseProducesThreeBlocks(t *testing.T) {
	ctx := parseSource(t, "int main() { int x; if (1) x = 1; else x = 2; return x; }")
	fn := findFunc(ctx, "main")
	if fn == nil {
		t.Fatal("expected a main function")
	}
	if fn.Entry.Then == nil || fn.Entry.Else == nil {
		t.Error("expected the entry block to branch to then/else blocks")
	}
}

func TestParseForLoopEmitsAdd(t *testing.T) {
	ctx := parseSource(t, "int main() { int i; int s; s = 0; for (i = 0; i < 10; i = i + 1) s = s + i; return s; }")
	fn := findFunc(ctx, "main")
	if fn == nil {
		t.Fatal("expected a main function")
	}
	var sawAdd bool
	for _, b := range fn.Blocks {
		for _, in := range b.Insn {
			if in.Op == ir.OpAdd {
				sawAdd = true
			}
		}
	}
	if !sawAdd {
		t.Error("expected at least one add instruction from the loop body or post-expression")
	}
}

func TestParseRejectsUnion(t *testing.T) {
	toks, err := lexer.New("t.c", []byte("union u { int a; };")).Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	ctx := session.NewContext(session.Options{})
	if err := Parse(ctx, toks); err == nil {
		t.Error("expected an error rejecting union, got nil")
	}
}

func TestParseFunctionCallEmitsCall(t *testing.T) {
	ctx := parseSource(t, "int add(int a, int b) { return a + b; } int main() { return add(1, 2); }")
	fn := findFunc(ctx, "main")
	if fn == nil {
		t.Fatal("expected a main function")
	}
	var sawCall bool
	for _, b := range fn.Blocks {
		for _, in := range b.Insn {
			if in.Op == ir.OpCall && in.FuncName == "add" {
				sawCall = true
			}
		}
	}
	if !sawCall {
		t.Error("expected a call instruction targeting add")
	}
}

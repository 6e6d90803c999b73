// Package pipeline wires every compilation phase together behind a
// single Compile entry point, per spec.md §5's concurrency model (one
// Context per invocation, no shared mutable global state) and §6's
// external CLI contract.
//
// Grounded on std/compiler/frontend.go's ResolveModule, the teacher's
// own single top-level orchestration function driving lex -> parse ->
// codegen -> link, generalized to the longer lex -> preprocess -> parse
// -> SSA -> SCCP -> regalloc -> lower -> encode -> ELF pipeline spec.md
// §5 names.
package pipeline

import (
	"os"

	"github.com/sysprog21/shecc-sub000/internal/arm"
	"github.com/sysprog21/shecc-sub000/internal/cpp"
	"github.com/sysprog21/shecc-sub000/internal/elfwriter"
	"github.com/sysprog21/shecc-sub000/internal/lexer"
	"github.com/sysprog21/shecc-sub000/internal/libc"
	"github.com/sysprog21/shecc-sub000/internal/lower"
	"github.com/sysprog21/shecc-sub000/internal/parser"
	"github.com/sysprog21/shecc-sub000/internal/regalloc"
	"github.com/sysprog21/shecc-sub000/internal/riscv"
	"github.com/sysprog21/shecc-sub000/internal/sccp"
	"github.com/sysprog21/shecc-sub000/internal/session"
	"github.com/sysprog21/shecc-sub000/internal/ssa"
	"github.com/sysprog21/shecc-sub000/internal/token"
)

// Compile runs the full shecc pipeline over inputPath, producing a
// statically-linked ELF32 executable at opts.OutputPath, per spec.md §6.
// It returns the Context (useful to the caller for --dump-ir) and any
// compile error encountered along the way.
func Compile(inputPath string, opts session.Options) (*session.Context, error) {
	ctx := session.NewContext(opts)

	toks, err := preprocess(inputPath, opts)
	if err != nil {
		return ctx, err
	}

	if err := parser.Parse(ctx, toks); err != nil {
		return ctx, err
	}

	for _, fn := range ctx.Funcs {
		ssa.Build(fn)
		sccp.Run(fn)
		ssa.UnwindPhis(fn)
		ssa.Liveness(fn)
		regalloc.Allocate(fn)
		lower.Run(fn)
	}

	text, symbols, err := encode(ctx)
	if err != nil {
		return ctx, err
	}

	machine := elfwriter.MachineARM
	if opts.Arch == session.RISCV {
		machine = elfwriter.MachineRISCV
	}
	image := elfwriter.Build(machine, elfwriter.Sections{Text: text, Symbols: symbols})

	if err := os.WriteFile(opts.OutputPath, image, 0o755); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// preprocess runs the lexer and preprocessor, inlining the bundled libc
// declarations and function bodies ahead of the user's translation unit
// unless --no-libc was given, per spec.md §6. shecc never links against
// external object files (per spec.md's Non-goals), so lib/c.c's bodies
// must land in the same single translation unit as the user's source,
// not just lib/c.h's declarations.
func preprocess(inputPath string, opts session.Options) ([]token.Token, error) {
	pp := cpp.New(loadFile, lexFile, opts.Arch.Predefine())

	var out []token.Token
	if !opts.NoLibc {
		hdrToks, err := pp.ProcessFile("lib/c.h")
		if err != nil {
			return nil, err
		}
		out = append(out, stripEOF(hdrToks)...)

		implToks, err := pp.ProcessFile("lib/c.c")
		if err != nil {
			return nil, err
		}
		out = append(out, stripEOF(implToks)...)
	}

	userToks, err := pp.ProcessFile(inputPath)
	if err != nil {
		return nil, err
	}
	out = append(out, userToks...)
	return out, nil
}

// stripEOF drops the terminating EOF token ProcessFile appends, so the
// bundled header's tokens can be concatenated ahead of the user's own
// stream rather than ending it early.
func stripEOF(toks []token.Token) []token.Token {
	if n := len(toks); n > 0 && toks[n-1].Kind == token.EOF {
		return toks[:n-1]
	}
	return toks
}

func loadFile(path string) ([]byte, error) {
	switch path {
	case "lib/c.h":
		return []byte(libc.Header), nil
	case "lib/c.c":
		return []byte(libc.Source), nil
	}
	return os.ReadFile(path)
}

func lexFile(file string, src []byte) ([]token.Token, error) {
	l := lexer.New(file, src)
	return l.Tokenize()
}

func encode(ctx *session.Context) ([]byte, []elfwriter.Symbol, error) {
	if ctx.Options.Arch == session.RISCV {
		return riscv.Encode(ctx.Funcs)
	}
	return arm.Encode(ctx.Funcs)
}


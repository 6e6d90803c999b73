// Command shecc compiles a single C89/C99-subset translation unit into
// a statically-linked ELF32 executable for ARMv7-A or RV32IM Linux, per
// spec.md §6.
//
// Grounded on std/compiler/main.go's hand-rolled os.Args flag loop (no
// flag package import), generalized from the teacher's -run/-o/-T/-tags
// flag set to shecc's -o/--dump-ir/--no-libc/<input.c> surface.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sysprog21/shecc-sub000/internal/diag"
	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/pipeline"
	"github.com/sysprog21/shecc-sub000/internal/session"
)

func main() {
	opts, input, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "shecc:", err)
		os.Exit(1)
	}

	ctx, err := pipeline.Compile(input, opts)
	if err != nil {
		reportError(err)
		os.Exit(1)
	}

	if opts.DumpIR {
		dumpIR(ctx)
	}
}

// parseArgs walks os.Args by hand, per the teacher's own argument-parsing
// style (no flag package), recognizing "-o <path>", "--dump-ir",
// "--no-libc", and exactly one positional input file, per spec.md §6.
func parseArgs(args []string) (session.Options, string, error) {
	opts := session.Options{Arch: session.ARM, OutputPath: "a.out"}
	var input string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o":
			if i+1 >= len(args) {
				return opts, "", fmt.Errorf("-o requires an argument")
			}
			i++
			opts.OutputPath = args[i]
		case "--dump-ir":
			opts.DumpIR = true
		case "--no-libc":
			opts.NoLibc = true
		default:
			if strings.HasPrefix(args[i], "-") {
				return opts, "", fmt.Errorf("unrecognized option %q", args[i])
			}
			if input != "" {
				return opts, "", fmt.Errorf("multiple input files given: %q and %q", input, args[i])
			}
			input = args[i]
		}
	}

	if input == "" {
		return opts, "", fmt.Errorf("no input file")
	}
	return opts, input, nil
}

// reportError formats a diag.Error the way spec.md §7 requires:
// "Error <message> at <file>:<line>:<column>", falling back to a plain
// message for any other error type.
func reportError(err error) {
	if de, ok := err.(*diag.Error); ok {
		fmt.Fprintf(os.Stderr, "Error %s at %s\n", de.Message, de.Location)
		return
	}
	fmt.Fprintln(os.Stderr, "shecc:", err)
}

// dumpIR prints a human-readable listing of every function's phase-2
// instructions, per spec.md §6's --dump-ir flag.
func dumpIR(ctx *session.Context) {
	for _, fn := range ctx.Funcs {
		fmt.Printf("func %s:\n", fn.Name)
		for _, b := range fn.Blocks {
			fmt.Printf("  block %d:\n", b.ID)
			for _, in := range b.Insn2 {
				fmt.Printf("    %s\n", ir.DumpInstruction(in))
			}
		}
	}
}

package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sysprog21/shecc-sub000/internal/session"
)

func compileFixture(t *testing.T, name string, arch session.Arch, noLibc bool) ([]byte, *session.Context) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "a.out")
	opts := session.Options{Arch: arch, NoLibc: noLibc, OutputPath: out}
	ctx, err := Compile(filepath.Join("..", "..", "testdata", name), opts)
	if err != nil {
		t.Fatalf("Compile(%s) returned an error: %v", name, err)
	}
	image, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading compiled output: %v", err)
	}
	return image, ctx
}

func TestCompileReturn0ProducesValidELFHeader(t *testing.T) {
	image, ctx := compileFixture(t, "return0.c", session.ARM, true)

	if len(image) < 52 {
		t.Fatalf("image is %d bytes, too short for an ELF header", len(image))
	}
	if string(image[:4]) != "\x7FELF" {
		t.Errorf("magic = %q, want \\x7fELF", image[:4])
	}
	if image[4] != 1 {
		t.Errorf("EI_CLASS = %d, want 1 (ELFCLASS32)", image[4])
	}
	if image[18] != 0x28 || image[19] != 0x00 {
		t.Errorf("e_machine = %#x%02x, want 0x0028 (EM_ARM)", image[19], image[18])
	}

	foundMain := false
	for _, fn := range ctx.Funcs {
		if fn.Name == "main" {
			foundMain = true
		}
	}
	if !foundMain {
		t.Error("expected a main function in the compiled context")
	}
}

func TestCompileArithOnRISCV(t *testing.T) {
	image, _ := compileFixture(t, "arith.c", session.RISCV, true)

	if image[18] != 0xF3 || image[19] != 0x00 {
		t.Errorf("e_machine = %#x%02x, want 0x00f3 (EM_RISCV)", image[19], image[18])
	}
}

func TestCompileSwitchAndZeroFilledArray(t *testing.T) {
	for _, name := range []string{"switch.c", "zero_filled_array.c"} {
		t.Run(name, func(t *testing.T) {
			image, _ := compileFixture(t, name, session.ARM, true)
			if len(image) == 0 {
				t.Error("expected a non-empty ELF image")
			}
		})
	}
}

func TestCompileFixturesThatCallBundledLibc(t *testing.T) {
	for _, name := range []string{"negative_printf.c", "fib.c"} {
		t.Run(name, func(t *testing.T) {
			image, _ := compileFixture(t, name, session.ARM, false)
			if len(image) == 0 {
				t.Error("expected a non-empty ELF image")
			}
		})
	}
}

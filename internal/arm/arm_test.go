package arm

import (
	"encoding/binary"
	"testing"

	"github.com/sysprog21/shecc-sub000/internal/ir"
)

func TestEncodeProducesWholeWordAlignedCode(t *testing.T) {
	fn := &ir.Function{Name: "main"}
	b := fn.NewBlock()
	fn.Entry = b
	fn.Blocks = []*ir.BasicBlock{b}
	b.Insn2 = []*ir.Instruction{
		{Op: ir.OpLoadConstant, PDest: 0, Size: 42},
		{Op: ir.OpReturn},
	}

	code, _, err := Encode([]*ir.Function{fn})
	if err != nil {
		t.Fatalf("Encode returned an error: %v", err)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		t.Errorf("code length = %d, want a nonzero multiple of 4", len(code))
	}
}

func TestEncodePatchesCallSiteToCalleeOffset(t *testing.T) {
	callee := &ir.Function{Name: "callee"}
	cb := callee.NewBlock()
	callee.Entry = cb
	callee.Blocks = []*ir.BasicBlock{cb}
	cb.Insn2 = []*ir.Instruction{{Op: ir.OpReturn}}

	// Named "main" so the hand-emitted __start stub Encode always prepends
	// resolves its own call fixup against this function.
	main := &ir.Function{Name: "main"}
	b := main.NewBlock()
	main.Entry = b
	main.Blocks = []*ir.BasicBlock{b}
	b.Insn2 = []*ir.Instruction{
		{Op: ir.OpCall, FuncName: "callee"},
		{Op: ir.OpReturn},
	}

	code, symbols, err := Encode([]*ir.Function{main, callee})
	if err != nil {
		t.Fatalf("Encode returned an error: %v", err)
	}
	if len(symbols) != 3 {
		t.Fatalf("len(symbols) = %d, want 3 (__start, main, callee)", len(symbols))
	}

	// __start is 3 instructions (BL main, movw r7, svc); main's BL to callee
	// sits right after its own 2-instruction prologue (push, mov fp,sp).
	const startLen = 3 * 4
	const mainLen = 5 * 4 // prologue(2) + BL(1) + epilogue(2)
	blPos := startLen + 2*4
	word := binary.LittleEndian.Uint32(code[blPos:])
	if word>>24 != 0xEB {
		t.Fatalf("word at call site = %#x, does not look like an unconditional BL (want 0xEB......)", word)
	}

	calleeOffset := startLen + mainLen
	rel := calleeOffset - (blPos + 8)

	imm := int32(word & 0x00FFFFFF)
	signed := (imm << 8) >> 8 // sign-extend the 24-bit field
	if int(signed)*4 != rel {
		t.Errorf("BL immediate decodes to a relative offset of %d, want %d", int(signed)*4, rel)
	}
}

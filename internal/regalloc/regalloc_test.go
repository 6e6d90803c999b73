package regalloc

import (
	"testing"

	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

func TestAllocateAssignsDistinctRegistersToOverlappingLiveRanges(t *testing.T) {
	fn := &ir.Function{}
	b := fn.NewBlock()
	fn.Entry = b
	fn.Blocks = []*ir.BasicBlock{b}

	a := &types.Variable{TypeName: "int", VarName: "a"}
	c := &types.Variable{TypeName: "int", VarName: "c"}
	sum := &types.Variable{TypeName: "int", VarName: "sum"}
	one := &types.Variable{TypeName: "int", IsConst: true, InitVal: 1}
	two := &types.Variable{TypeName: "int", IsConst: true, InitVal: 2}

	b.Insn = []*ir.Instruction{
		{Op: ir.OpAssign, Dest: a, Src0: one},
		{Op: ir.OpAssign, Dest: c, Src0: two},
		{Op: ir.OpAdd, Dest: sum, Src0: a, Src1: c},
		{Op: ir.OpReturn, Src0: sum},
	}

	Allocate(fn)

	if len(b.Insn2) != len(b.Insn) {
		t.Fatalf("Insn2 has %d instructions, want %d", len(b.Insn2), len(b.Insn))
	}
	addInsn := b.Insn2[2]
	if addInsn.PReg0 == addInsn.PReg1 {
		t.Errorf("a and c are simultaneously live but were assigned the same register %d", addInsn.PReg0)
	}
}

func TestAllocateSpillsWhenRegistersExhausted(t *testing.T) {
	fn := &ir.Function{}
	b := fn.NewBlock()
	fn.Entry = b
	fn.Blocks = []*ir.BasicBlock{b}

	var vars []*types.Variable
	for i := 0; i < NumGPR+2; i++ {
		v := &types.Variable{TypeName: "int", VarName: "v"}
		vars = append(vars, v)
		lit := &types.Variable{TypeName: "int", IsConst: true, InitVal: i}
		b.Insn = append(b.Insn, &ir.Instruction{Op: ir.OpAssign, Dest: v, Src0: lit})
	}
	// Keep every variable alive simultaneously by summing them all at the end.
	sum := vars[0]
	for _, v := range vars[1:] {
		next := &types.Variable{TypeName: "int", VarName: "sum"}
		b.Insn = append(b.Insn, &ir.Instruction{Op: ir.OpAdd, Dest: next, Src0: sum, Src1: v})
		sum = next
	}
	b.Insn = append(b.Insn, &ir.Instruction{Op: ir.OpReturn, Src0: sum})

	Allocate(fn)

	if fn.StackSize == 0 {
		t.Error("expected at least one spill slot once live variables exceed available registers")
	}
}

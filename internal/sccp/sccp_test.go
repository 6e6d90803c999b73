package sccp

import (
	"testing"

	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

func constVar(n int) *types.Variable {
	return &types.Variable{TypeName: "int", IsConst: true, InitVal: n}
}

func TestFoldConstantsArithmetic(t *testing.T) {
	fn := &ir.Function{}
	b := fn.NewBlock()
	fn.Entry = b
	dest := &types.Variable{TypeName: "int", VarName: "%t1"}
	b.Insn = append(b.Insn, &ir.Instruction{Op: ir.OpAdd, Dest: dest, Src0: constVar(2), Src1: constVar(3)})

	if !foldConstants(fn) {
		t.Fatal("expected a fold")
	}
	in := b.Insn[0]
	if in.Op != ir.OpLoadConstant || in.Size != 5 {
		t.Errorf("got op=%v size=%d, want load_constant 5", in.Op, in.Size)
	}
}

func TestFoldBranchesPrunesDeadSuccessor(t *testing.T) {
	fn := &ir.Function{}
	entry := fn.NewBlock()
	thenB := fn.NewBlock()
	elseB := fn.NewBlock()
	fn.Entry = entry
	fn.Blocks = []*ir.BasicBlock{entry, thenB, elseB}

	entry.LinkCond(thenB, elseB)
	entry.Insn = append(entry.Insn, &ir.Instruction{Op: ir.OpBranch, Src0: constVar(1)})

	if !foldBranches(fn) {
		t.Fatal("expected a branch fold")
	}
	if entry.Next != thenB {
		t.Errorf("entry.Next = %v, want thenB (condition was nonzero)", entry.Next)
	}
	if entry.Then != nil || entry.Else != nil {
		t.Error("LinkNext should have cleared Then/Else")
	}
	for _, e := range elseB.Preds {
		if e.Block == entry {
			t.Error("elseB should no longer list entry as a predecessor")
		}
	}
}

func TestFoldTruncOfLoadConstant(t *testing.T) {
	fn := &ir.Function{}
	b := fn.NewBlock()
	fn.Entry = b
	dest := &types.Variable{TypeName: "char", VarName: "%t1"}
	b.Insn = append(b.Insn, &ir.Instruction{Op: ir.OpTrunc, Dest: dest, Src0: constVar(0x1FF), Size: 1})

	if !foldTruncOfLoadConstant(fn) {
		t.Fatal("expected a trunc fold")
	}
	in := b.Insn[0]
	if in.Op != ir.OpLoadConstant || in.Size != 0xFF {
		t.Errorf("got op=%v size=%#x, want load_constant 0xff", in.Op, in.Size)
	}
}

func TestRunReachesFixpoint(t *testing.T) {
	fn := &ir.Function{}
	entry := fn.NewBlock()
	thenB := fn.NewBlock()
	elseB := fn.NewBlock()
	fn.Entry = entry
	fn.Blocks = []*ir.BasicBlock{entry, thenB, elseB}

	cond := &types.Variable{TypeName: "int", VarName: "%t1"}
	entry.Insn = append(entry.Insn,
		&ir.Instruction{Op: ir.OpEq, Dest: cond, Src0: constVar(1), Src1: constVar(1)},
		&ir.Instruction{Op: ir.OpBranch, Src0: cond},
	)
	entry.LinkCond(thenB, elseB)

	Run(fn)

	if entry.Insn[0].Op != ir.OpLoadConstant {
		t.Errorf("eq of two equal constants should fold to load_constant, got %v", entry.Insn[0].Op)
	}
	if entry.Next != thenB {
		t.Errorf("entry.Next = %v, want thenB once the branch condition folds to nonzero", entry.Next)
	}
}

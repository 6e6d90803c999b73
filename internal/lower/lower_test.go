package lower

import (
	"testing"

	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

func lit(n int) *types.Variable { return &types.Variable{TypeName: "int", IsConst: true, InitVal: n} }

func TestFoldIdentityAddZero(t *testing.T) {
	x := &types.Variable{VarName: "x"}
	in := &ir.Instruction{Op: ir.OpAdd, Dest: x, Src0: x, Src1: lit(0)}
	out, changed := foldIdentity([]*ir.Instruction{in})
	if !changed || out[0].Op != ir.OpAssign {
		t.Errorf("got op=%v changed=%v, want assign/true", out[0].Op, changed)
	}
}

func TestFoldAbsorbingMulZero(t *testing.T) {
	x := &types.Variable{VarName: "x"}
	in := &ir.Instruction{Op: ir.OpMul, Dest: x, Src0: x, Src1: lit(0)}
	out, changed := foldAbsorbing([]*ir.Instruction{in})
	if !changed || out[0].Op != ir.OpLoadConstant || out[0].Size != 0 {
		t.Errorf("got op=%v size=%d changed=%v, want load_constant 0/true", out[0].Op, out[0].Size, changed)
	}
}

func TestFoldStrengthReductionMulByPowerOfTwo(t *testing.T) {
	x := &types.Variable{VarName: "x"}
	in := &ir.Instruction{Op: ir.OpMul, Dest: x, Src0: x, Src1: lit(8)}
	out, changed := foldStrengthReduction([]*ir.Instruction{in})
	if !changed || out[0].Op != ir.OpLShift || out[0].Src1.InitVal != 3 {
		t.Errorf("got op=%v shift=%v changed=%v, want lshift 3/true", out[0].Op, out[0].Src1, changed)
	}
}

func TestFoldSelfSubtraction(t *testing.T) {
	x := &types.Variable{VarName: "x"}
	dest := &types.Variable{VarName: "d"}
	in := &ir.Instruction{Op: ir.OpSub, Dest: dest, Src0: x, Src1: x}
	out, changed := foldSelfOps([]*ir.Instruction{in})
	if !changed || out[0].Op != ir.OpLoadConstant || out[0].Size != 0 {
		t.Errorf("got op=%v size=%d changed=%v, want load_constant 0/true", out[0].Op, out[0].Size, changed)
	}
}

func TestEliminateDeadTemporaries(t *testing.T) {
	dead := &types.Variable{VarName: "%t1"}
	live := &types.Variable{VarName: "%t2"}
	insns := []*ir.Instruction{
		{Op: ir.OpAdd, Dest: dead, Src0: lit(1), Src1: lit(2)},
		{Op: ir.OpAssign, Dest: live, Src0: lit(3)},
		{Op: ir.OpReturn, Src0: live},
	}
	out, changed := eliminateDeadStores(insns)
	if !changed {
		t.Fatal("expected the dead temporary's store to be eliminated")
	}
	for _, in := range out {
		if in.Dest == dead {
			t.Error("dead temporary should have been removed")
		}
	}
}

func TestStoreToLoadForwarding(t *testing.T) {
	addr := &types.Variable{VarName: "p"}
	val := lit(7)
	loaded := &types.Variable{VarName: "%t1"}
	insns := []*ir.Instruction{
		{Op: ir.OpWrite, Src0: addr, Src1: val, Size: 4},
		{Op: ir.OpRead, Dest: loaded, Src0: addr, Size: 4},
	}
	out, changed := forwardStoreToLoad(insns)
	if !changed || out[1].Op != ir.OpAssign || out[1].Src0 != val {
		t.Errorf("got op=%v src=%v changed=%v, want assign from the stored value", out[1].Op, out[1].Src0, changed)
	}
}

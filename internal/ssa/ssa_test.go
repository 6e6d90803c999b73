package ssa

import (
	"testing"

	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

// buildDiamond constructs entry -> (then, else) -> join, the minimal CFG
// shape that needs a phi, assigning x in both then and else.
func buildDiamond() (*ir.Function, *types.Variable) {
	fn := &ir.Function{Name: "f"}
	entry := fn.NewBlock()
	thenB := fn.NewBlock()
	elseB := fn.NewBlock()
	join := fn.NewBlock()
	fn.Entry = entry

	x := &types.Variable{TypeName: "int", VarName: "x"}
	entry.LinkCond(thenB, elseB)
	entry.Insn = append(entry.Insn, &ir.Instruction{Op: ir.OpBranch, Src0: x})

	one := &types.Variable{TypeName: "int", IsConst: true, InitVal: 1}
	two := &types.Variable{TypeName: "int", IsConst: true, InitVal: 2}
	thenB.Insn = append(thenB.Insn, &ir.Instruction{Op: ir.OpAssign, Dest: x, Src0: one})
	elseB.Insn = append(elseB.Insn, &ir.Instruction{Op: ir.OpAssign, Dest: x, Src0: two})
	thenB.LinkNext(join)
	elseB.LinkNext(join)
	join.Insn = append(join.Insn, &ir.Instruction{Op: ir.OpReturn, Src0: x})

	return fn, x
}

func TestDominatorsOnDiamond(t *testing.T) {
	fn, _ := buildDiamond()
	Build(fn)

	entry, thenB, elseB, join := fn.Blocks[0], findByOrigID(fn, 1), findByOrigID(fn, 2), findByOrigID(fn, 3)
	if entry.IDom != entry {
		t.Errorf("entry.IDom = %v, want itself", entry.IDom)
	}
	if thenB.IDom != entry || elseB.IDom != entry {
		t.Errorf("then/else should be dominated directly by entry")
	}
	if join.IDom != entry {
		t.Errorf("join.IDom = %v, want entry (the only common dominator of then and else)", join.IDom)
	}
}

func findByOrigID(fn *ir.Function, id int) *ir.BasicBlock {
	for _, b := range fn.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func TestPhiInsertedAtJoin(t *testing.T) {
	fn, _ := buildDiamond()
	Build(fn)

	join := findByOrigID(fn, 3)
	foundPhi := false
	for _, in := range join.Insn {
		if in.Op == ir.OpPhi {
			foundPhi = true
			if len(in.PhiArgs) != 2 {
				t.Errorf("phi has %d args, want 2 (one per predecessor)", len(in.PhiArgs))
			}
		}
	}
	if !foundPhi {
		t.Error("expected a phi at the join block for x")
	}
}

func TestRenamingGivesEachDefinitionAUniqueSubscript(t *testing.T) {
	fn, x := buildDiamond()
	Build(fn)

	seen := map[*types.Variable]int{}
	for _, b := range fn.Blocks {
		for _, in := range b.Insn {
			if in.Dest != nil && in.Dest.Root() == x {
				seen[in.Dest]++
			}
		}
	}
	for v, n := range seen {
		if n != 1 {
			t.Errorf("subscript %v defined %d times, want exactly 1", v, n)
		}
	}
}

func TestLivenessMonotonicity(t *testing.T) {
	fn, _ := buildDiamond()
	Build(fn)
	Liveness(fn)

	for _, b := range fn.Blocks {
		for v := range b.LiveGen {
			if !b.LiveIn[v] {
				t.Errorf("block %d: live_in does not cover live_gen variable %v", b.ID, v)
			}
		}
		for v := range b.LiveOut {
			if !b.LiveKill[v] && !b.LiveIn[v] {
				t.Errorf("block %d: live_in missing (live_out - live_kill) variable %v", b.ID, v)
			}
		}
	}
}

// Package lower performs architecture-independent lowering and peephole
// optimization over phase-2 IR: detached-branch marking,
// identity/absorbing-element elimination, strength reduction, self-op
// folding, double-negation removal, elimination of unused temporaries,
// store-to-load forwarding, and redundant-load merging, run to a
// per-block fixpoint. It does not fuse instructions, does not remove a
// store that a later store to the same slot overwrites, and has no
// three-instruction patterns.
//
// Grounded on std/compiler/backend.go's two-pass "compute fixups, then
// patch" structure, generalized from call/jump offset fixups to the
// peephole instruction-rewrite passes spec.md §4.G names.
package lower

import (
	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

// Run marks branch-detached blocks and peephole-optimizes every block's
// phase-2 instructions to a fixpoint, per spec.md §4.G.
func Run(fn *ir.Function) {
	markDetachedBranches(fn)
	for _, b := range fn.Blocks {
		for {
			rewritten, changed := peephole(b.Insn2)
			b.Insn2 = rewritten
			if !changed {
				break
			}
		}
	}
}

// markDetachedBranches sets IsBranchDetached when a conditional block's
// Else successor is not its immediate RPO successor, so arch encoders
// know to emit an explicit jump rather than relying on fallthrough, per
// spec.md §4.G.
func markDetachedBranches(fn *ir.Function) {
	for _, b := range fn.Blocks {
		if b.Then == nil || b.Else == nil {
			continue
		}
		b.IsBranchDetached = b.Else.RPO != b.RPO+1
	}
}

// peephole applies one rewrite pass over insns, returning the rewritten
// slice and whether any rewrite fired (the caller iterates to a
// fixpoint).
func peephole(insns []*ir.Instruction) ([]*ir.Instruction, bool) {
	changed := false

	insns, c := foldIdentity(insns)
	changed = changed || c
	insns, c = foldAbsorbing(insns)
	changed = changed || c
	insns, c = foldStrengthReduction(insns)
	changed = changed || c
	insns, c = foldSelfOps(insns)
	changed = changed || c
	insns, c = foldDoubleNegation(insns)
	changed = changed || c
	insns, c = eliminateDeadStores(insns)
	changed = changed || c
	insns, c = forwardStoreToLoad(insns)
	changed = changed || c
	insns, c = mergeRedundantLoads(insns)
	changed = changed || c

	return insns, changed
}

// foldIdentity removes "x = x + 0", "x = x * 1", "x = x | 0", "x = x & -1"
// style identity operations, rewriting them to a plain assign.
func foldIdentity(insns []*ir.Instruction) ([]*ir.Instruction, bool) {
	changed := false
	for _, in := range insns {
		lit := constOperand(in.Src1)
		switch in.Op {
		case ir.OpAdd, ir.OpBitOr, ir.OpLShift, ir.OpRShift:
			if lit != nil && *lit == 0 {
				in.Op, in.Src1 = ir.OpAssign, nil
				changed = true
			}
		case ir.OpMul, ir.OpDiv:
			if lit != nil && *lit == 1 {
				in.Op, in.Src1 = ir.OpAssign, nil
				changed = true
			}
		case ir.OpBitAnd:
			if lit != nil && *lit == -1 {
				in.Op, in.Src1 = ir.OpAssign, nil
				changed = true
			}
		}
	}
	return insns, changed
}

// foldAbsorbing rewrites "x * 0" and "x & 0" to a zero constant, per
// spec.md §4.G's absorbing-element rule.
func foldAbsorbing(insns []*ir.Instruction) ([]*ir.Instruction, bool) {
	changed := false
	for _, in := range insns {
		lit := constOperand(in.Src1)
		if lit == nil {
			continue
		}
		if (in.Op == ir.OpMul || in.Op == ir.OpBitAnd) && *lit == 0 {
			in.Op, in.Src0, in.Src1, in.Size = ir.OpLoadConstant, nil, nil, 0
			changed = true
		}
	}
	return insns, changed
}

// foldStrengthReduction rewrites multiply/divide by a power of two into a
// shift, per spec.md §4.G.
func foldStrengthReduction(insns []*ir.Instruction) ([]*ir.Instruction, bool) {
	changed := false
	for _, in := range insns {
		lit := constOperand(in.Src1)
		if lit == nil || *lit <= 0 {
			continue
		}
		if shift, ok := powerOfTwo(*lit); ok {
			switch in.Op {
			case ir.OpMul:
				in.Op = ir.OpLShift
				in.Src1 = &types.Variable{TypeName: "int", IsConst: true, InitVal: shift}
				changed = true
			case ir.OpDiv:
				in.Op = ir.OpRShift
				in.Src1 = &types.Variable{TypeName: "int", IsConst: true, InitVal: shift}
				changed = true
			}
		}
	}
	return insns, changed
}

func powerOfTwo(n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	shift := 0
	for v := n; v > 1; v >>= 1 {
		if v&1 != 0 {
			return 0, false
		}
		shift++
	}
	return shift, true
}

// foldSelfOps rewrites "x - x" to 0 and "x ^ x" to 0, per spec.md §4.G.
func foldSelfOps(insns []*ir.Instruction) ([]*ir.Instruction, bool) {
	changed := false
	for _, in := range insns {
		if in.Src0 == nil || in.Src1 == nil || in.Src0 != in.Src1 {
			continue
		}
		if in.Op == ir.OpSub || in.Op == ir.OpBitXor {
			in.Op, in.Src0, in.Src1, in.Size = ir.OpLoadConstant, nil, nil, 0
			changed = true
		}
	}
	return insns, changed
}

// foldDoubleNegation rewrites two adjacent logical-not instructions on
// the same value into a plain assign (used by the short-circuit ||/&&
// lowering's boolean-normalize idiom), per spec.md §4.G.
func foldDoubleNegation(insns []*ir.Instruction) ([]*ir.Instruction, bool) {
	changed := false
	for i := 0; i+1 < len(insns); i++ {
		a, b := insns[i], insns[i+1]
		if a.Op == ir.OpLogNot && b.Op == ir.OpLogNot && b.Src0 == a.Dest {
			b.Op, b.Src0 = ir.OpAssign, a.Src0
			changed = true
		}
	}
	return insns, changed
}

// eliminateDeadStores drops an instruction whose Dest is never read
// again within the same block and is not live-out, conservatively
// limited to temporaries (names starting with "%t") to avoid requiring
// cross-block liveness here.
func eliminateDeadStores(insns []*ir.Instruction) ([]*ir.Instruction, bool) {
	changed := false
	used := map[*types.Variable]bool{}
	for _, in := range insns {
		if in.Src0 != nil {
			used[in.Src0] = true
		}
		if in.Src1 != nil {
			used[in.Src1] = true
		}
	}
	var out []*ir.Instruction
	for _, in := range insns {
		if in.Dest != nil && isTemp(in.Dest) && !used[in.Dest] && !hasSideEffect(in.Op) {
			changed = true
			continue
		}
		out = append(out, in)
	}
	return out, changed
}

func isTemp(v *types.Variable) bool {
	return len(v.VarName) > 1 && v.VarName[0] == '%' && v.VarName[1] == 't'
}

func hasSideEffect(op ir.Op) bool {
	switch op {
	case ir.OpCall, ir.OpIndirect, ir.OpSyscall, ir.OpWrite, ir.OpReturn, ir.OpBranch, ir.OpPush:
		return true
	}
	return false
}

// forwardStoreToLoad rewrites "write addr, v; ...; read addr" into a
// direct use of v when no intervening instruction writes through the
// same address, per spec.md §4.G's store-to-load forwarding rule.
func forwardStoreToLoad(insns []*ir.Instruction) ([]*ir.Instruction, bool) {
	changed := false
	for i, st := range insns {
		if st.Op != ir.OpWrite {
			continue
		}
		for j := i + 1; j < len(insns); j++ {
			ld := insns[j]
			if ld.Op == ir.OpWrite && ld.Src0 == st.Src0 {
				break
			}
			if ld.Op == ir.OpCall || ld.Op == ir.OpIndirect || ld.Op == ir.OpSyscall {
				break
			}
			if ld.Op == ir.OpRead && ld.Src0 == st.Src0 && ld.Size == st.Size {
				ld.Op, ld.Src0 = ir.OpAssign, st.Src1
				changed = true
			}
		}
	}
	return insns, changed
}

// mergeRedundantLoads rewrites a second "read addr" with no intervening
// write to addr into a plain assign from the first load's result, per
// spec.md §4.G.
func mergeRedundantLoads(insns []*ir.Instruction) ([]*ir.Instruction, bool) {
	changed := false
	for i, first := range insns {
		if first.Op != ir.OpRead {
			continue
		}
		for j := i + 1; j < len(insns); j++ {
			in := insns[j]
			if in.Op == ir.OpWrite || in.Op == ir.OpCall || in.Op == ir.OpIndirect || in.Op == ir.OpSyscall {
				break
			}
			if in.Op == ir.OpRead && in.Src0 == first.Src0 && in.Size == first.Size {
				in.Op, in.Src0 = ir.OpAssign, first.Dest
				changed = true
			}
		}
	}
	return insns, changed
}

func constOperand(v *types.Variable) *int {
	if v == nil || !v.IsConst {
		return nil
	}
	n := v.InitVal
	return &n
}

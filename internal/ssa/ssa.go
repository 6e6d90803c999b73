// Package ssa builds SSA form over a function's phase-1 IR: reverse
// postorder numbering, Cooper-Harvey-Kennedy dominators, dominance
// frontiers, phi insertion, variable renaming, phi unwinding, and
// liveness analysis, per spec.md §4.D.
//
// Grounded on std/compiler/dce.go's worklist-driven fixpoint passes over
// a function's block list, generalized from its single mark/sweep
// traversal to the multi-pass dominance and liveness fixpoints spec.md
// §4.D names.
package ssa

import (
	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

// Build runs SSA construction over fn, per spec.md §4.D's ordered steps
// 1-7 (RPO numbering through variable renaming). Phi unwinding is not
// part of Build; UnwindPhis does it as a separate step.
func Build(fn *ir.Function) {
	order := reversePostorder(fn)
	fn.Blocks = order
	for i, b := range order {
		b.RPO = i
	}
	computeDominators(order)
	computeDominanceFrontiers(order)
	globals, defsites := collectGlobals(fn, order)
	insertPhis(order, globals, defsites)
	renameVariables(fn, fn.Entry, map[*types.Variable]bool{})
	fn.GlobalVars = setToSlice(globals)
}

// reversePostorder performs a postorder DFS over fn's CFG starting at
// Entry, returning blocks in reverse postorder, per spec.md §4.D step 1.
func reversePostorder(fn *ir.Function) []*ir.BasicBlock {
	for _, b := range fn.Blocks {
		b.Visited = false
	}
	var post []*ir.BasicBlock
	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		if b == nil || b.Visited {
			return
		}
		b.Visited = true
		for _, s := range b.Succs() {
			visit(s)
		}
		post = append(post, b)
	}
	visit(fn.Entry)
	out := make([]*ir.BasicBlock, len(post))
	for i, b := range post {
		out[len(post)-1-i] = b
	}
	return out
}

// computeDominators runs the iterative Cooper-Harvey-Kennedy algorithm to
// a fixpoint over blocks in reverse postorder, per spec.md §4.D step 2.
func computeDominators(order []*ir.BasicBlock) {
	if len(order) == 0 {
		return
	}
	idx := make(map[*ir.BasicBlock]int, len(order))
	for i, b := range order {
		idx[b] = i
		b.IDom = nil
	}
	entry := order[0]
	entry.IDom = entry

	changed := true
	for changed {
		changed = false
		for _, b := range order[1:] {
			var newIdom *ir.BasicBlock
			for _, e := range b.Preds {
				p := e.Block
				if p.IDom == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idx)
			}
			if newIdom != nil && b.IDom != newIdom {
				b.IDom = newIdom
				changed = true
			}
		}
	}

	for _, b := range order {
		b.DomKids = nil
	}
	for _, b := range order {
		if b.IDom != nil && b.IDom != b {
			b.IDom.DomKids = append(b.IDom.DomKids, b)
		}
	}
}

func intersect(a, b *ir.BasicBlock, idx map[*ir.BasicBlock]int) *ir.BasicBlock {
	for a != b {
		for idx[a] > idx[b] {
			a = a.IDom
		}
		for idx[b] > idx[a] {
			b = b.IDom
		}
	}
	return a
}

// computeDominanceFrontiers computes each block's dominance frontier, per
// spec.md §4.D step 3.
func computeDominanceFrontiers(order []*ir.BasicBlock) {
	for _, b := range order {
		b.DF = nil
	}
	for _, b := range order {
		if len(b.Preds) < 2 {
			continue
		}
		for _, e := range b.Preds {
			runner := e.Block
			if runner.IDom == nil {
				continue
			}
			for runner != b.IDom {
				runner.DF = appendUnique(runner.DF, b)
				runner = runner.IDom
			}
		}
	}
}

func appendUnique(s []*ir.BasicBlock, b *ir.BasicBlock) []*ir.BasicBlock {
	for _, e := range s {
		if e == b {
			return s
		}
	}
	return append(s, b)
}

// collectGlobals finds variables referenced in more than one block
// ("global" names in the classic SSA-construction sense) and their
// definition sites, per spec.md §4.D step 5.
func collectGlobals(fn *ir.Function, order []*ir.BasicBlock) (map[*types.Variable]bool, map[*types.Variable][]*ir.BasicBlock) {
	globals := map[*types.Variable]bool{}
	defsites := map[*types.Variable][]*ir.BasicBlock{}
	for _, b := range order {
		killed := map[*types.Variable]bool{}
		for _, in := range b.Insn {
			for _, src := range []*types.Variable{in.Src0, in.Src1} {
				if src != nil && !src.IsConst && !killed[src.Root()] {
					globals[src.Root()] = true
				}
			}
			if in.Op != ir.OpPhi {
				for _, src := range in.PhiArgs {
					if src != nil && !src.IsConst && !killed[src.Root()] {
						globals[src.Root()] = true
					}
				}
			}
			if in.Dest != nil && !in.Dest.IsConst {
				root := in.Dest.Root()
				killed[root] = true
				defsites[root] = appendUnique(defsites[root], b)
			}
		}
	}
	return globals, defsites
}

// insertPhis places phi functions at each global variable's iterated
// dominance frontier, per spec.md §4.D step 6.
func insertPhis(order []*ir.BasicBlock, globals map[*types.Variable]bool, defsites map[*types.Variable][]*ir.BasicBlock) {
	for v := range globals {
		hasPhi := map[*ir.BasicBlock]bool{}
		worklist := append([]*ir.BasicBlock{}, defsites[v]...)
		for len(worklist) > 0 {
			b := worklist[0]
			worklist = worklist[1:]
			for _, d := range b.DF {
				if hasPhi[d] {
					continue
				}
				hasPhi[d] = true
				phi := &ir.Instruction{Op: ir.OpPhi, Dest: v, PhiArgs: make([]*types.Variable, len(d.Preds))}
				d.Insn = append([]*ir.Instruction{phi}, d.Insn...)
				worklist = append(worklist, d)
			}
		}
	}
}

// renameVariables walks the dominator tree, pushing a fresh SSA
// subscript at each definition and rewriting uses to the current
// top-of-stack renaming, per spec.md §4.D step 7. visited is passed down
// the recursion but never consulted; a dominator tree reaches each block
// once.
func renameVariables(fn *ir.Function, b *ir.BasicBlock, visited map[*types.Variable]bool) {
	_ = visited
	pushed := map[*types.Variable]int{}

	for _, in := range b.Insn {
		if in.Op != ir.OpPhi {
			for _, src := range [2]**types.Variable{&in.Src0, &in.Src1} {
				if *src != nil && !(*src).IsConst {
					*src = (*src).Root().Top()
				}
			}
			for i, src := range in.PhiArgs {
				if src != nil && !src.IsConst {
					in.PhiArgs[i] = src.Root().Top()
				}
			}
		}
		if in.Dest != nil && !in.Dest.IsConst {
			root := in.Dest.Root()
			n := len(root.Subscripts)
			in.Dest = root.Push(n)
			pushed[root]++
		}
	}

	for _, s := range b.Succs() {
		predIdx := predIndexOf(s, b)
		if predIdx < 0 {
			continue
		}
		for _, in := range s.Insn {
			if in.Op != ir.OpPhi {
				continue
			}
			root := in.Dest.Root()
			in.PhiArgs[predIdx] = root.Top()
		}
	}

	for _, kid := range b.DomKids {
		renameVariables(fn, kid, visited)
	}

	for root, n := range pushed {
		for i := 0; i < n; i++ {
			root.Pop()
		}
	}
}

func predIndexOf(b *ir.BasicBlock, pred *ir.BasicBlock) int {
	for i, e := range b.Preds {
		if e.Block == pred {
			return i
		}
	}
	return -1
}

func setToSlice(s map[*types.Variable]bool) []*types.Variable {
	out := make([]*types.Variable, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	return out
}

// UnwindPhis lowers phi instructions into explicit copies on each
// predecessor edge, per spec.md §4.D's pre-register-allocation unwinding
// step. Each phi is replaced, in its own block, by an UnwoundPhi marker
// retaining its destination, and a copy for the corresponding argument is
// placed at the end of every predecessor block, ahead of a trailing
// branch or return.
func UnwindPhis(fn *ir.Function) {
	for _, b := range fn.Blocks {
		var rest []*ir.Instruction
		for _, in := range b.Insn {
			if in.Op != ir.OpPhi {
				rest = append(rest, in)
				continue
			}
			for i, e := range b.Preds {
				arg := in.PhiArgs[i]
				if arg == nil {
					continue
				}
				copyInsn := &ir.Instruction{Op: ir.OpAssign, Dest: in.Dest, Src0: arg}
				insertBeforeTerminator(e.Block, copyInsn)
			}
			rest = append(rest, &ir.Instruction{Op: ir.OpUnwoundPhi, Dest: in.Dest})
		}
		b.Insn = rest
	}
}

func insertBeforeTerminator(b *ir.BasicBlock, in *ir.Instruction) {
	n := len(b.Insn)
	if n > 0 && (b.Insn[n-1].Op == ir.OpBranch || b.Insn[n-1].Op == ir.OpReturn) {
		b.Insn = append(b.Insn[:n-1], append([]*ir.Instruction{in}, b.Insn[n-1:]...)...)
		return
	}
	b.Insn = append(b.Insn, in)
}

// Liveness computes live_gen/live_kill/live_in/live_out to a fixpoint
// over fn's blocks, per spec.md §4.D's liveness pass. The register
// allocator does not read these sets; it builds its own live intervals.
func Liveness(fn *ir.Function) {
	for _, b := range fn.Blocks {
		b.LiveGen = map[*types.Variable]bool{}
		b.LiveKill = map[*types.Variable]bool{}
		for _, in := range b.Insn {
			for _, src := range []*types.Variable{in.Src0, in.Src1} {
				if src != nil && !src.IsConst && !b.LiveKill[src] {
					b.LiveGen[src] = true
				}
			}
			if in.Op != ir.OpPhi {
				for _, src := range in.PhiArgs {
					if src != nil && !src.IsConst && !b.LiveKill[src] {
						b.LiveGen[src] = true
					}
				}
			}
			if in.Dest != nil && !in.Dest.IsConst {
				b.LiveKill[in.Dest] = true
			}
		}
		b.LiveIn = map[*types.Variable]bool{}
		b.LiveOut = map[*types.Variable]bool{}
	}

	changed := true
	for changed {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			out := map[*types.Variable]bool{}
			for _, s := range b.Succs() {
				for v := range s.LiveIn {
					out[v] = true
				}
			}
			in := map[*types.Variable]bool{}
			for v := range b.LiveGen {
				in[v] = true
			}
			for v := range out {
				if !b.LiveKill[v] {
					in[v] = true
				}
			}
			if !sameSet(in, b.LiveIn) || !sameSet(out, b.LiveOut) {
				b.LiveIn, b.LiveOut = in, out
				changed = true
			}
		}
	}
}

func sameSet(a, b map[*types.Variable]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}

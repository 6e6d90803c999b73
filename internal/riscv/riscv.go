// Package riscv encodes phase-2 IR into RV32IM machine code, per spec.md
// §4.H: a two-pass encoder mirroring package arm's shape, using
// lui/addi immediate materialization and R-type/I-type instruction
// words.
//
// Grounded on std/compiler/elf_x64.go's two-pass layout/patch builder,
// generalized to RV32IM's fixed 4-byte instruction words.
package riscv

import (
	"encoding/binary"

	"github.com/sysprog21/shecc-sub000/internal/diag"
	"github.com/sysprog21/shecc-sub000/internal/elfwriter"
	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

// Register numbers within the allocator's abstract file map onto
// x10-x16 (a0-a6); x8 is the frame pointer (s0), x2 is the stack
// pointer, x1 is the return address register.
const (
	regZero = 0
	regRA   = 1
	regSP   = 2
	regFP   = 8
	regArg0 = 10
)

func physReg(abstract int) int {
	if abstract < 0 {
		return regSP
	}
	return abstract + regArg0
}

// Func holds one function's encoded RISC-V instructions plus its call
// fixups, produced by pass one and patched by pass two.
type Func struct {
	Name       string
	Offset     int
	Code       []byte
	callFixups []callFixup
}

type callFixup struct {
	pos    int
	callee string
}

// Encode lowers every function in fns into a single RV32IM text
// section, resolving intra-module call targets to JAL immediates, per
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
			rel := target - (f.Offset + fix.pos)
			patchJAL(f.Code, fix.pos, rel)
		}
		symbols = append(symbols, elfwriter.Symbol{Name: f.Name, Value: uint32(elfwriter.EntryPoint + f.Offset)})
		out = append(out, f.Code...)
	}
	return out, symbols, nil
}

// encodeStart hand-emits the process entry point: call main, then fall
// into the hand-emitted __exit sequence with its return value still in
// a0, per spec.md §4.H.
func encodeStart(out *Func) {
	emit32 := func(w uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		out.Code = append(out.Code, b[:]...)
	}
	out.callFixups = append(out.callFixups, callFixup{pos: len(out.Code), callee: "main"})
	emit32(0x6F) // JAL main, patched in Encode
	encodeExit(emit32)
}

// encodeExit hand-emits the __exit routine: main's return value is
// already in a0 by the ordinary return-value convention, so this only
// has to load the exit syscall number into a7 and trap, per spec.md
// §4.H.
func encodeExit(emit32 func(uint32)) {
	const syscallExit = 93 // Linux RV32 __NR_exit
	loadImmediate(emit32, 17, syscallExit)
	emit32(iType(0, 0, 0x0, 0, 0x73)) // ecall
}

func patchJAL(code []byte, pos, rel int) {
	imm := uint32(rel)
	word := (imm&0x100000)<<11 | (imm&0x7FE)<<20 | (imm&0x800)<<9 | (imm & 0xFF000) |
		uint32(regRA)<<7 | 0x6F
	binary.LittleEndian.PutUint32(code[pos:], word)
}

func rType(funct7, rs2, rs1, funct3, rd, opcode int) uint32 {
	return uint32(funct7)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | uint32(funct3)<<12 | uint32(rd)<<7 | uint32(opcode)
}

func iType(imm, rs1, funct3, rd, opcode int) uint32 {
	return uint32(imm&0xFFF)<<20 | uint32(rs1)<<15 | uint32(funct3)<<12 | uint32(rd)<<7 | uint32(opcode)
}

func encodeFunc(fn *ir.Function, out *Func) {
	emit32 := func(w uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		out.Code = append(out.Code, b[:]...)
	}

	// addi sp, sp, -framesize ; sw ra, fsz-4(sp) ; sw fp, fsz-8(sp) ; addi fp, sp, fsz
	frame := fn.StackSize + 8
	emit32(iType(-frame, regSP, 0x0, regSP, 0x13))
	emit32(storeWord(regSP, regRA, frame-4))
	emit32(storeWord(regSP, regFP, frame-8))
	emit32(iType(frame, regSP, 0x0, regFP, 0x13))

	for _, b := range fn.Blocks {
		for _, in := range b.Insn2 {
			encodeInstruction(in, emit32, out)
		}
		encodeTerminator(b, emit32, out)
	}

	emit32(loadWord(regSP, regRA, frame-4))
	emit32(loadWord(regSP, regFP, frame-8))
	emit32(iType(frame, regSP, 0x0, regSP, 0x13))
	emit32(iType(0, regRA, 0x0, 0, 0x67)) // jalr x0, ra, 0 (ret)
}

func storeWord(base, src, off int) uint32 {
	imm := off & 0xFFF
	return uint32(imm>>5)<<25 | uint32(src)<<20 | uint32(base)<<15 | 0x2<<12 | uint32(imm&0x1F)<<7 | 0x23
}

func loadWord(base, dst, off int) uint32 {
	return iType(off, base, 0x2, dst, 0x03)
}

// loadImmediate materializes a 32-bit immediate directly into rd via
// lui+addi, independent of rd's prior contents: when the immediate fits
// in addi's 12-bit range alone, the lui is skipped and addi sources from
// the hardwired x0 rather than from rd.
func loadImmediate(emit32 func(uint32), rd, imm int) {
	hi := (imm + 0x800) >> 12
	lo := imm - hi<<12
	base := regZero
	if hi != 0 {
		emit32(uint32(hi&0xFFFFF)<<12 | uint32(rd)<<7 | 0x37) // lui rd, hi
		base = rd
	}
	emit32(iType(lo, base, 0x0, rd, 0x13)) // addi rd, base, lo
}

// moveIntoReg materializes v into rd, skipping the move entirely when v
// is already resident in rd.
func moveIntoReg(emit32 func(uint32), rd int, v *types.Variable, preg int) {
	if v == nil {
		return
	}
	if v.IsConst {
		loadImmediate(emit32, rd, v.InitVal)
		return
	}
	if src := physReg(preg); src != rd {
		emit32(iType(0, src, 0x0, rd, 0x13)) // addi rd, src, 0 (mv)
	}
}

// encodeSyscall hand-emits the __syscall shim, per spec.md §4.H: shuffle
// the already-evaluated arguments into the Linux RV32 syscall registers
// (a7 = number, a0-a5 = args) and trap.
func encodeSyscall(in *ir.Instruction, emit32 func(uint32)) {
	if len(in.PhiArgs) == 0 {
		return
	}
	moveIntoReg(emit32, 17, in.PhiArgs[0], in.PRegs[0])
	for i, a := range in.PhiArgs[1:] {
		moveIntoReg(emit32, regArg0+i, a, in.PRegs[i+1])
	}
	emit32(iType(0, 0, 0x0, 0, 0x73)) // ecall
	if in.Dest != nil {
		emit32(iType(0, regArg0, 0x0, physReg(in.PDest), 0x13)) // addi rd, a0, 0
	}
}

func encodeInstruction(in *ir.Instruction, emit32 func(uint32), out *Func) {
	switch in.Op {
	case ir.OpLoadConstant:
		loadImmediate(emit32, physReg(in.PDest), in.Size)
	case ir.OpReturn:
		moveIntoReg(emit32, regArg0, in.Src0, in.PReg0)
	case ir.OpSyscall:
		encodeSyscall(in, emit32)
	case ir.OpAdd:
		emit32(rType(0, physReg(in.PReg1), physReg(in.PReg0), 0x0, physReg(in.PDest), 0x33))
	case ir.OpSub:
		emit32(rType(0x20, physReg(in.PReg1), physReg(in.PReg0), 0x0, physReg(in.PDest), 0x33))
	case ir.OpMul:
		emit32(rType(0x01, physReg(in.PReg1), physReg(in.PReg0), 0x0, physReg(in.PDest), 0x33))
	case ir.OpDiv:
		emit32(rType(0x01, physReg(in.PReg1), physReg(in.PReg0), 0x4, physReg(in.PDest), 0x33))
	case ir.OpBitAnd:
		emit32(rType(0, physReg(in.PReg1), physReg(in.PReg0), 0x7, physReg(in.PDest), 0x33))
	case ir.OpBitOr:
		emit32(rType(0, physReg(in.PReg1), physReg(in.PReg0), 0x6, physReg(in.PDest), 0x33))
	case ir.OpBitXor:
		emit32(rType(0, physReg(in.PReg1), physReg(in.PReg0), 0x4, physReg(in.PDest), 0x33))
	case ir.OpAssign:
		emit32(iType(0, physReg(in.PReg0), 0x0, physReg(in.PDest), 0x13)) // addi rd, rs, 0 (mv)
	case ir.OpCall:
		out.callFixups = append(out.callFixups, callFixup{pos: len(out.Code), callee: in.FuncName})
		emit32(0x6F) // JAL placeholder, patched in Encode
	case ir.OpPush:
		// arguments are bound directly to a0-a6 by the register allocator;
		// no separate push instruction is needed on this target.
		_ = in
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
		emit32(uint32(0)<<25 | uint32(regZero)<<20 | uint32(physReg(last.PReg0))<<15 | 0x0<<12 | 0x63) // beq reg, zero, <else>
		if b.IsBranchDetached {
			emit32(0x6F) // jal x0, <else>
		}
	case ir.OpReturn:
	}
}

package ir

import "fmt"

var opNames = map[Op]string{
	OpAllocat: "allocat", OpLoadConstant: "load_constant", OpLoadDataAddress: "load_data_address",
	OpAssign: "assign", OpAddressOf: "address_of", OpRead: "read", OpWrite: "write",
	OpBranch: "branch", OpJump: "jump", OpLabel: "label", OpPush: "push", OpCall: "call",
	OpIndirect: "indirect", OpSyscall: "syscall", OpFuncRet: "func_ret", OpReturn: "return",
	OpBlockStart: "block_start", OpBlockEnd: "block_end",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpLShift: "lshift", OpRShift: "rshift", OpBitAnd: "bit_and", OpBitOr: "bit_or",
	OpBitXor: "bit_xor", OpBitNot: "bit_not", OpLogAnd: "log_and", OpLogOr: "log_or",
	OpLogNot: "log_not", OpEq: "eq", OpNeq: "neq", OpLt: "lt", OpLeq: "leq",
	OpGt: "gt", OpGeq: "geq", OpNegate: "negate",
	OpPhi: "phi", OpUnwoundPhi: "unwound_phi", OpSignExt: "sign_ext", OpTrunc: "trunc",
}

// DumpInstruction formats one instruction for --dump-ir, per spec.md §6.
func DumpInstruction(in *Instruction) string {
	name := opNames[in.Op]
	dest := "_"
	if in.Dest != nil {
		dest = fmt.Sprintf("%s(r%d)", in.Dest.VarName, in.PDest)
	}
	switch in.Op {
	case OpLoadConstant:
		return fmt.Sprintf("%s = %s #%d", dest, name, in.Size)
	case OpCall:
		return fmt.Sprintf("%s = %s %s, %d args", dest, name, in.FuncName, in.ParamNum)
	case OpSyscall:
		return fmt.Sprintf("%s = %s %d arg(s)", dest, name, len(in.PhiArgs))
	}
	src0, src1 := "_", "_"
	if in.Src0 != nil {
		src0 = fmt.Sprintf("%s(r%d)", in.Src0.VarName, in.PReg0)
	}
	if in.Src1 != nil {
		src1 = fmt.Sprintf("%s(r%d)", in.Src1.VarName, in.PReg1)
	}
	return fmt.Sprintf("%s = %s %s, %s", dest, name, src0, src1)
}

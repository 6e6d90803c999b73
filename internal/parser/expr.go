package parser

import (
	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/token"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

// parseExpr parses a comma-separated expression list, evaluating left to
// right and yielding the last operand's value, per spec.md §4.C.
func (p *Parser) parseExpr() (*types.Variable, error) {
	v, err := p.parseAssignExpr()
	if err != nil {
		return nil, err
	}
	for p.match(token.Comma) {
		v, err = p.parseAssignExpr()
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

var compoundOps = map[token.Kind]ir.Op{
	token.PlusAssign:  ir.OpAdd,
	token.MinusAssign: ir.OpSub,
	token.OrAssign:    ir.OpBitOr,
	token.AndAssign:   ir.OpBitAnd,
}

// parseAssignExpr parses an assignment or a ternary expression, per
// spec.md §4.C's precedence table.
func (p *Parser) parseAssignExpr() (*types.Variable, error) {
	lhs, lv, err := p.parseTernaryLValue()
	if err != nil {
		return nil, err
	}
	if p.at(token.Assign) {
		p.advance()
		rhs, err := p.parseAssignExpr()
		if err != nil {
			return nil, err
		}
		if lv == nil {
			return nil, p.errorf("left side of assignment is not an lvalue")
		}
		p.writeLValue(lv, rhs)
		return rhs, nil
	}
	if op, ok := compoundOps[p.peek().Kind]; ok {
		p.advance()
		rhs, err := p.parseAssignExpr()
		if err != nil {
			return nil, err
		}
		if lv == nil {
			return nil, p.errorf("left side of assignment is not an lvalue")
		}
		res := p.newTemp(lhs.TypeName, lhs.PtrDepth)
		p.emit(&ir.Instruction{Op: op, Dest: res, Src0: lhs, Src1: rhs})
		p.writeLValue(lv, res)
		return res, nil
	}
	return lhs, nil
}

// lvalue describes an assignable location: either a plain variable, or a
// dereferenced/indexed/member location materialized as an address.
type lvalue struct {
	plain *types.Variable // assign directly, when addr == nil
	addr  *types.Variable // pointer to the storage, when set
	size  int
}

func (p *Parser) writeLValue(lv *lvalue, val *types.Variable) {
	if lv.addr == nil {
		p.emit(&ir.Instruction{Op: ir.OpAssign, Dest: lv.plain, Src0: val})
		return
	}
	p.emit(&ir.Instruction{Op: ir.OpWrite, Src0: lv.addr, Src1: val, Size: lv.size})
}

// parseTernaryLValue parses a ternary expression, also reporting whether
// the whole expression collapses to an assignable lvalue (only true when
// no operator beyond a bare operand was consumed).
func (p *Parser) parseTernaryLValue() (*types.Variable, *lvalue, error) {
	cond, lv, err := p.parseBinaryLValue(1)
	if err != nil {
		return nil, nil, err
	}
	if !p.at(token.Question) {
		return cond, lv, nil
	}
	p.advance()
	fn := p.curFn
	thenBlk := fn.NewBlock()
	elseBlk := fn.NewBlock()
	joinBlk := fn.NewBlock()

	head := p.cur
	head.LinkCond(thenBlk, elseBlk)
	p.emit(&ir.Instruction{Op: ir.OpBranch, Src0: cond})

	result := p.newTemp(cond.TypeName, cond.PtrDepth)

	p.cur = thenBlk
	a, err := p.parseAssignExpr()
	if err != nil {
		return nil, nil, err
	}
	p.emit(&ir.Instruction{Op: ir.OpAssign, Dest: result, Src0: a})
	p.cur.LinkNext(joinBlk)

	if _, err := p.expect(token.Colon); err != nil {
		return nil, nil, err
	}

	p.cur = elseBlk
	b, err := p.parseAssignExpr()
	if err != nil {
		return nil, nil, err
	}
	p.emit(&ir.Instruction{Op: ir.OpAssign, Dest: result, Src0: b})
	p.cur.LinkNext(joinBlk)

	p.cur = joinBlk
	return result, nil, nil
}

var binPrec = map[token.Kind]int{
	token.LogOr: 1, token.LogAnd: 2, token.Pipe: 3, token.Caret: 4, token.Amp: 5,
	token.Eq: 6, token.Neq: 6, token.Lt: 7, token.Leq: 7, token.Gt: 7, token.Geq: 7,
	token.Shl: 8, token.Shr: 8, token.Plus: 9, token.Minus: 9,
	token.Star: 10, token.Slash: 10, token.Percent: 10,
}

var binOp = map[token.Kind]ir.Op{
	token.Pipe: ir.OpBitOr, token.Caret: ir.OpBitXor, token.Amp: ir.OpBitAnd,
	token.Eq: ir.OpEq, token.Neq: ir.OpNeq, token.Lt: ir.OpLt, token.Leq: ir.OpLeq,
	token.Gt: ir.OpGt, token.Geq: ir.OpGeq, token.Shl: ir.OpLShift, token.Shr: ir.OpRShift,
	token.Plus: ir.OpAdd, token.Minus: ir.OpSub, token.Star: ir.OpMul,
	token.Slash: ir.OpDiv, token.Percent: ir.OpMod,
}

// parseBinaryLValue climbs operator precedence, short-circuiting && and
// || via basic blocks per spec.md §4.C (unlike the preprocessor's
// constant-fold evaluator, runtime && / || DO short-circuit).
func (p *Parser) parseBinaryLValue(minPrec int) (*types.Variable, *lvalue, error) {
	lhs, lv, err := p.parseUnaryLValue()
	if err != nil {
		return nil, nil, err
	}
	for {
		k := p.peek().Kind
		prec, ok := binPrec[k]
		if !ok || prec < minPrec {
			return lhs, lv, nil
		}
		lv = nil // once a binary operator applies, the result is no longer an lvalue
		if k == token.LogAnd || k == token.LogOr {
			v, err := p.parseShortCircuit(lhs, k)
			if err != nil {
				return nil, nil, err
			}
			lhs = v
			continue
		}
		p.advance()
		rhs, _, err := p.parseBinaryLValue(prec + 1)
		if err != nil {
			return nil, nil, err
		}
		res := p.newTemp("int", 0)
		p.emit(&ir.Instruction{Op: binOp[k], Dest: res, Src0: lhs, Src1: rhs})
		lhs = res
	}
}

// parseShortCircuit lowers "a && b" / "a || b" into a diamond that skips
// evaluating b when short-circuiting, per spec.md §4.C.
func (p *Parser) parseShortCircuit(lhs *types.Variable, op token.Kind) (*types.Variable, error) {
	p.advance()
	fn := p.curFn
	evalRHS := fn.NewBlock()
	skip := fn.NewBlock()
	join := fn.NewBlock()

	result := p.newTemp("int", 0)
	head := p.cur
	if op == token.LogAnd {
		head.LinkCond(evalRHS, skip)
	} else {
		head.LinkCond(skip, evalRHS)
	}
	p.emit(&ir.Instruction{Op: ir.OpBranch, Src0: lhs})

	p.cur = skip
	shortVal := p.newTemp("int", 0)
	var lit int
	if op == token.LogOr {
		lit = 1
	}
	p.emit(&ir.Instruction{Op: ir.OpLoadConstant, Dest: shortVal, Size: lit})
	p.emit(&ir.Instruction{Op: ir.OpAssign, Dest: result, Src0: shortVal})
	p.cur.LinkNext(join)

	p.cur = evalRHS
	rhs, _, err := p.parseBinaryLValue(binPrec[op] + 1)
	if err != nil {
		return nil, err
	}
	normalized := p.newTemp("int", 0)
	p.emit(&ir.Instruction{Op: ir.OpLogNot, Dest: normalized, Src0: rhs})
	p.emit(&ir.Instruction{Op: ir.OpLogNot, Dest: normalized, Src0: normalized})
	p.emit(&ir.Instruction{Op: ir.OpAssign, Dest: result, Src0: normalized})
	p.cur.LinkNext(join)

	p.cur = join
	return result, nil
}

// parseUnaryLValue parses a unary expression, reporting an lvalue only
// for bare variables and '*' dereferences.
func (p *Parser) parseUnaryLValue() (*types.Variable, *lvalue, error) {
	switch p.peek().Kind {
	case token.Plus:
		p.advance()
		return p.parseUnaryLValue()
	case token.Minus:
		p.advance()
		v, _, err := p.parseUnaryLValue()
		if err != nil {
			return nil, nil, err
		}
		res := p.newTemp(v.TypeName, v.PtrDepth)
		p.emit(&ir.Instruction{Op: ir.OpNegate, Dest: res, Src0: v})
		return res, nil, nil
	case token.Tilde:
		p.advance()
		v, _, err := p.parseUnaryLValue()
		if err != nil {
			return nil, nil, err
		}
		res := p.newTemp("int", 0)
		p.emit(&ir.Instruction{Op: ir.OpBitNot, Dest: res, Src0: v})
		return res, nil, nil
	case token.LogNot:
		p.advance()
		v, _, err := p.parseUnaryLValue()
		if err != nil {
			return nil, nil, err
		}
		res := p.newTemp("int", 0)
		p.emit(&ir.Instruction{Op: ir.OpLogNot, Dest: res, Src0: v})
		return res, nil, nil
	case token.Amp:
		p.advance()
		v, lv, err := p.parseUnaryLValue()
		if err != nil {
			return nil, nil, err
		}
		if lv != nil && lv.addr != nil {
			return lv.addr, nil, nil
		}
		res := p.newTemp(v.TypeName, v.PtrDepth+1)
		p.emit(&ir.Instruction{Op: ir.OpAddressOf, Dest: res, Src0: v})
		return res, nil, nil
	case token.Star:
		p.advance()
		v, _, err := p.parseUnaryLValue()
		if err != nil {
			return nil, nil, err
		}
		res := p.newTemp(v.TypeName, v.PtrDepth-1)
		sz := p.sizeOfVar(res)
		p.emit(&ir.Instruction{Op: ir.OpRead, Dest: res, Src0: v, Size: sz})
		return res, &lvalue{addr: v, size: sz}, nil
	case token.Inc, token.Dec:
		opKind := p.peek().Kind
		p.advance()
		_, lv, err := p.parseUnaryLValue()
		if err != nil {
			return nil, nil, err
		}
		if lv == nil {
			return nil, nil, p.errorf("operand of ++/-- must be an lvalue")
		}
		cur := p.readLValue(lv)
		one := &types.Variable{TypeName: "int", IsConst: true, InitVal: 1}
		res := p.newTemp(cur.TypeName, cur.PtrDepth)
		op := ir.OpAdd
		if opKind == token.Dec {
			op = ir.OpSub
		}
		p.emit(&ir.Instruction{Op: op, Dest: res, Src0: cur, Src1: one})
		p.writeLValue(lv, res)
		return res, nil, nil
	case token.KwSizeof:
		return p.parseSizeof()
	}
	return p.parsePostfixLValue()
}

func (p *Parser) readLValue(lv *lvalue) *types.Variable {
	if lv.addr == nil {
		return lv.plain
	}
	res := p.newTemp("int", 0)
	p.emit(&ir.Instruction{Op: ir.OpRead, Dest: res, Src0: lv.addr, Size: lv.size})
	return res
}

func (p *Parser) sizeOfVar(v *types.Variable) int {
	if v.PtrDepth > 0 {
		return 4
	}
	t, ok := p.ctx.Types[v.TypeName]
	if !ok {
		return 4
	}
	return t.Size
}

// parseSizeof parses "sizeof ( type-name )" or "sizeof unary-expr", per
// spec.md §4.C.
func (p *Parser) parseSizeof() (*types.Variable, *lvalue, error) {
	p.advance() // 'sizeof'
	if p.at(token.LParen) && p.isTypeNameAt(1) {
		p.advance()
		base, ptr, err := p.parseTypeSpec()
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, nil, err
		}
		sz := base.Size
		if ptr > 0 {
			sz = 4
		}
		res := p.newTemp("int", 0)
		p.emit(&ir.Instruction{Op: ir.OpLoadConstant, Dest: res, Size: sz})
		return res, nil, nil
	}
	v, _, err := p.parseUnaryLValue()
	if err != nil {
		return nil, nil, err
	}
	res := p.newTemp("int", 0)
	p.emit(&ir.Instruction{Op: ir.OpLoadConstant, Dest: res, Size: p.sizeOfVar(v)})
	return res, nil, nil
}

// isTypeNameAt reports whether the token n positions ahead starts a
// type-name, used to disambiguate "sizeof (type)" from "sizeof (expr)".
func (p *Parser) isTypeNameAt(n int) bool {
	switch p.peekAt(n).Kind {
	case token.KwVoid, token.KwChar, token.KwInt, token.KwStruct:
		return true
	case token.Identifier:
		_, ok := p.ctx.Types[p.peekAt(n).Text]
		return ok
	}
	return false
}

// parsePostfixLValue parses a primary expression followed by any number
// of postfix operators: call, subscript, member access, post-inc/dec.
func (p *Parser) parsePostfixLValue() (*types.Variable, *lvalue, error) {
	v, lv, err := p.parsePrimaryLValue()
	if err != nil {
		return nil, nil, err
	}
	for {
		switch p.peek().Kind {
		case token.LParen:
			v, err = p.parseCall(v)
			if err != nil {
				return nil, nil, err
			}
			lv = nil
		case token.LBracket:
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, nil, err
			}
			if _, err := p.expect(token.RBracket); err != nil {
				return nil, nil, err
			}
			elemSize := p.sizeOfVar(&types.Variable{TypeName: v.TypeName, PtrDepth: v.PtrDepth - 1})
			sizeLit := &types.Variable{TypeName: "int", IsConst: true, InitVal: elemSize}
			off := p.newTemp("int", 0)
			p.emit(&ir.Instruction{Op: ir.OpMul, Dest: off, Src0: idx, Src1: sizeLit})
			addr := p.newTemp(v.TypeName, v.PtrDepth)
			p.emit(&ir.Instruction{Op: ir.OpAdd, Dest: addr, Src0: v, Src1: off})
			elem := p.newTemp(v.TypeName, v.PtrDepth-1)
			p.emit(&ir.Instruction{Op: ir.OpRead, Dest: elem, Src0: addr, Size: elemSize})
			v, lv = elem, &lvalue{addr: addr, size: elemSize}
		case token.Dot, token.Arrow:
			isArrow := p.peek().Kind == token.Arrow
			p.advance()
			field, err := p.expect(token.Identifier)
			if err != nil {
				return nil, nil, err
			}
			base := v
			if !isArrow {
				if lv == nil || lv.addr == nil {
					return nil, nil, p.errorf("'.' requires an addressable struct")
				}
				base = lv.addr
			}
			t, ok := p.ctx.Types[base.TypeName]
			if !ok {
				return nil, nil, p.errorf("unknown struct type %q", base.TypeName)
			}
			fd, ok := t.Field(field.Text)
			if !ok {
				return nil, nil, p.errorf("no member %q on struct %s", field.Text, base.TypeName)
			}
			offLit := &types.Variable{TypeName: "int", IsConst: true, InitVal: fd.Offset}
			addr := p.newTemp(fd.TypeName, fd.PtrDepth+1)
			p.emit(&ir.Instruction{Op: ir.OpAdd, Dest: addr, Src0: base, Src1: offLit})
			sz := 4
			if fd.PtrDepth == 0 {
				if ft, ok := p.ctx.Types[fd.TypeName]; ok {
					sz = ft.Size
				}
			}
			elem := p.newTemp(fd.TypeName, fd.PtrDepth)
			p.emit(&ir.Instruction{Op: ir.OpRead, Dest: elem, Src0: addr, Size: sz})
			v, lv = elem, &lvalue{addr: addr, size: sz}
		case token.Inc, token.Dec:
			if lv == nil {
				return v, lv, nil
			}
			opKind := p.peek().Kind
			p.advance()
			old := p.readLValue(lv)
			one := &types.Variable{TypeName: "int", IsConst: true, InitVal: 1}
			updated := p.newTemp(old.TypeName, old.PtrDepth)
			op := ir.OpAdd
			if opKind == token.Dec {
				op = ir.OpSub
			}
			p.emit(&ir.Instruction{Op: op, Dest: updated, Src0: old, Src1: one})
			p.writeLValue(lv, updated)
			v, lv = old, nil
		default:
			return v, lv, nil
		}
	}
}

// parseCall parses a call's argument list. callee is either a resolved
// function-pointer variable (indirect call) or was produced directly from
// a bare identifier naming a known function (direct call), per spec.md
// §4.C.
func (p *Parser) parseCall(callee *types.Variable) (*types.Variable, error) {
	p.advance() // '('
	var args []*types.Variable
	if !p.at(token.RParen) {
		for {
			a, err := p.parseAssignExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	if callee.VarName == "__syscall" {
		return p.emitSyscall(args)
	}
	for _, a := range args {
		p.emit(&ir.Instruction{Op: ir.OpPush, Src0: a})
	}
	res := p.newTemp("int", 0)
	if callee.IsFunc {
		p.emit(&ir.Instruction{Op: ir.OpCall, Dest: res, FuncName: callee.VarName, ParamNum: len(args)})
	} else {
		p.emit(&ir.Instruction{Op: ir.OpIndirect, Dest: res, Src0: callee, ParamNum: len(args)})
	}
	return res, nil
}

// emitSyscall lowers a call to the __syscall builtin into a single
// OpSyscall instruction instead of the stack-based user calling
// convention: the backend hand-emits a register-shuffling shim for it, per
// spec.md §4.H. The first argument is the syscall number; the rest (at
// most 6, the Linux syscall ABI's limit) are passed straight through.
func (p *Parser) emitSyscall(args []*types.Variable) (*types.Variable, error) {
	if len(args) < 1 || len(args) > 7 {
		return nil, p.errorf("__syscall expects 1 to 7 arguments (number plus up to 6 args), got %d", len(args))
	}
	res := p.newTemp("int", 0)
	p.emit(&ir.Instruction{Op: ir.OpSyscall, Dest: res, PhiArgs: args})
	return res, nil
}

// parsePrimaryLValue parses an identifier, literal, or parenthesized
// sub-expression.
func (p *Parser) parsePrimaryLValue() (*types.Variable, *lvalue, error) {
	t := p.peek()
	switch t.Kind {
	case token.Identifier:
		p.advance()
		if t.Text == "__syscall" {
			return &types.Variable{VarName: "__syscall", IsFunc: true}, nil, nil
		}
		v, ok := p.lookup(t.Text)
		if !ok {
			return nil, nil, p.errorf("undeclared identifier %q", t.Text)
		}
		if v.IsConst {
			lit := &types.Variable{TypeName: v.TypeName, IsConst: true, InitVal: v.InitVal}
			return lit, nil, nil
		}
		cur := v.Top()
		if v.IsFunc {
			return cur, nil, nil
		}
		return cur, &lvalue{plain: cur}, nil
	case token.Numeric:
		p.advance()
		res := p.newTemp("int", 0)
		p.emit(&ir.Instruction{Op: ir.OpLoadConstant, Dest: res, Size: parseIntText(t.Text)})
		return res, nil, nil
	case token.Char:
		p.advance()
		res := p.newTemp("char", 0)
		p.emit(&ir.Instruction{Op: ir.OpLoadConstant, Dest: res, Size: int(decodeCharLit(t.Text))})
		return res, nil, nil
	case token.String:
		p.advance()
		res := p.newTemp("char", 1)
		p.emit(&ir.Instruction{Op: ir.OpLoadDataAddress, Dest: res, FuncName: t.Text})
		return res, nil, nil
	case token.LParen:
		if p.isTypeNameAt(1) {
			return p.parseCompoundLiteralOrCast()
		}
		p.advance()
		v, lv, err := p.parseTernaryLValue()
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, nil, err
		}
		return v, lv, nil
	}
	return nil, nil, p.errorf("unexpected token %s in expression", t.Kind)
}

// parseCompoundLiteralOrCast handles "(type)" as a scalar cast, and
// "(type){ ... }" / "(type[n]){ ... }" as the limited compound literals
// spec.md §4.C allows.
func (p *Parser) parseCompoundLiteralOrCast() (*types.Variable, *lvalue, error) {
	p.advance() // '('
	base, ptr, err := p.parseTypeSpec()
	if err != nil {
		return nil, nil, err
	}
	arr := -1
	if p.match(token.LBracket) {
		n, err := p.evalConstInt()
		if err != nil {
			return nil, nil, err
		}
		arr = n
		if _, err := p.expect(token.RBracket); err != nil {
			return nil, nil, err
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, nil, err
	}
	if !p.at(token.LBrace) {
		// Plain cast.
		v, _, err := p.parseUnaryLValue()
		if err != nil {
			return nil, nil, err
		}
		res := p.newTemp(base.Name, ptr)
		p.emit(&ir.Instruction{Op: ir.OpAssign, Dest: res, Src0: v})
		return res, nil, nil
	}
	p.advance() // '{'
	tmp := &types.Variable{TypeName: base.Name, PtrDepth: ptr}
	if arr >= 0 {
		tmp.ArrSize = arr
	}
	p.emit(&ir.Instruction{Op: ir.OpAllocat, Dest: tmp, Size: tmp.Size(base)})
	idx := 0
	for !p.at(token.RBrace) {
		val, err := p.parseAssignExpr()
		if err != nil {
			return nil, nil, err
		}
		elemSize := base.Size
		offLit := &types.Variable{TypeName: "int", IsConst: true, InitVal: idx * elemSize}
		addr := p.newTemp(base.Name, ptr+1)
		p.emit(&ir.Instruction{Op: ir.OpAdd, Dest: addr, Src0: tmp, Src1: offLit})
		p.emit(&ir.Instruction{Op: ir.OpWrite, Src0: addr, Src1: val, Size: elemSize})
		idx++
		if !p.match(token.Comma) {
			break
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, nil, err
	}
	return tmp, &lvalue{plain: tmp}, nil
}

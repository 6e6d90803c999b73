package parser

import (
	"github.com/sysprog21/shecc-sub000/internal/diag"
	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/token"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

// parseExternalDecl parses one top-level construct: a typedef, a struct
// declaration, a function declaration/definition, or a global variable
// declaration, per spec.md §4.C.
func (p *Parser) parseExternalDecl() error {
	switch {
	case p.at(token.KwTypedef):
		return p.parseTypedef()
	case p.at(token.KwStruct) && p.peekAt(2).Kind == token.LBrace:
		return p.parseStructDecl(false)
	case p.at(token.KwUnion):
		return diag.New(diag.Parse, p.peek().Loc, "union is not supported")
	case p.at(token.KwConst):
		return diag.New(diag.Parse, p.peek().Loc, "const is not supported")
	default:
		return p.parseFuncOrGlobal()
	}
}

// parseTypedef parses "typedef <enum|struct|alias> name ;", per spec.md
// §4.C.
func (p *Parser) parseTypedef() error {
	p.advance() // 'typedef'
	switch {
	case p.at(token.KwEnum):
		return p.parseEnumTypedef()
	case p.at(token.KwStruct):
		return p.parseStructDecl(true)
	default:
		base, ptr, err := p.parseTypeSpec()
		if err != nil {
			return err
		}
		name, err := p.expect(token.Identifier)
		if err != nil {
			return err
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return err
		}
		alias := *base
		alias.Name = name.Text
		p.ctx.Types[name.Text] = &alias
		_ = ptr
		return nil
	}
}

// parseEnumTypedef parses "enum { id [= const-expr] , ... } name ;" per
// spec.md §4.C, installing each member as a compile-time int constant.
func (p *Parser) parseEnumTypedef() error {
	p.advance() // 'enum'
	if _, err := p.expect(token.LBrace); err != nil {
		return err
	}
	next := 0
	for !p.at(token.RBrace) {
		nameTok, err := p.expect(token.Identifier)
		if err != nil {
			return err
		}
		val := next
		if p.match(token.Assign) {
			v, err := p.evalConstInt()
			if err != nil {
				return err
			}
			val = v
		}
		p.declare(&types.Variable{TypeName: "int", VarName: nameTok.Text, IsConst: true, InitVal: val, IsGlobal: true})
		next = val + 1
		if !p.match(token.Comma) {
			break
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return err
	}
	if p.at(token.Identifier) {
		p.advance() // the enum's type alias name; an enum's members are plain ints
	}
	_, err := p.expect(token.Semicolon)
	return err
}

// parseStructDecl parses "struct name { fields } [ name ] ;" per spec.md
// §4.C, patching a prior forward declaration exactly once if one exists.
func (p *Parser) parseStructDecl(isTypedef bool) error {
	p.advance() // 'struct'
	nameTok, err := p.expect(token.Identifier)
	if err != nil {
		return err
	}
	if !p.at(token.LBrace) {
		// Forward declaration.
		if _, exists := p.ctx.Types[nameTok.Text]; !exists {
			p.ctx.Types[nameTok.Text] = &types.Type{Name: nameTok.Text, Base: types.Struct}
		}
		if isTypedef {
			if _, err := p.expect(token.Identifier); err != nil {
				return err
			}
		}
		_, err := p.expect(token.Semicolon)
		return err
	}
	p.advance() // '{'
	var fields []types.Field
	var sizes []int
	for !p.at(token.RBrace) {
		base, ptr, err := p.parseTypeSpec()
		if err != nil {
			return err
		}
		for {
			fname, err := p.expect(token.Identifier)
			if err != nil {
				return err
			}
			depth := ptr
			for p.match(token.Star) {
				depth++
			}
			arr := 0
			if p.match(token.LBracket) {
				n, err := p.evalConstInt()
				if err != nil {
					return err
				}
				arr = n
				if _, err := p.expect(token.RBracket); err != nil {
					return err
				}
			}
			fields = append(fields, types.Field{TypeName: base.Name, VarName: fname.Text, PtrDepth: depth, ArrSize: arr})
			sizes = append(sizes, base.Size)
			if !p.match(token.Comma) {
				break
			}
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return err
		}
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return err
	}
	body := types.NewStruct(nameTok.Text, fields, sizes)
	if existing, ok := p.ctx.Types[nameTok.Text]; ok && len(existing.Fields) == 0 {
		existing.Patch(body)
	} else {
		p.ctx.Types[nameTok.Text] = body
	}
	if isTypedef {
		alias, err := p.expect(token.Identifier)
		if err != nil {
			return err
		}
		p.ctx.Types[alias.Text] = p.ctx.Types[nameTok.Text]
	}
	_, err = p.expect(token.Semicolon)
	return err
}

// parseTypeSpec parses a base type name (void/char/int/struct tag/typedef
// name) followed by zero or more '*', returning the resolved type and
// pointer depth.
func (p *Parser) parseTypeSpec() (*types.Type, int, error) {
	var name string
	switch {
	case p.at(token.KwVoid):
		name = "void"
		p.advance()
	case p.at(token.KwChar):
		name = "char"
		p.advance()
	case p.at(token.KwInt):
		name = "int"
		p.advance()
	case p.at(token.KwStruct):
		p.advance()
		tag, err := p.expect(token.Identifier)
		if err != nil {
			return nil, 0, err
		}
		name = tag.Text
	case p.at(token.Identifier):
		name = p.peek().Text
		p.advance()
	default:
		return nil, 0, p.errorf("expected a type name, got %s", p.peek().Kind)
	}
	t, ok := p.ctx.Types[name]
	if !ok {
		return nil, 0, p.errorf("unknown type %q", name)
	}
	depth := 0
	for p.match(token.Star) {
		depth++
	}
	return t, depth, nil
}

// isTypeName reports whether the upcoming tokens start a type-name,
// distinguishing a declaration from an expression-statement.
func (p *Parser) isTypeName() bool {
	switch p.peek().Kind {
	case token.KwVoid, token.KwChar, token.KwInt, token.KwStruct:
		return true
	case token.Identifier:
		_, ok := p.ctx.Types[p.peek().Text]
		return ok
	}
	return false
}

// parseFuncOrGlobal parses a function declaration/definition or a global
// variable declaration, per spec.md §4.C.
func (p *Parser) parseFuncOrGlobal() error {
	base, ptr, err := p.parseTypeSpec()
	if err != nil {
		return err
	}
	nameTok, err := p.expect(token.Identifier)
	if err != nil {
		return err
	}
	if p.at(token.LParen) {
		return p.parseFunc(base, ptr, nameTok.Text)
	}
	return p.parseGlobalVar(base, ptr, nameTok.Text)
}

// parseGlobalVar parses the remainder of a global declaration after its
// name: optional array brackets and an optional scalar constant
// initializer. Arrays and pointers cannot be initialized globally, per
// spec.md §4.C.
func (p *Parser) parseGlobalVar(base *types.Type, ptr int, name string) error {
	arr := 0
	if p.match(token.LBracket) {
		if !p.at(token.RBracket) {
			n, err := p.evalConstInt()
			if err != nil {
				return err
			}
			arr = n
		}
		if _, err := p.expect(token.RBracket); err != nil {
			return err
		}
	}
	v := &types.Variable{TypeName: base.Name, VarName: name, PtrDepth: ptr, ArrSize: arr, IsGlobal: true}
	if p.match(token.Assign) {
		if arr > 0 || ptr > 0 {
			return p.errorf("global array/pointer initializers are not supported")
		}
		val, err := p.evalConstInt()
		if err != nil {
			return err
		}
		v.InitVal = val
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return err
	}
	p.declare(v)
	p.ctx.Globals = append(p.ctx.Globals, v)
	return nil
}

// parseFunc parses a function's parameter list and either a ';'
// (declaration only) or a compound-statement body (definition), per
// spec.md §4.C.
func (p *Parser) parseFunc(ret *types.Type, retPtr int, name string) error {
	p.advance() // '('
	fn := &ir.Function{Name: name, ReturnType: ret}
	p.declare(&types.Variable{TypeName: ret.Name, VarName: name, PtrDepth: retPtr, IsFunc: true})
	p.pushScope()
	if p.at(token.KwVoid) && p.peekAt(1).Kind == token.RParen {
		p.advance()
	}
	if !p.at(token.RParen) {
		for {
			if p.match(token.Ellipsis) {
				fn.IsVariadic = true
				break
			}
			pbase, pptr, err := p.parseTypeSpec()
			if err != nil {
				return err
			}
			pname, err := p.expect(token.Identifier)
			if err != nil {
				return err
			}
			if len(fn.Params) >= ir.MaxParams {
				return p.errorf("too many parameters (max %d)", ir.MaxParams)
			}
			pv := &types.Variable{TypeName: pbase.Name, VarName: pname.Text, PtrDepth: pptr}
			fn.Params = append(fn.Params, pv)
			p.declare(pv)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	if p.match(token.Semicolon) {
		p.popScope()
		return nil // prototype only
	}

	p.curFn = fn
	fn.Entry = fn.NewBlock()
	fn.Exit = fn.NewBlock()
	p.cur = fn.Entry

	if err := p.parseCompoundInto(); err != nil {
		return err
	}
	p.cur.LinkNext(fn.Exit)
	p.emitReturn(nil)

	p.popScope()
	p.ctx.Funcs = append(p.ctx.Funcs, fn)
	p.curFn = nil
	return nil
}

func (p *Parser) emitReturn(v *types.Variable) {
	p.emit(&ir.Instruction{Op: ir.OpReturn, Src0: v})
}

// evalConstInt evaluates a compile-time constant integer expression
// directly during parsing (eval_expression_imm in spec.md §4.C), covering
// arithmetic and ternary folds over literal and enum-constant operands.
func (p *Parser) evalConstInt() (int, error) {
	return p.parseConstTernary()
}

func (p *Parser) parseConstTernary() (int, error) {
	cond, err := p.parseConstBinary(0)
	if err != nil {
		return 0, err
	}
	if p.match(token.Question) {
		a, err := p.parseConstTernary()
		if err != nil {
			return 0, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return 0, err
		}
		b, err := p.parseConstTernary()
		if err != nil {
			return 0, err
		}
		if cond != 0 {
			return a, nil
		}
		return b, nil
	}
	return cond, nil
}

var constPrec = map[token.Kind]int{
	token.LogOr: 1, token.LogAnd: 2, token.Pipe: 3, token.Caret: 4, token.Amp: 5,
	token.Eq: 6, token.Neq: 6, token.Lt: 7, token.Leq: 7, token.Gt: 7, token.Geq: 7,
	token.Shl: 8, token.Shr: 8, token.Plus: 9, token.Minus: 9,
	token.Star: 10, token.Slash: 10, token.Percent: 10,
}

func (p *Parser) parseConstBinary(minPrec int) (int, error) {
	lhs, err := p.parseConstUnary()
	if err != nil {
		return 0, err
	}
	for {
		prec, ok := constPrec[p.peek().Kind]
		if !ok || prec < minPrec {
			return lhs, nil
		}
		op := p.advance().Kind
		rhs, err := p.parseConstBinary(prec + 1)
		if err != nil {
			return 0, err
		}
		lhs = foldConstBinary(op, lhs, rhs)
	}
}

func foldConstBinary(op token.Kind, a, b int) int {
	switch op {
	case token.Plus:
		return a + b
	case token.Minus:
		return a - b
	case token.Star:
		return a * b
	case token.Slash:
		if b == 0 {
			return 0
		}
		return a / b
	case token.Percent:
		if b == 0 {
			return 0
		}
		return a % b
	case token.Amp:
		return a & b
	case token.Pipe:
		return a | b
	case token.Caret:
		return a ^ b
	case token.Shl:
		return a << uint(b)
	case token.Shr:
		return a >> uint(b)
	case token.Lt:
		return boolToInt(a < b)
	case token.Leq:
		return boolToInt(a <= b)
	case token.Gt:
		return boolToInt(a > b)
	case token.Geq:
		return boolToInt(a >= b)
	case token.Eq:
		return boolToInt(a == b)
	case token.Neq:
		return boolToInt(a != b)
	case token.LogAnd:
		return boolToInt(a != 0 && b != 0)
	case token.LogOr:
		return boolToInt(a != 0 || b != 0)
	}
	return 0
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (p *Parser) parseConstUnary() (int, error) {
	switch p.peek().Kind {
	case token.Plus:
		p.advance()
		return p.parseConstUnary()
	case token.Minus:
		p.advance()
		v, err := p.parseConstUnary()
		return -v, err
	case token.Tilde:
		p.advance()
		v, err := p.parseConstUnary()
		return ^v, err
	case token.LogNot:
		p.advance()
		v, err := p.parseConstUnary()
		return boolToInt(v == 0), err
	}
	return p.parseConstPrimary()
}

func (p *Parser) parseConstPrimary() (int, error) {
	t := p.peek()
	switch t.Kind {
	case token.Numeric:
		p.advance()
		return parseIntText(t.Text), nil
	case token.Char:
		p.advance()
		return int(decodeCharLit(t.Text)), nil
	case token.LParen:
		p.advance()
		v, err := p.parseConstTernary()
		if err != nil {
			return 0, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return 0, err
		}
		return v, nil
	case token.Identifier:
		if v, ok := p.lookup(t.Text); ok && v.IsConst {
			p.advance()
			return v.InitVal, nil
		}
	}
	return 0, diag.New(diag.Semantic, t.Loc, "expected a compile-time constant expression")
}

func parseIntText(text string) int {
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		return parseBase(text[2:], 16)
	}
	if len(text) > 2 && text[0] == '0' && (text[1] == 'b' || text[1] == 'B') {
		return parseBase(text[2:], 2)
	}
	if len(text) > 1 && text[0] == '0' {
		return parseBase(text, 8)
	}
	return parseBase(text, 10)
}

func parseBase(text string, base int) int {
	n := 0
	for _, c := range []byte(text) {
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'f':
			d = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int(c-'A') + 10
		default:
			continue
		}
		n = n*base + d
	}
	return n
}

func decodeCharLit(text string) byte {
	if len(text) == 0 {
		return 0
	}
	if text[0] != '\\' {
		return text[0]
	}
	if len(text) < 2 {
		return 0
	}
	switch text[1] {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case '\\':
		return '\\'
	case '\'':
		return '\''
	case '"':
		return '"'
	case '0':
		return 0
	}
	return text[1]
}

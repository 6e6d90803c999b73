package parser

import (
	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/token"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

// parseCompoundInto parses a '{' ... '}' block into the current basic
// block, opening a fresh lexical scope, per spec.md §4.C.
func (p *Parser) parseCompoundInto() error {
	if _, err := p.expect(token.LBrace); err != nil {
		return err
	}
	p.pushScope()
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		if err := p.parseBlockItem(); err != nil {
			return err
		}
	}
	p.popScope()
	_, err := p.expect(token.RBrace)
	return err
}

// parseBlockItem parses one local declaration or statement.
func (p *Parser) parseBlockItem() error {
	if p.isTypeName() {
		return p.parseLocalDecl()
	}
	return p.parseStatement()
}

// parseLocalDecl parses a local variable declaration, possibly with a
// runtime initializer, per spec.md §4.C.
func (p *Parser) parseLocalDecl() error {
	base, ptr, err := p.parseTypeSpec()
	if err != nil {
		return err
	}
	for {
		nameTok, err := p.expect(token.Identifier)
		if err != nil {
			return err
		}
		depth := ptr
		for p.match(token.Star) {
			depth++
		}
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
		v := &types.Variable{TypeName: base.Name, VarName: nameTok.Text, PtrDepth: depth, ArrSize: arr}
		p.declare(v)
		p.emit(&ir.Instruction{Op: ir.OpAllocat, Dest: v, Size: v.Size(base)})
		if p.match(token.Assign) {
			rhs, err := p.parseAssignExpr()
			if err != nil {
				return err
			}
			p.emit(&ir.Instruction{Op: ir.OpAssign, Dest: v, Src0: rhs})
		}
		if !p.match(token.Comma) {
			break
		}
	}
	_, err = p.expect(token.Semicolon)
	return err
}

// parseStatement parses one statement, per spec.md §4.C.
func (p *Parser) parseStatement() error {
	switch p.peek().Kind {
	case token.LBrace:
		return p.parseCompoundInto()
	case token.Semicolon:
		p.advance()
		return nil
	case token.KwIf:
		return p.parseIf()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwDo:
		return p.parseDoWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwSwitch:
		return p.parseSwitch()
	case token.KwBreak:
		return p.parseBreak()
	case token.KwContinue:
		return p.parseContinue()
	case token.KwReturn:
		return p.parseReturn()
	case token.KwGoto:
		return p.errorf("goto is not supported")
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseExprStatement() error {
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	_, err := p.expect(token.Semicolon)
	return err
}

// parseIf lowers "if (cond) then [else els]" into a diamond of basic
// blocks, per spec.md §4.C.
func (p *Parser) parseIf() error {
	p.advance() // 'if'
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}

	fn := p.curFn
	thenBlk := fn.NewBlock()
	joinBlk := fn.NewBlock()
	elseBlk := joinBlk

	head := p.cur
	p.emit(&ir.Instruction{Op: ir.OpBranch, Src0: cond})

	p.cur = thenBlk
	if err := p.parseStatement(); err != nil {
		return err
	}
	p.cur.LinkNext(joinBlk)

	if p.match(token.KwElse) {
		elseBlk = fn.NewBlock()
		p.cur = elseBlk
		if err := p.parseStatement(); err != nil {
			return err
		}
		p.cur.LinkNext(joinBlk)
	}
	head.LinkCond(thenBlk, elseBlk)

	p.cur = joinBlk
	return nil
}

// parseWhile lowers "while (cond) body" into header/body/exit blocks, per
// spec.md §4.C.
func (p *Parser) parseWhile() error {
	p.advance() // 'while'
	fn := p.curFn
	header := fn.NewBlock()
	body := fn.NewBlock()
	exit := fn.NewBlock()

	p.cur.LinkNext(header)
	p.cur = header
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	header.LinkCond(body, exit)
	p.emit(&ir.Instruction{Op: ir.OpBranch, Src0: cond})

	p.loops = append(p.loops, loopLabels{breakBlock: exit, continueBlock: header})
	p.cur = body
	if err := p.parseStatement(); err != nil {
		return err
	}
	p.loops = p.loops[:len(p.loops)-1]
	p.cur.LinkNext(header)

	p.cur = exit
	return nil
}

// parseDoWhile lowers "do body while (cond);" per spec.md §4.C.
func (p *Parser) parseDoWhile() error {
	p.advance() // 'do'
	fn := p.curFn
	body := fn.NewBlock()
	test := fn.NewBlock()
	exit := fn.NewBlock()

	p.cur.LinkNext(body)
	p.loops = append(p.loops, loopLabels{breakBlock: exit, continueBlock: test})
	p.cur = body
	if err := p.parseStatement(); err != nil {
		return err
	}
	p.loops = p.loops[:len(p.loops)-1]
	p.cur.LinkNext(test)

	if _, err := p.expect(token.KwWhile); err != nil {
		return err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	p.cur = test
	cond, err := p.parseExpr()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return err
	}
	test.LinkCond(body, exit)
	p.emit(&ir.Instruction{Op: ir.OpBranch, Src0: cond})

	p.cur = exit
	return nil
}

// parseFor lowers "for (init; cond; post) body" per spec.md §4.C.
func (p *Parser) parseFor() error {
	p.advance() // 'for'
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	p.pushScope()
	if !p.at(token.Semicolon) {
		if p.isTypeName() {
			if err := p.parseLocalDecl(); err != nil {
				return err
			}
		} else {
			if _, err := p.parseExpr(); err != nil {
				return err
			}
			if _, err := p.expect(token.Semicolon); err != nil {
				return err
			}
		}
	} else {
		p.advance()
	}

	fn := p.curFn
	header := fn.NewBlock()
	body := fn.NewBlock()
	post := fn.NewBlock()
	exit := fn.NewBlock()

	p.cur.LinkNext(header)
	p.cur = header
	var cond *types.Variable
	if !p.at(token.Semicolon) {
		c, err := p.parseExpr()
		if err != nil {
			return err
		}
		cond = c
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return err
	}

	postStart := len(p.toks) // placeholder, unused; post-expression parsed below after body is sequenced
	_ = postStart

	// Parse the post-expression's tokens now, but emit them into the post
	// block by temporarily redirecting p.cur.
	savedCur := header
	_ = savedCur
	postTokStart := p.pos
	depth := 0
	for {
		k := p.peek().Kind
		if k == token.EOF {
			break
		}
		if k == token.LParen {
			depth++
		}
		if k == token.RParen {
			if depth == 0 {
				break
			}
			depth--
		}
		p.advance()
	}
	postTokEnd := p.pos
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}

	if cond != nil {
		header.LinkCond(body, exit)
		p.emit(&ir.Instruction{Op: ir.OpBranch, Src0: cond})
	} else {
		header.LinkNext(body)
	}

	p.loops = append(p.loops, loopLabels{breakBlock: exit, continueBlock: post})
	p.cur = body
	if err := p.parseStatement(); err != nil {
		return err
	}
	p.loops = p.loops[:len(p.loops)-1]
	p.cur.LinkNext(post)

	p.cur = post
	if postTokEnd > postTokStart {
		savedPos, savedLen := p.pos, len(p.toks)
		p.pos = postTokStart
		p.toks = p.toks[:postTokEnd]
		if _, err := p.parseExpr(); err != nil {
			return err
		}
		p.toks = p.toks[:savedLen]
		p.pos = savedPos
	}
	p.cur.LinkNext(header)

	p.popScope()
	p.cur = exit
	return nil
}

// parseSwitch lowers a switch statement into a chain of equality
// comparisons against the scrutinee, per spec.md §4.C (no jump table).
func (p *Parser) parseSwitch() error {
	p.advance() // 'switch'
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	scrut, err := p.parseExpr()
	if err != nil {
		return err
	}
	if _, err := p.expect(token.RParen); err != nil {
		return err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return err
	}

	fn := p.curFn
	exit := fn.NewBlock()
	p.loops = append(p.loops, loopLabels{breakBlock: exit})

	testBlk := p.cur
	var defaultBody *ir.BasicBlock
	var defaultNext *ir.BasicBlock

	for !p.at(token.RBrace) && !p.at(token.EOF) {
		if p.match(token.KwDefault) {
			if _, err := p.expect(token.Colon); err != nil {
				return err
			}
			defaultBody = fn.NewBlock()
			p.cur = defaultBody
			for !p.at(token.KwCase) && !p.at(token.KwDefault) && !p.at(token.RBrace) {
				if err := p.parseBlockItem(); err != nil {
					return err
				}
			}
			defaultNext = fn.NewBlock()
			p.cur.LinkNext(defaultNext)
			continue
		}
		if _, err := p.expect(token.KwCase); err != nil {
			return err
		}
		val, err := p.evalConstInt()
		if err != nil {
			return err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return err
		}

		caseBody := fn.NewBlock()
		nextTest := fn.NewBlock()
		lit := &types.Variable{TypeName: "int", IsConst: true, InitVal: val}
		eq := p.newTemp("int", 0)
		p.cur = testBlk
		p.emit(&ir.Instruction{Op: ir.OpEq, Dest: eq, Src0: scrut, Src1: lit})
		testBlk.LinkCond(caseBody, nextTest)
		p.emit(&ir.Instruction{Op: ir.OpBranch, Src0: eq})

		p.cur = caseBody
		for !p.at(token.KwCase) && !p.at(token.KwDefault) && !p.at(token.RBrace) {
			if err := p.parseBlockItem(); err != nil {
				return err
			}
		}
		p.cur.LinkNext(exit)
		testBlk = nextTest
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return err
	}

	if defaultBody != nil {
		testBlk.LinkNext(defaultBody)
		defaultNext.LinkNext(exit)
	} else {
		testBlk.LinkNext(exit)
	}

	p.loops = p.loops[:len(p.loops)-1]
	p.cur = exit
	return nil
}

func (p *Parser) parseBreak() error {
	p.advance()
	if _, err := p.expect(token.Semicolon); err != nil {
		return err
	}
	if len(p.loops) == 0 {
		return p.errorf("break outside a loop or switch")
	}
	target := p.loops[len(p.loops)-1].breakBlock
	p.cur.LinkNext(target)
	p.cur = p.curFn.NewBlock() // unreachable tail, kept alive for simplicity
	return nil
}

func (p *Parser) parseContinue() error {
	p.advance()
	if _, err := p.expect(token.Semicolon); err != nil {
		return err
	}
	if len(p.loops) == 0 {
		return p.errorf("continue outside a loop")
	}
	target := p.loops[len(p.loops)-1].continueBlock
	if target == nil {
		return p.errorf("continue outside a loop")
	}
	p.cur.LinkNext(target)
	p.cur = p.curFn.NewBlock()
	return nil
}

func (p *Parser) parseReturn() error {
	p.advance()
	var v *types.Variable
	if !p.at(token.Semicolon) {
		rv, err := p.parseExpr()
		if err != nil {
			return err
		}
		v = rv
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return err
	}
	p.emitReturn(v)
	p.cur.LinkNext(p.curFn.Exit)
	p.cur = p.curFn.NewBlock()
	return nil
}

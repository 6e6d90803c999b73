// Package session holds the Context aggregate threaded through every
// pipeline phase, replacing the module-level globals the original source
// used, per spec.md §9's design note.
//
// Grounded on std/compiler/frontend.go's Module{BaseDir, Packages, Order,
// Entry} aggregate root, generalized from "one root per package graph" to
// "one root per translation unit, threaded through every phase".
package session

import (
	"github.com/sysprog21/shecc-sub000/internal/intern"
	"github.com/sysprog21/shecc-sub000/internal/ir"
	"github.com/sysprog21/shecc-sub000/internal/types"
)

// Arch selects the backend target, per spec.md §1.
type Arch int

const (
	ARM Arch = iota
	RISCV
)

func (a Arch) String() string {
	if a == RISCV {
		return "riscv"
	}
	return "arm"
}

// Predefine returns the architecture's always-1 predefined macro name, per
// spec.md §3.
func (a Arch) Predefine() string {
	if a == RISCV {
		return "__riscv"
	}
	return "__arm__"
}

// Options are the CLI-controlled compile-time flags, per spec.md §6.
type Options struct {
	Arch      Arch
	DumpIR    bool
	NoLibc    bool
	OutputPath string
}

// Context is the single explicit aggregate passed into every phase,
// replacing the source's module-level global tables per spec.md §9.
type Context struct {
	Interner *intern.Table
	Types    map[string]*types.Type
	Funcs    []*ir.Function
	Globals  []*types.Variable
	Options  Options
}

// NewContext creates an empty Context seeded with the built-in scalar
// types, per spec.md §3.
func NewContext(opts Options) *Context {
	c := &Context{
		Interner: intern.New(),
		Types:    make(map[string]*types.Type),
		Options:  opts,
	}
	c.Types["void"] = types.NewScalar(types.Void)
	c.Types["char"] = types.NewScalar(types.Char)
	c.Types["int"] = types.NewScalar(types.Int)
	return c
}

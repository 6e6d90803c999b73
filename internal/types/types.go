// Package types holds the compiler's shared data model for the type
// system and declared variables, per spec.md §3.
//
// Grounded on std/compiler/ir.go's TypeInfo/FieldInfo (TypeKind enum, flat
// Fields slice, pre-computed Size), generalized from the teacher's Go type
// kinds (slice, map, interface, func) down to the C89/C99 subset spec.md
// names: void, char, int, struct, typedef.
package types

// BaseKind is the tag of a Type's variant.
type BaseKind int

const (
	Void BaseKind = iota
	Char
	Int
	Struct
	Typedef
)

// Field describes one flat struct member, per spec.md §3.
type Field struct {
	TypeName string
	VarName  string
	PtrDepth int
	IsFunc   bool
	ArrSize  int
	Offset   int
}

// Type describes a resolved, size-computed type. Once published, a type's
// layout is immutable; a forward struct declaration may be patched exactly
// once when its body is later defined, per spec.md §3's invariant.
type Type struct {
	Name       string
	Base       BaseKind
	Size       int
	Fields     []Field
	BaseStruct *Type // for typedef-to-struct aliasing

	patched bool
}

const wordSize = 4 // 4-byte natural alignment, per spec.md §3

// NewScalar returns the built-in void/char/int type.
func NewScalar(base BaseKind) *Type {
	t := &Type{Base: base}
	switch base {
	case Void:
		t.Name, t.Size = "void", 0
	case Char:
		t.Name, t.Size = "char", 1
	case Int:
		t.Name, t.Size = "int", wordSize
	}
	return t
}

// NewStruct computes a flat struct layout from its declared fields,
// assigning 4-byte-aligned offsets in declaration order.
func NewStruct(name string, fields []Field, fieldSizes []int) *Type {
	t := &Type{Name: name, Base: Struct}
	off := 0
	for i := range fields {
		fields[i].Offset = off
		sz := fieldSizes[i]
		if fields[i].PtrDepth > 0 {
			sz = wordSize
		}
		if fields[i].ArrSize > 0 {
			sz *= fields[i].ArrSize
		}
		off += align(sz, wordSize)
	}
	t.Fields = fields
	t.Size = align(off, wordSize)
	return t
}

func align(n, to int) int {
	if n == 0 {
		return 0
	}
	return (n + to - 1) / to * to
}

// Patch fills in a previously forward-declared struct's body exactly once,
// per spec.md §3's single-patch invariant.
func (t *Type) Patch(body *Type) bool {
	if t.patched {
		return false
	}
	t.Fields = body.Fields
	t.Size = body.Size
	t.patched = true
	return true
}

// Field looks up a struct member by name.
func (t *Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.VarName == name {
			return f, true
		}
	}
	return Field{}, false
}

// Variable is a declared C object: a global, a local, a parameter, or (for
// SSA renamings) a subscripted copy of a source variable, per spec.md §3.
type Variable struct {
	TypeName string
	VarName  string
	PtrDepth int
	IsFunc   bool
	ArrSize  int
	Offset   int
	InitVal  int
	IsGlobal bool
	IsConst  bool

	Liveness int // instruction index of last use, set by the register allocator
	InLoop   bool
	Consumed bool

	// SSA renaming fields, per spec.md §3. Base is nil for source
	// variables (Root then returns the variable itself); for SSA renamings
	// it points to the original.
	Subscript   int
	Base        *Variable
	Subscripts  []*Variable
	RenameStack []*Variable
}

// Root returns the original source variable a (possibly SSA-renamed)
// variable was derived from.
func (v *Variable) Root() *Variable {
	if v.Base != nil {
		return v.Base
	}
	return v
}

// Push records a fresh SSA renaming of v, per spec.md §4.D step 7.
func (v *Variable) Push(sub int) *Variable {
	renamed := &Variable{
		TypeName: v.TypeName, VarName: v.VarName, PtrDepth: v.PtrDepth,
		IsFunc: v.IsFunc, ArrSize: v.ArrSize, IsGlobal: v.IsGlobal, IsConst: v.IsConst,
		Subscript: sub, Base: v,
	}
	v.Subscripts = append(v.Subscripts, renamed)
	v.RenameStack = append(v.RenameStack, renamed)
	return renamed
}

// Pop removes the most recent SSA renaming from the stack, on leaving the
// defining block.
func (v *Variable) Pop() {
	if n := len(v.RenameStack); n > 0 {
		v.RenameStack = v.RenameStack[:n-1]
	}
}

// Top returns the current top-of-stack renaming, or v itself if none has
// been pushed (e.g. a parameter pre-renamed to subscript 0).
func (v *Variable) Top() *Variable {
	if n := len(v.RenameStack); n > 0 {
		return v.RenameStack[n-1]
	}
	return v
}

// Size returns the storage size of a declared variable (accounting for
// pointer depth and array size), given its resolved Type.
func (v *Variable) Size(t *Type) int {
	if v.PtrDepth > 0 {
		if v.ArrSize > 0 {
			return wordSize * v.ArrSize
		}
		return wordSize
	}
	if v.ArrSize > 0 {
		return t.Size * v.ArrSize
	}
	return t.Size
}

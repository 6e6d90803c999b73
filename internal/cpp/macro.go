package cpp

import "github.com/sysprog21/shecc-sub000/internal/token"

// Macro is a tagged variant over object-like and function-like macros, per
// spec.md §3's Macro entity.
type Macro struct {
	Name          string
	Params        []string
	IsVariadic    bool
	VariadicToken string // spelling used for __VA_ARGS__, usually "__VA_ARGS__"
	Body          []token.Token
	IsDisabled    bool

	// Builtin, when non-nil, computes the expansion of a built-in macro
	// (__FILE__ and __LINE__) instead of substituting Body. __SHECC__ and
	// the architecture predefine are plain Body macros.
	Builtin func(p *Preprocessor, invokeLoc token.Token) []token.Token
}

func (m *Macro) IsFunctionLike() bool { return m.Params != nil || m.IsVariadic }

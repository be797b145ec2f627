package rt

import "sync"

// Const describes a compile-time constant: the address of its boxed form in
// the host runtime plus enough of its payload for the lowerer to emit an
// unboxed immediate without touching the heap.
type Const struct {
	Addr SEXP
	Kind SexpType

	Ints  []int32
	Reals []float64
	Lgls  []int32
	Strs  []string
}

// Length returns the vector length of the constant.
func (c *Const) Length() int {
	switch c.Kind {
	case IntSxp:
		return len(c.Ints)
	case RealSxp:
		return len(c.Reals)
	case LglSxp:
		return len(c.Lgls)
	case StrSxp:
		return len(c.Strs)
	}

	return 0
}

// IsScalarString returns the string payload if the constant is a length-one
// character vector.
func (c *Const) IsScalarString() (string, bool) {
	if c.Kind == StrSxp && len(c.Strs) == 1 {
		return c.Strs[0], true
	}

	return "", false
}

// -----------------------------------------------------------------------------

// addrArena hands out distinct synthetic heap addresses for objects created
// on the compiler side of the runtime boundary (interned symbols, fabricated
// test constants).  Real embeddings overwrite these with live addresses
// before lowering; the core only requires the addresses to be distinct and
// nonzero.
var addrArena = struct {
	m    sync.Mutex
	next uintptr
}{next: 0x7f00_0000_0000}

func newAddr() SEXP {
	addrArena.m.Lock()
	defer addrArena.m.Unlock()

	addrArena.next += 0x40
	return SEXP(addrArena.next)
}

// IntConst fabricates an integer vector constant.
func IntConst(vals ...int32) *Const {
	return &Const{Addr: newAddr(), Kind: IntSxp, Ints: vals}
}

// RealConst fabricates a real vector constant.
func RealConst(vals ...float64) *Const {
	return &Const{Addr: newAddr(), Kind: RealSxp, Reals: vals}
}

// LglConst fabricates a logical vector constant.
func LglConst(vals ...int32) *Const {
	return &Const{Addr: newAddr(), Kind: LglSxp, Lgls: vals}
}

// StrConst fabricates a character vector constant.
func StrConst(vals ...string) *Const {
	return &Const{Addr: newAddr(), Kind: StrSxp, Strs: vals}
}

// OpaqueConst fabricates a constant of the given kind with no readable
// payload (closures, languages objects, environments).
func OpaqueConst(kind SexpType) *Const {
	return &Const{Addr: newAddr(), Kind: kind}
}

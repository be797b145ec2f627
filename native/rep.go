package native

import (
	"github.com/llir/llvm/ir/types"

	"pyrite/pir"
)

// Rep is the machine representation selected for an SSA value.  The order is
// significant: Merge is max, so mixing representations widens toward Boxed.
type Rep uint8

const (
	RepBottom Rep = iota
	RepInt32
	RepFloat64
	RepBoxed
)

func (r Rep) String() string {
	switch r {
	case RepBottom:
		return "bottom"
	case RepInt32:
		return "i32"
	case RepFloat64:
		return "f64"
	case RepBoxed:
		return "sexp"
	}

	return "?"
}

// Merge widens r to cover o; reports whether r changed.
func (r *Rep) Merge(o Rep) bool {
	if *r < o {
		*r = o
		return true
	}

	return false
}

// llvm returns the LLVM type of the representation.
func (r Rep) llvm(t *typeTable) types.Type {
	switch r {
	case RepInt32:
		return types.I32
	case RepFloat64:
		return types.Double
	case RepBoxed:
		return t.Sexp
	}

	return types.Void
}

// RepOf maps a PIR type to its representation.  Only when re-boxing is
// unambiguous do we unbox: a combined integer|real type stays boxed because
// we would not know which box to rebuild.
func RepOf(t pir.Type) Rep {
	if t.IsVoid() {
		return RepBottom
	}
	if t.IsA(pir.TestType()) {
		return RepInt32
	}
	if t.IsA(pir.Lgl().Scalar().NotObject()) {
		return RepInt32
	}
	if t.IsA(pir.Int().Scalar().NotObject()) {
		return RepInt32
	}
	if t.IsA(pir.Real().Scalar().NotObject()) {
		return RepFloat64
	}

	return RepBoxed
}

// RepOfValue maps a value to the representation of its type.
func RepOfValue(v pir.Value) Rep {
	return RepOf(v.Type())
}

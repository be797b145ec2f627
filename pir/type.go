package pir

import (
	"sort"
	"strings"
)

// RType is a bitset of base kinds a value may inhabit at runtime.
type RType uint32

const (
	RNil RType = 1 << iota
	RLogical
	RInt
	RReal
	RStr
	RRaw
	RVec
	RClosure
	REnv
	RProm
	RDots
	RExpandedDots
	RMissing
	RUnbound
	RCode

	// RTest is the native truth-value type produced by AsTest; it never
	// inhabits the boxed world on the fast path.
	RTest
)

var rtypeNames = map[RType]string{
	RNil: "nil", RLogical: "lgl", RInt: "int", RReal: "real",
	RStr: "str", RRaw: "raw", RVec: "vec", RClosure: "cls",
	REnv: "env", RProm: "prom", RDots: "dots", RExpandedDots: "dots*",
	RMissing: "miss", RUnbound: "unbound", RCode: "code", RTest: "test",
}

// TypeFlags are the maybe-flags of a type.  A set bit widens the type: a
// subtype has a subset of its supertype's flags.
type TypeFlags uint8

const (
	FlagMaybeObject TypeFlags = 1 << iota
	FlagMaybeAttrs
	FlagMaybeNA
	FlagMaybeNotScalar
	FlagPromiseWrapped
	FlagLazy
)

const defaultFlags = FlagMaybeObject | FlagMaybeAttrs | FlagMaybeNA | FlagMaybeNotScalar

// Type is a point in the PIR type lattice: a kind set plus maybe-flags.
type Type struct {
	Kinds RType
	Flags TypeFlags
}

// NewType creates a type over the given kinds with the default flag set:
// maybe object, attributes, NA and non-scalar, but neither promise-wrapped
// nor lazy.
func NewType(kinds RType) Type {
	return Type{Kinds: kinds, Flags: defaultFlags}
}

// TestType returns the native truth-value type.
func TestType() Type {
	return Type{Kinds: RTest}
}

// Common lattice points.
func Int() Type      { return NewType(RInt) }
func Real() Type     { return NewType(RReal) }
func Lgl() Type      { return NewType(RLogical) }
func Str() Type      { return NewType(RStr) }
func AnyVec() Type   { return NewType(RVec) }
func ClosT() Type    { return NewType(RClosure) }
func EnvT() Type     { return NewType(REnv).NotObject() }
func PromT() Type    { return NewType(RProm) }
func DotsT() Type    { return NewType(RDots) }
func IntReal() Type  { return NewType(RInt | RReal) }
func NumOrLgl() Type { return NewType(RInt | RReal | RLogical) }

// Vecs is the set of kinds that are vectors.
func Vecs() Type {
	return NewType(RLogical | RInt | RReal | RStr | RRaw | RVec)
}

// SimpleScalarInt is a scalar integer with no attributes and no object bit.
func SimpleScalarInt() Type  { return Int().Scalar().NotObject().NoAttribs() }
func SimpleScalarLgl() Type  { return Lgl().Scalar().NotObject().NoAttribs() }
func SimpleScalarReal() Type { return Real().Scalar().NotObject().NoAttribs() }

// Void is the type of instructions that produce no value.
func Void() Type { return Type{} }

// -----------------------------------------------------------------------------

// IsA reports the subtype relation: t is a subtype of o when its kinds and
// flags are subsets of o's.
func (t Type) IsA(o Type) bool {
	return t.Kinds&^o.Kinds == 0 && t.Flags&^o.Flags == 0
}

// Maybe reports whether t may inhabit any of the given kinds.
func (t Type) Maybe(kinds RType) bool {
	return t.Kinds&kinds != 0
}

func (t Type) IsVoid() bool { return t.Kinds == 0 }

func (t Type) MaybeObj() bool      { return t.Flags&FlagMaybeObject != 0 }
func (t Type) MaybeHasAttrs() bool { return t.Flags&FlagMaybeAttrs != 0 }
func (t Type) MaybeNA() bool       { return t.Flags&FlagMaybeNA != 0 }
func (t Type) IsScalar() bool      { return t.Flags&FlagMaybeNotScalar == 0 }
func (t Type) MaybeLazy() bool     { return t.Flags&FlagLazy != 0 }

func (t Type) MaybePromiseWrapped() bool { return t.Flags&FlagPromiseWrapped != 0 }

// Narrowing operations; each returns a strictly-smaller-or-equal type.
func (t Type) Scalar() Type     { t.Flags &^= FlagMaybeNotScalar; return t }
func (t Type) NotObject() Type  { t.Flags &^= FlagMaybeObject; return t }
func (t Type) NotNA() Type      { t.Flags &^= FlagMaybeNA; return t }
func (t Type) NoAttribs() Type  { t.Flags &^= FlagMaybeAttrs; return t }
func (t Type) NotLazy() Type    { t.Flags &^= FlagLazy; return t }
func (t Type) NotMissing() Type { t.Kinds &^= RMissing; return t }

func (t Type) NotPromiseWrapped() Type { t.Flags &^= FlagPromiseWrapped; return t }

// Widening operations.
func (t Type) OrObject() Type         { t.Flags |= FlagMaybeObject; return t }
func (t Type) OrAttribs() Type        { t.Flags |= FlagMaybeAttrs; return t }
func (t Type) OrNA() Type             { t.Flags |= FlagMaybeNA; return t }
func (t Type) OrNotScalar() Type      { t.Flags |= FlagMaybeNotScalar; return t }
func (t Type) OrPromiseWrapped() Type { t.Flags |= FlagPromiseWrapped; return t }
func (t Type) OrLazy() Type           { t.Flags |= FlagLazy; return t }
func (t Type) Or(kinds RType) Type    { t.Kinds |= kinds; return t }

// Union is the lattice join.
func (t Type) Union(o Type) Type {
	return Type{Kinds: t.Kinds | o.Kinds, Flags: t.Flags | o.Flags}
}

// Intersect is the lattice meet (greatest lower bound).
func (t Type) Intersect(o Type) Type {
	return Type{Kinds: t.Kinds & o.Kinds, Flags: t.Flags & o.Flags}
}

// MergeWithConversion joins two types under implicit arithmetic conversion:
// a combination of integer and real collapses to real, mirroring what the
// runtime would produce when boxing the result of a mixed operation.
func (t Type) MergeWithConversion(o Type) Type {
	res := t.Union(o)
	if res.Kinds&(RInt|RReal) == RInt|RReal {
		res.Kinds &^= RInt
	}

	return res
}

func (t Type) Equal(o Type) bool { return t == o }

func (t Type) String() string {
	if t.IsVoid() {
		return "void"
	}

	var kinds []string
	for k, name := range rtypeNames {
		if t.Kinds&k != 0 {
			kinds = append(kinds, name)
		}
	}
	sort.Strings(kinds)

	s := strings.Join(kinds, "|")
	if t.IsScalar() {
		s += "$"
	}
	if !t.MaybeNA() {
		s += "-"
	}
	if t.MaybePromiseWrapped() {
		s += "^"
	}

	return s
}

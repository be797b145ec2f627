package pir

import "pyrite/rt"

// Value is anything an instruction argument can refer to: another
// instruction or one of the distinguished values below.
type Value interface {
	Type() Type
}

// FollowCasts resolves through CastType chains to the underlying value.
func FollowCasts(v Value) Value {
	for {
		i, ok := v.(*Instr)
		if !ok || i.Tag != CastType {
			return v
		}
		v = i.Args[0]
	}
}

// AsInstr returns the value as an instruction, or nil.
func AsInstr(v Value) *Instr {
	i, _ := v.(*Instr)
	return i
}

// IsConst reports whether the value is a constant load, looking through
// casts of constant loads.
func IsConst(v Value) *rt.Const {
	if i := AsInstr(FollowCasts(v)); i != nil && i.Tag == LdConst {
		return i.Const
	}

	return nil
}

// -----------------------------------------------------------------------------

// singletonKind enumerates the distinguished non-instruction values.
type singletonKind uint8

const (
	singTrue singletonKind = iota
	singFalse
	singNaLogical
	singNil
	singMissingArg
	singUnboundValue
)

// Singleton is one of the eternal distinguished values.
type Singleton struct {
	kind singletonKind
	typ  Type
}

func (s *Singleton) Type() Type { return s.typ }

var (
	True         = &Singleton{singTrue, Lgl().Scalar().NotObject().NotNA().NoAttribs()}
	False        = &Singleton{singFalse, Lgl().Scalar().NotObject().NotNA().NoAttribs()}
	NaLogical    = &Singleton{singNaLogical, Lgl().Scalar().NotObject().NoAttribs()}
	Nil          = &Singleton{singNil, NewType(RNil).NotObject()}
	MissingArg   = &Singleton{singMissingArg, NewType(RMissing)}
	UnboundValue = &Singleton{singUnboundValue, NewType(RUnbound)}
)

// -----------------------------------------------------------------------------

// envKind distinguishes the static environment markers.
type envKind uint8

const (
	envStatic envKind = iota
	envElided
	envNotClosed
)

// Env is a statically known environment: either a concrete runtime
// environment (global, base, a namespace) or one of the markers used when
// the environment has been elided by the optimizer.
type Env struct {
	kind envKind

	// Rho is the runtime address for static environments.
	Rho rt.SEXP

	Name string
}

func (e *Env) Type() Type { return EnvT() }

// ElidedEnv marks an environment the optimizer proved unnecessary; it loads
// as nil.
var ElidedEnv = &Env{kind: envElided, Name: "elided"}

// NotClosedEnv marks the not-yet-created environment of the function being
// compiled; it loads as the closure's enclosing environment.
var NotClosedEnv = &Env{kind: envNotClosed, Name: "notClosed"}

// StaticEnv wraps a runtime environment address as a PIR value.
func StaticEnv(rho rt.SEXP, name string) *Env {
	return &Env{kind: envStatic, Rho: rho, Name: name}
}

// IsStaticEnv reports whether the value is a concrete static environment.
func IsStaticEnv(v Value) *Env {
	if e, ok := v.(*Env); ok && e.kind == envStatic {
		return e
	}

	return nil
}

package native

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/report"
)

// varKind is the storage kind of a lowered SSA value.
type varKind uint8

const (
	// mutableBoxed lives in a stack frame slot and may be rewritten.
	mutableBoxed varKind = iota

	// immutableBoxed lives in a stack frame slot, written exactly once.
	immutableBoxed

	// mutableScalar lives in an alloca and may be rewritten.
	mutableScalar

	// immutableScalar is value-only: no storage, the producing instruction
	// assigns it exactly once.
	immutableScalar
)

// variable binds an SSA definition to its storage.
type variable struct {
	kind varKind

	// elem is the stored type.
	elem types.Type

	// slot is a pointer to the storage for the first three kinds, or the
	// value itself for immutableScalar once initialized.
	slot value.Value

	// stackSlot is the frame slot index of boxed variables, -1 otherwise.
	stackSlot int

	initialized bool
}

// boxedVariable binds i to frame slot pos, addressed through the base
// pointer captured at entry.
func (l *LowerFunction) boxedVariable(i *pir.Instr, pos int, mutable bool) *variable {
	if RepOfValue(i) != RepBoxed {
		report.ReportICE("native: boxed variable for unboxed %s", i)
	}

	ptr := l.entry.NewGetElementPtr(l.t.StackCell, l.basepointer, ci64(int64(pos)), ci32(1))
	ptr.SetName(i.String())

	kind := immutableBoxed
	if mutable {
		kind = mutableBoxed
	}

	return &variable{kind: kind, elem: l.t.Sexp, slot: ptr, stackSlot: pos}
}

// scalarVariable binds i to a fresh alloca (mutable) or to nothing at all
// (immutable, value-only).
func (l *LowerFunction) scalarVariable(i *pir.Instr, mutable bool) *variable {
	r := RepOfValue(i)
	if r == RepBoxed || r == RepBottom {
		report.ReportICE("native: scalar variable for %s rep", r)
	}

	elem := r.llvm(l.t)
	if !mutable {
		return &variable{kind: immutableScalar, elem: elem, stackSlot: -1}
	}

	al := l.entry.NewAlloca(elem)
	al.SetName(i.String())
	return &variable{kind: mutableScalar, elem: elem, slot: al, stackSlot: -1}
}

// scalarSnapshot builds an anonymous mutable scalar of the given type,
// backing a context snapshot.
func (l *LowerFunction) scalarSnapshot(elem types.Type) *variable {
	al := l.entry.NewAlloca(elem)
	return &variable{kind: mutableScalar, elem: elem, slot: al, stackSlot: -1}
}

// boxedSnapshot builds an anonymous mutable boxed variable over the given
// frame slot, backing a context snapshot.
func (l *LowerFunction) boxedSnapshot(pos int) *variable {
	ptr := l.entry.NewGetElementPtr(l.t.StackCell, l.basepointer, ci64(int64(pos)), ci32(1))
	return &variable{kind: mutableBoxed, elem: l.t.Sexp, slot: ptr, stackSlot: pos}
}

// get reads the variable's current value.
func (v *variable) get(l *LowerFunction) value.Value {
	if !v.initialized {
		report.ReportICE("native: reading uninitialized variable")
	}

	switch v.kind {
	case mutableBoxed, immutableBoxed, mutableScalar:
		return l.bb.NewLoad(v.elem, v.slot)
	case immutableScalar:
		return v.slot
	}

	return nil
}

// set initializes the variable; it must not have been initialized yet.
func (v *variable) set(l *LowerFunction, val value.Value, volatile bool) {
	if v.initialized {
		report.ReportICE("native: variable initialized twice")
	}
	v.initialized = true

	switch v.kind {
	case mutableBoxed, immutableBoxed, mutableScalar:
		st := l.bb.NewStore(val, v.slot)
		st.Volatile = volatile
	case immutableScalar:
		v.slot = val
	}
}

// update rewrites a mutable variable.  Phis are updated from predecessors
// before their own block runs, so update also marks initialization.
func (v *variable) update(l *LowerFunction, val value.Value) {
	v.initialized = true

	switch v.kind {
	case mutableBoxed, mutableScalar:
		l.bb.NewStore(val, v.slot)
	default:
		report.ReportICE("native: update of immutable variable")
	}
}

// deadMove reports whether copying v into other is a no-op because the two
// share storage.
func (v *variable) deadMove(other *variable) bool {
	return (v.slot != nil && v.slot == other.slot) ||
		(v.stackSlot != -1 && v.stackSlot == other.stackSlot)
}

// -----------------------------------------------------------------------------

// phiBuilder collects incoming values while the lowerer emits the arms of a
// local control-flow diamond, then materializes a phi.  With exactly one
// input it collapses to that value.
type phiBuilder struct {
	l    *LowerFunction
	ins  []*ir.Incoming
	done bool
}

func (l *LowerFunction) phiBuilder() *phiBuilder {
	return &phiBuilder{l: l}
}

// addInput registers v flowing in from the current block.
func (p *phiBuilder) addInput(v value.Value) {
	p.addInputFrom(v, p.l.bb)
}

// addInputFrom registers v flowing in from the given block.
func (p *phiBuilder) addInputFrom(v value.Value, blk *ir.Block) {
	if p.done {
		report.ReportICE("native: phi builder reused after materialization")
	}

	p.ins = append(p.ins, ir.NewIncoming(v, blk))
}

// value materializes the phi in the current block.
func (p *phiBuilder) value() value.Value {
	if p.done || len(p.ins) == 0 {
		report.ReportICE("native: empty or finished phi builder")
	}
	p.done = true

	if len(p.ins) == 1 {
		return p.ins[0].X
	}

	return p.l.bb.NewPhi(p.ins...)
}

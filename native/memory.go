package native

import (
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/report"
	"pyrite/rt"
)

// vecHeaderSize is the byte size of the vector header: the payload of a
// scalar lives directly behind it, which is what container() walks back
// over.
const vecHeaderSize = 48

// nodestackPtr loads the current top-of-node-stack pointer.
func (l *LowerFunction) nodestackPtr() value.Value {
	return l.bb.NewLoad(l.t.StackCellPtr, l.nodestackPtrAddr)
}

// stackCellPtr addresses the boxed-value field of the cell at the given
// offset from base.
func (l *LowerFunction) stackCellPtr(base value.Value, offset int64) value.Value {
	return l.bb.NewGetElementPtr(l.t.StackCell, base, ci64(offset), ci32(1))
}

// stackStore writes the given boxed values into the cells directly below the
// current stack top, zeroing their type tags first.
func (l *LowerFunction) stackStore(args []value.Value) {
	if len(args) == 0 {
		return
	}

	sp := l.nodestackPtr()
	base := l.bb.NewGetElementPtr(l.t.StackCell, sp, ci64(int64(-len(args))))
	l.memsetZero(base, ci64(int64(len(args)*stackCellSize)))

	pos := int64(-len(args))
	for _, arg := range args {
		l.bb.NewStore(arg, l.stackCellPtr(sp, pos))
		pos++
	}
}

// setLocal writes a boxed value into frame slot i.
func (l *LowerFunction) setLocal(i int, v value.Value) {
	if i >= l.numLocals {
		report.ReportICE("native: local %d out of range", i)
	}

	l.bb.NewStore(v, l.stackCellPtr(l.basepointer, int64(i)))
}

// getLocal reads frame slot i.
func (l *LowerFunction) getLocal(i int) value.Value {
	return l.bb.NewLoad(l.t.Sexp, l.stackCellPtr(l.basepointer, int64(i)))
}

// incStack grows the node stack by i cells, optionally zeroing them.
func (l *LowerFunction) incStack(i int, zero bool) {
	if i == 0 {
		return
	}

	cur := l.nodestackPtr()
	if zero {
		l.memsetZero(cur, ci64(int64(i*stackCellSize)))
	}

	up := l.bb.NewGetElementPtr(l.t.StackCell, cur, ci64(int64(i)))
	l.bb.NewStore(up, l.nodestackPtrAddr)
}

// decStack shrinks the node stack by i cells.
func (l *LowerFunction) decStack(i int) {
	if i == 0 {
		return
	}

	cur := l.nodestackPtr()
	down := l.bb.NewGetElementPtr(l.t.StackCell, cur, ci64(int64(-i)))
	l.bb.NewStore(down, l.nodestackPtrAddr)
}

// protectTemp parks a freshly allocated temporary in a scratch frame slot so
// it survives the next allocation.
func (l *LowerFunction) protectTemp(v value.Value) {
	if l.numTemps >= maxTemps {
		report.ReportICE("native: out of temp protect slots")
	}

	l.numTemps++
	l.setLocal(l.numLocals-l.numTemps, v)
}

// argument loads the i-th boxed argument from the incoming frame.
func (l *LowerFunction) argument(i int) value.Value {
	return l.bb.NewLoad(l.t.Sexp, l.stackCellPtr(l.paramArgs(), int64(i)))
}

// -----------------------------------------------------------------------------
// Boxed object headers.

// sxpinfoPtr addresses the header word of a boxed object.
func (l *LowerFunction) sxpinfoPtr(v value.Value) value.Value {
	gep := l.bb.NewGetElementPtr(l.t.SexpRec, v, ci32(0), ci32(0))
	gep.SetName("sxpinfo")
	return gep
}

func (l *LowerFunction) sxpinfo(v value.Value) value.Value {
	return l.bb.NewLoad(types.I64, l.sxpinfoPtr(v))
}

// sexptype extracts the type code from the header word.
func (l *LowerFunction) sexptype(v value.Value) value.Value {
	masked := l.bb.NewAnd(l.sxpinfo(v), ci64(rt.MaxNumSexpType-1))
	return l.bb.NewTrunc(masked, types.I32)
}

// setSexptype rewrites the type code in place.
func (l *LowerFunction) setSexptype(v value.Value, t rt.SexpType) {
	ptr := l.sxpinfoPtr(v)
	info := l.bb.NewLoad(types.I64, ptr)
	cleared := l.bb.NewAnd(info, ci64(^int64(rt.MaxNumSexpType-1)))
	l.bb.NewStore(l.bb.NewOr(cleared, ci64(int64(t))), ptr)
}

// headerBit tests a single sxpinfo flag bit.
func (l *LowerFunction) headerBit(v value.Value, bitPos uint) value.Value {
	masked := l.bb.NewAnd(l.sxpinfo(v), ci64(int64(1)<<bitPos))
	return l.bb.NewICmp(enum.IPredNE, masked, ci64(0))
}

func (l *LowerFunction) isObj(v value.Value) value.Value {
	return l.headerBit(v, rt.ObjectBitPos)
}

func (l *LowerFunction) isAltrep(v value.Value) value.Value {
	return l.headerBit(v, rt.AltrepBitPos)
}

// attr loads the attribute pointer.
func (l *LowerFunction) attr(v value.Value) value.Value {
	return l.bb.NewLoad(l.t.Sexp, l.bb.NewGetElementPtr(l.t.SexpRec, v, ci32(0), ci32(1)))
}

// car, cdr and tag of a cons cell.
func (l *LowerFunction) car(v value.Value) value.Value {
	return l.bb.NewLoad(l.t.Sexp, l.bb.NewGetElementPtr(l.t.SexpRec, v, ci32(0), ci32(4), ci32(0)))
}

func (l *LowerFunction) cdr(v value.Value) value.Value {
	return l.bb.NewLoad(l.t.Sexp, l.bb.NewGetElementPtr(l.t.SexpRec, v, ci32(0), ci32(4), ci32(1)))
}

func (l *LowerFunction) tag(v value.Value) value.Value {
	return l.bb.NewLoad(l.t.Sexp, l.bb.NewGetElementPtr(l.t.SexpRec, v, ci32(0), ci32(4), ci32(2)))
}

// setCar/setCdr/setTag store through a cons field, guarded by the write
// barrier unless the caller knows the store cannot create an
// intergenerational edge.
func (l *LowerFunction) setCar(x, y value.Value, barrier bool) {
	fast := func() {
		l.bb.NewStore(y, l.bb.NewGetElementPtr(l.t.SexpRec, x, ci32(0), ci32(4), ci32(0)))
	}
	if !barrier {
		fast()
		return
	}

	l.writeBarrier(x, y, fast, func() { l.callBuiltin("set_car", x, y) })
}

func (l *LowerFunction) setCdr(x, y value.Value, barrier bool) {
	fast := func() {
		l.bb.NewStore(y, l.bb.NewGetElementPtr(l.t.SexpRec, x, ci32(0), ci32(4), ci32(1)))
	}
	if !barrier {
		fast()
		return
	}

	l.writeBarrier(x, y, fast, func() { l.callBuiltin("set_cdr", x, y) })
}

func (l *LowerFunction) setTag(x, y value.Value, barrier bool) {
	fast := func() {
		l.bb.NewStore(y, l.bb.NewGetElementPtr(l.t.SexpRec, x, ci32(0), ci32(4), ci32(2)))
	}
	if !barrier {
		fast()
		return
	}

	l.writeBarrier(x, y, fast, func() { l.callBuiltin("set_tag", x, y) })
}

// -----------------------------------------------------------------------------
// Vectors.

// dataPtr returns a pointer to the first payload byte of a vector, past its
// header.  Access through this pointer is invalid for altrep vectors; the
// fast paths guard for that before calling.
func (l *LowerFunction) dataPtr(v value.Value, enableAsserts bool) value.Value {
	if enableAsserts && l.opts.SlowAsserts {
		notAltrep := l.bb.NewICmp(enum.IPredEQ,
			l.bb.NewAnd(l.sxpinfo(v), ci64(int64(1)<<rt.AltrepBitPos)), ci64(0))
		l.insnAssert(notAltrep, "vector payload access on altrep")
	}

	vec := l.bb.NewBitCast(v, l.t.VecRecPtr)
	return l.bb.NewGetElementPtr(l.t.VecRec, vec, ci64(1))
}

// vectorLength loads the element count of a vector.
func (l *LowerFunction) vectorLength(v value.Value) value.Value {
	vec := l.bb.NewBitCast(v, l.t.VecRecPtr)
	return l.bb.NewLoad(types.I64, l.bb.NewGetElementPtr(l.t.VecRec, vec, ci32(0), ci32(4), ci32(0)))
}

// isScalarVec tests for a single-element vector.
func (l *LowerFunction) isScalarVec(v value.Value) value.Value {
	return l.bb.NewICmp(enum.IPredEQ, l.vectorLength(v), ci64(1))
}

// isSimpleScalar tests for a single-element, attribute-free vector of the
// expected type in one header read.
func (l *LowerFunction) isSimpleScalar(v value.Value, t rt.SexpType) value.Value {
	info := l.sxpinfo(v)

	typ := l.bb.NewAnd(info, ci64(rt.MaxNumSexpType-1))
	okType := l.bb.NewICmp(enum.IPredEQ, ci32(int64(t)), l.bb.NewTrunc(typ, types.I32))

	scalarBit := l.bb.NewAnd(info, ci64(int64(1)<<rt.ScalarBitPos))
	isScalar := l.bb.NewICmp(enum.IPredNE, scalarBit, ci64(0))

	noAttrib := l.bb.NewICmp(enum.IPredEQ, l.attr(v), l.constantSexp(l.rtc.Nil))

	return l.bb.NewAnd(okType, l.bb.NewAnd(isScalar, noAttrib))
}

// fastVeceltOk tests that element access can bypass dispatch: no attributes,
// or only a dim attribute.
func (l *LowerFunction) fastVeceltOk(v value.Value) value.Value {
	attrs := l.attr(v)
	isNil := l.bb.NewICmp(enum.IPredEQ, attrs, l.constantSexp(l.rtc.Nil))

	dimOnly1 := l.bb.NewICmp(enum.IPredEQ, l.tag(attrs), l.constantSymbol(rt.DimSymbol))
	dimOnly2 := l.bb.NewICmp(enum.IPredEQ, l.cdr(attrs), l.constantSexp(l.rtc.Nil))

	return l.bb.NewOr(isNil, l.bb.NewAnd(dimOnly1, dimOnly2))
}

// elementType maps a vector's PIR type to its payload element pointer type.
func (l *LowerFunction) elementType(t pir.Type) types.Type {
	switch {
	case t.IsA(pir.Int().NotObject()) || t.IsA(pir.Lgl().NotObject()):
		return types.I32
	case t.IsA(pir.Real().NotObject()):
		return types.Double
	default:
		return l.t.Sexp
	}
}

// vectorPositionPtr addresses element `position` (an i64) of the vector.
func (l *LowerFunction) vectorPositionPtr(vector, position value.Value, t pir.Type) value.Value {
	elem := l.elementType(t)
	data := l.bb.NewBitCast(l.dataPtr(vector, true), types.NewPointer(elem))

	pos := position
	if pos.Type() != types.I64 {
		pos = l.bb.NewZExt(pos, types.I64)
	}

	gep := l.bb.NewGetElementPtr(elem, data, pos)
	gep.InBounds = true
	return gep
}

// accessVector loads one element.
func (l *LowerFunction) accessVector(vector, position value.Value, t pir.Type) value.Value {
	return l.bb.NewLoad(l.elementType(t), l.vectorPositionPtr(vector, position, t))
}

// assignVector stores one element.
func (l *LowerFunction) assignVector(vector, position, val value.Value, t pir.Type) {
	l.bb.NewStore(val, l.vectorPositionPtr(vector, position, t))
}

// container recovers the boxed vector from a pointer to its payload.
func (l *LowerFunction) container(v value.Value) value.Value {
	raw := l.bb.NewPtrToInt(v, types.I64)
	head := l.bb.NewSub(raw, ci64(vecHeaderSize))
	return l.bb.NewIntToPtr(head, l.t.Sexp)
}

// isExternalsxp tests for an external object with the given magic number.
func (l *LowerFunction) isExternalsxp(v value.Value, magic uint32) value.Value {
	isExternal := l.bb.NewICmp(enum.IPredEQ, ci32(int64(rt.ExternalSxp)), l.sexptype(v))

	payload := l.bb.NewBitCast(l.dataPtr(v, false), l.t.I32Ptr)
	magicVal := l.bb.NewLoad(types.I32, l.bb.NewGetElementPtr(types.I32, payload, ci64(2)))
	okMagic := l.bb.NewICmp(enum.IPredEQ, magicVal, ci32(int64(magic)))

	return l.bb.NewAnd(isExternal, okMagic)
}

// -----------------------------------------------------------------------------
// Stub environments.

// envStubPayload returns (missingBits, payload) pointers of a stub
// environment of the given local count.
func (l *LowerFunction) envStubPayload(x value.Value, size int) (value.Value, value.Value) {
	le := l.bb.NewBitCast(l.dataPtr(x, false), l.t.StubEnvRecPtr)
	missingBits := l.bb.NewBitCast(l.bb.NewGetElementPtr(l.t.StubEnvRec, le, ci64(1)), types.I8Ptr)
	payload := l.bb.NewBitCast(
		l.bb.NewGetElementPtr(types.I8, missingBits, ci64(int64(size))), l.t.SexpPtr)
	return missingBits, payload
}

// envStubGet reads slot i of a stub environment.  Negative indices address
// the bookkeeping slots (-1 parent, -2 materialized copy).
func (l *LowerFunction) envStubGet(x value.Value, i int, size int) value.Value {
	if l.opts.SlowAsserts {
		l.insnAssert(l.isExternalsxp(x, rt.StubEnvMagic), "stub slot read on a non-stub")
	}

	_, payload := l.envStubPayload(x, size)
	pos := l.bb.NewGetElementPtr(l.t.Sexp, payload, ci64(int64(i+rt.StubEnvArgOffset)))
	return l.bb.NewLoad(l.t.Sexp, pos)
}

// envStubSet writes slot i of a stub environment with a write barrier, and
// optionally clears the missing bit.
func (l *LowerFunction) envStubSet(x value.Value, i int, y value.Value, size int, setNotMissing bool) {
	l.writeBarrier(x, y,
		func() {
			_, payload := l.envStubPayload(x, size)
			pos := l.bb.NewGetElementPtr(l.t.Sexp, payload, ci64(int64(i+rt.StubEnvArgOffset)))
			l.bb.NewStore(y, pos)
		},
		func() {
			l.callBuiltin("external_set_entry", x, ci32(int64(i+rt.StubEnvArgOffset)), y)
		})

	if setNotMissing {
		l.envStubSetNotMissing(x, i, size)
	}
}

// envStubSetNotMissing clears the missing bit of slot i.
func (l *LowerFunction) envStubSetNotMissing(x value.Value, i int, size int) {
	missingBits, _ := l.envStubPayload(x, size)
	pos := l.bb.NewGetElementPtr(types.I8, missingBits, ci64(int64(i)))
	l.bb.NewStore(ci8(1), pos)
}

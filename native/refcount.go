package native

import (
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/analysis"
	"pyrite/pir"
	"pyrite/rt"
)

const (
	namedMask    = int64(1)<<rt.NamedBits - 1
	namedMaskHi  = namedMask << rt.NamedShift
	namedLSB     = int64(1) << rt.NamedShift
	namedNegMask = ^namedMaskHi
)

// named extracts the saturating name count from the header word.
func (l *LowerFunction) named(v value.Value) value.Value {
	shifted := l.bb.NewLShr(l.sxpinfo(v), ci64(rt.NamedShift))
	return l.bb.NewAnd(shifted, ci64(namedMask))
}

// shared tests NAMED > 1.
func (l *LowerFunction) shared(v value.Value) value.Value {
	return l.bb.NewICmp(enum.IPredUGT, l.named(v), ci64(1))
}

// assertNamed emits a slow assertion that the value has a nonzero name
// count.
func (l *LowerFunction) assertNamed(v value.Value) {
	if !l.opts.SlowAsserts {
		return
	}

	named := l.bb.NewAnd(l.sxpinfo(v), ci64(namedMaskHi))
	l.insnAssert(l.bb.NewICmp(enum.IPredNE, named, ci64(0)), "value is not named")
}

// ensureNamed raises NAMED from 0 to 1.
func (l *LowerFunction) ensureNamed(v value.Value) {
	ptr := l.sxpinfoPtr(v)
	info := l.bb.NewLoad(types.I64, ptr)

	named := l.bb.NewAnd(info, ci64(namedMaskHi))
	isNotNamed := l.bb.NewICmp(enum.IPredEQ, named, ci64(0))

	notNamed := l.newBlock("notNamed")
	ok := l.newBlock("")

	l.condBr(isNotNamed, notNamed, ok, hintNone)

	l.setBlock(notNamed)
	l.bb.NewStore(l.bb.NewOr(info, ci64(namedLSB)), ptr)
	l.br(ok)

	l.setBlock(ok)
}

// ensureShared raises NAMED to at least 2.
func (l *LowerFunction) ensureShared(v value.Value) {
	ptr := l.sxpinfoPtr(v)
	info := l.bb.NewLoad(types.I64, ptr)

	named := l.bb.NewAnd(l.bb.NewLShr(info, ci64(rt.NamedShift)), ci64(namedMask))
	isShared := l.bb.NewICmp(enum.IPredUGE, named, ci64(2))

	raise := l.newBlock("")
	done := l.newBlock("")

	l.condBr(isShared, done, raise, hintNone)

	l.setBlock(raise)
	cleared := l.bb.NewAnd(info, ci64(namedNegMask))
	l.bb.NewStore(l.bb.NewOr(cleared, ci64(2<<rt.NamedShift)), ptr)
	l.br(done)

	l.setBlock(done)
}

// incrementNamed bumps NAMED by one, saturating at max.
func (l *LowerFunction) incrementNamed(v value.Value, max int64) {
	ptr := l.sxpinfoPtr(v)
	info := l.bb.NewLoad(types.I64, ptr)

	named := l.bb.NewAnd(l.bb.NewLShr(info, ci64(rt.NamedShift)), ci64(namedMask))
	atMax := l.bb.NewICmp(enum.IPredEQ, named, ci64(max))

	bump := l.newBlock("")
	done := l.newBlock("")

	l.condBr(atMax, done, bump, hintNone)

	l.setBlock(bump)
	next := l.bb.NewAdd(named, ci64(1))
	next.OverflowFlags = []enum.OverflowFlag{enum.OverflowFlagNSW, enum.OverflowFlagNUW}
	shifted := l.bb.NewShl(next, ci64(rt.NamedShift))
	cleared := l.bb.NewAnd(info, ci64(namedNegMask))
	l.bb.NewStore(l.bb.NewOr(cleared, shifted), ptr)
	l.br(done)

	l.setBlock(done)
}

// ensureNamedIfNeeded applies the creation-site refcount annotation of i, if
// any.  val, when non-nil, is the already loaded value of i.
func (l *LowerFunction) ensureNamedIfNeeded(i *pir.Instr, val value.Value) {
	if RepOfValue(i) != RepBoxed {
		return
	}

	v, ok := l.variables[i]
	if !ok || !v.initialized {
		return
	}

	kind, ok := l.refcount.AtCreation[i]
	if !ok {
		return
	}

	if val == nil {
		val = l.load(i)
	}

	switch kind {
	case analysis.SetShared:
		l.ensureShared(val)
	case analysis.EnsureNamed:
		l.ensureNamed(val)
	}
}

// writeBarrier gates a pointer store on the generational invariant: the fast
// path may store directly, the slow path must go through the runtime so the
// collector learns about the old-to-young edge.
func (l *LowerFunction) writeBarrier(x, y value.Value, fast, slow func()) {
	markBit := ci64(int64(1) << rt.MarkBitPos)
	genBit := ci64(int64(1) << rt.GenBitPos)

	done := l.newBlock("")
	noBarrier := l.newBlock("")
	maybeNeedsBarrier := l.newBlock("")
	maybeNeedsBarrier2 := l.newBlock("")
	needsBarrier := l.newBlock("")

	infoX := l.sxpinfo(x)
	markX := l.bb.NewICmp(enum.IPredNE, l.bb.NewAnd(infoX, markBit), ci64(0))
	l.condBr(markX, maybeNeedsBarrier, noBarrier, hintNone)

	l.setBlock(maybeNeedsBarrier)
	infoY := l.sxpinfo(y)
	markY := l.bb.NewICmp(enum.IPredNE, l.bb.NewAnd(infoY, markBit), ci64(0))
	l.condBr(markY, maybeNeedsBarrier2, needsBarrier, hintNone)

	l.setBlock(maybeNeedsBarrier2)
	genX := l.bb.NewAnd(infoX, genBit)
	genY := l.bb.NewAnd(infoY, genBit)
	olderGen := l.bb.NewICmp(enum.IPredUGT, genX, genY)
	l.condBr(olderGen, needsBarrier, noBarrier, hintMostlyFalse)

	l.setBlock(noBarrier)
	fast()
	l.br(done)

	l.setBlock(needsBarrier)
	slow()
	l.br(done)

	l.setBlock(done)
}

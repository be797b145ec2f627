package native

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/rt"
)

// binopKind encodes an operation for the generic runtime arithmetic entry.
// The codes are part of the runtime ABI.
type binopKind int64

const (
	binopAdd binopKind = iota
	binopSub
	binopMul
	binopDiv
	binopIDiv
	binopMod
	binopPow
	relopEq
	relopNeq
	relopLt
	relopLte
	relopGt
	relopGte
	relopLAnd
	relopLOr
	binopColon
)

// unopKind encodes an operation for the generic runtime unary entry.
type unopKind int64

const (
	unopMinus unopKind = iota
	unopPlus
)

// binopSlow emits the generic runtime call for a binary operation.
func (l *LowerFunction) binopSlow(i *pir.Instr, kind binopKind) {
	a := l.loadSxp(i.Args[0])
	b := l.loadSxp(i.Args[1])

	var res value.Value
	if i.HasEnv() {
		res = l.callBuiltin("binop_env", a, b, l.loadSxp(i.Env()),
			ci32(int64(i.SrcIdx)), ci32(int64(kind)))
	} else {
		res = l.callBuiltin("binop", a, b, ci32(int64(kind)))
	}

	l.setVal(i, res)
}

// lowerBinop emits an arithmetic binary operation: native fast path when
// both sides are unboxed, the runtime call otherwise.
func (l *LowerFunction) lowerBinop(i *pir.Instr, kind binopKind) {
	lhs, rhs := i.Args[0], i.Args[1]
	rep := RepOfValue(i)
	lhsRep, rhsRep := RepOfValue(lhs), RepOfValue(rhs)

	if lhsRep == RepBoxed || rhsRep == RepBoxed {
		l.binopSlow(i, kind)
		return
	}

	var isNaBr *ir.Block
	done := l.newBlock("")

	resRep := RepInt32
	if lhsRep == RepFloat64 || rhsRep == RepFloat64 {
		resRep = RepFloat64
	}

	res := l.phiBuilder()
	a := l.loadRep(lhs, lhsRep)
	b := l.loadRep(rhs, rhsRep)

	checkNa := func(v value.Value, p pir.Value, r Rep) {
		if p.Type().MaybeNA() && r == RepInt32 {
			if isNaBr == nil {
				isNaBr = l.newBlock("isNa")
			}
			l.nacheck(v, isNaBr, nil)
		}
	}
	checkNa(a, lhs, lhsRep)
	checkNa(b, rhs, rhsRep)

	if a.Type() == types.I32 && b.Type() == types.I32 {
		res.addInput(l.intArith(kind, a, b))
	} else {
		if a.Type() == types.I32 {
			a = l.bb.NewSIToFP(a, types.Double)
		}
		if b.Type() == types.I32 {
			b = l.bb.NewSIToFP(b, types.Double)
		}
		res.addInput(l.fpArith(kind, a, b))
	}
	l.br(done)

	if isNaBr != nil {
		l.setBlock(isNaBr)
		if resRep == RepInt32 {
			res.addInput(ci32(int64(rt.NAInteger)))
		} else {
			res.addInput(cf64(naReal))
		}
		l.br(done)
	}

	l.setBlock(done)
	if rep == RepBoxed {
		merged := lhs.Type().MergeWithConversion(rhs.Type())
		l.setVal(i, l.box(res.value(), merged, false))
	} else {
		l.setVal(i, res.value())
	}
}

// intArith emits the native integer form of an arithmetic op.
func (l *LowerFunction) intArith(kind binopKind, a, b value.Value) value.Value {
	nsw := []enum.OverflowFlag{enum.OverflowFlagNSW}

	switch kind {
	case binopAdd:
		add := l.bb.NewAdd(a, b)
		add.OverflowFlags = nsw
		return add
	case binopSub:
		sub := l.bb.NewSub(a, b)
		sub.OverflowFlags = nsw
		return sub
	case binopMul:
		mul := l.bb.NewMul(a, b)
		mul.OverflowFlags = nsw
		return mul
	case binopDiv:
		return l.bb.NewSDiv(a, b)
	case binopIDiv:
		return l.intIDiv(a, b)
	case binopMod:
		return l.intMod(a, b)
	case binopPow:
		powi := l.intrinsic("llvm.powi.f64.i32", types.Double, types.Double, types.I32)
		r := l.bb.NewCall(powi, l.bb.NewSIToFP(a, types.Double), b)
		return l.bb.NewFPToSI(r, types.I32)
	}

	l.failf("no integer form for binop %d", kind)
	return a
}

// fpArith emits the native floating-point form of an arithmetic op.
func (l *LowerFunction) fpArith(kind binopKind, a, b value.Value) value.Value {
	switch kind {
	case binopAdd:
		return l.bb.NewFAdd(a, b)
	case binopSub:
		return l.bb.NewFSub(a, b)
	case binopMul:
		return l.bb.NewFMul(a, b)
	case binopDiv:
		return l.bb.NewFDiv(a, b)
	case binopIDiv:
		return l.fpIDiv(a, b)
	case binopMod:
		return l.fpMod(a, b)
	case binopPow:
		pow := l.intrinsic("llvm.pow.f64", types.Double, types.Double, types.Double)
		return l.bb.NewCall(pow, a, b)
	}

	l.failf("no floating-point form for binop %d", kind)
	return a
}

// intIDiv emits integer division with floor semantics; a zero divisor
// yields integer NA.
func (l *LowerFunction) intIDiv(a, b value.Value) value.Value {
	isZero := l.newBlock("")
	notZero := l.newBlock("")
	cnt := l.newBlock("")

	res := l.phiBuilder()
	l.condBr(l.bb.NewICmp(enum.IPredEQ, b, ci32(0)), isZero, notZero, hintMostlyFalse)

	l.setBlock(isZero)
	res.addInput(ci32(int64(rt.NAInteger)))
	l.br(cnt)

	l.setBlock(notZero)
	floor := l.intrinsic("llvm.floor.f64", types.Double, types.Double)
	q := l.bb.NewFDiv(l.bb.NewSIToFP(a, types.Double), l.bb.NewSIToFP(b, types.Double))
	res.addInput(l.bb.NewFPToSI(l.bb.NewCall(floor, q), types.I32))
	l.br(cnt)

	l.setBlock(cnt)
	return res.value()
}

// fpIDiv emits floor division; dividing by zero falls out of the IEEE
// division itself.
func (l *LowerFunction) fpIDiv(a, b value.Value) value.Value {
	floor := l.intrinsic("llvm.floor.f64", types.Double, types.Double)

	q := l.bb.NewFDiv(a, b)

	isZero := l.newBlock("")
	notZero := l.newBlock("")
	cnt := l.newBlock("")

	res := l.phiBuilder()
	l.condBr(l.bb.NewFCmp(enum.FPredUEQ, b, cf64(0)), isZero, notZero, hintMostlyFalse)

	l.setBlock(isZero)
	res.addInput(q)
	l.br(cnt)

	l.setBlock(notZero)
	fq := l.bb.NewCall(floor, q)
	tmp := l.bb.NewFSub(a, l.bb.NewFMul(fq, b))
	frem := l.bb.NewCall(floor, l.bb.NewFDiv(tmp, b))
	res.addInput(l.bb.NewFAdd(fq, frem))
	l.br(cnt)

	l.setBlock(cnt)
	return res.value()
}

// fpMod emits the floating modulus, warning when precision is provably
// lost.
func (l *LowerFunction) fpMod(a, b value.Value) value.Value {
	floor := l.intrinsic("llvm.floor.f64", types.Double, types.Double)
	fabs := l.intrinsic("llvm.fabs.f64", types.Double, types.Double)

	isZero := l.newBlock("")
	notZero := l.newBlock("")
	cnt := l.newBlock("")

	res := l.phiBuilder()
	l.condBr(l.bb.NewFCmp(enum.FPredUEQ, b, cf64(0)), isZero, notZero, hintMostlyFalse)

	l.setBlock(isZero)
	res.addInput(cf64(naReal))
	l.br(cnt)

	l.setBlock(notZero)
	q := l.bb.NewFDiv(a, b)
	fq := l.bb.NewCall(floor, q)

	absq := l.bb.NewCall(fabs, q)
	finite := l.bb.NewFCmp(enum.FPredUNE, absq, cf64(inf()))
	big := l.bb.NewFCmp(enum.FPredUGT, absq, cf64(1/dblEpsilon))

	warn := l.newBlock("")
	noWarn := l.newBlock("")
	l.condBr(l.bb.NewAnd(finite, big), warn, noWarn, hintMostlyFalse)

	l.setBlock(warn)
	l.callBuiltin("warn", l.globalString("probable complete loss of accuracy in modulus"))
	l.br(noWarn)

	l.setBlock(noWarn)
	tmp := l.bb.NewFSub(a, l.bb.NewFMul(fq, b))
	frem := l.bb.NewCall(floor, l.bb.NewFDiv(tmp, b))
	res.addInput(l.bb.NewFSub(tmp, l.bb.NewFMul(frem, b)))
	l.br(cnt)

	l.setBlock(cnt)
	return res.value()
}

// intMod uses the native remainder on the non-negative fast case and the
// floating algorithm otherwise.
func (l *LowerFunction) intMod(a, b value.Value) value.Value {
	fast := l.newBlock("")
	fast1 := l.newBlock("")
	slow := l.newBlock("")
	cnt := l.newBlock("")

	res := l.phiBuilder()
	l.condBr(l.bb.NewICmp(enum.IPredSGE, a, ci32(0)), fast1, slow, hintMostlyTrue)

	l.setBlock(fast1)
	l.condBr(l.bb.NewICmp(enum.IPredSGT, b, ci32(0)), fast, slow, hintMostlyTrue)

	l.setBlock(fast)
	res.addInput(l.bb.NewSRem(a, b))
	l.br(cnt)

	l.setBlock(slow)
	fa := l.bb.NewSIToFP(a, types.Double)
	fb := l.bb.NewSIToFP(b, types.Double)
	res.addInput(l.bb.NewFPToSI(l.fpMod(fa, fb), types.I32))
	l.br(cnt)

	l.setBlock(cnt)
	return res.value()
}

const dblEpsilon = 2.220446049250313e-16

func inf() float64 {
	f := 1.0
	return f / 0.0
}

// -----------------------------------------------------------------------------

// lowerRelop emits a relational operation.  Native results are Int32
// booleans; any NA operand propagates NA.
func (l *LowerFunction) lowerRelop(i *pir.Instr, kind binopKind) {
	lhs, rhs := i.Args[0], i.Args[1]
	rep := RepOfValue(i)
	lhsRep, rhsRep := RepOfValue(lhs), RepOfValue(rhs)

	if lhsRep == RepBoxed || rhsRep == RepBoxed {
		l.binopSlow(i, kind)
		return
	}

	isNaBr := l.newBlock("isNa")
	done := l.newBlock("")

	res := l.phiBuilder()
	a := l.loadRep(lhs, lhsRep)
	b := l.loadRep(rhs, rhsRep)

	l.nacheck(a, isNaBr, nil)
	l.nacheck(b, isNaBr, nil)

	if a.Type() == types.I32 && b.Type() == types.I32 {
		res.addInput(l.bb.NewZExt(l.intRelop(kind, a, b), types.I32))
	} else {
		if a.Type() == types.I32 {
			a = l.bb.NewSIToFP(a, types.Double)
		}
		if b.Type() == types.I32 {
			b = l.bb.NewSIToFP(b, types.Double)
		}
		res.addInput(l.bb.NewZExt(l.fpRelop(kind, a, b), types.I32))
	}
	l.br(done)

	l.setBlock(isNaBr)
	res.addInput(ci32(int64(rt.NAInteger)))
	l.br(done)

	l.setBlock(done)
	if rep == RepBoxed {
		l.setVal(i, l.boxLgl(res.value(), false))
	} else {
		l.setVal(i, res.value())
	}
}

// intRelop emits the integer comparison, yielding an i1.
func (l *LowerFunction) intRelop(kind binopKind, a, b value.Value) value.Value {
	switch kind {
	case relopEq:
		return l.bb.NewICmp(enum.IPredEQ, a, b)
	case relopNeq:
		return l.bb.NewICmp(enum.IPredNE, a, b)
	case relopLt:
		return l.bb.NewICmp(enum.IPredSLT, a, b)
	case relopLte:
		return l.bb.NewICmp(enum.IPredSLE, a, b)
	case relopGt:
		return l.bb.NewICmp(enum.IPredSGT, a, b)
	case relopGte:
		return l.bb.NewICmp(enum.IPredSGE, a, b)
	case relopLAnd:
		an := l.bb.NewICmp(enum.IPredNE, a, ci32(0))
		bn := l.bb.NewICmp(enum.IPredNE, b, ci32(0))
		return l.bb.NewAnd(an, bn)
	case relopLOr:
		an := l.bb.NewICmp(enum.IPredNE, a, ci32(0))
		bn := l.bb.NewICmp(enum.IPredNE, b, ci32(0))
		return l.bb.NewOr(an, bn)
	}

	l.failf("no integer form for relop %d", kind)
	return constTrue()
}

// fpRelop emits the floating comparison, yielding an i1.
func (l *LowerFunction) fpRelop(kind binopKind, a, b value.Value) value.Value {
	switch kind {
	case relopEq:
		return l.bb.NewFCmp(enum.FPredUEQ, a, b)
	case relopNeq:
		return l.bb.NewFCmp(enum.FPredUNE, a, b)
	case relopLt:
		return l.bb.NewFCmp(enum.FPredULT, a, b)
	case relopLte:
		return l.bb.NewFCmp(enum.FPredULE, a, b)
	case relopGt:
		return l.bb.NewFCmp(enum.FPredUGT, a, b)
	case relopGte:
		return l.bb.NewFCmp(enum.FPredUGE, a, b)
	case relopLAnd:
		an := l.bb.NewFCmp(enum.FPredUNE, a, cf64(0))
		bn := l.bb.NewFCmp(enum.FPredUNE, b, cf64(0))
		return l.bb.NewAnd(an, bn)
	case relopLOr:
		an := l.bb.NewFCmp(enum.FPredUNE, a, cf64(0))
		bn := l.bb.NewFCmp(enum.FPredUNE, b, cf64(0))
		return l.bb.NewOr(an, bn)
	}

	l.failf("no floating-point form for relop %d", kind)
	return constTrue()
}

// -----------------------------------------------------------------------------

// lowerUnop emits a unary arithmetic operation.
func (l *LowerFunction) lowerUnop(i *pir.Instr, kind unopKind) {
	arg := i.Args[0]
	argRep := RepOfValue(arg)

	if argRep == RepBoxed {
		a := l.loadSxp(arg)

		var res value.Value
		if i.HasEnv() {
			res = l.callBuiltin("unop_env", a, l.loadSxp(i.Env()),
				ci32(int64(i.SrcIdx)), ci32(int64(kind)))
		} else {
			res = l.callBuiltin("unop", a, ci32(int64(kind)))
		}

		l.setVal(i, res)
		return
	}

	var isNaBr *ir.Block
	done := l.newBlock("")

	res := l.phiBuilder()
	a := l.loadRep(arg, argRep)

	if argRep == RepInt32 {
		isNaBr = l.newBlock("isNa")
		l.nacheck(a, isNaBr, nil)
	}

	switch kind {
	case unopMinus:
		if a.Type() == types.I32 {
			neg := l.bb.NewSub(ci32(0), a)
			neg.OverflowFlags = []enum.OverflowFlag{enum.OverflowFlagNSW}
			res.addInput(neg)
		} else {
			res.addInput(l.bb.NewFNeg(a))
		}
	case unopPlus:
		res.addInput(a)
	}
	l.br(done)

	if isNaBr != nil {
		l.setBlock(isNaBr)
		res.addInput(ci32(int64(rt.NAInteger)))
		l.br(done)
	}

	l.setBlock(done)
	l.setVal(i, res.value())
}

// lowerNot emits logical negation: NA in, NA out.
func (l *LowerFunction) lowerNot(i *pir.Instr) {
	arg := i.Args[0]
	argRep := RepOfValue(arg)

	if argRep == RepBoxed {
		a := l.loadSxp(arg)

		var res value.Value
		if i.HasEnv() {
			res = l.callBuiltin("not_env", a, l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
		} else {
			res = l.callBuiltin("not", a)
		}

		l.setVal(i, res)
		return
	}

	done := l.newBlock("")
	isNa := l.newBlock("")

	a := l.loadRep(arg, argRep)
	l.nacheck(a, isNa, nil)

	res := l.phiBuilder()
	if a.Type() == types.Double {
		res.addInput(l.bb.NewZExt(l.bb.NewFCmp(enum.FPredUEQ, a, cf64(0)), types.I32))
	} else {
		res.addInput(l.bb.NewZExt(l.bb.NewICmp(enum.IPredEQ, a, ci32(0)), types.I32))
	}
	l.br(done)

	l.setBlock(isNa)
	res.addInput(ci32(int64(rt.NAInteger)))
	l.br(done)

	l.setBlock(done)
	if RepOfValue(i) == RepBoxed {
		l.setVal(i, l.boxLgl(res.value(), true))
	} else {
		l.setVal(i, res.value())
	}
}

// lowerColon emits the range constructor: the all-integer case has a
// dedicated runtime entry, everything else goes through the generic binop.
func (l *LowerFunction) lowerColon(i *pir.Instr) {
	if RepOfValue(i) != RepBoxed {
		l.failf("Colon must produce a boxed result")
		return
	}

	a, b := i.Args[0], i.Args[1]

	var res value.Value
	switch {
	case i.HasEnv():
		res = l.callBuiltin("binop_env", l.loadSxp(a), l.loadSxp(b),
			l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)), ci32(int64(binopColon)))
	case RepOfValue(a) == RepInt32 && RepOfValue(b) == RepInt32:
		res = l.callBuiltin("colon", l.load(a), l.load(b))
	default:
		res = l.callBuiltin("binop", l.loadSxp(a), l.loadSxp(b), ci32(int64(binopColon)))
	}

	l.setVal(i, res)
}

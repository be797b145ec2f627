package native

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/rt"
)

// constantSexp embeds an eternal object address.
func (l *LowerFunction) constantSexp(s rt.SEXP) value.Value {
	return constPtr(uintptr(s), l.t.Sexp)
}

// constantSymbol embeds an interned symbol address.
func (l *LowerFunction) constantSymbol(s *rt.Symbol) value.Value {
	return constPtr(uintptr(s.Addr), l.t.Sexp)
}

// poolLoad emits a load of constant-pool entry idx.
func (l *LowerFunction) poolLoad(idx uint32) value.Value {
	poolVec := l.bb.NewLoad(l.t.Sexp, constPtr(l.rtc.ConstantPoolAddr, l.t.SexpPtr))
	data := l.bb.NewBitCast(l.dataPtr(poolVec, false), l.t.SexpPtr)
	pos := l.bb.NewGetElementPtr(l.t.Sexp, data, ci64(int64(idx)))
	return l.bb.NewLoad(l.t.Sexp, pos)
}

// constant materializes a compile-time constant in the requested
// representation.  Eternal singletons become address constants; everything
// else boxed goes through the constant pool.
func (l *LowerFunction) constant(c *rt.Const, needed Rep) value.Value {
	if needed == RepInt32 {
		switch c.Kind {
		case rt.IntSxp:
			return ci32(int64(c.Ints[0]))
		case rt.RealSxp:
			return ci32(int64(int32(c.Reals[0])))
		case rt.LglSxp:
			return ci32(int64(c.Lgls[0]))
		}
		l.failf("cannot load %v constant as i32", c.Kind)
		return ci32(0)
	}

	if needed == RepFloat64 {
		switch c.Kind {
		case rt.IntSxp:
			return cf64(float64(c.Ints[0]))
		case rt.RealSxp:
			return cf64(c.Reals[0])
		}
		l.failf("cannot load %v constant as f64", c.Kind)
		return cf64(0)
	}

	if c.Kind == rt.SymSxp || l.rtc.IsEternal(c.Addr) {
		return l.constantSexp(c.Addr)
	}

	return l.poolLoad(l.pool.Insert(c.Addr))
}

// -----------------------------------------------------------------------------
// Unboxing.

// unboxIntLgl loads the scalar payload of an integer or logical vector.
func (l *LowerFunction) unboxIntLgl(v value.Value) value.Value {
	if l.opts.SlowAsserts {
		intOk := l.bb.NewICmp(enum.IPredEQ, l.sexptype(v), ci32(int64(rt.IntSxp)))
		lglOk := l.bb.NewICmp(enum.IPredEQ, l.sexptype(v), ci32(int64(rt.LglSxp)))
		l.insnAssert(l.bb.NewOr(intOk, lglOk), "expected scalar int or lgl")
	}

	data := l.bb.NewBitCast(l.dataPtr(v, true), l.t.I32Ptr)
	return l.bb.NewLoad(types.I32, data)
}

// unboxInt loads the scalar payload of an integer vector.
func (l *LowerFunction) unboxInt(v value.Value) value.Value {
	if l.opts.SlowAsserts {
		l.insnAssert(l.isSimpleScalar(v, rt.IntSxp), "expected scalar int")
	}

	data := l.bb.NewBitCast(l.dataPtr(v, true), l.t.I32Ptr)
	return l.bb.NewLoad(types.I32, data)
}

// unboxReal loads the scalar payload of a real vector.
func (l *LowerFunction) unboxReal(v value.Value) value.Value {
	if l.opts.SlowAsserts {
		l.insnAssert(l.isSimpleScalar(v, rt.RealSxp), "expected scalar real")
	}

	data := l.bb.NewBitCast(l.dataPtr(v, true), l.t.F64Ptr)
	return l.bb.NewLoad(types.Double, data)
}

// unboxRealIntLgl loads a numeric scalar of unknown kind as a double,
// mapping integer NA to NaN.
func (l *LowerFunction) unboxRealIntLgl(v value.Value) value.Value {
	done := l.newBlock("")
	isReal := l.newBlock("isReal")
	notReal := l.newBlock("notReal")

	res := l.phiBuilder()

	tt := l.bb.NewICmp(enum.IPredEQ, l.sexptype(v), ci32(int64(rt.RealSxp)))
	l.condBr(tt, isReal, notReal, hintNone)

	l.setBlock(notReal)
	intres := l.unboxIntLgl(v)

	isNaBr := l.newBlock("isNa")
	l.nacheck(intres, isNaBr, nil)
	res.addInput(l.bb.NewSIToFP(intres, types.Double))
	l.br(done)

	l.setBlock(isNaBr)
	res.addInput(cf64(naReal))
	l.br(done)

	l.setBlock(isReal)
	res.addInput(l.unboxReal(v))
	l.br(done)

	l.setBlock(done)
	return res.value()
}

// naReal is the canonical NaN payload of a real NA.
var naReal = nan()

func nan() float64 {
	f := 0.0
	return f / f
}

// -----------------------------------------------------------------------------
// Boxing.

// boxInt allocates a boxed integer.
func (l *LowerFunction) boxInt(v value.Value, protect bool) value.Value {
	var res value.Value
	if v.Type() == types.I32 {
		res = l.callBuiltin("box_int", v)
	} else {
		res = l.callBuiltin("box_int_from_real", v)
	}

	if protect {
		l.protectTemp(res)
	}
	return res
}

// boxReal allocates a boxed real.
func (l *LowerFunction) boxReal(v value.Value, protect bool) value.Value {
	var res value.Value
	if v.Type() == types.Double {
		res = l.callBuiltin("box_real", v)
	} else {
		res = l.callBuiltin("box_real_from_int", v)
	}

	if protect {
		l.protectTemp(res)
	}
	return res
}

// boxLgl allocates a boxed logical.
func (l *LowerFunction) boxLgl(v value.Value, protect bool) value.Value {
	var res value.Value
	if v.Type() == types.I32 {
		res = l.callBuiltin("box_lgl", v)
	} else {
		res = l.callBuiltin("box_lgl_from_real", v)
	}

	if protect {
		l.protectTemp(res)
	}
	return res
}

// boxTst maps a native truth value to the eternal True/False objects; it
// never allocates because tests cannot be NA.
func (l *LowerFunction) boxTst(v value.Value) value.Value {
	cond := l.bb.NewICmp(enum.IPredNE, v, ci32(0))
	return l.bb.NewSelect(cond, l.constantSexp(l.rtc.True), l.constantSexp(l.rtc.False))
}

// box allocates a boxed form of an unboxed value according to its PIR type.
func (l *LowerFunction) box(v value.Value, t pir.Type, protect bool) value.Value {
	switch {
	case t.IsA(pir.TestType()):
		return l.boxTst(v)
	case t.IsA(pir.Int().NotObject()):
		return l.boxInt(v, protect)
	case t.IsA(pir.Lgl().NotObject()):
		return l.boxLgl(v, protect)
	case t.IsA(pir.Real().NotObject()):
		return l.boxReal(v, protect)
	}

	l.failf("cannot box a %s", t)
	return l.constantSexp(l.rtc.Nil)
}

// -----------------------------------------------------------------------------
// The load pipeline.

// loadSxp loads a value boxed.
func (l *LowerFunction) loadSxp(v pir.Value) value.Value {
	return l.loadAs(v, v.Type(), RepBoxed)
}

// load loads a value in its selected representation.
func (l *LowerFunction) load(v pir.Value) value.Value {
	return l.loadAs(v, v.Type(), RepOfValue(v))
}

// loadRep loads a value in the requested representation.
func (l *LowerFunction) loadRep(v pir.Value, r Rep) value.Value {
	return l.loadAs(v, v.Type(), r)
}

// loadAs resolves a PIR value and coerces it into the needed representation:
// variable read, constant materialization or singleton address, then unbox /
// int-double conversion / box as required.
func (l *LowerFunction) loadAs(v pir.Value, t pir.Type, needed Rep) value.Value {
	var res value.Value

	// Casts of constants resolve to the constant itself.
	if i := pir.AsInstr(v); i != nil && i.Tag == pir.CastType {
		if pir.IsConst(i.Args[0]) != nil {
			return l.loadAs(i.Args[0], t, needed)
		}
	}

	switch {
	case pir.AsInstr(v) != nil && l.variables[pir.AsInstr(v)] != nil:
		res = l.getVariable(pir.AsInstr(v))

	case v == pir.ElidedEnv:
		res = l.constantSexp(l.rtc.Nil)

	case v == pir.NotClosedEnv:
		res = l.tag(l.paramClosure())

	case pir.IsStaticEnv(v) != nil:
		res = l.constantSexp(pir.IsStaticEnv(v).Rho)

	case v == pir.True:
		if needed == RepInt32 {
			return ci32(1)
		}
		if needed == RepFloat64 {
			return cf64(1)
		}
		res = l.constantSexp(l.rtc.True)

	case v == pir.False:
		if needed == RepInt32 {
			return ci32(0)
		}
		if needed == RepFloat64 {
			return cf64(0)
		}
		res = l.constantSexp(l.rtc.False)

	case v == pir.NaLogical:
		if needed == RepInt32 {
			return ci32(int64(rt.NAInteger))
		}
		res = l.constantSexp(l.rtc.NaLogical)

	case v == pir.Nil:
		res = l.constantSexp(l.rtc.Nil)

	case v == pir.MissingArg:
		res = l.constantSexp(l.rtc.Missing)

	case v == pir.UnboundValue:
		res = l.constantSexp(l.rtc.Unbound)

	case pir.AsInstr(v) != nil && pir.AsInstr(v).Tag == pir.LdConst:
		res = l.constant(pir.AsInstr(v).Const, needed)

	default:
		l.failf("cannot resolve operand %v", v)
		return l.zero(needed)
	}

	// Unbox when a scalar representation is needed but a boxed value was
	// produced.
	if res.Type() == l.t.Sexp && needed != RepBoxed {
		switch {
		case t.IsA(pir.Int().Scalar().NotObject()):
			res = l.unboxInt(res)
		case t.IsA(pir.NewType(pir.RInt | pir.RLogical).Scalar().NotObject()):
			res = l.unboxIntLgl(res)
		case t.IsA(pir.Real().Scalar().NotObject()):
			res = l.unboxReal(res)
		case t.IsA(pir.NumOrLgl().Scalar().NotObject()):
			res = l.unboxRealIntLgl(res)
		default:
			l.failf("do not know how to unbox a %s", t)
			return l.zero(needed)
		}
	}

	// Scalar-to-scalar coercions.
	if res.Type() == types.I32 && needed == RepFloat64 {
		isNa := l.bb.NewICmp(enum.IPredEQ, res, ci32(int64(rt.NAInteger)))
		res = l.bb.NewSelect(isNa, cf64(naReal), l.bb.NewSIToFP(res, types.Double))
	} else if res.Type() == types.Double && needed == RepInt32 {
		isNa := l.bb.NewFCmp(enum.FPredUNE, res, res)
		res = l.bb.NewSelect(isNa, ci32(int64(rt.NAInteger)), l.bb.NewFPToSI(res, types.I32))
	} else if (res.Type() == types.I32 || res.Type() == types.Double) && needed == RepBoxed {
		switch {
		case t.IsA(pir.TestType()):
			res = l.boxTst(res)
		case t.Maybe(pir.RInt) && !t.Maybe(pir.RReal) && !t.Maybe(pir.RLogical):
			res = l.boxInt(res, true)
		case t.Maybe(pir.RLogical) && !t.Maybe(pir.RInt) && !t.Maybe(pir.RReal):
			res = l.boxLgl(res, true)
		case t.Maybe(pir.RReal):
			res = l.boxReal(res, true)
		default:
			l.failf("failed to box an unboxed %s", t)
			return l.constantSexp(l.rtc.Nil)
		}
	}

	if !res.Type().Equal(needed.llvm(l.t)) {
		l.failf("failed to load %v in representation %s", v, needed)
		return l.zero(needed)
	}

	return res
}

// zero produces a placeholder of the requested representation for error
// paths; emission is already marked failed when it is used.
func (l *LowerFunction) zero(r Rep) value.Value {
	switch r {
	case RepInt32:
		return ci32(0)
	case RepFloat64:
		return cf64(0)
	default:
		return l.constantSexp(l.rtc.Nil)
	}
}

// convert coerces an already-loaded value to the representation of the
// given PIR type.  Implicit int/double conversions translate the NA
// sentinels into one another.
func (l *LowerFunction) convert(val value.Value, to pir.Type, protect bool) value.Value {
	target := RepOf(to)
	from := val.Type()

	if from.Equal(target.llvm(l.t)) {
		return val
	}

	if from == l.t.Sexp && target == RepInt32 {
		return l.unboxIntLgl(val)
	}
	if from == l.t.Sexp && target == RepFloat64 {
		return l.unboxRealIntLgl(val)
	}
	if from != l.t.Sexp && target == RepBoxed {
		return l.box(val, to, protect)
	}

	if from == types.I32 && target == RepFloat64 {
		isNa := l.bb.NewICmp(enum.IPredEQ, val, ci32(int64(rt.NAInteger)))
		return l.bb.NewSelect(isNa, cf64(naReal), l.bb.NewSIToFP(val, types.Double))
	}
	if from == types.Double && target == RepInt32 {
		isNa := l.bb.NewFCmp(enum.FPredUNE, val, val)
		return l.bb.NewSelect(isNa, ci32(int64(rt.NAInteger)), l.bb.NewFPToSI(val, types.I32))
	}

	l.failf("failed to convert a %v to %s", from, to)
	return l.zero(target)
}

// -----------------------------------------------------------------------------
// NA, missing and unbound checks.

// nacheck branches to isNa when v is the NA sentinel of its representation.
// The insertion point continues at notNa (created when nil).
func (l *LowerFunction) nacheck(v value.Value, isNa, notNa *ir.Block) {
	if notNa == nil {
		notNa = l.newBlock("")
	}

	if v.Type() == types.Double {
		isNotNa := l.bb.NewFCmp(enum.FPredUEQ, v, v)
		l.condBr(isNotNa, notNa, isNa, hintMostlyTrue)
	} else {
		isNotNa := l.bb.NewICmp(enum.IPredNE, v, ci32(int64(rt.NAInteger)))
		l.condBr(isNotNa, notNa, isNa, hintMostlyTrue)
	}

	l.setBlock(notNa)
}

// checkMissing raises the missing-argument error when v is the missing
// marker.
func (l *LowerFunction) checkMissing(v value.Value) {
	ok := l.newBlock("")
	nok := l.newBlock("")

	t := l.bb.NewICmp(enum.IPredEQ, v, l.constantSexp(l.rtc.Missing))
	l.condBr(t, nok, ok, hintAlwaysFalse)

	l.setBlock(nok)
	l.callBuiltin("error", l.globalString("argument is missing, with no default"))
	l.br(ok)

	l.setBlock(ok)
}

// checkUnbound raises the object-not-found error when v is unbound.
func (l *LowerFunction) checkUnbound(v value.Value) {
	ok := l.newBlock("")
	nok := l.newBlock("")

	t := l.bb.NewICmp(enum.IPredEQ, v, l.constantSexp(l.rtc.Unbound))
	l.condBr(t, nok, ok, hintAlwaysFalse)

	l.setBlock(nok)
	l.callBuiltin("error", l.globalString("object not found"))
	l.br(ok)

	l.setBlock(ok)
}

// -----------------------------------------------------------------------------
// Promises.

// depromise unwraps a promise's cached value without forcing.
func (l *LowerFunction) depromise(arg value.Value) value.Value {
	isProm := l.newBlock("isProm")
	isVal := l.newBlock("")
	ok := l.newBlock("")

	res := l.phiBuilder()

	tt := l.bb.NewICmp(enum.IPredEQ, l.sexptype(arg), ci32(int64(rt.PromSxp)))
	l.condBr(tt, isProm, isVal, hintNone)

	l.setBlock(isProm)
	res.addInput(l.car(arg))
	l.br(ok)

	l.setBlock(isVal)
	res.addInput(arg)
	l.br(ok)

	l.setBlock(ok)
	return res.value()
}

// force evaluates a promise: an already-computed value short-circuits, an
// unevaluated one goes through the runtime.
func (l *LowerFunction) force(arg value.Value) value.Value {
	isProm := l.newBlock("")
	needsEval := l.newBlock("")
	isVal := l.newBlock("")
	isPromVal := l.newBlock("")
	done := l.newBlock("")

	res := l.phiBuilder()

	tt := l.bb.NewICmp(enum.IPredEQ, l.sexptype(arg), ci32(int64(rt.PromSxp)))
	l.condBr(tt, isProm, isVal, hintNone)

	l.setBlock(isProm)
	val := l.car(arg)
	tv := l.bb.NewICmp(enum.IPredEQ, val, l.constantSexp(l.rtc.Unbound))
	l.condBr(tv, needsEval, isPromVal, hintNone)

	l.setBlock(needsEval)
	evaled := l.callBuiltin("force_promise", arg)
	res.addInput(evaled)
	l.br(done)

	l.setBlock(isVal)
	res.addInput(arg)
	l.br(done)

	l.setBlock(isPromVal)
	res.addInput(val)
	l.br(done)

	l.setBlock(done)
	result := res.value()

	if l.opts.SlowAsserts {
		notProm := l.bb.NewICmp(enum.IPredNE, l.sexptype(result), ci32(int64(rt.PromSxp)))
		l.insnAssert(notProm, "force returned a promise")
	}

	return result
}

package native

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/rt"
)

// lowerCallSafeBuiltin lowers effect-free builtins, inlining the cases where
// the representation already decides the answer.  Anything not matched falls
// through to the generic invocation against the base environment (some safe
// builtins still look functions up there).
func (l *LowerFunction) lowerCallSafeBuiltin(i *pir.Instr) {
	if l.compileDotcall(i,
		func() value.Value { return l.constantSexp(i.BuiltinObj) },
		func(int) *rt.Symbol { return nil }) {
		return
	}

	callTheBuiltin := func() value.Value {
		return l.callRBuiltin(i, l.constantSexp(l.rtc.BaseEnv))
	}

	fixVisibility := func() {
		if !i.Effects.Contains(pir.EffectVisibility) {
			return
		}
		flag := rt.BuiltinFlag(i.Builtin)
		if flag < 2 {
			l.setVisible(int64(1 - flag))
		}
	}

	if !l.opts.InlineBuiltins {
		l.setVal(i, callTheBuiltin())
		return
	}

	args := i.CallArgs()

	if RepOfValue(i) == RepInt32 && len(args) == 2 && l.lowerBitwise(i, args) {
		fixVisibility()
		return
	}

	if len(args) == 1 && l.lowerUnarySafe(i, args[0], callTheBuiltin) {
		fixVisibility()
		return
	}

	if len(args) == 2 && l.lowerBinarySafe(i, args) {
		fixVisibility()
		return
	}

	if i.Builtin == "c" && l.lowerCombine(i, args) {
		fixVisibility()
		return
	}

	if i.Builtin == "list" {
		res := l.callBuiltin("make_vector", ci32(int64(rt.VecSxp)), ci64(int64(len(args))))
		l.protectTemp(res)

		for pos, v := range args {
			l.assignVector(res, ci64(int64(pos)), l.loadSxp(v), pir.AnyVec().NotObject())
		}

		l.setVal(i, res)
		fixVisibility()
		return
	}

	l.setVal(i, callTheBuiltin())
}

// lowerBitwise inlines the bitwise builtins on unboxed operands.  Shifts
// outside 0..31 produce integer NA.
func (l *LowerFunction) lowerBitwise(i *pir.Instr, args []pir.Value) bool {
	switch i.Builtin {
	case "bitwiseShiftL", "bitwiseShiftR", "bitwiseAnd", "bitwiseOr", "bitwiseXor":
	default:
		return false
	}

	x, y := args[0], args[1]
	xRep, yRep := RepOfValue(x), RepOfValue(y)

	num := pir.NumOrLgl().NotObject().Scalar()
	if xRep == RepBoxed && x.Type().IsA(num) {
		xRep = RepFloat64
	}
	if yRep == RepBoxed && y.Type().IsA(num) {
		yRep = RepFloat64
	}

	if xRep == RepBoxed || yRep == RepBoxed {
		return false
	}

	var isNaBr *ir.Block
	naBlock := func() *ir.Block {
		if isNaBr == nil {
			isNaBr = l.newBlock("isNa")
		}
		return isNaBr
	}
	done := l.newBlock("")

	res := l.phiBuilder()

	xInt := l.loadRep(x, RepInt32)
	yInt := l.loadRep(y, RepInt32)

	naCheck := func(v pir.Value, asInt value.Value, rep Rep) {
		if rep == RepFloat64 {
			l.nacheck(l.loadRep(v, rep), naBlock(), nil)
		} else {
			l.nacheck(asInt, naBlock(), nil)
		}
	}
	naCheck(x, xInt, xRep)
	naCheck(y, yInt, yRep)

	checkShiftRange := func() {
		ok := l.newBlock("")
		l.condBr(l.bb.NewICmp(enum.IPredSLT, yInt, ci32(0)), naBlock(), ok, hintMostlyFalse)
		l.setBlock(ok)

		ok = l.newBlock("")
		l.condBr(l.bb.NewICmp(enum.IPredSGT, yInt, ci32(31)), naBlock(), ok, hintMostlyFalse)
		l.setBlock(ok)
	}

	switch i.Builtin {
	case "bitwiseShiftL":
		checkShiftRange()
		res.addInput(l.bb.NewShl(xInt, yInt))
	case "bitwiseShiftR":
		checkShiftRange()
		res.addInput(l.bb.NewLShr(xInt, yInt))
	case "bitwiseAnd":
		res.addInput(l.bb.NewAnd(xInt, yInt))
	case "bitwiseOr":
		res.addInput(l.bb.NewOr(xInt, yInt))
	case "bitwiseXor":
		res.addInput(l.bb.NewXor(xInt, yInt))
	}

	l.br(done)

	if isNaBr != nil {
		l.setBlock(isNaBr)
		res.addInput(ci32(int64(rt.NAInteger)))
		l.br(done)
	}

	l.setBlock(done)
	l.setVal(i, res.value())
	return true
}

// boolResult materializes a truth result in the instruction's
// representation.
func (l *LowerFunction) boolResult(i *pir.Instr, cond value.Value) value.Value {
	if RepOfValue(i) == RepBoxed {
		return l.bb.NewSelect(cond,
			l.constantSexp(l.rtc.True), l.constantSexp(l.rtc.False))
	}

	return l.bb.NewZExt(cond, types.I32)
}

// staticBool materializes a known truth result.
func (l *LowerFunction) staticBool(i *pir.Instr, b bool) value.Value {
	if RepOfValue(i) == RepBoxed {
		if b {
			return l.constantSexp(l.rtc.True)
		}
		return l.constantSexp(l.rtc.False)
	}

	if b {
		return ci32(1)
	}
	return ci32(0)
}

// lowerUnarySafe inlines the single-argument safe builtins.  Returns false
// when the generic call must be used.
func (l *LowerFunction) lowerUnarySafe(i *pir.Instr, arg pir.Value, callTheBuiltin func() value.Value) bool {
	irep := RepOfValue(arg)
	orep := RepOfValue(i)
	a := l.load(arg)

	typetest := func(t rt.SexpType) {
		if irep == RepBoxed {
			cond := l.bb.NewICmp(enum.IPredEQ, l.sexptype(a), ci32(int64(t)))
			l.setVal(i, l.boolResult(i, cond))
		} else {
			l.setVal(i, l.staticBool(i, false))
		}
	}

	switch i.Builtin {
	case "length":
		if irep == RepBoxed {
			var r value.Value = l.callBuiltin("length", a)
			switch orep {
			case RepBoxed:
				big := l.bb.NewICmp(enum.IPredUGT, r, ci64(0x7fffffff))
				r = l.bb.NewSelect(big,
					l.boxReal(l.bb.NewUIToFP(r, types.Double), false),
					l.boxInt(l.bb.NewTrunc(r, types.I32), false))
			case RepFloat64:
				r = l.bb.NewUIToFP(r, types.Double)
			default:
				r = l.bb.NewTrunc(r, types.I32)
			}
			l.setVal(i, r)
		} else {
			// An unboxed scalar has length one by construction.
			l.setVal(i, l.convert(ci32(1), i.Typ, false))
		}

	case "names":
		itype := arg.Type()
		switch {
		case irep != RepBoxed:
			l.setVal(i, l.constantSexp(l.rtc.Nil))
		case itype.IsA(pir.Vecs().OrObject().OrAttribs()):
			if !itype.MaybeHasAttrs() && !itype.MaybeObj() {
				l.setVal(i, l.constantSexp(l.rtc.Nil))
			} else {
				res := l.phiBuilder()
				done := l.newBlock("")
				hasAttr := l.newBlock("")
				noAttr := l.newBlock("")

				mightHaveNames := value.Value(l.bb.NewICmp(enum.IPredNE,
					l.attr(a), l.constantSexp(l.rtc.Nil)))
				if itype.MaybeObj() {
					mightHaveNames = l.bb.NewOr(mightHaveNames, l.isObj(a))
				}
				l.condBr(mightHaveNames, hasAttr, noAttr, hintNone)

				l.setBlock(hasAttr)
				res.addInput(callTheBuiltin())
				l.br(done)

				l.setBlock(noAttr)
				res.addInput(l.constantSexp(l.rtc.Nil))
				l.br(done)

				l.setBlock(done)
				l.setVal(i, res.value())
			}
		default:
			return false
		}

	case "abs":
		switch irep {
		case RepInt32:
			neg := l.bb.NewSub(ci32(0), a)
			l.setVal(i, l.bb.NewSelect(l.bb.NewICmp(enum.IPredSGE, a, ci32(0)), a, neg))
		case RepFloat64:
			l.setVal(i, l.bb.NewSelect(l.bb.NewFCmp(enum.FPredOGE, a, cf64(0)), a, l.bb.NewFNeg(a)))
		default:
			return false
		}

	case "sqrt":
		sqrt := l.intrinsic("llvm.sqrt.f64", types.Double, types.Double)
		switch {
		case orep == RepFloat64 && irep == RepInt32:
			l.setVal(i, l.bb.NewCall(sqrt, l.bb.NewSIToFP(a, types.Double)))
		case orep == RepFloat64 && irep == RepFloat64:
			l.setVal(i, l.bb.NewCall(sqrt, a))
		default:
			return false
		}

	case "sum", "prod":
		switch {
		case irep == RepInt32 || irep == RepFloat64:
			// A scalar is its own sum and product.
			l.setVal(i, l.convert(a, i.Typ, false))
		case orep == RepFloat64 || orep == RepInt32:
			if !arg.Type().IsA(pir.IntReal()) {
				return false
			}
			trg := "sum_real"
			if i.Builtin == "prod" {
				trg = "prod_real"
			}
			var res value.Value = l.callBuiltin(trg, a)
			if orep == RepInt32 {
				res = l.convert(res, i.Typ, false)
			}
			l.setVal(i, res)
		default:
			return false
		}

	case "as.integer":
		switch {
		case irep == RepInt32 && orep == RepInt32:
			l.setVal(i, a)
		case irep == RepFloat64 && orep == RepInt32:
			isNa := l.bb.NewFCmp(enum.FPredUNE, a, a)
			l.setVal(i, l.bb.NewSelect(isNa, ci32(int64(rt.NAInteger)),
				l.bb.NewFPToSI(a, types.I32)))
		case irep == RepFloat64 && orep == RepFloat64:
			floor := l.intrinsic("llvm.floor.f64", types.Double, types.Double)
			isNa := l.bb.NewFCmp(enum.FPredUNE, a, a)
			l.setVal(i, l.bb.NewSelect(isNa, a, l.bb.NewCall(floor, a)))
		case irep == RepBoxed:
			isSimpleInt := l.bb.NewAnd(
				l.bb.NewICmp(enum.IPredEQ, l.attr(a), l.constantSexp(l.rtc.Nil)),
				l.bb.NewICmp(enum.IPredEQ, l.sexptype(a), ci32(int64(rt.IntSxp))))
			l.setVal(i, l.bb.NewSelect(isSimpleInt, l.convert(a, i.Typ, true), callTheBuiltin()))
		default:
			return false
		}

	case "is.logical":
		if arg.Type().IsA(pir.Lgl()) {
			// Logicals lowered to ints still count.
			l.setVal(i, l.staticBool(i, true))
		} else {
			typetest(rt.LglSxp)
		}

	case "is.complex":
		typetest(rt.CplxSxp)

	case "is.character":
		typetest(rt.StrSxp)

	case "is.symbol":
		typetest(rt.SymSxp)

	case "is.expression":
		typetest(rt.ExprSxp)

	case "is.call":
		typetest(rt.LangSxp)

	case "is.function":
		if irep != RepBoxed {
			l.setVal(i, l.staticBool(i, false))
			break
		}
		t := l.sexptype(a)
		is := l.bb.NewOr(
			l.bb.NewICmp(enum.IPredEQ, t, ci32(int64(rt.CloSxp))),
			l.bb.NewOr(
				l.bb.NewICmp(enum.IPredEQ, t, ci32(int64(rt.BuiltinSxp))),
				l.bb.NewICmp(enum.IPredEQ, t, ci32(int64(rt.SpecialSxp)))))
		l.setVal(i, l.boolResult(i, is))

	case "is.na":
		switch irep {
		case RepInt32:
			l.setVal(i, l.boolResult(i,
				l.bb.NewICmp(enum.IPredEQ, a, ci32(int64(rt.NAInteger)))))
		case RepFloat64:
			l.setVal(i, l.boolResult(i, l.bb.NewFCmp(enum.FPredUNE, a, a)))
		default:
			return false
		}

	case "is.object":
		if irep == RepBoxed {
			l.setVal(i, l.boolResult(i, l.isObj(a)))
		} else {
			l.setVal(i, l.staticBool(i, false))
		}

	case "is.array":
		if irep == RepBoxed {
			l.setVal(i, l.boolResult(i, l.isArray(a)))
		} else {
			l.setVal(i, l.staticBool(i, false))
		}

	case "is.atomic":
		if irep == RepBoxed {
			t := l.sexptype(a)
			atomicTypes := []rt.SexpType{
				rt.NilSxp, rt.CharSxp, rt.LglSxp, rt.IntSxp,
				rt.RealSxp, rt.CplxSxp, rt.StrSxp, rt.RawSxp,
			}
			var is value.Value
			for _, at := range atomicTypes {
				cmp := l.bb.NewICmp(enum.IPredEQ, t, ci32(int64(at)))
				if is == nil {
					is = cmp
				} else {
					is = l.bb.NewOr(is, cmp)
				}
			}
			l.setVal(i, l.boolResult(i, is))
		} else {
			l.setVal(i, l.staticBool(i, true))
		}

	case "bodyCode":
		if irep != RepBoxed {
			return false
		}
		if arg.Type().IsA(pir.ClosT()) {
			l.setVal(i, l.cdr(a))
		} else {
			isClo := l.bb.NewICmp(enum.IPredEQ, ci32(int64(rt.CloSxp)), l.sexptype(a))
			l.setVal(i, l.bb.NewSelect(isClo, l.cdr(a), l.constantSexp(l.rtc.Nil)))
		}

	case "environment":
		if !arg.Type().IsA(pir.ClosT()) {
			l.failf("environment() of a non-closure")
			return true
		}
		l.setVal(i, l.tag(a))

	default:
		return false
	}

	return true
}

// isArray tests for a vector with a non-empty dim attribute.
func (l *LowerFunction) isArray(v value.Value) value.Value {
	res := l.phiBuilder()
	isVec := l.newBlock("")
	notVec := l.newBlock("")
	done := l.newBlock("")

	l.condBr(l.isVectorType(v), isVec, notVec, hintNone)

	l.setBlock(isVec)
	dim := l.callBuiltin("get_attrib", v, l.constantSymbol(rt.DimSymbol))
	ok := l.bb.NewAnd(
		l.bb.NewICmp(enum.IPredEQ, l.sexptype(dim), ci32(int64(rt.IntSxp))),
		l.bb.NewICmp(enum.IPredUGT, l.vectorLength(dim), ci64(0)))
	res.addInput(ok)
	l.br(done)

	l.setBlock(notVec)
	res.addInput(constFalse())
	l.br(done)

	l.setBlock(done)
	return res.value()
}

// isVectorType tests the sexptype against the vector kinds.
func (l *LowerFunction) isVectorType(v value.Value) value.Value {
	t := l.sexptype(v)

	kinds := []rt.SexpType{
		rt.LglSxp, rt.IntSxp, rt.RealSxp, rt.CplxSxp,
		rt.StrSxp, rt.RawSxp, rt.VecSxp, rt.ExprSxp,
	}

	var is value.Value
	for _, k := range kinds {
		cmp := l.bb.NewICmp(enum.IPredEQ, t, ci32(int64(k)))
		if is == nil {
			is = cmp
		} else {
			is = l.bb.NewOr(is, cmp)
		}
	}

	return is
}

// lowerBinarySafe inlines the two-argument safe builtins.
func (l *LowerFunction) lowerBinarySafe(i *pir.Instr, args []pir.Value) bool {
	arep := RepOfValue(args[0])
	brep := RepOfValue(args[1])
	orep := RepOfValue(i)

	switch i.Builtin {
	case "vector":
		// vector(type, n) with a literal type string preallocates
		// directly.
		ln := args[1]
		if !ln.Type().IsA(pir.SimpleScalarInt()) {
			return false
		}
		con := pir.IsConst(args[0])
		if con == nil {
			return false
		}
		s, ok := con.IsScalarString()
		if !ok {
			return false
		}

		var t rt.SexpType
		switch s {
		case "logical":
			t = rt.LglSxp
		case "integer":
			t = rt.IntSxp
		case "numeric", "double":
			t = rt.RealSxp
		case "complex":
			t = rt.CplxSxp
		case "character":
			t = rt.StrSxp
		case "expression":
			t = rt.ExprSxp
		case "list":
			t = rt.VecSxp
		case "raw":
			t = rt.RawSxp
		default:
			return false
		}

		n := l.bb.NewZExt(l.loadRep(ln, RepInt32), types.I64)
		l.setVal(i, l.callBuiltin("make_vector", ci32(int64(t)), n))
		return true

	case "min", "max":
		isMin := i.Builtin == "min"
		aval := l.load(args[0])
		bval := l.load(args[1])

		if arep == RepInt32 && brep == RepInt32 && orep != RepFloat64 {
			var cond value.Value
			if isMin {
				cond = l.bb.NewICmp(enum.IPredSLT, bval, aval)
			} else {
				cond = l.bb.NewICmp(enum.IPredSLT, aval, bval)
			}
			res := l.bb.NewSelect(cond, bval, aval)
			if orep == RepInt32 {
				l.setVal(i, res)
			} else {
				l.setVal(i, l.boxInt(res, false))
			}
			return true
		}

		if arep == RepFloat64 && brep == RepFloat64 && orep != RepInt32 {
			var cond value.Value
			if isMin {
				cond = l.bb.NewFCmp(enum.FPredUGT, bval, aval)
			} else {
				cond = l.bb.NewFCmp(enum.FPredUGT, aval, bval)
			}
			res := l.bb.NewSelect(cond, aval, bval)
			if orep == RepFloat64 {
				l.setVal(i, res)
			} else {
				l.setVal(i, l.boxReal(res, false))
			}
			return true
		}

		return false

	case "is.vector":
		con := pir.IsConst(args[1])
		if con == nil {
			return false
		}
		if s, ok := con.IsScalarString(); !ok || s != "any" {
			return false
		}

		if arep == RepBoxed {
			l.setVal(i, l.boolResult(i, l.isVectorType(l.load(args[0]))))
		} else {
			l.setVal(i, l.staticBool(i, true))
		}
		return true
	}

	return false
}

// lowerCombine inlines c(...) when every argument shares one unboxed
// representation: preallocate and fill.
func (l *LowerFunction) lowerCombine(i *pir.Instr, args []pir.Value) bool {
	allInt, allReal := true, true
	for _, v := range args {
		if RepOfValue(v) != RepFloat64 {
			allReal = false
		}
		if RepOfValue(v) != RepInt32 {
			allInt = false
		}
	}

	if !allInt && !allReal {
		return false
	}

	kind := rt.IntSxp
	elemT := pir.Int().NotObject()
	if allReal {
		kind = rt.RealSxp
		elemT = pir.Real().NotObject()
	}

	res := l.callBuiltin("make_vector", ci32(int64(kind)), ci64(int64(len(args))))
	l.protectTemp(res)

	for pos, v := range args {
		l.assignVector(res, ci64(int64(pos)), l.load(v), elemT)
	}

	l.setVal(i, res)
	return true
}

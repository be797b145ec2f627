package native

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/rt"
)

// lowerInstr emits the code for one instruction.  Each case keeps its
// emission local; shared machinery (loads, conversions, fast-path plumbing)
// lives on the builder helpers.
func (l *LowerFunction) lowerInstr(i *pir.Instr) {
	switch i.Tag {
	case pir.ExpandDots:
		in := i.Args[0]
		if !l.deadMove(in, i) {
			l.setVal(i, l.load(in))
		}

	case pir.DotsList:
		l.lowerDotsList(i)

	case pir.RecordDeoptReason:
		l.lowerRecordDeoptReason(i)

	case pir.PushContext:
		l.lowerPushContext(i)

	case pir.PopContext:
		l.lowerPopContext(i)

	case pir.CastType:
		in := i.Args[0]
		if pir.IsConst(i) != nil || l.deadMove(in, i) {
			break
		}
		l.setVal(i, l.loadAs(in, i.Typ, RepOfValue(i)))

	case pir.PirCopy:
		in := i.Args[0]
		if !l.deadMove(in, i) {
			l.setVal(i, l.loadRep(in, RepOfValue(i)))
		}

	case pir.Phi:
		// All the work happens at the end of the predecessors.

	case pir.LdArg:
		l.setVal(i, l.argument(i.ArgID))

	case pir.LdFunctionEnv:
		l.setVal(i, l.paramEnv())

	case pir.Invisible:
		l.setVisible(0)

	case pir.Visible:
		l.setVisible(1)

	case pir.Identical:
		a := l.depromise(l.load(i.Args[0]))
		b := l.depromise(l.load(i.Args[1]))
		l.setVal(i, l.bb.NewZExt(l.bb.NewICmp(enum.IPredEQ, a, b), types.I32))

	case pir.CallSafeBuiltin:
		l.lowerCallSafeBuiltin(i)

	case pir.CallBuiltin:
		l.lowerCallBuiltin(i)

	case pir.Call:
		l.lowerCall(i)

	case pir.NamedCall:
		l.lowerNamedCall(i)

	case pir.StaticCall:
		l.lowerStaticCall(i)

	case pir.Inc:
		arg := i.Args[0]
		if RepOfValue(arg) != RepInt32 {
			l.failf("Inc of a non-integer representation")
			break
		}
		res := l.loadRep(arg, RepInt32)
		add := l.bb.NewAdd(res, ci32(1))
		add.OverflowFlags = []enum.OverflowFlag{enum.OverflowFlagNSW, enum.OverflowFlagNUW}
		l.setVal(i, add)

	case pir.LdConst, pir.Nop:
		// Constants are rematerialized at each use.

	case pir.ForSeqSize:
		var res value.Value = l.callBuiltin("for_seq_size", l.loadSxp(i.Args[0]))
		res = l.bb.NewTrunc(res, types.I32)
		switch RepOfValue(i) {
		case RepFloat64:
			res = l.bb.NewSIToFP(res, types.Double)
		case RepBoxed:
			res = l.boxInt(res, true)
		}
		l.setVal(i, res)

	case pir.Branch:
		l.lowerBranch(i)

	case pir.ScheduledDeopt:
		l.lowerScheduledDeopt(i)

	case pir.MkEnv:
		l.lowerMkEnv(i)

	case pir.MaterializeEnv:
		l.setVal(i, l.callBuiltin("materialize_environment", l.loadSxp(i.Args[0])))

	case pir.IsEnvStub:
		l.lowerIsEnvStub(i)

	case pir.Add:
		l.lowerBinop(i, binopAdd)
	case pir.Sub:
		l.lowerBinop(i, binopSub)
	case pir.Mul:
		l.lowerBinop(i, binopMul)
	case pir.Div:
		l.lowerBinop(i, binopDiv)
	case pir.IDiv:
		l.lowerBinop(i, binopIDiv)
	case pir.Mod:
		l.lowerBinop(i, binopMod)
	case pir.Pow:
		l.lowerBinop(i, binopPow)

	case pir.Eq:
		l.lowerRelop(i, relopEq)
	case pir.Neq:
		l.lowerRelop(i, relopNeq)
	case pir.Lt:
		l.lowerRelop(i, relopLt)
	case pir.Lte:
		l.lowerRelop(i, relopLte)
	case pir.Gt:
		l.lowerRelop(i, relopGt)
	case pir.Gte:
		l.lowerRelop(i, relopGte)
	case pir.LAnd:
		l.lowerRelop(i, relopLAnd)
	case pir.LOr:
		l.lowerRelop(i, relopLOr)

	case pir.Minus:
		l.lowerUnop(i, unopMinus)
	case pir.Plus:
		l.lowerUnop(i, unopPlus)

	case pir.Not:
		l.lowerNot(i)

	case pir.Colon:
		l.lowerColon(i)

	case pir.Return:
		res := l.loadSxp(i.Args[0])
		if l.numLocals > 0 {
			l.decStack(l.numLocals)
		}
		l.bb.NewRet(res)

	case pir.MkFunCls, pir.MkCls:
		l.lowerMkCls(i)

	case pir.IsType:
		l.lowerIsType(i)

	case pir.Is:
		l.lowerIs(i)

	case pir.AsTest:
		l.lowerAsTest(i)

	case pir.AsLogical:
		l.lowerAsLogical(i)

	case pir.Force:
		arg := l.loadSxp(i.Args[0])
		if !i.Effects.Contains(pir.EffectForce) {
			res := l.depromise(arg)
			l.setVal(i, res)
			if l.opts.SlowAsserts {
				bound := l.bb.NewICmp(enum.IPredNE, l.constantSexp(l.rtc.Unbound), res)
				l.insnAssert(bound, "expected evaluated promise")
			}
		} else {
			l.setVal(i, l.force(arg))
		}

	case pir.LdFun:
		res := l.callBuiltin("ldfun", l.constantSymbol(i.VarName), l.loadSxp(i.Env()))
		l.setVal(i, res)
		l.setVisible(1)

	case pir.MkArg:
		l.setVal(i, l.callBuiltin("create_promise",
			l.paramCode(), ci32(int64(l.promMap[i.PromID])),
			l.loadSxp(i.Env()), l.loadSxp(i.Args[0])))

	case pir.UpdatePromise:
		val := l.loadSxp(i.Args[1])
		l.ensureShared(val)
		l.setCar(l.loadSxp(i.Args[0]), val, true)

	case pir.LdVarSuper:
		l.lowerLdVarSuper(i)

	case pir.LdDots, pir.LdVar:
		l.lowerLdVar(i)

	case pir.Extract1_1D:
		l.lowerExtract1D(i, true)
	case pir.Extract2_1D:
		l.lowerExtract1D(i, false)
	case pir.Extract1_2D:
		l.lowerExtract2D(i, true)
	case pir.Extract2_2D:
		l.lowerExtract2D(i, false)
	case pir.Extract1_3D:
		// No fast path for three-dimensional reads.
		l.setVal(i, l.callBuiltin("extract_13",
			l.loadSxp(i.Args[0]), l.loadSxp(i.Args[1]), l.loadSxp(i.Args[2]),
			l.loadSxp(i.Args[3]), l.envOrNil(i), ci32(int64(i.SrcIdx))))

	case pir.Subassign1_1D:
		l.lowerSubassign1D(i, true)
	case pir.Subassign2_1D:
		l.lowerSubassign1D(i, false)
	case pir.Subassign1_2D:
		// No fast path: dispatching writes stay in the runtime.
		l.setVal(i, l.callBuiltin("subassign_12",
			l.loadSxp(i.Args[0]), l.loadSxp(i.Args[1]), l.loadSxp(i.Args[2]),
			l.loadSxp(i.Args[3]), l.loadSxp(i.Env()), ci32(int64(i.SrcIdx))))
	case pir.Subassign2_2D:
		l.lowerSubassign2_2D(i)
	case pir.Subassign1_3D:
		l.setVal(i, l.callBuiltin("subassign_13",
			l.loadSxp(i.Args[0]), l.loadSxp(i.Args[1]), l.loadSxp(i.Args[2]),
			l.loadSxp(i.Args[3]), l.loadSxp(i.Args[4]), l.loadSxp(i.Env()),
			ci32(int64(i.SrcIdx))))

	case pir.StVar:
		l.lowerStVar(i)

	case pir.StVarSuper:
		l.lowerStVarSuper(i)

	case pir.Missing:
		l.setVal(i, l.callBuiltin("is_missing",
			l.constantSymbol(i.VarName), l.loadSxp(i.Env())))

	case pir.ChkMissing:
		arg := i.Args[0]
		if RepOfValue(arg) == RepBoxed {
			l.checkMissing(l.loadSxp(arg))
		}
		l.setVal(i, l.loadAs(arg, arg.Type().NotMissing(), RepOfValue(i)))

	case pir.ChkClosure:
		arg := l.loadSxp(i.Args[0])
		l.callBuiltin("chkfun", l.constantSymbol(i.ClsName), arg)
		l.setVal(i, arg)

	case pir.ColonInputEffects:
		l.setVal(i, l.callBuiltin("colon_input_effects",
			l.loadSxp(i.Args[0]), l.loadSxp(i.Args[1]), ci32(int64(i.SrcIdx))))

	case pir.ColonCastLhs:
		l.setVal(i, l.callBuiltin("colon_cast_lhs", l.loadSxp(i.Args[0])))

	case pir.ColonCastRhs:
		l.setVal(i, l.callBuiltin("colon_cast_rhs",
			l.loadSxp(i.Args[0]), l.loadSxp(i.Args[1])))

	case pir.Names:
		l.setVal(i, l.callBuiltin("names", l.loadSxp(i.Args[0])))

	case pir.SetNames:
		l.setVal(i, l.callBuiltin("set_names",
			l.loadSxp(i.Args[0]), l.loadSxp(i.Args[1])))

	case pir.XLength:
		l.setVal(i, l.callBuiltin("xlength", l.loadSxp(i.Args[0])))

	case pir.Int3, pir.PrintInvocation:
		l.failf("unsupported opcode %s", i.Tag)

	default:
		l.failf("unhandled opcode %s", i.Tag)
	}
}

// envOrNil loads the instruction's environment, or nil when it carries none.
func (l *LowerFunction) envOrNil(i *pir.Instr) value.Value {
	if i.HasEnv() {
		return l.loadSxp(i.Env())
	}

	return l.constantSexp(l.rtc.Nil)
}

// lowerBranch emits the conditional branch of a block, hinting against deopt
// exits.
func (l *LowerFunction) lowerBranch(i *pir.Instr) {
	cond := l.loadRep(i.Args[0], RepInt32)
	nz := l.bb.NewICmp(enum.IPredNE, cond, ci32(0))

	t := l.currentBB.TrueBranch()
	f := l.currentBB.FalseBranch()

	hint := hintNone
	if isDeoptTarget(t) {
		hint = hintAlwaysFalse
	} else if isDeoptTarget(f) {
		hint = hintAlwaysTrue
	}

	l.condBr(nz, l.getBlock(t), l.getBlock(f), hint)
}

// isDeoptTarget reports whether the block deopts, directly or through a
// trivial jump.
func isDeoptTarget(bb *pir.BB) bool {
	if bb.IsDeopt() {
		return true
	}

	return bb.IsJmp() && bb.Next().IsDeopt()
}

// lowerDotsList collects the dots arguments into a dotted pair list.
func (l *LowerFunction) lowerDotsList(i *pir.Instr) {
	arglist := l.constantSexp(l.rtc.Nil)

	for j := i.NArgs() - 1; j >= 0; j-- {
		val := l.loadSxp(i.Args[j])
		l.incrementNamed(val, rt.NamedMax)
		arglist = l.callBuiltin("cons_nr", val, arglist)

		if j < len(i.Names) && i.Names[j] != nil {
			l.setTag(arglist, l.constantSymbol(i.Names[j]), false)
		}
	}

	l.setSexptype(arglist, rt.DotSxp)
	l.setVal(i, arglist)
}

// lowerIsEnvStub tests whether a stub environment is still unmaterialized.
func (l *LowerFunction) lowerIsEnvStub(i *pir.Instr) {
	arg := l.loadSxp(i.Args[0])
	env := pir.AsInstr(i.Env())
	if env == nil || env.Tag != pir.MkEnv {
		l.failf("IsEnvStub without a locally created environment")
		return
	}

	isStub := l.newBlock("")
	isNotMaterialized := l.newBlock("")
	isNotStub := l.newBlock("")
	done := l.newBlock("")

	res := l.phiBuilder()

	l.condBr(l.isExternalsxp(arg, rt.StubEnvMagic), isStub, isNotStub, hintAlwaysTrue)

	l.setBlock(isStub)
	materialized := l.envStubGet(arg, -2, env.NLocals())
	l.condBr(l.bb.NewICmp(enum.IPredEQ, materialized, constPtr(0, l.t.Sexp)),
		isNotMaterialized, isNotStub, hintAlwaysTrue)

	l.setBlock(isNotMaterialized)
	res.addInput(ci32(1))
	l.br(done)

	l.setBlock(isNotStub)
	res.addInput(ci32(0))
	l.br(done)

	l.setBlock(done)
	l.setVal(i, res.value())
}

// lowerMkCls creates a closure from its parts.
func (l *LowerFunction) lowerMkCls(i *pir.Instr) {
	var body, formals, srcRef, env value.Value

	if i.Tag == pir.MkFunCls {
		// Statically known parts; only the environment is dynamic.
		body = l.constantSexp(i.ClsBody)
		formals = l.constantSexp(i.ClsFormals)
		srcRef = l.constantSexp(i.ClsSrcRef)
		env = l.loadSxp(i.Env())
	} else {
		formals = l.loadSxp(i.Args[0])
		body = l.loadSxp(i.Args[1])
		srcRef = l.loadSxp(i.Args[2])
		env = l.loadSxp(i.Args[3])
	}

	l.setVal(i, l.callBuiltin("create_closure", body, formals, env, srcRef))
}

// lowerIsType emits a representation-level type test.
func (l *LowerFunction) lowerIsType(i *pir.Instr) {
	if RepOfValue(i) != RepInt32 {
		l.failf("IsType with a non-integer result representation")
		return
	}

	test := i.TypeTest
	arg := i.Args[0]

	if RepOfValue(arg) != RepBoxed {
		// The value is already unboxed, so the representation proves the
		// type.
		l.setVal(i, ci32(1))
		return
	}

	a := l.loadSxp(arg)
	if arg.Type().MaybePromiseWrapped() && test.MaybePromiseWrapped() {
		a = l.depromise(a)
	}

	simple := func(t rt.SexpType) value.Value {
		return l.bb.NewZExt(l.isSimpleScalar(a, t), types.I32)
	}

	switch {
	case test.NotPromiseWrapped().Equal(pir.SimpleScalarInt()):
		l.setVal(i, simple(rt.IntSxp))
		return
	case test.NotPromiseWrapped().Equal(pir.SimpleScalarLgl()):
		l.setVal(i, simple(rt.LglSxp))
		return
	case test.NotPromiseWrapped().Equal(pir.SimpleScalarReal()):
		l.setVal(i, simple(rt.RealSxp))
		return
	}

	var res value.Value
	switch {
	case test.NoAttribs().IsA(pir.Lgl().OrPromiseWrapped()):
		res = l.bb.NewICmp(enum.IPredEQ, l.sexptype(a), ci32(int64(rt.LglSxp)))
	case test.NoAttribs().IsA(pir.Int().OrPromiseWrapped()):
		res = l.bb.NewICmp(enum.IPredEQ, l.sexptype(a), ci32(int64(rt.IntSxp)))
	case test.NoAttribs().IsA(pir.Real().OrPromiseWrapped()):
		res = l.bb.NewICmp(enum.IPredEQ, l.sexptype(a), ci32(int64(rt.RealSxp)))
	default:
		res = l.bb.NewICmp(enum.IPredNE, a, l.constantSexp(l.rtc.Unbound))
	}

	if test.IsScalar() && !arg.Type().IsScalar() {
		res = l.bb.NewAnd(res, l.isScalarVec(a))
	}
	if arg.Type().MaybeHasAttrs() && !test.MaybeHasAttrs() {
		res = l.bb.NewAnd(res, l.fastVeceltOk(a))
	}
	if arg.Type().MaybeObj() && !test.MaybeObj() {
		res = l.bb.NewAnd(res, l.bb.NewXor(l.isObj(a), constTrue()))
	}

	l.setVal(i, l.bb.NewZExt(res, types.I32))
}

// lowerIs emits a sexptype test.
func (l *LowerFunction) lowerIs(i *pir.Instr) {
	arg := i.Args[0]

	var res value.Value
	if RepOfValue(arg) == RepBoxed {
		typ := l.sexptype(l.loadSxp(arg))

		switch i.SexpTag {
		case rt.NilSxp, rt.LglSxp, rt.RealSxp, rt.IntSxp:
			res = l.bb.NewICmp(enum.IPredEQ, typ, ci32(int64(i.SexpTag)))

		case rt.VecSxp:
			isVec := l.bb.NewICmp(enum.IPredEQ, typ, ci32(int64(rt.VecSxp)))
			isList := l.bb.NewICmp(enum.IPredEQ, typ, ci32(int64(rt.ListSxp)))
			res = l.bb.NewOr(isVec, isList)

		case rt.ListSxp:
			isList := l.bb.NewICmp(enum.IPredEQ, typ, ci32(int64(rt.ListSxp)))
			isNil := l.bb.NewICmp(enum.IPredEQ, typ, ci32(int64(rt.NilSxp)))
			res = l.bb.NewOr(isList, isNil)

		default:
			l.failf("Is test for unsupported sexptype %v", i.SexpTag)
			return
		}
	} else {
		matches := (i.SexpTag == rt.IntSxp && i.Args[0].Type().IsA(pir.Int())) ||
			(i.SexpTag == rt.LglSxp && i.Args[0].Type().IsA(pir.Lgl())) ||
			(i.SexpTag == rt.RealSxp && i.Args[0].Type().IsA(pir.Real()))
		if matches {
			res = constTrue()
		} else {
			res = constFalse()
		}
	}

	l.setVal(i, l.bb.NewZExt(res, types.I32))
}

// lowerAsTest narrows a value to a native truth value, erroring on NA.
func (l *LowerFunction) lowerAsTest(i *pir.Instr) {
	arg := i.Args[0]

	if RepOfValue(arg) == RepBoxed {
		l.setVal(i, l.callBuiltin("as_test", l.loadSxp(arg)))
		return
	}

	done := l.newBlock("")
	isNa := l.newBlock("asTestIsNa")

	if RepOfValue(arg) == RepFloat64 {
		narg := l.loadRep(arg, RepFloat64)
		isNotNa := l.bb.NewFCmp(enum.FPredUEQ, narg, narg)
		l.setVal(i, l.bb.NewFPToSI(narg, types.I32))
		l.condBr(isNotNa, done, isNa, hintMostlyTrue)
	} else {
		narg := l.loadRep(arg, RepInt32)
		isNotNa := l.bb.NewICmp(enum.IPredNE, narg, ci32(int64(rt.NAInteger)))
		l.setVal(i, narg)
		l.condBr(isNotNa, done, isNa, hintMostlyTrue)
	}

	l.setBlock(isNa)
	l.callBuiltin("error", l.globalString("missing value where TRUE/FALSE needed"))
	l.bb.NewRet(constPtr(0, l.t.Sexp))

	l.setBlock(done)
}

// lowerAsLogical coerces a numeric value to a logical, NA-exactly.
func (l *LowerFunction) lowerAsLogical(i *pir.Instr) {
	arg := i.Args[0]

	var res value.Value
	switch RepOfValue(arg) {
	case RepBoxed:
		res = l.callBuiltin("as_logical", l.loadSxp(arg))

	case RepFloat64:
		phi := l.phiBuilder()
		in := l.loadRep(arg, RepInt32)
		nin := l.loadRep(arg, RepFloat64)

		done := l.newBlock("")
		isNaBr := l.newBlock("isNa")
		notNaBr := l.newBlock("")
		l.nacheck(nin, isNaBr, notNaBr)

		// nacheck leaves us in notNaBr.
		phi.addInput(in)
		l.br(done)

		l.setBlock(isNaBr)
		phi.addInput(ci32(int64(rt.NAInteger)))
		l.br(done)

		l.setBlock(done)
		res = phi.value()

	default:
		res = l.loadRep(arg, RepInt32)
	}

	l.setVal(i, res)
}

func constTrue() value.Value  { return constant.True }
func constFalse() value.Value { return constant.False }

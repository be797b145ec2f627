package native

import (
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/rt"
)

// mkEnvNames interns the local names of a MkEnv into the constant pool,
// tagging missing ones with the low address bit, and returns the global
// index array.
func (l *LowerFunction) mkEnvNames(mk *pir.Instr) value.Value {
	idxs := make([]uint32, mk.NLocals())
	for j, name := range mk.Names {
		// Missing locals are flagged by pooling the symbol address with
		// its low bit set instead of the bare symbol; the runtime unwraps
		// it.
		addr := name.Addr
		if mk.MissingMask[j] {
			addr = rt.SEXP(uintptr(addr) | 1)
		}
		idxs[j] = l.pool.Insert(addr)
	}

	return l.bb.NewBitCast(l.globalIntArray(idxs), l.t.I32Ptr)
}

// lowerMkEnv builds an environment.  The stub variant fills a flat payload;
// the full variant builds the binding-cell list right to left.
func (l *LowerFunction) lowerMkEnv(i *pir.Instr) {
	parent := l.loadSxp(i.Env())

	if i.Stub && l.opts.StubEnvironments {
		names := l.mkEnvNames(i)
		env := l.callBuiltin("create_stub_environment",
			parent, ci32(int64(i.NLocals())), names, ci32(int64(i.Context)))

		for pos := 0; pos < i.NLocals(); pos++ {
			vn := l.loadSxp(i.LocalVal(pos))
			l.envStubSet(env, pos, vn, i.NLocals(), false)
			l.incrementNamed(vn, rt.NamedMax)
		}

		l.setVal(i, env)
		return
	}

	arglist := l.constantSexp(l.rtc.Nil)
	for pos := i.NLocals() - 1; pos >= 0; pos-- {
		v := l.loadSxp(i.LocalVal(pos))
		name := l.constantSymbol(i.Names[pos])

		if i.MissingMask[pos] {
			arglist = l.callBuiltin("create_missing_binding_cell", v, name, arglist)
		} else {
			arglist = l.callBuiltin("create_binding_cell", v, name, arglist)
		}
	}

	l.setVal(i, l.callBuiltin("create_environment", parent, arglist, ci32(int64(i.Context))))

	// A rebuilt environment invalidates any cache entries it owns.
	if m, ok := l.bindingsCache[pir.Value(i)]; ok {
		for _, idx := range m {
			l.bb.NewStore(constPtr(0, l.t.Sexp), l.cacheSlotPtr(idx))
		}
	}
}

// stubEnvOf returns the stub MkEnv an instruction reads through, or nil.
func (l *LowerFunction) stubEnvOf(v pir.Value) *pir.Instr {
	env := pir.AsInstr(v)
	if env != nil && env.Tag == pir.MkEnv && env.Stub && l.opts.StubEnvironments {
		return env
	}

	return nil
}

// lowerLdVar loads a variable.  Three regimes: direct slot reads from stub
// environments, cached binding-cell reads, and the plain runtime call.
// LdDots skips the missing/unbound checks: a dots object is allowed to be
// unbound.
func (l *LowerFunction) lowerLdVar(i *pir.Instr) {
	isLd := i.Tag == pir.LdVar

	varName := i.VarName
	if !isLd {
		varName = rt.DotsSymbol
	}

	if env := l.stubEnvOf(i.Env()); env != nil {
		e := l.loadSxp(env)
		idx := env.LocalIndex(varName)
		if idx < 0 {
			l.failf("stub load of %s which is not a stub local", varName.Name)
			return
		}

		var res value.Value = l.envStubGet(e, idx, env.NLocals())
		if env.LocalVal(idx) == pir.UnboundValue {
			// Not explicitly bound in the stub: an unbound slot falls
			// through to a lookup in the stub's lexical parent.
			unbound := l.bb.NewICmp(enum.IPredEQ, res, l.constantSexp(l.rtc.Unbound))
			outer := l.envStubGet(e, -1, env.NLocals())
			fallthru := l.callBuiltin("ldvar", l.constantSymbol(varName), outer)
			res = l.bb.NewSelect(unbound, fallthru, res)
		}

		l.setVal(i, res)
		return
	}

	var res value.Value
	if m, ok := l.bindingsCache[i.Env()]; ok {
		offset, cached := m[varName]
		if !cached {
			l.failf("no binding cache slot for %s", varName.Name)
			return
		}

		phi := l.phiBuilder()
		cachePtr := l.cacheSlotPtr(offset)
		cache := l.bb.NewLoad(l.t.Sexp, cachePtr)

		hit1 := l.newBlock("")
		hit2 := l.newBlock("")
		miss := l.newBlock("")
		done := l.newBlock("")

		// Sentinel or marker values are below 2.
		sentinel := l.bb.NewICmp(enum.IPredULE,
			l.bb.NewPtrToInt(cache, types.I64), ci64(1))
		l.condBr(sentinel, miss, hit1, hintMostlyFalse)

		l.setBlock(hit1)
		val := l.car(cache)
		l.condBr(l.bb.NewICmp(enum.IPredEQ, val, l.constantSexp(l.rtc.Unbound)),
			miss, hit2, hintMostlyFalse)

		l.setBlock(hit2)
		l.ensureNamed(val)
		phi.addInput(val)
		l.br(done)

		l.setBlock(miss)
		res0 := l.callBuiltin("ldvar_cache_miss",
			l.constantSymbol(varName), l.loadSxp(i.Env()), cachePtr)
		if l.needsLdVarForUpdate[i] {
			l.ensureShared(res0)
		}
		phi.addInput(res0)
		l.br(done)

		l.setBlock(done)
		res = phi.value()
	} else {
		setter := "ldvar"
		if l.needsLdVarForUpdate[i] {
			setter = "ldvar_for_update"
		}
		res = l.callBuiltin(setter, l.constantSymbol(varName), l.loadSxp(i.Env()))
	}

	if isLd {
		l.checkMissing(res)
		l.checkUnbound(res)
	}

	l.setVal(i, res)
}

// lowerLdVarSuper loads a variable starting from the lexical parent of the
// current environment.
func (l *LowerFunction) lowerLdVarSuper(i *pir.Instr) {
	env := l.cdr(l.loadSxp(i.Env()))

	res := l.callBuiltin("ldvar", l.constantSymbol(i.VarName), env)

	l.checkMissing(res)
	l.checkUnbound(res)
	l.setVal(i, res)
}

// lowerStVar stores a variable: stub slot writes with in-place scalar
// reuse, cached binding-cell writes, or the plain runtime call.
func (l *LowerFunction) lowerStVar(i *pir.Instr) {
	val := i.Args[0]

	if env := l.stubEnvOf(i.Env()); env != nil {
		l.lowerStVarStub(i, env, val)
		return
	}

	intCase := RepOfValue(val) == RepInt32 && val.Type().IsA(pir.Int())

	setter := "stvar"
	if i.IsStArg {
		setter = "starg"
	} else if intCase {
		setter = "stvar_int"
	}

	callSetter := func() {
		var v value.Value
		if setter == "stvar_int" {
			v = l.load(val)
		} else {
			v = l.loadSxp(val)
		}
		l.callBuiltin(setter, l.constantSymbol(i.VarName), v, l.loadSxp(i.Env()))
	}

	m, ok := l.bindingsCache[i.Env()]
	if !ok {
		callSetter()
		return
	}

	offset, cached := m[i.VarName]
	if !cached {
		l.failf("no binding cache slot for %s", i.VarName.Name)
		return
	}

	cachePtr := l.cacheSlotPtr(offset)
	cache := l.bb.NewLoad(l.t.Sexp, cachePtr)

	hit1 := l.newBlock("")
	hit2 := l.newBlock("")
	hit3 := l.newBlock("")
	identical := l.newBlock("")
	miss := l.newBlock("")
	done := l.newBlock("")

	sentinel := l.bb.NewICmp(enum.IPredULE,
		l.bb.NewPtrToInt(cache, types.I64), ci64(1))
	l.condBr(sentinel, miss, hit1, hintMostlyFalse)

	l.setBlock(hit1)
	cur := l.car(cache)
	l.condBr(l.bb.NewICmp(enum.IPredEQ, cur, l.constantSexp(l.rtc.Unbound)),
		miss, hit2, hintMostlyFalse)

	l.setBlock(hit2)
	var newVal value.Value
	if intCase {
		// A private scalar integer binding can be updated in place,
		// skipping the allocation entirely.
		hitInt := l.newBlock("")
		hitInt2 := l.newBlock("")
		fallbackInt := l.newBlock("")

		isScalarInt := l.bb.NewAnd(
			l.bb.NewICmp(enum.IPredEQ, l.sexptype(cur), ci32(int64(rt.IntSxp))),
			l.isScalarVec(cur))
		notShared := l.bb.NewXor(l.shared(cur), constTrue())
		l.condBr(l.bb.NewAnd(isScalarInt, notShared), hitInt, fallbackInt, hintNone)

		l.setBlock(hitInt)
		newValNative := l.load(val)
		same := l.bb.NewICmp(enum.IPredEQ, newValNative,
			l.accessVector(cur, ci64(0), pir.Int()))
		l.condBr(same, identical, hitInt2, hintNone)

		l.setBlock(hitInt2)
		l.assignVector(cur, ci64(0), newValNative, pir.Int())
		l.br(done)

		l.setBlock(fallbackInt)
		newVal = l.loadSxp(val)
		l.br(hit3)
	} else {
		newVal = l.loadSxp(val)
		l.condBr(l.bb.NewICmp(enum.IPredEQ, cur, newVal), identical, hit3, hintMostlyFalse)
	}

	l.setBlock(hit3)
	l.incrementNamed(newVal, rt.NamedMax)
	l.setCar(cache, newVal, true)
	l.br(done)

	l.setBlock(identical)
	// Even an unchanged binding must end up named.
	l.ensureNamed(cur)
	l.br(done)

	l.setBlock(miss)
	callSetter()
	l.br(done)

	l.setBlock(done)
}

// lowerStVarStub stores through a stub environment slot.
func (l *LowerFunction) lowerStVarStub(i *pir.Instr, env *pir.Instr, val pir.Value) {
	idx := env.LocalIndex(i.VarName)
	if idx < 0 {
		l.failf("stub store of %s which is not a stub local", i.VarName.Name)
		return
	}

	e := l.loadSxp(env)
	done := l.newBlock("")
	cur := l.envStubGet(e, idx, env.NLocals())

	if RepOfValue(val) != RepBoxed {
		// When the slot already holds a private scalar of the right type,
		// the payload can be overwritten without allocating.
		fastcase := l.newBlock("")
		fallback := l.newBlock("")

		expected := rt.IntSxp
		if RepOfValue(val) == RepFloat64 {
			expected = rt.RealSxp
		}

		reuse := l.bb.NewAnd(
			l.bb.NewXor(l.isObj(cur), constTrue()),
			l.bb.NewAnd(
				l.bb.NewXor(l.shared(cur), constTrue()),
				l.bb.NewAnd(
					l.bb.NewICmp(enum.IPredEQ, l.sexptype(cur), ci32(int64(expected))),
					l.isScalarVec(cur))))
		l.condBr(reuse, fastcase, fallback, hintMostlyTrue)

		l.setBlock(fastcase)
		l.assignVector(cur, ci64(0), l.load(val), val.Type())
		l.br(done)

		l.setBlock(fallback)
	}

	v := l.loadSxp(val)
	if RepOfValue(val) == RepBoxed {
		same := l.newBlock("")
		different := l.newBlock("")
		l.condBr(l.bb.NewICmp(enum.IPredEQ, v, cur), same, different, hintNone)

		l.setBlock(same)
		l.ensureNamed(v)
		if !i.IsStArg {
			l.envStubSetNotMissing(e, idx, env.NLocals())
		}
		l.br(done)

		l.setBlock(different)
		l.incrementNamed(v, rt.NamedMax)
		l.envStubSet(e, idx, v, env.NLocals(), !i.IsStArg)
		l.br(done)
	} else {
		l.ensureNamed(v)
		l.envStubSet(e, idx, v, env.NLocals(), !i.IsStArg)
		l.br(done)
	}

	l.setBlock(done)
}

// lowerStVarSuper stores into an enclosing environment.  Super-stores into
// or through a stub cannot be expressed against the flat payload; those
// compilations are abandoned.
func (l *LowerFunction) lowerStVarSuper(i *pir.Instr) {
	if env := pir.AsInstr(i.Env()); env != nil && env.Tag == pir.MkEnv {
		parent := pir.AsInstr(env.Env())
		if env.Stub || (parent != nil && parent.Tag == pir.MkEnv && parent.Stub) {
			l.failf("super-store through a stub environment")
			return
		}
	}

	// When the parent was statically known, the optimizer already turned
	// super-stores into plain stores; this is the generic path.
	l.callBuiltin("defvar", l.constantSymbol(i.VarName),
		l.loadSxp(i.Args[0]), l.loadSxp(i.Env()))
}

package native

import (
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/rt"
)

// withCallFrame evaluates the arguments, reserves a frame of boxed slots on
// the node stack, performs the call and (unless the callee consumes the
// frame) pops it.
func (l *LowerFunction) withCallFrame(args []pir.Value, theCall func() value.Value, pop bool) value.Value {
	nargs := len(args)
	l.incStack(nargs, false)

	boxed := make([]value.Value, nargs)
	for j, a := range args {
		boxed[j] = l.loadRep(a, RepBoxed)
	}
	l.stackStore(boxed)

	res := theCall()
	if pop {
		l.decStack(nargs)
	}

	return res
}

// compileDotcall handles calls with an ExpandDots argument: those dispatch
// to the dots-call runtime with a pooled names array and leave the frame for
// the callee to consume.  Returns false when no dots argument is present.
func (l *LowerFunction) compileDotcall(i *pir.Instr, callee func() value.Value,
	name func(pos int) *rt.Symbol) bool {

	var args []pir.Value
	var newNames []uint32
	seenDots := false

	for pos, v := range i.CallArgs() {
		if in := pir.AsInstr(v); in != nil && in.Tag == pir.ExpandDots {
			args = append(args, v)
			newNames = append(newNames, l.pool.Insert(rt.DotsSymbol.Addr))
			seenDots = true
		} else {
			var addr rt.SEXP
			if n := name(pos); n != nil {
				addr = n.Addr
			} else {
				addr = l.rtc.Nil
			}
			newNames = append(newNames, l.pool.Insert(addr))
			args = append(args, v)
		}
	}

	if !seenDots {
		return false
	}

	namesStore := l.globalIntArray(newNames)

	res := l.withCallFrame(args, func() value.Value {
		return l.callBuiltin("dots_call",
			l.paramCode(), ci32(int64(i.SrcIdx)), callee(),
			l.envOrBase(i), ci64(int64(len(args))),
			l.bb.NewBitCast(namesStore, l.t.I32Ptr),
			ci64(int64(i.Assumptions)))
	}, false) // the dots call consumes the frame

	l.setVal(i, res)
	return true
}

// envOrBase loads the instruction's environment, defaulting to the base
// environment.
func (l *LowerFunction) envOrBase(i *pir.Instr) value.Value {
	if i.HasEnv() {
		return l.loadSxp(i.Env())
	}

	return l.constantSexp(l.rtc.BaseEnv)
}

// lowerCall emits a generic closure call.
func (l *LowerFunction) lowerCall(i *pir.Instr) {
	if l.compileDotcall(i,
		func() value.Value { return l.loadSxp(i.Callee()) },
		func(int) *rt.Symbol { return nil }) {
		return
	}

	args := i.CallArgs()
	res := l.withCallFrame(args, func() value.Value {
		return l.callBuiltin("call",
			l.paramCode(), ci32(int64(i.SrcIdx)), l.loadSxp(i.Callee()),
			l.loadSxp(i.Env()), ci64(int64(len(args))), ci64(int64(i.Assumptions)))
	}, true)

	l.setVal(i, res)
}

// lowerNamedCall emits a closure call with argument names.
func (l *LowerFunction) lowerNamedCall(i *pir.Instr) {
	if l.compileDotcall(i,
		func() value.Value { return l.loadSxp(i.Callee()) },
		func(pos int) *rt.Symbol {
			if pos < len(i.Names) {
				return i.Names[pos]
			}
			return nil
		}) {
		return
	}

	names := make([]uint32, len(i.Names))
	for j, n := range i.Names {
		names[j] = l.pool.Insert(n.Addr)
	}
	namesStore := l.globalIntArray(names)

	args := i.CallArgs()
	res := l.withCallFrame(args, func() value.Value {
		return l.callBuiltin("named_call",
			l.paramCode(), ci32(int64(i.SrcIdx)), l.loadSxp(i.Callee()),
			l.loadSxp(i.Env()), ci64(int64(len(args))),
			l.bb.NewBitCast(namesStore, l.t.I32Ptr),
			ci64(int64(i.Assumptions)))
	}, true)

	l.setVal(i, res)
}

// lowerStaticCall emits a call whose target version is statically known.
// When the best dispatch has compiled native code the call can skip the
// dispatch machinery, either through the trampoline or, for targets that
// cannot reflect over their caller, by direct invocation.
func (l *LowerFunction) lowerStaticCall(i *pir.Instr) {
	target := i.Target
	args := i.CallArgs()

	genericCall := func(closure value.Value) {
		res := l.withCallFrame(args, func() value.Value {
			return l.callBuiltin("call",
				l.paramCode(), ci32(int64(i.SrcIdx)), closure,
				l.loadSxp(i.Env()), ci64(int64(len(args))), ci64(int64(i.Assumptions)))
		}, true)
		l.setVal(i, res)
	}

	if target == nil || !target.HasOriginClosure {
		genericCall(l.constantSexp(i.RuntimeClosure))
		return
	}

	if target == i.OptimisticTarget && target.NativeCodeAddr != 0 {
		callee := l.constantSexp(target.RirClosure)

		if target.NoReflection {
			// The target cannot observe our frame reflectively, so it is
			// called directly with a materialized argument frame.
			trg := constPtr(target.NativeCodeAddr, l.t.NativeFnPtr)
			code := constPtr(target.BodyAddr, l.t.I8Ptr)

			arglist := l.nodestackPtr()
			res := l.withCallFrame(args, func() value.Value {
				return l.bb.NewCall(trg, code, arglist, l.loadSxp(i.Env()), callee)
			}, true)
			l.setVal(i, res)
			return
		}

		res := l.withCallFrame(args, func() value.Value {
			return l.callBuiltin("native_call_trampoline",
				callee, constPtr(target.NativeCodeAddr, l.t.I8Ptr),
				ci32(int64(i.SrcIdx)), l.loadSxp(i.Env()),
				ci64(int64(len(args))), ci64(int64(i.Assumptions)))
		}, true)
		l.setVal(i, res)
		return
	}

	genericCall(l.constantSexp(target.RirClosure))
}

// lowerCallBuiltin emits a call to a language builtin.
func (l *LowerFunction) lowerCallBuiltin(i *pir.Instr) {
	if l.compileDotcall(i,
		func() value.Value { return l.constantSexp(i.BuiltinObj) },
		func(int) *rt.Symbol { return nil }) {
		return
	}

	l.setVal(i, l.callRBuiltin(i, l.envOrBase(i)))
}

// callRBuiltin invokes a language builtin: through the flat stack-frame
// protocol when the builtin supports it, otherwise by building the
// cons-list calling convention and jumping straight to its C entry.
func (l *LowerFunction) callRBuiltin(i *pir.Instr, env value.Value) value.Value {
	args := i.CallArgs()

	if rt.SupportsFastBuiltinCall(i.Builtin) {
		return l.withCallFrame(args, func() value.Value {
			return l.callBuiltin("call_builtin",
				l.paramCode(), ci32(int64(i.SrcIdx)),
				l.constantSexp(i.BuiltinObj), env, ci64(int64(len(args))))
		}, true)
	}

	f := constPtr(i.BuiltinAddr, l.t.BuiltinFnPtr)

	arglist := value.Value(l.constantSexp(l.rtc.Nil))
	for j := len(args) - 1; j >= 0; j-- {
		a := l.loadSxp(args[j])
		if l.opts.SlowAsserts {
			notProm := l.bb.NewICmp(enum.IPredNE, l.sexptype(a), ci32(int64(rt.PromSxp)))
			l.insnAssert(notProm, "passing a promise to a builtin")
		}
		arglist = l.callBuiltin("cons_nr", a, arglist)
	}
	if len(args) > 0 {
		l.protectTemp(arglist)
	}

	ast := l.poolLoad(l.pool.Insert(i.BuiltinObj))

	flag := rt.BuiltinFlag(i.Builtin)
	if flag < 2 {
		l.setVisible(int64(1 - flag))
	}

	res := l.bb.NewCall(f, ast, l.constantSexp(i.BuiltinObj), arglist, env)

	if flag < 2 {
		l.setVisible(int64(1 - flag))
	}

	return res
}

package native

import (
	"sort"

	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/report"
)

// lowerPushContext arms a native call context: it snapshots every live
// variable, performs the setjmp, and wires the three continuations: plain
// fallthrough, restart (restore the snapshot, clear the binding caches,
// continue), and non-local return (deposit the value, skip to the matching
// PopContext target).
func (l *LowerFunction) lowerPushContext(i *pir.Instr) {
	data, ok := l.contexts[i]
	if !ok {
		report.ReportICE("native: PushContext without a matching PopContext")
	}

	ast := l.loadSxp(i.Args[0])
	op := l.loadSxp(i.Args[1])
	sysparent := l.loadSxp(i.Env())

	l.inPushContext++

	l.callBuiltin("begin_closure_context", ast, data.rcntxt, sysparent, op)

	// Snapshot all initialized live variables: boxed ones into their
	// reserved preservation slots, scalars into fresh allocas.
	type saved struct {
		instr *pir.Instr
		snap  *variable
	}
	var savedLocals []saved

	var liveVars []*pir.Instr
	for j, v := range l.variables {
		if v.initialized && l.live.LiveAfter(i, j) {
			liveVars = append(liveVars, j)
		}
	}
	sort.Slice(liveVars, func(a, b int) bool { return liveVars[a].ID < liveVars[b].ID })

	for _, j := range liveVars {
		if RepOfValue(j) == RepBoxed {
			pos, ok := data.savedBoxedPos[j]
			if !ok {
				report.ReportICE("native: no preservation slot for %s", j)
			}
			savedLocals = append(savedLocals, saved{j, l.boxedSnapshot(pos)})
		} else {
			savedLocals = append(savedLocals, saved{j, l.scalarSnapshot(RepOfValue(j).llvm(l.t))})
		}
	}

	for _, s := range savedLocals {
		s.snap.set(l, l.getVariable(s.instr), false)
	}

	// The setjmp itself.
	didLongjmp := l.newBlock("")
	cont := l.newBlock("")

	setjmpFn := l.intrinsic("__sigsetjmp", types.I32, types.I8Ptr, types.I32)
	buf := l.bb.NewGetElementPtr(l.t.RCntxt, data.rcntxt, ci32(0), ci32(2))
	rawBuf := l.bb.NewBitCast(buf, types.I8Ptr)
	longjmp := l.bb.NewCall(setjmpFn, rawBuf, ci32(0))

	l.condBr(l.bb.NewICmp(enum.IPredEQ, longjmp, ci32(0)), cont, didLongjmp, hintNone)

	// Incoming longjmps.
	l.setBlock(didLongjmp)
	returned := l.bb.NewLoad(l.t.Sexp, constPtr(l.rtc.ReturnedValueAddr, l.t.SexpPtr))
	isRestart := l.bb.NewICmp(enum.IPredEQ, returned, l.constantSexp(l.rtc.RestartToken))

	longjmpRestart := l.newBlock("")
	longjmpRet := l.newBlock("")
	l.condBr(isRestart, longjmpRestart, longjmpRet, hintNone)

	// Restart: restore every snapshot, drop all binding caches, re-enter.
	l.setBlock(longjmpRestart)
	for _, s := range savedLocals {
		l.updateVariable(s.instr, s.snap.get(l))
	}
	l.invalidateAllBindingCaches()
	l.br(cont)

	// Return: deposit the value (unboxing when the context's result is
	// scalar) and skip to the PopContext target.
	l.setBlock(longjmpRet)
	var deposited value.Value = returned
	switch data.result.ElemType {
	case types.I32:
		deposited = l.unboxIntLgl(returned)
	case types.Double:
		deposited = l.unboxRealIntLgl(returned)
	}
	l.bb.NewStore(deposited, data.result)
	l.br(data.popContextTarget)

	l.setBlock(cont)
}

// lowerPopContext closes a context: the computed result funnels through the
// context's result slot so it merges with any non-local return, then the
// context is torn down.
func (l *LowerFunction) lowerPopContext(i *pir.Instr) {
	data, ok := l.contexts[i.Push]
	if !ok {
		report.ReportICE("native: PopContext without its PushContext")
	}

	res := i.Args[0]
	arg := l.load(res)
	l.bb.NewStore(arg, data.result)
	l.br(data.popContextTarget)

	l.setBlock(data.popContextTarget)
	ret := l.bb.NewLoad(data.result.ElemType, data.result)

	boxedRet := value.Value(ret)
	switch data.result.ElemType {
	case types.I32:
		boxedRet = l.boxInt(ret, false)
	case types.Double:
		boxedRet = l.boxReal(ret, false)
	}

	l.callBuiltin("end_closure_context", data.rcntxt, boxedRet)
	l.inPushContext--
	l.setVal(i, ret)
}

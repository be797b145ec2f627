package native

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/report"
)

// branchHint classifies the expected direction of a conditional branch.
type branchHint uint8

const (
	hintNone branchHint = iota
	hintAlwaysTrue
	hintAlwaysFalse
	hintMostlyTrue
	hintMostlyFalse
)

// Constant shorthands.
func ci8(v int64) constant.Constant  { return constant.NewInt(types.I8, v) }
func ci32(v int64) constant.Constant { return constant.NewInt(types.I32, v) }
func ci64(v int64) constant.Constant { return constant.NewInt(types.I64, v) }
func cf64(v float64) constant.Constant {
	return constant.NewFloat(types.Double, v)
}

// constPtr embeds a host address as a typed pointer constant.
func constPtr(addr uintptr, typ types.Type) constant.Constant {
	return constant.NewIntToPtr(constant.NewInt(types.I64, int64(addr)), typ)
}

// newBlock appends a fresh basic block to the function without moving the
// insertion point.
func (l *LowerFunction) newBlock(name string) *ir.Block {
	return l.fun.NewBlock(name)
}

// setBlock moves the insertion point.
func (l *LowerFunction) setBlock(b *ir.Block) { l.bb = b }

// br terminates the current block with an unconditional branch.
func (l *LowerFunction) br(target *ir.Block) { l.bb.NewBr(target) }

// condBr terminates the current block with a conditional branch carrying an
// optional weight hint.
func (l *LowerFunction) condBr(cond value.Value, ifTrue, ifFalse *ir.Block, hint branchHint) {
	term := l.bb.NewCondBr(cond, ifTrue, ifFalse)

	var trueW, falseW int64
	switch hint {
	case hintAlwaysTrue:
		trueW, falseW = 100000000, 1
	case hintAlwaysFalse:
		trueW, falseW = 1, 100000000
	case hintMostlyTrue:
		trueW, falseW = 1000, 1
	case hintMostlyFalse:
		trueW, falseW = 1, 1000
	default:
		return
	}

	node := &metadata.Tuple{MetadataID: -1, Fields: []metadata.Field{
		&metadata.String{Value: "branch_weights"},
		metadata.IntLit(trueW),
		metadata.IntLit(falseW),
	}}
	l.mod.MetadataDefs = append(l.mod.MetadataDefs, node)
	term.Metadata = append(term.Metadata, &metadata.Attachment{Name: "prof", Node: node})
}

// callBuiltin emits a call to a runtime builtin through its embedded entry
// address.
func (l *LowerFunction) callBuiltin(name string, args ...value.Value) *ir.InstCall {
	sig, ok := l.sigs[name]
	if !ok {
		report.ReportICE("native: unknown builtin %s", name)
	}

	addr := l.rtc.BuiltinAddr(name)
	if addr == 0 {
		report.ReportICE("native: runtime context has no address for builtin %s", name)
	}

	fptr := constPtr(addr, types.NewPointer(sig))
	return l.bb.NewCall(fptr, args...)
}

// intrinsic returns the declaration of a named LLVM intrinsic (or other
// external function), declaring it on first use.
func (l *LowerFunction) intrinsic(name string, ret types.Type, params ...types.Type) *ir.Func {
	if f, ok := l.intrinsics[name]; ok {
		return f
	}

	irParams := make([]*ir.Param, len(params))
	for i, p := range params {
		irParams[i] = ir.NewParam("", p)
	}

	f := l.mod.NewFunc(name, ret, irParams...)
	l.intrinsics[name] = f
	return f
}

// globalConst interns an immutable private global and returns it.
func (l *LowerFunction) globalConst(init constant.Constant) *ir.Global {
	g := l.mod.NewGlobalDef(fmt.Sprintf("pc%d", l.globalCounter), init)
	l.globalCounter++
	g.Linkage = enum.LinkagePrivate
	g.Immutable = true
	return g
}

// globalString interns a NUL-terminated string and returns a pointer to its
// first byte.
func (l *LowerFunction) globalString(s string) value.Value {
	init := constant.NewCharArrayFromString(s + "\x00")
	g := l.globalConst(init)
	return constant.NewGetElementPtr(init.Typ, g, ci64(0), ci64(0))
}

// globalIntArray interns an array of pool indices and returns it as an i32
// pointer, the shape the call builtins take their names argument in.
func (l *LowerFunction) globalIntArray(vals []uint32) value.Value {
	arrTy := types.NewArray(uint64(len(vals)), types.I32)
	elems := make([]constant.Constant, len(vals))
	for i, v := range vals {
		elems[i] = constant.NewInt(types.I32, int64(v))
	}

	g := l.globalConst(constant.NewArray(arrTy, elems...))
	return constant.NewGetElementPtr(arrTy, g, ci64(0), ci64(0))
}

// memsetZero zeroes size bytes at ptr.
func (l *LowerFunction) memsetZero(ptr value.Value, size value.Value) {
	memset := l.intrinsic("llvm.memset.p0i8.i64",
		types.Void, types.I8Ptr, types.I8, types.I64, types.I1)

	raw := l.bb.NewBitCast(ptr, types.I8Ptr)
	l.bb.NewCall(memset, raw, ci8(0), size, constant.False)
}

// insnAssert emits a runtime assertion: when the condition is false the
// generated code reports and bails out.  Only emitted with slow asserts on.
func (l *LowerFunction) insnAssert(cond value.Value, msg string) {
	if !l.opts.SlowAsserts {
		return
	}

	nok := l.newBlock("assertFail")
	ok := l.newBlock("assertOk")

	l.condBr(cond, ok, nok, hintAlwaysTrue)

	l.setBlock(nok)
	l.callBuiltin("assert_fail", l.globalString(msg))
	l.bb.NewRet(constant.NewNull(l.t.Sexp))

	l.setBlock(ok)
}

// setVisible stores the interpreter visibility flag.
func (l *LowerFunction) setVisible(v int64) {
	l.bb.NewStore(ci32(v), constPtr(l.rtc.VisibleAddr, l.t.I32Ptr))
}

// Function parameters.
func (l *LowerFunction) paramCode() value.Value    { return l.fun.Params[0] }
func (l *LowerFunction) paramArgs() value.Value    { return l.fun.Params[1] }
func (l *LowerFunction) paramEnv() value.Value     { return l.fun.Params[2] }
func (l *LowerFunction) paramClosure() value.Value { return l.fun.Params[3] }

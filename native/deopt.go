package native

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/rt"
	"pyrite/util"
)

// lowerScheduledDeopt abandons the optimized code: the interpreter frames to
// rebuild are described by a metadata blob interned in the module, the live
// values are materialized into a stack frame, and the deopt runtime is
// tail-called.  It never returns.
func (l *LowerFunction) lowerScheduledDeopt(i *pir.Instr) {
	// Frames arrive in PIR argument order; the deopt runtime consumes them
	// in stack order, top first.
	meta := &rt.DeoptMetadata{Frames: util.Reversed(i.Frames)}

	blob := meta.Serialize()
	elems := make([]constant.Constant, len(blob))
	for j, b := range blob {
		elems[j] = constant.NewInt(types.I8, int64(b))
	}
	arrTy := types.NewArray(uint64(len(blob)), types.I8)
	store := l.globalConst(constant.NewArray(arrTy, elems...))
	metaPtr := constant.NewGetElementPtr(arrTy, store, ci64(0), ci64(0))

	l.withCallFrame(i.Args, func() value.Value {
		call := l.callBuiltin("deopt",
			l.paramCode(), l.paramClosure(), metaPtr, l.paramArgs())
		call.Tail = enum.TailTail
		return call
	}, false)

	l.bb.NewUnreachable()
}

// lowerRecordDeoptReason records why a speculation failed, for the
// profiler.
func (l *LowerFunction) lowerRecordDeoptReason(i *pir.Instr) {
	r := i.Reason
	reason := constant.NewStruct(l.t.DeoptReasonRec,
		constant.NewInt(types.I32, int64(r.Kind)),
		constPtr(uintptr(r.SrcCode), types.I8Ptr),
		constant.NewInt(types.I32, int64(r.Offset)))

	store := l.globalConst(reason)
	ptr := constant.NewGetElementPtr(l.t.DeoptReasonRec, store, ci64(0))
	raw := l.bb.NewBitCast(ptr, types.I8Ptr)

	l.callBuiltin("record_deopt", l.loadSxp(i.Args[0]), raw)
}

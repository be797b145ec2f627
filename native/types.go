package native

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// typeTable holds the LLVM renditions of the heap object layouts the
// generated code pokes at directly.  One table is registered per module so
// the printed IR carries named types.
type typeTable struct {
	// SexpRec is the common boxed object header plus the cons payload:
	// {sxpinfo, attrib, gcnext, gcprev, {car, cdr, tag}}.
	SexpRec *types.StructType
	Sexp    *types.PointerType
	SexpPtr *types.PointerType

	// VecRec is the vector header: the common header followed by
	// {length, truelength}.  Payload data starts right after it.
	VecRec    *types.StructType
	VecRecPtr *types.PointerType

	// StackCell is one node-stack cell: {tag, boxed value}.
	StackCell    *types.StructType
	StackCellPtr *types.PointerType

	// RCntxt is the native call context record.  Only the jump buffer
	// field (index 2) is addressed by generated code; the rest belongs to
	// the runtime.
	RCntxt    *types.StructType
	RCntxtPtr *types.PointerType

	// StubEnvRec heads a lazily materialized environment: {size, names};
	// the missing-bit bytes and the payload slots follow it in memory.
	StubEnvRec    *types.StructType
	StubEnvRecPtr *types.PointerType

	// DeoptReasonRec is the static deopt reason record:
	// {kind, source code, offset}.
	DeoptReasonRec *types.StructType

	// NativeFn is the signature of compiled code:
	// (code, args, env, closure) -> boxed.
	NativeFn    *types.FuncType
	NativeFnPtr *types.PointerType

	// BuiltinFn is the signature of a language builtin's C entry:
	// (call, op, args, env) -> boxed.
	BuiltinFn    *types.FuncType
	BuiltinFnPtr *types.PointerType

	I8Ptr  *types.PointerType
	I32Ptr *types.PointerType
	I64Ptr *types.PointerType
	F64Ptr *types.PointerType
}

// stackCellSize is the byte size of one node-stack cell.
const stackCellSize = 16

func newTypeTable(m *ir.Module) *typeTable {
	t := &typeTable{}

	t.SexpRec = types.NewStruct()
	t.Sexp = types.NewPointer(t.SexpRec)
	t.SexpPtr = types.NewPointer(t.Sexp)
	t.SexpRec.Fields = []types.Type{
		types.I64, // sxpinfo
		t.Sexp,    // attrib
		t.Sexp,    // gcnext
		t.Sexp,    // gcprev
		types.NewStruct(t.Sexp, t.Sexp, t.Sexp), // car, cdr, tag
	}
	m.NewTypeDef("sexprec", t.SexpRec)

	t.VecRec = types.NewStruct(
		types.I64,
		t.Sexp,
		t.Sexp,
		t.Sexp,
		types.NewStruct(types.I64, types.I64), // length, truelength
	)
	m.NewTypeDef("vector_sexprec", t.VecRec)
	t.VecRecPtr = types.NewPointer(t.VecRec)

	t.StackCell = types.NewStruct(types.I64, t.Sexp)
	m.NewTypeDef("stack_cell", t.StackCell)
	t.StackCellPtr = types.NewPointer(t.StackCell)

	jmpBuf := types.NewArray(32, types.I64)
	t.RCntxt = types.NewStruct(
		types.I8Ptr, // next context
		types.I32,   // call flag
		jmpBuf,      // jump buffer
		t.Sexp,      // sysparent
		t.Sexp,      // call
		t.Sexp,      // cloenv
	)
	m.NewTypeDef("call_context", t.RCntxt)
	t.RCntxtPtr = types.NewPointer(t.RCntxt)

	t.StubEnvRec = types.NewStruct(types.I64, types.I8Ptr)
	m.NewTypeDef("stub_env", t.StubEnvRec)
	t.StubEnvRecPtr = types.NewPointer(t.StubEnvRec)

	t.DeoptReasonRec = types.NewStruct(types.I32, types.I8Ptr, types.I32)
	m.NewTypeDef("deopt_reason", t.DeoptReasonRec)

	t.NativeFn = types.NewFunc(t.Sexp, types.I8Ptr, t.StackCellPtr, t.Sexp, t.Sexp)
	t.NativeFnPtr = types.NewPointer(t.NativeFn)

	t.BuiltinFn = types.NewFunc(t.Sexp, t.Sexp, t.Sexp, t.Sexp, t.Sexp)
	t.BuiltinFnPtr = types.NewPointer(t.BuiltinFn)

	t.I8Ptr = types.I8Ptr
	t.I32Ptr = types.NewPointer(types.I32)
	t.I64Ptr = types.NewPointer(types.I64)
	t.F64Ptr = types.NewPointer(types.Double)

	return t
}

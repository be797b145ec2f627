package pir

import "pyrite/rt"

// Tag is the instruction discriminant.
type Tag uint8

const (
	InvalidTag Tag = iota

	// Arithmetic and logic.
	Add
	Sub
	Mul
	Div
	IDiv
	Mod
	Pow
	Eq
	Neq
	Lt
	Lte
	Gt
	Gte
	LAnd
	LOr
	Not
	Minus
	Plus
	Inc
	Colon
	ColonInputEffects
	ColonCastLhs
	ColonCastRhs

	// Loads and stores.
	LdConst
	LdVar
	LdDots
	LdVarSuper
	LdFun
	LdArg
	LdFunctionEnv
	StVar
	StVarSuper
	Missing
	ChkMissing
	ChkClosure

	// Environments.
	MkEnv
	MaterializeEnv
	IsEnvStub

	// Promises and closures.
	MkArg
	UpdatePromise
	MkCls
	MkFunCls
	Force

	// Data movement.
	CastType
	PirCopy
	ExpandDots
	DotsList
	Phi

	// Control.
	Branch
	Return
	Nop

	// Calls.
	Call
	NamedCall
	StaticCall
	CallBuiltin
	CallSafeBuiltin

	// Contexts and deoptimization.
	PushContext
	PopContext
	ScheduledDeopt
	RecordDeoptReason

	// Tests and conversions.
	Identical
	Is
	IsType
	AsLogical
	AsTest

	// Visibility.
	Visible
	Invisible

	// Vector operations.
	Extract1_1D
	Extract1_2D
	Extract1_3D
	Extract2_1D
	Extract2_2D
	Subassign1_1D
	Subassign1_2D
	Subassign1_3D
	Subassign2_1D
	Subassign2_2D

	ForSeqSize
	XLength
	Names
	SetNames

	// Unsupported by the native backend.
	Int3
	PrintInvocation

	numTags
)

var tagNames = [numTags]string{
	Add: "Add", Sub: "Sub", Mul: "Mul", Div: "Div", IDiv: "IDiv",
	Mod: "Mod", Pow: "Pow", Eq: "Eq", Neq: "Neq", Lt: "Lt", Lte: "Lte",
	Gt: "Gt", Gte: "Gte", LAnd: "LAnd", LOr: "LOr", Not: "Not",
	Minus: "Minus", Plus: "Plus", Inc: "Inc", Colon: "Colon",
	ColonInputEffects: "ColonInputEffects", ColonCastLhs: "ColonCastLhs",
	ColonCastRhs: "ColonCastRhs", LdConst: "LdConst", LdVar: "LdVar",
	LdDots: "LdDots", LdVarSuper: "LdVarSuper", LdFun: "LdFun",
	LdArg: "LdArg", LdFunctionEnv: "LdFunctionEnv", StVar: "StVar",
	StVarSuper: "StVarSuper", Missing: "Missing", ChkMissing: "ChkMissing",
	ChkClosure: "ChkClosure", MkEnv: "MkEnv", MaterializeEnv: "MaterializeEnv",
	IsEnvStub: "IsEnvStub", MkArg: "MkArg", UpdatePromise: "UpdatePromise",
	MkCls: "MkCls", MkFunCls: "MkFunCls", Force: "Force",
	CastType: "CastType", PirCopy: "PirCopy", ExpandDots: "ExpandDots",
	DotsList: "DotsList", Phi: "Phi", Branch: "Branch", Return: "Return",
	Nop: "Nop", Call: "Call", NamedCall: "NamedCall",
	StaticCall: "StaticCall", CallBuiltin: "CallBuiltin",
	CallSafeBuiltin: "CallSafeBuiltin", PushContext: "PushContext",
	PopContext: "PopContext", ScheduledDeopt: "ScheduledDeopt",
	RecordDeoptReason: "RecordDeoptReason", Identical: "Identical",
	Is: "Is", IsType: "IsType", AsLogical: "AsLogical", AsTest: "AsTest",
	Visible: "Visible", Invisible: "Invisible",
	Extract1_1D: "Extract1_1D", Extract1_2D: "Extract1_2D",
	Extract1_3D: "Extract1_3D", Extract2_1D: "Extract2_1D",
	Extract2_2D: "Extract2_2D", Subassign1_1D: "Subassign1_1D",
	Subassign1_2D: "Subassign1_2D", Subassign1_3D: "Subassign1_3D",
	Subassign2_1D: "Subassign2_1D", Subassign2_2D: "Subassign2_2D",
	ForSeqSize: "ForSeqSize", XLength: "XLength", Names: "Names",
	SetNames: "SetNames", Int3: "Int3", PrintInvocation: "PrintInvocation",
}

func (t Tag) String() string { return tagNames[t] }

// -----------------------------------------------------------------------------

// Effect tags the side effects an instruction may have.
type Effect uint32

const (
	EffectForce Effect = 1 << iota
	EffectVisibility
	EffectWarn
	EffectError
	EffectReflection
	EffectWritesEnv
	EffectReadsEnv
	EffectDeopt
)

// EffectSet is a bitset of effects.
type EffectSet uint32

func (e EffectSet) Contains(f Effect) bool { return uint32(e)&uint32(f) != 0 }

func (e EffectSet) With(f Effect) EffectSet { return EffectSet(uint32(e) | uint32(f)) }

// -----------------------------------------------------------------------------

// FeedbackOrigin points back at the profiling site that produced the type
// feedback this instruction's speculation rests on.
type FeedbackOrigin struct {
	SrcCode rt.SEXP
	CodeUID uint32
	Offset  uint32
}

// DeoptReason describes why a speculation failed, for profiling.
type DeoptReason struct {
	Kind    uint32
	SrcCode rt.SEXP
	Offset  uint32
}

// ClosureVersion identifies a compiled version of a closure a static call
// may dispatch to.
type ClosureVersion struct {
	Name             string
	Assumptions      uint64
	NoReflection     bool
	HasOriginClosure bool

	// RirClosure is the runtime closure object.
	RirClosure rt.SEXP

	// NativeCodeAddr is the entry of the compiled body, 0 if none exists.
	NativeCodeAddr uintptr

	// BodyAddr is the address of the code object of the compiled body.
	BodyAddr uintptr
}

// -----------------------------------------------------------------------------

// Instr is a PIR instruction: a tagged record with a type, ordered argument
// references, a source index and optional per-tag payloads.
type Instr struct {
	Tag    Tag
	Typ    Type
	Args   []Value
	SrcIdx int

	// EnvIdx is the index of the environment argument in Args, -1 if the
	// instruction carries no environment.
	EnvIdx int

	Effects      EffectSet
	TypeFeedback *FeedbackOrigin

	// Position, assigned by Code.Renumber.
	ID    int
	Index int
	Block *BB

	// VarName is the symbol for variable loads/stores and missing checks.
	VarName *rt.Symbol

	// IsStArg distinguishes argument stores from plain stores.
	IsStArg bool

	// Const is the payload of LdConst.
	Const *rt.Const

	// Names annotates NamedCall arguments and MkEnv locals.
	Names []*rt.Symbol

	// MissingMask flags MkEnv locals bound as missing.
	MissingMask []bool

	// Stub marks a lazily materialized MkEnv.
	Stub bool

	// Context is the call context depth payload of MkEnv.
	Context int

	// PhiInputs holds the predecessor block of each Phi argument, parallel
	// to Args.
	PhiInputs []*BB

	// Frames is the payload of ScheduledDeopt, in PIR argument order.
	Frames []rt.FrameInfo

	// Reason is the payload of RecordDeoptReason.
	Reason *DeoptReason

	// ArgID is the payload of LdArg.
	ArgID int

	// PromID is the promise index payload of MkArg.
	PromID int

	// Push links a PopContext back to its PushContext.
	Push *Instr

	// SexpTag is the payload of Is.
	SexpTag rt.SexpType

	// TypeTest is the payload of IsType.
	TypeTest Type

	// Builtin names the runtime builtin of CallBuiltin/CallSafeBuiltin;
	// BuiltinObj is its boxed function object and BuiltinAddr its C entry.
	Builtin     string
	BuiltinObj  rt.SEXP
	BuiltinAddr uintptr

	// Target and OptimisticTarget are the dispatch payload of StaticCall.
	Target           *ClosureVersion
	OptimisticTarget *ClosureVersion

	// RuntimeClosure is the boxed closure StaticCall falls back to.
	RuntimeClosure rt.SEXP

	// Assumptions is the encoded assumption set passed to call builtins.
	Assumptions uint64

	// ClsName is the payload of ChkClosure.
	ClsName *rt.Symbol

	// ClsBody, ClsFormals and ClsSrcRef are the statically known closure
	// parts of MkFunCls.
	ClsBody    rt.SEXP
	ClsFormals rt.SEXP
	ClsSrcRef  rt.SEXP
}

func (i *Instr) Type() Type { return i.Typ }

// HasEnv reports whether the instruction carries an environment argument.
func (i *Instr) HasEnv() bool { return i.EnvIdx >= 0 }

// Env returns the environment argument, or nil.
func (i *Instr) Env() Value {
	if !i.HasEnv() {
		return nil
	}

	return i.Args[i.EnvIdx]
}

// Arg returns the j-th argument.
func (i *Instr) Arg(j int) Value { return i.Args[j] }

// NArgs returns the argument count.
func (i *Instr) NArgs() int { return len(i.Args) }

// CallArgs returns the call arguments of a call instruction: all arguments
// except the trailing environment (and for Call-like tags, the callee).
func (i *Instr) CallArgs() []Value {
	args := i.Args
	if i.HasEnv() {
		args = args[:i.EnvIdx]
	}

	switch i.Tag {
	case Call, NamedCall:
		// First argument is the callee.
		return args[1:]
	}

	return args
}

// Callee returns the callee value of a Call/NamedCall.
func (i *Instr) Callee() Value { return i.Args[0] }

// ProducesResult reports whether the instruction defines an SSA value.
func (i *Instr) ProducesResult() bool {
	switch i.Tag {
	case StVar, StVarSuper, Branch, Return, Nop, Visible, Invisible,
		ScheduledDeopt, RecordDeoptReason, UpdatePromise, PushContext:
		return false
	}

	return !i.Typ.IsVoid()
}

func (i *Instr) String() string {
	if i.VarName != nil {
		return i.Tag.String() + "(" + i.VarName.Name + ")"
	}

	return i.Tag.String()
}

package rt

// SEXP is the address of a boxed heap object in the host runtime.  The
// lowering core never dereferences one: it only embeds addresses into
// generated code and compares them against the distinguished singletons of
// the runtime context.
type SEXP uintptr

// SexpType enumerates the heap object type codes stored in the low bits of
// the sxpinfo header word.
type SexpType int32

const (
	NilSxp     SexpType = 0
	SymSxp     SexpType = 1
	ListSxp    SexpType = 2
	CloSxp     SexpType = 3
	EnvSxp     SexpType = 4
	PromSxp    SexpType = 5
	LangSxp    SexpType = 6
	SpecialSxp SexpType = 7
	BuiltinSxp SexpType = 8
	CharSxp    SexpType = 9
	LglSxp     SexpType = 10
	IntSxp     SexpType = 13
	RealSxp    SexpType = 14
	CplxSxp    SexpType = 15
	StrSxp     SexpType = 16
	DotSxp     SexpType = 17
	AnySxp     SexpType = 18
	VecSxp     SexpType = 19
	ExprSxp    SexpType = 20
	BcodeSxp   SexpType = 21
	ExtptrSxp  SexpType = 22
	WeakrefSxp SexpType = 23
	RawSxp     SexpType = 24
	S4Sxp      SexpType = 25
	ExternalSxp SexpType = 26
	FunSxp     SexpType = 99
)

// Layout of the 64-bit sxpinfo header word.  The type lives in the low
// TypeBits bits; the single-bit flags follow; the named count occupies
// NamedBits bits starting at bit 32.
const (
	TypeBits  = 5
	NamedBits = 16

	MaxNumSexpType = 1 << TypeBits

	ScalarBitPos = TypeBits
	ObjectBitPos = TypeBits + 1
	AltrepBitPos = TypeBits + 2
	MarkBitPos   = TypeBits + 19
	GenBitPos    = TypeBits + 23

	NamedShift = 32
	NamedMax   = 7
)

// NAInteger is the integer NA sentinel (INT32_MIN).  Float64 NA is NaN.
const NAInteger int32 = -0x80000000

// Magic number identifying stub environment external objects.
const StubEnvMagic uint32 = 0xe7e10000

// StubEnvArgOffset is the number of bookkeeping slots (materialized copy,
// parent) preceding the locals in a stub environment's payload.
const StubEnvArgOffset = 2

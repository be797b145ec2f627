package native

import (
	"github.com/llir/llvm/ir"

	"pyrite/analysis"
	"pyrite/config"
	"pyrite/pir"
	"pyrite/report"
	"pyrite/rt"
)

// CompileInput is one lowering request: the PIR code plus the optimizer
// results the lowering consumes.
type CompileInput struct {
	Name string
	Code *pir.Code

	// PromMap maps promise ids to their code object indices, for MkArg.
	PromMap map[int]uint32

	// Refcount is the reference-count adjustment analysis result.
	Refcount *analysis.Refcount

	// NeedsLdVarForUpdate flags the variable loads that feed updates and
	// must therefore come back shared.
	NeedsLdVarForUpdate map[*pir.Instr]bool
}

// CompileResult is a successfully lowered function.
type CompileResult struct {
	// Module holds the emitted IR; the backend turns it into machine code.
	Module *ir.Module

	// Fun is the function with the native calling convention
	// (code, args, env, closure) -> boxed.
	Fun *ir.Func

	// RegisterMap locates the type-feedback slots for the profiler, or nil
	// when the function carries none.
	RegisterMap *RegisterMap
}

// TryCompile lowers one PIR code object.  Failure is recoverable: the
// partial module is discarded and the caller falls back to interpreting the
// PIR, so the returned boolean is the only error signal.
func TryCompile(in *CompileInput, rtc *rt.Context, pool *rt.Pool,
	opts *config.Options, log *report.LogStream) (*CompileResult, bool) {

	if opts == nil {
		opts = config.Defaults()
	}
	if in.Refcount == nil {
		in.Refcount = analysis.NewRefcount()
	}
	if in.NeedsLdVarForUpdate == nil {
		in.NeedsLdVarForUpdate = make(map[*pir.Instr]bool)
	}

	l := newLowerFunction(in, rtc, pool, opts, log)
	if !l.tryCompile() {
		report.ReportWarning("native lowering of %s abandoned; falling back to the interpreter", in.Name)
		return nil, false
	}

	if opts.DumpIR {
		log.Logf("emitted module:\n%s", l.mod.String())
	}

	return &CompileResult{
		Module:      l.mod,
		Fun:         l.fun,
		RegisterMap: l.registerMap,
	}, true
}

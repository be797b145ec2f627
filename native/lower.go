package native

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/analysis"
	"pyrite/config"
	"pyrite/pir"
	"pyrite/regalloc"
	"pyrite/report"
	"pyrite/rt"
)

// maxTemps is the number of scratch frame slots reserved for temporaries
// that must survive an allocation.
const maxTemps = 4

// contextData is the per-PushContext emission state.
type contextData struct {
	// rcntxt is the stack allocation of the native call context.
	rcntxt *ir.InstAlloca

	// result is the alloca the context's result funnels through, sized by
	// the PopContext result representation.
	result *ir.InstAlloca

	// popContextTarget is the block every non-local return funnels into.
	popContextTarget *ir.Block

	// savedBoxedPos maps every boxed value live across the push to the
	// dedicated frame slot that preserves it for restarts.
	savedBoxedPos map[*pir.Instr]int
}

// LowerFunction emits one PIR code object into an LLVM function.  All of its
// state lives for a single TryCompile call.
type LowerFunction struct {
	name string
	code *pir.Code

	promMap             map[int]uint32
	refcount            *analysis.Refcount
	needsLdVarForUpdate map[*pir.Instr]bool

	live  *analysis.Liveness
	alloc *regalloc.Allocator

	opts *config.Options
	rtc  *rt.Context
	pool *rt.Pool
	log  *report.LogStream

	mod  *ir.Module
	t    *typeTable
	sigs map[string]*types.FuncType
	fun  *ir.Func

	// bb is the current insertion block.
	bb    *ir.Block
	entry *ir.Block

	blocks map[*pir.BB]*ir.Block

	numLocals int
	numTemps  int

	basepointer      value.Value
	nodestackPtrAddr value.Value

	variables map[*pir.Instr]*variable

	contexts             map[*pir.Instr]*contextData
	inPushContext        int
	escapesInlineContext map[*pir.Instr]bool

	bindingsCache     map[pir.Value]map[*rt.Symbol]int
	bindingsCacheBase value.Value

	// phis maps each phi input instruction to its phi, for the end-of-block
	// copies.
	phis map[*pir.Instr]*pir.Instr

	currentBB  *pir.BB
	currentIdx int

	intrinsics    map[string]*ir.Func
	globalCounter int

	success     bool
	registerMap *RegisterMap
}

// newLowerFunction builds the per-compilation state.
func newLowerFunction(in *CompileInput, rtc *rt.Context, pool *rt.Pool,
	opts *config.Options, log *report.LogStream) *LowerFunction {

	mod := ir.NewModule()
	t := newTypeTable(mod)

	fun := mod.NewFunc(in.Name, t.Sexp,
		ir.NewParam("code", types.I8Ptr),
		ir.NewParam("args", t.StackCellPtr),
		ir.NewParam("env", t.Sexp),
		ir.NewParam("closure", t.Sexp))

	in.Code.Renumber()

	return &LowerFunction{
		name:                 in.Name,
		code:                 in.Code,
		promMap:              in.PromMap,
		refcount:             in.Refcount,
		needsLdVarForUpdate:  in.NeedsLdVarForUpdate,
		live:                 analysis.ComputeLiveness(in.Code),
		opts:                 opts,
		rtc:                  rtc,
		pool:                 pool,
		log:                  log,
		mod:                  mod,
		t:                    t,
		sigs:                 builtinSigs(t),
		fun:                  fun,
		blocks:               make(map[*pir.BB]*ir.Block),
		variables:            make(map[*pir.Instr]*variable),
		contexts:             make(map[*pir.Instr]*contextData),
		escapesInlineContext: make(map[*pir.Instr]bool),
		bindingsCache:        make(map[pir.Value]map[*rt.Symbol]int),
		phis:                 make(map[*pir.Instr]*pir.Instr),
		intrinsics:           make(map[string]*ir.Func),
		success:              true,
	}
}

// failf abandons the compilation; the partial module is discarded by the
// caller and the runtime falls back to interpreting the PIR.
func (l *LowerFunction) failf(msg string, args ...interface{}) {
	if l.success {
		l.log.Logf("lowering failed: %s", fmt.Sprintf(msg, args...))
	}

	l.success = false
}

// getBlock returns (creating on demand) the LLVM block for a PIR block.
func (l *LowerFunction) getBlock(bb *pir.BB) *ir.Block {
	if b, ok := l.blocks[bb]; ok {
		return b
	}

	b := l.fun.NewBlock(fmt.Sprintf("BB%d", bb.ID))
	l.blocks[bb] = b
	return b
}

// -----------------------------------------------------------------------------
// Variable access.

// setVariable initializes i's storage with val.  Writes to dead values are
// silently dropped: their storage may not exist at all, so emitting the
// store would be wrong, not merely wasteful.
func (l *LowerFunction) setVariable(i *pir.Instr, val value.Value, volatile bool) {
	if !l.live.Count(i) {
		return
	}

	l.variables[i].set(l, val, volatile)
}

// updateVariable rewrites i's storage.  Also drops dead values silently.
func (l *LowerFunction) updateVariable(i *pir.Instr, val value.Value) {
	if !l.live.Count(i) {
		return
	}

	if i.Tag == pir.Phi {
		// Phis are written at the end of a predecessor of their block.
		isNext := false
		for _, s := range l.currentBB.Succs {
			if s == i.Block {
				isNext = true
			}
		}
		if !isNext {
			report.ReportICE("native: phi %s updated outside a predecessor", i)
		}
	}

	l.variables[i].update(l, val)
}

// getVariable reads i's current value.
func (l *LowerFunction) getVariable(i *pir.Instr) value.Value {
	if !l.live.Count(i) {
		report.ReportICE("native: reading dead value %s", i)
	}

	return l.variables[i].get(l)
}

// deadMove reports whether moving a into b is a no-op because both share
// storage; marks b initialized as a side effect.
func (l *LowerFunction) deadMove(a pir.Value, b *pir.Instr) bool {
	ai := pir.AsInstr(a)
	if ai == nil {
		return false
	}

	av, ok := l.variables[ai]
	if !ok {
		return false
	}
	bv, ok := l.variables[b]
	if !ok {
		return false
	}

	if av.deadMove(bv) {
		bv.initialized = true
		return true
	}

	return false
}

// setVal stores the computed value of an instruction, converting it to the
// instruction's PIR representation first.
func (l *LowerFunction) setVal(i *pir.Instr, val value.Value) {
	val = l.convert(val, i.Typ, false)
	l.setVariable(i, val, l.inPushContext > 0 && l.escapesInlineContext[i])
}

// -----------------------------------------------------------------------------
// Compilation driver.

// tryCompile runs the whole lowering; on failure the partial module must be
// discarded.
func (l *LowerFunction) tryCompile() bool {
	l.entry = l.fun.NewBlock("entry")
	l.setBlock(l.entry)

	l.nodestackPtrAddr = constPtr(l.rtc.NodestackTopAddr, types.NewPointer(l.t.StackCellPtr))

	// Slot 0 holds the code container for the profiler; the base pointer
	// addresses it, so frame slot k lives at base+k.
	l.basepointer = l.nodestackPtr()
	l.numLocals++
	l.incStack(1, false)
	l.stackStore([]value.Value{l.container(l.paramCode())})

	l.collectBindingCaches()

	needsSlot := func(i *pir.Instr) bool { return RepOfValue(i) == RepBoxed }
	l.alloc = regalloc.New(l.code, l.live, needsSlot)
	if err := l.alloc.Verify(); err != nil {
		report.ReportICE("native: %v", err)
	}

	l.createVariables()

	l.numLocals += maxTemps
	if l.numLocals > 1 {
		l.incStack(l.numLocals-1, true)
	}

	l.emitBlocks()

	// The entry block's branch is fixed up last so allocas can accumulate
	// in it throughout emission.
	l.entry.NewBr(l.getBlock(l.code.Entry))

	if l.success {
		l.buildRegisterMap()
	}

	return l.success
}

// collectBindingCaches assigns a cache slot to every (environment, name)
// pair that loads or stores through a locally created non-stub environment,
// then reserves the backing alloca.
func (l *LowerFunction) collectBindingCaches() {
	idx := 0
	if l.opts.BindingCaches {
		l.code.VisitInstrs(func(i *pir.Instr) {
			var name *rt.Symbol
			switch i.Tag {
			case pir.LdVar, pir.StVar:
				name = i.VarName
			case pir.LdDots:
				name = rt.DotsSymbol
			default:
				return
			}

			env := pir.AsInstr(i.Env())
			if env == nil || env.Tag != pir.MkEnv || env.Stub {
				return
			}

			m := l.bindingsCache[i.Env()]
			if m == nil {
				m = make(map[*rt.Symbol]int)
				l.bindingsCache[i.Env()] = m
			}
			if _, ok := m[name]; !ok {
				m[name] = idx
				idx++
			}
		})
	}

	base := l.entry.NewAlloca(l.t.Sexp)
	base.NElems = ci32(int64(idx))
	base.SetName("bindingsCache")
	l.bindingsCacheBase = base
}

// cacheSlotPtr addresses binding cache slot idx.
func (l *LowerFunction) cacheSlotPtr(idx int) value.Value {
	return l.bb.NewGetElementPtr(l.t.Sexp, l.bindingsCacheBase, ci64(int64(idx)))
}

// invalidateAllBindingCaches writes the sentinel into every cache slot.
func (l *LowerFunction) invalidateAllBindingCaches() {
	for _, m := range l.bindingsCache {
		for _, idx := range m {
			l.bb.NewStore(constPtr(0, l.t.Sexp), l.cacheSlotPtr(idx))
		}
	}
}

// createVariables materializes the storage decisions: phis first (always
// mutable), then context-crossing values (forced mutable so restarts can
// restore them), then everything else immutable.
func (l *LowerFunction) createVariables() {
	numLocalsBase := l.numLocals
	l.numLocals += l.alloc.NumSlots()

	create := func(i *pir.Instr, mutable bool) {
		if RepOfValue(i) == RepBoxed {
			slot, ok := l.alloc.Slot(i)
			if !ok {
				report.ReportICE("native: no slot for boxed %s", i)
			}
			l.variables[i] = l.boxedVariable(i, slot+numLocalsBase, mutable)
		} else {
			l.variables[i] = l.scalarVariable(i, mutable)
		}
	}

	l.code.VisitInstrs(func(i *pir.Instr) {
		if !l.live.Count(i) || !regalloc.NeedsAVariable(i) {
			return
		}
		if i.Tag == pir.Phi {
			create(i, true)
			for _, a := range i.Args {
				if in := pir.AsInstr(a); in != nil {
					l.phis[in] = i
				}
			}
		}
	})

	l.code.VisitInstrs(func(i *pir.Instr) {
		if i.Tag != pir.PopContext {
			return
		}

		push := i.Push
		res := i.Args[0]

		data := &contextData{
			rcntxt:           l.entry.NewAlloca(l.t.RCntxt),
			result:           l.entry.NewAlloca(RepOfValue(res).llvm(l.t)),
			popContextTarget: l.newBlock(""),
			savedBoxedPos:    make(map[*pir.Instr]int),
		}
		l.contexts[push] = data

		// Everything live at the push must be mutable so a restart can
		// restore it; boxed values get a dedicated preservation slot.
		l.code.VisitInstrs(func(j *pir.Instr) {
			if !regalloc.NeedsAVariable(j) {
				return
			}

			liveAtPush := l.live.LiveAfter(push, j)
			liveAtPop := l.live.LiveAfter(i, j)

			if RepOfValue(j) == RepBoxed && liveAtPush {
				data.savedBoxedPos[j] = l.numLocals
				l.numLocals++
			}
			if !liveAtPush && liveAtPop {
				l.escapesInlineContext[j] = true
			}
			if l.variables[j] == nil && (liveAtPush || liveAtPop) {
				create(j, true)
			}
		})
	})

	l.code.VisitInstrs(func(i *pir.Instr) {
		if regalloc.NeedsAVariable(i) && l.live.Count(i) && l.variables[i] == nil {
			create(i, false)
		}
	})
}

// emitBlocks walks the CFG in reverse postorder emitting every instruction,
// then the phi copies at each block's end.
func (l *LowerFunction) emitBlocks() {
	blockInPushContext := map[*pir.BB]int{l.code.Entry: 0}

	for _, bb := range l.code.Blocks() {
		if !l.success {
			return
		}

		l.currentBB = bb
		l.setBlock(l.getBlock(bb))
		l.inPushContext = blockInPushContext[bb]

		for idx, i := range bb.Instrs {
			l.currentIdx = idx
			if !l.success {
				return
			}

			l.adjustRefcountBeforeUse(i)
			l.lowerInstr(i)

			if !l.success {
				return
			}

			if i.Tag != pir.Phi {
				l.ensureNamedIfNeeded(i, nil)
			}
			l.numTemps = 0
		}

		// Copy phi inputs at the end of the predecessor, after all regular
		// instructions.
		for _, i := range bb.Instrs {
			phi, ok := l.phis[i]
			if !ok || l.deadMove(i, phi) {
				continue
			}

			r := RepOf(phi.Typ)
			inpv := l.loadRep(i, r)
			l.ensureNamedIfNeeded(phi, inpv)
			l.updateVariable(phi, inpv)
		}

		if bb.IsJmp() {
			l.br(l.getBlock(bb.Next()))
		}

		for _, suc := range bb.Succs {
			blockInPushContext[suc] = l.inPushContext
		}
	}
}

// adjustRefcountBeforeUse applies the analysis' use-site annotations to the
// boxed operands of i.
func (l *LowerFunction) adjustRefcountBeforeUse(i *pir.Instr) {
	needed, ok := l.refcount.BeforeUse[i]
	if !ok {
		return
	}

	for _, a := range i.Args {
		if RepOfValue(a) != RepBoxed {
			continue
		}

		j := pir.AsInstr(pir.FollowCasts(a))
		if j == nil {
			continue
		}

		kind, ok := needed[j]
		if !ok {
			continue
		}

		switch kind {
		case analysis.SetShared:
			l.ensureShared(l.load(a))
		case analysis.EnsureNamed:
			l.ensureNamed(l.load(a))
		}
	}
}

package native

import (
	"fmt"
	"strings"
	"testing"

	"pyrite/config"
	"pyrite/pir"
	"pyrite/rt"
)

func scalarInt() pir.Type {
	return pir.Int().Scalar().NotObject().NotNA().NoAttribs()
}

func scalarIntNA() pir.Type {
	return pir.Int().Scalar().NotObject().NoAttribs()
}

func scalarReal() pir.Type {
	return pir.Real().Scalar().NotObject().NotNA().NoAttribs()
}

// compile lowers the code against a fabricated runtime context and returns
// the result together with the context.
func compile(t *testing.T, code *pir.Code) (*CompileResult, *rt.Context) {
	t.Helper()

	ctx := rt.TestContext()
	res, ok := TryCompile(&CompileInput{Name: code.Name, Code: code},
		ctx, rt.NewPool(), config.Defaults(), nil)
	if !ok {
		t.Fatalf("lowering of %s failed", code.Name)
	}

	return res, ctx
}

// callsBuiltin reports whether the printed module embeds the entry address
// of the named builtin.
func callsBuiltin(ir string, ctx *rt.Context, name string) bool {
	return strings.Contains(ir, fmt.Sprintf("i64 %d", ctx.BuiltinAddr(name)))
}

// An unboxed integer addition: native add on the fast path, boxing only at
// the return.
func TestLowerIntAdd(t *testing.T) {
	code := pir.NewCode("intadd")
	bb := code.Entry

	c3 := bb.Append(pir.NewLdConst(rt.IntConst(3)))
	c4 := bb.Append(pir.NewLdConst(rt.IntConst(4)))
	add := bb.Append(pir.NewInstr(pir.Add, scalarInt(), c3, c4))
	bb.Append(pir.NewReturn(add))

	res, ctx := compile(t, code)
	ir := res.Module.String()

	if !strings.Contains(ir, "add nsw") {
		t.Error("expected a native nsw add")
	}
	if callsBuiltin(ir, ctx, "binop") || callsBuiltin(ir, ctx, "binop_env") {
		t.Error("an unboxed addition must not call the runtime arithmetic entry")
	}
	if !callsBuiltin(ir, ctx, "box_int") {
		t.Error("the return value must be boxed")
	}
	if !strings.Contains(ir, "ret %sexprec*") {
		t.Error("the function must return a boxed value")
	}
}

// An NA-tainted operand forces an NA check that produces integer NA.
func TestLowerNAPropagation(t *testing.T) {
	code := pir.NewCode("napropagate")
	bb := code.Entry

	na := bb.Append(pir.NewLdConst(rt.IntConst(rt.NAInteger)))
	c1 := bb.Append(pir.NewLdConst(rt.IntConst(1)))
	add := bb.Append(pir.NewInstr(pir.Add, scalarIntNA(), na, c1))
	bb.Append(pir.NewReturn(add))

	res, _ := compile(t, code)
	ir := res.Module.String()

	if !strings.Contains(ir, "-2147483648") {
		t.Error("expected the integer NA sentinel in an NA check")
	}
	if !strings.Contains(ir, "phi i32") {
		t.Error("expected the result to merge the NA path")
	}
}

// A vector read with supported types takes the fast path: bounds check plus
// a direct element load, with the runtime call only on the fallback path.
func TestLowerVectorFastRead(t *testing.T) {
	code := pir.NewCode("vecread")
	bb := code.Entry

	vecConst := rt.RealConst(1.1, 2.2, 3.3)
	vec := bb.Append(pir.NewLdConst(vecConst))
	idx := bb.Append(pir.NewLdConst(rt.IntConst(2)))

	env := pir.StaticEnv(rt.TestContext().GlobalEnv, "global")
	extract := pir.NewInstrEnv(pir.Extract2_1D, scalarReal(), env, vec, idx)
	bb.Append(extract)
	bb.Append(pir.NewReturn(extract))

	res, ctx := compile(t, code)
	ir := res.Module.String()

	if !strings.Contains(ir, "icmp uge i64") {
		t.Error("expected an unsigned bounds check on the native index")
	}
	if !strings.Contains(ir, "getelementptr inbounds double") {
		t.Error("expected a direct element load on the fast path")
	}
	if !callsBuiltin(ir, ctx, "extract_21_int") {
		t.Error("the slow path must call the typed runtime getter")
	}
}

// A scheduled deopt tail-calls the deopt runtime and never returns.
func TestLowerScheduledDeopt(t *testing.T) {
	code := pir.NewCode("deopt")
	bb := code.Entry

	v := bb.Append(pir.NewLdConst(rt.IntConst(1)))
	d := pir.NewInstr(pir.ScheduledDeopt, pir.Void(), v)
	d.Frames = []rt.FrameInfo{
		{CodeUID: 1, PCOffset: 4, StackSize: 1},
		{CodeUID: 2, PCOffset: 12, StackSize: 0, InPromise: true},
	}
	bb.Append(d)
	bb.Deopt = true

	res, ctx := compile(t, code)
	ir := res.Module.String()

	if !strings.Contains(ir, "unreachable") {
		t.Error("a deopt must end in unreachable")
	}
	if !strings.Contains(ir, "tail call") {
		t.Error("the deopt runtime must be tail-called")
	}
	if !callsBuiltin(ir, ctx, "deopt") {
		t.Error("expected the deopt builtin address")
	}
}

// A push/pop context pair arms a setjmp with restart and return
// continuations.
func TestLowerPushPopContext(t *testing.T) {
	code := pir.NewCode("context")
	bb := code.Entry

	c3 := bb.Append(pir.NewLdConst(rt.IntConst(3)))
	c4 := bb.Append(pir.NewLdConst(rt.IntConst(4)))
	v := bb.Append(pir.NewInstr(pir.Add, scalarInt(), c3, c4))

	ast := bb.Append(pir.NewLdConst(rt.OpaqueConst(rt.LangSxp)))
	op := bb.Append(pir.NewLdConst(rt.OpaqueConst(rt.CloSxp)))
	env := pir.StaticEnv(rt.TestContext().GlobalEnv, "global")

	push := pir.NewInstrEnv(pir.PushContext, pir.Void(), env, ast, op)
	bb.Append(push)

	pop := pir.NewInstr(pir.PopContext, scalarInt(), v)
	pop.Push = push
	bb.Append(pop)

	bb.Append(pir.NewReturn(pop))

	res, ctx := compile(t, code)
	ir := res.Module.String()

	if !strings.Contains(ir, "__sigsetjmp") {
		t.Error("expected a setjmp into the context's jump buffer")
	}
	if !callsBuiltin(ir, ctx, "begin_closure_context") ||
		!callsBuiltin(ir, ctx, "end_closure_context") {
		t.Error("expected the context bracket builtins")
	}
	if !strings.Contains(ir, fmt.Sprintf("i64 %d", ctx.RestartToken)) {
		t.Error("expected the restart token comparison")
	}
}

// Unsupported opcodes abandon the compilation without corrupting anything.
func TestLowerUnsupportedOpcode(t *testing.T) {
	code := pir.NewCode("unsupported")
	bb := code.Entry

	bb.Append(pir.NewInstr(pir.Int3, pir.Void()))
	c := bb.Append(pir.NewLdConst(rt.IntConst(1)))
	bb.Append(pir.NewReturn(c))

	res, ok := TryCompile(&CompileInput{Name: code.Name, Code: code},
		rt.TestContext(), rt.NewPool(), config.Defaults(), nil)
	if ok || res != nil {
		t.Error("Int3 must abort the lowering")
	}
}

// Writes to dead values are silently dropped; the compilation still
// succeeds.
func TestLowerDeadValueDropped(t *testing.T) {
	code := pir.NewCode("deadstore")
	bb := code.Entry

	c := bb.Append(pir.NewLdConst(rt.IntConst(1)))
	bb.Append(pir.NewInstr(pir.Add, scalarInt(), c, c)) // never used
	live := bb.Append(pir.NewInstr(pir.Mul, scalarInt(), c, c))
	bb.Append(pir.NewReturn(live))

	compile(t, code)
}

// A diamond with a phi: each predecessor ends with an update of the phi's
// storage and the compile succeeds.
func TestLowerPhi(t *testing.T) {
	code := pir.NewCode("phi")
	entry := code.Entry
	left := code.NewBB()
	right := code.NewBB()
	join := code.NewBB()

	cond := entry.Append(pir.NewLdConst(rt.LglConst(1)))
	test := entry.Append(pir.NewInstr(pir.AsTest, pir.TestType(), cond))
	entry.Append(pir.NewBranch(test))
	entry.SetSuccs(left, right)

	a := left.Append(pir.NewInstr(pir.Add, scalarInt(),
		left.Append(pir.NewLdConst(rt.IntConst(1))),
		left.Append(pir.NewLdConst(rt.IntConst(2)))))
	left.SetSuccs(join)

	b := right.Append(pir.NewInstr(pir.Add, scalarInt(),
		right.Append(pir.NewLdConst(rt.IntConst(3))),
		right.Append(pir.NewLdConst(rt.IntConst(4)))))
	right.SetSuccs(join)

	phi := pir.NewPhi(scalarInt())
	phi.AddPhiInput(left, a)
	phi.AddPhiInput(right, b)
	join.Append(phi)
	join.Append(pir.NewReturn(phi))

	res, _ := compile(t, code)
	ir := res.Module.String()

	// The phi lives in an alloca written from both arms.
	if strings.Count(ir, "store i32") < 2 {
		t.Error("expected phi updates at the end of both predecessors")
	}
}

// Feedback-bearing boxed values surface in the register map.
func TestLowerRegisterMap(t *testing.T) {
	code := pir.NewCode("feedback")
	bb := code.Entry

	c := bb.Append(pir.NewLdConst(rt.RealConst(1.0)))
	a := bb.Append(pir.NewInstr(pir.ColonCastLhs, pir.Real().NotObject(), c))
	a.TypeFeedback = &pir.FeedbackOrigin{CodeUID: 3, Offset: 16}
	use := bb.Append(pir.NewInstr(pir.Names, pir.Real().NotObject(), a))
	bb.Append(pir.NewReturn(use))

	res, _ := compile(t, code)

	if res.RegisterMap == nil {
		t.Fatal("expected a register map for the feedback-bearing value")
	}

	found := false
	for _, origin := range res.RegisterMap.Slots {
		if origin.CodeUID == 3 && origin.Offset == 16 {
			found = true
		}
	}
	if !found {
		t.Error("the feedback origin must be recorded in the register map")
	}
}

// The binding cache gives variable loads a fast path through the cached
// binding cell.
func TestLowerBindingCache(t *testing.T) {
	code := pir.NewCode("bindings")
	bb := code.Entry

	val := bb.Append(pir.NewLdConst(rt.IntConst(42)))
	parent := pir.StaticEnv(rt.TestContext().GlobalEnv, "global")
	mkenv := pir.NewMkEnv(parent, []string{"x"}, []pir.Value{val}, false)
	bb.Append(mkenv)

	ld := pir.NewLdVar("x", mkenv)
	bb.Append(ld)

	force := pir.NewInstr(pir.Force, ld.Typ.NotLazy().NotPromiseWrapped(), ld)
	bb.Append(force)
	bb.Append(pir.NewReturn(force))

	res, ctx := compile(t, code)
	ir := res.Module.String()

	if !callsBuiltin(ir, ctx, "ldvar_cache_miss") {
		t.Error("a cached load must fall back through the cache-miss builtin")
	}
	if !callsBuiltin(ir, ctx, "create_environment") {
		t.Error("expected the environment construction call")
	}
}

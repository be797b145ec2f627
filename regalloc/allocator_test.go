package regalloc

import (
	"testing"

	"pyrite/analysis"
	"pyrite/pir"
	"pyrite/rt"
)

func boxedType() pir.Type {
	// A non-scalar vector type stays boxed.
	return pir.Real().NotObject()
}

func anySlot() func(*pir.Instr) bool {
	return func(*pir.Instr) bool { return true }
}

// two values with overlapping live ranges must not share a slot; a value
// whose range ends before another begins may reuse it.
func TestAllocatorInterference(t *testing.T) {
	code := pir.NewCode("interfere")
	bb := code.Entry

	c := bb.Append(pir.NewLdConst(rt.RealConst(1.5)))
	a := bb.Append(pir.NewInstr(pir.ColonCastLhs, boxedType(), c))
	b := bb.Append(pir.NewInstr(pir.ColonCastRhs, boxedType(), a, c))
	sum := bb.Append(pir.NewInstr(pir.Add, boxedType(), a, b))
	later := bb.Append(pir.NewInstr(pir.Names, boxedType(), sum))
	bb.Append(pir.NewReturn(later))

	code.Renumber()
	live := analysis.ComputeLiveness(code)
	alloc := New(code, live, anySlot())

	if err := alloc.Verify(); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	slotA, okA := alloc.Slot(a)
	slotB, okB := alloc.Slot(b)
	if !okA || !okB {
		t.Fatal("both overlapping values need slots")
	}
	if slotA == slotB {
		t.Error("overlapping live ranges must not share a slot")
	}

	// later's range starts after a has died; the slot may be reused.
	slotLater, ok := alloc.Slot(later)
	if !ok {
		t.Fatal("later needs a slot")
	}
	if slotLater >= alloc.NumSlots() {
		t.Error("slot index out of range")
	}
}

// values carrying type feedback always interfere so the profiler can find
// their slots.
func TestAllocatorTypeFeedbackDistinct(t *testing.T) {
	code := pir.NewCode("feedback")
	bb := code.Entry

	c := bb.Append(pir.NewLdConst(rt.RealConst(1.0)))

	a := bb.Append(pir.NewInstr(pir.ColonCastLhs, boxedType(), c))
	a.TypeFeedback = &pir.FeedbackOrigin{CodeUID: 1, Offset: 4}
	bb.Append(pir.NewInstr(pir.Names, boxedType(), a))

	b := bb.Append(pir.NewInstr(pir.ColonCastLhs, boxedType(), c))
	b.TypeFeedback = &pir.FeedbackOrigin{CodeUID: 1, Offset: 8}
	last := bb.Append(pir.NewInstr(pir.Names, boxedType(), b))
	bb.Append(pir.NewReturn(last))

	code.Renumber()
	live := analysis.ComputeLiveness(code)
	alloc := New(code, live, anySlot())

	if err := alloc.Verify(); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	slotA, _ := alloc.Slot(a)
	slotB, _ := alloc.Slot(b)
	if slotA == slotB {
		t.Error("feedback-bearing values must get distinct slots even with disjoint ranges")
	}
}

// constant loads never need a variable.
func TestNeedsAVariable(t *testing.T) {
	code := pir.NewCode("needs")
	bb := code.Entry

	c := bb.Append(pir.NewLdConst(rt.IntConst(1)))
	cast := bb.Append(pir.NewInstr(pir.CastType, pir.Int().Scalar(), c))
	use := bb.Append(pir.NewInstr(pir.Names, boxedType(), cast))
	bb.Append(pir.NewReturn(use))
	code.Renumber()

	if NeedsAVariable(c) {
		t.Error("a constant load must not need a variable")
	}
	if NeedsAVariable(cast) {
		t.Error("a cast of a constant load must not need a variable")
	}
	if !NeedsAVariable(use) {
		t.Error("a real computation must need a variable")
	}
}

package analysis

import (
	"testing"

	"pyrite/pir"
	"pyrite/rt"
)

func scalarInt() pir.Type {
	return pir.Int().Scalar().NotObject().NotNA().NoAttribs()
}

// straight-line code: a def is live until its last use and dead after it.
func TestLivenessStraightLine(t *testing.T) {
	code := pir.NewCode("straight")
	bb := code.Entry

	c3 := bb.Append(pir.NewLdConst(rt.IntConst(3)))
	c4 := bb.Append(pir.NewLdConst(rt.IntConst(4)))
	add := bb.Append(pir.NewInstr(pir.Add, scalarInt(), c3, c4))
	mul := bb.Append(pir.NewInstr(pir.Mul, scalarInt(), add, add))
	bb.Append(pir.NewReturn(mul))

	code.Renumber()
	live := ComputeLiveness(code)

	if !live.Live(bb, add.Index, add) {
		t.Error("add must be live right after its definition")
	}
	if live.Live(bb, mul.Index, add) {
		t.Error("add must be dead after its last use")
	}
	if !live.Live(bb, mul.Index, mul) {
		t.Error("mul must be live between definition and return")
	}
	if !live.Count(add) || !live.Count(mul) {
		t.Error("both definitions have uses and must be counted")
	}
}

// a value defined but never used is dead everywhere.
func TestLivenessDeadValue(t *testing.T) {
	code := pir.NewCode("dead")
	bb := code.Entry

	c3 := bb.Append(pir.NewLdConst(rt.IntConst(3)))
	dead := bb.Append(pir.NewInstr(pir.Add, scalarInt(), c3, c3))
	_ = dead
	bb.Append(pir.NewReturn(c3))

	code.Renumber()
	live := ComputeLiveness(code)

	if live.Count(dead) {
		t.Error("an unused definition must not be counted")
	}
}

// diamond with a phi: the phi inputs are live at the end of their
// predecessors, the phi itself from its block's entry.
func TestLivenessPhi(t *testing.T) {
	code := pir.NewCode("phi")
	entry := code.Entry
	left := code.NewBB()
	right := code.NewBB()
	join := code.NewBB()

	cond := entry.Append(pir.NewLdConst(rt.LglConst(1)))
	entry.Append(pir.NewBranch(cond))
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

	code.Renumber()
	live := ComputeLiveness(code)

	if !live.Live(left, a.Index, a) {
		t.Error("phi input a must be live at the end of its predecessor")
	}
	if !live.Live(right, b.Index, b) {
		t.Error("phi input b must be live at the end of its predecessor")
	}
	if live.LiveAtEntry(join, a) {
		t.Error("phi input a must not be live at the phi block's entry")
	}
	if !live.LiveAtEntry(join, phi) {
		t.Error("the phi must be live at its own block's entry")
	}
	if live.LiveAtEntry(left, cond) {
		t.Error("the branch condition must be dead in the arms")
	}
}

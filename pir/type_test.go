package pir

import "testing"

func TestIsASubsetRelation(t *testing.T) {
	scalarInt := Int().Scalar().NotObject()

	if !scalarInt.IsA(Int()) {
		t.Error("a scalar non-object integer must be a subtype of integer")
	}
	if Int().IsA(scalarInt) {
		t.Error("a general integer must not be a subtype of the scalar form")
	}
	if IntReal().IsA(Int()) {
		t.Error("integer|real must not be a subtype of integer")
	}
	if !Int().IsA(IntReal()) {
		t.Error("integer must be a subtype of integer|real")
	}
}

func TestNarrowingOps(t *testing.T) {
	typ := Int()

	if typ.IsScalar() {
		t.Error("the default integer type must not be scalar")
	}
	if !typ.Scalar().IsScalar() {
		t.Error("Scalar must clear the non-scalar flag")
	}
	if typ.NotObject().MaybeObj() {
		t.Error("NotObject must clear the object flag")
	}
	if typ.NotNA().MaybeNA() {
		t.Error("NotNA must clear the NA flag")
	}
	if typ.NoAttribs().MaybeHasAttrs() {
		t.Error("NoAttribs must clear the attrs flag")
	}
}

func TestMergeWithConversion(t *testing.T) {
	merged := Int().MergeWithConversion(Real())

	if merged.Maybe(RInt) {
		t.Error("int+real must collapse to real")
	}
	if !merged.Maybe(RReal) {
		t.Error("int+real must keep real")
	}

	same := Int().MergeWithConversion(Int())
	if !same.Maybe(RInt) || same.Maybe(RReal) {
		t.Error("int+int must stay int")
	}
}

func TestUnionIntersect(t *testing.T) {
	u := Int().Union(Real())
	if !u.Maybe(RInt) || !u.Maybe(RReal) {
		t.Error("union must include both kinds")
	}

	m := u.Intersect(Int())
	if !m.Maybe(RInt) || m.Maybe(RReal) {
		t.Error("intersect must keep only the common kinds")
	}
}

func TestTestTypeIsDisjoint(t *testing.T) {
	if TestType().IsA(Lgl()) {
		t.Error("the native test type must not be a logical")
	}
	if !TestType().IsA(TestType()) {
		t.Error("the native test type must be reflexive")
	}
	if Int().Scalar().IsA(TestType()) {
		t.Error("integers must not collapse into the test type")
	}
}

package native

import (
	"testing"

	"pyrite/pir"
)

func TestRepOf(t *testing.T) {
	cases := []struct {
		name string
		typ  pir.Type
		want Rep
	}{
		{"scalar int", pir.Int().Scalar().NotObject(), RepInt32},
		{"scalar lgl", pir.Lgl().Scalar().NotObject(), RepInt32},
		{"scalar real", pir.Real().Scalar().NotObject(), RepFloat64},
		{"native test", pir.TestType(), RepInt32},
		{"int vector", pir.Int().NotObject(), RepBoxed},
		{"scalar object int", pir.Int().Scalar(), RepBoxed},
		{"scalar int|real", pir.IntReal().Scalar().NotObject(), RepBoxed},
		{"closure", pir.ClosT(), RepBoxed},
		{"environment", pir.EnvT(), RepBoxed},
		{"void", pir.Void(), RepBottom},
	}

	for _, c := range cases {
		if got := RepOf(c.typ); got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func TestRepMerge(t *testing.T) {
	r := RepInt32
	if !r.Merge(RepFloat64) || r != RepFloat64 {
		t.Error("merging a wider representation must widen and report change")
	}
	if r.Merge(RepInt32) || r != RepFloat64 {
		t.Error("merging a narrower representation must be a no-op")
	}
	if !r.Merge(RepBoxed) || r != RepBoxed {
		t.Error("boxed must dominate")
	}
}

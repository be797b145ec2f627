package rt

import "testing"

func TestDeoptMetadataRoundTrip(t *testing.T) {
	m := &DeoptMetadata{Frames: []FrameInfo{
		{CodeUID: 7, PCOffset: 42, StackSize: 3, InPromise: true},
		{CodeUID: 9, PCOffset: 0, StackSize: 0, InPromise: false},
	}}

	buf := m.Serialize()
	if len(buf) != 4+16*2 {
		t.Fatalf("expected %d bytes, got %d", 4+16*2, len(buf))
	}

	back, err := ParseDeoptMetadata(buf)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(back.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(back.Frames))
	}
	for i, f := range back.Frames {
		if f != m.Frames[i] {
			t.Errorf("frame %d mismatch: %+v != %+v", i, f, m.Frames[i])
		}
	}
}

func TestDeoptMetadataEmpty(t *testing.T) {
	m := &DeoptMetadata{}

	back, err := ParseDeoptMetadata(m.Serialize())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(back.Frames) != 0 {
		t.Errorf("expected no frames, got %d", len(back.Frames))
	}
}

func TestDeoptMetadataTruncated(t *testing.T) {
	m := &DeoptMetadata{Frames: []FrameInfo{{CodeUID: 1}}}

	buf := m.Serialize()
	if _, err := ParseDeoptMetadata(buf[:len(buf)-1]); err == nil {
		t.Error("a truncated blob must not parse")
	}
}

func TestPoolInterning(t *testing.T) {
	p := NewPool()

	a := IntConst(1)
	b := IntConst(2)

	ia := p.Insert(a.Addr)
	ib := p.Insert(b.Addr)
	if ia == ib {
		t.Error("distinct objects must get distinct pool indices")
	}
	if p.Insert(a.Addr) != ia {
		t.Error("re-inserting must return the existing index")
	}
	if p.At(ia) != a.Addr {
		t.Error("pool lookup must return the interned object")
	}
}

func TestInstallInterning(t *testing.T) {
	x := Install("x")
	if Install("x") != x {
		t.Error("symbols must be interned")
	}
	if Install("y") == x {
		t.Error("distinct names must be distinct symbols")
	}
}

package regalloc

import (
	"fmt"

	"pyrite/analysis"
	"pyrite/pir"
)

// Allocator assigns each boxed SSA value that needs storage to a stack frame
// slot such that no two interfering values share one.  Unboxed values get
// allocas or stay in SSA form and are not the allocator's business.
type Allocator struct {
	code *pir.Code
	live *analysis.Liveness

	// needsSlot decides whether a value competes for a stack slot; the
	// caller supplies it because the decision depends on representation
	// selection.
	needsSlot func(*pir.Instr) bool

	slots map[*pir.Instr]int
	n     int
}

// NeedsAVariable reports whether the value needs storage at all: it must
// produce a result and not be a constant load (or a cast of one); those are
// rematerialized at each use.
func NeedsAVariable(i *pir.Instr) bool {
	return i.ProducesResult() && pir.IsConst(i) == nil
}

// New computes a slot assignment for the given code.
func New(code *pir.Code, live *analysis.Liveness, needsSlot func(*pir.Instr) bool) *Allocator {
	a := &Allocator{
		code:      code,
		live:      live,
		needsSlot: needsSlot,
		slots:     make(map[*pir.Instr]int),
	}
	a.compute()
	return a
}

// Interfere reports whether two values must not share a slot: their live
// ranges overlap, or either carries a type-feedback origin.  Feedback slots
// are kept distinct so the runtime profiler can locate them by slot index.
func (a *Allocator) Interfere(x, y *pir.Instr) bool {
	if x == y {
		return false
	}
	if x.TypeFeedback != nil || y.TypeFeedback != nil {
		return true
	}

	return a.live.LiveAfter(x, y) || a.live.LiveAfter(y, x)
}

// compute greedily colors the values in reverse postorder with the smallest
// slot not used by an interfering, already-colored value.
func (a *Allocator) compute() {
	var order []*pir.Instr
	a.code.VisitInstrs(func(i *pir.Instr) {
		if NeedsAVariable(i) && a.needsSlot(i) && a.live.Count(i) {
			order = append(order, i)
		}
	})

	for _, i := range order {
		taken := make(map[int]bool)
		for j, slot := range a.slots {
			if a.Interfere(i, j) {
				taken[slot] = true
			}
		}

		slot := 0
		for taken[slot] {
			slot++
		}

		a.slots[i] = slot
		if slot+1 > a.n {
			a.n = slot + 1
		}
	}
}

// Slot returns the assigned slot of a value.
func (a *Allocator) Slot(i *pir.Instr) (int, bool) {
	s, ok := a.slots[i]
	return s, ok
}

// NumSlots returns the total number of slots allocated.
func (a *Allocator) NumSlots() int { return a.n }

// Verify asserts the coloring: no two interfering values share a slot.
func (a *Allocator) Verify() error {
	for x, sx := range a.slots {
		for y, sy := range a.slots {
			if x != y && sx == sy && a.Interfere(x, y) {
				return fmt.Errorf("regalloc: %s and %s interfere but share slot %d", x, y, sx)
			}
		}
	}

	return nil
}

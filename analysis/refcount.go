package analysis

import "pyrite/pir"

// RefcountKind is a named-count adjustment the lowerer must emit.
type RefcountKind uint8

const (
	// EnsureNamed raises NAMED from 0 to 1.
	EnsureNamed RefcountKind = iota + 1

	// SetShared raises NAMED to at least 2.
	SetShared
)

// Refcount is the result of the reference-count analysis: which adjustments
// to emit before an instruction uses an operand, and which to emit at a
// value's creation site.  The analysis itself runs in the optimizer; the
// lowering core only consumes its annotations.
type Refcount struct {
	// BeforeUse[i][j] asks for an adjustment of operand j right before
	// instruction i executes.
	BeforeUse map[*pir.Instr]map[*pir.Instr]RefcountKind

	// AtCreation[i] asks for an adjustment of i's own value once it has
	// been computed.
	AtCreation map[*pir.Instr]RefcountKind
}

// NewRefcount creates an empty annotation table (no adjustments required).
func NewRefcount() *Refcount {
	return &Refcount{
		BeforeUse:  make(map[*pir.Instr]map[*pir.Instr]RefcountKind),
		AtCreation: make(map[*pir.Instr]RefcountKind),
	}
}

// RequireBeforeUse records that instruction i needs operand j adjusted.
func (r *Refcount) RequireBeforeUse(i, j *pir.Instr, kind RefcountKind) {
	m := r.BeforeUse[i]
	if m == nil {
		m = make(map[*pir.Instr]RefcountKind)
		r.BeforeUse[i] = m
	}

	m[j] = kind
}

// RequireAtCreation records that i's value needs adjusting once computed.
func (r *Refcount) RequireAtCreation(i *pir.Instr, kind RefcountKind) {
	r.AtCreation[i] = kind
}

package analysis

import "pyrite/pir"

// instrSet is a set of SSA definitions keyed by instruction id.
type instrSet map[int]*pir.Instr

func (s instrSet) clone() instrSet {
	c := make(instrSet, len(s))
	for k, v := range s {
		c[k] = v
	}

	return c
}

func (s instrSet) add(i *pir.Instr) bool {
	if _, ok := s[i.ID]; ok {
		return false
	}

	s[i.ID] = i
	return true
}

func (s instrSet) remove(i *pir.Instr) { delete(s, i.ID) }

func (s instrSet) has(i *pir.Instr) bool {
	_, ok := s[i.ID]
	return ok
}

func (s instrSet) equal(o instrSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}

	return true
}

// Liveness holds, for every instruction position, the set of SSA values live
// after it, plus per-block live-at-entry sets.
//
// Phi arguments are live at the end of the predecessor block they flow in
// from, not at the phi's own block entry; the phi itself is live in its own
// block from entry (it occupies its storage from the moment the block is
// entered, having been written at the end of every predecessor).
type Liveness struct {
	code *pir.Code

	// after[bbID][idx] is the live set after instruction idx of the block.
	after map[int][]instrSet

	// entry[bbID] is the live set at block entry.
	entry map[int]instrSet

	// anywhere is the union of all live sets: values that are live at some
	// position.  A definition that never appears is dead everywhere.
	anywhere instrSet
}

// ComputeLiveness runs the backward dataflow to a fixpoint.  The code must
// have been renumbered.
func ComputeLiveness(code *pir.Code) *Liveness {
	l := &Liveness{
		code:     code,
		after:    make(map[int][]instrSet),
		entry:    make(map[int]instrSet),
		anywhere: make(instrSet),
	}

	blocks := code.Blocks()
	for _, bb := range blocks {
		l.after[bb.ID] = make([]instrSet, len(bb.Instrs))
		l.entry[bb.ID] = make(instrSet)
	}

	for changed := true; changed; {
		changed = false
		// Iterate blocks backward over the reverse postorder so most
		// information flows in one sweep.
		for k := len(blocks) - 1; k >= 0; k-- {
			if l.flowBlock(blocks[k]) {
				changed = true
			}
		}
	}

	for _, bb := range blocks {
		for _, s := range l.after[bb.ID] {
			for _, v := range s {
				l.anywhere.add(v)
			}
		}
		for _, v := range l.entry[bb.ID] {
			l.anywhere.add(v)
		}
	}

	return l
}

// flowBlock recomputes one block's sets; reports whether the entry set grew.
func (l *Liveness) flowBlock(bb *pir.BB) bool {
	// Live after the last instruction: everything live at a successor's
	// entry (which includes that successor's phis) plus the values this
	// block feeds into successor phis.
	out := make(instrSet)
	var succPhis []*pir.Instr
	for _, s := range bb.Succs {
		for _, v := range l.entry[s.ID] {
			out.add(v)
		}
		for _, phi := range s.Phis() {
			succPhis = append(succPhis, phi)
			for k, pred := range phi.PhiInputs {
				if pred == bb {
					if in := pir.AsInstr(phi.Args[k]); in != nil {
						out.add(in)
					}
				}
			}
		}
	}

	live := out.clone()
	// The phi copies at the end of this block are the defs of the successor
	// phis; above them the phis are not yet live here.
	for _, phi := range succPhis {
		live.remove(phi)
	}

	for idx := len(bb.Instrs) - 1; idx >= 0; idx-- {
		i := bb.Instrs[idx]

		if idx == len(bb.Instrs)-1 {
			l.after[bb.ID][idx] = out
		} else {
			l.after[bb.ID][idx] = live.clone()
		}

		// The definition kills the value, except for phis: a phi is live
		// from its block's entry.
		if i.Tag != pir.Phi {
			live.remove(i)
			for _, a := range i.Args {
				if in := pir.AsInstr(a); in != nil {
					live.add(in)
				}
			}
		}
	}

	if live.equal(l.entry[bb.ID]) {
		return false
	}

	l.entry[bb.ID] = live
	return true
}

// Count reports whether the value is live anywhere at all.
func (l *Liveness) Count(v *pir.Instr) bool {
	return l.anywhere.has(v)
}

// Live reports whether v is live after position idx of block bb.
func (l *Liveness) Live(bb *pir.BB, idx int, v *pir.Instr) bool {
	sets := l.after[bb.ID]
	if idx < 0 || idx >= len(sets) {
		return false
	}

	return sets[idx].has(v)
}

// LiveAfter reports whether v is live after instruction at.
func (l *Liveness) LiveAfter(at, v *pir.Instr) bool {
	return l.Live(at.Block, at.Index, v)
}

// LiveAtEntry reports whether v is live when block bb is entered.
func (l *Liveness) LiveAtEntry(bb *pir.BB, v *pir.Instr) bool {
	return l.entry[bb.ID].has(v)
}

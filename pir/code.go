package pir

// BB is a basic block: an ordered sequence of instructions and up to two
// successors.  Successor 0 is the fall-through (or true) branch, successor 1
// the false branch.
type BB struct {
	ID     int
	Instrs []*Instr
	Succs  []*BB

	// Deopt marks blocks that terminate in a scheduled deopt.
	Deopt bool

	owner *Code
}

// Append adds an instruction to the block and records its owner.
func (bb *BB) Append(i *Instr) *Instr {
	i.Block = bb
	bb.Instrs = append(bb.Instrs, i)
	return i
}

// SetSuccs wires the block's successors.
func (bb *BB) SetSuccs(succs ...*BB) {
	if len(succs) > 2 {
		panic("pir: a basic block has at most two successors")
	}

	bb.Succs = succs
}

// IsJmp reports whether the block has exactly one successor.
func (bb *BB) IsJmp() bool { return len(bb.Succs) == 1 }

// Next returns the fall-through successor of a jump block.
func (bb *BB) Next() *BB { return bb.Succs[0] }

// TrueBranch and FalseBranch return the branch targets of a two-successor
// block.
func (bb *BB) TrueBranch() *BB  { return bb.Succs[0] }
func (bb *BB) FalseBranch() *BB { return bb.Succs[1] }

// IsDeopt reports whether the block is a deopt exit.
func (bb *BB) IsDeopt() bool { return bb.Deopt }

// Last returns the final instruction of the block, or nil.
func (bb *BB) Last() *Instr {
	if len(bb.Instrs) == 0 {
		return nil
	}

	return bb.Instrs[len(bb.Instrs)-1]
}

// Phis returns the phi instructions of the block (they lead the block).
func (bb *BB) Phis() []*Instr {
	var phis []*Instr
	for _, i := range bb.Instrs {
		if i.Tag == Phi {
			phis = append(phis, i)
		}
	}

	return phis
}

// -----------------------------------------------------------------------------

// Code is the control-flow graph of one function or promise body.
type Code struct {
	Name  string
	Entry *BB

	// UID identifies the code object for deopt metadata.
	UID uint32

	nextBBID  int
	numInstrs int
}

// NewCode creates an empty code object with an entry block.
func NewCode(name string) *Code {
	c := &Code{Name: name}
	c.Entry = c.NewBB()
	return c
}

// NewBB creates a fresh block with a monotone id.
func (c *Code) NewBB() *BB {
	bb := &BB{ID: c.nextBBID, owner: c}
	c.nextBBID++
	return bb
}

// NumInstrs returns the number of instructions after the last Renumber.
func (c *Code) NumInstrs() int { return c.numInstrs }

// Blocks returns the blocks in reverse postorder from the entry.
func (c *Code) Blocks() []*BB {
	var post []*BB
	seen := make(map[*BB]bool)

	var walk func(bb *BB)
	walk = func(bb *BB) {
		if seen[bb] {
			return
		}
		seen[bb] = true

		for _, s := range bb.Succs {
			walk(s)
		}
		post = append(post, bb)
	}
	walk(c.Entry)

	// Reverse the postorder.
	for l, r := 0, len(post)-1; l < r; l, r = l+1, r-1 {
		post[l], post[r] = post[r], post[l]
	}

	return post
}

// Preds returns the predecessor map of the graph.
func (c *Code) Preds() map[*BB][]*BB {
	preds := make(map[*BB][]*BB)
	for _, bb := range c.Blocks() {
		for _, s := range bb.Succs {
			preds[s] = append(preds[s], bb)
		}
	}

	return preds
}

// Renumber assigns every instruction its global id and per-block index.
// Analyses and the lowerer require positions to be current.
func (c *Code) Renumber() {
	id := 0
	for _, bb := range c.Blocks() {
		for idx, i := range bb.Instrs {
			i.ID = id
			i.Index = idx
			i.Block = bb
			id++
		}
	}

	c.numInstrs = id
}

// VisitInstrs applies f to every instruction in reverse postorder.
func (c *Code) VisitInstrs(f func(i *Instr)) {
	for _, bb := range c.Blocks() {
		for _, i := range bb.Instrs {
			f(i)
		}
	}
}

package pir

import "pyrite/rt"

// NewInstr creates a bare instruction with no environment argument.  The
// bytecode-to-PIR translator builds instructions through these constructors
// so positional payloads (environment index, phi inputs) stay consistent.
func NewInstr(tag Tag, typ Type, args ...Value) *Instr {
	return &Instr{Tag: tag, Typ: typ, Args: args, EnvIdx: -1}
}

// NewInstrEnv creates an instruction whose last argument is its environment.
func NewInstrEnv(tag Tag, typ Type, env Value, args ...Value) *Instr {
	args = append(args, env)
	return &Instr{Tag: tag, Typ: typ, Args: args, EnvIdx: len(args) - 1}
}

// NewLdConst creates a constant load.
func NewLdConst(c *rt.Const) *Instr {
	typ := NewType(RVec)
	switch c.Kind {
	case rt.IntSxp:
		typ = NewType(RInt).NotObject().NoAttribs()
	case rt.RealSxp:
		typ = NewType(RReal).NotObject().NoAttribs()
	case rt.LglSxp:
		typ = NewType(RLogical).NotObject().NoAttribs()
	case rt.StrSxp:
		typ = NewType(RStr).NotObject().NoAttribs()
	case rt.CloSxp:
		typ = NewType(RClosure)
	case rt.EnvSxp:
		typ = EnvT()
	}
	if c.Length() == 1 {
		typ = typ.Scalar()
		switch c.Kind {
		case rt.IntSxp:
			if c.Ints[0] != rt.NAInteger {
				typ = typ.NotNA()
			}
		case rt.LglSxp:
			if c.Lgls[0] != rt.NAInteger {
				typ = typ.NotNA()
			}
		case rt.RealSxp:
			if c.Reals[0] == c.Reals[0] {
				typ = typ.NotNA()
			}
		}
	}

	i := NewInstr(LdConst, typ)
	i.Const = c
	return i
}

// NewLdVar creates a variable load from the given environment.
func NewLdVar(name string, env Value) *Instr {
	i := NewInstrEnv(LdVar, NewType(RVec|RInt|RReal|RLogical|RStr|RClosure).OrLazy().OrPromiseWrapped(), env)
	i.VarName = rt.Install(name)
	i.Effects = i.Effects.With(EffectReadsEnv).With(EffectError)
	return i
}

// NewStVar creates a variable store into the given environment.
func NewStVar(name string, val, env Value) *Instr {
	i := NewInstrEnv(StVar, Void(), env, val)
	// The value precedes the environment.
	i.VarName = rt.Install(name)
	i.Effects = i.Effects.With(EffectWritesEnv)
	return i
}

// NewPhi creates a phi joining the given (predecessor, value) pairs.
func NewPhi(typ Type) *Instr {
	return NewInstr(Phi, typ)
}

// AddPhiInput registers an incoming (predecessor, value) pair on a phi.
func (i *Instr) AddPhiInput(pred *BB, v Value) {
	if i.Tag != Phi {
		panic("pir: AddPhiInput on a non-phi")
	}

	i.Args = append(i.Args, v)
	i.PhiInputs = append(i.PhiInputs, pred)
}

// NewBranch creates a conditional branch on the given truth value.
func NewBranch(cond Value) *Instr {
	return NewInstr(Branch, Void(), cond)
}

// NewReturn creates a return of the given value.
func NewReturn(v Value) *Instr {
	return NewInstr(Return, Void(), v)
}

// NewMkEnv creates an environment construction instruction.  The parent is
// the env argument; names and values are parallel.
func NewMkEnv(parent Value, names []string, vals []Value, stub bool) *Instr {
	i := NewInstrEnv(MkEnv, EnvT(), parent, vals...)
	// Args layout: locals..., parent.
	for _, n := range names {
		i.Names = append(i.Names, rt.Install(n))
	}
	i.MissingMask = make([]bool, len(names))
	i.Stub = stub
	return i
}

// LocalIndex returns the index of the named local inside a MkEnv, or -1.
func (i *Instr) LocalIndex(name *rt.Symbol) int {
	for j, n := range i.Names {
		if n == name {
			return j
		}
	}

	return -1
}

// NLocals returns the number of locals of a MkEnv.
func (i *Instr) NLocals() int { return len(i.Names) }

// LocalVal returns the value bound to the j-th local of a MkEnv.
func (i *Instr) LocalVal(j int) Value { return i.Args[j] }

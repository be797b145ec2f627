package native

import (
	"math"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"pyrite/pir"
	"pyrite/rt"
)

// vectorTypeSupport reports whether the fast paths can address elements of
// this vector type directly.
func (l *LowerFunction) vectorTypeSupport(v pir.Value) bool {
	t := v.Type()
	return t.IsA(pir.AnyVec().NotObject()) ||
		t.IsA(pir.Int().NotObject()) ||
		t.IsA(pir.Lgl().NotObject()) ||
		t.IsA(pir.Real().NotObject())
}

// scalarNumericIndex reports whether an index value qualifies for the fast
// path.
func scalarNumericIndex(v pir.Value) bool {
	return v.Type().IsA(pir.IntReal().NotObject().Scalar())
}

// computeAndCheckIndex turns a 1-based index value into a checked 0-based
// native i64.  Out-of-range, NA and NaN indices branch to fallback.  max
// bounds the index; when nil the vector's length (or 1 for unboxed scalars)
// is used.
func (l *LowerFunction) computeAndCheckIndex(index pir.Value, vector value.Value,
	fallback *ir.Block, max value.Value) value.Value {

	hit1 := l.newBlock("")
	hit := l.newBlock("")

	rep := RepOfValue(index)
	var nativeIndex value.Value

	if rep == RepBoxed {
		nativeIndex = l.loadSxp(index)
		if RepOf(index.Type()) == RepInt32 {
			nativeIndex = l.unboxInt(nativeIndex)
			rep = RepInt32
		} else {
			nativeIndex = l.unboxRealIntLgl(nativeIndex)
			rep = RepFloat64
		}
	} else {
		nativeIndex = l.load(index)
	}

	if rep == RepFloat64 {
		underRange := l.bb.NewFCmp(enum.FPredULT, nativeIndex, cf64(1.0))
		overRange := l.bb.NewFCmp(enum.FPredUGE, nativeIndex, cf64(math.MaxUint64))
		isNa := l.bb.NewFCmp(enum.FPredUNE, nativeIndex, nativeIndex)
		bad := l.bb.NewOr(underRange, l.bb.NewOr(overRange, isNa))

		l.condBr(bad, fallback, hit1, hintMostlyFalse)
		l.setBlock(hit1)

		nativeIndex = l.bb.NewFPToUI(nativeIndex, types.I64)
	} else {
		underRange := l.bb.NewICmp(enum.IPredSLT, nativeIndex, ci32(1))
		isNa := l.bb.NewICmp(enum.IPredEQ, nativeIndex, ci32(int64(rt.NAInteger)))
		bad := l.bb.NewOr(underRange, isNa)

		l.condBr(bad, fallback, hit1, hintMostlyFalse)
		l.setBlock(hit1)

		nativeIndex = l.bb.NewZExt(nativeIndex, types.I64)
	}

	// Indexing is 1-based at the language level.
	sub := l.bb.NewSub(nativeIndex, ci64(1))
	sub.OverflowFlags = []enum.OverflowFlag{enum.OverflowFlagNSW, enum.OverflowFlagNUW}
	nativeIndex = sub

	if max == nil {
		if vector.Type() == l.t.Sexp {
			max = l.vectorLength(vector)
		} else {
			max = ci64(1)
		}
	}

	overRange := l.bb.NewICmp(enum.IPredUGE, nativeIndex, max)
	l.condBr(overRange, fallback, hit, hintMostlyFalse)
	l.setBlock(hit)

	return nativeIndex
}

// extractFastGuards emits the altrep (and, when needed, attribute) guards of
// an extract fast path on a boxed vector.
func (l *LowerFunction) extractFastGuards(vec pir.Value, vector value.Value,
	fallback *ir.Block, checkAttrs bool) {

	if RepOfValue(vec) != RepBoxed {
		return
	}

	hit := l.newBlock("")
	l.condBr(l.isAltrep(vector), fallback, hit, hintMostlyFalse)
	l.setBlock(hit)

	if checkAttrs && vec.Type().MaybeHasAttrs() {
		hit2 := l.newBlock("")
		l.condBr(l.fastVeceltOk(vector), hit2, fallback, hintMostlyTrue)
		l.setBlock(hit2)
	}
}

// lowerExtract1D lowers one-dimensional reads.  The dispatching variant
// ([ ]) excludes generic vectors and objects from the fast path and guards
// attributes; the non-dispatching variant ([[ ]]) only excludes unsupported
// payloads.
func (l *LowerFunction) lowerExtract1D(i *pir.Instr, dispatching bool) {
	vec := i.Args[0]
	idx := i.Args[1]

	fastcase := l.opts.FastVectorAccess &&
		l.vectorTypeSupport(vec) && scalarNumericIndex(idx)
	if dispatching {
		fastcase = fastcase && !vec.Type().Maybe(pir.RVec) && !vec.Type().MaybeObj()
	}

	var done *ir.Block
	res := l.phiBuilder()

	if fastcase {
		fallback := l.newBlock("")
		done = l.newBlock("")

		vector := l.load(vec)
		l.extractFastGuards(vec, vector, fallback, dispatching)

		index := l.computeAndCheckIndex(idx, vector, fallback, nil)

		var res0 value.Value
		if vec.Type().IsScalar() {
			// A single-element vector is its own element.
			res0 = vector
		} else {
			res0 = l.accessVector(vector, index, vec.Type())
		}
		res.addInput(l.convert(res0, i.Typ, true))
		l.br(done)

		l.setBlock(fallback)
	}

	var res0 value.Value
	if dispatching {
		res0 = l.callBuiltin("extract_11",
			l.loadSxp(vec), l.loadSxp(idx), l.envOrNil(i), ci32(int64(i.SrcIdx)))
	} else {
		switch RepOfValue(idx) {
		case RepInt32:
			res0 = l.callBuiltin("extract_21_int",
				l.loadSxp(vec), l.load(idx), l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
		case RepFloat64:
			res0 = l.callBuiltin("extract_21_real",
				l.loadSxp(vec), l.load(idx), l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
		default:
			res0 = l.callBuiltin("extract_21",
				l.loadSxp(vec), l.loadSxp(idx), l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
		}
	}

	res.addInput(l.convert(res0, i.Typ, true))
	if fastcase {
		l.br(done)
		l.setBlock(done)
	}

	l.setVal(i, res.value())
}

// matrixIndex computes the linear element index of a 2-D access, bounds
// checking both coordinates.
func (l *LowerFunction) matrixIndex(idx1, idx2 pir.Value,
	vector value.Value, fallback *ir.Block) value.Value {

	ncol := l.bb.NewZExt(l.callBuiltin("matrix_ncols", vector), types.I64)
	nrow := l.bb.NewZExt(l.callBuiltin("matrix_nrows", vector), types.I64)

	index1 := l.computeAndCheckIndex(idx1, vector, fallback, nrow)
	index2 := l.computeAndCheckIndex(idx2, vector, fallback, ncol)

	mul := l.bb.NewMul(nrow, index2)
	mul.OverflowFlags = []enum.OverflowFlag{enum.OverflowFlagNSW, enum.OverflowFlagNUW}
	add := l.bb.NewAdd(mul, index1)
	add.OverflowFlags = []enum.OverflowFlag{enum.OverflowFlagNSW, enum.OverflowFlagNUW}
	return add
}

// lowerExtract2D lowers two-dimensional reads.
func (l *LowerFunction) lowerExtract2D(i *pir.Instr, dispatching bool) {
	vec := i.Args[0]
	idx1 := i.Args[1]
	idx2 := i.Args[2]

	fastcase := l.opts.FastVectorAccess && l.vectorTypeSupport(vec) &&
		scalarNumericIndex(idx1) && scalarNumericIndex(idx2)
	if dispatching {
		fastcase = fastcase && !vec.Type().Maybe(pir.RVec) && !vec.Type().MaybeObj()
	}

	var done *ir.Block
	res := l.phiBuilder()

	if fastcase {
		fallback := l.newBlock("")
		done = l.newBlock("")

		vector := l.load(vec)
		l.extractFastGuards(vec, vector, fallback, dispatching)

		index := l.matrixIndex(idx1, idx2, vector, fallback)

		var res0 value.Value
		if vec.Type().IsScalar() {
			res0 = vector
		} else {
			res0 = l.accessVector(vector, index, vec.Type())
		}
		res.addInput(l.convert(res0, i.Typ, true))
		l.br(done)

		l.setBlock(fallback)
	}

	var res0 value.Value
	if dispatching {
		res0 = l.callBuiltin("extract_12",
			l.loadSxp(vec), l.loadSxp(idx1), l.loadSxp(idx2),
			l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
	} else {
		irep := RepOfValue(idx1)
		if irep != RepBoxed && RepOfValue(idx2) == irep {
			name := "extract_22_ii"
			if irep == RepFloat64 {
				name = "extract_22_rr"
			}
			res0 = l.callBuiltin(name,
				l.loadSxp(vec), l.load(idx1), l.load(idx2),
				l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
		} else {
			res0 = l.callBuiltin("extract_22",
				l.loadSxp(vec), l.loadSxp(idx1), l.loadSxp(idx2),
				l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
		}
	}

	res.addInput(l.convert(res0, i.Typ, true))
	if fastcase {
		l.br(done)
		l.setBlock(done)
	}

	l.setVal(i, res.value())
}

// subassignFastOk checks the type preconditions of an in-place vector
// write: scalar numeric index, scalar same-typed value, non-object vector.
func subassignFastOk(vec, val, idx pir.Value) bool {
	vecType := vec.Type()
	valType := val.Type()

	return scalarNumericIndex(idx) && valType.IsScalar() && !vecType.MaybeObj() &&
		((vecType.IsA(pir.Int()) && valType.IsA(pir.Int())) ||
			(vecType.IsA(pir.Real()) && valType.IsA(pir.Real())))
}

// lowerSubassign1D lowers one-dimensional writes.  The fast path requires
// the vector not to be shared so the update may happen in place.
func (l *LowerFunction) lowerSubassign1D(i *pir.Instr, dispatching bool) {
	vec := i.Args[0]
	idx := i.Args[1]
	val := i.Args[2]

	fastcase := l.opts.FastVectorAccess && subassignFastOk(vec, val, idx)

	var done *ir.Block
	res := l.phiBuilder()

	if fastcase {
		fallback := l.newBlock("")
		done = l.newBlock("")

		vector := l.load(vec)
		if RepOfValue(vec) == RepBoxed {
			hit1 := l.newBlock("")
			l.condBr(l.isAltrep(vector), fallback, hit1, hintMostlyFalse)
			l.setBlock(hit1)

			if dispatching && vec.Type().MaybeHasAttrs() {
				hit2 := l.newBlock("")
				l.condBr(l.fastVeceltOk(vector), hit2, fallback, hintMostlyTrue)
				l.setBlock(hit2)
			}

			hit3 := l.newBlock("")
			l.condBr(l.shared(vector), fallback, hit3, hintMostlyFalse)
			l.setBlock(hit3)
		}

		index := l.computeAndCheckIndex(idx, vector, fallback, nil)

		v := l.load(val)
		if RepOfValue(i) == RepBoxed {
			l.assignVector(vector, index, v, vec.Type())
			res.addInput(l.convert(vector, i.Typ, true))
		} else {
			res.addInput(l.convert(v, i.Typ, true))
		}
		l.br(done)

		l.setBlock(fallback)
	}

	var res0 value.Value
	if dispatching {
		res0 = l.callBuiltin("subassign_11",
			l.loadSxp(vec), l.loadSxp(idx), l.loadSxp(val),
			l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
	} else {
		irep := RepOfValue(idx)
		vrep := RepOfValue(val)
		if irep != RepBoxed && vrep != RepBoxed {
			name := "subassign_21_ii"
			switch {
			case irep == RepInt32 && vrep == RepFloat64:
				name = "subassign_21_ir"
			case irep == RepFloat64 && vrep == RepInt32:
				name = "subassign_21_ri"
			case irep == RepFloat64 && vrep == RepFloat64:
				name = "subassign_21_rr"
			}
			res0 = l.callBuiltin(name,
				l.loadSxp(vec), l.load(idx), l.load(val),
				l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
		} else {
			res0 = l.callBuiltin("subassign_21",
				l.loadSxp(vec), l.loadSxp(idx), l.loadSxp(val),
				l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
		}
	}

	res.addInput(l.convert(res0, i.Typ, true))
	if fastcase {
		l.br(done)
		l.setBlock(done)
	}

	l.setVal(i, res.value())
}

// lowerSubassign2_2D lowers non-dispatching two-dimensional writes.
func (l *LowerFunction) lowerSubassign2_2D(i *pir.Instr) {
	vec := i.Args[0]
	idx1 := i.Args[1]
	idx2 := i.Args[2]
	val := i.Args[3]

	fastcase := l.opts.FastVectorAccess &&
		scalarNumericIndex(idx1) && scalarNumericIndex(idx2) &&
		val.Type().IsScalar() && !vec.Type().MaybeObj() &&
		((vec.Type().IsA(pir.Int()) && val.Type().IsA(pir.Int())) ||
			(vec.Type().IsA(pir.Real()) && val.Type().IsA(pir.Real())))

	var done *ir.Block
	res := l.phiBuilder()

	if fastcase {
		fallback := l.newBlock("")
		done = l.newBlock("")

		vector := l.load(vec)
		if RepOfValue(vec) == RepBoxed {
			hit := l.newBlock("")
			l.condBr(l.shared(vector), fallback, hit, hintMostlyFalse)
			l.setBlock(hit)
		}

		index := l.matrixIndex(idx1, idx2, vector, fallback)

		v := l.load(val)
		if RepOfValue(i) == RepBoxed {
			l.assignVector(vector, index, v, vec.Type())
			res.addInput(l.convert(vector, i.Typ, true))
		} else {
			res.addInput(l.convert(v, i.Typ, true))
		}
		l.br(done)

		l.setBlock(fallback)
	}

	var res0 value.Value
	irep := RepOfValue(idx1)
	vrep := RepOfValue(val)
	if RepOfValue(idx2) == irep && irep != RepBoxed && vrep != RepBoxed {
		name := "subassign_22_iii"
		switch {
		case irep == RepInt32 && vrep == RepFloat64:
			name = "subassign_22_iir"
		case irep == RepFloat64 && vrep == RepInt32:
			name = "subassign_22_rri"
		case irep == RepFloat64 && vrep == RepFloat64:
			name = "subassign_22_rrr"
		}
		res0 = l.callBuiltin(name,
			l.loadSxp(vec), l.load(idx1), l.load(idx2), l.load(val),
			l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
	} else {
		res0 = l.callBuiltin("subassign_22",
			l.loadSxp(vec), l.loadSxp(idx1), l.loadSxp(idx2), l.loadSxp(val),
			l.loadSxp(i.Env()), ci32(int64(i.SrcIdx)))
	}

	res.addInput(res0)
	if fastcase {
		l.br(done)
		l.setBlock(done)
	}

	l.setVal(i, res.value())
}

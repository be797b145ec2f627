package rt

// BuiltinNames is the closed set of native builtins generated code may call.
// The embedding runtime must supply an entry address for each.
var BuiltinNames = []string{
	"box_int", "box_int_from_real", "box_real", "box_real_from_int",
	"box_lgl", "box_lgl_from_real", "box_tst",
	"force_promise",
	"call", "named_call", "dots_call", "native_call_trampoline",
	"call_builtin",
	"create_environment", "create_stub_environment", "materialize_environment",
	"external_set_entry",
	"create_binding_cell", "create_missing_binding_cell",
	"ldfun", "ldvar", "ldvar_for_update", "ldvar_cache_miss",
	"stvar", "stvar_int", "starg", "defvar", "is_missing",
	"extract_11", "extract_12", "extract_13",
	"extract_21", "extract_21_int", "extract_21_real",
	"extract_22", "extract_22_ii", "extract_22_rr",
	"subassign_11", "subassign_12", "subassign_13",
	"subassign_21", "subassign_21_ii", "subassign_21_ir",
	"subassign_21_ri", "subassign_21_rr",
	"subassign_22", "subassign_22_iii", "subassign_22_iir",
	"subassign_22_rri", "subassign_22_rrr",
	"length", "xlength", "matrix_ncols", "matrix_nrows",
	"names", "set_names", "get_attrib",
	"binop", "binop_env", "unop", "unop_env", "not", "not_env",
	"colon", "colon_cast_lhs", "colon_cast_rhs", "colon_input_effects",
	"for_seq_size",
	"as_logical", "as_test",
	"chkfun",
	"deopt", "record_deopt",
	"cons_nr", "make_vector", "create_closure", "create_promise",
	"sum_real", "prod_real",
	"begin_closure_context", "end_closure_context",
	"error", "warn", "assert_fail",
	"set_car", "set_cdr", "set_tag",
}

// Context carries the addresses of the host runtime state the generated code
// touches.  The state itself is global and mutable on the runtime side; the
// lowering core sees it only as a set of stable addresses supplied once per
// embedding.
type Context struct {
	// Address of the thread-local top-of-node-stack pointer.
	NodestackTopAddr uintptr

	// Address of the interpreter visibility flag.
	VisibleAddr uintptr

	// Address of the slot a non-local return deposits its value in.
	ReturnedValueAddr uintptr

	// Address of the pointer to the constant pool vector.
	ConstantPoolAddr uintptr

	// Distinguished eternal singletons.
	Nil          SEXP
	True         SEXP
	False        SEXP
	NaLogical    SEXP
	Unbound      SEXP
	Missing      SEXP
	GlobalEnv    SEXP
	BaseEnv      SEXP
	RestartToken SEXP

	// Entry addresses of the native builtins, keyed by BuiltinNames entries.
	Builtins map[string]uintptr
}

// BuiltinAddr returns the entry address for the named builtin, or 0 when the
// runtime did not supply one.
func (c *Context) BuiltinAddr(name string) uintptr {
	return c.Builtins[name]
}

// IsEternal reports whether the given object is an eternal singleton whose
// address may be embedded directly instead of going through the constant
// pool.  Symbols are eternal too; they are handled by the caller.
func (c *Context) IsEternal(s SEXP) bool {
	switch s {
	case c.Nil, c.True, c.False, c.Unbound, c.Missing, c.GlobalEnv:
		return true
	}

	return false
}

// TestContext fabricates a context with distinct synthetic addresses for
// every singleton and builtin.  It backs the test suite; real embeddings
// build their Context from live runtime addresses instead.
func TestContext() *Context {
	ctx := &Context{
		NodestackTopAddr:  uintptr(newAddr()),
		VisibleAddr:       uintptr(newAddr()),
		ReturnedValueAddr: uintptr(newAddr()),
		ConstantPoolAddr:  uintptr(newAddr()),
		Nil:               newAddr(),
		True:              newAddr(),
		False:             newAddr(),
		NaLogical:         newAddr(),
		Unbound:           newAddr(),
		Missing:           newAddr(),
		GlobalEnv:         newAddr(),
		BaseEnv:           newAddr(),
		RestartToken:      newAddr(),
		Builtins:          make(map[string]uintptr),
	}

	for _, name := range BuiltinNames {
		ctx.Builtins[name] = uintptr(newAddr())
	}

	return ctx
}

package native

import (
	"github.com/llir/llvm/ir/types"
)

// NativeBuiltin is one entry of the closed runtime boundary: an external
// C-linkage function the generated code may call, described by its name and
// typed signature.  The entry address comes from the runtime context at
// lowering time.
type NativeBuiltin struct {
	Name string
	Sig  *types.FuncType
}

// builtinSigs builds the builtin signature table against a module's type
// table.
func builtinSigs(t *typeTable) map[string]*types.FuncType {
	S := t.Sexp
	SP := t.SexpPtr
	i8p := types.I8Ptr
	i32 := types.I32
	i32p := t.I32Ptr
	i64 := types.I64
	f64 := types.Double
	void := types.Void
	cells := t.StackCellPtr
	cntxt := t.RCntxtPtr

	fn := types.NewFunc

	return map[string]*types.FuncType{
		"box_int":           fn(S, i32),
		"box_int_from_real": fn(S, f64),
		"box_real":          fn(S, f64),
		"box_real_from_int": fn(S, i32),
		"box_lgl":           fn(S, i32),
		"box_lgl_from_real": fn(S, f64),
		"box_tst":           fn(S, i32),

		"force_promise": fn(S, S),

		"call":                  fn(S, i8p, i32, S, S, i64, i64),
		"named_call":            fn(S, i8p, i32, S, S, i64, i32p, i64),
		"dots_call":             fn(S, i8p, i32, S, S, i64, i32p, i64),
		"native_call_trampoline": fn(S, S, i8p, i32, S, i64, i64),
		"call_builtin":          fn(S, i8p, i32, S, S, i64),

		"create_environment":      fn(S, S, S, i32),
		"create_stub_environment": fn(S, S, i32, i32p, i32),
		"materialize_environment": fn(S, S),
		"external_set_entry":      fn(void, S, i32, S),

		"create_binding_cell":         fn(S, S, S, S),
		"create_missing_binding_cell": fn(S, S, S, S),

		"ldfun":            fn(S, S, S),
		"ldvar":            fn(S, S, S),
		"ldvar_for_update": fn(S, S, S),
		"ldvar_cache_miss": fn(S, S, S, SP),
		"stvar":            fn(void, S, S, S),
		"stvar_int":        fn(void, S, i32, S),
		"starg":            fn(void, S, S, S),
		"defvar":           fn(void, S, S, S),
		"is_missing":       fn(i32, S, S),

		"extract_11": fn(S, S, S, S, i32),
		"extract_12": fn(S, S, S, S, S, i32),
		"extract_13": fn(S, S, S, S, S, S, i32),

		"extract_21":      fn(S, S, S, S, i32),
		"extract_21_int":  fn(S, S, i32, S, i32),
		"extract_21_real": fn(S, S, f64, S, i32),
		"extract_22":      fn(S, S, S, S, S, i32),
		"extract_22_ii":   fn(S, S, i32, i32, S, i32),
		"extract_22_rr":   fn(S, S, f64, f64, S, i32),

		"subassign_11": fn(S, S, S, S, S, i32),
		"subassign_12": fn(S, S, S, S, S, S, i32),
		"subassign_13": fn(S, S, S, S, S, S, S, i32),

		"subassign_21":    fn(S, S, S, S, S, i32),
		"subassign_21_ii": fn(S, S, i32, i32, S, i32),
		"subassign_21_ir": fn(S, S, i32, f64, S, i32),
		"subassign_21_ri": fn(S, S, f64, i32, S, i32),
		"subassign_21_rr": fn(S, S, f64, f64, S, i32),

		"subassign_22":     fn(S, S, S, S, S, S, i32),
		"subassign_22_iii": fn(S, S, i32, i32, i32, S, i32),
		"subassign_22_iir": fn(S, S, i32, i32, f64, S, i32),
		"subassign_22_rri": fn(S, S, f64, f64, i32, S, i32),
		"subassign_22_rrr": fn(S, S, f64, f64, f64, S, i32),

		"length":       fn(i64, S),
		"xlength":      fn(S, S),
		"matrix_ncols": fn(i32, S),
		"matrix_nrows": fn(i32, S),
		"names":        fn(S, S),
		"set_names":    fn(S, S, S),
		"get_attrib":   fn(S, S, S),

		"binop":     fn(S, S, S, i32),
		"binop_env": fn(S, S, S, S, i32, i32),
		"unop":      fn(S, S, i32),
		"unop_env":  fn(S, S, S, i32, i32),
		"not":       fn(S, S),
		"not_env":   fn(S, S, S, i32),

		"colon":               fn(S, i32, i32),
		"colon_cast_lhs":      fn(S, S),
		"colon_cast_rhs":      fn(S, S, S),
		"colon_input_effects": fn(i32, S, S, i32),
		"for_seq_size":        fn(i64, S),

		"as_logical": fn(i32, S),
		"as_test":    fn(i32, S),

		"chkfun": fn(void, S, S),

		"deopt":        fn(void, i8p, S, i8p, cells),
		"record_deopt": fn(void, S, i8p),

		"cons_nr":        fn(S, S, S),
		"make_vector":    fn(S, i32, i64),
		"create_closure": fn(S, S, S, S, S),
		"create_promise": fn(S, i8p, i32, S, S),

		"sum_real":  fn(f64, S),
		"prod_real": fn(f64, S),

		"begin_closure_context": fn(void, S, cntxt, S, S),
		"end_closure_context":   fn(void, cntxt, S),

		"error":       fn(void, i8p),
		"warn":        fn(void, i8p),
		"assert_fail": fn(void, i8p),

		"set_car": fn(void, S, S),
		"set_cdr": fn(void, S, S),
		"set_tag": fn(void, S, S),
	}
}

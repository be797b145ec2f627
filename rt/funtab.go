package rt

// Visibility dispositions of language builtins, mirroring the eval flag in
// the runtime's function table: 0 forces the result visible, 1 forces it
// invisible, anything else leaves visibility to the builtin itself.
const (
	VisibleForce   = 0
	InvisibleForce = 1
	VisibleKeep    = 2
)

var builtinFlags = map[string]int{
	"invisible":  InvisibleForce,
	"assign":     InvisibleForce,
	"set.seed":   InvisibleForce,
	"length":     VisibleForce,
	"names":      VisibleForce,
	"abs":        VisibleForce,
	"sqrt":       VisibleForce,
	"sum":        VisibleForce,
	"prod":       VisibleForce,
	"min":        VisibleForce,
	"max":        VisibleForce,
	"c":          VisibleForce,
	"list":       VisibleForce,
	"vector":     VisibleForce,
	"as.integer": VisibleForce,
}

// BuiltinFlag returns the visibility disposition for the named builtin.
func BuiltinFlag(name string) int {
	if f, ok := builtinFlags[name]; ok {
		return f
	}

	return VisibleKeep
}

// fastBuiltinCall lists builtins whose runtime entry can be invoked
// through the flat stack-frame protocol instead of a cons-list of arguments.
var fastBuiltinCall = map[string]bool{
	"length": true, "c": true, "list": true, "vector": true,
	"abs": true, "sqrt": true, "sum": true, "prod": true,
	"min": true, "max": true, "as.integer": true, "names": true,
	"is.logical": true, "is.character": true, "is.function": true,
	"is.na": true, "is.object": true, "is.array": true,
	"is.atomic": true, "is.vector": true,
}

// SupportsFastBuiltinCall reports whether the named builtin can be called
// through the stack-frame protocol.
func SupportsFastBuiltinCall(name string) bool {
	return fastBuiltinCall[name]
}

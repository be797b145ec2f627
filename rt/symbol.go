package rt

import "sync"

// Symbol is an interned name.  Symbols are eternal: their addresses are
// always embedded directly rather than going through the constant pool.
type Symbol struct {
	Name string
	Addr SEXP
}

var symtab = struct {
	m   sync.Mutex
	tab map[string]*Symbol
}{tab: make(map[string]*Symbol)}

// Install interns a symbol by name.
func Install(name string) *Symbol {
	symtab.m.Lock()
	defer symtab.m.Unlock()

	if s, ok := symtab.tab[name]; ok {
		return s
	}

	s := &Symbol{Name: name, Addr: newAddr()}
	symtab.tab[name] = s
	return s
}

// Predefined symbols the lowering core refers to by name.
var (
	DotsSymbol = Install("...")
	DimSymbol  = Install("dim")
)

// Package symbols implements the scoped symbol table: a parent-linked
// tree of Symbol entries with insertion-ordered lookup, mirroring the
// teacher's map-based environment idiom (cshmgen's `globals map[string]bool`)
// generalized into a proper scope chain per spec §3.
package symbols

import "minicc/pkg/types"

// Kind distinguishes what a Symbol names.
type Kind int

const (
	Variable Kind = iota
	Function
	TypeName
)

func (k Kind) String() string {
	names := []string{"variable", "function", "type"}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// StorageKind tags which Storage variant a symbol holds.
type StorageKind int

const (
	NoStorage StorageKind = iota
	VRegister
	Memory
	Global
)

// Storage is the tagged variant from spec §3: a virtual register id, a
// frame-relative byte offset, or a global label.
type Storage struct {
	Kind   StorageKind
	VReg   int
	Offset int
	Label  string
}

// RequiredStorage is the hint set on a symbol when its address is taken
// (spec §3's "required storage kind"), forcing memory placement even when
// the type would otherwise fit in a register.
type RequiredStorage int

const (
	NoRequirement RequiredStorage = iota
	RequireMemory
)

// Symbol is a named entry in a SymbolTable.
type Symbol struct {
	Name       string
	SymKind    Kind
	Type       types.Type
	Owner      *Table
	IsDefined  bool // distinguishes a function prototype from a body
	Storage    Storage
	Required   RequiredStorage
}

// Table is a scope: a parent-linked node holding an insertion-ordered
// vector of symbols plus a name-to-index map for O(1) local lookup.
// Struct tags share the variable/function namespace under the prefixed
// key "struct <tag>" (spec §3).
type Table struct {
	Parent  *Table
	order   []*Symbol
	byName  map[string]int
}

// NewTable creates a scope. parent is nil for the global scope.
func NewTable(parent *Table) *Table {
	return &Table{Parent: parent, byName: make(map[string]int)}
}

// StructKey returns the shared-namespace key for a struct tag.
func StructKey(tag string) string { return "struct " + tag }

// Insert adds sym under sym.Name, failing if the name already exists in
// this table (not ancestor tables) — spec §4.2/§4.3's "fails if already
// local" rule.
func (t *Table) Insert(sym *Symbol) bool {
	if _, exists := t.byName[sym.Name]; exists {
		return false
	}
	sym.Owner = t
	t.byName[sym.Name] = len(t.order)
	t.order = append(t.order, sym)
	return true
}

// LookupLocal resolves name in this table only, not ancestors.
func (t *Table) LookupLocal(name string) (*Symbol, bool) {
	if i, ok := t.byName[name]; ok {
		return t.order[i], true
	}
	return nil, false
}

// LookupRecursive resolves name in this table, then each ancestor in turn.
func (t *Table) LookupRecursive(name string) (*Symbol, bool) {
	for tbl := t; tbl != nil; tbl = tbl.Parent {
		if sym, ok := tbl.LookupLocal(name); ok {
			return sym, true
		}
	}
	return nil, false
}

// Symbols returns this table's entries in insertion order.
func (t *Table) Symbols() []*Symbol { return t.order }

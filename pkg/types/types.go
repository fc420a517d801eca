// Package types defines the type system: a sealed, immutable descriptor
// with the variants a restricted C-like language needs, mirroring the
// teacher's ctypes.Type discipline but widened to carry computed struct
// offsets and ordered function parameter names.
package types

import "fmt"

// Type is the interface for all type variants. Values are immutable once
// constructed; a new qualification produces a wrapped copy rather than a
// mutation.
type Type interface {
	implType()
	String() string
	// Size is this type's size in bytes.
	Size() int
	// Align is this type's natural alignment in bytes.
	Align() int
}

// Kind enumerates the Basic variant's scalar kinds.
type Kind int

const (
	Void Kind = iota
	Char
	Short
	Int
	Long
)

func (k Kind) String() string {
	names := []string{"void", "char", "short", "int", "long"}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// Basic is a scalar type: void, or an integral kind with a signedness bit.
type Basic struct {
	Kind   Kind
	Signed bool
}

// Pointer is a pointer to Base, always 8 bytes wide.
type Pointer struct {
	Base Type
}

// Array is Base repeated Len times, with no padding between elements.
type Array struct {
	Base Type
	Len  uint64
}

// Member is one ordered entry of a Function's parameter list or a
// Struct's field list; Offset is meaningful only for Struct members.
type Member struct {
	Name   string
	Type   Type
	Offset int // byte offset from the struct's start; 0 for function params
}

// Function is a return type plus an ordered, named parameter list.
type Function struct {
	Return Type
	Params []Member
}

// Struct is a named aggregate with members laid out in declaration order
// by a StorageCalculator, each member padded to its natural alignment.
type Struct struct {
	Tag     string
	Members []Member
	size    int
	align   int
}

// Qualifier is const or volatile; qualifiers may stack on one Qualified.
type Qualifier int

const (
	QConst Qualifier = 1 << iota
	QVolatile
)

// Qualified wraps Inner with one or more qualifiers.
type Qualified struct {
	Inner      Type
	Qualifiers Qualifier
}

func (Basic) implType()     {}
func (Pointer) implType()   {}
func (Array) implType()     {}
func (Function) implType()  {}
func (*Struct) implType()   {}
func (Qualified) implType() {}

func (t Basic) String() string {
	sign := ""
	if t.Kind != Void && !t.Signed {
		sign = "unsigned "
	}
	return sign + t.Kind.String()
}

func (t Pointer) String() string { return t.Base.String() + " *" }
func (t Array) String() string   { return fmt.Sprintf("%s[%d]", t.Base.String(), t.Len) }

func (t Function) String() string {
	s := "("
	for i, p := range t.Params {
		if i > 0 {
			s += ", "
		}
		s += p.Type.String()
	}
	return s + ") -> " + t.Return.String()
}

func (t *Struct) String() string {
	if t.Tag == "" {
		return "struct <anonymous>"
	}
	return "struct " + t.Tag
}

func (t Qualified) String() string {
	s := t.Inner.String()
	if t.Qualifiers&QConst != 0 {
		s = "const " + s
	}
	if t.Qualifiers&QVolatile != 0 {
		s = "volatile " + s
	}
	return s
}

// basicSizes is the width table from spec §3: char/short/int/long -> 1/2/4/8.
var basicSizes = map[Kind]int{Void: 0, Char: 1, Short: 2, Int: 4, Long: 8}

func (t Basic) Size() int  { return basicSizes[t.Kind] }
func (t Basic) Align() int { return basicSizes[t.Kind] }

func (Pointer) Size() int  { return 8 }
func (Pointer) Align() int { return 8 }

func (t Array) Size() int   { return t.Base.Size() * int(t.Len) }
func (t Array) Align() int  { return t.Base.Align() }
func (Function) Size() int  { return 0 }
func (Function) Align() int { return 1 }

func (t *Struct) Size() int  { return t.size }
func (t *Struct) Align() int { return t.align }

func (t Qualified) Size() int  { return t.Inner.Size() }
func (t Qualified) Align() int { return t.Inner.Align() }

// Unqualified strips any Qualified wrapper, returning the bare inner type.
func Unqualified(t Type) Type {
	for {
		q, ok := t.(Qualified)
		if !ok {
			return t
		}
		t = q.Inner
	}
}

// QualifiersOf returns the qualifier bits present on t (0 if unqualified).
func QualifiersOf(t Type) Qualifier {
	if q, ok := t.(Qualified); ok {
		return q.Qualifiers
	}
	return 0
}

// IsSame reports structural type equality (spec §3's `is_same`): variants
// compare structurally, ignoring qualifiers at the top level, but pointer
// bases must carry identical qualifier sets.
func IsSame(a, b Type) bool {
	return isSame(a, b, false)
}

func isSame(a, b Type, requireQualMatch bool) bool {
	if requireQualMatch && QualifiersOf(a) != QualifiersOf(b) {
		return false
	}
	a, b = Unqualified(a), Unqualified(b)
	switch ta := a.(type) {
	case Basic:
		tb, ok := b.(Basic)
		return ok && ta.Kind == tb.Kind && ta.Signed == tb.Signed
	case Pointer:
		tb, ok := b.(Pointer)
		return ok && isSame(ta.Base, tb.Base, true)
	case Array:
		tb, ok := b.(Array)
		return ok && ta.Len == tb.Len && isSame(ta.Base, tb.Base, false)
	case *Struct:
		tb, ok := b.(*Struct)
		return ok && ta.Tag == tb.Tag
	case Function:
		tb, ok := b.(Function)
		if !ok || len(ta.Params) != len(tb.Params) || !isSame(ta.Return, tb.Return, false) {
			return false
		}
		for i, p := range ta.Params {
			if !isSame(p.Type, tb.Params[i].Type, false) {
				return false
			}
		}
		return true
	}
	return false
}

// IsIntegral reports whether t (after stripping qualifiers) is a non-void
// Basic type.
func IsIntegral(t Type) bool {
	b, ok := Unqualified(t).(Basic)
	return ok && b.Kind != Void
}

// IsPointer reports whether t (after stripping qualifiers) is a Pointer.
func IsPointer(t Type) bool {
	_, ok := Unqualified(t).(Pointer)
	return ok
}

// Rank orders integral kinds for the usual arithmetic conversions
// (spec §4.4): char < short < int < long.
func Rank(t Type) int {
	b, ok := Unqualified(t).(Basic)
	if !ok {
		return -1
	}
	return int(b.Kind)
}

// StorageCalculator lays out struct fields in declaration order, padding
// each to its natural alignment, matching spec §3's natural-alignment rule.
type StorageCalculator struct{}

// Layout computes offsets for members in place and returns the struct's
// total size (padded to its own alignment) and alignment.
func (StorageCalculator) Layout(members []Member) (size, align int) {
	offset := 0
	maxAlign := 1
	for i := range members {
		a := members[i].Type.Align()
		if a > maxAlign {
			maxAlign = a
		}
		offset = alignUp(offset, a)
		members[i].Offset = offset
		offset += members[i].Type.Size()
	}
	return alignUp(offset, maxAlign), maxAlign
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// NewStruct builds a Struct with members laid out by a StorageCalculator.
func NewStruct(tag string, members []Member) *Struct {
	s := &Struct{Tag: tag, Members: members}
	s.Finalize()
	return s
}

// Finalize computes s's size and alignment from its current Members,
// called once member collection is complete (a struct is pre-inserted
// into the symbol table empty, to support self-referential pointers,
// then filled in as its field list is visited).
func (s *Struct) Finalize() {
	s.size, s.align = (StorageCalculator{}).Layout(s.Members)
}

// Common constructors, mirroring the teacher's ctypes constructor set.
func NewBasic(k Kind, signed bool) Type { return Basic{Kind: k, Signed: signed} }
func NewPointer(base Type) Type         { return Pointer{Base: base} }
func NewArray(base Type, n uint64) Type { return Array{Base: base, Len: n} }
func NewQualified(inner Type, q Qualifier) Type {
	if existing, ok := inner.(Qualified); ok {
		return Qualified{Inner: existing.Inner, Qualifiers: existing.Qualifiers | q}
	}
	return Qualified{Inner: inner, Qualifiers: q}
}

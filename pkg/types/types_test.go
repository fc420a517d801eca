package types

import "testing"

func TestTypeConstructorsAndStrings(t *testing.T) {
	intT := NewBasic(Int, true)
	tests := []struct {
		name    string
		typ     Type
		wantStr string
	}{
		{"void", NewBasic(Void, true), "void"},
		{"int", intT, "int"},
		{"unsigned int", NewBasic(Int, false), "unsigned int"},
		{"char", NewBasic(Char, true), "char"},
		{"long", NewBasic(Long, true), "long"},
		{"pointer to int", NewPointer(intT), "int *"},
		{"array of int", NewArray(intT, 10), "int[10]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestSizesAndAlignment(t *testing.T) {
	tests := []struct {
		name  string
		typ   Type
		size  int
		align int
	}{
		{"char", NewBasic(Char, true), 1, 1},
		{"short", NewBasic(Short, true), 2, 2},
		{"int", NewBasic(Int, true), 4, 4},
		{"long", NewBasic(Long, true), 8, 8},
		{"pointer", NewPointer(NewBasic(Int, true)), 8, 8},
		{"array of 4 ints", NewArray(NewBasic(Int, true), 4), 16, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.typ.Size() != tt.size {
				t.Errorf("Size() = %d, want %d", tt.typ.Size(), tt.size)
			}
			if tt.typ.Align() != tt.align {
				t.Errorf("Align() = %d, want %d", tt.typ.Align(), tt.align)
			}
		})
	}
}

func TestStructLayoutNaturalAlignment(t *testing.T) {
	// struct { char c; int x; char d; long y; }
	members := []Member{
		{Name: "c", Type: NewBasic(Char, true)},
		{Name: "x", Type: NewBasic(Int, true)},
		{Name: "d", Type: NewBasic(Char, true)},
		{Name: "y", Type: NewBasic(Long, true)},
	}
	s := NewStruct("S", members)
	want := []int{0, 4, 8, 16}
	for i, m := range s.Members {
		if m.Offset != want[i] {
			t.Errorf("member %d (%s) offset = %d, want %d", i, m.Name, m.Offset, want[i])
		}
	}
	if s.Size() != 24 {
		t.Errorf("struct size = %d, want 24", s.Size())
	}
	if s.Align() != 8 {
		t.Errorf("struct align = %d, want 8", s.Align())
	}
}

func TestIsSame(t *testing.T) {
	intT := NewBasic(Int, true)
	uintT := NewBasic(Int, false)
	tests := []struct {
		name  string
		a, b  Type
		equal bool
	}{
		{"int == int", intT, intT, true},
		{"int != unsigned int", intT, uintT, false},
		{"int != long", intT, NewBasic(Long, true), false},
		{"pointer to int == pointer to int", NewPointer(intT), NewPointer(intT), true},
		{"pointer to int != pointer to char", NewPointer(intT), NewPointer(NewBasic(Char, true)), false},
		{"array[10] int == array[10] int", NewArray(intT, 10), NewArray(intT, 10), true},
		{"array[10] int != array[20] int", NewArray(intT, 10), NewArray(intT, 20), false},
		{"struct A == struct A", NewStruct("A", nil), NewStruct("A", nil), true},
		{"struct A != struct B", NewStruct("A", nil), NewStruct("B", nil), false},
		{"qualifiers ignored at top level", NewQualified(intT, QConst), intT, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSame(tt.a, tt.b); got != tt.equal {
				t.Errorf("IsSame(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}
}

func TestIsSamePointerQualifierMismatch(t *testing.T) {
	intT := NewBasic(Int, true)
	constInt := NewQualified(intT, QConst)
	// Pointer bases must carry identical qualifier sets even though
	// top-level qualifiers on the pointers themselves are ignored.
	a := NewPointer(constInt)
	b := NewPointer(intT)
	if IsSame(a, b) {
		t.Errorf("pointer-to-const-int should not be IsSame as pointer-to-int")
	}
}

func TestQualifiedStacking(t *testing.T) {
	intT := NewBasic(Int, true)
	q := NewQualified(NewQualified(intT, QConst), QVolatile)
	qq, ok := q.(Qualified)
	if !ok {
		t.Fatalf("expected Qualified, got %T", q)
	}
	if qq.Qualifiers&QConst == 0 || qq.Qualifiers&QVolatile == 0 {
		t.Errorf("expected both qualifiers to stack, got %v", qq.Qualifiers)
	}
	if _, nested := qq.Inner.(Qualified); nested {
		t.Errorf("qualifiers should flatten into one Qualified wrapper, got nested %#v", qq.Inner)
	}
}

package storage

import (
	"testing"

	"minicc/pkg/cabs"
	"minicc/pkg/context"
	"minicc/pkg/lexer"
	"minicc/pkg/parser"
	"minicc/pkg/sema"
	"minicc/pkg/symbols"
)

func analyze(t *testing.T, src string) (*cabs.Program, *sema.Analyzer) {
	t.Helper()
	l := lexer.New(src)
	p := parser.New(l, "test.c")
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parse errors: %v", p.Errors())
	}
	a := sema.New()
	if err := a.Analyze(prog); err != nil {
		t.Fatalf("analyze error: %v", err)
	}
	return prog, a
}

func TestGlobalGetsGlobalStorage(t *testing.T) {
	prog, a := analyze(t, `int counter;`)
	alloc := New(context.New(), a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vd := prog.Decls[0].(*cabs.VarDecl)
	sym := a.Attrs().Of(vd).Symbol
	if sym.Storage.Kind != symbols.Global || sym.Storage.Label != "counter" {
		t.Errorf("expected global storage labeled counter, got %#v", sym.Storage)
	}
}

func TestParametersGetSequentialVRegisters(t *testing.T) {
	prog, a := analyze(t, `int add(int x, int y) { return x + y; }`)
	alloc := New(context.New(), a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[0].(*cabs.FunDecl)
	xSym := a.Attrs().Of(fd.Decl.Params[0]).Symbol
	ySym := a.Attrs().Of(fd.Decl.Params[1]).Symbol
	if xSym.Storage.Kind != symbols.VRegister || xSym.Storage.VReg != 1 {
		t.Errorf("expected x in vr1, got %#v", xSym.Storage)
	}
	if ySym.Storage.Kind != symbols.VRegister || ySym.Storage.VReg != 2 {
		t.Errorf("expected y in vr2, got %#v", ySym.Storage)
	}
}

func TestScalarLocalGetsVRegisterStartingAtTen(t *testing.T) {
	prog, a := analyze(t, `int f() { int x; return x; }`)
	alloc := New(context.New(), a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[0].(*cabs.FunDecl)
	vd := fd.Body.Items[0].(*cabs.VarDecl)
	sym := a.Attrs().Of(vd).Symbol
	if sym.Storage.Kind != symbols.VRegister || sym.Storage.VReg != 10 {
		t.Errorf("expected first local in vr10, got %#v", sym.Storage)
	}
}

func TestArrayLocalGetsMemorySlot(t *testing.T) {
	prog, a := analyze(t, `int f() { int a[4]; return a[0]; }`)
	alloc := New(context.New(), a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[0].(*cabs.FunDecl)
	vd := fd.Body.Items[0].(*cabs.VarDecl)
	sym := a.Attrs().Of(vd).Symbol
	if sym.Storage.Kind != symbols.Memory || sym.Storage.Offset != 0 {
		t.Errorf("expected array at memory offset 0, got %#v", sym.Storage)
	}
	fl := alloc.LayoutOf(fd)
	if fl.TotalLocalBytes != 16 {
		t.Errorf("expected 16 bytes of locals, got %d", fl.TotalLocalBytes)
	}
}

func TestAddressTakenScalarForcedToMemory(t *testing.T) {
	prog, a := analyze(t, `int f() { int x; int *p; p = &x; return *p; }`)
	alloc := New(context.New(), a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[0].(*cabs.FunDecl)
	vd := fd.Body.Items[0].(*cabs.VarDecl)
	sym := a.Attrs().Of(vd).Symbol
	if sym.Storage.Kind != symbols.Memory {
		t.Errorf("expected address-taken local to be memory-backed, got %#v", sym.Storage)
	}
}

func TestVRegCounterResetsAcrossSiblingBlocks(t *testing.T) {
	prog, a := analyze(t, `
		int f() {
			if (1) { int x; return x; }
			if (1) { int y; return y; }
			return 0;
		}
	`)
	alloc := New(context.New(), a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[0].(*cabs.FunDecl)
	first := fd.Body.Items[0].(*cabs.IfStmt).Then.(*cabs.Block).Items[0].(*cabs.VarDecl)
	second := fd.Body.Items[1].(*cabs.IfStmt).Then.(*cabs.Block).Items[0].(*cabs.VarDecl)
	xSym := a.Attrs().Of(first).Symbol
	ySym := a.Attrs().Of(second).Symbol
	if xSym.Storage.VReg != ySym.Storage.VReg {
		t.Errorf("expected sibling blocks to reuse virtual register ids, got %d and %d", xSym.Storage.VReg, ySym.Storage.VReg)
	}
}

func TestStructLocalGetsMemorySlotSizedByLayout(t *testing.T) {
	prog, a := analyze(t, `
		struct P { int x; int y; };
		int f() { struct P p; return p.x; }
	`)
	alloc := New(context.New(), a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[1].(*cabs.FunDecl)
	vd := fd.Body.Items[0].(*cabs.VarDecl)
	sym := a.Attrs().Of(vd).Symbol
	if sym.Storage.Kind != symbols.Memory {
		t.Errorf("expected struct local to be memory-backed, got %#v", sym.Storage)
	}
	fl := alloc.LayoutOf(fd)
	if fl.TotalLocalBytes != 8 {
		t.Errorf("expected 8 bytes for a two-int struct, got %d", fl.TotalLocalBytes)
	}
}

func TestNineParametersAreAccepted(t *testing.T) {
	prog, a := analyze(t, `int f(int a, int b, int c, int d, int e, int g, int h, int i, int j) { return 0; }`)
	alloc := New(context.New(), a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		t.Fatalf("nine parameters should be allowed: %v", err)
	}
}

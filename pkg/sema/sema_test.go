package sema

import (
	"testing"

	"minicc/pkg/cabs"
	"minicc/pkg/lexer"
	"minicc/pkg/parser"
	"minicc/pkg/types"
)

func parseOK(t *testing.T, src string) *cabs.Program {
	t.Helper()
	l := lexer.New(src)
	p := parser.New(l, "test.c")
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parse errors: %v", p.Errors())
	}
	return prog
}

func TestAnalyzeSimpleFunction(t *testing.T) {
	prog := parseOK(t, `int main() { return 42; }`)
	a := New()
	if err := a.Analyze(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[0].(*cabs.FunDecl)
	ret := fd.Body.Items[0].(*cabs.ReturnStmt)
	at := a.Attrs().Of(ret.Expr)
	if at == nil || !types.IsSame(at.Type, types.NewBasic(types.Int, true)) {
		t.Errorf("expected literal 42 typed as int, got %#v", at)
	}
}

func TestAnalyzeParamAndBinaryAdd(t *testing.T) {
	prog := parseOK(t, `int f(int x) { return x + 1; }`)
	a := New()
	if err := a.Analyze(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[0].(*cabs.FunDecl)
	ret := fd.Body.Items[0].(*cabs.ReturnStmt)
	bin := ret.Expr.(*cabs.Binary)
	lt := a.Attrs().Of(bin.Left).Type
	rt := a.Attrs().Of(bin.Right).Type
	if !types.IsSame(lt, rt) {
		t.Errorf("expected both operands to share the common promoted type after analysis, got %v and %v", lt, rt)
	}
}

func TestAnalyzeUndefinedIdentifier(t *testing.T) {
	prog := parseOK(t, `int main() { return y; }`)
	a := New()
	if err := a.Analyze(prog); err == nil {
		t.Fatalf("expected an error for undefined identifier")
	}
}

func TestAnalyzeRedeclarationFails(t *testing.T) {
	prog := parseOK(t, `int main() { int x; int x; return 0; }`)
	a := New()
	if err := a.Analyze(prog); err == nil {
		t.Fatalf("expected an error for local redeclaration")
	}
}

func TestAnalyzeArrayDecaysOnReference(t *testing.T) {
	prog := parseOK(t, `
		int a[4];
		int main() {
			return a[0];
		}
	`)
	a := New()
	if err := a.Analyze(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[1].(*cabs.FunDecl)
	ret := fd.Body.Items[0].(*cabs.ReturnStmt)
	idx := ret.Expr.(*cabs.Index)
	at := a.Attrs().Of(idx.Array)
	if at == nil || !at.IsArray {
		t.Errorf("expected array reference to be flagged decayed, got %#v", at)
	}
}

func TestAnalyzeAssignToArrayFails(t *testing.T) {
	prog := parseOK(t, `
		int a[4];
		int main() {
			a = a;
			return 0;
		}
	`)
	a := New()
	if err := a.Analyze(prog); err == nil {
		t.Fatalf("expected an error assigning to an array")
	}
}

func TestAnalyzeStructFieldAccess(t *testing.T) {
	prog := parseOK(t, `
		struct P { int x; int y; };
		int main() {
			struct P p;
			p.y = 3;
			return p.y;
		}
	`)
	a := New()
	if err := a.Analyze(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAnalyzeTooManyParametersFails(t *testing.T) {
	prog := parseOK(t, `int f(int a, int b, int c, int d, int e, int f, int g, int h, int i, int j) { return 0; }`)
	a := New()
	if err := a.Analyze(prog); err == nil {
		t.Fatalf("expected an error for more than nine parameters")
	}
}

func TestAnalyzeCharToIntConversionInserted(t *testing.T) {
	prog := parseOK(t, `
		int main() {
			char c;
			int i;
			i = c;
			return i;
		}
	`)
	a := New()
	if err := a.Analyze(prog); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fd := prog.Decls[0].(*cabs.FunDecl)
	assignStmt := fd.Body.Items[2].(*cabs.ExprStmt)
	bin := assignStmt.Expr.(*cabs.Binary)
	if _, ok := bin.Right.(*cabs.ImplicitConv); !ok {
		t.Errorf("expected an ImplicitConv wrapping the char->int assignment rhs, got %T", bin.Right)
	}
}

package hlir

import (
	"testing"

	"minicc/pkg/context"
	"minicc/pkg/lexer"
	"minicc/pkg/parser"
	"minicc/pkg/sema"
	"minicc/pkg/storage"
)

func lower(t *testing.T, src string) *Program {
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
	ctx := context.New()
	alloc := storage.New(ctx, a.Attrs())
	if err := alloc.Allocate(prog); err != nil {
		t.Fatalf("allocate error: %v", err)
	}
	out, err := New(ctx, a.Attrs(), alloc).Generate(prog)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	return out
}

func mnemonics(fn *Function) []string {
	var out []string
	for _, ins := range fn.Instructions {
		out = append(out, ins.Mnemonic())
	}
	return out
}

func findFunc(t *testing.T, prog *Program, name string) *Function {
	t.Helper()
	for _, fn := range prog.Functions {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("no function %q in lowered program", name)
	return nil
}

func TestReturnLiteralIsMovedDirectlyIntoVr0(t *testing.T) {
	prog := lower(t, `int main(void) { return 42; }`)
	fn := findFunc(t, prog, "main")

	if got, want := mnemonics(fn), []string{"enter", "mov_l", "jmp", "leave", "ret"}; !equalStrings(got, want) {
		t.Fatalf("mnemonics = %v, want %v", got, want)
	}
	mov := fn.Instructions[1]
	if mov.Operands[0] != VReg(0) || mov.Operands[1] != Imm(42) {
		t.Errorf("return mov = %s, want mov_l vr0, $42", mov)
	}
	ret := fn.Instructions[len(fn.Instructions)-1]
	if ret.Op != Ret || ret.Label != "" {
		t.Errorf("expected an unlabeled ret after the labeled leave, got %q", ret.Label)
	}
	leave := fn.Instructions[len(fn.Instructions)-2]
	if leave.Label != ".Lmain_return" || leave.Op != Leave {
		t.Errorf("expected a labeled leave before ret, got %#v", leave)
	}
}

func TestParameterIsHomedThenUsedWithFusedLiteral(t *testing.T) {
	prog := lower(t, `int f(int x) { return x + 1; }`)
	fn := findFunc(t, prog, "f")

	if got, want := mnemonics(fn), []string{"enter", "mov_l", "add_l", "mov_l", "jmp", "leave", "ret"}; !equalStrings(got, want) {
		t.Fatalf("mnemonics = %v, want %v", got, want)
	}
	home := fn.Instructions[1]
	if home.Operands[0] != VReg(10) || home.Operands[1] != VReg(1) {
		t.Errorf("param home = %s, want mov_l vr10, vr1", home)
	}
	add := fn.Instructions[2]
	if add.Operands[0] != VReg(11) || add.Operands[1] != VReg(10) || add.Operands[2] != Imm(1) {
		t.Errorf("add = %s, want add_l vr11, vr10, $1 (literal fused, no separate materializing mov)", add)
	}
	ret := fn.Instructions[3]
	if ret.Operands[0] != VReg(0) || ret.Operands[1] != VReg(11) {
		t.Errorf("return mov = %s, want mov_l vr0, vr11", ret)
	}
}

func TestVRegNumberingResumesAfterFixedLocalIds(t *testing.T) {
	// x is a fixed local living at vr10 (storage.Allocate assigned it);
	// codegen's own temporaries must resume at vr11, never re-use vr10.
	prog := lower(t, `int f() { int x; x = 5; return x; }`)
	fn := findFunc(t, prog, "f")

	assign := fn.Instructions[1]
	if assign.Op != Mov || assign.Operands[0] != VReg(10) || assign.Operands[1] != Imm(5) {
		t.Errorf("assign = %s, want mov_l vr10, $5", assign)
	}
	ret := fn.Instructions[2]
	if ret.Operands[1] != VReg(10) {
		t.Errorf("return should read back the local's own register vr10, got %s", ret)
	}
}

func TestVRegCounterResetsBetweenFunctions(t *testing.T) {
	prog := lower(t, `
		int f() { int x; return x; }
		int g() { int y; return y; }
	`)
	f := findFunc(t, prog, "f")
	g := findFunc(t, prog, "g")
	fReturn := f.Instructions[1].Operands[1]
	gReturn := g.Instructions[1].Operands[1]
	if fReturn != gReturn {
		t.Errorf("expected both functions' sole local to land in the same vreg id, got %s and %s", fReturn, gReturn)
	}
}

func TestArrayStoreMaterializesAddressThenStoresFusedLiteral(t *testing.T) {
	prog := lower(t, `int f() { int a[4]; a[2] = 7; return 0; }`)
	fn := findFunc(t, prog, "f")

	var store Instruction
	found := false
	for _, ins := range fn.Instructions {
		if ins.Op == Mov && len(ins.Operands) == 2 && ins.Operands[0].Kind == KindVRegMem {
			store = ins
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a memory-destination mov among %v", mnemonics(fn))
	}
	if store.Operands[1] != Imm(7) {
		t.Errorf("store rhs = %s, want a fused literal $7", store.Operands[1])
	}
}

func TestIfStatementLowersToConditionalJumpOverThen(t *testing.T) {
	prog := lower(t, `int f(int x) { if (x) { return 1; } return 0; }`)
	fn := findFunc(t, prog, "f")

	hasCJmpF := false
	for _, ins := range fn.Instructions {
		if ins.Op == CJmpF {
			hasCJmpF = true
		}
	}
	if !hasCJmpF {
		t.Errorf("expected a cjmp_f over the then-branch, got %v", mnemonics(fn))
	}
}

func TestWhileLoopTestsAtTheBottom(t *testing.T) {
	prog := lower(t, `int f(int x) { while (x) { x = x - 1; } return x; }`)
	fn := findFunc(t, prog, "f")

	// The unconditional jump to the test must precede any cjmp_t back to
	// the body, so the condition is checked before the first iteration and
	// the backward branch lives at the bottom of the loop.
	jmpIdx, cjmpIdx := -1, -1
	for i, ins := range fn.Instructions {
		if ins.Op == Jmp && jmpIdx == -1 {
			jmpIdx = i
		}
		if ins.Op == CJmpT {
			cjmpIdx = i
		}
	}
	if jmpIdx == -1 || cjmpIdx == -1 || jmpIdx > cjmpIdx {
		t.Errorf("expected an initial jmp to the test before the trailing cjmp_t, got %v", mnemonics(fn))
	}
}

func TestCharToIntConversionLowersToSignedWidening(t *testing.T) {
	prog := lower(t, `int f(char c) { int i; i = c; return i; }`)
	fn := findFunc(t, prog, "f")

	found := false
	for _, ins := range fn.Instructions {
		if ins.Op == SConv {
			found = true
			if ins.FromSize != SizeB || ins.Size != SizeL {
				t.Errorf("sconv sizes = %v -> %v, want b -> l", ins.FromSize, ins.Size)
			}
		}
	}
	if !found {
		t.Errorf("expected an inserted sconv widening char to int, got %v", mnemonics(fn))
	}
}

func TestShortCircuitAndSkipsRightOperandOnFalseLeft(t *testing.T) {
	prog := lower(t, `int f(int a, int b) { return a && b; }`)
	fn := findFunc(t, prog, "f")

	hasCJmpF := false
	for _, ins := range fn.Instructions {
		if ins.Op == CJmpF {
			hasCJmpF = true
		}
	}
	if !hasCJmpF {
		t.Errorf("expected && to lower through a cjmp_f short-circuit, got %v", mnemonics(fn))
	}
}

func TestCallMovesArgumentsIntoAbiRegisters(t *testing.T) {
	prog := lower(t, `
		int g(int a, int b);
		int f() { return g(1, 2); }
	`)
	fn := findFunc(t, prog, "f")

	var seenArg1, seenArg2, seenCall bool
	for _, ins := range fn.Instructions {
		if ins.Op == Mov && ins.Operands[0] == VReg(1) && ins.Operands[1] == Imm(1) {
			seenArg1 = true
		}
		if ins.Op == Mov && ins.Operands[0] == VReg(2) && ins.Operands[1] == Imm(2) {
			seenArg2 = true
		}
		if ins.Op == Call {
			seenCall = true
		}
	}
	if !seenArg1 || !seenArg2 || !seenCall {
		t.Errorf("expected args fused directly into vr1/vr2 before the call, got %v", mnemonics(fn))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package context

import "testing"

func TestVirtualRegistersStartAboveTheAbiRange(t *testing.T) {
	ctx := New()
	if got := ctx.NewVReg(); got != 10 {
		t.Errorf("first allocated vreg = %d, want 10", got)
	}
}

func TestVRegMarkAndRestore(t *testing.T) {
	ctx := New()
	mark := ctx.VRegMark()
	ctx.NewVReg()
	ctx.NewVReg()
	ctx.VRegRestore(mark)
	if got := ctx.NewVReg(); got != mark {
		t.Errorf("after restore, next vreg = %d, want %d", got, mark)
	}
}

// MaxVReg reflects the live counter, not a separately persisted high-water
// mark: a restore lowers it right back down. Callers that need the peak
// must read MaxVReg before calling VRegRestore, not after.
func TestMaxVRegDropsOnRestore(t *testing.T) {
	ctx := New()
	ctx.NewVReg()
	ctx.NewVReg()
	mark := ctx.VRegMark()
	ctx.NewVReg()
	peak := ctx.MaxVReg()
	ctx.VRegRestore(mark)
	if got := ctx.MaxVReg(); got != mark-1 {
		t.Errorf("MaxVReg after restore = %d, want %d", got, mark-1)
	}
	if peak <= mark-1 {
		t.Errorf("expected the pre-restore peak %d to exceed the post-restore value", peak)
	}
}

func TestReturnLabelIsScopedToCurrentFunction(t *testing.T) {
	ctx := New()
	ctx.SetFunction("main")
	if got, want := ctx.ReturnLabel(), ".Lmain_return"; got != want {
		t.Errorf("ReturnLabel() = %q, want %q", got, want)
	}
	ctx.SetFunction("f")
	if got, want := ctx.ReturnLabel(), ".Lf_return"; got != want {
		t.Errorf("ReturnLabel() = %q, want %q", got, want)
	}
}

func TestNewLabelsAreMonotonicAndDistinct(t *testing.T) {
	ctx := New()
	a := ctx.NewLabel()
	b := ctx.NewLabel()
	if a == b {
		t.Errorf("expected distinct labels, got %q twice", a)
	}
}

func TestInternStringAssignsSequentialLabels(t *testing.T) {
	ctx := New()
	l1 := ctx.InternString([]byte("hi"))
	l2 := ctx.InternString([]byte("bye"))
	if l1 == l2 {
		t.Errorf("expected distinct labels for distinct strings")
	}
	lits := ctx.StringLiterals()
	if len(lits) != 2 || string(lits[0].Bytes) != "hi" || string(lits[1].Bytes) != "bye" {
		t.Errorf("unexpected string table: %+v", lits)
	}
}

// Package storage implements the StorageAllocator: a visitor over the
// attributed AST that assigns each symbol a Storage record and computes
// each function's total local byte count (spec §4.5). Grounded on the
// teacher's cminorgen.VarEnv, which performs the analogous Clight→Csharpminor
// job of turning named locals into stack-relative or register homes.
package storage

import (
	"minicc/pkg/cabs"
	"minicc/pkg/context"
	"minicc/pkg/corefail"
	"minicc/pkg/sema"
	"minicc/pkg/symbols"
	"minicc/pkg/types"
)

// FunctionLayout records a function's allocation result, consumed by HL
// codegen.
type FunctionLayout struct {
	TotalLocalBytes int
	// MaxLocalVReg is the highest virtual register id handed out to this
	// function's parameters and register-resident locals. Codegen restores
	// the shared counter to MaxLocalVReg+1 before emitting this function's
	// temporaries, so ephemeral temps never collide with a local's fixed
	// home (storage resets the counter back to 10 once layout is computed,
	// since the next function's locals start fresh there too).
	MaxLocalVReg int
}

// Allocator assigns Storage to every symbol reachable from an attributed
// program.
type Allocator struct {
	ctx    *context.Context
	attrs  sema.Attrs
	layout map[*cabs.FunDecl]*FunctionLayout
	peak   int
}

// New creates an Allocator over attrs, the attribution table produced by
// a prior sema.Analyzer run.
func New(ctx *context.Context, attrs sema.Attrs) *Allocator {
	return &Allocator{ctx: ctx, attrs: attrs, layout: make(map[*cabs.FunDecl]*FunctionLayout)}
}

// LayoutOf returns the computed layout for fd, populated by Allocate.
func (a *Allocator) LayoutOf(fd *cabs.FunDecl) *FunctionLayout { return a.layout[fd] }

// Allocate walks the whole program: globals get GLOBAL storage, and each
// function definition gets its parameters and locals allocated. String
// literals are interned later, during HL codegen, where each StringLit
// expression is visited in its evaluation context.
func (a *Allocator) Allocate(prog *cabs.Program) error {
	for _, d := range prog.Decls {
		switch n := d.(type) {
		case *cabs.VarDecl:
			sym := a.attrs.Of(n).Symbol
			sym.Storage = symbols.Storage{Kind: symbols.Global, Label: sym.Name}
		case *cabs.FunDecl:
			if n.Body != nil {
				if err := a.allocateFunction(n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// allocateFunction assigns vr1..vrk to parameters (spec §4.5), then
// descends into the body assigning each local a register or memory slot,
// finally recording the function's total local byte count.
func (a *Allocator) allocateFunction(fd *cabs.FunDecl) error {
	if len(fd.Decl.Params) > 9 {
		return corefail.Newf("function %q has more than nine parameters", fd.Decl.Name)
	}
	for i, p := range fd.Decl.Params {
		sym := a.attrs.Of(p).Symbol
		sym.Storage = symbols.Storage{Kind: symbols.VRegister, VReg: 1 + i}
	}

	fl := &FunctionLayout{}
	offset := 0
	mark := a.ctx.VRegMark()
	a.peak = mark - 1
	if err := a.allocateBlock(fd.Body, &offset); err != nil {
		return err
	}
	// Block exits have already restored the counter, so the peak is
	// tracked by allocateLocal rather than read back from the counter.
	fl.MaxLocalVReg = a.peak
	a.ctx.VRegRestore(mark)
	fl.TotalLocalBytes = offset
	a.layout[fd] = fl
	return nil
}

// allocateBlock descends a statement list, saving and restoring the
// virtual-register counter on scope exit so siblings may reuse ids
// (spec §4.5); offset accumulates the running total of memory-backed
// local bytes for the whole function (not just this block).
func (a *Allocator) allocateBlock(b *cabs.Block, offset *int) error {
	mark := a.ctx.VRegMark()
	defer a.ctx.VRegRestore(mark)
	for _, s := range b.Items {
		if err := a.allocateStmt(s, offset); err != nil {
			return err
		}
	}
	return nil
}

func (a *Allocator) allocateStmt(s cabs.Stmt, offset *int) error {
	switch n := s.(type) {
	case *cabs.VarDecl:
		return a.allocateLocal(n, offset)
	case *cabs.Block:
		return a.allocateBlock(n, offset)
	case *cabs.IfStmt:
		if err := a.allocateStmt(n.Then, offset); err != nil {
			return err
		}
		if n.Else != nil {
			return a.allocateStmt(n.Else, offset)
		}
		return nil
	case *cabs.WhileStmt:
		return a.allocateStmt(n.Body, offset)
	case *cabs.DoWhileStmt:
		return a.allocateStmt(n.Body, offset)
	case *cabs.ForStmt:
		mark := a.ctx.VRegMark()
		defer a.ctx.VRegRestore(mark)
		if n.Init != nil {
			if err := a.allocateStmt(n.Init, offset); err != nil {
				return err
			}
		}
		return a.allocateStmt(n.Body, offset)
	}
	return nil
}

// allocateLocal implements spec §4.5's per-local decision tree.
func (a *Allocator) allocateLocal(vd *cabs.VarDecl, offset *int) error {
	sym := a.attrs.Of(vd).Symbol
	t := sym.Type
	u := types.Unqualified(t)

	switch u.(type) {
	case types.Array:
	case *types.Struct:
	default:
		if types.IsIntegral(u) || types.IsPointer(u) {
			if sym.Required != symbols.RequireMemory {
				v := a.ctx.NewVReg()
				if v > a.peak {
					a.peak = v
				}
				sym.Storage = symbols.Storage{Kind: symbols.VRegister, VReg: v}
				return nil
			}
		}
	}
	// Arrays, structs, or address-taken scalars: a memory slot aligned to
	// the type's natural alignment.
	align := u.Align()
	*offset = alignUp(*offset, align)
	sym.Storage = symbols.Storage{Kind: symbols.Memory, Offset: *offset}
	*offset += u.Size()
	return nil
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

package hlir

import (
	"minicc/pkg/cabs"
	"minicc/pkg/context"
	"minicc/pkg/corefail"
	"minicc/pkg/sema"
	"minicc/pkg/storage"
	"minicc/pkg/symbols"
	"minicc/pkg/types"
)

// Function is one lowered function body: its homed parameter registers,
// its flat HL instruction sequence, its computed frame size, and the
// highest virtual register id it used (consumed by the low-level
// translator's frame-size formula, spec §4.10).
type Function struct {
	Name            string
	Params          []int
	Instructions    []Instruction
	TotalLocalBytes int
	MaxVReg         int
}

// Global is a file-scope variable, sized for a bss/data declaration.
type Global struct {
	Name string
	Size int
}

// Program is the whole lowered translation unit: every function body, the
// global variable table, and the interned string-literal table.
type Program struct {
	Functions []*Function
	Globals   []Global
	Strings   []context.StringLiteral
}

// Codegen is the HL Codegen visitor of spec §4.6, built from a completed
// semantic-analysis attribution table and a completed storage allocation.
// Grounded on the teacher's rtlgen.CFGBuilder/instrBuilder combination: a
// single stateful builder that a recursive expression/statement walk
// appends instructions to, generalized from a register-machine target to
// an explicitly-sized virtual-register target.
type Codegen struct {
	ctx   *context.Context
	attrs sema.Attrs
	alloc *storage.Allocator
	cur   *Function
	homes map[*symbols.Symbol]int
}

// New creates a Codegen over a completed attribution table and storage
// layout, sharing ctx with both prior passes (spec §5: one Context per
// compilation unit).
func New(ctx *context.Context, attrs sema.Attrs, alloc *storage.Allocator) *Codegen {
	return &Codegen{ctx: ctx, attrs: attrs, alloc: alloc}
}

// Generate lowers every top-level definition into the flat IR Program.
func (g *Codegen) Generate(prog *cabs.Program) (*Program, error) {
	out := &Program{}
	for _, d := range prog.Decls {
		switch n := d.(type) {
		case *cabs.VarDecl:
			sym := g.attrs.Of(n).Symbol
			out.Globals = append(out.Globals, Global{Name: sym.Name, Size: types.Unqualified(sym.Type).Size()})
		case *cabs.FunDecl:
			if n.Body != nil {
				fn, err := g.generateFunction(n)
				if err != nil {
					return nil, err
				}
				out.Functions = append(out.Functions, fn)
			}
		}
	}
	out.Strings = g.ctx.StringLiterals()
	return out, nil
}

func sizeOf(t types.Type) Size {
	u := types.Unqualified(t)
	if types.IsPointer(u) {
		return SizeQ
	}
	if b, ok := u.(types.Basic); ok {
		switch b.Kind {
		case types.Char:
			return SizeB
		case types.Short:
			return SizeW
		case types.Int:
			return SizeL
		case types.Long:
			return SizeQ
		}
	}
	return SizeQ
}

func (g *Codegen) emit(ins Instruction)                       { g.cur.Instructions = append(g.cur.Instructions, ins) }
func (g *Codegen) emitLabeled(label string, ins Instruction) { ins.Label = label; g.emit(ins) }

// generateFunction lowers one function definition per spec §4.6: `enter`,
// parameter homing, the body, the scoped return label, `leave`, `ret`.
func (g *Codegen) generateFunction(fd *cabs.FunDecl) (*Function, error) {
	layout := g.alloc.LayoutOf(fd)
	g.ctx.SetFunction(fd.Decl.Name)
	// Continue the shared counter from where this function's fixed local
	// ids left off, so temporaries never collide with a local's home
	// (storage reset the counter back to vr10 once it computed layout).
	g.ctx.VRegRestore(layout.MaxLocalVReg + 1)

	fn := &Function{Name: fd.Decl.Name, TotalLocalBytes: layout.TotalLocalBytes}
	g.cur = fn
	g.homes = make(map[*symbols.Symbol]int)

	g.emit(Instruction{Op: Enter, Operands: []Operand{Imm(int64(layout.TotalLocalBytes))}})

	for i, p := range fd.Decl.Params {
		psym := g.attrs.Of(p).Symbol
		sz := sizeOf(psym.Type)
		home := g.ctx.NewVReg()
		g.emit(Instruction{Op: Mov, Size: sz, Operands: []Operand{VReg(home), VReg(1 + i)}})
		g.homes[psym] = home
		fn.Params = append(fn.Params, home)
	}

	if err := g.genBlockBody(fd.Body); err != nil {
		return nil, err
	}

	g.emitLabeled(g.ctx.ReturnLabel(), Instruction{Op: Leave, Operands: []Operand{Imm(int64(layout.TotalLocalBytes))}})
	g.emit(Instruction{Op: Ret})

	// The per-statement resets have already lowered the counter below the
	// temporaries they freed, so take the highest id the instructions use.
	fn.MaxVReg = g.ctx.MaxVReg()
	for _, ins := range fn.Instructions {
		for _, o := range ins.Operands {
			if o.IsVReg() && o.VReg > fn.MaxVReg {
				fn.MaxVReg = o.VReg
			}
		}
	}
	g.ctx.VRegRestore(10)
	return fn, nil
}

// genBlockBody walks a statement list, resetting the ephemeral-temporary
// counter after every non-declaration statement back to the running
// baseline (spec §4.6: "the virtual-register counter resets to the value
// recorded on the enclosing statement list, freeing ephemeral temporaries").
func (g *Codegen) genBlockBody(b *cabs.Block) error {
	baseline := g.ctx.VRegMark()
	for _, s := range b.Items {
		if _, isDecl := s.(*cabs.VarDecl); isDecl {
			if err := g.genStmt(s); err != nil {
				return err
			}
			baseline = g.ctx.VRegMark()
			continue
		}
		if err := g.genStmt(s); err != nil {
			return err
		}
		g.ctx.VRegRestore(baseline)
	}
	return nil
}

func (g *Codegen) genStmt(s cabs.Stmt) error {
	switch n := s.(type) {
	case *cabs.VarDecl:
		if n.Init == nil {
			return nil
		}
		sym := g.attrs.Of(n).Symbol
		rhs, err := g.genExpr(n.Init)
		if err != nil {
			return err
		}
		dst := g.varOperand(sym, false)
		g.emit(Instruction{Op: Mov, Size: sizeOf(sym.Type), Operands: []Operand{dst, rhs}})
		return nil

	case *cabs.ExprStmt:
		_, err := g.genExpr(n.Expr)
		return err

	case *cabs.ReturnStmt:
		if n.Expr == nil {
			g.emit(Instruction{Op: Jmp, Operands: []Operand{Label(g.ctx.ReturnLabel())}})
			return nil
		}
		v, err := g.genExpr(n.Expr)
		if err != nil {
			return err
		}
		sz := sizeOf(g.attrs.Of(n.Expr).Type)
		g.emit(Instruction{Op: Mov, Size: sz, Operands: []Operand{VReg(0), v}})
		g.emit(Instruction{Op: Jmp, Operands: []Operand{Label(g.ctx.ReturnLabel())}})
		return nil

	case *cabs.IfStmt:
		return g.genIf(n)

	case *cabs.WhileStmt:
		return g.genWhile(n)

	case *cabs.DoWhileStmt:
		return g.genDoWhile(n)

	case *cabs.ForStmt:
		return g.genFor(n)

	case *cabs.Block:
		return g.genBlockBody(n)
	}
	return corefail.Newf("hlir: unhandled statement %T", s)
}

func (g *Codegen) genIf(n *cabs.IfStmt) error {
	cond, err := g.genExpr(n.Cond)
	if err != nil {
		return err
	}
	condSize := sizeOf(g.attrs.Of(n.Cond).Type)
	if n.Else == nil {
		end := g.ctx.NewLabel()
		g.emit(Instruction{Op: CJmpF, Size: condSize, Operands: []Operand{cond, Label(end)}})
		if err := g.genStmt(n.Then); err != nil {
			return err
		}
		g.emitLabeled(end, Instruction{Op: Nop})
		return nil
	}
	elseL := g.ctx.NewLabel()
	end := g.ctx.NewLabel()
	g.emit(Instruction{Op: CJmpF, Size: condSize, Operands: []Operand{cond, Label(elseL)}})
	if err := g.genStmt(n.Then); err != nil {
		return err
	}
	g.emit(Instruction{Op: Jmp, Operands: []Operand{Label(end)}})
	g.emitLabeled(elseL, Instruction{Op: Nop})
	if err := g.genStmt(n.Else); err != nil {
		return err
	}
	g.emitLabeled(end, Instruction{Op: Nop})
	return nil
}

func (g *Codegen) genWhile(n *cabs.WhileStmt) error {
	condL := g.ctx.NewLabel()
	bodyL := g.ctx.NewLabel()
	g.emit(Instruction{Op: Jmp, Operands: []Operand{Label(condL)}})
	g.emitLabeled(bodyL, Instruction{Op: Nop})
	if err := g.genStmt(n.Body); err != nil {
		return err
	}
	g.emitLabeled(condL, Instruction{Op: Nop})
	cond, err := g.genExpr(n.Cond)
	if err != nil {
		return err
	}
	g.emit(Instruction{Op: CJmpT, Size: sizeOf(g.attrs.Of(n.Cond).Type), Operands: []Operand{cond, Label(bodyL)}})
	return nil
}

func (g *Codegen) genDoWhile(n *cabs.DoWhileStmt) error {
	bodyL := g.ctx.NewLabel()
	g.emitLabeled(bodyL, Instruction{Op: Nop})
	if err := g.genStmt(n.Body); err != nil {
		return err
	}
	cond, err := g.genExpr(n.Cond)
	if err != nil {
		return err
	}
	g.emit(Instruction{Op: CJmpT, Size: sizeOf(g.attrs.Of(n.Cond).Type), Operands: []Operand{cond, Label(bodyL)}})
	return nil
}

func (g *Codegen) genFor(n *cabs.ForStmt) error {
	if n.Init != nil {
		if err := g.genStmt(n.Init); err != nil {
			return err
		}
	}
	condL := g.ctx.NewLabel()
	bodyL := g.ctx.NewLabel()
	g.emit(Instruction{Op: Jmp, Operands: []Operand{Label(condL)}})
	g.emitLabeled(bodyL, Instruction{Op: Nop})
	if err := g.genStmt(n.Body); err != nil {
		return err
	}
	if n.Post != nil {
		if _, err := g.genExpr(n.Post); err != nil {
			return err
		}
	}
	g.emitLabeled(condL, Instruction{Op: Nop})
	if n.Cond == nil {
		g.emit(Instruction{Op: Jmp, Operands: []Operand{Label(bodyL)}})
		return nil
	}
	cond, err := g.genExpr(n.Cond)
	if err != nil {
		return err
	}
	g.emit(Instruction{Op: CJmpT, Size: sizeOf(g.attrs.Of(n.Cond).Type), Operands: []Operand{cond, Label(bodyL)}})
	return nil
}

// varOperand computes the operand denoting sym's storage location: a
// parameter or register-resident local yields a bare VReg; a memory local
// or global yields a materialized address, left as a register (address)
// when decay is true, or flipped to a memref otherwise.
func (g *Codegen) varOperand(sym *symbols.Symbol, decay bool) Operand {
	if home, ok := g.homes[sym]; ok {
		return VReg(home)
	}
	switch sym.Storage.Kind {
	case symbols.VRegister:
		return VReg(sym.Storage.VReg)
	case symbols.Memory:
		temp := g.ctx.NewVReg()
		g.emit(Instruction{Op: LocalAddr, Size: SizeQ, Operands: []Operand{VReg(temp), Imm(int64(sym.Storage.Offset))}})
		if decay {
			return VReg(temp)
		}
		return VRegMem(temp)
	case symbols.Global:
		temp := g.ctx.NewVReg()
		g.emit(Instruction{Op: Mov, Size: SizeQ, Operands: []Operand{VReg(temp), ImmLabel(sym.Storage.Label)}})
		if decay {
			return VReg(temp)
		}
		return VRegMem(temp)
	}
	return Operand{}
}

// genExpr visits an expression per spec §4.6, returning the operand that
// holds its value (or, for an array/struct-typed subexpression, its
// address).
func (g *Codegen) genExpr(e cabs.Expr) (Operand, error) {
	at := g.attrs.Of(e)

	switch n := e.(type) {
	case *cabs.IntLit:
		// Literal operands are passed through as plain immediates: every
		// consuming HL opcode (mov/add/cmp/...) accepts an immediate source
		// directly, so no register needs to be burned materializing one.
		return Imm(at.Lit.IntValue), nil

	case *cabs.CharLit:
		return Imm(int64(at.Lit.CharValue)), nil

	case *cabs.StringLit:
		label := g.ctx.InternString([]byte(at.Lit.Decoded))
		return ImmLabel(label), nil

	case *cabs.Ident:
		return g.varOperand(at.Symbol, at.IsArray), nil

	case *cabs.Unary:
		return g.genUnary(n, at)

	case *cabs.Binary:
		return g.genBinary(n, at)

	case *cabs.Call:
		return g.genCall(n, at)

	case *cabs.Index:
		return g.genIndex(n, at)

	case *cabs.Field:
		return g.genField(n, at)

	case *cabs.ImplicitConv:
		return g.genConv(n, at)
	}
	return Operand{}, corefail.Newf("hlir: unhandled expression %T", e)
}

func (g *Codegen) genUnary(n *cabs.Unary, at *sema.Attr) (Operand, error) {
	switch n.Op {
	case cabs.OpDeref:
		inner, err := g.genExpr(n.Expr)
		if err != nil {
			return Operand{}, err
		}
		if inner.Kind == KindVReg {
			return inner.ToMemref(), nil
		}
		t := g.ctx.NewVReg()
		g.emit(Instruction{Op: Mov, Size: SizeQ, Operands: []Operand{VReg(t), inner}})
		return VRegMem(t), nil

	case cabs.OpAddrOf:
		inner, err := g.genExpr(n.Expr)
		if err != nil {
			return Operand{}, err
		}
		return inner.MemrefToVReg(), nil

	case cabs.OpNeg:
		v, err := g.genExpr(n.Expr)
		if err != nil {
			return Operand{}, err
		}
		t := g.ctx.NewVReg()
		g.emit(Instruction{Op: Neg, Size: sizeOf(at.Type), Operands: []Operand{VReg(t), v}})
		return VReg(t), nil

	case cabs.OpNot:
		v, err := g.genExpr(n.Expr)
		if err != nil {
			return Operand{}, err
		}
		t := g.ctx.NewVReg()
		g.emit(Instruction{Op: CmpEq, Size: sizeOf(g.attrs.Of(n.Expr).Type), Operands: []Operand{VReg(t), v, Imm(0)}})
		return VReg(t), nil
	}
	return Operand{}, corefail.Newf("hlir: unhandled unary operator %v", n.Op)
}

var cmpOps = map[cabs.BinaryOp]Op{
	cabs.OpLt: CmpLt, cabs.OpLe: CmpLe, cabs.OpGt: CmpGt, cabs.OpGe: CmpGe,
	cabs.OpEq: CmpEq, cabs.OpNe: CmpNe,
}

var arithOps = map[cabs.BinaryOp]Op{
	cabs.OpAdd: Add, cabs.OpSub: Sub, cabs.OpMul: Mul, cabs.OpDiv: Div, cabs.OpMod: Mod,
}

func (g *Codegen) genBinary(n *cabs.Binary, at *sema.Attr) (Operand, error) {
	if n.Op == cabs.OpAssign {
		return g.genAssign(n)
	}
	if n.Op == cabs.OpAnd || n.Op == cabs.OpOr {
		return g.genShortCircuit(n)
	}

	lt := g.attrs.Of(n.Left).Type
	l, err := g.genExpr(n.Left)
	if err != nil {
		return Operand{}, err
	}

	// Pointer +/- integer: address-sized arithmetic scaled by element size.
	if op, ok := arithOps[n.Op]; ok && types.IsPointer(lt) {
		r, err := g.genExpr(n.Right)
		if err != nil {
			return Operand{}, err
		}
		elemSize := int64(types.Unqualified(lt).(types.Pointer).Base.Size())
		scaled := g.ctx.NewVReg()
		g.emit(Instruction{Op: Mul, Size: SizeQ, Operands: []Operand{VReg(scaled), r, Imm(elemSize)}})
		t := g.ctx.NewVReg()
		g.emit(Instruction{Op: op, Size: SizeQ, Operands: []Operand{VReg(t), l, VReg(scaled)}})
		return VReg(t), nil
	}

	r, err := g.genExpr(n.Right)
	if err != nil {
		return Operand{}, err
	}
	if op, ok := arithOps[n.Op]; ok {
		t := g.ctx.NewVReg()
		g.emit(Instruction{Op: op, Size: sizeOf(at.Type), Operands: []Operand{VReg(t), l, r}})
		return VReg(t), nil
	}
	if op, ok := cmpOps[n.Op]; ok {
		t := g.ctx.NewVReg()
		g.emit(Instruction{Op: op, Size: sizeOf(lt), Operands: []Operand{VReg(t), l, r}})
		return VReg(t), nil
	}
	return Operand{}, corefail.Newf("hlir: unhandled binary operator %v", n.Op)
}

// genShortCircuit lowers && and || through control flow, since the HL
// opcode family has no logical-and/or instruction: the right operand is
// only evaluated when the left doesn't already decide the result.
func (g *Codegen) genShortCircuit(n *cabs.Binary) (Operand, error) {
	lt := g.attrs.Of(n.Left).Type
	l, err := g.genExpr(n.Left)
	if err != nil {
		return Operand{}, err
	}
	result := g.ctx.NewVReg()
	shortCircuit := g.ctx.NewLabel()
	end := g.ctx.NewLabel()

	g.emit(Instruction{Op: Mov, Size: SizeL, Operands: []Operand{VReg(result), l}})
	if n.Op == cabs.OpAnd {
		g.emit(Instruction{Op: CJmpF, Size: sizeOf(lt), Operands: []Operand{l, Label(shortCircuit)}})
	} else {
		g.emit(Instruction{Op: CJmpT, Size: sizeOf(lt), Operands: []Operand{l, Label(shortCircuit)}})
	}

	r, err := g.genExpr(n.Right)
	if err != nil {
		return Operand{}, err
	}
	rt := g.attrs.Of(n.Right).Type
	nz := g.ctx.NewVReg()
	g.emit(Instruction{Op: CmpNe, Size: sizeOf(rt), Operands: []Operand{VReg(nz), r, Imm(0)}})
	g.emit(Instruction{Op: Mov, Size: SizeL, Operands: []Operand{VReg(result), VReg(nz)}})
	g.emit(Instruction{Op: Jmp, Operands: []Operand{Label(end)}})
	g.emitLabeled(shortCircuit, Instruction{Op: Nop})
	g.emitLabeled(end, Instruction{Op: Nop})
	return VReg(result), nil
}

func (g *Codegen) genAssign(n *cabs.Binary) (Operand, error) {
	dst, err := g.genLvalueAddr(n.Left)
	if err != nil {
		return Operand{}, err
	}
	r, err := g.genExpr(n.Right)
	if err != nil {
		return Operand{}, err
	}
	sz := sizeOf(g.attrs.Of(n.Left).Type)
	g.emit(Instruction{Op: Mov, Size: sz, Operands: []Operand{dst, r}})
	return dst, nil
}

// genLvalueAddr generates the writable-location operand for an lvalue
// expression: for a plain identifier this is the same operand genExpr
// would return (vreg or memref); for *p, a.f, p->f, a[i] it shares the
// same addressing logic as genExpr's read path.
func (g *Codegen) genLvalueAddr(e cabs.Expr) (Operand, error) {
	return g.genExpr(e)
}

func (g *Codegen) genCall(n *cabs.Call, at *sema.Attr) (Operand, error) {
	if len(n.Args) > 9 {
		return Operand{}, corefail.Newf("hlir: call with more than nine arguments")
	}
	for i, arg := range n.Args {
		v, err := g.genExpr(arg)
		if err != nil {
			return Operand{}, err
		}
		sz := sizeOf(g.attrs.Of(arg).Type)
		g.emit(Instruction{Op: Mov, Size: sz, Operands: []Operand{VReg(1 + i), v}})
	}
	ident, ok := n.Fn.(*cabs.Ident)
	if !ok {
		return Operand{}, corefail.Newf("hlir: indirect calls are not supported")
	}
	g.emit(Instruction{Op: Call, Operands: []Operand{Label(ident.Name)}})
	return VReg(0), nil
}

func (g *Codegen) genIndex(n *cabs.Index, at *sema.Attr) (Operand, error) {
	base, err := g.genExpr(n.Array)
	if err != nil {
		return Operand{}, err
	}
	idx, err := g.genExpr(n.Idx)
	if err != nil {
		return Operand{}, err
	}
	elemSize := int64(at.Type.Size())
	scaled := g.ctx.NewVReg()
	g.emit(Instruction{Op: Mul, Size: SizeQ, Operands: []Operand{VReg(scaled), idx, Imm(elemSize)}})
	addr := g.ctx.NewVReg()
	g.emit(Instruction{Op: Add, Size: SizeQ, Operands: []Operand{VReg(addr), VReg(scaled), base}})
	if at.IsArray {
		return VReg(addr), nil
	}
	return VRegMem(addr), nil
}

func (g *Codegen) genField(n *cabs.Field, at *sema.Attr) (Operand, error) {
	baseType := g.attrs.Of(n.Base).Type
	var st *types.Struct
	var addr Operand
	if n.Arrow {
		st = types.Unqualified(types.Unqualified(baseType).(types.Pointer).Base).(*types.Struct)
		v, err := g.genExpr(n.Base)
		if err != nil {
			return Operand{}, err
		}
		addr = v
	} else {
		st = types.Unqualified(baseType).(*types.Struct)
		v, err := g.genLvalueAddr(n.Base)
		if err != nil {
			return Operand{}, err
		}
		addr = v.MemrefToVReg()
	}
	var offset int64
	for _, m := range st.Members {
		if m.Name == n.Name {
			offset = int64(m.Offset)
			break
		}
	}
	fieldAddr := g.ctx.NewVReg()
	g.emit(Instruction{Op: Add, Size: SizeQ, Operands: []Operand{VReg(fieldAddr), addr, Imm(offset)}})
	if at.IsArray {
		return VReg(fieldAddr), nil
	}
	return VRegMem(fieldAddr), nil
}

// genConv lowers an inserted implicit conversion into the matching
// sconv/uconv widening (spec §4.6's "pick the correct opcode by
// signedness of the destination and the source->dest width pair").
func (g *Codegen) genConv(n *cabs.ImplicitConv, at *sema.Attr) (Operand, error) {
	v, err := g.genExpr(n.Expr)
	if err != nil {
		return Operand{}, err
	}
	srcType := g.attrs.Of(n.Expr).Type
	fromSize := sizeOf(srcType)
	toSize := sizeOf(at.ConvTo)
	if fromSize == toSize {
		return v, nil
	}
	op := SConv
	if b, ok := types.Unqualified(at.ConvTo).(types.Basic); ok && !b.Signed {
		op = UConv
	}
	t := g.ctx.NewVReg()
	g.emit(Instruction{Op: op, Size: toSize, FromSize: fromSize, Operands: []Operand{VReg(t), v}})
	return VReg(t), nil
}

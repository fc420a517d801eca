// Package lltranslate lowers an allocated HL-IR program into textual
// x86-64 System V assembly (spec §4.10). Grounded on the teacher's
// pkg/asmgen (Mach->Asm, the analogous "last mile" pass) and pkg/asm's
// printer for section/label layout conventions, adapted from CompCert's
// abstract Asm instruction tree to direct textual emission since this
// pipeline's LL-IR surface is defined as a printer contract rather than
// a further structured IR.
package lltranslate

import (
	"fmt"
	"strings"

	"minicc/pkg/context"
	"minicc/pkg/hlir"
)

// abiAlias names the machine register vr0..vr6 are permanently bound to
// (spec §4.10: the System V return/argument registers). vr7..vr9 are
// reserved ABI argument slots with no direct hardware alias and fall
// back to ordinary stack homes like any other unbound virtual.
var abiAlias = map[int]string{
	0: "rax", 1: "rdi", 2: "rsi", 3: "rdx", 4: "rcx", 5: "r8", 6: "r9",
}

type lowerer struct {
	frame      int
	localBytes int
	lines      []string
}

func (lw *lowerer) emit(format string, args ...any) {
	lw.lines = append(lw.lines, fmt.Sprintf(format, args...))
}

func (lw *lowerer) label(name string) { lw.lines = append(lw.lines, name+":") }

// regFor reports the machine register an operand is bound to, either
// through local register allocation (Operand.MReg) or the permanent
// vr0..vr6 ABI alias.
func regFor(o hlir.Operand) (string, bool) {
	if o.MReg != "" {
		return o.MReg, true
	}
	if alias, ok := abiAlias[o.VReg]; ok {
		return alias, true
	}
	return "", false
}

// stackSlot addresses an unbound virtual register's frame-resident home.
// Region layout within the frame: storage-allocated locals (arrays,
// address-taken scalars, spill slots) occupy bytes [0, localBytes); every
// virtual register id from 10 up occupies its own 8-byte slot immediately
// past that, so the two addressing schemes never collide.
func (lw *lowerer) stackSlot(vr int) string {
	return fmt.Sprintf("%d(%%rbp)", lw.localBytes+(vr-10)*8-lw.frame)
}

// addr renders a memref/offset-memref operand's addressing form,
// materializing the base pointer through %r10 first when the base
// virtual itself has no machine register (spec: "materializing through
// %r10 when both operands are memory references" generalizes to any
// memory-resident base pointer).
func (lw *lowerer) addr(o hlir.Operand) string {
	base := "%r10"
	if reg, ok := regFor(o); ok {
		base = "%" + reg
	} else {
		lw.emit("movq %s, %%r10", lw.stackSlot(o.VReg))
	}
	if o.Kind == hlir.KindVRegMemOff {
		return fmt.Sprintf("%d(%s)", o.Offset, base)
	}
	return fmt.Sprintf("(%s)", base)
}

// isMem reports whether o resolves to a memory operand (a stack slot or
// a dereference), as opposed to an immediate, label, or plain register.
func (lw *lowerer) isMem(o hlir.Operand) bool {
	switch o.Kind {
	case hlir.KindVRegMem, hlir.KindVRegMemOff:
		return true
	case hlir.KindVReg:
		_, bound := regFor(o)
		return !bound
	}
	return false
}

// operand renders o for use as a source or a register-class destination.
func (lw *lowerer) operand(o hlir.Operand) string {
	switch o.Kind {
	case hlir.KindImm:
		return fmt.Sprintf("$%d", o.Imm)
	case hlir.KindLabel:
		return o.Label
	case hlir.KindImmLabel:
		return "$" + o.Label
	case hlir.KindVReg:
		if reg, ok := regFor(o); ok {
			return "%" + reg
		}
		return lw.stackSlot(o.VReg)
	case hlir.KindVRegMem, hlir.KindVRegMemOff:
		return lw.addr(o)
	}
	return "?"
}

func scratch(size hlir.Size) string {
	switch size {
	case hlir.SizeB:
		return "%r10b"
	case hlir.SizeW:
		return "%r10w"
	case hlir.SizeL:
		return "%r10d"
	default:
		return "%r10"
	}
}

func (lw *lowerer) translateInstruction(ins hlir.Instruction) {
	if ins.Label != "" {
		lw.label(ins.Label)
	}
	suf := ins.Size.Suffix()
	switch ins.Op {
	case hlir.Nop, hlir.Enter, hlir.Leave:
		// enter/leave only mark the prologue/epilogue boundary, emitted
		// by the caller around the function body.
	case hlir.Ret:
		lw.emit("ret")
	case hlir.Jmp:
		lw.emit("jmp %s", lw.operand(ins.Operands[0]))
	case hlir.Call:
		lw.emit("call %s", lw.operand(ins.Operands[0]))
	case hlir.CJmpT, hlir.CJmpF:
		lw.emit("cmp%s $0, %s", suf, lw.operand(ins.Operands[0]))
		if ins.Op == hlir.CJmpT {
			lw.emit("jne %s", ins.Operands[1].Label)
		} else {
			lw.emit("je %s", ins.Operands[1].Label)
		}
	case hlir.LocalAddr:
		// Operands[1] is a raw byte offset already within [0, localBytes);
		// only stackSlot's vreg-indexed region needs the localBytes shift.
		off := ins.Operands[1].Imm - int64(lw.frame)
		lw.emit("leaq %d(%%rbp), %%r10", off)
		lw.emit("movq %%r10, %s", lw.operand(ins.Operands[0]))
	case hlir.Mov:
		lw.translateMov(ins, suf)
	case hlir.Add, hlir.Sub:
		lw.translateAddSub(ins, suf)
	case hlir.Mul:
		lw.translateMul(ins, suf)
	case hlir.Div, hlir.Mod:
		lw.translateDivMod(ins, suf)
	case hlir.Neg:
		lw.translateNeg(ins, suf)
	case hlir.CmpLt, hlir.CmpLe, hlir.CmpGt, hlir.CmpGe, hlir.CmpEq, hlir.CmpNe:
		lw.translateCmp(ins, suf)
	case hlir.SConv, hlir.UConv:
		lw.translateConv(ins)
	}
}

func (lw *lowerer) translateMov(ins hlir.Instruction, suf string) {
	dst, src := ins.Operands[0], ins.Operands[1]
	if lw.isMem(dst) && lw.isMem(src) {
		lw.emit("mov%s %s, %s", suf, lw.operand(src), scratch(ins.Size))
		lw.emit("mov%s %s, %s", suf, scratch(ins.Size), lw.operand(dst))
		return
	}
	lw.emit("mov%s %s, %s", suf, lw.operand(src), lw.operand(dst))
}

func (lw *lowerer) translateAddSub(ins hlir.Instruction, suf string) {
	mnem := "add"
	if ins.Op == hlir.Sub {
		mnem = "sub"
	}
	dst, l, r := ins.Operands[0], ins.Operands[1], ins.Operands[2]
	if !lw.isMem(dst) {
		dstText := lw.operand(dst)
		if lw.operand(l) != dstText {
			lw.emit("mov%s %s, %s", suf, lw.operand(l), dstText)
		}
		lw.emit("%s%s %s, %s", mnem, suf, lw.operand(r), dstText)
		return
	}
	lw.emit("mov%s %s, %s", suf, lw.operand(l), scratch(ins.Size))
	lw.emit("%s%s %s, %s", mnem, suf, lw.operand(r), scratch(ins.Size))
	lw.emit("mov%s %s, %s", suf, scratch(ins.Size), lw.operand(dst))
}

func (lw *lowerer) translateMul(ins hlir.Instruction, suf string) {
	dst, l, r := ins.Operands[0], ins.Operands[1], ins.Operands[2]
	lw.emit("mov%s %s, %s", suf, lw.operand(l), scratch(ins.Size))
	lw.emit("imul%s %s, %s", suf, lw.operand(r), scratch(ins.Size))
	lw.emit("mov%s %s, %s", suf, scratch(ins.Size), lw.operand(dst))
}

func (lw *lowerer) translateDivMod(ins hlir.Instruction, suf string) {
	dst, l, r := ins.Operands[0], ins.Operands[1], ins.Operands[2]
	eax := eaxName(ins.Size)
	lw.emit("mov%s %s, %s", suf, lw.operand(l), eax)
	lw.emit("cdq")
	lw.emit("mov%s %s, %s", suf, lw.operand(r), scratch(ins.Size))
	lw.emit("idiv%s %s", suf, scratch(ins.Size))
	if ins.Op == hlir.Div {
		lw.emit("mov%s %s, %s", suf, eax, lw.operand(dst))
	} else {
		lw.emit("mov%s %s, %s", suf, edxName(ins.Size), lw.operand(dst))
	}
}

func eaxName(size hlir.Size) string {
	switch size {
	case hlir.SizeB:
		return "%al"
	case hlir.SizeW:
		return "%ax"
	case hlir.SizeL:
		return "%eax"
	default:
		return "%rax"
	}
}

func edxName(size hlir.Size) string {
	switch size {
	case hlir.SizeB:
		return "%dl"
	case hlir.SizeW:
		return "%dx"
	case hlir.SizeL:
		return "%edx"
	default:
		return "%rdx"
	}
}

func (lw *lowerer) translateNeg(ins hlir.Instruction, suf string) {
	dst, src := ins.Operands[0], ins.Operands[1]
	lw.emit("mov%s %s, %s", suf, lw.operand(src), scratch(ins.Size))
	lw.emit("mov%s $0, %s", suf, lw.operand(dst))
	lw.emit("sub%s %s, %s", suf, scratch(ins.Size), lw.operand(dst))
}

var ccByOp = map[hlir.Op]string{
	hlir.CmpLt: "l", hlir.CmpLe: "le", hlir.CmpGt: "g", hlir.CmpGe: "ge",
	hlir.CmpEq: "e", hlir.CmpNe: "ne",
}

func (lw *lowerer) translateCmp(ins hlir.Instruction, suf string) {
	dst, l, r := ins.Operands[0], ins.Operands[1], ins.Operands[2]
	lw.emit("cmp%s %s, %s", suf, lw.operand(r), lw.operand(l))
	lw.emit("set%s %%r10b", ccByOp[ins.Op])
	lw.emit("movzbl %%r10b, %s", lw.operand(dst))
}

func (lw *lowerer) translateConv(ins hlir.Instruction) {
	dst, src := ins.Operands[0], ins.Operands[1]
	mnem := "movsx"
	if ins.Op == hlir.UConv {
		mnem = "movzx"
	}
	lw.emit("%s%s%s %s, %s", mnem, ins.FromSize.Suffix(), ins.Size.Suffix(), lw.operand(src), scratch(ins.Size))
	lw.emit("mov%s %s, %s", ins.Size.Suffix(), scratch(ins.Size), lw.operand(dst))
}

// roundUpTo16 implements spec §4.10's frame-size rounding.
func roundUpTo16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}

// TranslateFunction lowers one allocated function body into its labeled
// assembly text, including the prologue and epilogue.
func TranslateFunction(fn *hlir.Function) []string {
	frame := roundUpTo16(fn.TotalLocalBytes + 8*maxInt(fn.MaxVReg-9, 0))
	lw := &lowerer{frame: frame, localBytes: fn.TotalLocalBytes}

	lw.label(fn.Name)
	lw.emit("pushq %%rbp")
	lw.emit("movq %%rsp, %%rbp")
	if frame > 0 {
		lw.emit("subq $%d, %%rsp", frame)
	}

	for _, ins := range fn.Instructions {
		if ins.Op == hlir.Leave {
			if ins.Label != "" {
				lw.label(ins.Label)
			}
			if frame > 0 {
				lw.emit("addq $%d, %%rsp", frame)
			}
			lw.emit("popq %%rbp")
			continue
		}
		lw.translateInstruction(ins)
	}
	return lw.lines
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Translate renders a whole lowered program as assembly text: a .bss
// entry per global, a .rodata entry per interned string, and a .text
// section with every function's translated body.
func Translate(prog *hlir.Program) string {
	var out strings.Builder

	if len(prog.Globals) > 0 {
		out.WriteString(".bss\n")
		for _, g := range prog.Globals {
			fmt.Fprintf(&out, "%s:\n\t.zero %d\n", g.Name, g.Size)
		}
	}
	if len(prog.Strings) > 0 {
		out.WriteString(".rodata\n")
		for _, s := range prog.Strings {
			fmt.Fprintf(&out, "%s:\n\t.string %q\n", s.Label, decodeStringLiteral(s))
		}
	}

	out.WriteString(".text\n")
	for _, fn := range prog.Functions {
		for _, line := range TranslateFunction(fn) {
			if strings.HasSuffix(line, ":") {
				out.WriteString(line + "\n")
			} else {
				out.WriteString("\t" + line + "\n")
			}
		}
	}
	return out.String()
}

func decodeStringLiteral(s context.StringLiteral) string {
	return string(s.Bytes)
}

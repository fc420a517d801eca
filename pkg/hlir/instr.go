package hlir

import "fmt"

// Op is the opcode family from spec §4.6. Typed opcodes carry their operand
// size separately (Instruction.Size) rather than as distinct enumerators
// per size, keeping the switch in every pass small.
type Op int

const (
	Nop Op = iota
	Enter
	Leave
	Ret
	Add
	Sub
	Mul
	Div
	Mod
	Neg
	Mov
	CmpLt
	CmpLe
	CmpGt
	CmpGe
	CmpEq
	CmpNe
	SConv
	UConv
	Jmp
	CJmpT
	CJmpF
	Call
	LocalAddr
)

var opNames = map[Op]string{
	Nop: "nop", Enter: "enter", Leave: "leave", Ret: "ret",
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Mod: "mod", Neg: "neg",
	Mov: "mov", CmpLt: "cmplt", CmpLe: "cmple", CmpGt: "cmpgt", CmpGe: "cmpge",
	CmpEq: "cmpeq", CmpNe: "cmpneq", SConv: "sconv", UConv: "uconv",
	Jmp: "jmp", CJmpT: "cjmp_t", CJmpF: "cjmp_f", Call: "call", LocalAddr: "localaddr",
}

// Size is an operand/result width in bytes, selected from an expression's
// type per spec §4.6 (char->b, short->w, int->l, long/pointer->q).
type Size int

const (
	SizeNone Size = 0
	SizeB    Size = 1
	SizeW    Size = 2
	SizeL    Size = 4
	SizeQ    Size = 8
)

func (s Size) Suffix() string {
	switch s {
	case SizeB:
		return "b"
	case SizeW:
		return "w"
	case SizeL:
		return "l"
	case SizeQ:
		return "q"
	}
	return ""
}

// Instruction is one HL opcode with up to three operands and an optional
// label decoration preceding it. Binary/typed-arithmetic and compare
// opcodes use Operands[0] as the destination and Operands[1:] as sources;
// Mov and Neg use [dst, src]; Jmp/Call use a single operand; LocalAddr
// uses [dst, offset];
// CJmp uses [value, target]. SConv/UConv additionally set FromSize, the
// source width (Size holds the destination width).
type Instruction struct {
	Op       Op
	Size     Size
	FromSize Size
	Operands []Operand
	Label    string // a ".Lfoo:" label preceding this instruction, "" if none
}

// Mnemonic renders the opcode plus its size suffix, e.g. "add_l", "mov_q".
func (ins Instruction) Mnemonic() string {
	name := opNames[ins.Op]
	switch ins.Op {
	case Add, Sub, Mul, Div, Mod, Neg, Mov, CmpLt, CmpLe, CmpGt, CmpGe, CmpEq, CmpNe:
		return name + "_" + ins.Size.Suffix()
	case SConv, UConv:
		return fmt.Sprintf("%s_%s%s", name, ins.FromSize.Suffix(), ins.Size.Suffix())
	}
	return name
}

func (ins Instruction) String() string {
	s := ""
	if ins.Label != "" {
		s += ins.Label + ":\n"
	}
	s += ins.Mnemonic()
	for i, o := range ins.Operands {
		if i == 0 {
			s += " "
		} else {
			s += ", "
		}
		s += o.String()
	}
	return s
}

// Dst returns the defined operand, if any (spec §4.7's per-opcode
// def derivation).
func (ins Instruction) Dst() (Operand, bool) {
	switch ins.Op {
	case Nop, Jmp, CJmpT, CJmpF, Call, Ret, Enter, Leave:
		return Operand{}, false
	}
	if len(ins.Operands) == 0 {
		return Operand{}, false
	}
	return ins.Operands[0], true
}

// Uses returns the read operands (spec §4.7's "use" derivation): every
// operand but the destination, plus the destination itself when it is a
// memory-reference form (reading the base register to compute the address).
func (ins Instruction) Uses() []Operand {
	switch ins.Op {
	case Nop, Enter, Leave, Ret:
		return nil
	case Jmp, Call:
		return nil
	case CJmpT, CJmpF:
		return []Operand{ins.Operands[0]}
	case LocalAddr:
		return nil
	}
	var uses []Operand
	for i, o := range ins.Operands {
		if i == 0 {
			if o.Kind == KindVRegMem || o.Kind == KindVRegMemOff {
				uses = append(uses, o)
			}
			continue
		}
		uses = append(uses, o)
	}
	return uses
}

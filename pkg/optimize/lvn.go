// Package optimize implements the per-block local optimizer: value
// numbering with constant folding, dead-def elimination, and copy
// propagation (spec §4.8). Grounded on the teacher's regalloc package for
// the shape of a per-function pass operating over cfg.Graph blocks
// (map-keyed bookkeeping structures, one pass object per function), though
// the teacher has no direct LVN analogue of its own — CompCert folds value
// numbering into RTLgen's expression builder rather than running it as a
// separate post-pass, so this pass's algorithm comes from the written
// specification of the dataflow rather than a teacher file to imitate line
// for line.
package optimize

import (
	"fmt"
	"sort"

	"minicc/pkg/cfg"
	"minicc/pkg/hlir"
)

// valueNumber is a purely-local equivalence class: either a known compile
// time constant, or a class anchored at the first virtual register the
// pipeline defined it in.
type valueNumber struct {
	isConst  bool
	constVal int64
	firstReg int
}

// Run applies LVN, constant folding, dead-def elimination, and copy
// propagation to every interior block of g, replacing each block's
// Instructions slice; the function's flat instruction list is not
// touched. Run may be called
// more than once on the same graph without changing the result further
// (spec §8's "running LVN twice on the same block produces the same
// sequence"), since a block that no longer contains any duplicate or
// constant-valued purely-local definition reaches a fixed point after one
// pass.
func Run(g *cfg.Graph) {
	for _, b := range g.Blocks {
		if b.Kind != cfg.Interior {
			continue
		}
		optimizeBlock(b)
	}
}

func optimizeBlock(b *cfg.BasicBlock) {
	vnTable := map[string]int{}
	var vns []valueNumber
	regVN := map[int]int{}

	internConst := func(v int64) int {
		key := fmt.Sprintf("const:%d", v)
		if id, ok := vnTable[key]; ok {
			return id
		}
		id := len(vns)
		vns = append(vns, valueNumber{isConst: true, constVal: v})
		vnTable[key] = id
		return id
	}

	out := make([]hlir.Instruction, 0, len(b.Instructions))
	for _, ins := range b.Instructions {
		rewritten := rewriteUses(ins, regVN, vns)

		dst, hasDst := ins.Dst()
		drop := false
		if hasDst && dst.Kind == hlir.KindVReg && purelyLocal(dst.VReg, b.LiveIn, b.LiveOut) {
			members := buildMembers(ins, regVN, vns)
			var vn int
			if val, ok := tryFold(ins.Op, members, vns); ok {
				vn = internConst(val)
			} else {
				key := keyString(ins.Op, ins.Size, members)
				if existing, ok := vnTable[key]; ok {
					vn = existing
					drop = true
				} else {
					vn = len(vns)
					vns = append(vns, valueNumber{firstReg: dst.VReg})
					vnTable[key] = vn
				}
			}
			if vns[vn].isConst {
				drop = true
			}
			regVN[dst.VReg] = vn
		}

		if !drop {
			out = append(out, rewritten)
		}
	}
	b.Instructions = out
}

// rewriteUses implements spec §4.8's copy-propagation pass: every use of
// a duplicate-register virtual is rewritten to its canonical first
// register, and every use of a known-constant virtual is rewritten to
// its immediate.
func rewriteUses(ins hlir.Instruction, regVN map[int]int, vns []valueNumber) hlir.Instruction {
	out := ins
	if len(ins.Operands) == 0 {
		return out
	}
	out.Operands = append([]hlir.Operand(nil), ins.Operands...)
	switch ins.Op {
	case hlir.Nop, hlir.Enter, hlir.Leave, hlir.Ret, hlir.Jmp, hlir.Call, hlir.LocalAddr:
		return out
	case hlir.CJmpT, hlir.CJmpF:
		out.Operands[0] = rewriteOperand(out.Operands[0], regVN, vns)
		return out
	}
	for i := range out.Operands {
		if i == 0 {
			if out.Operands[0].Kind == hlir.KindVRegMem || out.Operands[0].Kind == hlir.KindVRegMemOff {
				out.Operands[0] = rewriteOperand(out.Operands[0], regVN, vns)
			}
			continue
		}
		out.Operands[i] = rewriteOperand(out.Operands[i], regVN, vns)
	}
	return out
}

func rewriteOperand(o hlir.Operand, regVN map[int]int, vns []valueNumber) hlir.Operand {
	if !o.IsVReg() {
		return o
	}
	vn, ok := regVN[o.VReg]
	if !ok {
		return o
	}
	info := vns[vn]
	if info.isConst {
		if o.Kind == hlir.KindVReg {
			return hlir.Imm(info.constVal)
		}
		return o
	}
	return o.WithVReg(info.firstReg)
}

// purelyLocal reports whether v is eligible for value numbering: not one
// of the reserved vr0..vr9 ABI registers, and not live across the block's
// boundary in either direction.
func purelyLocal(v int, liveIn, liveOut map[int]bool) bool {
	if v >= 0 && v <= 9 {
		return false
	}
	return !liveIn[v] && !liveOut[v]
}

// member is one canonicalized source operand for a value-numbering key:
// a reference to a previously assigned value number, a raw (untracked)
// register use, or a literal immediate/label.
type member struct {
	isVN    bool
	vn      int
	isReg   bool
	reg     int
	isImm   bool
	imm     int64
	isLabel bool
	label   string
}

func operandMember(o hlir.Operand, regVN map[int]int) member {
	if o.IsVReg() {
		if vn, ok := regVN[o.VReg]; ok {
			return member{isVN: true, vn: vn}
		}
		return member{isReg: true, reg: o.VReg}
	}
	if o.Kind == hlir.KindImm {
		return member{isImm: true, imm: o.Imm}
	}
	return member{isLabel: true, label: o.Label}
}

func (m member) String() string {
	switch {
	case m.isVN:
		return fmt.Sprintf("vn:%d", m.vn)
	case m.isReg:
		return fmt.Sprintf("reg:%d", m.reg)
	case m.isImm:
		return fmt.Sprintf("imm:%d", m.imm)
	default:
		return "lbl:" + m.label
	}
}

// sourceOperands returns the positions of ins that hold a value read
// rather than defined, mirroring hlir.Instruction.Uses' per-opcode rules.
func sourceOperands(ins hlir.Instruction) []hlir.Operand {
	switch ins.Op {
	case hlir.Nop, hlir.Enter, hlir.Leave, hlir.Ret, hlir.Jmp, hlir.Call, hlir.LocalAddr:
		return nil
	case hlir.CJmpT, hlir.CJmpF:
		return []hlir.Operand{ins.Operands[0]}
	}
	var srcs []hlir.Operand
	for i, o := range ins.Operands {
		if i == 0 {
			continue
		}
		srcs = append(srcs, o)
	}
	return srcs
}

func buildMembers(ins hlir.Instruction, regVN map[int]int, vns []valueNumber) []member {
	var members []member
	for _, o := range sourceOperands(ins) {
		members = append(members, operandMember(o, regVN))
	}
	if isCommutative(ins.Op) && len(members) == 2 {
		sort.SliceStable(members, func(i, j int) bool { return memberLess(members[i], members[j]) })
	}
	return members
}

// memberLess implements spec §4.8's canonicalization rule: value-numbered
// members before raw operands; lower value-number first; register-bearing
// operands before immediates/labels.
func memberLess(a, b member) bool {
	if a.isVN != b.isVN {
		return a.isVN
	}
	if a.isVN {
		return a.vn < b.vn
	}
	if a.isReg != b.isReg {
		return a.isReg
	}
	return false
}

func isCommutative(op hlir.Op) bool {
	switch op {
	case hlir.Add, hlir.Mul, hlir.CmpEq, hlir.CmpNe:
		return true
	}
	return false
}

func keyString(op hlir.Op, size hlir.Size, members []member) string {
	s := fmt.Sprintf("%d|%d", op, size)
	for _, m := range members {
		s += "|" + m.String()
	}
	return s
}

// immediateValue resolves a member to a known compile-time value, looking
// through a constant value number when present.
func immediateValue(m member, vns []valueNumber) (int64, bool) {
	if m.isImm {
		return m.imm, true
	}
	if m.isVN && vns[m.vn].isConst {
		return vns[m.vn].constVal, true
	}
	return 0, false
}

// tryFold implements spec §4.8's constant folding: a key whose members
// are all immediate integers collapses to a known constant for the
// 1-ary {mov, neg, sconv/uconv} and 2-ary {add, sub, mul, div, mod}
// opcode families. Division and modulo by a folded zero divisor are left
// unfolded rather than faulted, matching the design note that
// division-by-zero is not diagnosed by this pipeline.
func tryFold(op hlir.Op, members []member, vns []valueNumber) (int64, bool) {
	vals := make([]int64, len(members))
	for i, m := range members {
		v, ok := immediateValue(m, vns)
		if !ok {
			return 0, false
		}
		vals[i] = v
	}
	switch op {
	case hlir.Mov:
		if len(vals) == 1 {
			return vals[0], true
		}
	case hlir.Neg:
		if len(vals) == 1 {
			return -vals[0], true
		}
	case hlir.SConv, hlir.UConv:
		if len(vals) == 1 {
			return vals[0], true
		}
	case hlir.Add:
		if len(vals) == 2 {
			return vals[0] + vals[1], true
		}
	case hlir.Sub:
		if len(vals) == 2 {
			return vals[0] - vals[1], true
		}
	case hlir.Mul:
		if len(vals) == 2 {
			return vals[0] * vals[1], true
		}
	case hlir.Div:
		if len(vals) == 2 && vals[1] != 0 {
			return vals[0] / vals[1], true
		}
	case hlir.Mod:
		if len(vals) == 2 && vals[1] != 0 {
			return vals[0] % vals[1], true
		}
	}
	return 0, false
}

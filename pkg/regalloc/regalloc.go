// Package regalloc implements the local register allocator of spec §4.9:
// per-block assignment of purely-local virtual registers to caller-saved
// machine registers, with a correct spill/reload path. The binding-table
// and free-register-pool bookkeeping style is grounded on the teacher's
// regalloc package (InterferenceGraph's RegSet-keyed maps, Degree/
// Neighbors-style accessor methods), generalized from its global
// graph-coloring allocator down to a simpler per-block linear scan, since
// this pipeline deliberately scopes register assignment to a single basic
// block rather than a whole function. The spill-region sizing itself
// follows local_reg_allocation.cpp's calMaxSpill: the number of memory
// slots reserved is the worst-case, over all blocks, of how many
// purely-local virtuals are simultaneously live beyond what the pool can
// hold, not a flat reservation of the whole pool.
package regalloc

import (
	"minicc/pkg/cfg"
	"minicc/pkg/hlir"
)

// Pool is the caller-saved machine register set available to class-3
// (purely block-local) virtuals, in allocation order.
var Pool = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

// Allocate walks every interior block of g and assigns machine registers
// to fn's purely-block-local virtual registers, inserting spill stores
// and reloads where the pool is exhausted. Virtuals live across a block
// boundary (and vr0..vr9) are left unbound; the low-level translator
// materializes those directly from their frame offset.
func Allocate(fn *hlir.Function, g *cfg.Graph) {
	spillSlots := maxSpillPressure(g)
	spillBase := fn.TotalLocalBytes
	fn.TotalLocalBytes += spillSlots * 8
	nextScratch := fn.MaxVReg + 1

	for _, b := range g.Blocks {
		if b.Kind != cfg.Interior {
			continue
		}
		nextScratch = allocateBlock(b, spillBase, nextScratch)
	}
	if nextScratch-1 > fn.MaxVReg {
		fn.MaxVReg = nextScratch - 1
	}
}

// maxSpillPressure is calMaxSpill: for each block, the largest number of
// purely-local virtuals alive immediately after any one instruction, minus
// the registers that block's pool makes available, maxed over every block
// and floored at zero. Blocks never execute concurrently, so this single
// count bounds the whole function's spill region — the allocator reuses a
// slot the instant its occupant dies rather than handing out a fresh one.
func maxSpillPressure(g *cfg.Graph) int {
	maxSpill := 0
	for _, b := range g.Blocks {
		if b.Kind != cfg.Interior || len(b.Instructions) == 0 {
			continue
		}
		liveAt := perInstructionLiveness(b)
		avail := len(availablePool(b))
		bbAlive := 0
		for i := range b.Instructions {
			insAlive := 0
			for v := range liveAt[i+1] {
				if classThree(b, v) {
					insAlive++
				}
			}
			if insAlive > bbAlive {
				bbAlive = insAlive
			}
		}
		if bbSpill := bbAlive - avail; bbSpill > maxSpill {
			maxSpill = bbSpill
		}
	}
	return maxSpill
}

func allocateBlock(b *cfg.BasicBlock, spillBase int, nextScratch int) int {
	liveAt := perInstructionLiveness(b)
	pool := availablePool(b)

	bound := map[int]string{}
	spilled := map[int]int64{}
	nextSlot := int64(0)
	slotOf := map[int]int64{}
	var freeSlots []int64
	var free []string
	free = append(free, pool...)

	out := make([]hlir.Instruction, 0, len(b.Instructions))

	allocSlot := func() int64 {
		if n := len(freeSlots); n > 0 {
			off := freeSlots[n-1]
			freeSlots = freeSlots[:n-1]
			return off
		}
		off := int64(spillBase) + nextSlot*8
		nextSlot++
		return off
	}

	spillVReg := func(victim int) {
		reg := bound[victim]
		delete(bound, victim)
		off, ok := slotOf[victim]
		if !ok {
			off = allocSlot()
			slotOf[victim] = off
		}
		spilled[victim] = off
		t := nextScratch
		nextScratch++
		out = append(out, hlir.Instruction{Op: hlir.LocalAddr, Size: hlir.SizeQ, Operands: []hlir.Operand{hlir.VReg(t), hlir.Imm(off)}})
		victimOp := hlir.VReg(victim)
		victimOp.MReg = reg
		out = append(out, hlir.Instruction{Op: hlir.Mov, Size: hlir.SizeQ, Operands: []hlir.Operand{hlir.VRegMem(t), victimOp}})
	}

	ensureBound := func(v int) string {
		if r, ok := bound[v]; ok {
			return r
		}
		var r string
		if len(free) > 0 {
			r = free[len(free)-1]
			free = free[:len(free)-1]
		} else {
			var victim int
			for vv := range bound {
				victim = vv
				break
			}
			r = bound[victim]
			spillVReg(victim)
		}
		if off, ok := spilled[v]; ok {
			t := nextScratch
			nextScratch++
			out = append(out, hlir.Instruction{Op: hlir.LocalAddr, Size: hlir.SizeQ, Operands: []hlir.Operand{hlir.VReg(t), hlir.Imm(off)}})
			dstOp := hlir.VReg(v)
			dstOp.MReg = r
			out = append(out, hlir.Instruction{Op: hlir.Mov, Size: hlir.SizeQ, Operands: []hlir.Operand{dstOp, hlir.VRegMem(t)}})
			delete(spilled, v)
		}
		bound[v] = r
		return r
	}

	for i, ins := range b.Instructions {
		for v, r := range bound {
			if !liveAt[i][v] {
				delete(bound, v)
				free = append(free, r)
			}
		}
		for v, off := range slotOf {
			if !liveAt[i][v] {
				delete(slotOf, v)
				delete(spilled, v)
				freeSlots = append(freeSlots, off)
			}
		}

		rewritten := ins
		rewritten.Operands = append([]hlir.Operand(nil), ins.Operands...)
		for p, o := range rewritten.Operands {
			if o.IsVReg() && o.VReg >= 10 && classThree(b, o.VReg) {
				r := ensureBound(o.VReg)
				o.MReg = r
				rewritten.Operands[p] = o
			}
		}
		out = append(out, rewritten)
	}
	b.Instructions = out
	return nextScratch
}

// classThree reports whether v is eligible for machine-register
// allocation within b: never bound outside this block.
func classThree(b *cfg.BasicBlock, v int) bool {
	return !b.LiveIn[v] && !b.LiveOut[v]
}

// perInstructionLiveness returns, for each instruction index, the set of
// virtual registers live immediately before it (index len(b.Instructions)
// holds the block's live-out set).
func perInstructionLiveness(b *cfg.BasicBlock) []map[int]bool {
	n := len(b.Instructions)
	liveAt := make([]map[int]bool, n+1)
	liveAt[n] = copySet(b.LiveOut)
	for i := n - 1; i >= 0; i-- {
		live := copySet(liveAt[i+1])
		ins := b.Instructions[i]
		if dst, ok := ins.Dst(); ok && dst.IsVReg() {
			delete(live, dst.VReg)
		}
		for _, u := range ins.Uses() {
			if u.IsVReg() {
				live[u.VReg] = true
			}
		}
		liveAt[i] = live
	}
	return liveAt
}

func copySet(s map[int]bool) map[int]bool {
	out := make(map[int]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// availablePool returns Pool minus the leading registers reserved for the
// widest call's argument setup in b, a block-wide (rather than precisely
// windowed) conservative reservation.
func availablePool(b *cfg.BasicBlock) []string {
	maxArgs := 0
	for i, ins := range b.Instructions {
		if ins.Op != hlir.Call {
			continue
		}
		args := 0
		for j := i - 1; j >= 0; j-- {
			prev := b.Instructions[j]
			if prev.Op != hlir.Mov || len(prev.Operands) == 0 || prev.Operands[0].Kind != hlir.KindVReg {
				break
			}
			vr := prev.Operands[0].VReg
			if vr < 1 || vr > 9 {
				break
			}
			args++
		}
		if args > maxArgs {
			maxArgs = args
		}
	}
	if maxArgs > len(Pool) {
		maxArgs = len(Pool)
	}
	return Pool[maxArgs:]
}

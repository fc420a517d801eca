// Package cfg splits a lowered function's flat instruction stream into
// basic blocks and computes backward liveness over them. Grounded on the
// teacher's rtlgen.CFGBuilder (node allocation via an explicit counter and
// a node->instruction map) and regalloc's liveness dataflow, but built at
// basic-block granularity rather than CompCert's per-instruction RTL node
// graph, since the local optimizer and register allocator downstream both
// reason about whole blocks.
package cfg

import "minicc/pkg/hlir"

// BlockKind distinguishes the synthetic entry/exit blocks from ordinary
// blocks built out of the function's own instructions.
type BlockKind int

const (
	Interior BlockKind = iota
	Entry
	Exit
)

// BasicBlock is a maximal straight-line run of instructions: control only
// enters at the first instruction and only leaves at the last.
type BasicBlock struct {
	ID           int
	Kind         BlockKind
	Instructions []hlir.Instruction
	Succs        []int
	Preds        []int

	// LiveIn/LiveOut are the sets of virtual register ids live at the
	// block's entry/exit, populated by ComputeLiveness.
	LiveIn  map[int]bool
	LiveOut map[int]bool
}

// Graph is a function's control flow graph: its basic blocks plus the
// dedicated entry and exit block ids (spec §4.7's "ENTRY flows into the
// first real block; every ret-terminated block flows to EXIT").
type Graph struct {
	Blocks  []*BasicBlock
	EntryID int
	ExitID  int
}

func (g *Graph) Block(id int) *BasicBlock {
	for _, b := range g.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// Build splits fn.Instructions into basic blocks: a new block starts at
// every label target and immediately after every control-transfer
// instruction (jmp, cjmp_t, cjmp_f, ret). The synthetic ENTRY block
// precedes the first real block; any block ending in ret, or falling off
// the end of the instruction stream, flows to the synthetic EXIT block.
func Build(fn *hlir.Function) *Graph {
	g := &Graph{}
	nextID := 0
	newBlock := func(kind BlockKind) *BasicBlock {
		b := &BasicBlock{ID: nextID, Kind: kind}
		nextID++
		g.Blocks = append(g.Blocks, b)
		return b
	}

	entry := newBlock(Entry)
	exit := newBlock(Exit)
	g.EntryID, g.ExitID = entry.ID, exit.ID

	labelToStart := map[string]int{}
	for i, ins := range fn.Instructions {
		if ins.Label != "" {
			labelToStart[ins.Label] = i
		}
	}
	starts := map[int]bool{0: true}
	for i, ins := range fn.Instructions {
		if ins.Label != "" {
			starts[i] = true
		}
		if isControlTransfer(ins.Op) && i+1 < len(fn.Instructions) {
			starts[i+1] = true
		}
	}

	var boundaries []int
	for i := range starts {
		boundaries = append(boundaries, i)
	}
	sortInts(boundaries)

	blockAt := map[int]*BasicBlock{} // instruction index -> owning block
	real := make([]*BasicBlock, 0, len(boundaries))
	for bi, start := range boundaries {
		end := len(fn.Instructions)
		if bi+1 < len(boundaries) {
			end = boundaries[bi+1]
		}
		b := newBlock(Interior)
		b.Instructions = fn.Instructions[start:end]
		blockAt[start] = b
		real = append(real, b)
	}

	labelToBlock := map[string]int{}
	for label, idx := range labelToStart {
		if b, ok := blockAt[findBoundary(boundaries, idx)]; ok {
			labelToBlock[label] = b.ID
		}
	}

	link := func(from, to int) {
		fb := g.Block(from)
		tb := g.Block(to)
		fb.Succs = append(fb.Succs, to)
		tb.Preds = append(tb.Preds, from)
	}

	if len(real) == 0 {
		link(entry.ID, exit.ID)
		return g
	}
	link(entry.ID, real[0].ID)

	for i, b := range real {
		last := hlir.Instruction{}
		if len(b.Instructions) > 0 {
			last = b.Instructions[len(b.Instructions)-1]
		}
		switch last.Op {
		case hlir.Ret:
			link(b.ID, exit.ID)
		case hlir.Jmp:
			target := last.Operands[0].Label
			link(b.ID, labelToBlock[target])
		case hlir.CJmpT, hlir.CJmpF:
			target := last.Operands[1].Label
			link(b.ID, labelToBlock[target])
			if i+1 < len(real) {
				link(b.ID, real[i+1].ID)
			} else {
				link(b.ID, exit.ID)
			}
		default:
			if i+1 < len(real) {
				link(b.ID, real[i+1].ID)
			} else {
				link(b.ID, exit.ID)
			}
		}
	}
	return g
}

func isControlTransfer(op hlir.Op) bool {
	switch op {
	case hlir.Jmp, hlir.CJmpT, hlir.CJmpF, hlir.Ret:
		return true
	}
	return false
}

// findBoundary returns the largest block-start boundary at or before idx:
// the block that owns instruction idx.
func findBoundary(boundaries []int, idx int) int {
	for i := len(boundaries) - 1; i >= 0; i-- {
		if boundaries[i] <= idx {
			return boundaries[i]
		}
	}
	return boundaries[0]
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// ComputeLiveness runs the backward dataflow of spec §4.7 to a fixed
// point: in(b) = use(b) ∪ (out(b) \ def(b)), out(b) = ∪ in(s) for s in
// succ(b). Per-instruction use/def sets come straight from
// hlir.Instruction.Uses/Dst.
func (g *Graph) ComputeLiveness() {
	for _, b := range g.Blocks {
		b.LiveIn = map[int]bool{}
		b.LiveOut = map[int]bool{}
	}
	changed := true
	for changed {
		changed = false
		for i := len(g.Blocks) - 1; i >= 0; i-- {
			b := g.Blocks[i]
			out := map[int]bool{}
			for _, s := range b.Succs {
				for v := range g.Block(s).LiveIn {
					out[v] = true
				}
			}
			in := blockUseDef(b, out)
			if !sameSet(in, b.LiveIn) || !sameSet(out, b.LiveOut) {
				changed = true
			}
			b.LiveIn = in
			b.LiveOut = out
		}
	}
}

// blockUseDef walks a block's instructions backward, building its LiveIn
// set from a known LiveOut: a register is live-in if it is used before
// (or without) being redefined within the block.
func blockUseDef(b *BasicBlock, out map[int]bool) map[int]bool {
	live := map[int]bool{}
	for v := range out {
		live[v] = true
	}
	for i := len(b.Instructions) - 1; i >= 0; i-- {
		ins := b.Instructions[i]
		if dst, ok := ins.Dst(); ok && dst.IsVReg() {
			delete(live, dst.VReg)
		}
		for _, u := range ins.Uses() {
			if u.IsVReg() {
				live[u.VReg] = true
			}
		}
	}
	return live
}

func sameSet(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

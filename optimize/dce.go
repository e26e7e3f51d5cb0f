package optimize

import "forthjit/ssa"

// eliminateDeadCode removes unreachable blocks and pure instructions
// whose results are never used, iterating to a fixed point (removing
// one dead instruction can make its own operands' producers dead in
// turn). Instructions with observable side effects -- stores, calls,
// FFI calls, return-stack transfers, string materialization -- are
// never removed regardless of whether their Dst is used, per spec
// §4.5's dead-code-elimination tag.
func eliminateDeadCode(fn *ssa.Function) bool {
	changed := removeUnreachableBlocks(fn)

	for {
		live := liveRegisters(fn)
		roundChanged := false
		for _, blk := range fn.Blocks {
			kept := blk.Instrs[:0]
			for _, in := range blk.Instrs {
				if !isPure(in) || anyLive(in, live) {
					kept = append(kept, in)
					continue
				}
				roundChanged = true
			}
			blk.Instrs = kept
		}
		if !roundChanged {
			break
		}
		changed = true
	}
	return changed
}

func isPure(in *ssa.Instr) bool {
	switch in.Op {
	case ssa.OpStore, ssa.OpAddStore, ssa.OpCall, ssa.OpFFICall, ssa.OpLoadString:
		return false
	case ssa.OpRStack:
		return false // mutates the shared return stack; never eliminable
	}
	return in.Pure
}

func anyLive(in *ssa.Instr, live map[int]bool) bool {
	if in.Op == ssa.OpLoadString {
		return live[in.Dst.ID] || live[in.Dst2.ID]
	}
	if live[in.Dst.ID] {
		return true
	}
	for _, d := range in.Dsts {
		if live[d.ID] {
			return true
		}
	}
	return false
}

// liveRegisters collects every register ID referenced as an operand, a
// branch/terminator argument, or a block parameter source anywhere in
// fn.
func liveRegisters(fn *ssa.Function) map[int]bool {
	live := make(map[int]bool)
	mark := func(r ssa.Register) { live[r.ID] = true }
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			for _, a := range in.Args {
				mark(a)
			}
		}
		switch t := blk.Term.(type) {
		case ssa.Branch:
			for _, a := range t.Args {
				mark(a)
			}
		case ssa.BranchIf:
			mark(t.Cond)
			for _, a := range t.ThenArgs {
				mark(a)
			}
			for _, a := range t.ElseArgs {
				mark(a)
			}
		case ssa.Return:
			for _, a := range t.Values {
				mark(a)
			}
		}
	}
	return live
}

// removeUnreachableBlocks drops any block not reachable from the entry
// block via a terminator edge, renumbering the survivors' IDs and fixing
// up every Branch/BranchIf/Preds reference to match.
func removeUnreachableBlocks(fn *ssa.Function) bool {
	reachable := make(map[int]bool)
	queue := []int{0}
	reachable[0] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range successors(fn.Blocks[id].Term) {
			if !reachable[succ] {
				reachable[succ] = true
				queue = append(queue, succ)
			}
		}
	}

	if len(reachable) == len(fn.Blocks) {
		return false
	}

	remap := make(map[int]int)
	var kept []*ssa.Block
	for _, blk := range fn.Blocks {
		if !reachable[blk.ID] {
			continue
		}
		remap[blk.ID] = len(kept)
		kept = append(kept, blk)
	}
	for _, blk := range kept {
		blk.ID = remap[blk.ID]
		newPreds := blk.Preds[:0]
		for _, p := range blk.Preds {
			if reachable[p] {
				newPreds = append(newPreds, remap[p])
			}
		}
		blk.Preds = newPreds
		switch t := blk.Term.(type) {
		case ssa.Branch:
			t.Target = remap[t.Target]
			blk.Term = t
		case ssa.BranchIf:
			t.Then = remap[t.Then]
			t.Else = remap[t.Else]
			blk.Term = t
		}
	}
	fn.Blocks = kept
	return true
}

func successors(term ssa.Terminator) []int {
	switch t := term.(type) {
	case ssa.Branch:
		return []int{t.Target}
	case ssa.BranchIf:
		return []int{t.Then, t.Else}
	}
	return nil
}

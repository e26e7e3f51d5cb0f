package optimize

import "forthjit/ssa"

// inlineEffectiveLimit is spec §4.5's bound: a callee may be inlined
// only if its body amounts to at most this many instructions.
const inlineEffectiveLimit = 3

// inlineSmallCalls splices eligible user-word calls directly into their
// call site. A callee is eligible when it is a single basic block (no
// internal control flow to reconcile), has at most inlineEffectiveLimit
// instructions, and never calls itself (spec's "never recursive" bound;
// mutual recursion through a chain of single-block functions is outside
// this bound too, since each link would have to be independently
// checked against a growing visited set -- out of scope for this fixed,
// shallow pass).
func inlineSmallCalls(mod *ssa.Module) bool {
	changed := false
	for _, name := range mod.Order {
		fn := mod.Functions[name]
		for _, blk := range fn.Blocks {
			if inlineBlock(fn, blk, mod) {
				changed = true
			}
		}
	}
	return changed
}

func eligibleCallee(mod *ssa.Module, name string) (*ssa.Function, bool) {
	callee, ok := mod.Functions[name]
	if !ok || len(callee.Blocks) != 1 {
		return nil, false
	}
	entry := callee.Entry()
	if len(entry.Instrs) > inlineEffectiveLimit {
		return nil, false
	}
	if _, ok := entry.Term.(ssa.Return); !ok {
		return nil, false
	}
	for _, in := range entry.Instrs {
		if in.Op == ssa.OpCall && in.Callee == name {
			return nil, false
		}
	}
	return callee, true
}

func inlineBlock(fn *ssa.Function, blk *ssa.Block, mod *ssa.Module) bool {
	changed := false
	for i := 0; i < len(blk.Instrs); i++ {
		in := blk.Instrs[i]
		if in.Op != ssa.OpCall {
			continue
		}
		callee, ok := eligibleCallee(mod, in.Callee)
		if !ok {
			continue
		}

		rename := make(map[int]ssa.Register)
		for pi, p := range callee.Entry().Params {
			rename[p.ID] = in.Args[pi]
		}

		var spliced []*ssa.Instr
		for _, ci := range callee.Entry().Instrs {
			spliced = append(spliced, remapInstr(ci, fn, rename))
		}

		ret := callee.Entry().Term.(ssa.Return)
		resultOf := make(map[int]ssa.Register, len(in.Dsts))
		for ri, v := range ret.Values {
			resultOf[in.Dsts[ri].ID] = lookupRegister(v, rename)
		}

		blk.Instrs = append(blk.Instrs[:i], append(spliced, blk.Instrs[i+1:]...)...)
		i += len(spliced) - 1

		substituteFunction(fn, resultOf)
		changed = true
	}
	return changed
}

func lookupRegister(r ssa.Register, rename map[int]ssa.Register) ssa.Register {
	if mapped, ok := rename[r.ID]; ok {
		return mapped
	}
	return r
}

// remapInstr copies in with every register reference translated through
// rename, minting a fresh caller-owned register (via fn.NewRegister) for
// any callee register not already mapped (i.e. one the callee itself
// defines, as opposed to one of its parameters).
func remapInstr(in *ssa.Instr, fn *ssa.Function, rename map[int]ssa.Register) *ssa.Instr {
	out := *in
	out.Args = make([]ssa.Register, len(in.Args))
	for i, a := range in.Args {
		out.Args[i] = mapOrMint(a, fn, rename)
	}
	if in.Op == ssa.OpLoadString {
		out.Dst = mapOrMint(in.Dst, fn, rename)
		out.Dst2 = mapOrMint(in.Dst2, fn, rename)
	} else if len(in.Dsts) > 0 {
		out.Dsts = make([]ssa.Register, len(in.Dsts))
		for i, d := range in.Dsts {
			out.Dsts[i] = mapOrMint(d, fn, rename)
		}
	} else {
		out.Dst = mapOrMint(in.Dst, fn, rename)
	}
	return &out
}

func mapOrMint(r ssa.Register, fn *ssa.Function, rename map[int]ssa.Register) ssa.Register {
	if mapped, ok := rename[r.ID]; ok {
		return mapped
	}
	fresh := fn.NewRegister(r.Type)
	rename[r.ID] = fresh
	return fresh
}

// substituteFunction rewrites every operand reference in fn matching a
// key in from to its mapped value, used after inlining to retarget every
// use of the original call's result registers onto the spliced-in
// definitions.
func substituteFunction(fn *ssa.Function, from map[int]ssa.Register) {
	if len(from) == 0 {
		return
	}
	sub := func(r ssa.Register) ssa.Register {
		if mapped, ok := from[r.ID]; ok {
			return mapped
		}
		return r
	}
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			for i, a := range in.Args {
				in.Args[i] = sub(a)
			}
		}
		switch t := blk.Term.(type) {
		case ssa.Branch:
			for i, a := range t.Args {
				t.Args[i] = sub(a)
			}
			blk.Term = t
		case ssa.BranchIf:
			t.Cond = sub(t.Cond)
			for i, a := range t.ThenArgs {
				t.ThenArgs[i] = sub(a)
			}
			for i, a := range t.ElseArgs {
				t.ElseArgs[i] = sub(a)
			}
			blk.Term = t
		case ssa.Return:
			for i, a := range t.Values {
				t.Values[i] = sub(a)
			}
			blk.Term = t
		}
	}
}

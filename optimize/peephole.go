package optimize

import "forthjit/ssa"

// fusePeepholes rewrites recognizable two-operand shapes into single
// superinstructions (spec §4.5): "dup +" (the same register fed to both
// operands of an Add) into DupAdd, "dup *" into Square, a literal-2
// operand of a Mul into a left shift by one (Shl1), and a literal
// operand of an Add into LitAdd. The folded-away literal's own
// LoadInt instruction is left in place for eliminateDeadCode to remove
// once it becomes unused.
func fusePeepholes(fn *ssa.Function) bool {
	changed := false
	idx := buildDefIndex(fn)

	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op != ssa.OpBinary {
				continue
			}
			x, y := in.Args[0], in.Args[1]

			if in.BinOp == ssa.Add && x.ID == y.ID {
				*in = ssa.Instr{Op: ssa.OpDupAdd, Dst: in.Dst, Args: []ssa.Register{x}, Pure: true}
				changed = true
				continue
			}
			if in.BinOp == ssa.Mul && x.ID == y.ID {
				*in = ssa.Instr{Op: ssa.OpSquare, Dst: in.Dst, Args: []ssa.Register{x}, Pure: true}
				changed = true
				continue
			}
			if in.BinOp == ssa.Mul {
				if lit, ok := constInt(y, idx); ok && lit == 2 {
					*in = ssa.Instr{Op: ssa.OpShl1, Dst: in.Dst, Args: []ssa.Register{x}, Pure: true}
					changed = true
					continue
				}
				if lit, ok := constInt(x, idx); ok && lit == 2 {
					*in = ssa.Instr{Op: ssa.OpShl1, Dst: in.Dst, Args: []ssa.Register{y}, Pure: true}
					changed = true
					continue
				}
			}
			if in.BinOp == ssa.Add {
				if lit, ok := constInt(y, idx); ok {
					*in = ssa.Instr{Op: ssa.OpLitAdd, Dst: in.Dst, IntConst: lit, Args: []ssa.Register{x}, Pure: true}
					changed = true
					continue
				}
				if lit, ok := constInt(x, idx); ok {
					*in = ssa.Instr{Op: ssa.OpLitAdd, Dst: in.Dst, IntConst: lit, Args: []ssa.Register{y}, Pure: true}
					changed = true
					continue
				}
			}
		}
	}
	return changed
}

package optimize

import "forthjit/ssa"

// defIndex maps a register ID to the instruction that produced it,
// within a single function. Block parameters have no entry: they are
// defined by whichever predecessor's Branch/BranchIf supplied the
// matching argument, not by an in-block instruction.
type defIndex map[int]*ssa.Instr

func buildDefIndex(fn *ssa.Function) defIndex {
	idx := make(defIndex)
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			switch in.Op {
			case ssa.OpLoadString:
				idx[in.Dst.ID] = in
				idx[in.Dst2.ID] = in
			case ssa.OpCall, ssa.OpFFICall:
				for _, d := range in.Dsts {
					idx[d.ID] = in
				}
			case ssa.OpRStack:
				for _, d := range in.Dsts {
					idx[d.ID] = in
				}
			default:
				idx[in.Dst.ID] = in
			}
		}
	}
	return idx
}

// constInt returns the compile-time integer value of r if its defining
// instruction is a literal load, via idx.
func constInt(r ssa.Register, idx defIndex) (int64, bool) {
	in, ok := idx[r.ID]
	if !ok || in.Op != ssa.OpLoadInt {
		return 0, false
	}
	return in.IntConst, true
}

func constFloat(r ssa.Register, idx defIndex) (float64, bool) {
	in, ok := idx[r.ID]
	if !ok || in.Op != ssa.OpLoadFloat {
		return 0, false
	}
	return in.FltConst, true
}

// foldConstants rewrites any pure Binary/Unary/Compare instruction whose
// operands are both compile-time literals into a LoadInt/LoadFloat of the
// computed result, keeping the same Dst register so every downstream use
// stays valid without further rewriting.
func foldConstants(fn *ssa.Function) bool {
	changed := false
	idx := buildDefIndex(fn)

	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			switch in.Op {
			case ssa.OpBinary:
				if foldBinary(in, idx) {
					changed = true
				}
			case ssa.OpUnary:
				if foldUnary(in, idx) {
					changed = true
				}
			case ssa.OpCompare:
				if foldCompare(in, idx) {
					changed = true
				}
			}
		}
	}
	return changed
}

func foldBinary(in *ssa.Instr, idx defIndex) bool {
	if fx, ok := constFloat(in.Args[0], idx); ok {
		if fy, ok2 := constFloat(in.Args[1], idx); ok2 {
			if v, ok3 := applyFloatBinOp(in.BinOp, fx, fy); ok3 {
				*in = ssa.Instr{Op: ssa.OpLoadFloat, Dst: in.Dst, FltConst: v, Pure: true}
				return true
			}
		}
	}
	ix, ok := constInt(in.Args[0], idx)
	if !ok {
		return false
	}
	iy, ok2 := constInt(in.Args[1], idx)
	if !ok2 {
		return false
	}
	v, ok3 := applyIntBinOp(in.BinOp, ix, iy)
	if !ok3 {
		return false
	}
	*in = ssa.Instr{Op: ssa.OpLoadInt, Dst: in.Dst, IntConst: v, Pure: true}
	return true
}

func foldUnary(in *ssa.Instr, idx defIndex) bool {
	ix, ok := constInt(in.Args[0], idx)
	if !ok {
		return false
	}
	var v int64
	switch in.UnOp {
	case ssa.Incr:
		v = ix + 1
	case ssa.Decr:
		v = ix - 1
	case ssa.Dbl:
		v = ix * 2
	case ssa.Invert:
		v = ^ix
	}
	*in = ssa.Instr{Op: ssa.OpLoadInt, Dst: in.Dst, IntConst: v, Pure: true}
	return true
}

func foldCompare(in *ssa.Instr, idx defIndex) bool {
	if len(in.Args) == 2 {
		ix, ok := constInt(in.Args[0], idx)
		iy, ok2 := constInt(in.Args[1], idx)
		if !ok || !ok2 {
			return false
		}
		*in = ssa.Instr{Op: ssa.OpLoadInt, Dst: in.Dst, IntConst: boolToCell(evalCmp2(in.CmpOp, ix, iy)), Pure: true}
		return true
	}
	ix, ok := constInt(in.Args[0], idx)
	if !ok {
		return false
	}
	*in = ssa.Instr{Op: ssa.OpLoadInt, Dst: in.Dst, IntConst: boolToCell(evalCmp1(in.CmpOp, ix)), Pure: true}
	return true
}

func boolToCell(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func evalCmp2(op ssa.CmpOp, a, b int64) bool {
	switch op {
	case ssa.CmpLT:
		return a < b
	case ssa.CmpGT:
		return a > b
	case ssa.CmpEQ:
		return a == b
	case ssa.CmpNE:
		return a != b
	case ssa.CmpLE:
		return a <= b
	case ssa.CmpGE:
		return a >= b
	}
	return false
}

func evalCmp1(op ssa.CmpOp, a int64) bool {
	switch op {
	case ssa.CmpEQZ:
		return a == 0
	case ssa.CmpLTZ:
		return a < 0
	case ssa.CmpGTZ:
		return a > 0
	}
	return false
}

func applyIntBinOp(op ssa.BinOp, a, b int64) (int64, bool) {
	switch op {
	case ssa.Add:
		return a + b, true
	case ssa.Sub:
		return a - b, true
	case ssa.Mul:
		return a * b, true
	case ssa.Div:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case ssa.Mod:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case ssa.And:
		return a & b, true
	case ssa.Or:
		return a | b, true
	case ssa.Xor:
		return a ^ b, true
	case ssa.Lshift:
		return a << uint(b), true
	case ssa.Rshift:
		return a >> uint(b), true
	}
	return 0, false
}

func applyFloatBinOp(op ssa.BinOp, a, b float64) (float64, bool) {
	switch op {
	case ssa.Add:
		return a + b, true
	case ssa.Sub:
		return a - b, true
	case ssa.Mul:
		return a * b, true
	case ssa.Div:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}
	return 0, false
}

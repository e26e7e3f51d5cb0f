package backend

// dump.go renders the two textual diagnostic views the --dump-ssa/
// --dump-ir CLI flags expose: DumpSSA prints the builder's (optionally
// optimized) ssa.Module verbatim, DumpIR prints the backend's own
// lowered LFunction form the amd64 encoder actually consumes. Both are
// pure functions of their input, so dumping the same module twice is
// byte-identical -- the property dump_test.go's determinism tests check
// with go-cmp.

import (
	"fmt"
	"sort"
	"strings"

	"forthjit/ssa"
)

// DumpSSA renders every function in mod in declaration order, blocks and
// instructions in source order, one line per instruction.
func DumpSSA(mod *ssa.Module) string {
	var b strings.Builder
	for _, name := range mod.Order {
		fn := mod.Functions[name]
		fmt.Fprintf(&b, "func %s%s {\n", fn.Name, fn.Effect)
		for _, blk := range fn.Blocks {
			fmt.Fprintf(&b, "  block%d(%s):\n", blk.ID, joinRegs(blk.Params))
			for _, in := range blk.Instrs {
				fmt.Fprintf(&b, "    %s\n", dumpInstr(in))
			}
			fmt.Fprintf(&b, "    %s\n", dumpTerm(blk.Term))
		}
		b.WriteString("}\n")
	}
	return b.String()
}

func joinRegs(rs []ssa.Register) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

func dumpInstr(in *ssa.Instr) string {
	dsts := dumpDsts(in)
	switch in.Op {
	case ssa.OpLoadInt:
		return fmt.Sprintf("%s = load.int %d", dsts, in.IntConst)
	case ssa.OpLoadFloat:
		return fmt.Sprintf("%s = load.float %g", dsts, in.FltConst)
	case ssa.OpLoadString:
		return fmt.Sprintf("%s = load.string %q", dsts, in.StrConst)
	case ssa.OpBinary:
		return fmt.Sprintf("%s = %s %s", dsts, in.BinOp, joinRegs(in.Args))
	case ssa.OpUnary:
		return fmt.Sprintf("%s = %s %s", dsts, in.UnOp, joinRegs(in.Args))
	case ssa.OpCompare:
		return fmt.Sprintf("%s = cmp.%s %s", dsts, in.CmpOp, joinRegs(in.Args))
	case ssa.OpSelect:
		return fmt.Sprintf("%s = select %s", dsts, joinRegs(in.Args))
	case ssa.OpCall:
		return fmt.Sprintf("%s = call %s(%s)", dsts, in.Callee, joinRegs(in.Args))
	case ssa.OpFFICall:
		return fmt.Sprintf("%s = ffi.call %s(%s)", dsts, in.Callee, joinRegs(in.Args))
	case ssa.OpLoad:
		return fmt.Sprintf("%s = load.%s %s", dsts, widthName(in.Width), joinRegs(in.Args))
	case ssa.OpStore:
		return fmt.Sprintf("store.%s %s", widthName(in.Width), joinRegs(in.Args))
	case ssa.OpAddStore:
		return fmt.Sprintf("addstore %s", joinRegs(in.Args))
	case ssa.OpRStack:
		return fmt.Sprintf("%s rstack.%s %s", dsts, rstackName(in.RStack), joinRegs(in.Args))
	case ssa.OpDupAdd:
		return fmt.Sprintf("%s = fused.dupadd %s", dsts, joinRegs(in.Args))
	case ssa.OpLitAdd:
		return fmt.Sprintf("%s = fused.litadd %s + %d", dsts, joinRegs(in.Args), in.IntConst)
	case ssa.OpShl1:
		return fmt.Sprintf("%s = fused.shl1 %s", dsts, joinRegs(in.Args))
	case ssa.OpSquare:
		return fmt.Sprintf("%s = fused.square %s", dsts, joinRegs(in.Args))
	default:
		return fmt.Sprintf("<unknown op %d>", in.Op)
	}
}

func dumpDsts(in *ssa.Instr) string {
	var regs []ssa.Register
	switch in.Op {
	case ssa.OpLoadInt, ssa.OpLoadFloat, ssa.OpBinary, ssa.OpUnary, ssa.OpCompare, ssa.OpSelect, ssa.OpLoad,
		ssa.OpDupAdd, ssa.OpLitAdd, ssa.OpShl1, ssa.OpSquare:
		regs = []ssa.Register{in.Dst}
	case ssa.OpLoadString:
		regs = []ssa.Register{in.Dst, in.Dst2}
	case ssa.OpCall, ssa.OpFFICall, ssa.OpRStack:
		regs = in.Dsts
	}
	if len(regs) == 0 {
		return "_"
	}
	return joinRegs(regs)
}

func widthName(w ssa.MemWidth) string {
	if w == ssa.Byte {
		return "byte"
	}
	return "cell"
}

func rstackName(op ssa.RStackOp) string {
	switch op {
	case ssa.RPush:
		return "push"
	case ssa.RPop:
		return "pop"
	case ssa.RPeek:
		return "peek"
	default:
		return "?"
	}
}

func dumpTerm(t ssa.Terminator) string {
	switch v := t.(type) {
	case ssa.Branch:
		return fmt.Sprintf("branch block%d(%s)", v.Target, joinRegs(v.Args))
	case ssa.BranchIf:
		return fmt.Sprintf("branchif %s then block%d(%s) else block%d(%s)",
			v.Cond, v.Then, joinRegs(v.ThenArgs), v.Else, joinRegs(v.ElseArgs))
	case ssa.Return:
		return fmt.Sprintf("return %s", joinRegs(v.Values))
	default:
		return "<unterminated>"
	}
}

// DumpIR renders the backend's own lowered form, keyed by function name so
// output order doesn't depend on map iteration.
func DumpIR(fns map[string]*LFunction) string {
	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fn := fns[name]
		fmt.Fprintf(&b, "%s\n", fn.String())
		for _, blk := range fn.Blocks {
			fmt.Fprintf(&b, "  block%d(%s):\n", blk.ID, joinInts(blk.Params))
			for _, in := range blk.Instrs {
				fmt.Fprintf(&b, "    %s\n", dumpLInstr(in))
			}
			fmt.Fprintf(&b, "    %s\n", dumpLTerm(blk.Term))
		}
	}
	return b.String()
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("s%d", id)
	}
	return strings.Join(parts, ", ")
}

func dumpLInstr(in *LInstr) string {
	if in.SourceOpText != "" {
		return fmt.Sprintf("[s%d] <- %s", in.Dst, in.SourceOpText)
	}
	return fmt.Sprintf("<op %d>", in.Op)
}

func dumpLTerm(t LTerm) string {
	switch v := t.(type) {
	case LBranch:
		return fmt.Sprintf("branch block%d(%s)", v.Target, joinInts(v.Args))
	case LBranchIf:
		return fmt.Sprintf("branchif s%d then block%d(%s) else block%d(%s)",
			v.Cond, v.Then, joinInts(v.ThenArgs), v.Else, joinInts(v.ElseArgs))
	case LReturn:
		return fmt.Sprintf("return %s", joinInts(v.Values))
	default:
		return "<unterminated>"
	}
}

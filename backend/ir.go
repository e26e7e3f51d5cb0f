// Package backend implements spec §4.6: it lowers an ssa.Module to a
// low-level IR suitable for a JIT code generator, manages the JIT module's
// executable memory, links cross-function references so that self- and
// mutually-recursive definitions can be emitted before any body is
// finalized, and returns native entry points. The amd64 encoder in
// encode_amd64.go is hand-rolled in the teacher's one-function-per-opcode
// style (compiler/generator.go's genPush/genPlus/...), grounded on it but
// emitting machine-code bytes instead of assembly text.
package backend

import (
	"fmt"

	"forthjit/ssa"
	"forthjit/types"
)

// FuncHandle is a stable reference to a declared function, minted by
// declare_all before any body is built (spec §4.6's two-pass protocol).
type FuncHandle int

// LOp identifies an LInstr's variant. It mirrors ssa.Op closely: lowering
// is mostly a renaming pass, with OpCall's callee resolved from a name to
// a FuncHandle now that every function in the module has one.
type LOp int

const (
	LLoadInt LOp = iota
	LLoadFloat
	LLoadString
	LBinary
	LUnary
	LCompare
	LSelect
	LCall
	LFFICall
	LLoad
	LStore
	LAddStore
	LRStack
)

// LInstr is one low-level instruction. Its Reg fields name scratch slots
// (spec's "per-function scratch map"), one per originating ssa.Register,
// addressed by Register.ID.
type LInstr struct {
	Op LOp

	Dst  int
	Dst2 int
	Dsts []int

	Args []int
	Type types.Type

	BinOp    ssa.BinOp
	UnOp     ssa.UnOp
	CmpOp    ssa.CmpOp
	Width    ssa.MemWidth
	RStack   ssa.RStackOp
	Wide     bool
	IntConst int64
	FltConst float64
	StrIndex int // index into Module.strings, set for LLoadString

	Callee       FuncHandle // LCall
	CalleeName   string     // LCall (diagnostics) / LFFICall (registry key)
	SourceOpText string     // printable form of the originating ssa.Instr, for BackendError details
}

// LTerm is a lowered block terminator: LBranch, LBranchIf, or LReturn.
type LTerm interface{ lterm() }

type LBranch struct {
	Target int
	Args   []int
}

func (LBranch) lterm() {}

type LBranchIf struct {
	Cond     int
	Then     int
	ThenArgs []int
	Else     int
	ElseArgs []int
}

func (LBranchIf) lterm() {}

type LReturn struct {
	Values []int
}

func (LReturn) lterm() {}

// LBlock is a lowered basic block: block parameters are still expressed as
// scratch-slot indices with their carried type, per spec's "typed block
// parameters" merge mechanism (GLOSSARY: Block parameter).
type LBlock struct {
	ID         int
	Params     []int
	ParamTypes []types.Type
	Instrs     []*LInstr
	Term       LTerm
	Preds      []int
}

// LFunction is one lowered definition, ready for the amd64 encoder.
// NumRegs is the scratch-slot count (one per distinct ssa.Register the
// builder minted for this function); the encoder reserves NumRegs*8 bytes
// of frame-local storage for them.
type LFunction struct {
	Name    string
	Effect  types.Effect
	Blocks  []*LBlock
	NumRegs int
	Handle  FuncHandle
}

func (f *LFunction) String() string {
	return fmt.Sprintf("func %s%s (handle %d, %d blocks, %d scratch slots)",
		f.Name, f.Effect, f.Handle, len(f.Blocks), f.NumRegs)
}

// Lower translates one ssa.Function into an LFunction. names must map
// every user-callable word (and the synthetic entry) to the FuncHandle
// declare_all already minted for it, per the two-pass protocol (spec
// §4.6): Lower runs during the "define" pass, after every function's
// signature is known but potentially before its body is built.
func Lower(fn *ssa.Function, handle FuncHandle, names map[string]FuncHandle, mod *Module) (*LFunction, error) {
	out := &LFunction{Name: fn.Name, Effect: fn.Effect, Handle: handle}

	maxReg := 0
	for _, b := range fn.Blocks {
		for _, p := range b.Params {
			if p.ID+1 > maxReg {
				maxReg = p.ID + 1
			}
		}
		for _, in := range b.Instrs {
			for _, r := range allRegs(in) {
				if r.ID+1 > maxReg {
					maxReg = r.ID + 1
				}
			}
		}
	}
	out.NumRegs = maxReg

	for _, b := range fn.Blocks {
		lb := &LBlock{ID: b.ID, Preds: append([]int{}, b.Preds...)}
		for _, p := range b.Params {
			lb.Params = append(lb.Params, p.ID)
			lb.ParamTypes = append(lb.ParamTypes, p.Type)
		}
		for _, in := range b.Instrs {
			li, err := lowerInstr(in, names, mod)
			if err != nil {
				return nil, fmt.Errorf("backend: lowering %s block %d: %w", fn.Name, b.ID, err)
			}
			lb.Instrs = append(lb.Instrs, li)
		}
		term, err := lowerTerm(b.Term)
		if err != nil {
			return nil, fmt.Errorf("backend: lowering %s block %d terminator: %w", fn.Name, b.ID, err)
		}
		lb.Term = term
		out.Blocks = append(out.Blocks, lb)
	}
	return out, nil
}

func allRegs(in *ssa.Instr) []ssa.Register {
	var out []ssa.Register
	if in.Op == ssa.OpLoadInt || in.Op == ssa.OpLoadFloat || in.Op == ssa.OpLoadString ||
		in.Op == ssa.OpBinary || in.Op == ssa.OpUnary || in.Op == ssa.OpCompare ||
		in.Op == ssa.OpSelect || in.Op == ssa.OpLoad {
		out = append(out, in.Dst)
	}
	if in.Op == ssa.OpLoadString {
		out = append(out, in.Dst2)
	}
	out = append(out, in.Dsts...)
	out = append(out, in.Args...)
	return out
}

func regIDs(rs []ssa.Register) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func lowerInstr(in *ssa.Instr, names map[string]FuncHandle, mod *Module) (*LInstr, error) {
	li := &LInstr{
		Args:     regIDs(in.Args),
		BinOp:    in.BinOp,
		UnOp:     in.UnOp,
		CmpOp:    in.CmpOp,
		Width:    in.Width,
		RStack:   in.RStack,
		Wide:     in.Wide,
		IntConst: in.IntConst,
		FltConst: in.FltConst,
	}
	switch in.Op {
	case ssa.OpLoadInt:
		li.Op, li.Dst, li.Type = LLoadInt, in.Dst.ID, in.Dst.Type
	case ssa.OpLoadFloat:
		li.Op, li.Dst, li.Type = LLoadFloat, in.Dst.ID, in.Dst.Type
	case ssa.OpLoadString:
		li.Op, li.Dst, li.Dst2 = LLoadString, in.Dst.ID, in.Dst2.ID
		li.StrIndex = mod.internString(in.StrConst)
	case ssa.OpBinary:
		li.Op, li.Dst, li.Type = LBinary, in.Dst.ID, in.Dst.Type
	case ssa.OpUnary:
		li.Op, li.Dst, li.Type = LUnary, in.Dst.ID, in.Dst.Type
	case ssa.OpCompare:
		li.Op, li.Dst = LCompare, in.Dst.ID
		if len(in.Args) > 0 {
			li.Type = in.Args[0].Type
		}
	case ssa.OpSelect:
		li.Op, li.Dst, li.Type = LSelect, in.Dst.ID, in.Dst.Type
	case ssa.OpCall:
		h, ok := names[in.Callee]
		if !ok {
			return nil, fmt.Errorf("undeclared callee %q", in.Callee)
		}
		li.Op, li.Callee, li.CalleeName, li.Dsts = LCall, h, in.Callee, regIDs(in.Dsts)
	case ssa.OpFFICall:
		li.Op, li.CalleeName, li.Dsts = LFFICall, in.Callee, regIDs(in.Dsts)
	case ssa.OpLoad:
		li.Op, li.Dst, li.Type = LLoad, in.Dst.ID, in.Dst.Type
	case ssa.OpStore:
		li.Op = LStore
	case ssa.OpAddStore:
		li.Op = LAddStore
	case ssa.OpRStack:
		li.Op, li.Dsts = LRStack, regIDs(in.Dsts)
	case ssa.OpDupAdd, ssa.OpLitAdd, ssa.OpShl1, ssa.OpSquare:
		// Superinstructions (spec §4.5 peephole pass) lower to the same
		// LBinary/LUnary shapes their fused sequence would have produced;
		// the encoder's benefit is fewer scratch round-trips, not a new
		// opcode family.
		return lowerFused(in)
	default:
		return nil, fmt.Errorf("unhandled ssa op %d", in.Op)
	}
	li.SourceOpText = fmt.Sprintf("%v", in)
	return li, nil
}

func lowerFused(in *ssa.Instr) (*LInstr, error) {
	li := &LInstr{Args: regIDs(in.Args), Dst: in.Dst.ID, Type: in.Dst.Type}
	switch in.Op {
	case ssa.OpDupAdd, ssa.OpSquare:
		li.Op, li.BinOp = LBinary, ssa.Add
		if in.Op == ssa.OpSquare {
			li.BinOp = ssa.Mul
		}
		li.Args = []int{in.Args[0].ID, in.Args[0].ID}
	case ssa.OpLitAdd:
		li.Op, li.BinOp, li.IntConst = LBinary, ssa.Add, in.IntConst
		li.Args = []int{in.Args[0].ID}
	case ssa.OpShl1:
		li.Op, li.BinOp, li.IntConst = LBinary, ssa.Lshift, 1
		li.Args = []int{in.Args[0].ID}
	}
	li.SourceOpText = fmt.Sprintf("%v", in)
	return li, nil
}

func lowerTerm(t ssa.Terminator) (LTerm, error) {
	switch v := t.(type) {
	case ssa.Branch:
		return LBranch{Target: v.Target, Args: regIDs(v.Args)}, nil
	case ssa.BranchIf:
		return LBranchIf{Cond: v.Cond.ID, Then: v.Then, ThenArgs: regIDs(v.ThenArgs), Else: v.Else, ElseArgs: regIDs(v.ElseArgs)}, nil
	case ssa.Return:
		return LReturn{Values: regIDs(v.Values)}, nil
	default:
		return nil, fmt.Errorf("unhandled terminator %T", t)
	}
}

package backend

import (
	"fmt"
	"math"

	"forthjit/ssa"
	"forthjit/types"
)

// encodeFunction lowers one LFunction to amd64 machine code under the
// uniform calling convention spec §4.6 fixes: a compiled function is
// `(stack_pointer: ptr) -> ptr`, SysV ABI, RDI in and RAX out. RBX holds
// that incoming pointer for the function's whole lifetime (loaded once,
// never reassigned) and doubles as the staging base for every OpCall
// site's outgoing arguments/incoming results -- once the entry prologue
// has copied the declared inputs into scratch slots, nothing else reads
// the raw argument cells at [rbx+...] again, so each call site is free to
// overwrite them. Every SSA register lives in its own frame-local scratch
// slot (no register allocator); branches to a block with parameters copy
// the edge's argument values into the target's parameter slots via the
// hardware push/pop stack, which sidesteps the aliasing hazard a direct
// slot-to-slot copy would have when a merge's arguments are a permutation
// of its own parameters (the "swap" shape).
func encodeFunction(fn *LFunction, mod *Module) ([]byte, error) {
	a := &asm{}

	frameSize := align16(fn.NumRegs * 8)

	// Prologue. Entry invariant per SysV ABI: rsp%16 == 8. After push
	// rbp, push rbx: rsp%16 == 8 again, so `sub rsp, frameSize` with a
	// 16-aligned frameSize preserves that invariant for every `call` the
	// body issues.
	a.push(rbp)
	a.movRegReg(rbp, rsp)
	a.push(rbx)
	if frameSize > 0 {
		a.emit(rexW(), 0x81, modrm(3, 5, int(rsp)))
		a.emit32(int32(frameSize))
	}
	a.movRegReg(rbx, rdi)

	n := len(fn.Effect.Inputs)
	if len(fn.Blocks) > 0 {
		for i, p := range fn.Blocks[0].Params {
			a.loadMem(rax, rbx, int32(-8*(n-i)))
			a.storeMem(rbp, scratchDisp(p), rax)
		}
	}

	blockStart := make(map[int]int, len(fn.Blocks))
	type pendingJump struct {
		at, target int
	}
	var pending []pendingJump

	for _, b := range fn.Blocks {
		blockStart[b.ID] = a.len()
		for _, in := range b.Instrs {
			if err := encodeInstr(a, in, mod, fn); err != nil {
				return nil, fmt.Errorf("backend: encoding %s block %d: %w", fn.Name, b.ID, err)
			}
		}
		switch t := b.Term.(type) {
		case LBranch:
			copyArgs(a, t.Args, t.Target, fn)
			at := a.jmpRel32()
			pending = append(pending, pendingJump{at, t.Target})
		case LBranchIf:
			a.loadMem(rax, rbp, scratchDisp(t.Cond))
			a.testRegReg(rax)
			elseAt := a.jccRel32(ccE)
			copyArgs(a, t.ThenArgs, t.Then, fn)
			thenJmp := a.jmpRel32()
			pending = append(pending, pendingJump{thenJmp, t.Then})
			a.patchRel32(elseAt, a.len())
			copyArgs(a, t.ElseArgs, t.Else, fn)
			elseJmp := a.jmpRel32()
			pending = append(pending, pendingJump{elseJmp, t.Else})
		case LReturn:
			for i, v := range t.Values {
				a.loadMem(rax, rbp, scratchDisp(v))
				a.storeMem(rbx, int32(8*i), rax)
			}
			if len(t.Values) == 0 {
				// Zero outputs still write a placeholder zero at offset 0
				// (spec's uniform calling convention: "Functions with zero
				// outputs return a zero value at offset 0 to satisfy
				// verifier signature constraints").
				a.movRegImm64(rax, 0)
				a.storeMem(rbx, 0, rax)
			}
			a.movRegReg(rax, rbx)
			a.movRegImm32(rcx, int32(8*(len(t.Values)-n)))
			a.addRegReg(rax, rcx)
			encodeEpilogue(a, frameSize)
		default:
			return nil, fmt.Errorf("backend: %s block %d missing terminator", fn.Name, b.ID)
		}
	}

	for _, pj := range pending {
		target, ok := blockStart[pj.target]
		if !ok {
			return nil, fmt.Errorf("backend: %s: jump to undefined block %d", fn.Name, pj.target)
		}
		a.patchRel32(pj.at, target)
	}

	return a.bytes(), nil
}

func encodeEpilogue(a *asm, frameSize int) {
	if frameSize > 0 {
		a.emit(rexW(), 0x81, modrm(3, 0, int(rsp)))
		a.emit32(int32(frameSize))
	}
	a.pop(rbx)
	a.pop(rbp)
	a.ret()
}

// align16 rounds n up to the next multiple of 16 (0 stays 0).
func align16(n int) int {
	return (n + 15) &^ 15
}

// scratchDisp is the frame-relative displacement of register id's scratch
// slot: rbp points at the saved rbp and the 8 bytes below it hold the
// saved rbx, so scratch storage starts at rbp-16 and grows downward,
// staying inside the align16(NumRegs*8) bytes the prologue reserves.
func scratchDisp(id int) int32 {
	return int32(-(16 + 8*id))
}

// copyArgs stages an edge's argument registers onto the hardware stack
// and pops them into the target block's parameter slots in reverse, so a
// permutation among the same slots (e.g. a loop back-edge re-ordering
// live values) is always safe.
func copyArgs(a *asm, args []int, targetID int, fn *LFunction) {
	for _, id := range args {
		a.loadMem(rax, rbp, scratchDisp(id))
		a.push(rax)
	}
	target := blockByID(fn, targetID)
	for i := len(target.Params) - 1; i >= 0; i-- {
		a.pop(rax)
		a.storeMem(rbp, scratchDisp(target.Params[i]), rax)
	}
}

func blockByID(fn *LFunction, id int) *LBlock {
	for _, b := range fn.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func encodeInstr(a *asm, in *LInstr, mod *Module, fn *LFunction) error {
	switch in.Op {
	case LLoadInt:
		return emitLoadInt(a, in)
	case LLoadFloat:
		return emitLoadFloat(a, in)
	case LLoadString:
		return emitLoadString(a, in, mod)
	case LBinary:
		return emitBinary(a, in)
	case LUnary:
		return emitUnary(a, in)
	case LCompare:
		return emitCompare(a, in)
	case LSelect:
		return emitSelect(a, in)
	case LCall:
		return emitCall(a, in, mod, fn)
	case LFFICall:
		return emitFFICall(a, in, mod)
	case LLoad:
		return emitLoad(a, in)
	case LStore:
		return emitStore(a, in)
	case LAddStore:
		return emitAddStore(a, in)
	case LRStack:
		return emitRStack(a, in, mod)
	default:
		return fmt.Errorf("unencodable op %d (%s)", in.Op, in.SourceOpText)
	}
}

// emitLoadInt pushes a literal onto the abstract stack: spec §4.4's
// LoadInt, realized as a single movabs-then-store (the teacher's genPush
// collapsed from "escape into .data, fld/fstp, push" down to one
// immediate load since there is no floating-point data section to
// populate at JIT time).
func emitLoadInt(a *asm, in *LInstr) error {
	a.movRegImm64(rax, in.IntConst)
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	return nil
}

func emitLoadFloat(a *asm, in *LInstr) error {
	a.movRegImm64(rax, int64(math.Float64bits(in.FltConst)))
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	return nil
}

// emitLoadString calls the runtime's malloc-like string-allocation
// trampoline (mod.ffi["__load_string"], registered in ffi.go) with the
// constant's already-resident address and length baked in as immediates
// -- the bytes live in the Module's own string table for its whole
// lifetime, so no copy into the JIT's data section is needed before the
// call.
func emitLoadString(a *asm, in *LInstr, mod *Module) error {
	data := mod.strings[in.StrIndex]
	ptr, length := mod.stringAddr(in.StrIndex)
	a.movRegImm64(rdi, ptr)
	a.movRegImm64(rsi, length)
	a.movRegImm64(rax, int64(mod.ffi.addr("__load_string")))
	a.callReg(rax)
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	a.movRegImm64(rax, int64(len(data)))
	a.storeMem(rbp, scratchDisp(in.Dst2), rax)
	return nil
}

func emitBinary(a *asm, in *LInstr) error {
	if in.Type == types.Float {
		return emitBinaryFloat(a, in)
	}
	a.loadMem(rax, rbp, scratchDisp(in.Args[0]))
	if len(in.Args) > 1 {
		a.loadMem(rcx, rbp, scratchDisp(in.Args[1]))
	} else {
		a.movRegImm64(rcx, in.IntConst)
	}
	switch in.BinOp {
	case ssa.Add:
		a.addRegReg(rax, rcx)
	case ssa.Sub:
		a.subRegReg(rax, rcx)
	case ssa.Mul:
		a.imulRegReg(rax, rcx)
	case ssa.Div:
		a.cqo()
		a.idivReg(rcx)
	case ssa.Mod:
		a.cqo()
		a.idivReg(rcx)
		a.movRegReg(rax, rdx)
	case ssa.And:
		a.andRegReg(rax, rcx)
	case ssa.Or:
		a.orRegReg(rax, rcx)
	case ssa.Xor:
		a.xorRegReg(rax, rcx)
	case ssa.Lshift:
		a.shlRegCL(rax) // shift count already in rcx; shlRegCL reads CL
	case ssa.Rshift:
		a.sarRegCL(rax)
	default:
		return fmt.Errorf("unhandled binop %s", in.BinOp)
	}
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	return nil
}

func emitBinaryFloat(a *asm, in *LInstr) error {
	a.loadMem(rax, rbp, scratchDisp(in.Args[0]))
	a.movqXmmGpr(0, rax)
	a.loadMem(rax, rbp, scratchDisp(in.Args[1]))
	a.movqXmmGpr(1, rax)
	switch in.BinOp {
	case ssa.Add:
		a.addsd(0, 1)
	case ssa.Sub:
		a.subsd(0, 1)
	case ssa.Mul:
		a.mulsd(0, 1)
	case ssa.Div:
		a.divsd(0, 1)
	default:
		return fmt.Errorf("unhandled float binop %s", in.BinOp)
	}
	a.movqGprXmm(rax, 0)
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	return nil
}

func emitUnary(a *asm, in *LInstr) error {
	a.loadMem(rax, rbp, scratchDisp(in.Args[0]))
	switch in.UnOp {
	case ssa.Incr:
		a.movRegImm64(rcx, 1)
		a.addRegReg(rax, rcx)
	case ssa.Decr:
		a.movRegImm64(rcx, 1)
		a.subRegReg(rax, rcx)
	case ssa.Dbl:
		a.movRegImm64(rcx, 1)
		a.shlRegCL(rax)
	case ssa.Invert:
		a.notReg(rax)
	default:
		return fmt.Errorf("unhandled unop %s", in.UnOp)
	}
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	return nil
}

func emitCompare(a *asm, in *LInstr) error {
	if in.Type == types.Float {
		return emitCompareFloat(a, in)
	}
	a.loadMem(rax, rbp, scratchDisp(in.Args[0]))
	if len(in.Args) > 1 {
		a.loadMem(rcx, rbp, scratchDisp(in.Args[1]))
	} else {
		a.movRegImm64(rcx, 0)
	}
	a.cmpRegReg(rax, rcx)
	cc, err := ccFor(in.CmpOp)
	if err != nil {
		return err
	}
	a.setccAndExtend(rax, cc)
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	return nil
}

func emitCompareFloat(a *asm, in *LInstr) error {
	a.loadMem(rax, rbp, scratchDisp(in.Args[0]))
	a.movqXmmGpr(0, rax)
	if len(in.Args) > 1 {
		a.loadMem(rax, rbp, scratchDisp(in.Args[1]))
	} else {
		a.movRegImm64(rax, 0)
	}
	a.movqXmmGpr(1, rax)
	a.comisd(0, 1)
	cc, err := ccFor(in.CmpOp)
	if err != nil {
		return err
	}
	a.setccAndExtend(rax, cc)
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	return nil
}

func ccFor(op ssa.CmpOp) (byte, error) {
	switch op {
	case ssa.CmpLT, ssa.CmpLTZ:
		return ccL, nil
	case ssa.CmpGT, ssa.CmpGTZ:
		return ccG, nil
	case ssa.CmpEQ, ssa.CmpEQZ:
		return ccE, nil
	case ssa.CmpNE:
		return ccNE, nil
	case ssa.CmpLE:
		return ccLE, nil
	case ssa.CmpGE:
		return ccGE, nil
	default:
		return 0, fmt.Errorf("unhandled cmpop %s", op)
	}
}

// emitSelect is a ternary (cond ? a : b). Neither the SSA builder nor any
// optimize pass creates OpSelect; this lowering covers SSA that carries
// one.
func emitSelect(a *asm, in *LInstr) error {
	a.loadMem(rax, rbp, scratchDisp(in.Args[0]))
	a.testRegReg(rax)
	elseAt := a.jccRel32(ccE)
	a.loadMem(rax, rbp, scratchDisp(in.Args[1]))
	doneAt := a.jmpRel32()
	a.patchRel32(elseAt, a.len())
	a.loadMem(rax, rbp, scratchDisp(in.Args[2]))
	a.patchRel32(doneAt, a.len())
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	return nil
}

// emitCall is spec §4.6's Call lowering: args are staged at [rbx+0..] so
// that, once offset by nArgs cells, they land at the callee's own
// incoming stack pointer's negative offsets (`rdi = rbx + 8*nArgs`, read
// back by the callee's prologue as `[rbx_callee - 8*(n-i)]`). The callee
// is invoked indirectly through its function-table slot (so that a
// forward/self/mutual reference compiled before the callee's own address
// exists still resolves correctly once finalize_all fills the table in).
// Results are written by the callee at `[rbx_callee + 8*i]` (spec §4.6:
// "results are written at offsets 0, +8, … " relative to the callee's
// own incoming stack_pointer), which is `[rbx + 8*(nArgs+i)]` in the
// caller's own frame -- the same staging region, offset past the
// now-dead argument cells.
func emitCall(a *asm, in *LInstr, mod *Module, fn *LFunction) error {
	for i, argID := range argsOf(in) {
		a.loadMem(rax, rbp, scratchDisp(argID))
		a.storeMem(rbx, int32(8*i), rax)
	}
	a.movRegReg(rdi, rbx)
	nArgs := len(argsOf(in))
	if nArgs > 0 {
		a.movRegImm32(rcx, int32(8*nArgs))
		a.addRegReg(rdi, rcx)
	}
	a.movRegImm64(rax, int64(mod.tableSlotAddr(in.Callee)))
	a.loadMem(rax, rax, 0)
	a.callReg(rax)
	for i, dst := range in.Dsts {
		a.loadMem(rax, rbx, int32(8*(nArgs+i)))
		a.storeMem(rbp, scratchDisp(dst), rax)
	}
	return nil
}

// argsOf is a placeholder seam: OpCall's Args field already carries the
// exact argument registers in effect order, so emitCall reads them
// directly off in.Args.
func argsOf(in *LInstr) []int { return in.Args }

// emitFFICall calls through the runtime FFI registry (spec §6): up to four
// integer/pointer arguments load straight into the first four SysV
// argument registers (rdi, rsi, rdx, rcx; the encoder has no r8/r9), the
// callee address is an immediate (resolved once at
// registry-population time, not per call site), and a second result (the
// file-access words' ior) comes back through the registry's shared aux
// cell rather than a second return register, since Go callback trampolines
// only carry one.
func emitFFICall(a *asm, in *LInstr, mod *Module) error {
	argRegs := []reg{rdi, rsi, rdx, rcx}
	if len(in.Args) > len(argRegs) {
		return fmt.Errorf("FFI call %q takes %d arguments, only %d supported", in.CalleeName, len(in.Args), len(argRegs))
	}
	for i, argID := range in.Args {
		a.loadMem(argRegs[i], rbp, scratchDisp(argID))
	}
	a.movRegImm64(rax, int64(mod.ffi.addr(in.CalleeName)))
	a.callReg(rax)
	if len(in.Dsts) > 0 {
		a.storeMem(rbp, scratchDisp(in.Dsts[0]), rax)
	}
	if len(in.Dsts) > 1 {
		a.movRegImm64(rcx, mod.auxResultAddr())
		a.loadMem(rax, rcx, 0)
		a.storeMem(rbp, scratchDisp(in.Dsts[1]), rax)
	}
	return nil
}

func emitLoad(a *asm, in *LInstr) error {
	a.loadMem(rax, rbp, scratchDisp(in.Args[0]))
	if in.Width == ssa.Byte {
		a.loadByte(rcx, rax, 0)
		a.movRegReg(rax, rcx)
	} else {
		a.loadMem(rax, rax, 0)
	}
	a.storeMem(rbp, scratchDisp(in.Dst), rax)
	return nil
}

// emitStore lowers "!"/"c!": args are (value, addr) per the dictionary's
// declared Effect (value pushed before the address it targets).
func emitStore(a *asm, in *LInstr) error {
	a.loadMem(rax, rbp, scratchDisp(in.Args[0])) // value
	a.loadMem(rcx, rbp, scratchDisp(in.Args[1])) // addr
	if in.Width == ssa.Byte {
		a.storeByte(rcx, 0, rax)
	} else {
		a.storeMem(rcx, 0, rax)
	}
	return nil
}

// emitAddStore lowers "+!": adds the value into the cell at addr in place.
func emitAddStore(a *asm, in *LInstr) error {
	a.loadMem(rax, rbp, scratchDisp(in.Args[0])) // value
	a.loadMem(rcx, rbp, scratchDisp(in.Args[1])) // addr
	a.addMemReg(rcx, 0, rax)
	return nil
}

// emitRStack lowers >r/r>/r@ against the module's shared return-stack
// buffer, addressed through a single fill-pointer cell (mod.rstackTopAddr)
// rather than a dedicated callee-saved register: spec only requires the
// transfers to balance within one function/loop, not that the compiler
// dedicate a hardware register to them across every call, and a memory
// cell survives recursive/mutual calls for free since every compiled
// function reads and writes the same address.
func emitRStack(a *asm, in *LInstr, mod *Module) error {
	cellAddr := mod.rstackTopAddr()
	switch in.RStack {
	case ssa.RPush:
		for _, argID := range in.Args {
			a.loadMem(rax, rbp, scratchDisp(argID))
			a.movRegImm64(rcx, cellAddr)
			a.loadMem(rdx, rcx, 0) // current top pointer
			a.storeMem(rdx, 0, rax)
			a.movRegImm64(rax, 8)
			a.addRegReg(rdx, rax)
			a.storeMem(rcx, 0, rdx)
		}
	case ssa.RPop:
		for i := len(in.Dsts) - 1; i >= 0; i-- {
			a.movRegImm64(rcx, cellAddr)
			a.loadMem(rdx, rcx, 0)
			a.movRegImm64(rax, 8)
			a.subRegReg(rdx, rax)
			a.storeMem(rcx, 0, rdx)
			a.loadMem(rax, rdx, 0)
			a.storeMem(rbp, scratchDisp(in.Dsts[i]), rax)
		}
	case ssa.RPeek:
		for i, dst := range in.Dsts {
			a.movRegImm64(rcx, cellAddr)
			a.loadMem(rdx, rcx, 0)
			a.movRegImm64(rax, int64(8*(i+1)))
			a.subRegReg(rdx, rax)
			a.loadMem(rax, rdx, 0)
			a.storeMem(rbp, scratchDisp(dst), rax)
		}
	default:
		return fmt.Errorf("unhandled r-stack op %d", in.RStack)
	}
	return nil
}

package ssa

import (
	"fmt"
	"strconv"
	"strings"

	"forthjit/ast"
	"forthjit/dictionary"
	"forthjit/stack"
	"forthjit/types"
)

// Builder lowers an analyzed ast.Program into an ssa.Module, one
// Function per definition plus the synthetic entry wrapping top-level
// code. It trusts that semantic.Analyzer has already validated the
// program: Build does not re-check stack balance, only re-derives the
// same shape while emitting real instructions and registers.
type Builder struct {
	dict *dictionary.Dictionary
	mod  *Module

	f     *Function
	cur   *Block
	vals  *stack.Stack[Register]
	rets  []Register // simulated return-stack depth tracker (>r/r>), by register
	loops []loopCtx
}

type loopCtx struct {
	index Register
	limit Register
}

// NewBuilder returns a Builder resolving word references against dict,
// which must already hold every definition's inferred Effect (i.e. the
// Dictionary returned by a successful semantic.Analyzer.Analyze).
func NewBuilder(dict *dictionary.Dictionary) *Builder {
	return &Builder{dict: dict, mod: NewModule()}
}

// Build lowers every definition in prog, then the synthetic entry
// function wrapping prog.TopLevel under EntryFunctionName with effect
// topEffect (as inferred by semantic.Analyzer for the top-level code).
func (b *Builder) Build(prog *ast.Program, topEffect types.Effect) (*Module, error) {
	for _, def := range prog.Definitions {
		entry, ok := b.dict.Lookup(def.Name)
		if !ok {
			return nil, fmt.Errorf("ssa: %q not in dictionary (analyze before building)", def.Name)
		}
		fn, err := b.buildFunction(def.Name, entry.Effect, def.Body)
		if err != nil {
			return nil, fmt.Errorf("ssa: building %q: %w", def.Name, err)
		}
		b.mod.add(fn)
	}

	fn, err := b.buildFunction(EntryFunctionName, topEffect, prog.TopLevel)
	if err != nil {
		return nil, fmt.Errorf("ssa: building entry: %w", err)
	}
	b.mod.add(fn)

	return b.mod, nil
}

func (b *Builder) buildFunction(name string, effect types.Effect, body []ast.Node) (fn *Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	b.f = &Function{Name: name, Effect: effect}
	entry := b.f.NewBlock()
	b.cur = entry
	b.vals = stack.New[Register]()
	b.rets = nil
	b.loops = nil

	for _, t := range effect.Inputs {
		p := b.f.NewRegister(t)
		entry.Params = append(entry.Params, p)
		b.vals.Push(p)
	}

	b.buildSeq(body)

	if n := len(effect.Outputs); n > 0 {
		vals := b.popN(n)
		b.cur.Term = Return{Values: vals}
	} else {
		zero := b.emitLoadInt(0)
		b.cur.Term = Return{Values: []Register{zero}}
	}

	return b.f, nil
}

// popN pops n values off the top of the value stack and returns them
// bottom-to-top (the order Effect.Inputs/Outputs and block parameter
// lists are always expressed in).
func (b *Builder) popN(n int) []Register {
	out := make([]Register, n)
	for i := n - 1; i >= 0; i-- {
		v, err := b.vals.Pop()
		if err != nil {
			panic("ssa: value stack underflow building " + b.f.Name)
		}
		out[i] = v
	}
	return out
}

func (b *Builder) snapshot() []Register {
	items := b.vals.Items()
	out := make([]Register, len(items))
	copy(out, items)
	return out
}

func (b *Builder) seedFrom(params []Register) {
	b.vals = stack.New[Register]()
	for _, p := range params {
		b.vals.Push(p)
	}
}

func (b *Builder) emit(in *Instr) { b.cur.Instrs = append(b.cur.Instrs, in) }

func (b *Builder) emitLoadInt(v int64) Register {
	r := b.f.NewRegister(types.Int)
	b.emit(&Instr{Op: OpLoadInt, Dst: r, IntConst: v, Pure: true})
	return r
}

func (b *Builder) buildSeq(body []ast.Node) {
	for _, n := range body {
		b.buildNode(n)
	}
}

func (b *Builder) buildNode(n ast.Node) {
	switch node := n.(type) {
	case *ast.Literal:
		b.buildLiteral(node)
	case *ast.WordRef:
		b.buildWordRef(node)
	case *ast.If:
		b.buildIf(node)
	case *ast.BeginUntil:
		b.buildBeginUntil(node)
	case *ast.BeginWhileRepeat:
		b.buildBeginWhileRepeat(node)
	case *ast.DoLoop:
		b.buildDoLoop(node)
	default:
		panic(fmt.Sprintf("ssa: unhandled node %T", n))
	}
}

func (b *Builder) buildLiteral(n *ast.Literal) {
	switch n.Kind {
	case ast.IntLiteral:
		v, err := strconv.ParseInt(strings.TrimSpace(n.Text), 0, 64)
		if err != nil {
			panic(fmt.Sprintf("ssa: invalid int literal %q: %v", n.Text, err))
		}
		b.vals.Push(b.emitLoadInt(v))
	case ast.FloatLiteral:
		v, err := strconv.ParseFloat(strings.TrimSpace(n.Text), 64)
		if err != nil {
			panic(fmt.Sprintf("ssa: invalid float literal %q: %v", n.Text, err))
		}
		r := b.f.NewRegister(types.Float)
		b.emit(&Instr{Op: OpLoadFloat, Dst: r, FltConst: v, Pure: true})
		b.vals.Push(r)
	case ast.StringLiteral:
		addr := b.f.NewRegister(types.Addr)
		length := b.f.NewRegister(types.Int)
		b.emit(&Instr{Op: OpLoadString, Dst: addr, Dst2: length, StrConst: n.Text, Pure: false})
		b.vals.Push(addr)
		b.vals.Push(length)
	}
}

func (b *Builder) buildWordRef(n *ast.WordRef) {
	if strings.EqualFold(n.Name, "i") {
		if len(b.loops) == 0 {
			panic("ssa: \"i\" used outside a do-loop")
		}
		b.vals.Push(b.loops[len(b.loops)-1].index)
		return
	}

	entry, ok := b.dict.Lookup(n.Name)
	if !ok {
		panic(fmt.Sprintf("ssa: undefined word %q (analyze before building)", n.Name))
	}

	switch {
	case entry.Shuffle != dictionary.NoShuffle:
		b.applyShuffle(entry.Shuffle)
	case entry.Arithmetic:
		b.applyArithmetic(entry)
	case entry.Origin == dictionary.User:
		args := b.popN(len(entry.Effect.Inputs))
		dsts := make([]Register, len(entry.Effect.Outputs))
		for i, t := range entry.Effect.Outputs {
			dsts[i] = b.f.NewRegister(t)
		}
		b.emit(&Instr{Op: OpCall, Callee: entry.Name, Args: args, Dsts: dsts})
		for _, d := range dsts {
			b.vals.Push(d)
		}
	case isReturnStackWord(entry.Name):
		b.applyReturnStack(entry)
	case isMemoryWord(entry.Name):
		b.applyMemory(entry)
	default:
		// I/O, file-access, and concurrency primitives: proxies to the
		// runtime's FFI registry, per spec's "I/O proxies"/"concurrency
		// proxies" framing.
		args := b.popN(len(entry.Effect.Inputs))
		dsts := make([]Register, len(entry.Effect.Outputs))
		for i, t := range entry.Effect.Outputs {
			dsts[i] = b.f.NewRegister(t)
		}
		b.emit(&Instr{Op: OpFFICall, Callee: entry.Name, Args: args, Dsts: dsts})
		for _, d := range dsts {
			b.vals.Push(d)
		}
	}
}

func isReturnStackWord(name string) bool {
	switch name {
	case ">r", "r>", "r@", "2>r", "2r>", "2r@":
		return true
	}
	return false
}

func isMemoryWord(name string) bool {
	switch name {
	case "@", "!", "c@", "c!", "+!":
		return true
	}
	return false
}

func (b *Builder) applyReturnStack(entry *dictionary.Entry) {
	wide := strings.HasPrefix(entry.Name, "2")
	n := 1
	if wide {
		n = 2
	}
	switch {
	case strings.HasPrefix(entry.Name, ">"), entry.Name == "2>r":
		args := b.popN(n)
		b.emit(&Instr{Op: OpRStack, RStack: RPush, Wide: wide, Args: args})
		b.rets = append(b.rets, args...)
	case entry.Name == "r@", entry.Name == "2r@":
		if len(b.rets) < n {
			panic("ssa: return-stack underflow building " + b.f.Name)
		}
		top := b.rets[len(b.rets)-n:]
		dsts := make([]Register, n)
		for i, src := range top {
			r := b.f.NewRegister(src.Type)
			dsts[i] = r
		}
		b.emit(&Instr{Op: OpRStack, RStack: RPeek, Wide: wide, Dsts: dsts})
		for _, d := range dsts {
			b.vals.Push(d)
		}
	default: // r>, 2r>
		if len(b.rets) < n {
			panic("ssa: return-stack underflow building " + b.f.Name)
		}
		top := b.rets[len(b.rets)-n:]
		b.rets = b.rets[:len(b.rets)-n]
		dsts := make([]Register, n)
		for i, src := range top {
			dsts[i] = b.f.NewRegister(src.Type)
		}
		b.emit(&Instr{Op: OpRStack, RStack: RPop, Wide: wide, Dsts: dsts})
		for _, d := range dsts {
			b.vals.Push(d)
		}
	}
}

func (b *Builder) applyMemory(entry *dictionary.Entry) {
	width := Cell
	if strings.HasPrefix(entry.Name, "c") {
		width = Byte
	}
	switch entry.Name {
	case "@", "c@":
		addr := b.popOne()
		dst := b.f.NewRegister(types.Int)
		b.emit(&Instr{Op: OpLoad, Dst: dst, Args: []Register{addr}, Width: width})
		b.vals.Push(dst)
	case "!", "c!":
		addr := b.popOne()
		val := b.popOne()
		b.emit(&Instr{Op: OpStore, Args: []Register{val, addr}, Width: width})
	case "+!":
		addr := b.popOne()
		val := b.popOne()
		b.emit(&Instr{Op: OpAddStore, Args: []Register{val, addr}, Width: width})
	}
}

func (b *Builder) popOne() Register {
	v, err := b.vals.Pop()
	if err != nil {
		panic("ssa: value stack underflow building " + b.f.Name)
	}
	return v
}

// applyShuffle rearranges registers on the value stack directly: these
// primitives never compute anything, so no instruction is emitted (spec
// §9's "operate directly on the abstract stack").
func (b *Builder) applyShuffle(op dictionary.ShuffleOp) {
	switch op {
	case dictionary.OpDup:
		x := b.popOne()
		b.vals.Push(x)
		b.vals.Push(x)
	case dictionary.OpDrop:
		b.popOne()
	case dictionary.OpSwap:
		x2, x1 := b.popOne(), b.popOne()
		b.vals.Push(x2)
		b.vals.Push(x1)
	case dictionary.OpOver:
		x2, x1 := b.popOne(), b.popOne()
		b.vals.Push(x1)
		b.vals.Push(x2)
		b.vals.Push(x1)
	case dictionary.OpRot:
		x3, x2, x1 := b.popOne(), b.popOne(), b.popOne()
		b.vals.Push(x2)
		b.vals.Push(x3)
		b.vals.Push(x1)
	case dictionary.OpNip:
		x2, x1 := b.popOne(), b.popOne()
		_ = x1
		b.vals.Push(x2)
	case dictionary.OpTuck:
		x2, x1 := b.popOne(), b.popOne()
		b.vals.Push(x2)
		b.vals.Push(x1)
		b.vals.Push(x2)
	case dictionary.Op2Dup:
		x2, x1 := b.popOne(), b.popOne()
		b.vals.Push(x1)
		b.vals.Push(x2)
		b.vals.Push(x1)
		b.vals.Push(x2)
	case dictionary.Op2Drop:
		b.popOne()
		b.popOne()
	case dictionary.Op2Swap:
		x4, x3, x2, x1 := b.popOne(), b.popOne(), b.popOne(), b.popOne()
		b.vals.Push(x3)
		b.vals.Push(x4)
		b.vals.Push(x1)
		b.vals.Push(x2)
	}
}

func isComparisonName(name string) bool {
	switch name {
	case "<", ">", "=", "<>", "<=", ">=", "0=", "0<", "0>":
		return true
	}
	return false
}

func (b *Builder) applyArithmetic(entry *dictionary.Entry) {
	cmp, isCmp := cmpOpFor(entry.Name)
	if len(entry.Effect.Inputs) == 2 {
		y, x := b.popOne(), b.popOne()
		if isCmp {
			r := b.f.NewRegister(types.Bool)
			b.emit(&Instr{Op: OpCompare, Dst: r, CmpOp: cmp, Args: []Register{x, y}, Pure: true})
			b.vals.Push(r)
			return
		}
		resType, ok := types.Promote(concreteNumeric(x.Type), concreteNumeric(y.Type))
		if !ok {
			resType = types.Int
		}
		r := b.f.NewRegister(resType)
		b.emit(&Instr{Op: OpBinary, Dst: r, BinOp: binOpFor(entry.Name), Args: []Register{x, y}, Pure: true})
		b.vals.Push(r)
		return
	}

	x := b.popOne()
	if isCmp {
		r := b.f.NewRegister(types.Bool)
		b.emit(&Instr{Op: OpCompare, Dst: r, CmpOp: cmp, Args: []Register{x}, Pure: true})
		b.vals.Push(r)
		return
	}
	r := b.f.NewRegister(concreteNumeric(x.Type))
	b.emit(&Instr{Op: OpUnary, Dst: r, UnOp: unOpFor(entry.Name), Args: []Register{x}, Pure: true})
	b.vals.Push(r)
}

func concreteNumeric(t types.Type) types.Type {
	if t == types.Bool {
		return types.Int
	}
	return t
}

func binOpFor(name string) BinOp {
	switch name {
	case "+":
		return Add
	case "-":
		return Sub
	case "*":
		return Mul
	case "/":
		return Div
	case "mod":
		return Mod
	}
	panic("ssa: not a binary arithmetic word: " + name)
}

func unOpFor(name string) UnOp {
	switch name {
	case "1+":
		return Incr
	case "1-":
		return Decr
	case "2*":
		return Dbl
	}
	panic("ssa: not a unary arithmetic word: " + name)
}

func cmpOpFor(name string) (CmpOp, bool) {
	switch name {
	case "<":
		return CmpLT, true
	case ">":
		return CmpGT, true
	case "=":
		return CmpEQ, true
	case "<>":
		return CmpNE, true
	case "<=":
		return CmpLE, true
	case ">=":
		return CmpGE, true
	case "0=":
		return CmpEQZ, true
	case "0<":
		return CmpLTZ, true
	case "0>":
		return CmpGTZ, true
	}
	return 0, false
}

// buildIf lowers spec §4.4's if/then and if/else/then shapes. Both arms
// branch into a merge block whose parameters carry the post-branch
// value stack (block-parameter phi, GLOSSARY).
func (b *Builder) buildIf(n *ast.If) {
	cond := b.popOne()
	preArgs := b.snapshot()

	thenBlock := b.f.NewBlock()

	if n.Else == nil {
		mergeBlock := b.f.NewBlock()
		b.cur.Term = BranchIf{Cond: cond, Then: thenBlock.ID, ThenArgs: preArgs, Else: mergeBlock.ID, ElseArgs: preArgs}
		thenBlock.Preds = append(thenBlock.Preds, b.cur.ID)
		mergeBlock.Preds = append(mergeBlock.Preds, b.cur.ID)

		b.cur = thenBlock
		b.buildSeq(n.Then)
		thenArgs := b.snapshot()
		b.cur.Term = Branch{Target: mergeBlock.ID, Args: thenArgs}
		mergeBlock.Preds = append(mergeBlock.Preds, b.cur.ID)

		mergeBlock.Params = make([]Register, len(preArgs))
		for i, a := range preArgs {
			mergeBlock.Params[i] = b.f.NewRegister(a.Type)
		}
		b.cur = mergeBlock
		b.seedFrom(mergeBlock.Params)
		return
	}

	elseBlock := b.f.NewBlock()
	b.cur.Term = BranchIf{Cond: cond, Then: thenBlock.ID, ThenArgs: preArgs, Else: elseBlock.ID, ElseArgs: preArgs}
	thenBlock.Preds = append(thenBlock.Preds, b.cur.ID)
	elseBlock.Preds = append(elseBlock.Preds, b.cur.ID)
	originID := b.cur.ID

	b.cur = thenBlock
	b.buildSeq(n.Then)
	thenTail := b.cur
	thenArgs := b.snapshot()

	b.cur = elseBlock
	b.seedFrom(preArgs)
	b.buildSeq(n.Else)
	elseTail := b.cur
	elseArgs := b.snapshot()

	mergeBlock := b.f.NewBlock()
	mergeBlock.Params = make([]Register, len(thenArgs))
	for i, a := range thenArgs {
		mergeBlock.Params[i] = b.f.NewRegister(a.Type)
	}
	thenTail.Term = Branch{Target: mergeBlock.ID, Args: thenArgs}
	elseTail.Term = Branch{Target: mergeBlock.ID, Args: elseArgs}
	mergeBlock.Preds = append(mergeBlock.Preds, thenTail.ID, elseTail.ID)
	_ = originID

	b.cur = mergeBlock
	b.seedFrom(mergeBlock.Params)
}

// buildBeginUntil lowers `begin ... until`: the header is a merge point
// entered both from before the loop and from its own back-edge.
func (b *Builder) buildBeginUntil(n *ast.BeginUntil) {
	preArgs := b.snapshot()
	header := b.f.NewBlock()
	header.Params = make([]Register, len(preArgs))
	for i, a := range preArgs {
		header.Params[i] = b.f.NewRegister(a.Type)
	}
	b.cur.Term = Branch{Target: header.ID, Args: preArgs}
	header.Preds = append(header.Preds, b.cur.ID)

	b.cur = header
	b.seedFrom(header.Params)
	b.buildSeq(n.Body)

	cond := b.popOne()
	tailArgs := b.snapshot()
	exit := b.f.NewBlock()
	exit.Params = make([]Register, len(tailArgs))
	for i, a := range tailArgs {
		exit.Params[i] = b.f.NewRegister(a.Type)
	}
	tail := b.cur
	tail.Term = BranchIf{Cond: cond, Then: exit.ID, ThenArgs: tailArgs, Else: header.ID, ElseArgs: tailArgs}
	header.Preds = append(header.Preds, tail.ID)
	exit.Preds = append(exit.Preds, tail.ID)

	b.cur = exit
	b.seedFrom(exit.Params)
}

// buildBeginWhileRepeat lowers `begin ... while ... repeat`: the header
// evaluates Cond every pass; Body runs only while it holds.
func (b *Builder) buildBeginWhileRepeat(n *ast.BeginWhileRepeat) {
	preArgs := b.snapshot()
	header := b.f.NewBlock()
	header.Params = make([]Register, len(preArgs))
	for i, a := range preArgs {
		header.Params[i] = b.f.NewRegister(a.Type)
	}
	b.cur.Term = Branch{Target: header.ID, Args: preArgs}
	header.Preds = append(header.Preds, b.cur.ID)

	b.cur = header
	b.seedFrom(header.Params)
	b.buildSeq(n.Cond)

	cond := b.popOne()
	afterCondArgs := b.snapshot()
	headerTail := b.cur

	body := b.f.NewBlock()
	exit := b.f.NewBlock()
	exit.Params = make([]Register, len(afterCondArgs))
	for i, a := range afterCondArgs {
		exit.Params[i] = b.f.NewRegister(a.Type)
	}
	headerTail.Term = BranchIf{Cond: cond, Then: body.ID, ThenArgs: afterCondArgs, Else: exit.ID, ElseArgs: afterCondArgs}
	body.Preds = append(body.Preds, headerTail.ID)
	exit.Preds = append(exit.Preds, headerTail.ID)

	b.cur = body
	b.seedFrom(afterCondArgs)
	b.buildSeq(n.Body)
	bodyTailArgs := b.snapshot()
	b.cur.Term = Branch{Target: header.ID, Args: bodyTailArgs}
	header.Preds = append(header.Preds, b.cur.ID)

	b.cur = exit
	b.seedFrom(exit.Params)
}

// buildDoLoop lowers counted `do ... loop`, per spec §4.4's
// header-reads-index-and-limit, body-increments-and-compares-and-jumps-
// back pattern.
func (b *Builder) buildDoLoop(n *ast.DoLoop) {
	start := b.popOne()
	limit := b.popOne()
	preArgs := b.snapshot()

	header := b.f.NewBlock()
	header.Params = make([]Register, 0, 1+len(preArgs))
	idxParam := b.f.NewRegister(types.Int)
	header.Params = append(header.Params, idxParam)
	for _, a := range preArgs {
		header.Params = append(header.Params, b.f.NewRegister(a.Type))
	}
	headerArgs := append([]Register{start}, preArgs...)
	b.cur.Term = Branch{Target: header.ID, Args: headerArgs}
	header.Preds = append(header.Preds, b.cur.ID)

	b.loops = append(b.loops, loopCtx{index: idxParam, limit: limit})

	b.cur = header
	b.seedFrom(header.Params[1:])
	b.buildSeq(n.Body)
	bodyArgs := b.snapshot()

	incr := b.f.NewRegister(types.Int)
	b.emit(&Instr{Op: OpUnary, Dst: incr, UnOp: Incr, Args: []Register{idxParam}, Pure: true})
	cmp := b.f.NewRegister(types.Bool)
	b.emit(&Instr{Op: OpCompare, Dst: cmp, CmpOp: CmpLT, Args: []Register{incr, limit}, Pure: true})

	exit := b.f.NewBlock()
	exit.Params = make([]Register, len(bodyArgs))
	for i, a := range bodyArgs {
		exit.Params[i] = b.f.NewRegister(a.Type)
	}
	tail := b.cur
	tail.Term = BranchIf{
		Cond:     cmp,
		Then:     header.ID,
		ThenArgs: append([]Register{incr}, bodyArgs...),
		Else:     exit.ID,
		ElseArgs: bodyArgs,
	}
	header.Preds = append(header.Preds, tail.ID)
	exit.Preds = append(exit.Preds, tail.ID)

	b.loops = b.loops[:len(b.loops)-1]

	b.cur = exit
	b.seedFrom(exit.Params)
}

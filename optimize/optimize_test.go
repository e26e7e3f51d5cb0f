package optimize

import (
	"testing"

	"forthjit/lexer"
	"forthjit/parser"
	"forthjit/semantic"
	"forthjit/ssa"
)

func build(t *testing.T, src string) *ssa.Module {
	t.Helper()
	p, err := parser.New(lexer.New(src))
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	prog, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := semantic.New(semantic.Options{}).Analyze(prog)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	mod, err := ssa.NewBuilder(res.Dictionary).Build(prog, res.TopLevel)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return mod
}

func countOp(fn *ssa.Function, op ssa.Op) int {
	n := 0
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == op {
				n++
			}
		}
	}
	return n
}

func TestFoldConstantsCollapsesLiteralArithmetic(t *testing.T) {
	mod := build(t, ": answer 20 22 + ;")
	fn := mod.Functions["answer"]
	foldConstants(fn)

	found := false
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == ssa.OpLoadInt && in.IntConst == 42 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected constant folding to produce a LoadInt 42")
	}
	if countOp(fn, ssa.OpBinary) != 0 {
		t.Fatal("expected the Add instruction to be rewritten away")
	}
}

func TestDeadCodeEliminationDropsUnusedPureInstruction(t *testing.T) {
	mod := build(t, ": unused 1 2 + drop 5 ;")
	fn := mod.Functions["unused"]
	before := countOp(fn, ssa.OpBinary)
	if before == 0 {
		t.Fatal("expected at least one Add instruction before DCE")
	}
	eliminateDeadCode(fn)
	if countOp(fn, ssa.OpBinary) != 0 {
		t.Fatal("expected the dead Add instruction to be eliminated")
	}
}

func TestPeepholeFusesDupAdd(t *testing.T) {
	mod := build(t, ": double-via-dup dup + ;")
	fn := mod.Functions["double-via-dup"]
	fusePeepholes(fn)
	if countOp(fn, ssa.OpDupAdd) != 1 {
		t.Fatal("expected dup + to fuse into OpDupAdd")
	}
}

func TestPeepholeFusesSquare(t *testing.T) {
	mod := build(t, ": square dup * ;")
	fn := mod.Functions["square"]
	fusePeepholes(fn)
	if countOp(fn, ssa.OpSquare) != 1 {
		t.Fatal("expected dup * to fuse into OpSquare")
	}
}

func TestPeepholeFusesShl1(t *testing.T) {
	mod := build(t, ": double 2 * ;")
	fn := mod.Functions["double"]
	idx := buildDefIndex(fn)
	_ = idx
	fusePeepholes(fn)
	if countOp(fn, ssa.OpShl1) != 1 {
		t.Fatal("expected \"2 *\" to fuse into OpShl1")
	}
}

func TestInlineSplicesSmallCallee(t *testing.T) {
	mod := build(t, ": inc 1 + ; : twice inc inc ;")
	Run(mod, Options{})
	fn := mod.Functions["twice"]
	if countOp(fn, ssa.OpCall) != 0 {
		t.Fatal("expected both calls to \"inc\" to be inlined away")
	}
}

func TestRunIsIdempotentAtFixpoint(t *testing.T) {
	mod := build(t, ": answer 20 22 + ;")
	Run(mod, Options{})
	snapshot := countOp(mod.Functions["answer"], ssa.OpLoadInt)
	Run(mod, Options{})
	if countOp(mod.Functions["answer"], ssa.OpLoadInt) != snapshot {
		t.Fatal("expected a second Run to leave an already-optimized module unchanged")
	}
}

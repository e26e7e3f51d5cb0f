package ssa

import (
	"testing"

	"forthjit/lexer"
	"forthjit/parser"
	"forthjit/semantic"
)

func buildModule(t *testing.T, src string) *Module {
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
	mod, err := NewBuilder(res.Dictionary).Build(prog, res.TopLevel)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return mod
}

func TestBuildsStraightLineFunction(t *testing.T) {
	mod := buildModule(t, ": double 2 * ;")
	fn, ok := mod.Functions["double"]
	if !ok {
		t.Fatal("missing function \"double\"")
	}
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(fn.Blocks))
	}
	if len(fn.Entry().Params) != 1 {
		t.Fatalf("expected 1 entry param, got %d", len(fn.Entry().Params))
	}
	if _, ok := fn.Entry().Term.(Return); !ok {
		t.Fatalf("expected Return terminator, got %T", fn.Entry().Term)
	}
}

func TestBuildsIfThenMergeBlock(t *testing.T) {
	mod := buildModule(t, ": maybe-inc dup 0> if 1+ then ;")
	fn := mod.Functions["maybe-inc"]
	if len(fn.Blocks) != 3 {
		t.Fatalf("expected 3 blocks (entry, then, merge), got %d", len(fn.Blocks))
	}
	if _, ok := fn.Entry().Term.(BranchIf); !ok {
		t.Fatalf("expected BranchIf terminator on entry, got %T", fn.Entry().Term)
	}
	merge := fn.Blocks[2]
	if len(merge.Params) != 1 {
		t.Fatalf("expected merge block to carry 1 param, got %d", len(merge.Params))
	}
	if len(merge.Preds) != 2 {
		t.Fatalf("expected merge block to have 2 preds, got %d", len(merge.Preds))
	}
}

func TestBuildsIfElseMergeBlock(t *testing.T) {
	mod := buildModule(t, ": pick 0= if 1 else 2 then ;")
	fn := mod.Functions["pick"]
	if len(fn.Blocks) != 4 {
		t.Fatalf("expected 4 blocks (entry, then, else, merge), got %d", len(fn.Blocks))
	}
}

func TestBuildsBeginUntilLoop(t *testing.T) {
	mod := buildModule(t, ": countdown begin 1- dup 0= until ;")
	fn := mod.Functions["countdown"]
	if len(fn.Blocks) != 3 {
		t.Fatalf("expected 3 blocks (entry, header, exit), got %d", len(fn.Blocks))
	}
	header := fn.Blocks[1]
	if len(header.Preds) != 2 {
		t.Fatalf("expected loop header to have 2 preds (entry + back-edge), got %d", len(header.Preds))
	}
}

func TestBuildsDoLoopWithIndex(t *testing.T) {
	mod := buildModule(t, ": sum-to 0 swap 0 do i + loop ;")
	fn := mod.Functions["sum-to"]
	header := fn.Blocks[1]
	if len(header.Params) == 0 {
		t.Fatal("expected do-loop header to carry at least the index as a param")
	}
	if header.Params[0].Type.String() != "int" {
		t.Fatalf("expected index param to be int, got %s", header.Params[0].Type)
	}
}

func TestBuildsRecursiveCall(t *testing.T) {
	mod := buildModule(t, ": fact dup 1 > if dup 1 - fact * else drop 1 then ;")
	fn := mod.Functions["fact"]
	found := false
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == OpCall && in.Callee == "fact" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected a recursive OpCall to \"fact\"")
	}
}

func TestEntryFunctionWrapsTopLevel(t *testing.T) {
	mod := buildModule(t, "2 3 + .")
	if _, ok := mod.Functions[EntryFunctionName]; !ok {
		t.Fatalf("expected synthetic %q function", EntryFunctionName)
	}
}

func TestZeroOutputReturnsZeroConstant(t *testing.T) {
	mod := buildModule(t, ": noop drop ;")
	fn := mod.Functions["noop"]
	last := fn.Blocks[len(fn.Blocks)-1]
	ret, ok := last.Term.(Return)
	if !ok {
		t.Fatalf("expected Return terminator, got %T", last.Term)
	}
	if len(ret.Values) != 1 {
		t.Fatalf("expected exactly 1 zero-constant return value, got %d", len(ret.Values))
	}
}

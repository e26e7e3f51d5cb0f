// Package optimize runs the fixed, ordered optimization pipeline spec
// §4.5 describes over an ssa.Module: constant folding, dead-code
// elimination, peephole/superinstruction fusion, bounded inlining, and
// (in Aggressive mode) a repeated pass and a type-specialization hook.
// Every pass preserves SSA form and the block-parameter invariant, and
// is idempotent once the module reaches a fixed point.
package optimize

import "forthjit/ssa"

// Options controls how hard the pipeline works.
type Options struct {
	// Aggressive re-runs the fold/DCE/peephole/inline cycle up to
	// MaxRounds times (instead of once) and enables type specialization.
	Aggressive bool

	// MaxRounds bounds the aggressive-mode repeat loop. Zero selects the
	// default of 4.
	MaxRounds int
}

func (o Options) maxRounds() int {
	if o.MaxRounds > 0 {
		return o.MaxRounds
	}
	return 4
}

// Run applies the pipeline to every function in mod and returns mod
// (mutated in place, per the teacher's preference for small, direct
// transformations over copy-on-write IR).
func Run(mod *ssa.Module, opts Options) *ssa.Module {
	rounds := 1
	if opts.Aggressive {
		rounds = opts.maxRounds()
	}

	for i := 0; i < rounds; i++ {
		changed := false
		for _, name := range mod.Order {
			fn := mod.Functions[name]
			changed = foldConstants(fn) || changed
			changed = eliminateDeadCode(fn) || changed
			changed = fusePeepholes(fn) || changed
		}
		changed = inlineSmallCalls(mod) || changed
		if opts.Aggressive {
			for _, name := range mod.Order {
				specializeTypes(mod.Functions[name])
			}
		}
		if !changed {
			break
		}
	}
	return mod
}

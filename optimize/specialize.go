package optimize

import "forthjit/ssa"

// specializeTypes is spec §4.5's optional final pass, run only in
// Aggressive mode. Full call-site monomorphization of polymorphic
// shuffle words is out of scope (see DESIGN.md -- semantic's
// shuffle-underflow default already commits every value to a concrete
// type at inference time), so there is nothing left to specialize by
// the time the SSA builder runs: every register already carries a
// concrete, non-Unknown type. This pass exists as the pipeline's named
// hook for that future work and is a verified no-op today; it is kept
// distinct from foldConstants/fusePeepholes so a future specialization
// strategy has a dedicated place to live without reshuffling the
// pipeline's ordering contract.
func specializeTypes(fn *ssa.Function) bool {
	_ = fn
	return false
}

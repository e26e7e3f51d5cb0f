package backend

import "fmt"

// Verify checks the invariants spec §8 lists as testable properties,
// re-stated here as the backend's own IR-verification step (spec §4.6:
// "the backend invokes the code generator's verifier"). Lower already
// trusts that the SSA builder produced well-formed IR; Verify re-checks
// the two shapes that a hand lowering pass is most likely to get wrong
// -- block-parameter arity and return-count -- and names them by the
// exact phrasing spec §4.6 calls out ("block-parameter arity mismatch",
// "signature mismatch on return").
func Verify(fn *LFunction) error {
	byID := make(map[int]*LBlock, len(fn.Blocks))
	for _, b := range fn.Blocks {
		byID[b.ID] = b
	}

	checkEdge := func(from, to int, args []int) error {
		target, ok := byID[to]
		if !ok {
			return &Error{Kind: IRVerificationFailed, Function: fn.Name,
				Details: fmt.Sprintf("block %d branches to undefined block %d", from, to)}
		}
		if len(args) != len(target.Params) {
			return &Error{Kind: IRVerificationFailed, Function: fn.Name,
				Details: fmt.Sprintf("block-parameter arity mismatch: block %d -> block %d passes %d argument(s), block %d declares %d parameter(s)",
					from, to, len(args), to, len(target.Params))}
		}
		return nil
	}

	for _, b := range fn.Blocks {
		switch t := b.Term.(type) {
		case LBranch:
			if err := checkEdge(b.ID, t.Target, t.Args); err != nil {
				return err
			}
		case LBranchIf:
			if err := checkEdge(b.ID, t.Then, t.ThenArgs); err != nil {
				return err
			}
			if err := checkEdge(b.ID, t.Else, t.ElseArgs); err != nil {
				return err
			}
		case LReturn:
			if len(fn.Effect.Outputs) > 0 && len(t.Values) != len(fn.Effect.Outputs) {
				return &Error{Kind: IRVerificationFailed, Function: fn.Name,
					Details: fmt.Sprintf("signature mismatch on return: block %d returns %d value(s), declared effect has %d output(s)",
						b.ID, len(t.Values), len(fn.Effect.Outputs))}
			}
		default:
			return &Error{Kind: IRVerificationFailed, Function: fn.Name,
				Details: fmt.Sprintf("block %d has no terminator", b.ID)}
		}
	}
	return nil
}

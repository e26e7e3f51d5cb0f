package semantic

import (
	"errors"
	"fmt"

	"forthjit/types"
)

// errUnderflow is the sentinel returned by istack pops when the stack is
// empty and materialization is disabled (top-level code).
var errUnderflow = errors.New("stack underflow")

// mismatchError is returned by popExpect when a concrete, non-empty slot
// holds a type incompatible with what the caller needed.
type mismatchError struct {
	want, got types.Type
}

func (e *mismatchError) Error() string {
	return fmt.Sprintf("type mismatch: want %s, got %s", e.want, e.got)
}

func errTypeMismatch(want, got types.Type) error {
	return &mismatchError{want: want, got: got}
}

// istack is the abstract operand stack the analyzer pushes/pops while
// walking a body. Unlike stack.Stack, it optionally materializes a fresh
// type on an empty pop instead of failing: that is exactly how a
// definition's input effect is inferred from its body (GLOSSARY: Stack
// effect inference) -- an underflow inside a definition means "this value
// is supplied by whoever calls me", so the popped type becomes a formal
// input. Top-level code has no caller, so materialization is disabled
// there and an underflow is a real StackUnderflow error.
type istack struct {
	items        []types.Type
	materialized []types.Type // underflow placeholders, in materialization order (first = shallowest)
	allowInput   bool
	retDepth     int
}

func newIstack(allowInput bool) *istack {
	return &istack{allowInput: allowInput}
}

// clone returns an independent copy, used to snapshot the stack at a
// branch point before diverging into two arms.
func (s *istack) clone() *istack {
	c := &istack{allowInput: s.allowInput, retDepth: s.retDepth}
	c.items = append(c.items, s.items...)
	c.materialized = append(c.materialized, s.materialized...)
	return c
}

func (s *istack) push(t types.Type) {
	s.items = append(s.items, t)
}

// popDefault pops the top of the stack, materializing `fallback` on
// underflow (if allowed).
func (s *istack) popDefault(fallback types.Type) (types.Type, error) {
	if n := len(s.items); n > 0 {
		v := s.items[n-1]
		s.items = s.items[:n-1]
		return v, nil
	}
	if !s.allowInput {
		return types.Unknown, errUnderflow
	}
	s.materialized = append(s.materialized, fallback)
	return fallback, nil
}

// popExpect pops the top of the stack, materializing `want` on underflow,
// and checking the actual value against `want` (Bool/Int interchangeable)
// when one is present.
func (s *istack) popExpect(want types.Type) (types.Type, error) {
	if n := len(s.items); n > 0 {
		v := s.items[n-1]
		s.items = s.items[:n-1]
		if !typesCompatible(want, v) {
			return v, errTypeMismatch(want, v)
		}
		return v, nil
	}
	if !s.allowInput {
		return types.Unknown, errUnderflow
	}
	s.materialized = append(s.materialized, want)
	return want, nil
}

// inputs returns the inferred Inputs list, bottom-to-top: the first
// underflow materializes the shallowest (last-pushed-by-caller) slot, so
// the recorded order must be reversed to read bottom-to-top.
func (s *istack) inputs() []types.Type {
	out := make([]types.Type, len(s.materialized))
	for i, t := range s.materialized {
		out[len(out)-1-i] = t
	}
	return out
}

func typesCompatible(want, got types.Type) bool {
	if want == got {
		return true
	}
	if want == types.Int && got == types.Bool {
		return true
	}
	if want == types.Bool && got == types.Int {
		return true
	}
	return false
}

// neutralAfterLoop reports whether running a loop body once, starting
// from pre and ending at post, returns to pre's state. A body's first
// pass commonly discovers its formal inputs by underflowing straight
// through pre's (possibly empty) items -- those freshly materialized
// slots stand in for whatever a second iteration would find already
// sitting on the stack from the first, so they count as part of the
// "before" picture rather than as net growth.
func neutralAfterLoop(pre, post *istack) bool {
	newly := post.materialized[len(pre.materialized):]
	effective := make([]types.Type, 0, len(newly)+len(pre.items))
	for i := len(newly) - 1; i >= 0; i-- {
		effective = append(effective, newly[i])
	}
	effective = append(effective, pre.items...)

	if len(post.items) != len(effective) {
		return false
	}
	for i := range effective {
		if post.items[i] != effective[i] {
			return false
		}
	}
	return true
}

func sameShape(a, b *istack) bool {
	if len(a.items) != len(b.items) || len(a.materialized) != len(b.materialized) {
		return false
	}
	for i := range a.items {
		if a.items[i] != b.items[i] {
			return false
		}
	}
	for i := range a.materialized {
		if a.materialized[i] != b.materialized[i] {
			return false
		}
	}
	return true
}

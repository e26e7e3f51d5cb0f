// Package dictionary holds the fixed built-in vocabulary (spec §3) and the
// compile-time mapping from word name to declared stack effect that the
// semantic analyzer consults and extends left-to-right as definitions are
// compiled (GLOSSARY: Dictionary).
package dictionary

import (
	"fmt"
	"strings"

	"forthjit/types"
)

// Origin records whether a dictionary Entry names a built-in primitive or
// a word the user defined in this compilation unit.
type Origin int

const (
	Primitive Origin = iota
	User
)

// ShuffleOp identifies one of the polymorphic stack-shuffling primitives.
// Per spec §9, these are never given a single concrete Effect: the
// semantic analyzer and SSA builder apply them directly to the abstract
// stack, carrying whatever concrete types are already there.
type ShuffleOp int

const (
	NoShuffle ShuffleOp = iota
	OpDup
	OpDrop
	OpSwap
	OpOver
	OpRot
	OpNip
	OpTuck
	Op2Dup
	Op2Drop
	Op2Swap
)

// Entry is a Name -> {declared effect, immediate flag, origin} dictionary
// record (spec §3: Dictionary entry). The SSA function handle that
// eventually backs a User entry lives in the ssa.Module built once the
// entry's body has been compiled; it is not stored here to avoid forcing
// every consumer of the semantic dictionary to depend on the ssa package.
type Entry struct {
	Name      string
	Effect    types.Effect
	Origin    Origin
	Immediate bool
	Shuffle   ShuffleOp
	LoopIndex bool // true only for "i", the do-loop counter pseudo-word

	// Arithmetic marks the primitives whose declared Effect above is a
	// convenient default (Int,Int->Int or Int,Int->Bool) but which the
	// semantic analyzer really type-checks via promotion (spec's Int ->
	// Float policy): +, -, *, /, mod, the unary Int ops, and every
	// comparison. Everything else is checked against Effect verbatim.
	Arithmetic bool
}

// Dictionary is the compile-time mapping from canonical (lower-cased) word
// name to Entry.
type Dictionary struct {
	entries map[string]*Entry
	order   []string // insertion order, for deterministic iteration/dumps
}

// Canonical lower-cases a word name to its dictionary-lookup key, per
// spec §3's "Word name" rule.
func Canonical(name string) string {
	return strings.ToLower(name)
}

// New returns a Dictionary pre-seeded with the full built-in vocabulary.
func New() *Dictionary {
	d := &Dictionary{entries: make(map[string]*Entry)}
	for _, e := range builtins() {
		e := e
		d.insert(&e)
	}
	return d
}

func (d *Dictionary) insert(e *Entry) {
	key := Canonical(e.Name)
	if _, exists := d.entries[key]; !exists {
		d.order = append(d.order, key)
	}
	d.entries[key] = e
}

// Lookup resolves a word reference case-insensitively.
func (d *Dictionary) Lookup(name string) (*Entry, bool) {
	e, ok := d.entries[Canonical(name)]
	return e, ok
}

// Define registers a user word. It rejects any attempt to shadow a
// primitive, and rejects redefinition of a user word unless
// allowRedefinition is set (spec §9's open question, resolved in
// SPEC_FULL.md as reject-by-default).
func (d *Dictionary) Define(name string, effect types.Effect, immediate bool, allowRedefinition bool) error {
	key := Canonical(name)
	if existing, ok := d.entries[key]; ok {
		if existing.Origin == Primitive {
			return fmt.Errorf("%q is a built-in primitive and cannot be redefined", name)
		}
		if !allowRedefinition {
			return fmt.Errorf("%q is already defined; pass WithAllowRedefinition to shadow it", name)
		}
	}
	d.insert(&Entry{Name: name, Effect: effect, Origin: User, Immediate: immediate})
	return nil
}

// Redefine unconditionally installs name -> effect as a User entry,
// bypassing the redefinition policy enforced by Define. The semantic
// analyzer uses it to provisionally register a definition's own name
// before inferring its (possibly self-referential) body, refining the
// guess until it reaches a fixpoint.
func (d *Dictionary) Redefine(name string, effect types.Effect, immediate bool) {
	d.insert(&Entry{Name: name, Effect: effect, Origin: User, Immediate: immediate})
}

// Names returns every dictionary key in insertion order.
func (d *Dictionary) Names() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func eff(in, out []types.Type) types.Effect {
	return types.Effect{Inputs: in, Outputs: out}
}

var (
	i1  = []types.Type{types.Int}
	i2  = []types.Type{types.Int, types.Int}
	i3  = []types.Type{types.Int, types.Int, types.Int}
	i4  = []types.Type{types.Int, types.Int, types.Int, types.Int}
	a1  = []types.Type{types.Addr}
	ai2 = []types.Type{types.Addr, types.Int}
	b1  = []types.Type{types.Bool}
	nA  []types.Type
)

// builtins returns the full closed vocabulary of ~60 primitives named in
// spec §3, each with a predeclared stack effect (or a ShuffleOp for the
// polymorphic stack-shuffling words).
func builtins() []Entry {
	return []Entry{
		// arithmetic: Arithmetic true means the analyzer applies the
		// Int/Float promotion rule instead of the literal Effect above.
		{Name: "+", Effect: eff(i2, i1), Origin: Primitive, Arithmetic: true},
		{Name: "-", Effect: eff(i2, i1), Origin: Primitive, Arithmetic: true},
		{Name: "*", Effect: eff(i2, i1), Origin: Primitive, Arithmetic: true},
		{Name: "/", Effect: eff(i2, i1), Origin: Primitive, Arithmetic: true},
		{Name: "mod", Effect: eff(i2, i1), Origin: Primitive, Arithmetic: true},
		{Name: "1+", Effect: eff(i1, i1), Origin: Primitive, Arithmetic: true},
		{Name: "1-", Effect: eff(i1, i1), Origin: Primitive, Arithmetic: true},
		{Name: "2*", Effect: eff(i1, i1), Origin: Primitive, Arithmetic: true},

		// stack shuffling: polymorphic, see ShuffleOp doc.
		{Name: "dup", Origin: Primitive, Shuffle: OpDup},
		{Name: "drop", Origin: Primitive, Shuffle: OpDrop},
		{Name: "swap", Origin: Primitive, Shuffle: OpSwap},
		{Name: "over", Origin: Primitive, Shuffle: OpOver},
		{Name: "rot", Origin: Primitive, Shuffle: OpRot},
		{Name: "nip", Origin: Primitive, Shuffle: OpNip},
		{Name: "tuck", Origin: Primitive, Shuffle: OpTuck},
		{Name: "2dup", Origin: Primitive, Shuffle: Op2Dup},
		{Name: "2drop", Origin: Primitive, Shuffle: Op2Drop},
		{Name: "2swap", Origin: Primitive, Shuffle: Op2Swap},

		// comparisons: also Arithmetic (Int/Float operands accepted,
		// always producing Bool, never the promoted operand type).
		{Name: "<", Effect: eff(i2, b1), Origin: Primitive, Arithmetic: true},
		{Name: ">", Effect: eff(i2, b1), Origin: Primitive, Arithmetic: true},
		{Name: "=", Effect: eff(i2, b1), Origin: Primitive, Arithmetic: true},
		{Name: "<>", Effect: eff(i2, b1), Origin: Primitive, Arithmetic: true},
		{Name: "<=", Effect: eff(i2, b1), Origin: Primitive, Arithmetic: true},
		{Name: ">=", Effect: eff(i2, b1), Origin: Primitive, Arithmetic: true},
		{Name: "0=", Effect: eff(i1, b1), Origin: Primitive, Arithmetic: true},
		{Name: "0<", Effect: eff(i1, b1), Origin: Primitive, Arithmetic: true},
		{Name: "0>", Effect: eff(i1, b1), Origin: Primitive, Arithmetic: true},

		// bitwise
		{Name: "and", Effect: eff(i2, i1), Origin: Primitive},
		{Name: "or", Effect: eff(i2, i1), Origin: Primitive},
		{Name: "xor", Effect: eff(i2, i1), Origin: Primitive},
		{Name: "invert", Effect: eff(i1, i1), Origin: Primitive},
		{Name: "lshift", Effect: eff(i2, i1), Origin: Primitive},
		{Name: "rshift", Effect: eff(i2, i1), Origin: Primitive},

		// memory
		{Name: "@", Effect: eff(a1, i1), Origin: Primitive},
		{Name: "!", Effect: eff(append(append([]types.Type{}, types.Int), types.Addr), nA), Origin: Primitive},
		{Name: "c@", Effect: eff(a1, i1), Origin: Primitive},
		{Name: "c!", Effect: eff(append(append([]types.Type{}, types.Int), types.Addr), nA), Origin: Primitive},
		{Name: "+!", Effect: eff(append(append([]types.Type{}, types.Int), types.Addr), nA), Origin: Primitive},

		// return-stack transfer
		{Name: ">r", Effect: eff(i1, nA), Origin: Primitive},
		{Name: "r>", Effect: eff(nA, i1), Origin: Primitive},
		{Name: "r@", Effect: eff(nA, i1), Origin: Primitive},
		{Name: "2>r", Effect: eff(i2, nA), Origin: Primitive},
		{Name: "2r>", Effect: eff(nA, i2), Origin: Primitive},
		{Name: "2r@", Effect: eff(nA, i2), Origin: Primitive},

		// I/O proxies
		{Name: "emit", Effect: eff(i1, nA), Origin: Primitive},
		{Name: "key", Effect: eff(nA, i1), Origin: Primitive},
		{Name: "type", Effect: eff(ai2, nA), Origin: Primitive},
		{Name: "cr", Effect: eff(nA, nA), Origin: Primitive},
		{Name: "space", Effect: eff(nA, nA), Origin: Primitive},
		{Name: ".", Effect: eff(i1, nA), Origin: Primitive},
		{Name: ".s", Effect: eff(nA, nA), Origin: Primitive},

		// file-access proxies and mode words
		{Name: "r/o", Effect: eff(nA, ai2), Origin: Primitive},
		{Name: "w/o", Effect: eff(nA, ai2), Origin: Primitive},
		{Name: "r/w", Effect: eff(nA, ai2), Origin: Primitive},
		{Name: "create-file", Effect: eff(i4, i2), Origin: Primitive},
		{Name: "open-file", Effect: eff(i4, i2), Origin: Primitive},
		{Name: "read-file", Effect: eff(i3, i2), Origin: Primitive},
		{Name: "write-file", Effect: eff(i3, i1), Origin: Primitive},
		{Name: "close-file", Effect: eff(i1, i1), Origin: Primitive},
		{Name: "delete-file", Effect: eff(ai2, i1), Origin: Primitive},
		{Name: "system", Effect: eff(ai2, i1), Origin: Primitive},

		// concurrency proxies
		{Name: "spawn", Effect: eff(i1, i1), Origin: Primitive},
		{Name: "join", Effect: eff(i1, nA), Origin: Primitive},
		{Name: "channel", Effect: eff(i1, i1), Origin: Primitive},
		{Name: "send", Effect: eff(i2, nA), Origin: Primitive},
		{Name: "recv", Effect: eff(i1, i1), Origin: Primitive},
		{Name: "close-channel", Effect: eff(i1, nA), Origin: Primitive},

		// loop index pseudo-word
		{Name: "i", Effect: eff(nA, i1), Origin: Primitive, LoopIndex: true},
	}
}

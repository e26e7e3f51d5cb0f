// Package semantic implements the analysis pass of spec §4.3: it resolves
// every word reference against the dictionary, infers each definition's
// stack effect from its body by symbolic execution over an abstract
// stack, validates declared effects and control-structure balance, and
// reports accumulated SemanticErrors rather than stopping at the first
// one (GLOSSARY: Stack effect inference).
package semantic

import (
	"fmt"
	"strings"

	"forthjit/ast"
	"forthjit/dictionary"
	"forthjit/token"
	"forthjit/types"
)

// maxFixpointRounds bounds the recursive stack-effect fixpoint below: a
// self-recursive definition's own effect is unknown while
// its body is being analyzed, so the analyzer provisionally registers a
// guess, infers the body against it, and repeats until the guess and the
// freshly inferred effect agree (spec's worked recursion example, §4.3).
const maxFixpointRounds = 6

// Options configures the analyzer. The zero value is usable: redefinition
// is rejected and at most 32 errors accumulate before analysis gives up
// on collecting more (spec §7's "e.g. 32" cap).
type Options struct {
	AllowRedefinition bool
	MaxErrors         int
}

func (o Options) maxErrors() int {
	if o.MaxErrors <= 0 {
		return 32
	}
	return o.MaxErrors
}

// Result is the output of a successful (error-free) analysis: the
// dictionary extended with every user definition's inferred effect, and
// the effect of the synthetic top-level entry point.
type Result struct {
	Dictionary *dictionary.Dictionary
	TopLevel   types.Effect
}

// Analyzer walks a parsed Program and accumulates SemanticErrors.
type Analyzer struct {
	opts Options
	dict *dictionary.Dictionary
	errs []error
}

// New returns an Analyzer seeded with the built-in dictionary.
func New(opts Options) *Analyzer {
	return &Analyzer{opts: opts, dict: dictionary.New()}
}

// Analyze runs the full pass over prog. It returns a non-nil Errors as
// the error value (never a lone error) when one or more problems were
// found; per spec §4.3, nothing is compiled if any error is present, but
// the caller still gets every error the cap allowed us to collect.
func (a *Analyzer) Analyze(prog *ast.Program) (*Result, error) {
	for _, def := range prog.Definitions {
		a.analyzeDefinition(def)
		if len(a.errs) >= a.opts.maxErrors() {
			break
		}
	}

	var topEffect types.Effect
	if len(a.errs) < a.opts.maxErrors() {
		s := newIstack(false)
		if err := a.inferSequence(prog.TopLevel, s, new(int)); err != nil {
			a.reportBodyError(token.Location{}, err)
		} else {
			topEffect = types.Effect{Inputs: nil, Outputs: append([]types.Type{}, s.items...)}
		}
	}

	if len(a.errs) > 0 {
		return nil, Errors(a.errs)
	}
	return &Result{Dictionary: a.dict, TopLevel: topEffect}, nil
}

func (a *Analyzer) addError(err error) {
	if len(a.errs) >= a.opts.maxErrors() {
		return
	}
	a.errs = append(a.errs, err)
}

func (a *Analyzer) semErr(kind ErrorKind, loc token.Location, detail string) {
	a.addError(&Error{Kind: kind, Loc: loc, Detail: detail})
}

func (a *Analyzer) analyzeDefinition(def *ast.Definition) {
	if existing, ok := a.dict.Lookup(def.Name); ok {
		if existing.Origin == dictionary.Primitive {
			a.semErr(ControlStructureMismatch, def.Location(),
				fmt.Sprintf("%q is a built-in primitive and cannot be redefined", def.Name))
			return
		}
		if !a.opts.AllowRedefinition {
			a.semErr(ControlStructureMismatch, def.Location(),
				fmt.Sprintf("%q is already defined; pass WithAllowRedefinition to shadow it", def.Name))
			return
		}
	}

	// Provisionally register the word (initially zero-arity) before
	// inferring its own body, so a self-call resolves through the
	// ordinary WordRef path like any other call. Re-infer against
	// successively refined guesses until the guess and the freshly
	// inferred effect agree.
	tentative := types.Effect{}
	var inferred types.Effect
	var lastStack *istack
	var bodyErr error
	converged := false

	for round := 0; round < maxFixpointRounds; round++ {
		a.dict.Redefine(def.Name, tentative, def.Immediate)

		s := newIstack(true)
		loop := 0
		if err := a.inferSequence(def.Body, s, &loop); err != nil {
			// A wrong provisional arity for a self-call is a common
			// source of a spurious mismatch on early rounds; grow the
			// guess and give it another try before giving up.
			bodyErr = err
			tentative = growEffect(tentative)
			continue
		}
		bodyErr = nil
		inferred = types.Effect{Inputs: s.inputs(), Outputs: append([]types.Type{}, s.items...)}
		lastStack = s
		if inferred.Equal(tentative) {
			converged = true
			break
		}
		tentative = inferred
	}

	if bodyErr != nil {
		a.reportBodyError(def.Location(), bodyErr)
		// Still register the word so later references don't cascade
		// into a spurious UndefinedWord on top of the real error.
		a.dict.Redefine(def.Name, types.Effect{}, def.Immediate)
		return
	}
	if !converged {
		a.semErr(StackEffectMismatch, def.Location(),
			fmt.Sprintf("recursive stack effect for %q did not settle after %d rounds", def.Name, maxFixpointRounds))
		a.dict.Redefine(def.Name, inferred, def.Immediate)
		return
	}
	if lastStack.retDepth != 0 {
		a.semErr(ReturnStackImbalance, def.Location(), "return stack not balanced at end of definition \""+def.Name+"\"")
	}

	if def.DeclaredEffect != nil {
		nIn, nOut, ok := parseArity(*def.DeclaredEffect)
		if ok && (nIn != len(inferred.Inputs) || nOut != len(inferred.Outputs)) {
			declared := types.Effect{
				Inputs:  make([]types.Type, nIn),
				Outputs: make([]types.Type, nOut),
			}
			a.addError(&Error{
				Kind:     StackEffectMismatch,
				Loc:      def.Location(),
				Declared: &declared,
				Inferred: &inferred,
				Detail:   "in definition \"" + def.Name + "\"",
			})
		}
	}

	a.dict.Redefine(def.Name, inferred, def.Immediate)
}

// reportBodyError turns a sentinel/internal error from istack or a nested
// control-structure check into a proper SemanticError.
func (a *Analyzer) reportBodyError(loc token.Location, err error) {
	switch e := err.(type) {
	case *Error:
		a.addError(e)
	case *mismatchError:
		a.semErr(TypeMismatch, loc, e.Error())
	default:
		if err == errUnderflow {
			a.semErr(StackUnderflow, loc, "stack underflow")
			return
		}
		a.semErr(StackUnderflow, loc, err.Error())
	}
}

// inferSequence symbolically executes a straight-line body (the contents
// of a definition or of one arm of a control structure) against s,
// in order.
func (a *Analyzer) inferSequence(body []ast.Node, s *istack, inDoLoop *int) error {
	for _, n := range body {
		if err := a.inferNode(n, s, inDoLoop); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) inferNode(n ast.Node, s *istack, inDoLoop *int) error {
	switch node := n.(type) {
	case *ast.Literal:
		switch node.Kind {
		case ast.IntLiteral:
			s.push(types.Int)
		case ast.FloatLiteral:
			s.push(types.Float)
		case ast.StringLiteral:
			s.push(types.Addr)
			s.push(types.Int)
		}
		return nil

	case *ast.WordRef:
		return a.inferWordRef(node, s, inDoLoop)

	case *ast.If:
		return a.inferIf(node, s, inDoLoop)

	case *ast.BeginUntil:
		return a.inferBeginUntil(node, s, inDoLoop)

	case *ast.BeginWhileRepeat:
		return a.inferBeginWhileRepeat(node, s, inDoLoop)

	case *ast.DoLoop:
		return a.inferDoLoop(node, s, inDoLoop)

	default:
		return nil
	}
}

func (a *Analyzer) inferWordRef(node *ast.WordRef, s *istack, inDoLoop *int) error {
	entry, ok := a.dict.Lookup(node.Name)
	if !ok {
		suggestions := nearestNames(node.Name, a.dict.Names())
		return &Error{Kind: UndefinedWord, Loc: node.Location(), Name: node.Name, Suggestions: suggestions}
	}

	if entry.LoopIndex {
		if *inDoLoop == 0 {
			return &Error{Kind: ControlStructureMismatch, Loc: node.Location(), Detail: "\"i\" used outside a do-loop"}
		}
		s.push(types.Int)
		return nil
	}

	if entry.Shuffle != dictionary.NoShuffle {
		if err := applyShuffle(entry.Shuffle, s); err != nil {
			return err
		}
		a.bumpRetDepth(entry.Name, s)
		return nil
	}

	if entry.Arithmetic {
		if err := applyArithmetic(entry, s); err != nil {
			return err
		}
		return nil
	}

	// generic declared-effect primitives and user words: pop Inputs in
	// reverse (top of stack first), push Outputs in order.
	for i := len(entry.Effect.Inputs) - 1; i >= 0; i-- {
		if _, err := s.popExpect(entry.Effect.Inputs[i]); err != nil {
			return err
		}
	}
	for _, t := range entry.Effect.Outputs {
		s.push(t)
	}
	a.bumpRetDepth(entry.Name, s)
	return nil
}

// bumpRetDepth tracks >r/r>/2>r/2r> balance (spec's ReturnStackImbalance)
// alongside the ordinary effect-based stack adjustment already applied.
func (a *Analyzer) bumpRetDepth(name string, s *istack) {
	switch name {
	case ">r":
		s.retDepth++
	case "r>":
		s.retDepth--
	case "2>r":
		s.retDepth += 2
	case "2r>":
		s.retDepth -= 2
	}
}

func applyArithmetic(entry *dictionary.Entry, s *istack) error {
	nIn := len(entry.Effect.Inputs)
	if nIn == 2 {
		b, err := s.popDefault(types.Int)
		if err != nil {
			return err
		}
		av, err := s.popDefault(b)
		if err != nil {
			return err
		}
		bNorm := b
		if bNorm == types.Bool {
			bNorm = types.Int
		}
		aNorm := av
		if aNorm == types.Bool {
			aNorm = types.Int
		}
		promoted, ok := types.Promote(aNorm, bNorm)
		if !ok {
			return errTypeMismatch(types.Int, av)
		}
		if isComparison(entry.Name) {
			s.push(types.Bool)
		} else {
			s.push(promoted)
		}
		return nil
	}
	// unary arithmetic / unary comparison
	v, err := s.popDefault(types.Int)
	if err != nil {
		return err
	}
	norm := v
	if norm == types.Bool {
		norm = types.Int
	}
	if norm != types.Int && norm != types.Float {
		return errTypeMismatch(types.Int, v)
	}
	if isComparison(entry.Name) {
		s.push(types.Bool)
	} else {
		s.push(norm)
	}
	return nil
}

func isComparison(name string) bool {
	switch name {
	case "<", ">", "=", "<>", "<=", ">=", "0=", "0<", "0>":
		return true
	default:
		return false
	}
}

func applyShuffle(op dictionary.ShuffleOp, s *istack) error {
	pop := func() (types.Type, error) { return s.popDefault(types.Int) }

	switch op {
	case dictionary.OpDup:
		v, err := pop()
		if err != nil {
			return err
		}
		s.push(v)
		s.push(v)
	case dictionary.OpDrop:
		if _, err := pop(); err != nil {
			return err
		}
	case dictionary.OpSwap:
		top, err := pop()
		if err != nil {
			return err
		}
		below, err := pop()
		if err != nil {
			return err
		}
		s.push(top)
		s.push(below)
	case dictionary.OpOver:
		top, err := pop()
		if err != nil {
			return err
		}
		below, err := pop()
		if err != nil {
			return err
		}
		s.push(below)
		s.push(top)
		s.push(below)
	case dictionary.OpRot:
		x3, err := pop()
		if err != nil {
			return err
		}
		x2, err := pop()
		if err != nil {
			return err
		}
		x1, err := pop()
		if err != nil {
			return err
		}
		s.push(x2)
		s.push(x3)
		s.push(x1)
	case dictionary.OpNip:
		top, err := pop()
		if err != nil {
			return err
		}
		if _, err := pop(); err != nil {
			return err
		}
		s.push(top)
	case dictionary.OpTuck:
		top, err := pop()
		if err != nil {
			return err
		}
		below, err := pop()
		if err != nil {
			return err
		}
		s.push(top)
		s.push(below)
		s.push(top)
	case dictionary.Op2Dup:
		top, err := pop()
		if err != nil {
			return err
		}
		below, err := pop()
		if err != nil {
			return err
		}
		s.push(below)
		s.push(top)
		s.push(below)
		s.push(top)
	case dictionary.Op2Drop:
		if _, err := pop(); err != nil {
			return err
		}
		if _, err := pop(); err != nil {
			return err
		}
	case dictionary.Op2Swap:
		y2, err := pop()
		if err != nil {
			return err
		}
		y1, err := pop()
		if err != nil {
			return err
		}
		x2, err := pop()
		if err != nil {
			return err
		}
		x1, err := pop()
		if err != nil {
			return err
		}
		s.push(y1)
		s.push(y2)
		s.push(x1)
		s.push(x2)
	}
	return nil
}

func (a *Analyzer) inferIf(node *ast.If, s *istack, inDoLoop *int) error {
	if _, err := s.popExpect(types.Bool); err != nil {
		return err
	}

	thenBranch := s.clone()
	if err := a.inferSequence(node.Then, thenBranch, inDoLoop); err != nil {
		return err
	}

	if node.Else == nil {
		if !sameShape(thenBranch, s) {
			return &Error{Kind: ControlStructureMismatch, Loc: node.Location(),
				Detail: "if/then without else must leave the stack unchanged"}
		}
		return nil
	}

	elseBranch := s.clone()
	if err := a.inferSequence(node.Else, elseBranch, inDoLoop); err != nil {
		return err
	}

	if !sameShape(thenBranch, elseBranch) {
		return &Error{Kind: StackEffectMismatch, Loc: node.Location(),
			Detail: "if/else branches leave different stack shapes"}
	}

	*s = *thenBranch
	return nil
}

func (a *Analyzer) inferBeginUntil(node *ast.BeginUntil, s *istack, inDoLoop *int) error {
	clone := s.clone()
	if err := a.inferSequence(node.Body, clone, inDoLoop); err != nil {
		return err
	}
	if _, err := clone.popExpect(types.Bool); err != nil {
		return err
	}
	if !neutralAfterLoop(s, clone) {
		return &Error{Kind: ControlStructureMismatch, Loc: node.Location(),
			Detail: "begin/until body must be stack-neutral"}
	}
	return nil
}

func (a *Analyzer) inferBeginWhileRepeat(node *ast.BeginWhileRepeat, s *istack, inDoLoop *int) error {
	clone := s.clone()
	if err := a.inferSequence(node.Cond, clone, inDoLoop); err != nil {
		return err
	}
	if _, err := clone.popExpect(types.Bool); err != nil {
		return err
	}
	if err := a.inferSequence(node.Body, clone, inDoLoop); err != nil {
		return err
	}
	if !neutralAfterLoop(s, clone) {
		return &Error{Kind: ControlStructureMismatch, Loc: node.Location(),
			Detail: "begin/while/repeat body must return to the loop's entry state"}
	}
	return nil
}

func (a *Analyzer) inferDoLoop(node *ast.DoLoop, s *istack, inDoLoop *int) error {
	if _, err := s.popExpect(types.Int); err != nil { // start
		return err
	}
	if _, err := s.popExpect(types.Int); err != nil { // limit
		return err
	}

	clone := s.clone()
	*inDoLoop++
	err := a.inferSequence(node.Body, clone, inDoLoop)
	*inDoLoop--
	if err != nil {
		return err
	}
	if !neutralAfterLoop(s, clone) {
		return &Error{Kind: ControlStructureMismatch, Loc: node.Location(),
			Detail: "do/loop body must be stack-neutral"}
	}
	return nil
}

// growEffect widens a provisional recursive-effect guess by one Int on
// each side, used when a round errors out before producing a candidate.
func growEffect(e types.Effect) types.Effect {
	return types.Effect{
		Inputs:  append(append([]types.Type{}, e.Inputs...), types.Int),
		Outputs: append(append([]types.Type{}, e.Outputs...), types.Int),
	}
}

// parseArity reads the arity (not the types -- stack-effect comments name
// variables, not types) out of a raw "(a b -- c)" comment.
func parseArity(raw string) (nIn, nOut int, ok bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.SplitN(s, "--", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	return len(strings.Fields(parts[0])), len(strings.Fields(parts[1])), true
}

// nearestNames returns up to 3 dictionary names sharing a prefix with
// name, a cheap stand-in for edit-distance suggestions.
func nearestNames(name string, names []string) []string {
	name = dictionary.Canonical(name)
	var out []string
	for _, n := range names {
		if len(n) > 0 && len(name) > 0 && n[0] == name[0] {
			out = append(out, n)
			if len(out) == 3 {
				break
			}
		}
	}
	return out
}

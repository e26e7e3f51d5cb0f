// Package cmd wires the compiler pipeline -- lexer, parser, semantic
// analyzer, SSA builder, optimizer, backend, and execution driver -- into
// the `execute <source>` CLI entry point spec §6 names, replacing the
// teacher's bare flag.Bool/flag.String pairs with cobra flags and
// logrus's structured, leveled diagnostics (spec's ambient stack).
package cmd

// Options configures one compilation+execution run, the same
// functional-options shape the teacher's main.go uses for SetDebug,
// generalized to the handful of settings this pipeline actually needs.
type Options struct {
	Base              int
	AllowRedefinition bool
	Aggressive        bool
	MaxOptRounds      int
	StackDepth        int
	DumpSSA           bool
	DumpIR            bool
	Verbose           bool
}

// Option mutates an Options value at construction time.
type Option func(*Options)

// WithBase sets the numeric base integer literals are parsed in.
func WithBase(base int) Option {
	return func(o *Options) { o.Base = base }
}

// WithAllowRedefinition permits `: foo … ;` to shadow an earlier user
// definition instead of failing with a SemanticError.
func WithAllowRedefinition(allow bool) Option {
	return func(o *Options) { o.AllowRedefinition = allow }
}

// WithAggressive enables the optimizer's repeated fold/DCE/peephole/inline
// cycle and type specialization, bounded by maxRounds (0 selects the
// optimizer's own default).
func WithAggressive(aggressive bool, maxRounds int) Option {
	return func(o *Options) { o.Aggressive = aggressive; o.MaxOptRounds = maxRounds }
}

// WithStackDepth sets the execution driver's data-stack capacity in
// 8-byte cells (0 selects driver.DefaultStackCells).
func WithStackDepth(depth int) Option {
	return func(o *Options) { o.StackDepth = depth }
}

// WithDumpSSA / WithDumpIR select one of SPEC_FULL.md's diagnostic dump
// modes instead of executing the compiled program.
func WithDumpSSA(dump bool) Option {
	return func(o *Options) { o.DumpSSA = dump }
}

func WithDumpIR(dump bool) Option {
	return func(o *Options) { o.DumpIR = dump }
}

// WithVerbose raises logrus's level from Info to Debug.
func WithVerbose(verbose bool) Option {
	return func(o *Options) { o.Verbose = verbose }
}

func defaultOptions() Options {
	return Options{Base: 10, StackDepth: 0}
}

func newOptions(opts []Option) Options {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

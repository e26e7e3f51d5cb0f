package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"forthjit/backend"
	"forthjit/driver"
	"forthjit/lexer"
	"forthjit/optimize"
	"forthjit/parser"
	"forthjit/semantic"
	"forthjit/ssa"
)

// ExitCode mirrors spec §6's CLI contract verbatim: "Exit codes: 0
// success, 1 compilation error, 2 runtime error."
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitCompileError ExitCode = 1
	ExitRuntimeError ExitCode = 2
)

func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// Run drives the full pipeline -- lex, parse, analyze, build SSA,
// optimize, lower+encode+finalize, execute -- against src, writing
// results to out and diagnostics to the logger's configured output. It
// returns spec §6's exit code rather than calling os.Exit so callers
// (main.go, tests) keep control of process lifetime.
func Run(filename, src string, out io.Writer, opts ...Option) ExitCode {
	o := newOptions(opts)
	log := newLogger(o.Verbose)

	log.WithFields(logrus.Fields{"file": filename, "base": o.Base}).Debug("lexing")
	lex := lexer.New(src, lexer.WithBase(o.Base), lexer.WithFile(filename))

	p, err := parser.New(lex)
	if err != nil {
		return reportCompileError(log, err)
	}

	log.Debug("parsing")
	prog, err := p.Parse()
	if err != nil {
		return reportCompileError(log, err)
	}

	log.WithField("allowRedefinition", o.AllowRedefinition).Debug("running semantic analysis")
	res, err := semantic.New(semantic.Options{AllowRedefinition: o.AllowRedefinition}).Analyze(prog)
	if err != nil {
		return reportCompileError(log, err)
	}

	log.Debug("building SSA")
	mod, err := ssa.NewBuilder(res.Dictionary).Build(prog, res.TopLevel)
	if err != nil {
		return reportCompileError(log, err)
	}

	log.WithFields(logrus.Fields{"aggressive": o.Aggressive, "maxRounds": o.MaxOptRounds}).Debug("optimizing")
	mod = optimize.Run(mod, optimize.Options{Aggressive: o.Aggressive, MaxRounds: o.MaxOptRounds})

	if o.DumpSSA {
		fmt.Fprint(out, backend.DumpSSA(mod))
		return ExitSuccess
	}

	bmod, err := backend.New()
	if err != nil {
		return reportCompileError(log, err)
	}
	defer bmod.Close()

	handles := bmod.DeclareAll(mod)
	log.WithField("functions", len(handles)).Debug("declared functions")

	var dumped map[string]*backend.LFunction
	if o.DumpIR {
		dumped = make(map[string]*backend.LFunction, len(mod.Order))
	}

	for _, name := range mod.Order {
		fn := mod.Functions[name]
		if o.DumpIR {
			lf, lerr := backend.Lower(fn, handles[name], handles, bmod)
			if lerr != nil {
				return reportCompileError(log, lerr)
			}
			dumped[name] = lf
		}
		if err := bmod.Define(fn); err != nil {
			return reportCompileError(log, err)
		}
		log.WithField("function", name).Debug("defined function")
	}

	if o.DumpIR {
		fmt.Fprint(out, backend.DumpIR(dumped))
		return ExitSuccess
	}

	entries, err := bmod.FinalizeAll()
	if err != nil {
		return reportCompileError(log, err)
	}
	log.WithField("entries", len(entries)).Debug("finalized module")

	entry, ok := entries[ssa.EntryFunctionName]
	if !ok {
		return reportCompileError(log, fmt.Errorf("cmd: no entry function compiled"))
	}

	result, err := driver.Run(entry, nil, o.StackDepth)
	if err != nil {
		return reportRuntimeError(log, err)
	}
	if err := bmod.Wait(); err != nil {
		return reportRuntimeError(log, err)
	}

	fmt.Fprintln(out, result.Top)
	return ExitSuccess
}

func reportCompileError(log *logrus.Logger, err error) ExitCode {
	log.WithError(err).Error("compilation failed")
	return ExitCompileError
}

func reportRuntimeError(log *logrus.Logger, err error) ExitCode {
	log.WithError(err).Error("execution failed")
	return ExitRuntimeError
}

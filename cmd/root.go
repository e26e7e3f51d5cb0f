package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the `forthjit execute <source>` CLI spec §6
// describes: a single entry point that runs the full pipeline and prints
// the top of stack on success. Flags generalize the teacher's
// -debug/-compile/-filename/-run flag.Bool/flag.String pairs into cobra's
// declarative form.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "forthjit",
		Short:         "JIT compiler and execution driver for a Forth-family stack language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newExecuteCommand())
	return root
}

func newExecuteCommand() *cobra.Command {
	var (
		base              int
		allowRedefinition bool
		aggressive        bool
		maxOptRounds      int
		stackDepth        int
		dumpSSA           bool
		dumpIR            bool
		verbose           bool
	)

	cmd := &cobra.Command{
		Use:   "execute <source>",
		Short: "Compile and execute a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			code := Run(path, string(data), cmd.OutOrStdout(),
				WithBase(base),
				WithAllowRedefinition(allowRedefinition),
				WithAggressive(aggressive, maxOptRounds),
				WithStackDepth(stackDepth),
				WithDumpSSA(dumpSSA),
				WithDumpIR(dumpIR),
				WithVerbose(verbose),
			)
			if code != ExitSuccess {
				return &exitError{code: code}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&base, "base", 10, "numeric base for integer literals")
	flags.BoolVar(&allowRedefinition, "allow-redefinition", false, "allow a later \": name ... ;\" to shadow an earlier one")
	flags.BoolVar(&aggressive, "aggressive", false, "enable the optimizer's repeated fold/DCE/peephole/inline cycle and type specialization")
	flags.IntVar(&maxOptRounds, "max-opt-rounds", 0, "bound on aggressive-mode optimizer rounds (0 = optimizer default)")
	flags.IntVar(&stackDepth, "stack-depth", 0, "data stack capacity in 8-byte cells (0 = driver default)")
	flags.BoolVar(&dumpSSA, "dump-ssa", false, "print the built SSA IR instead of executing")
	flags.BoolVar(&dumpIR, "dump-ir", false, "print the backend's lowered IR instead of executing")
	flags.BoolVar(&verbose, "verbose", false, "enable debug-level pipeline diagnostics")

	return cmd
}

// exitError carries the process exit code spec §6 fixes (0/1/2) back
// through cobra's RunE error return, since cobra itself only distinguishes
// "succeeded" from "failed".
type exitError struct{ code ExitCode }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", int(e.code)) }

// ExitCodeOf extracts the process exit code a NewRootCommand().Execute()
// error carries, defaulting to ExitCompileError for any other error (e.g.
// cobra's own usage errors) so main.go never needs to know about
// exitError directly.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	return ExitCompileError
}

// IsExitError reports whether err originated from a pipeline run that
// already logged its own diagnostic (via logrus), as opposed to a cobra-
// level usage error main.go still needs to print itself.
func IsExitError(err error) bool {
	_, ok := err.(*exitError)
	return ok
}

// This is the main-driver for our compiler.

package main

import (
	"fmt"
	"os"

	"forthjit/cmd"
)

func main() {
	root := cmd.NewRootCommand()

	err := root.Execute()
	if err != nil && !cmd.IsExitError(err) {
		// cobra's own usage/argument errors (bad flags, wrong arg count)
		// never went through the pipeline's logger, so surface them here.
		fmt.Fprintln(os.Stderr, err)
	}

	os.Exit(int(cmd.ExitCodeOf(err)))
}

package cmd

import (
	"fmt"
	"os"
)

// ExitWithError writes a fatal message to stderr and exits non-zero. Use for
// failures before or outside normal command error propagation.
func ExitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	os.Exit(1)
}

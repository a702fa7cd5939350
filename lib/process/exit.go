// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal reports err on stderr and exits. Errors that carry their own exit
// code (an ExitCode() int method) exit with that code and print nothing;
// everything else prints "error: err" and exits 1.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

// report writes the diagnostic for err to w and returns the exit code.
func report(w io.Writer, err error) int {
	if coder, ok := err.(interface{ ExitCode() int }); ok {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}

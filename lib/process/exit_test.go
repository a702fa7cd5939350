// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"testing"
)

type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return "exit" }
func (e exitCodeError) ExitCode() int { return e.code }

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	if code := report(&buffer, errors.New("upstream address is required")); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if got := buffer.String(); got != "error: upstream address is required\n" {
		t.Errorf("output = %q", got)
	}

	buffer.Reset()
	if code := report(&buffer, exitCodeError{code: 2}); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if buffer.Len() != 0 {
		t.Errorf("expected no output for exit-code errors, got %q", buffer.String())
	}
}

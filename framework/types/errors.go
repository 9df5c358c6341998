package types

import (
	"fmt"
	"strings"
	"time"
)

// MissingPrerequisiteError reports that an artifact a step depends on is absent.
type MissingPrerequisiteError struct {
	Path   string
	Reason string
}

func (e *MissingPrerequisiteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("missing prerequisite %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("missing prerequisite %s", e.Path)
}

// ProcessError reports an external command that exited non-zero.
type ProcessError struct {
	Command  []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("command %q exited with code %d: %s", strings.Join(e.Command, " "), e.ExitCode, lastLine(e.Stderr, e.Stdout))
}

// ParseError reports that an expected marker was not found in any output stream.
type ParseError struct {
	Marker string
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("parsing output for %q: %s", e.Marker, e.Detail)
	}
	return fmt.Sprintf("marker %q not found in stdout or stderr", e.Marker)
}

// TimeoutError reports that a readiness deadline or retry budget was exhausted.
type TimeoutError struct {
	Operation string
	After     time.Duration
	Attempts  int
	Err       error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s did not succeed", e.Operation)
	if e.After > 0 {
		msg += fmt.Sprintf(" within %s", e.After)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// PermissionError reports a deletion blocked by a read-only attribute.
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied removing %s: %v", e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// lastLine returns the last non-empty line of the first non-empty input.
func lastLine(outputs ...string) string {
	for _, out := range outputs {
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if l := strings.TrimSpace(lines[len(lines)-1]); l != "" {
			return l
		}
	}
	return "no output"
}

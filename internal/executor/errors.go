package executor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoCommands is returned when a command list is empty.
var ErrNoCommands = errors.New("no commands to run")

// CommandError is a command that exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(e.Stdout)
	}
	if detail == "" {
		return fmt.Sprintf("command %q failed with exit code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q failed with exit code %d: %s", e.Command, e.ExitCode, lastLines(detail, 10))
}

// PermissionError is a CommandError whose output shows the command lacked
// privileges. It aborts a fallback chain.
type PermissionError struct {
	Cause       *CommandError
	Remediation string
}

func (e *PermissionError) Error() string {
	return e.Remediation + "\n" + e.Cause.Error()
}

func (e *PermissionError) Unwrap() error {
	return e.Cause
}

// IsPermissionError reports whether err is a PermissionError.
func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

var permissionSignature = regexp.MustCompile(`(?i)(permission denied|access is denied|access denied|requires elevation|run as administrator|administrator privileges|administrative privileges|are you root|a password is required|terminal is required to read the password|incorrect password|not in the sudoers|EACCES)`)

const (
	windowsRemediation = "Administrator privileges are required. Restart envstate from a terminal opened with \"Run as administrator\" and try again."
	unixRemediation    = "Permission denied. Re-run with elevated privileges or supply the sudo password."
)

// classifyFailure wraps a failed command, promoting it to a PermissionError
// when its output carries a permission signature.
func classifyFailure(command string, out Output, windows bool) error {
	ce := &CommandError{
		Command:  command,
		ExitCode: out.ExitCode,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
	}
	if !permissionSignature.MatchString(out.Stderr) && !permissionSignature.MatchString(out.Stdout) {
		return ce
	}
	remediation := unixRemediation
	if windows {
		remediation = windowsRemediation
	}
	return &PermissionError{Cause: ce, Remediation: remediation}
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// Package executor runs installation commands: privilege injection,
// alternative-command fallback and streamed progress events.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/blackwell-systems/envstate/internal/advisor"
)

// lookupTimeout bounds which/where probes.
const lookupTimeout = 5 * time.Second

// sudoPrime validates the password read from stdin and caches credentials
// for the rest of the command line.
const sudoPrime = "sudo -S -p '' -v && "

var (
	sudoToken   = regexp.MustCompile(`(^|[\s;&|(])sudo(\s)`)
	sudoCommand = regexp.MustCompile(`(^|[;&|(]\s*)sudo\s+(-\w+\s+)*`)
)

// CommandResult records one attempted command.
type CommandResult struct {
	Command  string `json:"command"`
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// InstallResult is the verdict for one dependency.
type InstallResult struct {
	Name     string          `json:"name"`
	Success  bool            `json:"success"`
	Results  []CommandResult `json:"results"`
	Duration time.Duration   `json:"duration"`
	Err      string          `json:"error,omitempty"`
}

// Installer executes command lists through a Runner.
type Installer struct {
	runner  Runner
	windows bool
	timeout time.Duration
	logger  *slog.Logger
}

// New returns an Installer. timeout bounds each command; zero means no
// limit beyond the caller's context.
func New(r Runner, windows bool, timeout time.Duration, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{runner: r, windows: windows, timeout: timeout, logger: logger}
}

// ExecuteCommand runs a single command, streaming its lines as output
// events. A non-zero exit yields a *CommandError, or a *PermissionError when
// the output shows missing privileges.
func (in *Installer) ExecuteCommand(ctx context.Context, command, password string, events chan<- Event) (Output, error) {
	return in.execute(ctx, newEmitter(ctx, events), command, password)
}

func (in *Installer) execute(ctx context.Context, em *emitter, command, password string) (Output, error) {
	line, stdin, stripped := in.prepare(command, password)
	if stripped {
		em.send(Event{Kind: EventWarning, Command: command, Message: "sudo is not available on Windows; running the command without it"})
	}
	em.send(Event{Kind: EventStart, Command: command})

	if in.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := in.runner.Run(ctx, line, stdin, func(stream, text string) {
		em.send(Event{Kind: EventOutput, Command: command, Stream: stream, Line: text})
	})
	in.logger.Debug("command finished", "command", command, "exit_code", out.ExitCode, "duration", time.Since(start), "err", err)

	if err != nil {
		return out, fmt.Errorf("failed to run %q: %w", command, err)
	}
	if out.ExitCode != 0 {
		return out, classifyFailure(command, out, in.windows)
	}
	return out, nil
}

// prepare rewrites the privilege prefix for the platform. With a password
// on a Unix host the credentials are primed once with sudo -S -v, which
// consumes the single password line on stdin; every sudo in the command then
// runs with -n so it uses the cached credentials and never reads stdin. On
// Windows the prefix is removed.
func (in *Installer) prepare(command, password string) (line, stdin string, stripped bool) {
	if in.windows {
		line = sudoCommand.ReplaceAllString(command, "$1")
		return line, "", line != command
	}
	if password == "" || !sudoToken.MatchString(command) {
		return command, "", false
	}
	line = sudoPrime + sudoToken.ReplaceAllString(command, "${1}sudo -n${2}")
	return line, password + "\n", false
}

// ExecuteCommands tries commands in order as alternatives. The first success
// ends the chain; a permission failure aborts it; any other failure moves on
// to the next command. Every attempt is recorded.
func (in *Installer) ExecuteCommands(ctx context.Context, commands []string, password string, events chan<- Event) ([]CommandResult, error) {
	return in.executeCommands(ctx, newEmitter(ctx, events), commands, password)
}

func (in *Installer) executeCommands(ctx context.Context, em *emitter, commands []string, password string) ([]CommandResult, error) {
	if len(commands) == 0 {
		return nil, ErrNoCommands
	}

	var (
		results []CommandResult
		lastErr error
	)
	for i, command := range commands {
		out, err := in.execute(ctx, em, command, password)
		res := CommandResult{
			Command:  command,
			Success:  err == nil,
			ExitCode: out.ExitCode,
			Output:   strings.TrimSpace(out.Stdout),
		}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
		em.send(Event{Kind: EventResult, Command: command, Success: res.Success, Message: res.Error})

		if err == nil {
			return results, nil
		}
		if IsPermissionError(err) {
			return results, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, ctxErr
		}
		lastErr = err
		if i < len(commands)-1 {
			in.logger.Info("command failed, trying next alternative", "command", command, "err", err)
		}
	}
	return results, fmt.Errorf("all %d commands failed: %w", len(commands), lastErr)
}

// InstallDependency runs the dependency's install commands as a fallback
// chain. The verdict is successful only when every attempted command
// succeeded.
func (in *Installer) InstallDependency(ctx context.Context, dep advisor.Dependency, password string, events chan<- Event) InstallResult {
	em := newEmitter(ctx, events)
	start := time.Now()

	results, err := in.executeCommands(ctx, em, dep.InstallCommands, password)
	res := InstallResult{
		Name:     dep.Name,
		Results:  results,
		Success:  len(results) > 0,
		Duration: time.Since(start),
	}
	for _, r := range results {
		if !r.Success {
			res.Success = false
		}
	}
	if !res.Success {
		if err == nil {
			err = errors.New("an earlier alternative failed")
		}
		res.Err = err.Error()
	}

	msg := fmt.Sprintf("✓ %s installed successfully", dep.Name)
	if !res.Success {
		msg = fmt.Sprintf("✗ %s installation failed", dep.Name)
	}
	em.send(Event{Kind: EventDone, Success: res.Success, Message: msg})
	return res
}

// CommandExists reports whether name resolves on PATH using which, or
// where on Windows.
func (in *Installer) CommandExists(ctx context.Context, name string) bool {
	lookup := "which "
	if in.windows {
		lookup = "where "
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	out, err := in.runner.Run(ctx, lookup+quoteArg(name), "", nil)
	return err == nil && out.ExitCode == 0
}

// IsInstalled runs verifyCommand when given, otherwise falls back to
// CommandExists.
func (in *Installer) IsInstalled(ctx context.Context, name, verifyCommand string) bool {
	if verifyCommand == "" {
		return in.CommandExists(ctx, name)
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	out, err := in.runner.Run(ctx, verifyCommand, "", nil)
	return err == nil && out.ExitCode == 0
}

var plainName = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)

func quoteArg(s string) string {
	if plainName.MatchString(s) {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, ``) + `"`
}

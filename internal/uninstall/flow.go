package uninstall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/executor"
	"github.com/blackwell-systems/envstate/internal/state"
	"github.com/blackwell-systems/envstate/internal/verify"
)

// ErrEmptyPlan is returned when a plan has no commands to run.
var ErrEmptyPlan = errors.New("uninstall plan has no commands")

// CommandRunner runs one command.
type CommandRunner interface {
	ExecuteCommand(ctx context.Context, command, password string, events chan<- executor.Event) (executor.Output, error)
}

// Verifier checks whether a package is still present.
type Verifier interface {
	Verify(ctx context.Context, dep advisor.Dependency) verify.Result
}

// StateWriter is the part of the state manager the flow mutates.
type StateWriter interface {
	RemovePackage(name string) error
	LogInstallation(o state.Outcome) error
}

// RestorePointer records a restore point before commands run.
type RestorePointer interface {
	Create(records []state.PackageRecord, reason string) (int64, error)
}

// Result is the outcome of one uninstall.
type Result struct {
	Package        string                   `json:"package"`
	Success        bool                     `json:"success"`
	Message        string                   `json:"message,omitempty"`
	Error          string                   `json:"error,omitempty"`
	RestorePointID int64                    `json:"restore_point_id,omitempty"`
	Plan           advisor.PlanRecord       `json:"plan"`
	Results        []executor.CommandResult `json:"results,omitempty"`
	Verification   *verify.Result           `json:"verification,omitempty"`
}

// Flow composes planning, execution, absence verification and state
// updates for a single package.
type Flow struct {
	Planner  *Planner
	Runner   CommandRunner
	Verifier Verifier
	State    StateWriter
	// Restore is optional; nil skips restore points.
	Restore RestorePointer
	System  state.SystemDescriptor
	Logger  *slog.Logger
}

// Execute uninstalls target. Commands run in plan order and the first
// failure aborts. The package record is removed only once verification
// confirms the package is gone; every other outcome logs a failed history
// entry and leaves the record in place.
func (f *Flow) Execute(ctx context.Context, target state.PackageRecord, password string, events chan<- executor.Event) Result {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	res := Result{Package: target.Name}

	res.Plan = f.Planner.GeneratePlan(ctx, []state.PackageRecord{target}, f.System)[0]

	fail := func(command string, err error) Result {
		res.Error = err.Error()
		logErr := f.State.LogInstallation(state.Outcome{
			Package:  target.Name,
			Action:   state.ActionUninstall,
			Result:   state.ResultFailed,
			Duration: time.Since(start),
			Err:      err.Error(),
			Command:  command,
		})
		if logErr != nil {
			logger.Warn("failed to record uninstall failure", "package", target.Name, "err", logErr)
		}
		return res
	}

	if len(res.Plan.Commands) == 0 {
		return fail("", ErrEmptyPlan)
	}

	if f.Restore != nil {
		id, err := f.Restore.Create([]state.PackageRecord{target}, "pre-uninstall "+target.Name)
		if err != nil {
			logger.Warn("could not create restore point, continuing", "package", target.Name, "err", err)
		} else {
			res.RestorePointID = id
		}
	}

	for _, command := range res.Plan.Commands {
		out, err := f.Runner.ExecuteCommand(ctx, command, password, events)
		cr := executor.CommandResult{Command: command, Success: err == nil, ExitCode: out.ExitCode}
		if err != nil {
			cr.Error = err.Error()
		}
		res.Results = append(res.Results, cr)
		if err != nil {
			return fail(command, err)
		}
	}

	verifyCommand := res.Plan.VerifyCommand
	if verifyCommand == "" {
		if def, ok := managerFor(target, f.System); ok && def.Query != "" {
			verifyCommand = def.QueryCommand(managedName(target))
		}
	}
	check := f.Verifier.Verify(ctx, advisor.Dependency{
		Name:          target.Name,
		VerifyCommand: verifyCommand,
	})
	res.Verification = &check
	if !check.Ran {
		return fail(check.Command, fmt.Errorf("could not confirm %s was removed: %s", target.Name, check.Message))
	}
	if check.Installed {
		return fail(check.Command, fmt.Errorf("%s is still present after uninstall (%s)", target.Name, check.Command))
	}

	if err := f.State.RemovePackage(target.Name); err != nil {
		return fail("", fmt.Errorf("failed to update state: %w", err))
	}
	if err := f.State.LogInstallation(state.Outcome{
		Package:  target.Name,
		Action:   state.ActionUninstall,
		Result:   state.ResultSuccess,
		Duration: time.Since(start),
	}); err != nil {
		logger.Warn("failed to record uninstall", "package", target.Name, "err", err)
	}

	res.Success = true
	res.Message = fmt.Sprintf("%s uninstalled successfully", target.Name)
	logger.Info("package uninstalled", "package", target.Name, "duration", time.Since(start))
	return res
}

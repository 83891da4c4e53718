package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/decision"
	"github.com/blackwell-systems/envstate/internal/executor"
	"github.com/blackwell-systems/envstate/internal/export"
	"github.com/blackwell-systems/envstate/internal/manager"
	"github.com/blackwell-systems/envstate/internal/restore"
	"github.com/blackwell-systems/envstate/internal/risk"
	"github.com/blackwell-systems/envstate/internal/scanner"
	"github.com/blackwell-systems/envstate/internal/state"
	"github.com/blackwell-systems/envstate/internal/store"
	"github.com/blackwell-systems/envstate/internal/uninstall"
	"github.com/blackwell-systems/envstate/internal/verify"
	"github.com/blackwell-systems/envstate/internal/watcher"
)

// ScanResult is the response of ScanEnvironment.
type ScanResult struct {
	Packages []state.PackageRecord `json:"packages"`
	Count    int                   `json:"count"`
}

// UninstallResult is the response of ExecuteUninstall.
type UninstallResult = uninstall.Result

// ClassifyCommands validates deps and classifies every install command.
func (e *Engine) ClassifyCommands(deps []advisor.Dependency) (risk.Report, error) {
	deps = append([]advisor.Dependency(nil), deps...)
	if err := advisor.ValidateAll(deps); err != nil {
		return risk.Report{}, err
	}
	return risk.ClassifyAll(deps), nil
}

// Analyze asks the advisory service for the dependencies behind a free-text
// request and drops commands that cannot run on this host. The whole request
// fails when any dependency is left without a viable command.
func (e *Engine) Analyze(ctx context.Context, request string) (*advisor.Analysis, error) {
	if e.advisor == nil {
		return nil, ErrNoAdvisor
	}
	sys := e.DetectSystem(ctx).Descriptor()
	if t := e.cfg.Advisor.Timeout.Std(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	analysis, err := e.advisor.Analyze(ctx, advisor.Request{Text: request, System: sys})
	if err != nil {
		e.logger.Warn("advisory service failed", "err", err)
		return nil, err
	}
	deps, err := advisor.FilterForPlatform(analysis.Dependencies, sys)
	if err != nil {
		return nil, err
	}
	analysis.Dependencies = deps
	return analysis, nil
}

// ScanEnvironment lists installed packages with the detected manager and
// replaces the tracked state with the result. A failed scan still
// initializes state, with no packages.
func (e *Engine) ScanEnvironment(ctx context.Context) (*ScanResult, error) {
	info := e.DetectSystem(ctx)
	pkgs := e.scanner(ctx).Scan(ctx)
	records := scanner.Records(pkgs, info.PackageManager, e.now())
	if _, err := e.state.Initialize(info.Descriptor(), records); err != nil {
		return nil, fmt.Errorf("failed to initialize state: %w", err)
	}
	all := e.state.Packages()
	return &ScanResult{Packages: all, Count: len(all)}, nil
}

// CheckDrift lists installed packages without a record and records whose
// package is gone, without touching state.
func (e *Engine) CheckDrift(ctx context.Context) (scanner.Drift, error) {
	if !e.state.Loaded() {
		return scanner.Drift{}, state.ErrNoState
	}
	installed := e.scanner(ctx).Scan(ctx)
	return scanner.CompareState(e.state.Packages(), installed), nil
}

// CheckDecision evaluates one package. Configured aliases are resolved
// first.
func (e *Engine) CheckDecision(name string) decision.Decision {
	return e.decisions().Evaluate(e.cfg.ResolveAlias(name))
}

// DecisionSummary evaluates and tallies names.
func (e *Engine) DecisionSummary(names []string) decision.Summary {
	resolved := make([]string, len(names))
	for i, n := range names {
		resolved[i] = e.cfg.ResolveAlias(n)
	}
	return e.decisions().Summarize(resolved)
}

// CheckUpdates lists available upgrades and marks the tracked ones
// outdated. Untracked packages are reported but not added to state.
func (e *Engine) CheckUpdates(ctx context.Context) ([]manager.Update, error) {
	updates := e.scanner(ctx).CheckUpdates(ctx)
	if !e.state.Loaded() {
		return updates, nil
	}
	for _, u := range updates {
		name := u.Name
		if _, ok := e.state.Package(name); !ok && u.PackageID != "" {
			name = u.PackageID
		}
		err := e.state.MarkUpdateAvailable(name, u.LatestVersion)
		switch {
		case errors.Is(err, state.ErrUnknownPackage):
			e.logger.Debug("update for untracked package", "package", u.Name)
		case err != nil:
			return updates, err
		}
	}
	return updates, nil
}

// InstallDependency runs dep's install commands, records the outcome and,
// on success, verifies the result. The recorded action follows the current
// decision for the package: update, repair or install.
func (e *Engine) InstallDependency(ctx context.Context, dep advisor.Dependency, password string, events chan<- executor.Event) (executor.InstallResult, error) {
	if err := dep.Validate(); err != nil {
		return executor.InstallResult{Name: dep.Name}, err
	}
	action := state.ActionInstall
	switch e.decisions().Evaluate(dep.Name).Action {
	case decision.ActionUpdate:
		action = state.ActionUpdate
	case decision.ActionRepair:
		action = state.ActionRepair
	}

	res := e.installer(ctx).InstallDependency(ctx, dep, password, events)

	outcome := state.Outcome{
		Package:  dep.Name,
		Action:   action,
		Result:   state.ResultSuccess,
		Duration: res.Duration,
	}
	if !res.Success {
		outcome.Result = state.ResultFailed
		outcome.Err = res.Err
		if n := len(res.Results); n > 0 {
			outcome.Command = res.Results[n-1].Command
		}
	}
	if err := e.state.LogInstallation(outcome); err != nil {
		return res, fmt.Errorf("failed to record installation: %w", err)
	}
	if !res.Success {
		return res, nil
	}

	check := e.verifier.Verify(ctx, dep)
	if err := e.applyVerification(dep.Name, check); err != nil {
		return res, err
	}
	return res, nil
}

// VerifyInstallation runs dep's verify command. A tracked package has its
// version corrected, or is marked broken when the output does not match.
func (e *Engine) VerifyInstallation(ctx context.Context, dep advisor.Dependency) (verify.Result, error) {
	check := e.verifier.Verify(ctx, dep)
	if _, tracked := e.state.Package(dep.Name); !tracked {
		return check, nil
	}
	return check, e.applyVerification(dep.Name, check)
}

// VerifyAll verifies deps in order and applies each result to the packages
// tracked in state. Every result is also sent on progress when non-nil.
func (e *Engine) VerifyAll(ctx context.Context, deps []advisor.Dependency, progress chan<- verify.Result) (verify.Report, error) {
	rep := e.verifier.VerifyAll(ctx, deps, progress)
	var errs []error
	for _, check := range rep.Results {
		if _, tracked := e.state.Package(check.Name); !tracked {
			continue
		}
		if err := e.applyVerification(check.Name, check); err != nil {
			errs = append(errs, err)
		}
	}
	return rep, errors.Join(errs...)
}

func (e *Engine) applyVerification(name string, check verify.Result) error {
	switch {
	case check.Success:
		return e.state.UpdateAfterVerification(name, check.Version, "")
	case check.Mismatch():
		return e.state.MarkBroken(name)
	default:
		e.logger.Warn("installed package could not be verified", "package", name, "command", check.Command)
		return nil
	}
}

// GenerateUninstallPlan returns one plan per package. Names not tracked in
// state are planned with the detected manager as their source.
func (e *Engine) GenerateUninstallPlan(ctx context.Context, names []string) []advisor.PlanRecord {
	sys := e.DetectSystem(ctx).Descriptor()
	targets := make([]state.PackageRecord, 0, len(names))
	for _, n := range names {
		targets = append(targets, e.target(e.cfg.ResolveAlias(n), sys))
	}
	return uninstall.NewPlanner(e.advisor, e.logger.With("component", "uninstall")).GeneratePlan(ctx, targets, sys)
}

// ExecuteUninstall removes one package: plan, restore point, commands,
// absence check, state update.
func (e *Engine) ExecuteUninstall(ctx context.Context, name, password string, events chan<- executor.Event) UninstallResult {
	sys := e.DetectSystem(ctx).Descriptor()
	logger := e.logger.With("component", "uninstall")
	flow := &uninstall.Flow{
		Planner:  uninstall.NewPlanner(e.advisor, logger),
		Runner:   e.installer(ctx),
		Verifier: e.verifier,
		State:    e.state,
		Restore:  e.restore,
		System:   sys,
		Logger:   logger,
	}
	return flow.Execute(ctx, e.target(e.cfg.ResolveAlias(name), sys), password, events)
}

func (e *Engine) target(name string, sys state.SystemDescriptor) state.PackageRecord {
	if rec, ok := e.state.Package(name); ok {
		return rec
	}
	return state.PackageRecord{Name: name, Source: sys.PackageManager}
}

// Packages returns every tracked package sorted by name.
func (e *Engine) Packages() []state.PackageRecord {
	return e.state.Packages()
}

// Stats returns aggregate counts over the tracked state.
func (e *Engine) Stats() state.Stats {
	return e.state.Stats()
}

// ExportContext writes the current state to the export directory and
// returns the file path.
func (e *Engine) ExportContext(format string) (string, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return "", err
	}
	return export.Write(e.cfg.ExportDir, f, export.Build(e.state, e.now()))
}

// RestorePoints lists restore points, newest first.
func (e *Engine) RestorePoints() ([]*store.RestorePoint, error) {
	return e.restore.List()
}

// Undo reinstalls the packages recorded in restore point id. An id of zero
// selects the newest restore point. Each package name is sent on progress
// once handled.
func (e *Engine) Undo(ctx context.Context, id int64, password string, events chan<- executor.Event, progress chan<- string) (*restore.Result, error) {
	if id == 0 {
		points, err := e.restore.List()
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, errors.New("no restore points available")
		}
		id = points[0].ID
	}
	info := e.DetectSystem(ctx)
	def, ok := manager.Lookup(info.PackageManager)
	if !ok {
		return nil, fmt.Errorf("package manager %q is not supported", info.PackageManager)
	}
	return e.restore.Restore(ctx, id, eventInstaller{e.installer(ctx), events}, def, e.state, password, progress)
}

// CleanupRestorePoints removes restore point files older than maxAge.
func (e *Engine) CleanupRestorePoints(maxAge time.Duration) (int, error) {
	return e.restore.Cleanup(maxAge)
}

// Watch reloads state whenever the persisted document changes and calls
// onChange with the new stats. A positive interval also runs CheckUpdates
// on that period. It blocks until ctx is cancelled.
func (e *Engine) Watch(ctx context.Context, interval time.Duration, onChange func(state.Stats)) error {
	opts := watcher.Options{Logger: e.logger.With("component", "watcher")}
	if interval > 0 {
		opts.Interval = interval
		opts.OnTick = func(ctx context.Context) {
			updates, err := e.CheckUpdates(ctx)
			if err != nil {
				e.logger.Warn("periodic update check failed", "err", err)
				return
			}
			e.logger.Info("periodic update check", "updates", len(updates))
		}
	}
	return watcher.Watch(ctx, e.statePath, func() {
		e.state.Load()
		if onChange != nil {
			onChange(e.state.Stats())
		}
	}, opts)
}

// eventInstaller forwards restore commands to the installer with the
// caller's event channel attached.
type eventInstaller struct {
	in     *executor.Installer
	events chan<- executor.Event
}

func (i eventInstaller) ExecuteCommand(ctx context.Context, command, password string, events chan<- executor.Event) (executor.Output, error) {
	if events == nil {
		events = i.events
	}
	return i.in.ExecuteCommand(ctx, command, password, events)
}

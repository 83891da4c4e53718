package restore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/blackwell-systems/envstate/internal/executor"
	"github.com/blackwell-systems/envstate/internal/manager"
	"github.com/blackwell-systems/envstate/internal/state"
)

// Installer runs a single install command.
type Installer interface {
	ExecuteCommand(ctx context.Context, command, password string, events chan<- executor.Event) (executor.Output, error)
}

// Recorder receives the outcome of each reinstall.
type Recorder interface {
	LogInstallation(o state.Outcome) error
	UpdateAfterVerification(name, version, packageID string) error
}

// Result summarises a restore.
type Result struct {
	ID       int64    `json:"id"`
	Restored []string `json:"restored"`
	Latest   []string `json:"latest,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// Restore reinstalls every package of restore point id with def's install
// template. The recorded version is tried first, then the unversioned
// command. Every attempt is logged through rec. The name of each package is
// sent on progress, when non-nil, once it has been handled.
func (m *Manager) Restore(ctx context.Context, id int64, in Installer, def manager.Definition, rec Recorder, password string, progress chan<- string) (*Result, error) {
	rp, err := m.store.GetRestorePoint(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get restore point: %w", err)
	}

	data, err := loadFile(rp.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load restore point file: %w", err)
	}
	if data.Manager != "" && data.Manager != def.Name {
		m.logger.Warn("restore point was recorded with a different package manager", "recorded", data.Manager, "current", def.Name)
	}

	res := &Result{ID: id}
	for _, pkg := range data.Packages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		latest, err := m.restorePackage(ctx, pkg, in, def, rec, password)
		switch {
		case err != nil:
			res.Failed = append(res.Failed, fmt.Sprintf("%s: %v", pkg.Name, err))
			m.logger.Warn("failed to restore package", "package", pkg.Name, "err", err)
		case latest:
			res.Latest = append(res.Latest, pkg.Name)
			res.Restored = append(res.Restored, pkg.Name)
		default:
			res.Restored = append(res.Restored, formatRestoredPkg(pkg.Name, pkg.Version))
		}
		if progress != nil {
			select {
			case progress <- pkg.Name:
			case <-ctx.Done():
			}
		}
	}

	if len(res.Failed) > 0 {
		return res, fmt.Errorf("restored %d/%d packages, %d failures: %v",
			len(res.Restored), len(data.Packages), len(res.Failed), res.Failed)
	}
	return res, nil
}

// formatRestoredPkg returns "name@version" when version is known.
func formatRestoredPkg(name, version string) string {
	if version != "" && version != state.PendingVersion {
		return name + "@" + version
	}
	return name
}

// restorePackage installs one package. latest reports that the recorded
// version was unavailable and the unversioned command was used.
func (m *Manager) restorePackage(ctx context.Context, pkg *PackageEntry, in Installer, def manager.Definition, rec Recorder, password string) (latest bool, err error) {
	version := pkg.Version
	if version == state.PendingVersion {
		version = ""
	}

	target := pkg.Name
	if pkg.PackageID != "" {
		target = pkg.PackageID
	}

	start := time.Now()
	command := def.InstallCommand(target, version)
	_, err = in.ExecuteCommand(ctx, command, password, nil)
	if err != nil && version != "" && !executor.IsPermissionError(err) {
		m.logger.Info("recorded version unavailable, installing latest", "package", pkg.Name, "version", version)
		command = def.InstallCommand(target, "")
		_, err = in.ExecuteCommand(ctx, command, password, nil)
		latest = true
	}

	outcome := state.Outcome{
		Package:  pkg.Name,
		Action:   state.ActionInstall,
		Result:   state.ResultSuccess,
		Duration: time.Since(start),
		Command:  command,
	}
	if err != nil {
		outcome.Result = state.ResultFailed
		outcome.Err = err.Error()
	}
	if logErr := rec.LogInstallation(outcome); logErr != nil {
		m.logger.Warn("failed to record restore outcome", "package", pkg.Name, "err", logErr)
	}
	if err != nil {
		return false, fmt.Errorf("failed to install: %w", err)
	}

	if !latest && version != "" {
		if err := rec.UpdateAfterVerification(pkg.Name, version, pkg.PackageID); err != nil {
			m.logger.Warn("failed to record restored version", "package", pkg.Name, "err", err)
		}
	}
	return latest, nil
}

// loadFile reads and parses a restore point file.
func loadFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read restore point file: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse restore point JSON: %w", err)
	}

	return &data, nil
}

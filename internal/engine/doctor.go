package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blackwell-systems/envstate/internal/manager"
)

// Severity grades a failed check.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Check is one diagnostic line.
type Check struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
	Action   string   `json:"action,omitempty"`
}

// Diagnosis is the response of Doctor.
type Diagnosis struct {
	Checks   []Check `json:"checks"`
	Critical int     `json:"critical"`
	Warnings int     `json:"warnings"`
}

func (d *Diagnosis) add(c Check) {
	switch c.Severity {
	case SeverityCritical:
		d.Critical++
	case SeverityWarning:
		d.Warnings++
	}
	d.Checks = append(d.Checks, c)
}

// Doctor runs read-only health checks: package manager support and
// presence, state readability, restore point storage and advisory service
// configuration.
func (e *Engine) Doctor(ctx context.Context) Diagnosis {
	var d Diagnosis
	info := e.DetectSystem(ctx)

	def, supported := manager.Lookup(info.PackageManager)
	if !supported {
		d.add(Check{
			Name:     "package manager",
			Severity: SeverityCritical,
			Detail:   fmt.Sprintf("%q is not supported", info.PackageManager),
			Action:   "Supported managers: " + strings.Join(manager.Names(), ", "),
		})
	} else {
		d.add(Check{Name: "package manager", Severity: SeverityOK, Detail: def.Name + " on " + info.Platform})

		tool := def.Name
		if f := strings.Fields(def.ListCommand); len(f) > 0 {
			tool = f[0]
		}
		if e.installer(ctx).CommandExists(ctx, tool) {
			d.add(Check{Name: "manager binary", Severity: SeverityOK, Detail: tool + " found on PATH"})
		} else {
			d.add(Check{
				Name:     "manager binary",
				Severity: SeverityCritical,
				Detail:   tool + " not found on PATH",
				Action:   "Install " + def.Name + " or fix PATH",
			})
		}
	}

	if _, err := os.Stat(e.statePath); os.IsNotExist(err) {
		d.add(Check{
			Name:     "environment state",
			Severity: SeverityWarning,
			Detail:   "no state at " + e.statePath,
			Action:   "Run 'envstate scan'",
		})
	} else if !e.state.Loaded() {
		d.add(Check{
			Name:     "environment state",
			Severity: SeverityCritical,
			Detail:   "state at " + e.statePath + " is unreadable",
			Action:   "Run 'envstate scan' to reinitialize",
		})
	} else {
		st := e.state.Stats()
		d.add(Check{
			Name:     "environment state",
			Severity: SeverityOK,
			Detail:   fmt.Sprintf("%d packages tracked, %d history entries", st.TotalPackages, st.HistoryEntries),
		})
		if supported {
			d.add(e.driftCheck(ctx))
		}
	}

	if points, err := e.restore.List(); err != nil {
		d.add(Check{Name: "restore points", Severity: SeverityCritical, Detail: err.Error()})
	} else {
		d.add(Check{Name: "restore points", Severity: SeverityOK, Detail: fmt.Sprintf("%d recorded", len(points))})
	}

	switch {
	case e.advisor == nil:
		d.add(Check{
			Name:     "advisory service",
			Severity: SeverityWarning,
			Detail:   "not configured; uninstall plans use the generic remove command",
			Action:   "Set [advisor] endpoint in config.toml",
		})
	case e.cfg.Advisor.Endpoint != "" && e.cfg.Advisor.APIKey() == "":
		d.add(Check{
			Name:     "advisory service",
			Severity: SeverityWarning,
			Detail:   e.cfg.Advisor.Endpoint + " configured without an API key",
			Action:   "Export " + e.cfg.Advisor.APIKeyEnv,
		})
	default:
		d.add(Check{Name: "advisory service", Severity: SeverityOK, Detail: "configured"})
	}

	if !info.Elevated && !info.IsWindows() {
		d.add(Check{
			Name:     "privileges",
			Severity: SeverityOK,
			Detail:   "not root; sudo commands will prompt for a password",
		})
	} else if !info.Elevated {
		d.add(Check{
			Name:     "privileges",
			Severity: SeverityWarning,
			Detail:   "not running as Administrator",
			Action:   "Restart the terminal as Administrator before installing",
		})
	} else {
		d.add(Check{Name: "privileges", Severity: SeverityOK, Detail: "elevated"})
	}
	return d
}

func (e *Engine) driftCheck(ctx context.Context) Check {
	drift, err := e.CheckDrift(ctx)
	switch {
	case err != nil:
		return Check{Name: "state drift", Severity: SeverityWarning, Detail: err.Error()}
	case drift.Empty():
		return Check{Name: "state drift", Severity: SeverityOK, Detail: "state matches installed packages"}
	}
	return Check{
		Name:     "state drift",
		Severity: SeverityWarning,
		Detail:   fmt.Sprintf("%d installed package(s) untracked, %d tracked package(s) missing", len(drift.Untracked), len(drift.Missing)),
		Action:   "Run 'envstate scan' to resync",
	}
}

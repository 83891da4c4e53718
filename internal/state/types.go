package state

import (
	"strings"
	"time"
)

// SchemaVersion is the version written into every persisted snapshot.
const SchemaVersion = 1

// PendingVersion is recorded for freshly installed packages until a verify
// command reports the real version.
const PendingVersion = "pending"

// Status is the tracked condition of an installed package.
type Status string

const (
	StatusInstalled Status = "installed"
	StatusOutdated  Status = "outdated"
	StatusBroken    Status = "broken"
)

// Action names an operation recorded in the installation history.
type Action string

const (
	ActionInstall   Action = "install"
	ActionUpdate    Action = "update"
	ActionRepair    Action = "repair"
	ActionUninstall Action = "uninstall"
)

// Result is the outcome of a recorded action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailed  Result = "failed"
)

// PackageRecord is one tracked package. Records are keyed by the lower-cased
// name; Name keeps the display form.
type PackageRecord struct {
	Name            string    `json:"name" yaml:"name"`
	PackageID       string    `json:"package_id,omitempty" yaml:"package_id,omitempty"`
	Version         string    `json:"version" yaml:"version"`
	Source          string    `json:"source" yaml:"source"`
	Status          Status    `json:"status" yaml:"status"`
	UpdateAvailable bool      `json:"update_available" yaml:"update_available"`
	LatestVersion   string    `json:"latest_version,omitempty" yaml:"latest_version,omitempty"`
	DetectedAt      time.Time `json:"detected_at" yaml:"detected_at"`
	InstalledAt     time.Time `json:"installed_at" yaml:"installed_at"`
}

// HistoryEntry is an append-only record of one install/update/repair/uninstall.
type HistoryEntry struct {
	Package         string    `json:"package" yaml:"package"`
	Action          Action    `json:"action" yaml:"action"`
	Result          Result    `json:"result" yaml:"result"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds" yaml:"duration_seconds"`
	Error           string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// FailedInstallation is logged next to every failed HistoryEntry.
type FailedInstallation struct {
	Package          string    `json:"package" yaml:"package"`
	Error            string    `json:"error" yaml:"error"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	AttemptedCommand string    `json:"attempted_command" yaml:"attempted_command"`
}

// SystemDescriptor is the persisted subset of the detected system.
type SystemDescriptor struct {
	OS             string `json:"os" yaml:"os"`
	PackageManager string `json:"package_manager" yaml:"package_manager"`
	Arch           string `json:"arch" yaml:"arch"`
	Platform       string `json:"platform" yaml:"platform"`
}

// Snapshot is the full persisted environment document.
type Snapshot struct {
	SchemaVersion       int                       `json:"schema_version"`
	LastScan            time.Time                 `json:"last_scan"`
	System              SystemDescriptor          `json:"system"`
	InstalledTools      map[string]*PackageRecord `json:"installed_tools"`
	InstallationHistory []HistoryEntry            `json:"installation_history"`
	FailedInstallations []FailedInstallation      `json:"failed_installations"`
}

// Outcome describes a finished operation passed to LogInstallation.
type Outcome struct {
	Package  string
	Action   Action
	Result   Result
	Duration time.Duration
	Err      string
	Command  string
}

// Stats aggregates counts over the current snapshot.
type Stats struct {
	TotalPackages  int       `json:"total_packages" yaml:"total_packages"`
	HistoryEntries int       `json:"history_entries" yaml:"history_entries"`
	Failures       int       `json:"failures" yaml:"failures"`
	Outdated       int       `json:"outdated" yaml:"outdated"`
	Broken         int       `json:"broken" yaml:"broken"`
	LastScan       time.Time `json:"last_scan" yaml:"last_scan"`
}

// Key returns the map key for a package name.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

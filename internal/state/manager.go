// Package state owns the persisted environment snapshot: tracked packages,
// installation history and failures.
//
// Every mutating call rewrites the whole document through the configured
// Persister before it returns. The Manager assumes a single writer; two
// processes mutating the same file race and the later write wins.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Manager holds the in-memory snapshot and writes it through a Persister.
type Manager struct {
	persister Persister
	logger    *slog.Logger
	now       func() time.Time
	snap      *Snapshot
}

// NewManager creates a Manager. No snapshot is loaded until Load or
// Initialize is called.
func NewManager(p Persister, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		persister: p,
		logger:    logger,
		now:       time.Now,
	}
}

// Initialize builds a fresh snapshot from a scan and persists it. Any
// previously loaded snapshot, including its history, is replaced.
func (m *Manager) Initialize(sys SystemDescriptor, packages []PackageRecord) (*Snapshot, error) {
	now := m.now()
	snap := newSnapshot(sys)
	snap.LastScan = now

	for i := range packages {
		rec := packages[i]
		key := Key(rec.Name)
		if key == "" {
			continue
		}
		if rec.Status == "" {
			rec.Status = StatusInstalled
		}
		if rec.Source == "" {
			rec.Source = sys.PackageManager
		}
		if rec.DetectedAt.IsZero() {
			rec.DetectedAt = now
		}
		if rec.InstalledAt.IsZero() {
			rec.InstalledAt = rec.DetectedAt
		}
		snap.InstalledTools[key] = &rec
	}

	m.snap = snap
	if err := m.Save(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Load reads the persisted snapshot. It returns nil when nothing was saved or
// when the stored document cannot be decoded; callers treat nil as "scan and
// initialize again".
func (m *Manager) Load() *Snapshot {
	data, err := m.persister.Read()
	if err != nil {
		if !errors.Is(err, ErrNoState) {
			m.logger.Warn("environment state unreadable", "err", err)
		}
		m.snap = nil
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		m.logger.Warn("environment state corrupt, ignoring it", "err", err)
		m.snap = nil
		return nil
	}
	if snap.SchemaVersion != SchemaVersion {
		m.logger.Warn("environment state has unsupported schema version, ignoring it",
			"schema_version", snap.SchemaVersion)
		m.snap = nil
		return nil
	}
	if snap.InstalledTools == nil {
		snap.InstalledTools = make(map[string]*PackageRecord)
	}
	for key, rec := range snap.InstalledTools {
		if rec == nil {
			delete(snap.InstalledTools, key)
		}
	}

	m.snap = &snap
	return m.snap
}

// Snapshot returns the loaded snapshot, or nil.
func (m *Manager) Snapshot() *Snapshot {
	return m.snap
}

// Loaded reports whether a snapshot is in memory.
func (m *Manager) Loaded() bool {
	return m.snap != nil
}

// Package returns a copy of the record for name.
func (m *Manager) Package(name string) (PackageRecord, bool) {
	if m.snap == nil {
		return PackageRecord{}, false
	}
	rec, ok := m.snap.InstalledTools[Key(name)]
	if !ok {
		return PackageRecord{}, false
	}
	return *rec, true
}

// Packages returns copies of all records sorted by key.
func (m *Manager) Packages() []PackageRecord {
	if m.snap == nil {
		return nil
	}
	keys := make([]string, 0, len(m.snap.InstalledTools))
	for k := range m.snap.InstalledTools {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]PackageRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, *m.snap.InstalledTools[k])
	}
	return out
}

// History returns a copy of the installation history in insertion order.
func (m *Manager) History() []HistoryEntry {
	if m.snap == nil {
		return nil
	}
	out := make([]HistoryEntry, len(m.snap.InstallationHistory))
	copy(out, m.snap.InstallationHistory)
	return out
}

// LogInstallation appends a history entry, and a failure record when the
// outcome failed. A successful install inserts or overwrites the package
// record with a pending version. Successful updates and repairs clear the
// outdated/broken state.
func (m *Manager) LogInstallation(o Outcome) error {
	snap := m.ensure()
	now := m.now()

	entry := HistoryEntry{
		Package:         o.Package,
		Action:          o.Action,
		Result:          o.Result,
		Timestamp:       now,
		DurationSeconds: o.Duration.Seconds(),
	}
	if o.Err != "" {
		entry.Error = o.Err
	}
	snap.InstallationHistory = append(snap.InstallationHistory, entry)

	if o.Result == ResultFailed {
		snap.FailedInstallations = append(snap.FailedInstallations, FailedInstallation{
			Package:          o.Package,
			Error:            o.Err,
			Timestamp:        now,
			AttemptedCommand: o.Command,
		})
	}

	if o.Result == ResultSuccess {
		key := Key(o.Package)
		switch o.Action {
		case ActionInstall:
			snap.InstalledTools[key] = &PackageRecord{
				Name:        o.Package,
				Version:     PendingVersion,
				Source:      snap.System.PackageManager,
				Status:      StatusInstalled,
				DetectedAt:  now,
				InstalledAt: now,
			}
		case ActionUpdate, ActionRepair:
			if rec, ok := snap.InstalledTools[key]; ok {
				rec.Status = StatusInstalled
				rec.UpdateAvailable = false
				rec.LatestVersion = ""
				rec.Version = PendingVersion
				rec.InstalledAt = now
			}
		}
	}

	return m.Save()
}

// UpdateAfterVerification records the version reported by a verify command.
// An untracked package is added, since the verify command just proved it is
// present.
func (m *Manager) UpdateAfterVerification(name, version, packageID string) error {
	snap := m.ensure()
	key := Key(name)
	now := m.now()

	rec, ok := snap.InstalledTools[key]
	if !ok {
		rec = &PackageRecord{
			Name:        name,
			Source:      snap.System.PackageManager,
			DetectedAt:  now,
			InstalledAt: now,
		}
		snap.InstalledTools[key] = rec
	}
	if version != "" {
		rec.Version = version
	}
	if packageID != "" {
		rec.PackageID = packageID
	}
	if rec.LatestVersion != "" && rec.LatestVersion == rec.Version {
		rec.UpdateAvailable = false
		rec.LatestVersion = ""
	}
	if rec.UpdateAvailable {
		rec.Status = StatusOutdated
	} else {
		rec.Status = StatusInstalled
	}
	rec.DetectedAt = now

	return m.Save()
}

// MarkUpdateAvailable flags a tracked package as outdated.
func (m *Manager) MarkUpdateAvailable(name, latestVersion string) error {
	snap := m.ensure()
	rec, ok := snap.InstalledTools[Key(name)]
	if !ok {
		return fmt.Errorf("failed to mark update for %s: %w", name, ErrUnknownPackage)
	}
	rec.Status = StatusOutdated
	rec.UpdateAvailable = true
	rec.LatestVersion = latestVersion
	return m.Save()
}

// MarkBroken flags a tracked package whose verification did not match.
func (m *Manager) MarkBroken(name string) error {
	snap := m.ensure()
	rec, ok := snap.InstalledTools[Key(name)]
	if !ok {
		return fmt.Errorf("failed to mark %s broken: %w", name, ErrUnknownPackage)
	}
	rec.Status = StatusBroken
	return m.Save()
}

// RemovePackage deletes the record for name. Removing an untracked package
// is not an error.
func (m *Manager) RemovePackage(name string) error {
	snap := m.ensure()
	delete(snap.InstalledTools, Key(name))
	return m.Save()
}

// Stats returns aggregate counts. A zero Stats is returned when no snapshot
// is loaded.
func (m *Manager) Stats() Stats {
	if m.snap == nil {
		return Stats{}
	}
	st := Stats{
		TotalPackages:  len(m.snap.InstalledTools),
		HistoryEntries: len(m.snap.InstallationHistory),
		Failures:       len(m.snap.FailedInstallations),
		LastScan:       m.snap.LastScan,
	}
	for _, rec := range m.snap.InstalledTools {
		switch {
		case rec.Status == StatusBroken:
			st.Broken++
		case rec.UpdateAvailable || rec.Status == StatusOutdated:
			st.Outdated++
		}
	}
	return st
}

// Save writes the whole snapshot through the Persister.
func (m *Manager) Save() error {
	if m.snap == nil {
		return ErrNoState
	}
	data, err := json.MarshalIndent(m.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal environment state: %w", err)
	}
	if err := m.persister.Write(data); err != nil {
		return fmt.Errorf("failed to persist environment state: %w", err)
	}
	return nil
}

// ensure returns the loaded snapshot, starting an empty one when a mutation
// arrives before any scan.
func (m *Manager) ensure() *Snapshot {
	if m.snap == nil {
		m.snap = newSnapshot(SystemDescriptor{})
	}
	return m.snap
}

func newSnapshot(sys SystemDescriptor) *Snapshot {
	return &Snapshot{
		SchemaVersion:       SchemaVersion,
		System:              sys,
		InstalledTools:      make(map[string]*PackageRecord),
		InstallationHistory: []HistoryEntry{},
		FailedInstallations: []FailedInstallation{},
	}
}

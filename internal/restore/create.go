package restore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/envstate/internal/state"
	"github.com/blackwell-systems/envstate/internal/store"
)

// ErrNothingToRecord is returned by Create for an empty package list.
var ErrNothingToRecord = errors.New("no packages to record")

// Create writes a restore point for records and returns its ID.
func (m *Manager) Create(records []state.PackageRecord, reason string) (int64, error) {
	if len(records) == 0 {
		return 0, ErrNothingToRecord
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create restore directory: %w", err)
	}

	now := m.now()
	data := &Data{
		CreatedAt: now,
		Reason:    reason,
		Packages:  make([]*PackageEntry, 0, len(records)),
	}
	for _, rec := range records {
		if data.Manager == "" {
			data.Manager = rec.Source
		}
		data.Packages = append(data.Packages, &PackageEntry{
			Name:      rec.Name,
			PackageID: rec.PackageID,
			Version:   rec.Version,
			Source:    rec.Source,
		})
	}

	path, err := m.uniquePath(now)
	if err != nil {
		return 0, err
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal restore point: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return 0, fmt.Errorf("failed to write restore point file: %w", err)
	}

	id, err := m.store.InsertRestorePoint(reason, len(data.Packages), path)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to insert restore point: %w", err)
	}

	for _, pkg := range data.Packages {
		rpp := &store.RestorePointPackage{
			RestorePointID: id,
			PackageName:    pkg.Name,
			Version:        pkg.Version,
			Source:         pkg.Source,
		}
		if err := m.store.InsertRestorePointPackage(id, rpp); err != nil {
			return 0, fmt.Errorf("failed to insert restore point package %s: %w", pkg.Name, err)
		}
	}

	m.logger.Info("restore point created", "id", id, "reason", reason, "packages", len(data.Packages), "path", path)
	return id, nil
}

// uniquePath names the file YYYY-MM-DD-HHMMSS.json, adding a counter when
// two restore points land in the same second.
func (m *Manager) uniquePath(now time.Time) (string, error) {
	base := now.Format("2006-01-02-150405")
	path := filepath.Join(m.dir, base+".json")
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to check restore point file: %w", err)
		}
		path = filepath.Join(m.dir, fmt.Sprintf("%s-%d.json", base, i))
	}
}

// List returns all restore points, newest first.
func (m *Manager) List() ([]*store.RestorePoint, error) {
	points, err := m.store.ListRestorePoints()
	if err != nil {
		return nil, fmt.Errorf("failed to list restore points: %w", err)
	}
	return points, nil
}

// Cleanup removes restore point files older than maxAge. Database rows are
// kept as an audit log.
func (m *Manager) Cleanup(maxAge time.Duration) (int, error) {
	points, err := m.store.ListRestorePoints()
	if err != nil {
		return 0, fmt.Errorf("failed to list restore points: %w", err)
	}

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for _, rp := range points {
		if !rp.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(rp.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to delete restore point file %s: %w", rp.Path, err)
		}
		removed++
	}
	return removed, nil
}

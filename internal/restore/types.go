// Package restore records package lists before destructive operations and
// reinstalls them on request.
package restore

import (
	"log/slog"
	"time"

	"github.com/blackwell-systems/envstate/internal/store"
)

// Data is the JSON structure stored in restore point files.
type Data struct {
	CreatedAt time.Time       `json:"created_at"`
	Reason    string          `json:"reason"`
	Manager   string          `json:"manager"`
	Packages  []*PackageEntry `json:"packages"`
}

// PackageEntry is one package in a restore point file.
type PackageEntry struct {
	Name      string `json:"name"`
	PackageID string `json:"package_id,omitempty"`
	Version   string `json:"version"`
	Source    string `json:"source,omitempty"`
}

// Manager creates, lists and restores restore points.
type Manager struct {
	store  *store.Store
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a restore point Manager writing files under dir.
func New(store *store.Store, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

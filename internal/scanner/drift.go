package scanner

import (
	"sort"

	"github.com/blackwell-systems/envstate/internal/manager"
	"github.com/blackwell-systems/envstate/internal/state"
)

// Drift lists differences between tracked state and what is installed now.
type Drift struct {
	// Untracked packages are installed but have no record.
	Untracked []string `json:"untracked"`
	// Missing packages have a record but are no longer installed.
	Missing []string `json:"missing"`
}

// Empty reports whether state and the installed set agree.
func (d Drift) Empty() bool {
	return len(d.Untracked) == 0 && len(d.Missing) == 0
}

// CompareState matches installed packages to tracked records by lower-cased
// name or package ID. Both lists in the result are sorted.
func CompareState(tracked []state.PackageRecord, installed []manager.Package) Drift {
	known := make(map[string]bool, len(tracked)*2)
	for _, rec := range tracked {
		known[state.Key(rec.Name)] = true
		if rec.PackageID != "" {
			known[state.Key(rec.PackageID)] = true
		}
	}

	seen := make(map[string]bool, len(installed)*2)
	d := Drift{Untracked: []string{}, Missing: []string{}}
	for _, p := range installed {
		name, id := state.Key(p.Name), state.Key(p.PackageID)
		if name == "" {
			continue
		}
		seen[name] = true
		if id != "" {
			seen[id] = true
		}
		if !known[name] && (id == "" || !known[id]) {
			d.Untracked = append(d.Untracked, p.Name)
		}
	}
	for _, rec := range tracked {
		if !seen[state.Key(rec.Name)] && (rec.PackageID == "" || !seen[state.Key(rec.PackageID)]) {
			d.Missing = append(d.Missing, rec.Name)
		}
	}

	sort.Strings(d.Untracked)
	sort.Strings(d.Missing)
	return d
}

package scanner

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/blackwell-systems/envstate/internal/manager"
)

// CheckUpdates lists packages with a newer version available. Unsupported
// managers and failed commands yield an empty list.
func (s *Scanner) CheckUpdates(ctx context.Context) []manager.Update {
	updates, err := s.checkUpdates(ctx)
	if err != nil {
		s.logger.Warn("update check failed", "manager", s.manager, "err", err)
		return []manager.Update{}
	}
	s.logger.Info("update check complete", "manager", s.manager, "count", len(updates))
	return updates
}

func (s *Scanner) checkUpdates(ctx context.Context) ([]manager.Update, error) {
	def, ok := manager.Lookup(s.manager)
	if !ok || def.UpgradeCommand == "" {
		return nil, fmt.Errorf("unsupported package manager %q", s.manager)
	}
	parser, ok := manager.UpdateParserFor(def.Name)
	if !ok {
		return nil, fmt.Errorf("no upgrade parser for %q", def.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.updateTimeout)
	defer cancel()
	out, err := s.runner.Run(ctx, def.UpgradeCommand, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to run %q: %w", def.UpgradeCommand, err)
	}
	if !def.AcceptsUpgradeExit(out.ExitCode) {
		return nil, fmt.Errorf("%q exited with code %d", def.UpgradeCommand, out.ExitCode)
	}

	var updates []manager.Update
	for _, u := range parser.ParseUpdates(out.Stdout) {
		if !newer(u.CurrentVersion, u.LatestVersion) {
			s.logger.Debug("dropping non-upgrade", "package", u.Name, "current", u.CurrentVersion, "latest", u.LatestVersion)
			continue
		}
		updates = append(updates, u)
	}
	if updates == nil {
		updates = []manager.Update{}
	}
	return updates, nil
}

// newer reports whether latest should be offered over current. Versions
// that do not parse are trusted as-is.
func newer(current, latest string) bool {
	if current == "" || latest == "" {
		return true
	}
	cv, err := version.NewVersion(current)
	if err != nil {
		return true
	}
	lv, err := version.NewVersion(latest)
	if err != nil {
		return true
	}
	return lv.GreaterThan(cv)
}

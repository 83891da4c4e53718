package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/blackwell-systems/envstate/internal/manager"
	"github.com/blackwell-systems/envstate/internal/state"
)

// Scan lists installed packages. Any failure (unsupported manager, command
// error, timeout) is logged and yields an empty list.
func (s *Scanner) Scan(ctx context.Context) []manager.Package {
	pkgs, err := s.scan(ctx)
	if err != nil {
		s.logger.Warn("package scan failed", "manager", s.manager, "err", err)
		return []manager.Package{}
	}
	s.logger.Info("package scan complete", "manager", s.manager, "count", len(pkgs))
	return pkgs
}

func (s *Scanner) scan(ctx context.Context) ([]manager.Package, error) {
	def, ok := manager.Lookup(s.manager)
	if !ok {
		return nil, fmt.Errorf("unsupported package manager %q", s.manager)
	}
	parser, ok := manager.ParserFor(def.Name)
	if !ok {
		return nil, fmt.Errorf("no list parser for %q", def.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.scanTimeout)
	defer cancel()
	out, err := s.runner.Run(ctx, def.ListCommand, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to run %q: %w", def.ListCommand, err)
	}
	if out.ExitCode != 0 {
		return nil, fmt.Errorf("%q exited with code %d", def.ListCommand, out.ExitCode)
	}

	pkgs := parser.Parse(out.Stdout)
	if pkgs == nil {
		pkgs = []manager.Package{}
	}
	return pkgs, nil
}

// Records converts parsed packages into state records detected at now.
func Records(pkgs []manager.Package, source string, now time.Time) []state.PackageRecord {
	out := make([]state.PackageRecord, 0, len(pkgs))
	for _, p := range pkgs {
		src := p.Source
		if src == "" {
			src = source
		}
		out = append(out, state.PackageRecord{
			Name:       p.Name,
			PackageID:  p.PackageID,
			Version:    p.Version,
			Source:     src,
			Status:     state.StatusInstalled,
			DetectedAt: now,
		})
	}
	return out
}

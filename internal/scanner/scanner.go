// Package scanner runs the detected package manager's list and
// upgrade-list commands and parses what they print.
package scanner

import (
	"log/slog"
	"time"

	"github.com/blackwell-systems/envstate/internal/executor"
)

const (
	// DefaultScanTimeout bounds a list command.
	DefaultScanTimeout = 45 * time.Second
	// DefaultUpdateTimeout bounds an upgrade-list command.
	DefaultUpdateTimeout = 45 * time.Second
)

// Scanner reads the package inventory of one manager.
type Scanner struct {
	runner        executor.Runner
	manager       string
	scanTimeout   time.Duration
	updateTimeout time.Duration
	logger        *slog.Logger
}

// New creates a Scanner for manager. Zero timeouts use the defaults.
func New(r executor.Runner, manager string, scanTimeout, updateTimeout time.Duration, logger *slog.Logger) *Scanner {
	if scanTimeout <= 0 {
		scanTimeout = DefaultScanTimeout
	}
	if updateTimeout <= 0 {
		updateTimeout = DefaultUpdateTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		runner:        r,
		manager:       manager,
		scanTimeout:   scanTimeout,
		updateTimeout: updateTimeout,
		logger:        logger,
	}
}

// Manager returns the package manager this scanner reads.
func (s *Scanner) Manager() string {
	return s.manager
}

// Package engine wires every component behind a single handle. The command
// layer constructs one Engine at start-up and calls one method per
// operation; nothing here is a process-wide singleton.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/config"
	"github.com/blackwell-systems/envstate/internal/decision"
	"github.com/blackwell-systems/envstate/internal/executor"
	"github.com/blackwell-systems/envstate/internal/restore"
	"github.com/blackwell-systems/envstate/internal/scanner"
	"github.com/blackwell-systems/envstate/internal/state"
	"github.com/blackwell-systems/envstate/internal/store"
	"github.com/blackwell-systems/envstate/internal/system"
	"github.com/blackwell-systems/envstate/internal/verify"
)

// ErrNoAdvisor is returned by operations that need the advisory service when
// none is configured.
var ErrNoAdvisor = errors.New("no advisory service configured (set [advisor] endpoint in config.toml)")

// Options override the collaborators New would otherwise build from the
// configuration. Zero fields get the defaults.
type Options struct {
	Runner    executor.Runner
	Advisor   advisor.Service
	Persister state.Persister
	Store     *store.Store
	Detect    func(ctx context.Context) system.Info
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine is the handle threaded through every operation.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	runner  executor.Runner
	advisor advisor.Service
	detect  func(ctx context.Context) system.Info
	now     func() time.Time

	state     *state.Manager
	statePath string
	store     *store.Store
	ownsStore bool
	restore   *restore.Manager

	mu       sync.Mutex
	info     *system.Info
	verifier *verify.Verifier
}

// New builds an Engine from cfg and loads any persisted state. The SQLite
// database is always opened because restore points live there; with the
// sqlite backend it also holds the environment document.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		def, err := config.Default()
		if err != nil {
			return nil, err
		}
		cfg = def
	}
	e := &Engine{
		cfg:     cfg,
		logger:  opts.Logger,
		runner:  opts.Runner,
		advisor: opts.Advisor,
		detect:  opts.Detect,
		now:     opts.Now,
		store:   opts.Store,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.runner == nil {
		e.runner = executor.ShellRunner{Windows: runtime.GOOS == "windows"}
	}
	if e.detect == nil {
		e.detect = system.Detect
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.advisor == nil && cfg.Advisor.Endpoint != "" {
		e.advisor = advisor.NewHTTPClient(cfg.Advisor.Endpoint, cfg.Advisor.APIKey(), cfg.Advisor.Model)
	}

	if e.store == nil {
		s, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		e.store = s
		e.ownsStore = true
	}
	e.restore = restore.New(e.store, cfg.RestoreDir, e.logger.With("component", "restore"))

	persister := opts.Persister
	switch {
	case persister != nil:
		e.statePath = cfg.StatePath
	case cfg.StateBackend == config.BackendSQLite:
		persister = e.store
		e.statePath = cfg.DBPath
	default:
		persister = state.NewFileStore(cfg.StatePath)
		e.statePath = cfg.StatePath
	}
	e.state = state.NewManager(persister, e.logger.With("component", "state"))
	e.state.Load()

	e.verifier = verify.New(e.runner, cfg.Timeouts.Verify.Std(), e.logger.With("component", "verify"))
	return e, nil
}

// Close releases the database when the Engine opened it.
func (e *Engine) Close() error {
	if e.ownsStore && e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Config returns the configuration the Engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// State exposes the state manager for read access by the command layer.
func (e *Engine) State() *state.Manager { return e.state }

// StatePath is the file that changes when state is persisted.
func (e *Engine) StatePath() string { return e.statePath }

// DetectSystem probes the host once and caches the result.
func (e *Engine) DetectSystem(ctx context.Context) system.Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.info == nil {
		info := e.detect(ctx)
		e.info = &info
		e.logger.Debug("system detected", "os", info.OS, "manager", info.PackageManager, "arch", info.Arch)
	}
	return *e.info
}

func (e *Engine) installer(ctx context.Context) *executor.Installer {
	info := e.DetectSystem(ctx)
	return executor.New(e.runner, info.IsWindows(), e.cfg.Timeouts.Command.Std(), e.logger.With("component", "executor"))
}

func (e *Engine) scanner(ctx context.Context) *scanner.Scanner {
	info := e.DetectSystem(ctx)
	return scanner.New(e.runner, info.PackageManager,
		e.cfg.Timeouts.Scan.Std(), e.cfg.Timeouts.UpdateCheck.Std(),
		e.logger.With("component", "scanner", "manager", info.PackageManager))
}

func (e *Engine) decisions() *decision.Engine {
	return decision.New(e.state)
}

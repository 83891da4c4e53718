// Package watcher follows the environment state file and runs periodic
// work while a watch session is open.
//
// The file's directory is watched rather than the file itself, so the
// watch survives editors and tools that replace the file by rename. Bursts
// of events are coalesced before the callback runs.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before reporting a change.
const DefaultDebounce = 250 * time.Millisecond

// Options configures Watch.
type Options struct {
	// Debounce coalesces events; zero uses DefaultDebounce.
	Debounce time.Duration
	// Interval runs OnTick periodically when both are set.
	Interval time.Duration
	OnTick   func(ctx context.Context)
	Logger   *slog.Logger
}

// Watch calls onChange each time path is written, created or replaced,
// and OnTick every Interval, until ctx is cancelled. The directory holding
// path is created if needed. Callbacks run on the calling goroutine.
func Watch(ctx context.Context, path string, onChange func(), opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.Info("watching state file", "path", abs)

	var tick <-chan time.Time
	if opts.Interval > 0 && opts.OnTick != nil {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// settle fires once the event burst is over; nil while idle.
	var settle <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("file watcher closed")
			}
			if filepath.Clean(ev.Name) != abs || !relevant(ev.Op) {
				continue
			}
			logger.Debug("state file event", "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			settle = timer.C

		case <-settle:
			settle = nil
			onChange()

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("file watcher closed")
			}
			logger.Warn("file watcher error", "err", err)

		case <-tick:
			opts.OnTick(ctx)
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) || op.Has(fsnotify.Rename)
}

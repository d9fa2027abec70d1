package command

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads a rules file into a Policy whenever the file changes.
// A file that fails to parse leaves the previous rules active.
//
// Watcher is not restart-safe: after Stop, create a new instance.
type Watcher struct {
	path   string
	policy *Policy
	logger zerolog.Logger

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	reloads uint64
}

// NewWatcher creates a watcher for path feeding p.
func NewWatcher(path string, p *Policy, logger zerolog.Logger) *Watcher {
	if p == nil {
		panic("policy is required")
	}
	return &Watcher{
		path:   path,
		policy: p,
		logger: logger.With().Str("component", "rules-watcher").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start begins watching. It watches the parent directory so editors that
// save via rename are picked up.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = fw

	go w.loop(ctx, filepath.Base(w.path))
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

// Reloads returns how many times a new rule set has been installed.
func (w *Watcher) Reloads() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) loop(ctx context.Context, file string) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, w.Reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("rules watcher error")
		}
	}
}

// Reload reads the rules file now and swaps it in on success.
func (w *Watcher) Reload() {
	rules, err := LoadRules(w.path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("rules reload failed, keeping previous rules")
		return
	}
	w.policy.Swap(rules)

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.logger.Info().Str("path", w.path).Int("allowed", len(rules.allow)).Msg("command rules reloaded")
}

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"resumeforge/internal/errors"
)

// PromptWatcher watches prompt template files and calls onChange, debounced,
// whenever one of them is rewritten.
type PromptWatcher struct {
	mu sync.Mutex

	files         []string
	lastModTime   map[string]time.Time
	debounceDelay time.Duration
	debounceTimer *time.Timer

	fsWatcher *fsnotify.Watcher
	reload    chan struct{}

	onChange func()
	logger   *errors.Logger
}

// NewPromptWatcher creates a watcher for files
func NewPromptWatcher(files []string, debounceDelay time.Duration, onChange func(), logger *errors.Logger) (*PromptWatcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no prompt files to watch")
	}
	if debounceDelay <= 0 {
		debounceDelay = time.Second
	}

	abs := make([]string, 0, len(files))
	for _, f := range files {
		p, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve prompt file %s: %w", f, err)
		}
		abs = append(abs, p)
	}

	return &PromptWatcher{
		files:         abs,
		lastModTime:   make(map[string]time.Time),
		debounceDelay: debounceDelay,
		reload:        make(chan struct{}, 1),
		onChange:      onChange,
		logger:        logger,
	}, nil
}

// Run watches until ctx is cancelled
func (pw *PromptWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			pw.logger.LogError(err, "Failed to close prompt file watcher")
		}
	}()
	pw.fsWatcher = watcher

	pw.updateModTimes()

	// Watch directories so editors that replace files atomically are still seen
	dirs := make(map[string]bool)
	for _, f := range pw.files {
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}

	pw.logger.Info("Prompt file watcher started", "files", pw.files, "debounce_delay", pw.debounceDelay)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if pw.shouldProcessEvent(event) {
				pw.scheduleReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			pw.logger.LogError(err, "Prompt file watcher error")

		case <-pw.reload:
			if pw.hasAnyFileChanged() {
				pw.logger.Info("Prompt files changed, reloading templates")
				pw.onChange()
			}

		case <-ctx.Done():
			pw.mu.Lock()
			if pw.debounceTimer != nil {
				pw.debounceTimer.Stop()
			}
			pw.mu.Unlock()
			pw.logger.Info("Prompt file watcher stopped")
			return nil
		}
	}
}

// Files returns the watched paths
func (pw *PromptWatcher) Files() []string {
	return slices.Clone(pw.files)
}

func (pw *PromptWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || !slices.Contains(pw.files, name) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (pw *PromptWatcher) scheduleReload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	pw.debounceTimer = time.AfterFunc(pw.debounceDelay, func() {
		select {
		case pw.reload <- struct{}{}:
		default:
		}
	})
}

func (pw *PromptWatcher) updateModTimes() {
	for _, file := range pw.files {
		if stat, err := os.Stat(file); err == nil {
			pw.lastModTime[file] = stat.ModTime()
		}
	}
}

func (pw *PromptWatcher) hasFileChanged(file string) bool {
	stat, err := os.Stat(file)
	if err != nil {
		return false
	}
	lastMod, exists := pw.lastModTime[file]
	if !exists || stat.ModTime().After(lastMod) {
		pw.lastModTime[file] = stat.ModTime()
		return true
	}
	return false
}

func (pw *PromptWatcher) hasAnyFileChanged() bool {
	changed := false
	for _, f := range pw.files {
		if pw.hasFileChanged(f) {
			changed = true
		}
	}
	return changed
}

package app

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/statuscache"
)

// WatchTargets names the files and directories whose changes trigger a reload.
type WatchTargets struct {
	ConfigPath string
	// Files are watched individually through their parent directory.
	Files []string
	// Dirs are watched for any definition file change.
	Dirs []string
}

type WatcherOptions struct {
	Logger   *zap.Logger
	Debounce time.Duration
	// Targets is consulted at start and again after every reload.
	Targets func() WatchTargets
	// Reload runs after a quiet period following matching events.
	Reload func(ctx context.Context, configChanged bool) error
}

// Watcher debounces filesystem events into reloads.
type Watcher struct {
	logger   *zap.Logger
	debounce time.Duration
	targets  func() WatchTargets
	reload   func(ctx context.Context, configChanged bool) error
}

func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Targets == nil || opts.Reload == nil {
		return nil, errors.New("watcher requires targets and reload")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = domain.DefaultReloadDebounce
	}
	return &Watcher{
		logger:   logger.Named("watcher"),
		debounce: debounce,
		targets:  opts.Targets,
		reload:   opts.Reload,
	}, nil
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := make(map[string]struct{})
	targets := w.targets()
	w.addDirs(watcher, watched, targets)

	var timer *time.Timer
	configChanged := false
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				w.logger.Warn("config watcher error", zap.Error(err))
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			match, isConfig := shouldReloadForPath(event.Name, targets)
			if !match {
				continue
			}
			configChanged = configChanged || isConfig
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case <-timerChan(timer):
			timer = nil
			changed := configChanged
			configChanged = false
			if err := w.reload(ctx, changed); err != nil {
				w.logger.Warn("reload failed", zap.Bool("config_changed", changed), zap.Error(err))
			}
			targets = w.targets()
			w.addDirs(watcher, watched, targets)
		}
	}
}

func (w *Watcher) addDirs(watcher *fsnotify.Watcher, watched map[string]struct{}, targets WatchTargets) {
	for _, dir := range watchDirs(targets) {
		if _, ok := watched[dir]; ok {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("config watcher add failed", zap.String("path", dir), zap.Error(err))
			continue
		}
		watched[dir] = struct{}{}
	}
}

func watchDirs(targets WatchTargets) []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(dir string) {
		if dir == "" || dir == "." {
			return
		}
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	if targets.ConfigPath != "" {
		add(filepath.Dir(targets.ConfigPath))
	}
	for _, file := range targets.Files {
		add(filepath.Dir(file))
	}
	for _, dir := range targets.Dirs {
		add(dir)
	}
	return dirs
}

// shouldReloadForPath reports whether path is a target, and whether it is the
// config file itself.
func shouldReloadForPath(path string, targets WatchTargets) (bool, bool) {
	if path == "" {
		return false, false
	}
	path = filepath.Clean(path)
	if targets.ConfigPath != "" && path == filepath.Clean(targets.ConfigPath) {
		return true, true
	}
	for _, file := range targets.Files {
		if path == filepath.Clean(file) {
			return true, false
		}
	}
	if !statuscache.IsDefinitionFile(path) {
		return false, false
	}
	parent := filepath.Dir(path)
	for _, dir := range targets.Dirs {
		if dir != "" && parent == filepath.Clean(dir) {
			return true, false
		}
	}
	return false, false
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

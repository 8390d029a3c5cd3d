package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/feedline/component"
	"github.com/c360/feedline/errors"
)

// DefaultDebounce is how long the watcher waits after the last file
// event before reloading. Editors save with multiple events in quick
// succession; the delay collapses them into one reload.
const DefaultDebounce = 250 * time.Millisecond

// Update is a configuration change notification.
type Update struct {
	// Config is the full validated configuration after the change.
	Config *Config

	// Changed lists the dot paths that differ from the previous
	// configuration, e.g. "monitor.thresholds.fill_warning". Empty on
	// the initial subscription push.
	Changed []string
}

// WatcherDeps carries the watcher's collaborators.
type WatcherDeps struct {
	// Loader is required. Its layers name the files to watch.
	Loader *Loader

	// Safe is required. Successful reloads replace its config.
	Safe *SafeConfig

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the reload debounce delay.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceDelay = d
		}
	}
}

// Watcher reloads configuration when any layer file changes. A reload
// that fails to parse or validate is logged and discarded; the
// previous configuration stays in force. Successful reloads replace
// the SafeConfig and notify subscribers with the changed paths.
type Watcher struct {
	loader        *Loader
	safe          *SafeConfig
	logger        *slog.Logger
	debounceDelay time.Duration

	fsw   *fsnotify.Watcher
	bases map[string]bool

	mu          sync.Mutex
	state       component.State
	debounce    *time.Timer
	subscribers []chan Update
	cancel      context.CancelFunc

	wg sync.WaitGroup
}

// NewWatcher creates a config file watcher.
func NewWatcher(deps WatcherDeps, opts ...WatcherOption) *Watcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	w := &Watcher{
		loader:        deps.Loader,
		safe:          deps.Safe,
		logger:        deps.Logger,
		debounceDelay: DefaultDebounce,
		state:         component.StateCreated,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name identifies the watcher in logs and health reports.
func (w *Watcher) Name() string {
	return "config-watcher"
}

// Initialize verifies the watcher has a loader with layers to watch.
func (w *Watcher) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != component.StateCreated {
		return errors.WrapInvalid(fmt.Errorf("cannot initialize from state %s", w.state),
			"config", "Initialize", "check lifecycle state")
	}
	if w.loader == nil || w.safe == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Initialize",
			"verify loader and safe config")
	}
	if len(w.loader.Layers()) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Initialize",
			"verify watch layers")
	}

	w.bases = make(map[string]bool)
	for _, layer := range w.loader.Layers() {
		w.bases[filepath.Base(layer)] = true
	}

	w.state = component.StateInitialized
	return nil
}

// Start begins watching the layer directories.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state == component.StateStarted {
		w.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "config", "Start", "check lifecycle state")
	}
	if w.state != component.StateInitialized {
		w.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("cannot start from state %s", w.state),
			"config", "Start", "check lifecycle state")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return errors.WrapTransient(err, "config", "Start", "create file watcher")
	}

	dirs := make(map[string]bool)
	for _, layer := range w.loader.Layers() {
		dirs[filepath.Dir(layer)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			w.mu.Unlock()
			return errors.WrapTransient(fmt.Errorf("watch %s: %w", dir, err),
				"config", "Start", "watch config directory")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.state = component.StateStarted
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(runCtx, fsw)

	w.logger.Info("Config watcher started",
		"layers", w.loader.Layers(), "debounce", w.debounceDelay)
	return nil
}

// loop forwards relevant file events into the debounced reload.
func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.bases[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounceReload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// debounceReload schedules a reload, resetting any pending one.
func (w *Watcher) debounceReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.debounceDelay, w.reload)
}

// reload loads all layers again and swaps the config if it validates.
func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != component.StateStarted {
		return
	}

	previous := w.safe.Get()

	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous config", "error", err)
		return
	}

	changed := diffPaths(previous, cfg)
	if len(changed) == 0 {
		w.logger.Debug("Config files changed but configuration is identical")
		return
	}

	if err := w.safe.Update(cfg); err != nil {
		w.logger.Warn("Reloaded config rejected, keeping previous config", "error", err)
		return
	}

	w.logger.Info("Configuration reloaded", "changed", changed)
	if restart := RequiresRestart(changed); len(restart) > 0 {
		w.logger.Warn("Some configuration changes require a restart to take effect",
			"changed", restart)
	}

	update := Update{Config: cfg, Changed: changed}
	for _, ch := range w.subscribers {
		select {
		case ch <- update:
		default:
			// Subscriber hasn't drained the last update; it can
			// always read the current state from SafeConfig.
		}
	}
}

// OnChange subscribes to configuration updates. The current
// configuration is pushed immediately; later sends never block, so a
// slow subscriber misses intermediate updates rather than stalling the
// watcher.
func (w *Watcher) OnChange() <-chan Update {
	ch := make(chan Update, 1)
	ch <- Update{Config: w.safe.Get()}

	w.mu.Lock()
	w.subscribers = append(w.subscribers, ch)
	w.mu.Unlock()

	return ch
}

// Stop ends the watch loop within the timeout.
func (w *Watcher) Stop(timeout time.Duration) error {
	w.mu.Lock()
	switch w.state {
	case component.StateStopped:
		w.mu.Unlock()
		return nil
	case component.StateCreated, component.StateInitialized:
		w.state = component.StateStopped
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.cancel = nil
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if fsw != nil {
		_ = fsw.Close()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		w.mu.Lock()
		w.state = component.StateFailed
		w.mu.Unlock()
		return errors.WrapTransient(errors.ErrShuttingDown, "config", "Stop", "await watch loop")
	}

	w.mu.Lock()
	w.state = component.StateStopped
	for _, ch := range w.subscribers {
		close(ch)
	}
	w.subscribers = nil
	w.mu.Unlock()

	w.logger.Info("Config watcher stopped")
	return nil
}

// RequiresRestart filters changed paths down to those a running daemon
// cannot apply in place. Log level and monitor thresholds hot-reload;
// everything else is wired at startup.
func RequiresRestart(paths []string) []string {
	var out []string
	for _, p := range paths {
		if isHotPath(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func isHotPath(path string) bool {
	return path == "log.level" || strings.HasPrefix(path, "monitor.thresholds")
}

// diffPaths returns the sorted dot paths where the two configs differ.
func diffPaths(a, b *Config) []string {
	am, err := configMap(a)
	if err != nil {
		return nil
	}
	bm, err := configMap(b)
	if err != nil {
		return nil
	}

	var out []string
	walkDiff("", am, bm, &out)
	sort.Strings(out)
	return out
}

func configMap(c *Config) (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func walkDiff(prefix string, a, b map[string]any, out *[]string) {
	keys := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}

	for k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}

		av, aok := a[k]
		bv, bok := b[k]
		if aok && bok {
			amap, aIsMap := av.(map[string]any)
			bmap, bIsMap := bv.(map[string]any)
			if aIsMap && bIsMap {
				walkDiff(path, amap, bmap, out)
				continue
			}
			if !reflect.DeepEqual(av, bv) {
				*out = append(*out, path)
			}
			continue
		}
		*out = append(*out, path)
	}
}

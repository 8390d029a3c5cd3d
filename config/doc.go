// Package config provides configuration management for the feedline
// daemon.
//
// This package handles loading, validation, and live reload of the
// daemon configuration from JSON or YAML files and FEEDLINE_*
// environment variables.
//
// # Core Components
//
// Config: the full daemon configuration, composed of the stream,
// transport, monitor, NATS, metrics, log, and security sections. The
// section types come from the packages that consume them, so a config
// file field maps one-to-one onto a component knob.
//
// SafeConfig: thread-safe wrapper using an RWMutex and deep cloning to
// prevent concurrent access issues and accidental mutations.
//
// Loader: loads configuration with layer merging (base + overrides),
// duration string conversion, JSON Schema checking per layer, and
// environment variable overrides.
//
// Watcher: watches the layer files with fsnotify and reloads on
// change, debounced. A reload that fails schema or semantic validation
// is discarded with a warning; the previous configuration stays in
// force.
//
// # Basic Usage
//
// Loading configuration from files with layer merging:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Live Reload
//
// The watcher feeds updates to subscribers:
//
//	safe := config.NewSafeConfig(cfg)
//	watcher := config.NewWatcher(config.WatcherDeps{Loader: loader, Safe: safe})
//	if err := watcher.Initialize(); err != nil {
//		log.Fatal(err)
//	}
//	if err := watcher.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer watcher.Stop(5 * time.Second)
//
//	for update := range watcher.OnChange() {
//		log.Printf("config changed: %v", update.Changed)
//	}
//
// Log level and monitor threshold changes apply to the running daemon.
// Everything else, the transport sections above all, is wired at
// startup; RequiresRestart reports which changed paths need one.
//
// # Environment Variable Overrides
//
// Configuration values can be overridden using environment variables:
//
//	# Override the transport endpoint
//	export FEEDLINE_TRANSPORT_URL="https://feed.example.com/v2/stream"
//
//	# Override NATS credentials without putting them in a file
//	export FEEDLINE_NATS_USERNAME="ingest"
//	export FEEDLINE_NATS_PASSWORD="secret"
//
// # Layer Merging
//
// Configuration layers are merged with last-wins semantics:
//
//	base.json:
//	  {"log": {"level": "debug", "format": "text"}}
//
//	production.json:
//	  {"log": {"level": "info"}}
//
//	Result:
//	  {"log": {"level": "info", "format": "text"}}
//
// # Security
//
// The package includes security validation:
//   - File size limits (10MB max) to prevent memory exhaustion
//   - JSON depth validation (100 levels max) to prevent DoS attacks
//   - Path validation to prevent directory traversal
//   - Regular file checks (no symlinks or device files)
//   - JSON Schema checking per layer, so typos fail loudly instead of
//     silently falling back to defaults
package config

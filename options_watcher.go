// options_watcher.go: Hot reload of loader options from a watched file
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// OptionsWatcherConfig tunes the options file watcher.
type OptionsWatcherConfig struct {
	// PollInterval controls how often the options file is checked for
	// changes. Loader options change rarely, so the default is relaxed.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// CacheTTL bounds how long file stat results are cached.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// DefaultOptionsWatcherConfig returns watcher settings suitable for
// infrequently edited operator configuration.
func DefaultOptionsWatcherConfig() OptionsWatcherConfig {
	return OptionsWatcherConfig{
		PollInterval: 10 * time.Second,
		CacheTTL:     5 * time.Second,
	}
}

// OptionsWatcher watches a loader options file and applies the
// runtime-adjustable subset to a live loader on every change.
//
// Only tunables are hot-applied; structural options such as the storage
// root require a loader restart and are ignored on reload.
type OptionsWatcher struct {
	loader  *ModuleLoader
	logger  Logger
	path    string
	watcher *argus.Watcher
	running atomic.Bool
}

// NewOptionsWatcher creates a watcher for the given options file, bound to
// the loader that will receive tunable updates.
func NewOptionsWatcher(loader *ModuleLoader, path string, config OptionsWatcherConfig, logger Logger) *OptionsWatcher {
	logger = ensureLogger(logger)

	argusConfig := argus.Config{
		PollInterval:    config.PollInterval,
		CacheTTL:        config.CacheTTL,
		MaxWatchedFiles: 1,
		ErrorHandler: func(err error, filepath string) {
			logger.Error("Options watcher error", "error", err, "path", filepath)
		},
	}

	return &OptionsWatcher{
		loader:  loader,
		logger:  logger,
		path:    path,
		watcher: argus.New(argusConfig),
	}
}

// Start loads and applies the current options, then begins watching for
// changes. Calling Start on a running watcher is an error.
func (w *OptionsWatcher) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return NewOptionsWatcherError("options watcher already running", nil)
	}

	options, err := LoadLoaderOptions(w.path)
	if err != nil {
		w.running.Store(false)
		return err
	}
	w.loader.ApplyTunables(options.Tunables())

	if err := w.watcher.Watch(w.path, w.handleChange); err != nil {
		w.running.Store(false)
		return NewOptionsWatcherError("failed to watch options file", err)
	}
	if err := w.watcher.Start(); err != nil {
		w.running.Store(false)
		return NewOptionsWatcherError("failed to start options watcher", err)
	}

	w.logger.Info("Options watcher started", "path", w.path)
	return nil
}

// Stop halts file watching. The loader keeps the last applied tunables.
func (w *OptionsWatcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := w.watcher.Stop(); err != nil {
		return NewOptionsWatcherError("failed to stop options watcher", err)
	}
	w.logger.Info("Options watcher stopped", "path", w.path)
	return nil
}

// handleChange reloads the options file and applies the tunable subset.
// Parse and validation failures keep the previous tunables in effect.
func (w *OptionsWatcher) handleChange(event argus.ChangeEvent) {
	if event.IsDelete {
		w.logger.Warn("Options file was deleted, keeping current tunables", "path", event.Path)
		return
	}

	options, err := LoadLoaderOptions(event.Path)
	if err != nil {
		w.logger.Error("Failed to reload loader options", "error", err, "path", event.Path)
		return
	}
	w.loader.ApplyTunables(options.Tunables())
	w.logger.Info("Loader options reloaded", "path", event.Path)
}

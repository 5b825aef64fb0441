// config.go: Loader options, defaults, validation and file-based loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// LoaderOptions configures the module loader.
type LoaderOptions struct {
	// StorageRoot is the directory under which module packages are extracted.
	StorageRoot string `yaml:"storage_root" json:"storage_root"`

	// HookTimeout bounds every lifecycle hook invocation.
	HookTimeout time.Duration `yaml:"hook_timeout" json:"hook_timeout"`

	// HealthCheckTimeout bounds health hook invocations.
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout" json:"health_check_timeout"`

	// MaxLoadedModules caps the number of concurrently loaded modules.
	// Zero means unlimited.
	MaxLoadedModules int `yaml:"max_loaded_modules" json:"max_loaded_modules"`

	// LoadableExtensions lists file extensions recognized as loadable code
	// during structural validation.
	LoadableExtensions []string `yaml:"loadable_extensions" json:"loadable_extensions"`

	// Audit configures the tamper-aware audit trail for load and unload
	// operations. Disabled by default.
	Audit argus.AuditConfig `yaml:"audit" json:"audit"`
}

// DefaultLoaderOptions returns loader options with production defaults.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		StorageRoot:        filepath.Join(os.TempDir(), "modreg"),
		HookTimeout:        30 * time.Second,
		HealthCheckTimeout: 5 * time.Second,
		MaxLoadedModules:   100,
		LoadableExtensions: []string{".wasm", ".so", ".js", ".py"},
		Audit:              argus.AuditConfig{Enabled: false},
	}
}

// Validate checks the options for internal consistency.
func (o *LoaderOptions) Validate() error {
	if o.StorageRoot == "" {
		return NewOptionsValidationError("storage_root cannot be empty", nil)
	}
	if o.HookTimeout <= 0 {
		return NewOptionsValidationError("hook_timeout must be positive", nil)
	}
	if o.HealthCheckTimeout <= 0 {
		return NewOptionsValidationError("health_check_timeout must be positive", nil)
	}
	if o.MaxLoadedModules < 0 {
		return NewOptionsValidationError("max_loaded_modules cannot be negative", nil)
	}
	if len(o.LoadableExtensions) == 0 {
		return NewOptionsValidationError("loadable_extensions cannot be empty", nil)
	}
	for _, ext := range o.LoadableExtensions {
		if !strings.HasPrefix(ext, ".") {
			return NewOptionsValidationError("loadable extension must start with '.': "+ext, nil)
		}
	}
	return nil
}

// loaderOptionsFile mirrors LoaderOptions with string durations so operators
// can write "30s" instead of nanosecond integers.
type loaderOptionsFile struct {
	StorageRoot        string            `yaml:"storage_root" json:"storage_root"`
	HookTimeout        string            `yaml:"hook_timeout" json:"hook_timeout"`
	HealthCheckTimeout string            `yaml:"health_check_timeout" json:"health_check_timeout"`
	MaxLoadedModules   *int              `yaml:"max_loaded_modules" json:"max_loaded_modules"`
	LoadableExtensions []string          `yaml:"loadable_extensions" json:"loadable_extensions"`
	Audit              argus.AuditConfig `yaml:"audit" json:"audit"`
}

// LoadLoaderOptions reads loader options from a YAML or JSON file, applying
// defaults for omitted fields. The format is chosen by file extension.
func LoadLoaderOptions(path string) (LoaderOptions, error) {
	options := DefaultLoaderOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return options, NewOptionsNotFoundError(path)
		}
		return options, NewOptionsParseError(path, err)
	}

	var file loaderOptionsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &file)
	default:
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return options, NewOptionsParseError(path, err)
	}

	if file.StorageRoot != "" {
		options.StorageRoot = file.StorageRoot
	}
	if file.HookTimeout != "" {
		timeout, parseErr := time.ParseDuration(file.HookTimeout)
		if parseErr != nil {
			return options, NewOptionsParseError(path, parseErr)
		}
		options.HookTimeout = timeout
	}
	if file.HealthCheckTimeout != "" {
		timeout, parseErr := time.ParseDuration(file.HealthCheckTimeout)
		if parseErr != nil {
			return options, NewOptionsParseError(path, parseErr)
		}
		options.HealthCheckTimeout = timeout
	}
	if file.MaxLoadedModules != nil {
		options.MaxLoadedModules = *file.MaxLoadedModules
	}
	if len(file.LoadableExtensions) > 0 {
		options.LoadableExtensions = file.LoadableExtensions
	}
	options.Audit = file.Audit

	if err := options.Validate(); err != nil {
		return options, err
	}
	return options, nil
}

// Tunables is the subset of loader options that can change at runtime
// without reconstructing the loader.
type Tunables struct {
	HookTimeout        time.Duration
	HealthCheckTimeout time.Duration
	MaxLoadedModules   int
}

// Tunables extracts the runtime-adjustable subset of the options.
func (o *LoaderOptions) Tunables() Tunables {
	return Tunables{
		HookTimeout:        o.HookTimeout,
		HealthCheckTimeout: o.HealthCheckTimeout,
		MaxLoadedModules:   o.MaxLoadedModules,
	}
}

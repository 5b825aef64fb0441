// config_test.go: Loader options tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoaderOptionsValid(t *testing.T) {
	options := DefaultLoaderOptions()
	require.NoError(t, options.Validate())
	assert.Equal(t, 30*time.Second, options.HookTimeout)
	assert.Equal(t, 5*time.Second, options.HealthCheckTimeout)
	assert.Contains(t, options.LoadableExtensions, ".py")
}

func TestLoaderOptionsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*LoaderOptions)
	}{
		{"empty storage root", func(o *LoaderOptions) { o.StorageRoot = "" }},
		{"zero hook timeout", func(o *LoaderOptions) { o.HookTimeout = 0 }},
		{"negative health timeout", func(o *LoaderOptions) { o.HealthCheckTimeout = -time.Second }},
		{"negative max modules", func(o *LoaderOptions) { o.MaxLoadedModules = -1 }},
		{"no extensions", func(o *LoaderOptions) { o.LoadableExtensions = nil }},
		{"extension without dot", func(o *LoaderOptions) { o.LoadableExtensions = []string{"py"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			options := DefaultLoaderOptions()
			tc.mutate(&options)
			err := options.Validate()
			require.Error(t, err)
			assert.Equal(t, ErrCodeOptionsValidation, ErrorCode(err))
		})
	}
}

func TestLoadLoaderOptionsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader.yaml")
	content := `
storage_root: /var/lib/modreg
hook_timeout: 45s
health_check_timeout: 2s
max_loaded_modules: 10
loadable_extensions: [".wasm", ".js"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	options, err := LoadLoaderOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/modreg", options.StorageRoot)
	assert.Equal(t, 45*time.Second, options.HookTimeout)
	assert.Equal(t, 2*time.Second, options.HealthCheckTimeout)
	assert.Equal(t, 10, options.MaxLoadedModules)
	assert.Equal(t, []string{".wasm", ".js"}, options.LoadableExtensions)
}

func TestLoadLoaderOptionsAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_loaded_modules: 3\n"), 0o640))

	options, err := LoadLoaderOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, options.MaxLoadedModules)
	assert.Equal(t, DefaultLoaderOptions().HookTimeout, options.HookTimeout)
	assert.Equal(t, DefaultLoaderOptions().StorageRoot, options.StorageRoot)
}

func TestLoadLoaderOptionsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader.json")
	content := `{"hook_timeout": "10s", "max_loaded_modules": 5}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	options, err := LoadLoaderOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, options.HookTimeout)
	assert.Equal(t, 5, options.MaxLoadedModules)
}

func TestLoadLoaderOptionsMissingFile(t *testing.T) {
	_, err := LoadLoaderOptions(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeOptionsNotFound, ErrorCode(err))
}

func TestLoadLoaderOptionsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hook_timeout: fast\n"), 0o640))

	_, err := LoadLoaderOptions(path)
	require.Error(t, err)
	assert.Equal(t, ErrCodeOptionsParse, ErrorCode(err))
}

func TestTunablesSubset(t *testing.T) {
	options := DefaultLoaderOptions()
	options.HookTimeout = 7 * time.Second
	options.MaxLoadedModules = 42

	tunables := options.Tunables()
	assert.Equal(t, 7*time.Second, tunables.HookTimeout)
	assert.Equal(t, 42, tunables.MaxLoadedModules)
	assert.Equal(t, options.HealthCheckTimeout, tunables.HealthCheckTimeout)
}

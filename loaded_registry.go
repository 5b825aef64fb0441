// loaded_registry.go: Registry of loaded modules with per-module serialization
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// LoadedModule is the live record of a module currently resident in the
// loader: its identity, extracted working directory, runtime namespace,
// code unit, resolved callables and lifecycle state.
type LoadedModule struct {
	ModuleID      string
	ModuleName    string
	ModuleVersion string
	Manifest      *ManifestModel
	Namespace     string
	Dir           string
	Unit          CodeUnit
	Installation  *Installation
	EntryPoints   map[string]EntryPointFunc
	EventHandlers map[string]EventHandlerFunc
	LoadedAt      time.Time

	// admitted is the dynamic loader that synthesized this module's
	// namespace; a runtime swap must not strand the namespace in the old
	// loader's table, so release goes back through the same loader.
	admitted *DynamicLoader

	state       atomic.Int32
	initialized atomic.Bool
}

// State returns the module's current lifecycle state.
func (m *LoadedModule) State() ModuleState {
	return ModuleState(m.state.Load())
}

func (m *LoadedModule) setState(state ModuleState) {
	m.state.Store(int32(state))
}

// IsInitialized reports whether the module's lifecycle hooks completed.
func (m *LoadedModule) IsInitialized() bool {
	return m.initialized.Load()
}

func (m *LoadedModule) markInitialized() {
	m.initialized.Store(true)
}

// Configuration returns the tenant installation's configuration, or nil when
// the module was loaded without one.
func (m *LoadedModule) Configuration() map[string]any {
	if m.Installation == nil {
		return nil
	}
	return m.Installation.Configuration
}

// LoadedRegistry tracks loaded modules and serializes operations per module ID.
//
// Concurrent loads of distinct modules proceed in parallel; concurrent
// operations on the same module ID queue behind a per-module mutex obtained
// via LockModule. Read accessors take only the registry's own lock and never
// block behind an in-flight load.
type LoadedRegistry struct {
	mu      sync.RWMutex
	modules map[string]*LoadedModule

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewLoadedRegistry creates an empty loaded-module registry.
func NewLoadedRegistry() *LoadedRegistry {
	return &LoadedRegistry{
		modules: make(map[string]*LoadedModule),
		locks:   make(map[string]*sync.Mutex),
	}
}

// LockModule acquires the per-module mutex for the given module ID and
// returns the corresponding unlock function. Mutexes are created on first
// use and retained so repeated loads of the same module keep queueing on
// the same lock.
func (r *LoadedRegistry) LockModule(moduleID string) func() {
	r.lockMu.Lock()
	lock, ok := r.locks[moduleID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[moduleID] = lock
	}
	r.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Get returns the loaded module for the given ID, or nil when not loaded.
func (r *LoadedRegistry) Get(moduleID string) *LoadedModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[moduleID]
}

// Has reports whether the given module ID is currently loaded.
func (r *LoadedRegistry) Has(moduleID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[moduleID]
	return ok
}

// Put registers a loaded module, enforcing the module cap under the
// registry's own write lock so two concurrent loads of distinct IDs cannot
// both slip past the limit. A maxModules of zero or less means no cap.
// Registering an ID that is already present is a loading error; the caller
// holds the per-module lock, so a duplicate here indicates a pipeline bug
// rather than a race.
func (r *LoadedRegistry) Put(module *LoadedModule, maxModules int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[module.ModuleID]; ok {
		return NewAlreadyLoadedError(module.ModuleID)
	}
	if maxModules > 0 && len(r.modules) >= maxModules {
		return NewMaxModulesReachedError(maxModules)
	}
	r.modules[module.ModuleID] = module
	return nil
}

// Remove deletes the loaded module for the given ID and returns it, or nil
// when the ID was not loaded.
func (r *LoadedRegistry) Remove(moduleID string) *LoadedModule {
	r.mu.Lock()
	defer r.mu.Unlock()
	module := r.modules[moduleID]
	delete(r.modules, moduleID)
	return module
}

// Count returns the number of currently loaded modules.
func (r *LoadedRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// IDs returns the sorted IDs of all currently loaded modules.
func (r *LoadedRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns a snapshot of all currently loaded modules, ordered by ID.
func (r *LoadedRegistry) List() []*LoadedModule {
	r.mu.RLock()
	modules := make([]*LoadedModule, 0, len(r.modules))
	for _, module := range r.modules {
		modules = append(modules, module)
	}
	r.mu.RUnlock()
	sort.Slice(modules, func(i, j int) bool {
		return modules[i].ModuleID < modules[j].ModuleID
	})
	return modules
}

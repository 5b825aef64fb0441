// module_loader.go: Module loading facade orchestrating the full pipeline
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/agilira/argus"
	"github.com/agilira/go-timecache"
)

// ModuleLoader is the public facade of the loading runtime.
//
// A load walks the full admission pipeline: descriptor and installation
// lookup, dependency revalidation against the tenant's installed set,
// package extraction, structural validation, runtime load, reference
// resolution and lifecycle initialization. Any failure rolls back every
// step already taken, so a failed load leaves no registry entry, no
// namespace and no extracted files behind.
//
// Operations on the same module ID are serialized; distinct modules load
// and unload concurrently.
type ModuleLoader struct {
	store  ModuleStore
	blobs  BlobStore
	logger Logger

	hostRuntime *HostRuntime
	extractor   *PackageExtractor
	validator   *StructuralValidator
	dynamic     atomic.Pointer[DynamicLoader]
	resolver    *ReferenceResolver
	lifecycle   *LifecycleManager
	hookRunner  *HookRunner
	healthRuns  *HookRunner
	registry    *LoadedRegistry

	auditLogger *argus.AuditLogger

	optionsMu sync.RWMutex
	options   LoaderOptions

	handlersMu sync.RWMutex
	handlers   []LoaderEventHandler

	shutdownMu sync.RWMutex
	closed     atomic.Bool
}

// NewModuleLoader creates a module loader over the given stores.
//
// The default code runtime is an in-process HostRuntime; register code unit
// factories with RegisterCodeUnit or swap the runtime with SetRuntime before
// loading.
func NewModuleLoader(store ModuleStore, blobs BlobStore, options LoaderOptions, logger Logger) (*ModuleLoader, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	logger = ensureLogger(logger)

	extractor, err := NewPackageExtractor(options.StorageRoot, logger)
	if err != nil {
		return nil, err
	}

	var auditLogger *argus.AuditLogger
	if options.Audit.Enabled {
		auditLogger, err = argus.NewAuditLogger(options.Audit)
		if err != nil {
			return nil, NewOptionsValidationError("failed to initialize audit logger", err)
		}
	}

	hostRuntime := NewHostRuntime()
	hookRunner := NewHookRunner(options.HookTimeout, logger)
	healthRunner := NewHookRunner(options.HealthCheckTimeout, logger)

	loader := &ModuleLoader{
		store:       store,
		blobs:       blobs,
		logger:      logger,
		hostRuntime: hostRuntime,
		extractor:   extractor,
		validator:   NewStructuralValidator(options.LoadableExtensions, logger),
		resolver:    NewReferenceResolver(logger),
		lifecycle:   NewLifecycleManager(hookRunner, healthRunner, logger),
		hookRunner:  hookRunner,
		healthRuns:  healthRunner,
		registry:    NewLoadedRegistry(),
		auditLogger: auditLogger,
		options:     options,
	}
	loader.dynamic.Store(NewDynamicLoader(hostRuntime, logger))
	return loader, nil
}

// RegisterCodeUnit registers a code unit factory with the default in-process
// runtime, keyed by module name. Calls are ignored after SetRuntime replaced
// the default runtime.
func (l *ModuleLoader) RegisterCodeUnit(moduleName string, factory CodeUnitFactory) {
	l.hostRuntime.Register(moduleName, factory)
}

// SetRuntime replaces the code runtime used for subsequent loads. The swap
// is atomic, so it is safe against in-flight loads; modules already loaded
// keep their original code units and are released through the loader that
// admitted them.
func (l *ModuleLoader) SetRuntime(runtime CodeRuntime) {
	l.dynamic.Store(NewDynamicLoader(runtime, l.logger))
}

// AddEventHandler registers a handler for loader lifecycle events. Handlers
// run synchronously on the loading goroutine; panics are recovered.
func (l *ModuleLoader) AddEventHandler(handler LoaderEventHandler) {
	if handler == nil {
		return
	}
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers = append(l.handlers, handler)
}

// ApplyTunables applies the runtime-adjustable option subset, typically from
// an options watcher reacting to a configuration file change.
func (l *ModuleLoader) ApplyTunables(tunables Tunables) {
	l.optionsMu.Lock()
	if tunables.HookTimeout > 0 {
		l.options.HookTimeout = tunables.HookTimeout
		l.hookRunner.SetTimeout(tunables.HookTimeout)
	}
	if tunables.HealthCheckTimeout > 0 {
		l.options.HealthCheckTimeout = tunables.HealthCheckTimeout
		l.healthRuns.SetTimeout(tunables.HealthCheckTimeout)
	}
	if tunables.MaxLoadedModules >= 0 {
		l.options.MaxLoadedModules = tunables.MaxLoadedModules
	}
	l.optionsMu.Unlock()

	l.logger.Info("Loader tunables applied",
		"hook_timeout", tunables.HookTimeout,
		"health_check_timeout", tunables.HealthCheckTimeout,
		"max_loaded_modules", tunables.MaxLoadedModules)
}

// LoadModule loads the given module for a tenant and transitions it to ready.
func (l *ModuleLoader) LoadModule(ctx context.Context, moduleID, companyID string) (*LoadedModule, error) {
	if l.closed.Load() {
		return nil, NewRegistryClosedError()
	}
	l.shutdownMu.RLock()
	defer l.shutdownMu.RUnlock()
	if l.closed.Load() {
		return nil, NewRegistryClosedError()
	}

	unlock := l.registry.LockModule(moduleID)
	defer unlock()
	return l.loadLocked(ctx, moduleID, companyID)
}

// loadLocked runs the load pipeline. Caller holds the per-module lock and a
// shutdown read lock.
func (l *ModuleLoader) loadLocked(ctx context.Context, moduleID, companyID string) (*LoadedModule, error) {
	if l.registry.Has(moduleID) {
		return nil, NewAlreadyLoadedError(moduleID)
	}

	// Fast-fail before the pipeline runs; the cap is enforced for real by
	// the registry insert, which counts and admits under one write lock.
	l.optionsMu.RLock()
	maxModules := l.options.MaxLoadedModules
	l.optionsMu.RUnlock()
	if maxModules > 0 && l.registry.Count() >= maxModules {
		return nil, NewMaxModulesReachedError(maxModules)
	}

	descriptor, err := l.store.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if descriptor.Manifest == nil {
		return nil, NewManifestParseError(nil)
	}
	manifest := descriptor.Manifest

	installation, err := l.store.GetInstallation(ctx, moduleID, companyID)
	if err != nil {
		return nil, err
	}

	// Resolution ran when the installation was approved; the installed set
	// may have changed since, so dependencies and conflicts are revalidated
	// here against current state.
	if err := l.revalidate(ctx, descriptor, companyID); err != nil {
		l.emitLoadFailure(moduleID, descriptor, companyID, err)
		return nil, err
	}

	module, err := l.runPipeline(ctx, descriptor, installation)
	if err != nil {
		l.emitLoadFailure(moduleID, descriptor, companyID, err)
		return nil, err
	}

	if err := l.registry.Put(module, maxModules); err != nil {
		l.rollback(ctx, module, rollbackAll)
		l.emitLoadFailure(moduleID, descriptor, companyID, err)
		return nil, err
	}

	l.logger.Info("Module loaded",
		"module_id", moduleID,
		"module", manifest.Name,
		"version", manifest.Version,
		"namespace", module.Namespace,
		"company_id", companyID)
	l.audit("module_loaded", map[string]any{
		"module_id":  moduleID,
		"module":     manifest.Name,
		"version":    manifest.Version,
		"company_id": companyID,
		"namespace":  module.Namespace,
	})
	l.emit(LoaderEvent{
		Type:      "module_loaded",
		Timestamp: timecache.CachedTime(),
		ModuleID:  moduleID,
		Module:    manifest.Name,
		Version:   manifest.Version,
		CompanyID: companyID,
	})
	return module, nil
}

// revalidate confirms the tenant's installed set still satisfies the
// module's required dependencies and declared conflicts.
func (l *ModuleLoader) revalidate(ctx context.Context, descriptor *ModuleDescriptor, companyID string) error {
	installed, err := l.store.ListInstalledModules(ctx, companyID)
	if err != nil {
		return NewStoreFailureError("list installed modules", err)
	}

	installedNames := make(map[string]*ModuleDescriptor, len(installed))
	for _, entry := range installed {
		installedNames[entry.Name] = entry
	}

	manifest := descriptor.Manifest
	for _, dep := range manifest.RequiredModuleDependencies() {
		if _, ok := installedNames[dep]; !ok {
			return NewDependencyNotInstalledError(manifest.Name, dep)
		}
	}
	for _, conflicting := range manifest.Conflicts {
		if _, ok := installedNames[conflicting]; ok {
			return NewIncompatibleInstalledError(manifest.Name, conflicting)
		}
	}
	for _, entry := range installed {
		if entry.ID == descriptor.ID || entry.Manifest == nil {
			continue
		}
		for _, conflicting := range entry.Manifest.Conflicts {
			if conflicting == manifest.Name {
				return NewIncompatibleInstalledError(manifest.Name, entry.Name)
			}
		}
	}
	return nil
}

// rollbackStage marks how far the pipeline progressed before a failure.
type rollbackStage int

const (
	rollbackExtracted rollbackStage = iota
	rollbackLoaded
	rollbackAll
)

// runPipeline performs extraction through initialization, rolling back every
// completed step on failure.
func (l *ModuleLoader) runPipeline(ctx context.Context, descriptor *ModuleDescriptor, installation *Installation) (*LoadedModule, error) {
	manifest := descriptor.Manifest

	module := &LoadedModule{
		ModuleID:      descriptor.ID,
		ModuleName:    manifest.Name,
		ModuleVersion: manifest.Version,
		Manifest:      manifest,
		Installation:  installation,
		LoadedAt:      timecache.CachedTime(),
	}
	module.setState(StateExtracting)

	blob, err := l.blobs.OpenPackage(ctx, descriptor.ID)
	if err != nil {
		return nil, NewStoreFailureError("open module package", err)
	}
	dir, err := l.extractor.Extract(manifest.Name, manifest.Version, blob)
	closeErr := blob.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		l.logger.Warn("Failed to close package blob", "module", manifest.Name, "error", closeErr)
	}

	module.Dir = dir
	module.setState(StateValidating)

	if err := l.validator.Validate(dir, manifest); err != nil {
		l.rollback(ctx, module, rollbackExtracted)
		return nil, err
	}

	module.setState(StateLoading)
	dynamic := l.dynamic.Load()
	namespace, unit, err := dynamic.Load(ctx, descriptor.ID, dir, manifest)
	if err != nil {
		l.rollback(ctx, module, rollbackExtracted)
		return nil, err
	}
	module.Namespace = namespace
	module.Unit = unit
	module.admitted = dynamic
	module.setState(StateLoaded)

	entryPoints, eventHandlers, err := l.resolver.Resolve(manifest, unit.Capabilities())
	if err != nil {
		l.rollback(ctx, module, rollbackLoaded)
		return nil, err
	}
	module.EntryPoints = entryPoints
	module.EventHandlers = eventHandlers

	if err := l.lifecycle.Initialize(ctx, module, installation.Configuration); err != nil {
		l.rollback(ctx, module, rollbackAll)
		return nil, err
	}
	return module, nil
}

// rollback undoes pipeline steps up to and including the given stage.
// Failures here are logged, never propagated; the original error wins.
func (l *ModuleLoader) rollback(ctx context.Context, module *LoadedModule, stage rollbackStage) {
	module.setState(StateFailed)

	if stage >= rollbackAll {
		if err := l.lifecycle.Cleanup(ctx, module); err != nil {
			l.logger.Warn("Cleanup hook failed during rollback",
				"module", module.ModuleName, "error", err)
		}
	}
	if stage >= rollbackLoaded {
		if err := module.Unit.Close(); err != nil {
			l.logger.Warn("Code unit close failed during rollback",
				"module", module.ModuleName, "error", err)
		}
		module.admitted.Release(module.Namespace)
	}
	if err := l.extractor.Remove(module.ModuleName, module.ModuleVersion); err != nil {
		l.logger.Warn("Workdir removal failed during rollback",
			"module", module.ModuleName, "error", err)
	}
}

// UnloadModule unloads a module. The result always reports the outcome;
// errors during teardown are folded into the result's cause and never
// propagated, so bulk unload paths can keep going.
func (l *ModuleLoader) UnloadModule(ctx context.Context, moduleID string) UnloadResult {
	if l.closed.Load() {
		return UnloadResult{ModuleID: moduleID, Cause: NewRegistryClosedError()}
	}
	l.shutdownMu.RLock()
	defer l.shutdownMu.RUnlock()

	unlock := l.registry.LockModule(moduleID)
	defer unlock()
	return l.unloadLocked(ctx, moduleID)
}

// unloadLocked tears down a loaded module. Caller holds the per-module lock.
func (l *ModuleLoader) unloadLocked(ctx context.Context, moduleID string) UnloadResult {
	module := l.registry.Get(moduleID)
	if module == nil {
		return UnloadResult{ModuleID: moduleID, Cause: NewModuleNotLoadedError(moduleID)}
	}

	module.setState(StateUnloading)
	var cause error

	if err := l.lifecycle.Cleanup(ctx, module); err != nil {
		cause = err
		l.logger.Warn("Cleanup hook failed during unload",
			"module", module.ModuleName, "error", err)
	}
	if err := module.Unit.Close(); err != nil && cause == nil {
		cause = err
	}
	module.admitted.Release(module.Namespace)
	if err := l.extractor.Remove(module.ModuleName, module.ModuleVersion); err != nil && cause == nil {
		cause = err
	}
	l.registry.Remove(moduleID)

	l.logger.Info("Module unloaded",
		"module_id", moduleID,
		"module", module.ModuleName,
		"version", module.ModuleVersion)
	l.audit("module_unloaded", map[string]any{
		"module_id": moduleID,
		"module":    module.ModuleName,
		"version":   module.ModuleVersion,
	})
	l.emit(LoaderEvent{
		Type:      "module_unloaded",
		Timestamp: timecache.CachedTime(),
		ModuleID:  moduleID,
		Module:    module.ModuleName,
		Version:   module.ModuleVersion,
		Error:     cause,
	})
	return UnloadResult{ModuleID: moduleID, Unloaded: true, Cause: cause}
}

// ReloadModule unloads and reloads a module under a single per-module
// critical section, so no concurrent load can slip between the two halves.
func (l *ModuleLoader) ReloadModule(ctx context.Context, moduleID, companyID string) (*LoadedModule, error) {
	if l.closed.Load() {
		return nil, NewRegistryClosedError()
	}
	l.shutdownMu.RLock()
	defer l.shutdownMu.RUnlock()

	unlock := l.registry.LockModule(moduleID)
	defer unlock()

	if l.registry.Has(moduleID) {
		if result := l.unloadLocked(ctx, moduleID); !result.Unloaded {
			return nil, result.Cause
		}
	}
	module, err := l.loadLocked(ctx, moduleID, companyID)
	if err != nil {
		return nil, err
	}
	l.emit(LoaderEvent{
		Type:      "module_reloaded",
		Timestamp: timecache.CachedTime(),
		ModuleID:  moduleID,
		Module:    module.ModuleName,
		Version:   module.ModuleVersion,
		CompanyID: companyID,
	})
	return module, nil
}

// HealthCheckModule reports the normalized health of a module. Modules not
// currently loaded report not_loaded rather than an error.
func (l *ModuleLoader) HealthCheckModule(ctx context.Context, moduleID string) ModuleHealth {
	module := l.registry.Get(moduleID)
	if module == nil {
		return ModuleHealth{
			Status:    HealthNotLoaded,
			LastCheck: timecache.CachedTime(),
		}
	}
	return l.lifecycle.HealthCheck(ctx, module)
}

// IsModuleLoaded reports whether the module is currently loaded.
func (l *ModuleLoader) IsModuleLoaded(moduleID string) bool {
	return l.registry.Has(moduleID)
}

// GetLoadedModule returns the loaded module for the given ID, or nil.
func (l *ModuleLoader) GetLoadedModule(moduleID string) *LoadedModule {
	return l.registry.Get(moduleID)
}

// GetLoadedModules returns a snapshot of all loaded modules, ordered by ID.
func (l *ModuleLoader) GetLoadedModules() []*LoadedModule {
	return l.registry.List()
}

// Stats returns a snapshot of the loading runtime, including a per-module
// health summary obtained by running each module's health hook.
func (l *ModuleLoader) Stats(ctx context.Context) LoaderStats {
	l.optionsMu.RLock()
	maxModules := l.options.MaxLoadedModules
	l.optionsMu.RUnlock()

	modules := l.registry.List()
	stats := LoaderStats{
		LoadedModules:  len(modules),
		MaxModules:     maxModules,
		ModulesByState: make(map[string]int),
		Health:         make(map[string]HealthState, len(modules)),
	}
	for _, module := range modules {
		stats.ModulesByState[module.State().String()]++
		stats.Health[module.ModuleID] = l.lifecycle.HealthCheck(ctx, module).Status
	}
	return stats
}

// Shutdown unloads every module and closes the loader. Subsequent loads fail
// with a registry-closed error. Individual unload failures are collected, not
// fatal; shutdown keeps going and reports the count at the end.
func (l *ModuleLoader) Shutdown(ctx context.Context) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.shutdownMu.Lock()
	defer l.shutdownMu.Unlock()

	var failed int
	var firstCause error
	for _, moduleID := range l.registry.IDs() {
		unlock := l.registry.LockModule(moduleID)
		result := l.unloadLocked(ctx, moduleID)
		unlock()
		if result.Cause != nil {
			failed++
			if firstCause == nil {
				firstCause = result.Cause
			}
		}
	}

	if l.auditLogger != nil {
		if err := l.auditLogger.Close(); err != nil {
			l.logger.Warn("Failed to close audit logger", "error", err)
		}
	}

	l.emit(LoaderEvent{Type: "shutdown", Timestamp: timecache.CachedTime()})
	l.logger.Info("Module loader shut down", "failed_unloads", failed)

	if failed > 0 {
		return NewShutdownFailedError(failed, firstCause)
	}
	return nil
}

func (l *ModuleLoader) emitLoadFailure(moduleID string, descriptor *ModuleDescriptor, companyID string, cause error) {
	event := LoaderEvent{
		Type:      "module_load_failed",
		Timestamp: timecache.CachedTime(),
		ModuleID:  moduleID,
		CompanyID: companyID,
		Error:     cause,
	}
	if descriptor != nil {
		event.Module = descriptor.Name
		event.Version = descriptor.Version
	}
	l.logger.Error("Module load failed",
		"module_id", moduleID,
		"company_id", companyID,
		"error", cause)
	l.audit("module_load_failed", map[string]any{
		"module_id":  moduleID,
		"company_id": companyID,
		"error":      cause.Error(),
	})
	l.emit(event)
}

// emit delivers an event to every registered handler, isolating the loader
// from handler panics.
func (l *ModuleLoader) emit(event LoaderEvent) {
	l.handlersMu.RLock()
	handlers := make([]LoaderEventHandler, len(l.handlers))
	copy(handlers, l.handlers)
	l.handlersMu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					l.logger.Warn("Loader event handler panicked",
						"event", event.Type, "panic", recovered)
				}
			}()
			handler(event)
		}()
	}
}

// audit records a loader operation in the tamper-aware audit trail when
// auditing is enabled.
func (l *ModuleLoader) audit(eventType string, context map[string]any) {
	if l.auditLogger == nil {
		return
	}
	l.auditLogger.LogSecurityEvent(eventType, "Module loader operation", context)
}

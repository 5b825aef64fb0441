// code_runtime.go: Pluggable code-unit runtime and the in-process host runtime
//
// The "load code unit" step is a pluggable boundary: the loader's contract
// (extract -> validate -> load -> resolve -> initialize) is unchanged whether
// the runtime is in-process, an out-of-process worker, or a sandboxed
// interpreter. Loaded code exposes a fixed capability record populated via
// one registration call at load time; the loader never introspects module
// code reflectively.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"context"
	"sync"
	"sync/atomic"
)

// HookFunc is an optional lifecycle hook (main, initialize, cleanup) exposed
// by a module's code unit. The configuration map is the tenant installation's
// configuration. Hooks must honor ctx; the lifecycle manager bounds every
// invocation with a timeout.
type HookFunc func(ctx context.Context, config map[string]any) error

// HealthHookFunc is the optional health_check hook. Its return value is
// normalized by the health monitor: structured maps pass through, anything
// else is wrapped as a healthy result with the value under details.
type HealthHookFunc func(ctx context.Context) (any, error)

// EntryPointFunc is a named callable exposed by a module's code unit.
type EntryPointFunc func(ctx context.Context, payload map[string]any) (any, error)

// EventHandlerFunc is a callable bound to an event-name pattern.
type EventHandlerFunc func(ctx context.Context, eventName string, payload map[string]any) error

// CapabilityRecord is the fixed registration surface a loaded code unit
// populates once at load time. Entry points are keyed by declared entry-point
// name; event handlers are keyed by the manifest's "module.path:function"
// handler reference.
type CapabilityRecord struct {
	Main          HookFunc
	Initialize    HookFunc
	Cleanup       HookFunc
	HealthCheck   HealthHookFunc
	EntryPoints   map[string]EntryPointFunc
	EventHandlers map[string]EventHandlerFunc
}

// CodeUnit is a loaded module code unit bound to one namespace.
type CodeUnit interface {
	// Capabilities returns the record the unit registered at load time.
	Capabilities() *CapabilityRecord

	// Close releases the unit's runtime resources. Must be idempotent.
	Close() error
}

// CodeRuntime loads a validated module tree into an isolated execution
// context. Implementations must not share mutable state between namespaces:
// a failed load must leave no trace of the namespace behind.
type CodeRuntime interface {
	Load(ctx context.Context, namespace, dir string, manifest *ManifestModel) (CodeUnit, error)
}

// CodeUnitFactory builds a capability record for one module. The factory is
// the in-process ABI's registration call: it receives the extracted tree and
// the manifest and returns everything the module exposes.
type CodeUnitFactory func(ctx context.Context, dir string, manifest *ManifestModel) (*CapabilityRecord, error)

// HostRuntime is the default in-process CodeRuntime. Module code units are
// Go factories registered by module name before loading; the runtime hands
// each load its own capability record, so two loads of the same factory do
// not share record state.
type HostRuntime struct {
	mu        sync.RWMutex
	factories map[string]CodeUnitFactory
}

// NewHostRuntime creates an empty in-process runtime.
func NewHostRuntime() *HostRuntime {
	return &HostRuntime{factories: make(map[string]CodeUnitFactory)}
}

// Register binds a code-unit factory to a module name, replacing any
// previous registration.
func (r *HostRuntime) Register(moduleName string, factory CodeUnitFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[moduleName] = factory
}

// Deregister removes a module's factory.
func (r *HostRuntime) Deregister(moduleName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, moduleName)
}

// Load implements CodeRuntime.
func (r *HostRuntime) Load(ctx context.Context, namespace, dir string, manifest *ManifestModel) (CodeUnit, error) {
	r.mu.RLock()
	factory, ok := r.factories[manifest.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, NewRuntimeLoadFailedError(manifest.Name, nil)
	}

	record, err := factory(ctx, dir, manifest)
	if err != nil {
		return nil, NewRuntimeLoadFailedError(manifest.Name, err)
	}
	if record == nil {
		record = &CapabilityRecord{}
	}

	unit := &hostCodeUnit{namespace: namespace}
	unit.record.Store(record)
	return unit, nil
}

// hostCodeUnit holds its capability record behind an atomic pointer: health
// checks read Capabilities without taking the per-module lock, so Close may
// run concurrently with a read.
type hostCodeUnit struct {
	namespace string
	record    atomic.Pointer[CapabilityRecord]
}

func (u *hostCodeUnit) Capabilities() *CapabilityRecord { return u.record.Load() }

func (u *hostCodeUnit) Close() error {
	u.record.Store(&CapabilityRecord{})
	return nil
}

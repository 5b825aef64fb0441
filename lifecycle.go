// lifecycle.go: Module lifecycle state machine and timeout-bounded hook invocation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"context"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// HookRunner invokes module lifecycle hooks through one uniform path.
//
// Every hook runs on its own goroutine so a slow hook never stalls requests
// targeting unrelated modules, and every invocation is bounded by the
// configured timeout: expiry surfaces as a hook-timeout error while the
// abandoned goroutine's eventual result is discarded. Panics inside hooks
// are recovered and converted to errors.
type HookRunner struct {
	mu      sync.RWMutex
	timeout time.Duration
	logger  Logger
}

// NewHookRunner creates a hook runner with the given invocation timeout.
func NewHookRunner(timeout time.Duration, logger Logger) *HookRunner {
	return &HookRunner{
		timeout: timeout,
		logger:  ensureLogger(logger),
	}
}

// SetTimeout updates the invocation timeout. Safe to call while hooks run;
// only subsequent invocations observe the new value.
func (r *HookRunner) SetTimeout(timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = timeout
}

// Timeout returns the current invocation timeout.
func (r *HookRunner) Timeout() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeout
}

// Invoke runs an optional lifecycle hook. A nil hook is not an error; only a
// failure from a present hook is.
func (r *HookRunner) Invoke(ctx context.Context, moduleName, hookName string, hook HookFunc, config map[string]any) error {
	if hook == nil {
		return nil
	}

	hookCtx, cancel := context.WithTimeout(ctx, r.Timeout())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- NewHookPanicError(moduleName, hookName, recovered)
			}
		}()
		done <- hook(hookCtx, config)
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if ErrorCode(err) == ErrCodeHookPanic {
			return err
		}
		return NewHookFailedError(moduleName, hookName, err)
	case <-hookCtx.Done():
		r.logger.Warn("Lifecycle hook timed out",
			"module", moduleName,
			"hook", hookName,
			"timeout", r.Timeout())
		return NewHookTimeoutError(moduleName, hookName, r.Timeout())
	}
}

// InvokeHealth runs an optional health hook under the same uniform policy
// and returns its raw result for normalization by the caller.
func (r *HookRunner) InvokeHealth(ctx context.Context, moduleName string, hook HealthHookFunc) (any, error) {
	if hook == nil {
		return nil, nil
	}

	hookCtx, cancel := context.WithTimeout(ctx, r.Timeout())
	defer cancel()

	type healthResult struct {
		value any
		err   error
	}
	done := make(chan healthResult, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- healthResult{err: NewHookPanicError(moduleName, "health_check", recovered)}
			}
		}()
		value, err := hook(hookCtx)
		done <- healthResult{value: value, err: err}
	}()

	select {
	case result := <-done:
		return result.value, result.err
	case <-hookCtx.Done():
		return nil, NewHookTimeoutError(moduleName, "health_check", r.Timeout())
	}
}

// LifecycleManager drives modules through load, initialization, health
// checking and unload, calling the optional hooks the code unit registered.
type LifecycleManager struct {
	runner *HookRunner
	health *HookRunner
	logger Logger
}

// NewLifecycleManager creates a lifecycle manager. Lifecycle hooks run under
// the first runner's timeout; health hooks under the second's, which is
// typically much shorter.
func NewLifecycleManager(runner, health *HookRunner, logger Logger) *LifecycleManager {
	return &LifecycleManager{
		runner: runner,
		health: health,
		logger: ensureLogger(logger),
	}
}

// Initialize transitions a loaded module to ready: the optional main hook
// runs first, then the optional initialize hook, each receiving the tenant
// installation's configuration. Missing hooks are skipped silently.
func (m *LifecycleManager) Initialize(ctx context.Context, module *LoadedModule, config map[string]any) error {
	record := module.Unit.Capabilities()
	module.setState(StateInitializing)

	if err := m.runner.Invoke(ctx, module.ModuleName, "main", record.Main, config); err != nil {
		module.setState(StateFailed)
		return err
	}
	if err := m.runner.Invoke(ctx, module.ModuleName, "initialize", record.Initialize, config); err != nil {
		module.setState(StateFailed)
		return err
	}

	module.markInitialized()
	module.setState(StateReady)
	m.logger.Info("Module initialized",
		"module", module.ModuleName,
		"version", module.ModuleVersion)
	return nil
}

// Cleanup runs the optional cleanup hook during unload. Hook failures are
// returned for reporting but never abort the unload.
func (m *LifecycleManager) Cleanup(ctx context.Context, module *LoadedModule) error {
	record := module.Unit.Capabilities()
	return m.runner.Invoke(ctx, module.ModuleName, "cleanup", record.Cleanup, module.Configuration())
}

// HealthCheck runs the optional health hook and normalizes the result.
//
// Structured map results pass through with their own status; scalar results
// are wrapped as healthy with the value under details. Hook errors (and
// timeouts and panics) are reported as unhealthy, never propagated. Modules
// with no health hook report a default healthy summary.
func (m *LifecycleManager) HealthCheck(ctx context.Context, module *LoadedModule) ModuleHealth {
	record := module.Unit.Capabilities()
	now := timecache.CachedTime()

	if record.HealthCheck == nil {
		return ModuleHealth{
			Status: HealthHealthy,
			Details: map[string]any{
				"initialized":         module.IsInitialized(),
				"entry_point_count":   len(module.EntryPoints),
				"event_handler_count": len(module.EventHandlers),
			},
			LastCheck: now,
		}
	}

	value, err := m.health.InvokeHealth(ctx, module.ModuleName, record.HealthCheck)
	if err != nil {
		m.logger.Warn("Module health check failed",
			"module", module.ModuleName,
			"error", err)
		return ModuleHealth{
			Status:    HealthUnhealthy,
			Error:     err.Error(),
			LastCheck: now,
		}
	}

	return normalizeHealthValue(value, now)
}

func normalizeHealthValue(value any, now time.Time) ModuleHealth {
	switch typed := value.(type) {
	case nil:
		return ModuleHealth{Status: HealthHealthy, LastCheck: now}
	case ModuleHealth:
		if typed.Status == "" {
			typed.Status = HealthHealthy
		}
		typed.LastCheck = now
		return typed
	case map[string]any:
		health := ModuleHealth{Status: HealthHealthy, Details: typed, LastCheck: now}
		if status, ok := typed["status"].(string); ok && status != "" {
			health.Status = HealthState(status)
		}
		return health
	default:
		return ModuleHealth{
			Status:    HealthHealthy,
			Details:   map[string]any{"details": value},
			LastCheck: now,
		}
	}
}

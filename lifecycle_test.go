// lifecycle_test.go: Hook invocation and lifecycle manager tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubCodeUnit struct {
	record *CapabilityRecord
	closed bool
}

func (u *stubCodeUnit) Capabilities() *CapabilityRecord { return u.record }

func (u *stubCodeUnit) Close() error {
	u.closed = true
	return nil
}

func stubModule(record *CapabilityRecord) *LoadedModule {
	if record == nil {
		record = &CapabilityRecord{}
	}
	return &LoadedModule{
		ModuleID:      "id-accounting",
		ModuleName:    "accounting",
		ModuleVersion: "1.0.0",
		Manifest:      &ManifestModel{Name: "accounting", Version: "1.0.0"},
		Unit:          &stubCodeUnit{record: record},
	}
}

func TestHookRunnerInvokePassesConfig(t *testing.T) {
	runner := NewHookRunner(time.Second, NewTestLogger())

	var seen map[string]any
	hook := func(ctx context.Context, config map[string]any) error {
		seen = config
		return nil
	}
	err := runner.Invoke(context.Background(), "accounting", "initialize", hook, map[string]any{"currency": "EUR"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if seen["currency"] != "EUR" {
		t.Errorf("hook config = %v", seen)
	}
}

func TestHookRunnerNilHookIsNoOp(t *testing.T) {
	runner := NewHookRunner(time.Second, NewTestLogger())
	if err := runner.Invoke(context.Background(), "accounting", "main", nil, nil); err != nil {
		t.Errorf("nil hook returned error: %v", err)
	}
}

func TestHookRunnerWrapsHookFailure(t *testing.T) {
	runner := NewHookRunner(time.Second, NewTestLogger())
	hook := func(ctx context.Context, config map[string]any) error {
		return errors.New("schema migration failed")
	}
	err := runner.Invoke(context.Background(), "accounting", "initialize", hook, nil)
	if code := ErrorCode(err); code != ErrCodeHookFailed {
		t.Errorf("error code = %s, want %s", code, ErrCodeHookFailed)
	}
}

func TestHookRunnerTimesOut(t *testing.T) {
	runner := NewHookRunner(30*time.Millisecond, NewTestLogger())
	hook := func(ctx context.Context, config map[string]any) error {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return nil
	}

	start := time.Now()
	err := runner.Invoke(context.Background(), "accounting", "main", hook, nil)
	if code := ErrorCode(err); code != ErrCodeHookTimeout {
		t.Fatalf("error code = %s, want %s", code, ErrCodeHookTimeout)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, runner did not enforce the bound", elapsed)
	}
}

func TestHookRunnerRecoversPanic(t *testing.T) {
	runner := NewHookRunner(time.Second, NewTestLogger())
	hook := func(ctx context.Context, config map[string]any) error {
		panic("unexpected state")
	}
	err := runner.Invoke(context.Background(), "accounting", "cleanup", hook, nil)
	if code := ErrorCode(err); code != ErrCodeHookPanic {
		t.Errorf("error code = %s, want %s", code, ErrCodeHookPanic)
	}
}

func newTestLifecycle(hookTimeout, healthTimeout time.Duration) *LifecycleManager {
	logger := NewTestLogger()
	return NewLifecycleManager(
		NewHookRunner(hookTimeout, logger),
		NewHookRunner(healthTimeout, logger),
		logger,
	)
}

func TestInitializeRunsMainThenInitialize(t *testing.T) {
	var calls []string
	record := &CapabilityRecord{
		Main: func(ctx context.Context, config map[string]any) error {
			calls = append(calls, "main")
			return nil
		},
		Initialize: func(ctx context.Context, config map[string]any) error {
			calls = append(calls, "initialize")
			return nil
		},
	}
	module := stubModule(record)

	manager := newTestLifecycle(time.Second, time.Second)
	if err := manager.Initialize(context.Background(), module, nil); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if len(calls) != 2 || calls[0] != "main" || calls[1] != "initialize" {
		t.Errorf("hook order = %v, want [main initialize]", calls)
	}
	if module.State() != StateReady {
		t.Errorf("state = %s, want ready", module.State())
	}
	if !module.IsInitialized() {
		t.Error("module not marked initialized")
	}
}

func TestInitializeFailureSetsFailedState(t *testing.T) {
	record := &CapabilityRecord{
		Initialize: func(ctx context.Context, config map[string]any) error {
			return errors.New("missing configuration")
		},
	}
	module := stubModule(record)

	manager := newTestLifecycle(time.Second, time.Second)
	err := manager.Initialize(context.Background(), module, nil)
	if err == nil {
		t.Fatal("expected initialize failure")
	}
	if module.State() != StateFailed {
		t.Errorf("state = %s, want failed", module.State())
	}
	if module.IsInitialized() {
		t.Error("failed module marked initialized")
	}
}

func TestHealthCheckDefaultSummary(t *testing.T) {
	module := stubModule(nil)
	module.EntryPoints = map[string]EntryPointFunc{"run": nil}

	manager := newTestLifecycle(time.Second, time.Second)
	health := manager.HealthCheck(context.Background(), module)
	if health.Status != HealthHealthy {
		t.Errorf("status = %s, want healthy", health.Status)
	}
	if health.Details["entry_point_count"] != 1 {
		t.Errorf("details = %v", health.Details)
	}
}

func TestHealthCheckNormalization(t *testing.T) {
	manager := newTestLifecycle(time.Second, time.Second)

	t.Run("structured map passes through", func(t *testing.T) {
		module := stubModule(&CapabilityRecord{
			HealthCheck: func(ctx context.Context) (any, error) {
				return map[string]any{"status": "unhealthy", "queue_depth": 42}, nil
			},
		})
		health := manager.HealthCheck(context.Background(), module)
		if health.Status != HealthUnhealthy {
			t.Errorf("status = %s, want unhealthy", health.Status)
		}
		if health.Details["queue_depth"] != 42 {
			t.Errorf("details = %v", health.Details)
		}
	})

	t.Run("scalar wrapped as healthy", func(t *testing.T) {
		module := stubModule(&CapabilityRecord{
			HealthCheck: func(ctx context.Context) (any, error) { return "ok", nil },
		})
		health := manager.HealthCheck(context.Background(), module)
		if health.Status != HealthHealthy {
			t.Errorf("status = %s, want healthy", health.Status)
		}
		if health.Details["details"] != "ok" {
			t.Errorf("details = %v", health.Details)
		}
	})

	t.Run("hook error reported as unhealthy", func(t *testing.T) {
		module := stubModule(&CapabilityRecord{
			HealthCheck: func(ctx context.Context) (any, error) {
				return nil, errors.New("database unreachable")
			},
		})
		health := manager.HealthCheck(context.Background(), module)
		if health.Status != HealthUnhealthy {
			t.Errorf("status = %s, want unhealthy", health.Status)
		}
		if health.Error == "" {
			t.Error("expected error detail")
		}
	})

	t.Run("slow hook reported as unhealthy", func(t *testing.T) {
		slow := newTestLifecycle(time.Second, 30*time.Millisecond)
		module := stubModule(&CapabilityRecord{
			HealthCheck: func(ctx context.Context) (any, error) {
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
				}
				return "late", nil
			},
		})
		health := slow.HealthCheck(context.Background(), module)
		if health.Status != HealthUnhealthy {
			t.Errorf("status = %s, want unhealthy", health.Status)
		}
	})
}

func TestCleanupInvokesHook(t *testing.T) {
	invoked := false
	module := stubModule(&CapabilityRecord{
		Cleanup: func(ctx context.Context, config map[string]any) error {
			invoked = true
			return nil
		},
	})

	manager := newTestLifecycle(time.Second, time.Second)
	if err := manager.Cleanup(context.Background(), module); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if !invoked {
		t.Error("cleanup hook not invoked")
	}
}

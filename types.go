// types.go: Common data types and structures for the module registry core
//
// This file contains the shared data type definitions used throughout the
// resolution engine and the loading runtime. These types represent the common
// data models and enumerations consumed by the resolution service, the module
// loader and the external collaborators. Keeping them separate from the
// component implementations improves code organization and maintainability.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"time"
)

// ModuleState represents the current lifecycle state of a module in the
// loading runtime.
//
// States follow the load pipeline in order:
//   - StateNotLoaded: Module is not present in the loaded-module registry
//   - StateExtracting: Package blob is being decompressed into the working directory
//   - StateValidating: Extracted tree is being structurally validated
//   - StateLoading: Code unit is being loaded into its isolated namespace
//   - StateLoaded: Code unit is loaded but not yet initialized
//   - StateInitializing: Lifecycle hooks (main, initialize) are running
//   - StateReady: Module is initialized and serving
//   - StateUnloading: Cleanup hook and deregistration are in progress
//   - StateFailed: A pipeline step failed; cleanup runs and the module
//     returns to StateNotLoaded
//
// Any failure at any step transitions to StateFailed, which triggers
// best-effort cleanup of partial state before settling back at StateNotLoaded.
type ModuleState int

const (
	StateNotLoaded ModuleState = iota
	StateExtracting
	StateValidating
	StateLoading
	StateLoaded
	StateInitializing
	StateReady
	StateUnloading
	StateFailed
)

// String returns a human-readable representation of the module state.
func (s ModuleState) String() string {
	switch s {
	case StateExtracting:
		return "extracting"
	case StateValidating:
		return "validating"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateUnloading:
		return "unloading"
	case StateFailed:
		return "failed"
	default:
		return "not_loaded"
	}
}

// HealthState represents the normalized outcome of a module health check.
type HealthState string

const (
	// HealthNotLoaded indicates the module is not present in the registry.
	HealthNotLoaded HealthState = "not_loaded"
	// HealthHealthy indicates the module reported itself operational.
	HealthHealthy HealthState = "healthy"
	// HealthUnhealthy indicates the health hook failed or reported a problem.
	HealthUnhealthy HealthState = "unhealthy"
)

// ModuleHealth contains the normalized result of a module health check.
//
// Health hook return values are normalized defensively: structured results
// are passed through, scalar results are wrapped as healthy with the value
// under Details, and hook errors are captured in Error without propagating.
type ModuleHealth struct {
	Status    HealthState    `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	LastCheck time.Time      `json:"last_check"`
}

// ModuleDescriptor identifies a versioned module together with its parsed
// manifest. Identity is (Name, Version); ID is the stable surrogate key owned
// by the external persistence layer.
type ModuleDescriptor struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	Manifest *ManifestModel `json:"manifest"`
}

// Installation is the tenant-scoped record that authorizes a module load.
//
// The core only reads installations; status transitions are the calling
// service's responsibility after consulting the resolution engine.
type Installation struct {
	ModuleID      string         `json:"module_id"`
	CompanyID     string         `json:"company_id"`
	Status        string         `json:"status"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// ConflictType classifies a dependency conflict found during analysis.
type ConflictType string

const (
	ConflictMissingDependency      ConflictType = "missing_dependency"
	ConflictCircularDependency     ConflictType = "circular_dependency"
	ConflictIncompatibleDependency ConflictType = "incompatible_dependency"
	ConflictResourceConflict       ConflictType = "resource_conflict"
	ConflictVersionMismatch        ConflictType = "version_mismatch"
)

// ConflictSeverity grades how blocking a conflict is.
//
// Critical conflicts block installation, major conflicts warn without
// blocking (batch resource conflicts only), minor conflicts are
// informational (upgrade compatibility notes).
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "critical"
	SeverityMajor    ConflictSeverity = "major"
	SeverityMinor    ConflictSeverity = "minor"
)

// DependencyConflict describes one conflict found while analyzing a module
// against a tenant's dependency graph. Conflicts are a normal, expected
// output of analysis, not errors: callers use Severity to decide between
// blocking and warning.
type DependencyConflict struct {
	Type              ConflictType     `json:"conflict_type"`
	ModuleName        string           `json:"module_name"`
	ConflictingModule string           `json:"conflicting_module,omitempty"`
	Description       string           `json:"description"`
	Severity          ConflictSeverity `json:"severity"`
	Suggestions       []string         `json:"resolution_suggestions,omitempty"`
}

// IsBlocking reports whether this conflict prevents installation.
func (c DependencyConflict) IsBlocking() bool {
	return c.Severity == SeverityCritical
}

// ResolutionPlan is the output of dependency analysis: install order,
// conflicts and resolvability.
//
// Invariants:
//   - Resolvable is true exactly when no conflict is critical
//   - when Resolvable, InstallOrder is a valid topological order over all
//     required (non-optional) dependency edges
//   - Conflicts is append-only during one analysis and never mutated after
//     the plan is returned
type ResolutionPlan struct {
	InstallOrder []string             `json:"install_order"`
	Conflicts    []DependencyConflict `json:"conflicts"`
	Warnings     []string             `json:"warnings,omitempty"`
	Resolvable   bool                 `json:"is_resolvable"`
}

// BlockingConflicts returns only the conflicts that prevent installation.
func (p *ResolutionPlan) BlockingConflicts() []DependencyConflict {
	var blocking []DependencyConflict
	for _, c := range p.Conflicts {
		if c.IsBlocking() {
			blocking = append(blocking, c)
		}
	}
	return blocking
}

// DependencyNode is one module inside a request-local dependency graph.
//
// Nodes are built once per resolution call from the tenant's installed
// modules plus the candidates, never mutated after construction, and owned
// exclusively by the resolution call that built them.
type DependencyNode struct {
	Name                 string   `json:"name"`
	Version              string   `json:"version"`
	ModuleID             string   `json:"module_id"`
	Dependencies         []string `json:"dependencies"`
	OptionalDependencies []string `json:"optional_dependencies,omitempty"`
	ConflictsWith        []string `json:"conflicts_with,omitempty"`
	Provides             []string `json:"provides,omitempty"`
}

// UnloadResult reports the outcome of an unload operation.
//
// Unload never propagates errors: failures are folded into the result so
// shutdown paths can continue past individual modules while callers that do
// care still see the cause.
type UnloadResult struct {
	ModuleID string `json:"module_id"`
	Unloaded bool   `json:"unloaded"`
	Cause    error  `json:"-"`
}

// LoaderStats provides a point-in-time snapshot of the loading runtime.
type LoaderStats struct {
	LoadedModules  int                    `json:"loaded_modules"`
	MaxModules     int                    `json:"max_modules"`
	ModulesByState map[string]int         `json:"modules_by_state"`
	Health         map[string]HealthState `json:"health,omitempty"`
}

// LoaderEvent describes one lifecycle event emitted by the module loader.
type LoaderEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ModuleID  string    `json:"module_id,omitempty"`
	Module    string    `json:"module,omitempty"`
	Version   string    `json:"version,omitempty"`
	CompanyID string    `json:"company_id,omitempty"`
	Error     error     `json:"-"`
}

// LoaderEventHandler receives loader lifecycle events.
type LoaderEventHandler func(event LoaderEvent)

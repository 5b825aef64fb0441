// conflict_detector.go: Dependency conflict detection over a built graph
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"fmt"
	"sort"
)

// ConflictDetector inspects a request-local dependency graph for missing,
// circular, incompatible and resource conflicts.
//
// Detection is read-only over the graph and allocates fresh conflict records
// on every call; two concurrent resolution requests never contend here.
type ConflictDetector struct {
	logger Logger
}

// NewConflictDetector creates a conflict detector.
func NewConflictDetector(logger Logger) *ConflictDetector {
	return &ConflictDetector{logger: ensureLogger(logger)}
}

// DetectForModule runs the per-module passes for one target already present
// in the graph: missing required dependencies, declared incompatibilities in
// either direction, and circular required-dependency paths.
func (d *ConflictDetector) DetectForModule(graph map[string]*DependencyNode, moduleName string) []DependencyConflict {
	target, ok := graph[moduleName]
	if !ok {
		return nil
	}

	conflicts := make([]DependencyConflict, 0)
	conflicts = append(conflicts, d.detectMissing(graph, target)...)
	conflicts = append(conflicts, d.detectIncompatible(graph, target)...)
	conflicts = append(conflicts, d.detectCircular(graph, target)...)

	if len(conflicts) > 0 {
		d.logger.Debug("Conflicts detected for module",
			"module", moduleName,
			"count", len(conflicts))
	}
	return conflicts
}

// DetectResourceConflicts runs the cross-module batch pass: every unordered
// pair of candidate modules is compared on its provided capabilities, and a
// non-empty intersection yields a RESOURCE_CONFLICT of severity major.
//
// Resource conflicts warn but never block, so their severity is never
// critical. Candidates are only compared against each other, not against
// already-installed modules.
func (d *ConflictDetector) DetectResourceConflicts(graph map[string]*DependencyNode, candidateNames []string) []DependencyConflict {
	names := append([]string(nil), candidateNames...)
	sort.Strings(names)

	conflicts := make([]DependencyConflict, 0)
	for i := 0; i < len(names); i++ {
		first, ok := graph[names[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(names); j++ {
			second, ok := graph[names[j]]
			if !ok {
				continue
			}
			shared := intersectCapabilities(first.Provides, second.Provides)
			if len(shared) == 0 {
				continue
			}
			conflicts = append(conflicts, DependencyConflict{
				Type:              ConflictResourceConflict,
				ModuleName:        first.Name,
				ConflictingModule: second.Name,
				Description: fmt.Sprintf("modules '%s' and '%s' both provide %v",
					first.Name, second.Name, shared),
				Severity: SeverityMajor,
				Suggestions: []string{
					fmt.Sprintf("install only one of '%s' and '%s'", first.Name, second.Name),
					"verify the modules coordinate on the shared capability before installing both",
				},
			})
		}
	}
	return conflicts
}

// detectMissing reports every required dependency name absent from the graph.
func (d *ConflictDetector) detectMissing(graph map[string]*DependencyNode, target *DependencyNode) []DependencyConflict {
	conflicts := make([]DependencyConflict, 0)
	for _, dep := range target.Dependencies {
		if _, present := graph[dep]; present {
			continue
		}
		conflicts = append(conflicts, DependencyConflict{
			Type:        ConflictMissingDependency,
			ModuleName:  target.Name,
			Description: fmt.Sprintf("required dependency '%s' is not installed", dep),
			Severity:    SeverityCritical,
			Suggestions: []string{fmt.Sprintf("install module '%s' first", dep)},
		})
	}
	return conflicts
}

// detectIncompatible reports declared incompatibilities in either direction
// between the target and every other node in the graph.
func (d *ConflictDetector) detectIncompatible(graph map[string]*DependencyNode, target *DependencyNode) []DependencyConflict {
	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	conflicts := make([]DependencyConflict, 0)
	for _, name := range names {
		if name == target.Name {
			continue
		}
		other := graph[name]
		if !containsName(target.ConflictsWith, other.Name) && !containsName(other.ConflictsWith, target.Name) {
			continue
		}
		conflicts = append(conflicts, DependencyConflict{
			Type:              ConflictIncompatibleDependency,
			ModuleName:        target.Name,
			ConflictingModule: other.Name,
			Description: fmt.Sprintf("module '%s' is declared incompatible with '%s'",
				target.Name, other.Name),
			Severity: SeverityCritical,
			Suggestions: []string{
				fmt.Sprintf("uninstall module '%s' before installing '%s'", other.Name, target.Name),
				"check whether a newer release removes the declared incompatibility",
			},
		})
	}
	return conflicts
}

// detectCircular walks required-dependency edges depth-first from the target.
// The visited set is copied at each step, so a node reachable along two
// independent paths is not falsely flagged; only recurrence within the same
// path is a cycle.
func (d *ConflictDetector) detectCircular(graph map[string]*DependencyNode, target *DependencyNode) []DependencyConflict {
	if !d.hasCycleFrom(graph, target.Name, map[string]struct{}{}) {
		return nil
	}
	return []DependencyConflict{{
		Type:        ConflictCircularDependency,
		ModuleName:  target.Name,
		Description: fmt.Sprintf("module '%s' participates in a circular dependency chain", target.Name),
		Severity:    SeverityCritical,
		Suggestions: []string{
			"break the cycle by removing one of the dependencies",
			"extract the shared functionality into a separate module",
		},
	}}
}

func (d *ConflictDetector) hasCycleFrom(graph map[string]*DependencyNode, name string, path map[string]struct{}) bool {
	if _, onPath := path[name]; onPath {
		return true
	}
	node, ok := graph[name]
	if !ok {
		return false
	}

	// Copy the path set per recursive step: sharing it across sibling
	// branches would flag diamond-shaped graphs as cycles.
	next := make(map[string]struct{}, len(path)+1)
	for k := range path {
		next[k] = struct{}{}
	}
	next[name] = struct{}{}

	for _, dep := range node.Dependencies {
		if d.hasCycleFrom(graph, dep, next) {
			return true
		}
	}
	return false
}

func containsName(names []string, target string) bool {
	for _, name := range names {
		if name == target {
			return true
		}
	}
	return false
}

func intersectCapabilities(first, second []string) []string {
	set := make(map[string]struct{}, len(first))
	for _, capability := range first {
		set[capability] = struct{}{}
	}
	shared := make([]string, 0)
	for _, capability := range second {
		if _, ok := set[capability]; ok {
			shared = append(shared, capability)
		}
	}
	sort.Strings(shared)
	return shared
}

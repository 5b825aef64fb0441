// resolution_service.go: Dependency resolution façade
//
// This file composes the graph builder, conflict detector, install planner
// and upgrade checker into the four operations the registry service calls
// before committing any installation state.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"context"
	"fmt"
)

// ResolutionService answers, for one tenant, whether a module can be
// installed, in what order, and what conflicts exist.
//
// Analysis is non-throwing by contract: planner failures (cycles) are folded
// into the returned plan's conflicts rather than raised, so the only errors
// the façade returns are collaborator failures (store unavailable, unknown
// module id).
type ResolutionService struct {
	store    ModuleStore
	builder  *GraphBuilder
	detector *ConflictDetector
	planner  *InstallPlanner
	upgrades *UpgradeChecker
	logger   Logger
}

// NewResolutionService creates a resolution service over the given store.
func NewResolutionService(store ModuleStore, logger Logger) *ResolutionService {
	logger = ensureLogger(logger)
	return &ResolutionService{
		store:    store,
		builder:  NewGraphBuilder(store, logger),
		detector: NewConflictDetector(logger),
		planner:  NewInstallPlanner(logger),
		upgrades: NewUpgradeChecker(store, logger),
		logger:   logger,
	}
}

// AnalyzeModuleDependencies builds the tenant's dependency graph with the
// target and any extra candidates, detects conflicts for the target, and
// plans the installation order when no critical conflict exists.
func (s *ResolutionService) AnalyzeModuleDependencies(ctx context.Context, moduleID, companyID string, candidateIDs []string) (*ResolutionPlan, error) {
	target, err := s.store.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(candidateIDs)+1)
	ids = append(ids, moduleID)
	for _, id := range candidateIDs {
		if id != moduleID {
			ids = append(ids, id)
		}
	}

	graph, err := s.builder.Build(ctx, companyID, ids)
	if err != nil {
		return nil, err
	}

	plan := &ResolutionPlan{
		InstallOrder: []string{},
		Conflicts:    s.detector.DetectForModule(graph, target.Name),
		Warnings:     s.optionalDependencyWarnings(graph, target.Name),
	}
	plan.Resolvable = len(plan.BlockingConflicts()) == 0

	if plan.Resolvable {
		order, err := s.planner.Plan(graph, target.Name)
		if err != nil {
			// Cycle reached through the traversal that the per-path detector
			// did not attribute to the target. Fold it into the plan instead
			// of raising; the analysis API never throws for graph shape.
			plan.Conflicts = append(plan.Conflicts, DependencyConflict{
				Type:        ConflictCircularDependency,
				ModuleName:  target.Name,
				Description: fmt.Sprintf("install-order planning failed: %v", err),
				Severity:    SeverityCritical,
				Suggestions: []string{"break the dependency cycle and analyze again"},
			})
			plan.Resolvable = false
		} else {
			plan.InstallOrder = order
		}
	}

	s.logger.Info("Module dependency analysis completed",
		"module", target.Name,
		"company_id", companyID,
		"resolvable", plan.Resolvable,
		"conflicts", len(plan.Conflicts))
	return plan, nil
}

// DetectInstallationConflicts analyzes a batch of candidate modules being
// installed together against one shared graph: the per-module passes run for
// every candidate, then the cross-batch resource-conflict pass compares the
// candidates' provided capabilities pairwise.
func (s *ResolutionService) DetectInstallationConflicts(ctx context.Context, moduleIDs []string, companyID string) ([]DependencyConflict, error) {
	graph, err := s.builder.Build(ctx, companyID, moduleIDs)
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.ListModulesByIDs(ctx, moduleIDs)
	if err != nil {
		return nil, NewStoreFailureError("list candidate modules", err)
	}

	conflicts := make([]DependencyConflict, 0)
	candidateNames := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		candidateNames = append(candidateNames, candidate.Name)
		conflicts = append(conflicts, s.detector.DetectForModule(graph, candidate.Name)...)
	}
	conflicts = append(conflicts, s.detector.DetectResourceConflicts(graph, candidateNames)...)

	s.logger.Info("Batch installation conflicts detected",
		"company_id", companyID,
		"candidates", len(candidateNames),
		"conflicts", len(conflicts))
	return conflicts, nil
}

// SuggestDependencyResolution maps each conflict's module name to resolution
// guidance: a fixed suggestion set per conflict type concatenated with the
// conflict's own suggestions. Pure function of its input.
func (s *ResolutionService) SuggestDependencyResolution(conflicts []DependencyConflict) map[string][]string {
	generic := map[ConflictType][]string{
		ConflictMissingDependency: {
			"install the missing dependency before this module",
		},
		ConflictCircularDependency: {
			"restructure the modules so dependencies form an acyclic graph",
		},
		ConflictIncompatibleDependency: {
			"remove one of the incompatible modules",
		},
		ConflictResourceConflict: {
			"deploy only one provider per capability",
		},
		ConflictVersionMismatch: {
			"confirm dependent modules support the new version before upgrading",
		},
	}

	suggestions := make(map[string][]string)
	for _, conflict := range conflicts {
		merged := append([]string(nil), generic[conflict.Type]...)
		merged = append(merged, conflict.Suggestions...)
		suggestions[conflict.ModuleName] = append(suggestions[conflict.ModuleName], merged...)
	}
	return suggestions
}

// ValidateUpgradeCompatibility reports the conflicts an upgrade of the module
// to newVersion would raise for the company's installed dependents.
func (s *ResolutionService) ValidateUpgradeCompatibility(ctx context.Context, moduleID, newVersion, companyID string) ([]DependencyConflict, error) {
	return s.upgrades.Check(ctx, moduleID, newVersion, companyID)
}

// optionalDependencyWarnings lists optional dependencies of the target that
// are absent from the graph. Absence never blocks, but callers surface it.
func (s *ResolutionService) optionalDependencyWarnings(graph map[string]*DependencyNode, moduleName string) []string {
	target, ok := graph[moduleName]
	if !ok {
		return nil
	}
	warnings := make([]string, 0)
	for _, dep := range target.OptionalDependencies {
		if _, present := graph[dep]; !present {
			warnings = append(warnings, fmt.Sprintf("optional dependency '%s' is not installed; related features will be disabled", dep))
		}
	}
	return warnings
}

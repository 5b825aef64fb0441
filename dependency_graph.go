// dependency_graph.go: Request-local dependency graph construction
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"context"
)

// GraphBuilder turns a tenant's installed modules plus candidate modules into
// a request-local dependency graph.
//
// The builder performs no validation: a dependency that is not installed and
// not among the candidates is simply absent from the resulting map, to be
// reported by the ConflictDetector. The returned graph is a private snapshot
// owned by the resolution call that requested it; concurrent resolution calls
// never share graph state.
type GraphBuilder struct {
	store  ModuleStore
	logger Logger
}

// NewGraphBuilder creates a graph builder backed by the given module store.
func NewGraphBuilder(store ModuleStore, logger Logger) *GraphBuilder {
	return &GraphBuilder{
		store:  store,
		logger: ensureLogger(logger),
	}
}

// Build fetches the company's installed modules and the candidate modules by
// id, and produces one DependencyNode per module keyed by module name.
//
// Required and optional dependency names are partitioned by the declaration's
// Optional flag; only module-kind declarations participate. ConflictsWith and
// Provides are read directly from manifest extension fields, with Provides
// defaulting to the module's own name when absent.
func (b *GraphBuilder) Build(ctx context.Context, companyID string, candidateIDs []string) (map[string]*DependencyNode, error) {
	installed, err := b.store.ListInstalledModules(ctx, companyID)
	if err != nil {
		return nil, NewStoreFailureError("list installed modules", err)
	}

	candidates, err := b.store.ListModulesByIDs(ctx, candidateIDs)
	if err != nil {
		return nil, NewStoreFailureError("list candidate modules", err)
	}

	graph := make(map[string]*DependencyNode, len(installed)+len(candidates))
	for _, descriptor := range installed {
		b.addNode(graph, descriptor)
	}
	for _, descriptor := range candidates {
		b.addNode(graph, descriptor)
	}

	b.logger.Debug("Dependency graph built",
		"company_id", companyID,
		"installed", len(installed),
		"candidates", len(candidates),
		"nodes", len(graph))

	return graph, nil
}

// addNode inserts one node. Node names are unique within a graph; a candidate
// that shadows an installed module of the same name replaces it, matching the
// store's identity semantics of (name, version) behind a surrogate id.
func (b *GraphBuilder) addNode(graph map[string]*DependencyNode, descriptor *ModuleDescriptor) {
	manifest := descriptor.Manifest
	if manifest == nil {
		manifest = &ManifestModel{Name: descriptor.Name, Version: descriptor.Version}
	}

	graph[descriptor.Name] = &DependencyNode{
		Name:                 descriptor.Name,
		Version:              descriptor.Version,
		ModuleID:             descriptor.ID,
		Dependencies:         manifest.RequiredModuleDependencies(),
		OptionalDependencies: manifest.OptionalModuleDependencies(),
		ConflictsWith:        manifest.Conflicts,
		Provides:             manifest.ProvidedCapabilities(),
	}
}

// install_planner.go: Topological install-order planning
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"sort"
)

// InstallPlanner derives a valid installation order for a target module by
// DFS-based topological sort over required-dependency edges.
//
// Dependencies are appended before the modules that require them. Ties among
// independent subtrees are broken lexicographically by module name, so the
// produced order is deterministic for a given graph regardless of map
// iteration or input ordering.
type InstallPlanner struct {
	logger Logger
}

// NewInstallPlanner creates an install-order planner.
func NewInstallPlanner(logger Logger) *InstallPlanner {
	return &InstallPlanner{logger: ensureLogger(logger)}
}

// Plan returns the install order for the target module as a list of module
// ids, dependencies first. Nodes absent from the graph are skipped; the
// ConflictDetector owns reporting them. A cycle on the traversal path yields
// a cycle error, which the resolution façade folds into a conflict rather
// than surfacing to its callers.
func (p *InstallPlanner) Plan(graph map[string]*DependencyNode, moduleName string) ([]string, error) {
	visiting := make(map[string]struct{})
	visited := make(map[string]struct{})
	order := make([]string, 0, len(graph))

	if err := p.visit(graph, moduleName, visiting, visited, &order); err != nil {
		return nil, err
	}

	p.logger.Debug("Install order planned",
		"module", moduleName,
		"order_length", len(order))
	return order, nil
}

func (p *InstallPlanner) visit(graph map[string]*DependencyNode, name string, visiting, visited map[string]struct{}, order *[]string) error {
	if _, done := visited[name]; done {
		return nil
	}
	if _, onStack := visiting[name]; onStack {
		return NewCycleDetectedError(name)
	}

	node, ok := graph[name]
	if !ok {
		return nil
	}

	visiting[name] = struct{}{}

	deps := append([]string(nil), node.Dependencies...)
	sort.Strings(deps)
	for _, dep := range deps {
		if err := p.visit(graph, dep, visiting, visited, order); err != nil {
			return err
		}
	}

	delete(visiting, name)
	visited[name] = struct{}{}
	*order = append(*order, node.ModuleID)
	return nil
}

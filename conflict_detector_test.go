// conflict_detector_test.go: Conflict detection pass tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"testing"
)

func TestDetectForModuleMissingDependencies(t *testing.T) {
	graph := map[string]*DependencyNode{
		"crm": {Name: "crm", ModuleID: "id-crm", Dependencies: []string{"contacts", "mail"}},
	}

	detector := NewConflictDetector(NewTestLogger())
	conflicts := detector.DetectForModule(graph, "crm")

	if len(conflicts) != 2 {
		t.Fatalf("expected 2 missing-dependency conflicts, got %v", conflicts)
	}
	for _, conflict := range conflicts {
		if conflict.Type != ConflictMissingDependency {
			t.Errorf("conflict type = %s, want %s", conflict.Type, ConflictMissingDependency)
		}
		if conflict.Severity != SeverityCritical {
			t.Errorf("severity = %s, want critical", conflict.Severity)
		}
	}
}

func TestDetectForModuleIncompatibleBothDirections(t *testing.T) {
	detector := NewConflictDetector(NewTestLogger())

	// Declared by the target.
	graph := map[string]*DependencyNode{
		"ledger-pro":  {Name: "ledger-pro", ConflictsWith: []string{"ledger-lite"}},
		"ledger-lite": {Name: "ledger-lite"},
	}
	conflicts := detector.DetectForModule(graph, "ledger-pro")
	if len(conflicts) != 1 || conflicts[0].Type != ConflictIncompatibleDependency {
		t.Fatalf("declared direction: got %v", conflicts)
	}

	// Declared by the other module; still reported for the target.
	conflicts = detector.DetectForModule(graph, "ledger-lite")
	if len(conflicts) != 1 || conflicts[0].Type != ConflictIncompatibleDependency {
		t.Fatalf("reverse direction: got %v", conflicts)
	}
	if conflicts[0].ConflictingModule != "ledger-pro" {
		t.Errorf("conflicting module = %s, want ledger-pro", conflicts[0].ConflictingModule)
	}
}

func TestDetectForModuleDiamondIsNotACycle(t *testing.T) {
	graph := map[string]*DependencyNode{
		"app":     {Name: "app", Dependencies: []string{"alpha", "beta"}},
		"alpha":   {Name: "alpha", Dependencies: []string{"storage"}},
		"beta":    {Name: "beta", Dependencies: []string{"storage"}},
		"storage": {Name: "storage"},
	}

	detector := NewConflictDetector(NewTestLogger())
	conflicts := detector.DetectForModule(graph, "app")
	if len(conflicts) != 0 {
		t.Errorf("diamond graph flagged: %v", conflicts)
	}
}

func TestDetectForModuleCycleThroughIntermediate(t *testing.T) {
	graph := map[string]*DependencyNode{
		"alpha": {Name: "alpha", Dependencies: []string{"beta"}},
		"beta":  {Name: "beta", Dependencies: []string{"gamma"}},
		"gamma": {Name: "gamma", Dependencies: []string{"alpha"}},
	}

	detector := NewConflictDetector(NewTestLogger())
	conflicts := detector.DetectForModule(graph, "alpha")
	if len(conflicts) != 1 || conflicts[0].Type != ConflictCircularDependency {
		t.Fatalf("expected one circular-dependency conflict, got %v", conflicts)
	}
}

func TestDetectResourceConflictsPairwise(t *testing.T) {
	graph := map[string]*DependencyNode{
		"pdf-export":  {Name: "pdf-export", Provides: []string{"document-export", "pdf"}},
		"xlsx-export": {Name: "xlsx-export", Provides: []string{"document-export"}},
		"mail":        {Name: "mail", Provides: []string{"mail"}},
	}

	detector := NewConflictDetector(NewTestLogger())
	conflicts := detector.DetectResourceConflicts(graph, []string{"xlsx-export", "pdf-export", "mail"})

	if len(conflicts) != 1 {
		t.Fatalf("expected 1 resource conflict, got %v", conflicts)
	}
	conflict := conflicts[0]
	if conflict.Type != ConflictResourceConflict {
		t.Errorf("type = %s, want %s", conflict.Type, ConflictResourceConflict)
	}
	if conflict.Severity != SeverityMajor {
		t.Errorf("severity = %s, want major", conflict.Severity)
	}
	// Pairs are ordered lexicographically for deterministic output.
	if conflict.ModuleName != "pdf-export" || conflict.ConflictingModule != "xlsx-export" {
		t.Errorf("pair = (%s, %s), want (pdf-export, xlsx-export)", conflict.ModuleName, conflict.ConflictingModule)
	}
}

func TestDetectResourceConflictsIgnoresInstalledModules(t *testing.T) {
	graph := map[string]*DependencyNode{
		"pdf-export": {Name: "pdf-export", Provides: []string{"document-export"}},
		"installed":  {Name: "installed", Provides: []string{"document-export"}},
	}

	detector := NewConflictDetector(NewTestLogger())
	conflicts := detector.DetectResourceConflicts(graph, []string{"pdf-export"})
	if len(conflicts) != 0 {
		t.Errorf("installed modules must not participate in the batch pass: %v", conflicts)
	}
}

// resolution_service_test.go: End-to-end tests for the resolution facade
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"context"
	"reflect"
	"testing"
)

func descriptorWith(id, name, version string, manifest *ManifestModel) *ModuleDescriptor {
	if manifest == nil {
		manifest = &ManifestModel{Name: name, Version: version}
	}
	manifest.Name = name
	manifest.Version = version
	return &ModuleDescriptor{ID: id, Name: name, Version: version, Manifest: manifest}
}

func requiredDeps(names ...string) []DependencyDeclaration {
	deps := make([]DependencyDeclaration, 0, len(names))
	for _, name := range names {
		deps = append(deps, DependencyDeclaration{Name: name, Kind: DependencyModule})
	}
	return deps
}

func conflictTypes(conflicts []DependencyConflict) []ConflictType {
	types := make([]ConflictType, 0, len(conflicts))
	for _, conflict := range conflicts {
		types = append(types, conflict.Type)
	}
	return types
}

func TestAnalyzeModuleDependenciesOrdersDependenciesFirst(t *testing.T) {
	store := NewMemoryModuleStore()
	store.PutModule(descriptorWith("id-a", "accounting", "1.0.0", &ManifestModel{
		Dependencies: requiredDeps("billing", "contacts"),
	}))
	store.PutModule(descriptorWith("id-b", "billing", "1.0.0", &ManifestModel{
		Dependencies: requiredDeps("contacts"),
	}))
	store.PutModule(descriptorWith("id-c", "contacts", "1.0.0", nil))

	service := NewResolutionService(store, NewTestLogger())
	want := []string{"id-c", "id-b", "id-a"}

	// The order must be deterministic regardless of candidate ordering.
	candidateOrders := [][]string{
		{"id-b", "id-c"},
		{"id-c", "id-b"},
	}
	for _, candidates := range candidateOrders {
		plan, err := service.AnalyzeModuleDependencies(context.Background(), "id-a", "company-1", candidates)
		if err != nil {
			t.Fatalf("AnalyzeModuleDependencies failed: %v", err)
		}
		if !plan.Resolvable {
			t.Fatalf("expected resolvable plan, got conflicts: %v", plan.Conflicts)
		}
		if len(plan.Conflicts) != 0 {
			t.Errorf("expected no conflicts, got %v", plan.Conflicts)
		}
		if !reflect.DeepEqual(plan.InstallOrder, want) {
			t.Errorf("candidates %v: install order = %v, want %v", candidates, plan.InstallOrder, want)
		}
	}
}

func TestAnalyzeModuleDependenciesMissingDependency(t *testing.T) {
	store := NewMemoryModuleStore()
	store.PutModule(descriptorWith("id-a", "accounting", "1.0.0", &ManifestModel{
		Dependencies: requiredDeps("payments"),
	}))

	service := NewResolutionService(store, NewTestLogger())
	plan, err := service.AnalyzeModuleDependencies(context.Background(), "id-a", "company-1", nil)
	if err != nil {
		t.Fatalf("AnalyzeModuleDependencies failed: %v", err)
	}

	if plan.Resolvable {
		t.Fatal("expected unresolvable plan")
	}
	if len(plan.InstallOrder) != 0 {
		t.Errorf("expected empty install order, got %v", plan.InstallOrder)
	}
	if len(plan.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %v", plan.Conflicts)
	}
	conflict := plan.Conflicts[0]
	if conflict.Type != ConflictMissingDependency {
		t.Errorf("conflict type = %s, want %s", conflict.Type, ConflictMissingDependency)
	}
	if conflict.Severity != SeverityCritical {
		t.Errorf("conflict severity = %s, want %s", conflict.Severity, SeverityCritical)
	}
	if !conflict.IsBlocking() {
		t.Error("missing dependency conflict should block")
	}
	if len(conflict.Suggestions) == 0 {
		t.Error("expected at least one suggestion")
	}
}

func TestAnalyzeModuleDependenciesCircularDependency(t *testing.T) {
	store := NewMemoryModuleStore()
	store.PutModule(descriptorWith("id-x", "exporter", "1.0.0", &ManifestModel{
		Dependencies: requiredDeps("importer"),
	}))
	store.PutModule(descriptorWith("id-y", "importer", "1.0.0", &ManifestModel{
		Dependencies: requiredDeps("exporter"),
	}))

	service := NewResolutionService(store, NewTestLogger())
	plan, err := service.AnalyzeModuleDependencies(context.Background(), "id-x", "company-1", []string{"id-y"})
	if err != nil {
		t.Fatalf("AnalyzeModuleDependencies failed: %v", err)
	}

	if plan.Resolvable {
		t.Fatal("expected unresolvable plan for a cycle")
	}
	if len(plan.InstallOrder) != 0 {
		t.Errorf("expected empty install order, got %v", plan.InstallOrder)
	}
	found := false
	for _, conflict := range plan.Conflicts {
		if conflict.Type == ConflictCircularDependency {
			found = true
			if conflict.Severity != SeverityCritical {
				t.Errorf("circular conflict severity = %s, want critical", conflict.Severity)
			}
		}
	}
	if !found {
		t.Errorf("expected a circular-dependency conflict, got %v", conflictTypes(plan.Conflicts))
	}
}

func TestAnalyzeModuleDependenciesOptionalDependencyWarns(t *testing.T) {
	store := NewMemoryModuleStore()
	store.PutModule(descriptorWith("id-a", "accounting", "1.0.0", &ManifestModel{
		Dependencies: []DependencyDeclaration{
			{Name: "reporting", Kind: DependencyModule, Optional: true},
		},
	}))

	service := NewResolutionService(store, NewTestLogger())
	plan, err := service.AnalyzeModuleDependencies(context.Background(), "id-a", "company-1", nil)
	if err != nil {
		t.Fatalf("AnalyzeModuleDependencies failed: %v", err)
	}

	if !plan.Resolvable {
		t.Fatalf("optional dependency must not block: %v", plan.Conflicts)
	}
	if len(plan.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", plan.Warnings)
	}
}

func TestAnalyzeModuleDependenciesUnknownModule(t *testing.T) {
	service := NewResolutionService(NewMemoryModuleStore(), NewTestLogger())
	_, err := service.AnalyzeModuleDependencies(context.Background(), "id-missing", "company-1", nil)
	if err == nil {
		t.Fatal("expected error for unknown module id")
	}
	if code := ErrorCode(err); code != ErrCodeModuleNotFound {
		t.Errorf("error code = %s, want %s", code, ErrCodeModuleNotFound)
	}
}

func TestDetectInstallationConflictsIncompatiblePair(t *testing.T) {
	store := NewMemoryModuleStore()
	store.PutModule(descriptorWith("id-a", "ledger-pro", "1.0.0", &ManifestModel{
		Conflicts: []string{"ledger-lite"},
	}))
	store.PutModule(descriptorWith("id-b", "ledger-lite", "1.0.0", nil))

	service := NewResolutionService(store, NewTestLogger())
	conflicts, err := service.DetectInstallationConflicts(context.Background(), []string{"id-a", "id-b"}, "company-1")
	if err != nil {
		t.Fatalf("DetectInstallationConflicts failed: %v", err)
	}

	found := 0
	for _, conflict := range conflicts {
		if conflict.Type == ConflictIncompatibleDependency {
			found++
			if conflict.Severity != SeverityCritical {
				t.Errorf("incompatible conflict severity = %s, want critical", conflict.Severity)
			}
		}
	}
	// The declaration is detected from both candidates' perspectives.
	if found == 0 {
		t.Errorf("expected incompatible-dependency conflicts, got %v", conflictTypes(conflicts))
	}
}

func TestDetectInstallationConflictsSharedCapability(t *testing.T) {
	store := NewMemoryModuleStore()
	store.PutModule(descriptorWith("id-a", "pdf-export", "1.0.0", &ManifestModel{
		Provides: []string{"document-export"},
	}))
	store.PutModule(descriptorWith("id-b", "xlsx-export", "1.0.0", &ManifestModel{
		Provides: []string{"document-export"},
	}))

	service := NewResolutionService(store, NewTestLogger())
	conflicts, err := service.DetectInstallationConflicts(context.Background(), []string{"id-a", "id-b"}, "company-1")
	if err != nil {
		t.Fatalf("DetectInstallationConflicts failed: %v", err)
	}

	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %v", conflicts)
	}
	conflict := conflicts[0]
	if conflict.Type != ConflictResourceConflict {
		t.Errorf("conflict type = %s, want %s", conflict.Type, ConflictResourceConflict)
	}
	if conflict.Severity != SeverityMajor {
		t.Errorf("resource conflict severity = %s, want major", conflict.Severity)
	}
	if conflict.IsBlocking() {
		t.Error("resource conflicts warn, they must never block")
	}

	// The shared capability must not affect each module's own resolvability.
	plan, err := service.AnalyzeModuleDependencies(context.Background(), "id-a", "company-1", nil)
	if err != nil {
		t.Fatalf("AnalyzeModuleDependencies failed: %v", err)
	}
	if !plan.Resolvable {
		t.Errorf("module sharing a capability should still resolve alone: %v", plan.Conflicts)
	}
}

func TestSuggestDependencyResolutionMergesGenericAndSpecific(t *testing.T) {
	service := NewResolutionService(NewMemoryModuleStore(), NewTestLogger())
	conflicts := []DependencyConflict{
		{
			Type:        ConflictMissingDependency,
			ModuleName:  "accounting",
			Severity:    SeverityCritical,
			Suggestions: []string{"install module 'billing' first"},
		},
		{
			Type:       ConflictResourceConflict,
			ModuleName: "pdf-export",
			Severity:   SeverityMajor,
		},
	}

	suggestions := service.SuggestDependencyResolution(conflicts)
	if len(suggestions) != 2 {
		t.Fatalf("expected suggestions for 2 modules, got %v", suggestions)
	}
	if got := suggestions["accounting"]; len(got) != 2 {
		t.Errorf("accounting suggestions = %v, want generic + specific", got)
	}
	if got := suggestions["pdf-export"]; len(got) != 1 {
		t.Errorf("pdf-export suggestions = %v, want the generic entry", got)
	}
}

func TestValidateUpgradeCompatibilityReportsDependents(t *testing.T) {
	store := NewMemoryModuleStore()
	store.PutModule(descriptorWith("id-core", "contacts", "1.2.0", nil))
	store.PutModule(descriptorWith("id-crm", "crm", "2.0.0", &ManifestModel{
		Dependencies: []DependencyDeclaration{
			{Name: "contacts", Kind: DependencyModule, VersionConstraint: "^1.0"},
		},
	}))
	store.PutInstallation(&Installation{ModuleID: "id-core", CompanyID: "company-1", Status: "active"})
	store.PutInstallation(&Installation{ModuleID: "id-crm", CompanyID: "company-1", Status: "active"})

	service := NewResolutionService(store, NewTestLogger())
	conflicts, err := service.ValidateUpgradeCompatibility(context.Background(), "id-core", "2.0.0", "company-1")
	if err != nil {
		t.Fatalf("ValidateUpgradeCompatibility failed: %v", err)
	}

	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %v", conflicts)
	}
	conflict := conflicts[0]
	if conflict.Type != ConflictVersionMismatch {
		t.Errorf("conflict type = %s, want %s", conflict.Type, ConflictVersionMismatch)
	}
	if conflict.Severity != SeverityMinor {
		t.Errorf("severity = %s, want minor", conflict.Severity)
	}
	if conflict.ConflictingModule != "crm" {
		t.Errorf("conflicting module = %s, want crm", conflict.ConflictingModule)
	}
}

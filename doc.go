// Package modreg implements the dependency-resolution engine and the
// plugin-loading runtime behind a multi-tenant module registry. It answers two
// questions for a company-scoped module ecosystem: whether a module can be
// installed given what a tenant already runs (and in what order), and how an
// approved module package is extracted, validated, loaded, initialized,
// health-checked and later unloaded without leaking state.
//
// Key Features:
//   - Dependency graph construction from module manifests
//   - Conflict detection (missing, circular, incompatible, resource)
//   - Deterministic topological install-order planning
//   - Upgrade compatibility analysis against installed dependents
//   - Rollback-safe package extraction, validation and dynamic loading
//   - Per-module lifecycle state machine with timeout-bounded hooks
//   - Health monitoring with defensive result normalization
//   - Graceful shutdown with best-effort unload of every loaded module
//
// Basic Usage:
//
//	store := modreg.NewMemoryModuleStore()
//	blobs := modreg.NewMemoryBlobStore()
//
//	resolution := modreg.NewResolutionService(store, logger)
//	plan, err := resolution.AnalyzeModuleDependencies(ctx, "mod-billing", "acme", nil)
//	if err != nil || !plan.Resolvable {
//		// surface plan.Conflicts to the caller
//	}
//
//	loader, err := modreg.NewModuleLoader(store, blobs, modreg.DefaultLoaderOptions(), logger)
//	for _, moduleID := range plan.InstallOrder {
//		if _, err := loader.LoadModule(ctx, moduleID, "acme"); err != nil {
//			// load failures never leave partial state behind
//		}
//	}
//
// The package is a library boundary: persistence, manifest schema validation,
// authorization and the HTTP surface live in the consuming service. External
// collaborators are expressed as the ModuleStore and BlobStore interfaces.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package modreg

// upgrade_checker.go: Upgrade compatibility analysis against installed dependents
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// UpgradeChecker inspects the reverse-dependents of a module before a version
// bump and reports every installed module that would be affected.
//
// The checker does not evaluate version-constraint satisfaction against the
// candidate version: dependents are reported as minor VERSION_MISMATCH
// conflicts with generic verification guidance, and the decision stays with
// the operator. The candidate version string itself must parse as a semantic
// version.
type UpgradeChecker struct {
	store  ModuleStore
	logger Logger
}

// NewUpgradeChecker creates an upgrade compatibility checker.
func NewUpgradeChecker(store ModuleStore, logger Logger) *UpgradeChecker {
	return &UpgradeChecker{
		store:  store,
		logger: ensureLogger(logger),
	}
}

// Check returns the conflicts an upgrade of moduleID to newVersion would
// raise for the given company.
//
// A module that is not installed for the company yields a single critical
// MISSING_DEPENDENCY conflict. Otherwise each installed dependent yields one
// minor VERSION_MISMATCH conflict carrying its declared constraint.
func (u *UpgradeChecker) Check(ctx context.Context, moduleID, newVersion, companyID string) ([]DependencyConflict, error) {
	target, err := u.store.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	if _, err := semver.NewVersion(newVersion); err != nil {
		return nil, NewInvalidVersionError(newVersion, err)
	}

	if _, err := u.store.GetInstallation(ctx, moduleID, companyID); err != nil {
		return []DependencyConflict{{
			Type:       ConflictMissingDependency,
			ModuleName: target.Name,
			Description: fmt.Sprintf("module '%s' is not installed for company '%s'",
				target.Name, companyID),
			Severity:    SeverityCritical,
			Suggestions: []string{fmt.Sprintf("install module '%s' before upgrading it", target.Name)},
		}}, nil
	}

	dependents, err := u.store.ListDependentInstallations(ctx, moduleID, companyID)
	if err != nil {
		return nil, NewStoreFailureError("list dependent installations", err)
	}

	conflicts := make([]DependencyConflict, 0, len(dependents))
	for _, dependent := range dependents {
		constraint := u.declaredConstraint(dependent, target.Name)
		conflicts = append(conflicts, DependencyConflict{
			Type:              ConflictVersionMismatch,
			ModuleName:        target.Name,
			ConflictingModule: dependent.Name,
			Description: fmt.Sprintf("installed module '%s' depends on '%s' (constraint %q); upgrading %s -> %s may break it",
				dependent.Name, target.Name, constraint, target.Version, newVersion),
			Severity: SeverityMinor,
			Suggestions: []string{
				fmt.Sprintf("verify '%s' is compatible with '%s' %s", dependent.Name, target.Name, newVersion),
				"run the dependent module's test suite against the new version",
				fmt.Sprintf("pin '%s' to version %s until compatibility is confirmed", target.Name, target.Version),
			},
		})
	}

	u.logger.Debug("Upgrade compatibility checked",
		"module", target.Name,
		"new_version", newVersion,
		"dependents", len(dependents))
	return conflicts, nil
}

func (u *UpgradeChecker) declaredConstraint(dependent *ModuleDescriptor, targetName string) string {
	if dependent.Manifest == nil {
		return "*"
	}
	for _, dep := range dependent.Manifest.Dependencies {
		if dep.Kind == DependencyModule && dep.Name == targetName {
			if dep.VersionConstraint != "" {
				return dep.VersionConstraint
			}
			break
		}
	}
	return "*"
}

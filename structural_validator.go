// structural_validator.go: File-system validation of extracted module trees
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"os"
	"path/filepath"
	"strings"
)

// StructuralValidator confirms an extracted module tree is loadable before
// any code runs: the tree must carry an initialization unit at the root or at
// least one loadable source file, and every entry point and event handler the
// manifest declares must resolve to an on-disk file or sub-package location.
//
// Validation is a pure file-system check. No code is executed and no shared
// state is touched, so a validation failure is always safe to retry after
// repackaging.
type StructuralValidator struct {
	extensions []string
	logger     Logger
}

// NewStructuralValidator creates a validator that recognizes the given
// loadable source extensions (e.g. ".wasm", ".js").
func NewStructuralValidator(loadableExtensions []string, logger Logger) *StructuralValidator {
	return &StructuralValidator{
		extensions: append([]string(nil), loadableExtensions...),
		logger:     ensureLogger(logger),
	}
}

// Validate checks the extracted tree at dir against the manifest. Failures
// name the missing entry point or handler reference.
func (v *StructuralValidator) Validate(dir string, manifest *ManifestModel) error {
	if err := v.validateRoot(dir, manifest.Name); err != nil {
		return err
	}

	for _, entryPoint := range manifest.EntryPoints {
		if entryPoint.Name == "" || entryPoint.Function == "" {
			return NewEntryPointUnresolvableError(manifest.Name, entryPoint.Name+":"+entryPoint.Function)
		}
		if !v.modulePathExists(dir, entryPoint.ModulePath) {
			return NewEntryPointUnresolvableError(manifest.Name, entryPoint.ModulePath+"."+entryPoint.Function)
		}
	}

	for _, handler := range manifest.EventHandlers {
		reference, err := ParseHandlerReference(manifest.Name, handler.Handler)
		if err != nil {
			return NewEntryPointUnresolvableError(manifest.Name, handler.Handler)
		}
		if !v.modulePathExists(dir, reference.ModulePath) {
			return NewEntryPointUnresolvableError(manifest.Name, handler.Handler)
		}
	}

	return nil
}

// validateRoot checks for an init unit at the root, falling back to any
// loadable source file at the top level.
func (v *StructuralValidator) validateRoot(dir, moduleName string) error {
	for _, ext := range v.extensions {
		if fileExists(filepath.Join(dir, "init"+ext)) {
			return nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return NewStructureInvalidError(moduleName, "working directory unreadable")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if v.isLoadable(entry.Name()) {
			return nil
		}
	}
	return NewStructureInvalidError(moduleName, "no init unit or loadable source file at package root")
}

// modulePathExists resolves a dotted module path against the tree. Every
// segment but the last must be a directory; the last segment may be a
// loadable source file of that base name, or a sub-package directory holding
// its own init unit or loadable sources.
func (v *StructuralValidator) modulePathExists(dir, modulePath string) bool {
	if modulePath == "" {
		return true // root-level reference, already covered by validateRoot
	}

	segments := strings.Split(modulePath, ".")
	current := dir
	for i, segment := range segments {
		if segment == "" {
			return false
		}
		last := i == len(segments)-1
		if !last {
			current = filepath.Join(current, segment)
			if !dirExists(current) {
				return false
			}
			continue
		}

		for _, ext := range v.extensions {
			if fileExists(filepath.Join(current, segment+ext)) {
				return true
			}
		}
		subPackage := filepath.Join(current, segment)
		if dirExists(subPackage) {
			return v.hasLoadableContent(subPackage)
		}
		return false
	}
	return true
}

func (v *StructuralValidator) hasLoadableContent(dir string) bool {
	for _, ext := range v.extensions {
		if fileExists(filepath.Join(dir, "init"+ext)) {
			return true
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && v.isLoadable(entry.Name()) {
			return true
		}
	}
	return false
}

func (v *StructuralValidator) isLoadable(fileName string) bool {
	for _, ext := range v.extensions {
		if strings.HasSuffix(fileName, ext) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// errors.go: structured error definitions for the module registry core
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for the module registry core.
//
// Codes split into two families that mirror the error taxonomy: validation
// codes (structural preconditions; never mutate shared state) and load codes
// (abort an in-progress load/unload and trigger partial-state cleanup).
const (
	// Resolution errors (1000-1099)
	ErrCodeModuleNotFound = "MODREG_1001"
	ErrCodeStoreFailure   = "MODREG_1002"
	ErrCodeCycleDetected  = "MODREG_1003"
	ErrCodeNotInstalled   = "MODREG_1004"

	// Manifest and structural validation errors (1100-1199)
	ErrCodeManifestParse          = "MODREG_1101"
	ErrCodeInvalidModuleName      = "MODREG_1102"
	ErrCodeInvalidVersion         = "MODREG_1103"
	ErrCodeStructureInvalid       = "MODREG_1104"
	ErrCodeEntryPointUnresolvable = "MODREG_1105"
	ErrCodeDependencyNotInstalled = "MODREG_1106"
	ErrCodeIncompatibleInstalled  = "MODREG_1107"

	// Package extraction errors (1200-1299)
	ErrCodeUnsupportedArchive = "MODREG_1201"
	ErrCodeExtractionFailed   = "MODREG_1202"
	ErrCodePathTraversal      = "MODREG_1203"
	ErrCodeStorageRoot        = "MODREG_1204"
	ErrCodeFileTooLarge       = "MODREG_1205"

	// Dynamic loading errors (1300-1399)
	ErrCodeNamespaceCollision  = "MODREG_1301"
	ErrCodeRuntimeLoadFailed   = "MODREG_1302"
	ErrCodeReferenceUnresolved = "MODREG_1303"
	ErrCodeAlreadyLoaded       = "MODREG_1304"
	ErrCodeMaxModulesReached   = "MODREG_1305"

	// Lifecycle hook errors (1400-1499)
	ErrCodeHookFailed  = "MODREG_1401"
	ErrCodeHookTimeout = "MODREG_1402"
	ErrCodeHookPanic   = "MODREG_1403"

	// Registry errors (1500-1599)
	ErrCodeRegistryClosed  = "MODREG_1501"
	ErrCodeModuleNotLoaded = "MODREG_1502"
	ErrCodeShutdownFailed  = "MODREG_1503"

	// Loader configuration errors (1600-1699)
	ErrCodeOptionsNotFound   = "MODREG_1601"
	ErrCodeOptionsParse      = "MODREG_1602"
	ErrCodeOptionsValidation = "MODREG_1603"
	ErrCodeOptionsWatcher    = "MODREG_1604"
)

// validationCodes is the set of codes classified as validation errors.
// Validation errors indicate a structural precondition was not met before any
// shared state changed; callers may retry after fixing the package/manifest.
var validationCodes = map[string]struct{}{
	ErrCodeManifestParse:          {},
	ErrCodeInvalidModuleName:      {},
	ErrCodeInvalidVersion:         {},
	ErrCodeStructureInvalid:       {},
	ErrCodeEntryPointUnresolvable: {},
	ErrCodeDependencyNotInstalled: {},
	ErrCodeIncompatibleInstalled:  {},
	ErrCodeOptionsValidation:      {},
}

// loadCodes is the set of codes classified as load errors. Load errors abort
// the in-progress load/unload and always run partial-state cleanup first.
var loadCodes = map[string]struct{}{
	ErrCodeUnsupportedArchive:  {},
	ErrCodeExtractionFailed:    {},
	ErrCodePathTraversal:       {},
	ErrCodeStorageRoot:         {},
	ErrCodeFileTooLarge:        {},
	ErrCodeNamespaceCollision:  {},
	ErrCodeRuntimeLoadFailed:   {},
	ErrCodeReferenceUnresolved: {},
	ErrCodeAlreadyLoaded:       {},
	ErrCodeMaxModulesReached:   {},
	ErrCodeHookFailed:          {},
	ErrCodeHookTimeout:         {},
	ErrCodeHookPanic:           {},
}

// ErrorCode extracts the structured error code from err, or "" when err does
// not carry one.
func ErrorCode(err error) string {
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return string(structured.Code)
	}
	return ""
}

// IsValidationError reports whether err is a module validation error:
// a structural precondition failed and no shared state was mutated.
func IsValidationError(err error) bool {
	_, ok := validationCodes[ErrorCode(err)]
	return ok
}

// IsLoadError reports whether err is a module load error: an in-progress
// load/unload was aborted and partial state has been cleaned up.
func IsLoadError(err error) bool {
	_, ok := loadCodes[ErrorCode(err)]
	return ok
}

// Resolution error constructors

func NewModuleNotFoundError(moduleID string) *errors.Error {
	return errors.New(ErrCodeModuleNotFound, "Module not found").
		WithUserMessage("The requested module does not exist in the registry").
		WithContext("module_id", moduleID).
		WithSeverity("error")
}

func NewStoreFailureError(operation string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStoreFailure, "Module store operation failed: "+operation).
		WithUserMessage("The module store could not complete the request").
		WithContext("operation", operation).
		WithSeverity("error").
		AsRetryable()
}

func NewCycleDetectedError(moduleName string) *errors.Error {
	return errors.New(ErrCodeCycleDetected, "Circular dependency detected").
		WithUserMessage("The module's dependency graph contains a cycle").
		WithContext("module_name", moduleName).
		WithSeverity("error")
}

func NewNotInstalledError(moduleID, companyID string) *errors.Error {
	return errors.New(ErrCodeNotInstalled, "Module not installed").
		WithUserMessage("The module is not installed for this company").
		WithContext("module_id", moduleID).
		WithContext("company_id", companyID).
		WithSeverity("error")
}

// Validation error constructors

func NewManifestParseError(cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeManifestParse, "Manifest parse error").
		WithUserMessage("The module manifest document could not be parsed").
		WithSeverity("error")
}

func NewInvalidModuleNameError(name string) *errors.Error {
	return errors.New(ErrCodeInvalidModuleName, "Invalid module name").
		WithUserMessage("Module name is required and cannot be empty").
		WithContext("provided_name", name).
		WithSeverity("error")
}

func NewInvalidVersionError(version string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInvalidVersion, "Invalid module version").
		WithUserMessage("Module version is not a valid semantic version").
		WithContext("version", version).
		WithSeverity("error")
}

func NewStructureInvalidError(moduleName, reason string) *errors.Error {
	return errors.New(ErrCodeStructureInvalid, "Module structure invalid: "+reason).
		WithUserMessage("The extracted module package has no loadable entry unit").
		WithContext("module_name", moduleName).
		WithSeverity("error")
}

func NewEntryPointUnresolvableError(moduleName, reference string) *errors.Error {
	return errors.New(ErrCodeEntryPointUnresolvable, "Entry point unresolvable: "+reference).
		WithUserMessage("A declared entry point or event handler does not resolve to a callable").
		WithContext("module_name", moduleName).
		WithContext("reference", reference).
		WithSeverity("error")
}

func NewDependencyNotInstalledError(moduleName, dependency string) *errors.Error {
	return errors.New(ErrCodeDependencyNotInstalled, "Required dependency not installed").
		WithUserMessage("A required dependency must be installed before this module can load").
		WithContext("module_name", moduleName).
		WithContext("dependency", dependency).
		WithSeverity("error")
}

func NewIncompatibleInstalledError(moduleName, installedName string) *errors.Error {
	return errors.New(ErrCodeIncompatibleInstalled, "Incompatible module installed").
		WithUserMessage("An installed module is declared incompatible with the module being loaded").
		WithContext("module_name", moduleName).
		WithContext("installed_module", installedName).
		WithSeverity("error")
}

// Extraction error constructors

func NewUnsupportedArchiveError(moduleName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeUnsupportedArchive, "Unsupported package format").
		WithUserMessage("The package blob is neither a gzip tarball nor a zip archive").
		WithContext("module_name", moduleName).
		WithSeverity("error")
}

func NewExtractionFailedError(moduleName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeExtractionFailed, "Package extraction failed").
		WithUserMessage("The package could not be extracted into the working directory").
		WithContext("module_name", moduleName).
		WithSeverity("error")
}

func NewPathTraversalError(entry string) *errors.Error {
	return errors.New(ErrCodePathTraversal, "Path traversal attempt detected").
		WithUserMessage("The package contains an entry that escapes the working directory").
		WithContext("archive_entry", entry).
		WithSeverity("error")
}

func NewFileTooLargeError(entry string, limit int64) *errors.Error {
	return errors.New(ErrCodeFileTooLarge, "Extracted file exceeds size limit").
		WithUserMessage("The package contains an entry larger than the decompressed size limit").
		WithContext("archive_entry", entry).
		WithContext("limit_bytes", limit).
		WithSeverity("error")
}

func NewStorageRootError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStorageRoot, "Storage root unavailable").
		WithUserMessage("The extraction storage root could not be prepared").
		WithContext("storage_root", path).
		WithSeverity("error")
}

// Loading error constructors

func NewNamespaceCollisionError(namespace string) *errors.Error {
	return errors.New(ErrCodeNamespaceCollision, "Namespace collision").
		WithUserMessage("Another loaded module already occupies this namespace").
		WithContext("namespace", namespace).
		WithSeverity("error")
}

func NewRuntimeLoadFailedError(moduleName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeRuntimeLoadFailed, "Code unit load failed").
		WithUserMessage("The module's code unit could not be loaded into the runtime").
		WithContext("module_name", moduleName).
		WithSeverity("error")
}

func NewReferenceUnresolvedError(moduleName, reference string) *errors.Error {
	return errors.New(ErrCodeReferenceUnresolved, "Reference unresolved: "+reference).
		WithUserMessage("A declared reference does not resolve to a callable in the loaded unit").
		WithContext("module_name", moduleName).
		WithContext("reference", reference).
		WithSeverity("error")
}

func NewAlreadyLoadedError(moduleID string) *errors.Error {
	return errors.New(ErrCodeAlreadyLoaded, "Module already loaded").
		WithUserMessage("A module with this id is already present in the registry").
		WithContext("module_id", moduleID).
		WithSeverity("warning")
}

func NewMaxModulesReachedError(limit int) *errors.Error {
	return errors.New(ErrCodeMaxModulesReached, "Maximum loaded modules reached").
		WithUserMessage("The loader refuses new modules until one is unloaded").
		WithContext("limit", limit).
		WithSeverity("warning")
}

// Lifecycle hook error constructors

func NewHookFailedError(moduleName, hook string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeHookFailed, "Lifecycle hook failed: "+hook).
		WithUserMessage("A module lifecycle hook returned an error").
		WithContext("module_name", moduleName).
		WithContext("hook", hook).
		WithSeverity("error")
}

func NewHookTimeoutError(moduleName, hook string, timeout interface{}) *errors.Error {
	return errors.New(ErrCodeHookTimeout, "Lifecycle hook timeout: "+hook).
		WithUserMessage("A module lifecycle hook exceeded the configured timeout").
		WithContext("module_name", moduleName).
		WithContext("hook", hook).
		WithContext("timeout", timeout).
		WithSeverity("warning").
		AsRetryable()
}

func NewHookPanicError(moduleName, hook string, recovered interface{}) *errors.Error {
	return errors.New(ErrCodeHookPanic, "Lifecycle hook panicked: "+hook).
		WithUserMessage("A module lifecycle hook panicked and was recovered").
		WithContext("module_name", moduleName).
		WithContext("hook", hook).
		WithContext("panic", recovered).
		WithSeverity("error")
}

// Registry error constructors

func NewRegistryClosedError() *errors.Error {
	return errors.New(ErrCodeRegistryClosed, "Loader is shut down").
		WithUserMessage("The module loader is shutting down and rejects new operations").
		WithSeverity("warning")
}

func NewModuleNotLoadedError(moduleID string) *errors.Error {
	return errors.New(ErrCodeModuleNotLoaded, "Module not loaded").
		WithUserMessage("No loaded module with this id exists in the registry").
		WithContext("module_id", moduleID).
		WithSeverity("warning")
}

func NewShutdownFailedError(failed int, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeShutdownFailed, "Shutdown completed with failures").
		WithUserMessage("One or more modules failed to unload during shutdown").
		WithContext("failed_unloads", failed).
		WithSeverity("warning")
}

// Loader configuration error constructors

func NewOptionsNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeOptionsNotFound, "Loader options file not found").
		WithUserMessage("The loader options file could not be found").
		WithContext("options_path", path).
		WithSeverity("error")
}

func NewOptionsParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeOptionsParse, "Loader options parse error").
		WithUserMessage("Failed to parse the loader options file").
		WithContext("options_path", path).
		WithSeverity("error")
}

func NewOptionsValidationError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeOptionsValidation, "Loader options validation error: "+message).
			WithUserMessage("Loader options validation failed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeOptionsValidation, "Loader options validation error: "+message).
		WithUserMessage("Loader options validation failed").
		WithSeverity("error")
}

func NewOptionsWatcherError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeOptionsWatcher, "Loader options watcher error: "+message).
		WithUserMessage("Loader options monitoring failed").
		WithSeverity("error")
}

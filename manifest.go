// manifest.go: Typed module manifest model and default manifest provider
//
// The manifest is the declarative surface of a module: its dependencies,
// declared conflicts, provided capabilities, entry points and event-handler
// bindings. Schema validation happens upstream; this file only parses a raw
// document into the typed model consumed read-only by the resolution engine
// and the loading runtime.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// DependencyKind distinguishes module dependencies, which participate in
// graph resolution, from library dependencies, which are satisfied by the
// packaging toolchain and ignored here.
type DependencyKind string

const (
	DependencyModule  DependencyKind = "module"
	DependencyLibrary DependencyKind = "library"
)

// DependencyDeclaration is one declared dependency of a module.
type DependencyDeclaration struct {
	Name              string         `json:"name" yaml:"name"`
	VersionConstraint string         `json:"version_constraint,omitempty" yaml:"version_constraint"`
	Kind              DependencyKind `json:"kind" yaml:"kind"`
	Optional          bool           `json:"optional" yaml:"optional"`
}

// EntryPointSpec declares one named callable exposed by a module's code unit.
// ModulePath is the dotted path of the unit that holds the function.
type EntryPointSpec struct {
	Name       string `json:"name" yaml:"name"`
	ModulePath string `json:"module_path" yaml:"module_path"`
	Function   string `json:"function" yaml:"function"`
}

// EventHandlerSpec binds an event-name pattern to a "module.path:function"
// handler reference inside the module's code unit.
type EventHandlerSpec struct {
	EventPattern string `json:"event_pattern" yaml:"event_pattern"`
	Handler      string `json:"handler" yaml:"handler"`
}

// ManifestModel is the parsed, typed representation of a module manifest.
//
// Instances are produced by an external validator (or ParseManifest for
// embedded use) and consumed read-only by every component in this package.
type ManifestModel struct {
	Name          string                  `json:"name" yaml:"name"`
	Version       string                  `json:"version" yaml:"version"`
	Description   string                  `json:"description,omitempty" yaml:"description"`
	Dependencies  []DependencyDeclaration `json:"dependencies,omitempty" yaml:"dependencies"`
	Conflicts     []string                `json:"conflicts,omitempty" yaml:"conflicts"`
	Provides      []string                `json:"provides,omitempty" yaml:"provides"`
	EntryPoints   []EntryPointSpec        `json:"entry_points,omitempty" yaml:"entry_points"`
	EventHandlers []EventHandlerSpec      `json:"event_handlers,omitempty" yaml:"event_handlers"`
}

// ParseManifest parses a raw manifest document into a ManifestModel.
//
// YAML and JSON are both accepted (JSON is a YAML subset). Only structural
// well-formedness and identity fields are enforced; full schema validation is
// the upstream validator's job.
func ParseManifest(document []byte) (*ManifestModel, error) {
	var manifest ManifestModel
	if err := yaml.Unmarshal(document, &manifest); err != nil {
		return nil, NewManifestParseError(err)
	}

	if strings.TrimSpace(manifest.Name) == "" {
		return nil, NewInvalidModuleNameError(manifest.Name)
	}
	if manifest.Version != "" {
		if _, err := semver.NewVersion(manifest.Version); err != nil {
			return nil, NewInvalidVersionError(manifest.Version, err)
		}
	}

	for i := range manifest.Dependencies {
		if manifest.Dependencies[i].Kind == "" {
			manifest.Dependencies[i].Kind = DependencyModule
		}
	}

	return &manifest, nil
}

// RequiredModuleDependencies returns the names of required (non-optional)
// module-kind dependencies.
func (m *ManifestModel) RequiredModuleDependencies() []string {
	return m.moduleDependencies(false)
}

// OptionalModuleDependencies returns the names of optional module-kind
// dependencies.
func (m *ManifestModel) OptionalModuleDependencies() []string {
	return m.moduleDependencies(true)
}

func (m *ManifestModel) moduleDependencies(optional bool) []string {
	names := make([]string, 0, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		if dep.Kind != DependencyModule {
			continue
		}
		if dep.Optional == optional {
			names = append(names, dep.Name)
		}
	}
	return names
}

// ProvidedCapabilities returns the manifest's provides list, defaulting to
// the module's own name when the extension field is absent.
func (m *ManifestModel) ProvidedCapabilities() []string {
	if len(m.Provides) > 0 {
		return m.Provides
	}
	return []string{m.Name}
}

// HandlerReference is a parsed "module.path:function" event-handler reference.
type HandlerReference struct {
	ModulePath string
	Function   string
}

// ParseHandlerReference splits a declared handler reference into its module
// path and function name. The reference must contain exactly one colon with
// non-empty parts on both sides.
func ParseHandlerReference(moduleName, ref string) (HandlerReference, error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return HandlerReference{}, NewReferenceUnresolvedError(moduleName, ref)
	}
	return HandlerReference{ModulePath: parts[0], Function: parts[1]}, nil
}

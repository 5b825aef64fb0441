// reference_resolver.go: Binding manifest declarations to registered callables
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

// ReferenceResolver binds the manifest's declared entry points and event
// handlers to the callables the loaded code unit registered in its
// capability record.
//
// The manifest stays declarative ("name -> dotted.path.function",
// "pattern -> module.path:function") while resolution happens against the
// record the unit populated at load time: entry points are looked up by
// declared name, handlers by their full reference string. A declaration with
// no matching callable, or a nil callable, fails resolution naming the
// offending reference.
type ReferenceResolver struct {
	logger Logger
}

// NewReferenceResolver creates a reference resolver.
func NewReferenceResolver(logger Logger) *ReferenceResolver {
	return &ReferenceResolver{logger: ensureLogger(logger)}
}

// Resolve returns the entry-point map (name -> callable) and event-handler
// map (pattern -> callable) for a loaded unit, or an error naming the first
// unresolvable reference.
func (r *ReferenceResolver) Resolve(manifest *ManifestModel, record *CapabilityRecord) (map[string]EntryPointFunc, map[string]EventHandlerFunc, error) {
	if record == nil {
		record = &CapabilityRecord{}
	}

	entryPoints := make(map[string]EntryPointFunc, len(manifest.EntryPoints))
	for _, declared := range manifest.EntryPoints {
		callable := record.EntryPoints[declared.Name]
		if callable == nil {
			return nil, nil, NewReferenceUnresolvedError(manifest.Name, declared.ModulePath+"."+declared.Function)
		}
		entryPoints[declared.Name] = callable
	}

	eventHandlers := make(map[string]EventHandlerFunc, len(manifest.EventHandlers))
	for _, declared := range manifest.EventHandlers {
		if _, err := ParseHandlerReference(manifest.Name, declared.Handler); err != nil {
			return nil, nil, err
		}
		callable := record.EventHandlers[declared.Handler]
		if callable == nil {
			return nil, nil, NewReferenceUnresolvedError(manifest.Name, declared.Handler)
		}
		eventHandlers[declared.EventPattern] = callable
	}

	r.logger.Debug("References resolved",
		"module", manifest.Name,
		"entry_points", len(entryPoints),
		"event_handlers", len(eventHandlers))
	return entryPoints, eventHandlers, nil
}

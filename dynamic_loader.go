// dynamic_loader.go: Namespace-isolated code-unit loading with rollback
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
)

// DynamicLoader loads validated code units into isolated execution contexts.
//
// Each load synthesizes a unique namespace derived from the module name and
// id, guaranteed not to collide with any other currently-loaded module. The
// actual code-unit load is delegated to a pluggable CodeRuntime; on any
// failure the partially-registered namespace is released before the error is
// returned, so a failed load leaves no registration residue.
type DynamicLoader struct {
	runtime CodeRuntime
	logger  Logger

	mu         sync.Mutex
	namespaces map[string]string // namespace -> module id
}

// NewDynamicLoader creates a dynamic loader over the given runtime.
func NewDynamicLoader(runtime CodeRuntime, logger Logger) *DynamicLoader {
	return &DynamicLoader{
		runtime:    runtime,
		logger:     ensureLogger(logger),
		namespaces: make(map[string]string),
	}
}

// Load reserves a namespace for the module and loads its code unit. The
// returned namespace must be handed back to Release when the module unloads.
func (d *DynamicLoader) Load(ctx context.Context, moduleID, dir string, manifest *ManifestModel) (string, CodeUnit, error) {
	namespace := synthesizeNamespace(manifest.Name, moduleID)

	d.mu.Lock()
	if owner, taken := d.namespaces[namespace]; taken {
		d.mu.Unlock()
		d.logger.Warn("Namespace collision on load",
			"namespace", namespace,
			"owner_module_id", owner)
		return "", nil, NewNamespaceCollisionError(namespace)
	}
	d.namespaces[namespace] = moduleID
	d.mu.Unlock()

	unit, err := d.runtime.Load(ctx, namespace, dir, manifest)
	if err != nil {
		// Undo the partial registration before surfacing the failure.
		d.Release(namespace)
		if ErrorCode(err) == ErrCodeRuntimeLoadFailed {
			return "", nil, err
		}
		return "", nil, NewRuntimeLoadFailedError(manifest.Name, err)
	}

	d.logger.Debug("Code unit loaded",
		"module", manifest.Name,
		"module_id", moduleID,
		"namespace", namespace)
	return namespace, unit, nil
}

// Release removes a namespace registration. Releasing an unknown namespace
// is a no-op, so cleanup paths can call it unconditionally.
func (d *DynamicLoader) Release(namespace string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.namespaces, namespace)
}

// Namespaces returns a snapshot of currently-registered namespaces mapped to
// their module ids.
func (d *DynamicLoader) Namespaces() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := make(map[string]string, len(d.namespaces))
	for namespace, moduleID := range d.namespaces {
		snapshot[namespace] = moduleID
	}
	return snapshot
}

// synthesizeNamespace derives a collision-free execution namespace from the
// module name plus a short digest of the module id.
func synthesizeNamespace(moduleName, moduleID string) string {
	digest := fnv.New32a()
	_, _ = digest.Write([]byte(moduleID))
	return fmt.Sprintf("modreg_%s_%08x", sanitizeNamespace(moduleName), digest.Sum32())
}

func sanitizeNamespace(name string) string {
	var builder strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			builder.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(r + ('a' - 'A'))
		default:
			builder.WriteRune('_')
		}
	}
	return builder.String()
}

// store.go: External collaborator interfaces and in-memory implementations
//
// The core never writes to the module/installation store: installation-record
// mutation is the calling service's responsibility after consulting the
// resolution engine. The in-memory implementations exist for embedding,
// examples and tests.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// ModuleStore is the persistence-backed collaborator that owns Module and
// Installation records.
type ModuleStore interface {
	// GetModule returns the descriptor for a module id.
	GetModule(ctx context.Context, moduleID string) (*ModuleDescriptor, error)

	// ListModulesByIDs returns descriptors for the given ids. Unknown ids are
	// silently absent from the result; the resolution engine treats absence
	// as a missing dependency, not an error.
	ListModulesByIDs(ctx context.Context, moduleIDs []string) ([]*ModuleDescriptor, error)

	// ListInstalledModules returns the modules currently installed for a company.
	ListInstalledModules(ctx context.Context, companyID string) ([]*ModuleDescriptor, error)

	// GetInstallation returns the tenant-scoped installation record that
	// authorizes a load, or an error when none exists.
	GetInstallation(ctx context.Context, moduleID, companyID string) (*Installation, error)

	// ListDependentInstallations returns the installed modules of a company
	// whose manifests declare the given module as a dependency.
	ListDependentInstallations(ctx context.Context, moduleID, companyID string) ([]*ModuleDescriptor, error)
}

// BlobStore supplies the raw package bytes for a module id.
type BlobStore interface {
	OpenPackage(ctx context.Context, moduleID string) (io.ReadCloser, error)
}

// MemoryModuleStore is a thread-safe in-memory ModuleStore.
type MemoryModuleStore struct {
	mu            sync.RWMutex
	modules       map[string]*ModuleDescriptor        // module id -> descriptor
	installations map[string]map[string]*Installation // company id -> module id -> installation
}

// NewMemoryModuleStore creates an empty in-memory module store.
func NewMemoryModuleStore() *MemoryModuleStore {
	return &MemoryModuleStore{
		modules:       make(map[string]*ModuleDescriptor),
		installations: make(map[string]map[string]*Installation),
	}
}

// PutModule registers or replaces a module descriptor.
func (s *MemoryModuleStore) PutModule(descriptor *ModuleDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[descriptor.ID] = descriptor
}

// PutInstallation registers or replaces an installation record.
func (s *MemoryModuleStore) PutInstallation(installation *Installation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	company := s.installations[installation.CompanyID]
	if company == nil {
		company = make(map[string]*Installation)
		s.installations[installation.CompanyID] = company
	}
	company[installation.ModuleID] = installation
}

// RemoveInstallation deletes an installation record if present.
func (s *MemoryModuleStore) RemoveInstallation(moduleID, companyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if company := s.installations[companyID]; company != nil {
		delete(company, moduleID)
	}
}

// GetModule implements ModuleStore.
func (s *MemoryModuleStore) GetModule(ctx context.Context, moduleID string) (*ModuleDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	descriptor, ok := s.modules[moduleID]
	if !ok {
		return nil, NewModuleNotFoundError(moduleID)
	}
	return descriptor, nil
}

// ListModulesByIDs implements ModuleStore.
func (s *MemoryModuleStore) ListModulesByIDs(ctx context.Context, moduleIDs []string) ([]*ModuleDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*ModuleDescriptor, 0, len(moduleIDs))
	for _, id := range moduleIDs {
		if descriptor, ok := s.modules[id]; ok {
			result = append(result, descriptor)
		}
	}
	return result, nil
}

// ListInstalledModules implements ModuleStore.
func (s *MemoryModuleStore) ListInstalledModules(ctx context.Context, companyID string) ([]*ModuleDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*ModuleDescriptor, 0)
	for moduleID := range s.installations[companyID] {
		if descriptor, ok := s.modules[moduleID]; ok {
			result = append(result, descriptor)
		}
	}
	return result, nil
}

// GetInstallation implements ModuleStore.
func (s *MemoryModuleStore) GetInstallation(ctx context.Context, moduleID, companyID string) (*Installation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if company := s.installations[companyID]; company != nil {
		if installation, ok := company[moduleID]; ok {
			return installation, nil
		}
	}
	return nil, NewNotInstalledError(moduleID, companyID)
}

// ListDependentInstallations implements ModuleStore.
func (s *MemoryModuleStore) ListDependentInstallations(ctx context.Context, moduleID, companyID string) ([]*ModuleDescriptor, error) {
	s.mu.RLock()
	target, ok := s.modules[moduleID]
	s.mu.RUnlock()
	if !ok {
		return nil, NewModuleNotFoundError(moduleID)
	}

	installed, err := s.ListInstalledModules(ctx, companyID)
	if err != nil {
		return nil, err
	}

	dependents := make([]*ModuleDescriptor, 0)
	for _, candidate := range installed {
		if candidate.ID == moduleID || candidate.Manifest == nil {
			continue
		}
		for _, dep := range candidate.Manifest.Dependencies {
			if dep.Kind == DependencyModule && dep.Name == target.Name {
				dependents = append(dependents, candidate)
				break
			}
		}
	}
	return dependents, nil
}

// MemoryBlobStore is a thread-safe in-memory BlobStore keyed by module id.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

// PutPackage stores package bytes for a module id.
func (s *MemoryBlobStore) PutPackage(moduleID string, blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[moduleID] = blob
}

// OpenPackage implements BlobStore.
func (s *MemoryBlobStore) OpenPackage(ctx context.Context, moduleID string) (io.ReadCloser, error) {
	s.mu.RLock()
	blob, ok := s.blobs[moduleID]
	s.mu.RUnlock()
	if !ok {
		return nil, NewModuleNotFoundError(moduleID)
	}
	return io.NopCloser(bytes.NewReader(blob)), nil
}

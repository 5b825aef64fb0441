// package_extractor.go: Package blob extraction into isolated working directories
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modreg

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxDecompressedFileSize bounds a single extracted file to guard against
// decompression bombs in untrusted packages.
const maxDecompressedFileSize = 256 << 20 // 256 MiB

// PackageExtractor decompresses opaque package blobs into per-module working
// directories under one storage root.
//
// The working directory is deterministic per (name, version): an existing
// directory is destroyed and recreated on every extraction (last writer
// wins). That destroy-then-recreate strategy is not safe against two
// concurrent loads of the same module and version; the module loader
// serializes extraction under the same per-module lock it uses for
// load/unload.
//
// Packages are tried as gzip tarballs first, then as zip archives. Staging
// files used during decompression are always removed, including on failure
// paths, and archive entries that would escape the working directory are
// rejected.
type PackageExtractor struct {
	storageRoot string
	maxFileSize int64
	logger      Logger
}

// NewPackageExtractor creates an extractor rooted at storageRoot, creating
// the root if needed.
func NewPackageExtractor(storageRoot string, logger Logger) (*PackageExtractor, error) {
	if err := os.MkdirAll(storageRoot, 0o750); err != nil {
		return nil, NewStorageRootError(storageRoot, err)
	}
	return &PackageExtractor{
		storageRoot: storageRoot,
		maxFileSize: maxDecompressedFileSize,
		logger:      ensureLogger(logger),
	}, nil
}

// WorkDir returns the deterministic working directory for a module identity.
func (e *PackageExtractor) WorkDir(name, version string) string {
	return filepath.Join(e.storageRoot, sanitizePathComponent(name)+"-"+sanitizePathComponent(version))
}

// Extract decompresses the blob into the module's working directory and
// returns the directory path. On any failure the working directory and the
// staging file are removed before the error is returned.
func (e *PackageExtractor) Extract(name, version string, blob io.Reader) (string, error) {
	workDir := e.WorkDir(name, version)

	if err := os.RemoveAll(workDir); err != nil {
		return "", NewExtractionFailedError(name, err)
	}
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return "", NewExtractionFailedError(name, err)
	}

	staging, err := os.CreateTemp(e.storageRoot, ".staging-*")
	if err != nil {
		_ = os.RemoveAll(workDir)
		return "", NewExtractionFailedError(name, err)
	}
	stagingPath := staging.Name()
	defer func() {
		_ = os.Remove(stagingPath)
	}()

	if _, err := io.Copy(staging, blob); err != nil {
		_ = staging.Close()
		_ = os.RemoveAll(workDir)
		return "", NewExtractionFailedError(name, err)
	}
	if err := staging.Close(); err != nil {
		_ = os.RemoveAll(workDir)
		return "", NewExtractionFailedError(name, err)
	}

	tarErr := e.extractTarGz(stagingPath, workDir)
	if tarErr == nil {
		e.logger.Debug("Package extracted", "module", name, "version", version, "format", "tar.gz", "dir", workDir)
		return workDir, nil
	}
	// Traversal and size rejections are final; only format failures fall
	// through to zip.
	if code := ErrorCode(tarErr); code == ErrCodePathTraversal || code == ErrCodeFileTooLarge {
		_ = os.RemoveAll(workDir)
		return "", tarErr
	}

	// The tar attempt may have written partial entries before failing.
	if err := os.RemoveAll(workDir); err != nil {
		return "", NewExtractionFailedError(name, err)
	}
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return "", NewExtractionFailedError(name, err)
	}

	zipErr := e.extractZip(stagingPath, workDir)
	if zipErr == nil {
		e.logger.Debug("Package extracted", "module", name, "version", version, "format", "zip", "dir", workDir)
		return workDir, nil
	}
	if code := ErrorCode(zipErr); code == ErrCodePathTraversal || code == ErrCodeFileTooLarge {
		_ = os.RemoveAll(workDir)
		return "", zipErr
	}

	_ = os.RemoveAll(workDir)
	return "", NewUnsupportedArchiveError(name, zipErr)
}

// Remove deletes the module's working directory.
func (e *PackageExtractor) Remove(name, version string) error {
	workDir := e.WorkDir(name, version)
	if err := os.RemoveAll(workDir); err != nil {
		return NewExtractionFailedError(name, err)
	}
	return nil
}

func (e *PackageExtractor) extractTarGz(archivePath, workDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer func() { _ = gz.Close() }()

	reader := tar.NewReader(gz)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := secureJoin(workDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := e.writeExtractedFile(target, reader); err != nil {
				return err
			}
		default:
			// Symlinks and devices are not part of the package contract.
			continue
		}
	}
}

func (e *PackageExtractor) extractZip(archivePath, workDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for _, entry := range reader.File {
		target, err := secureJoin(workDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
			continue
		}

		source, err := entry.Open()
		if err != nil {
			return err
		}
		err = e.writeExtractedFile(target, source)
		_ = source.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// writeExtractedFile copies one archive entry to disk. Entries larger than
// the size limit are rejected, not truncated: a clipped file would load as
// corrupted module content. The copy reads one byte past the limit so the
// overflow is observable without decompressing the whole entry.
func (e *PackageExtractor) writeExtractedFile(target string, source io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	written, err := io.Copy(file, io.LimitReader(source, e.maxFileSize+1))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil && written > e.maxFileSize {
		return NewFileTooLargeError(filepath.Base(target), e.maxFileSize)
	}
	return err
}

// secureJoin joins an archive entry name onto the working directory and
// rejects entries that would resolve outside it.
func secureJoin(workDir, entryName string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(entryName))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", NewPathTraversalError(entryName)
	}
	return filepath.Join(workDir, cleaned), nil
}

// sanitizePathComponent keeps module identities file-system safe.
func sanitizePathComponent(component string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_", " ", "_")
	sanitized := replacer.Replace(component)
	if sanitized == "" {
		return "_"
	}
	return sanitized
}

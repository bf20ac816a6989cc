// Package flatfile is the flat-file storage backend: each version is the
// payload copied (optionally sealed) into processed/{name}/.
package flatfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
	"github.com/lakeward/datasetstore/pkg/datasetstore/storage/container"
)

// Backend is a filesystem implementation of datasetstore.StorageBackend.
type Backend struct {
	baseDir string
	cipher  datasetstore.Cipher
	logger  *slog.Logger
}

// Config options for the flat-file backend.
type Config struct {
	BaseDir string
	Cipher  datasetstore.Cipher
	Logger  *slog.Logger
}

// New creates a flat-file storage backend rooted at BaseDir.
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{baseDir: config.BaseDir, cipher: config.Cipher, logger: logger}, nil
}

// Mode identifies this backend as the flat-file representation.
func (b *Backend) Mode() datasetstore.StorageMode {
	return datasetstore.ModeFlatFile
}

// Write copies the payload to processed/{name}/{name}_v{version}{ext},
// sealing it per the request's compression and encryption settings.
func (b *Backend) Write(ctx context.Context, req datasetstore.WriteRequest) (*datasetstore.WriteResult, error) {
	ext := filepath.Ext(req.SourcePath)
	fileName := fmt.Sprintf("%s_v%s%s", req.Name, req.Version, ext)
	destPath := filepath.Join(b.baseDir, "processed", req.Name, fileName)

	if req.Encrypt && b.cipher == nil {
		b.logger.WarnContext(ctx, "encryption requested without a cipher; storing plaintext",
			"dataset", req.Name, "version", req.Version)
	}

	sealed, err := container.Seal(req.SourcePath, destPath, container.Options{
		Compress: req.Compress,
		Method:   string(req.Method),
		Encrypt:  req.Encrypt,
		Cipher:   b.cipher,
	})
	if err != nil {
		return nil, &datasetstore.StorageError{
			Mode:    b.Mode(),
			Locator: locatorFor(b.baseDir, destPath),
			Op:      "write",
			Err:     err,
		}
	}

	return &datasetstore.WriteResult{
		Locator:    locatorFor(b.baseDir, sealed.Path),
		Compressed: sealed.Compressed,
		Encrypted:  sealed.Encrypted,
		StoredSize: sealed.Size,
	}, nil
}

// Read streams the stored payload into dst, reversing the container layers.
func (b *Backend) Read(ctx context.Context, locator string, dst io.Writer) error {
	path := filepath.Join(b.baseDir, filepath.FromSlash(locator))
	if err := container.Open(path, dst, b.cipher); err != nil {
		return &datasetstore.StorageError{Mode: b.Mode(), Locator: locator, Op: "read", Err: err}
	}
	return nil
}

// Remove deletes the stored bytes and tidies empty parent directories.
func (b *Backend) Remove(ctx context.Context, locator string) error {
	path := filepath.Join(b.baseDir, filepath.FromSlash(locator))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &datasetstore.StorageError{Mode: b.Mode(), Locator: locator, Op: "remove", Err: err}
	}
	if err := os.Remove(path); err != nil {
		return &datasetstore.StorageError{Mode: b.Mode(), Locator: locator, Op: "remove", Err: err}
	}
	cleanupEmptyDirectories(b.baseDir, filepath.Dir(path))
	return nil
}

func locatorFor(baseDir, path string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// cleanupEmptyDirectories removes empty dataset directories. The sweep stops
// before the first level under baseDir, so the fixed layout directories
// (processed/, archive/) survive the last delete.
func cleanupEmptyDirectories(baseDir, dir string) {
	for dir != baseDir && filepath.Dir(dir) != dir && filepath.Dir(dir) != baseDir {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) != 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

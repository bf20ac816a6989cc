package datasetstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Layout fixes the on-disk directory structure under the engine's base
// directory. Version locators are always stored relative to Base.
type Layout struct {
	Base string
}

// Fixed subdirectory names under the base directory.
const (
	dirRaw       = "raw"
	dirProcessed = "processed"
	dirArchive   = "archive"
	dirMetadata  = "metadata"
	dirTemp      = "temp"
)

// NewLayout creates the fixed subdirectories under base and returns the
// layout.
func NewLayout(base string) (*Layout, error) {
	if base == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	for _, sub := range []string{dirRaw, dirProcessed, dirArchive, dirMetadata, dirTemp} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}
	return &Layout{Base: base}, nil
}

// Resolve turns a base-relative locator into an absolute path.
func (l *Layout) Resolve(locator string) string {
	return filepath.Join(l.Base, filepath.FromSlash(locator))
}

// ProcessedDir returns the directory holding active version files for a
// dataset.
func (l *Layout) ProcessedDir(name string) string {
	return filepath.Join(l.Base, dirProcessed, name)
}

// ArchiveDir returns the cold-storage directory for a dataset.
func (l *Layout) ArchiveDir(name string) string {
	return filepath.Join(l.Base, dirArchive, name)
}

// TempDir returns the scratch directory used when a retrieval supplies no
// destination.
func (l *Layout) TempDir() string {
	return filepath.Join(l.Base, dirTemp)
}

// MetadataDir returns the directory holding the relational catalog file.
func (l *Layout) MetadataDir() string {
	return filepath.Join(l.Base, dirMetadata)
}

// CatalogPath returns the default SQLite catalog file path.
func (l *Layout) CatalogPath() string {
	return filepath.Join(l.MetadataDir(), "catalog.db")
}

// ArchiveLocator rewrites a processed/ locator into its archive/
// counterpart. The second return is false when the locator is not under
// processed/ (already archived, or foreign).
func (l *Layout) ArchiveLocator(locator string) (string, bool) {
	rest, ok := strings.CutPrefix(locator, dirProcessed+"/")
	if !ok {
		return locator, false
	}
	return dirArchive + "/" + rest, true
}

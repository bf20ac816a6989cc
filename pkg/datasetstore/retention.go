package datasetstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// pruneVersions keeps the newest maxVersions rows of a dataset and removes
// the excess, oldest first. Called with the dataset's name lock held, right
// after a successful store. Each excess version has its bytes deleted
// best-effort before its catalog row; a missing file is logged, never
// escalated.
func (e *engine) pruneVersions(ctx context.Context, dataset *Dataset, maxVersions int) {
	if maxVersions <= 0 {
		return
	}
	versions, err := e.catalog.ListVersions(ctx, dataset.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "retention listing failed", "dataset", dataset.Name, "error", err)
		return
	}
	if len(versions) <= maxVersions {
		return
	}

	for _, v := range versions[maxVersions:] {
		if backend, err := e.readBackend(v); err == nil {
			if err := backend.Remove(ctx, v.Locator); err != nil {
				e.logger.WarnContext(ctx, "pruned version bytes not removed",
					"dataset", dataset.Name, "version", v.Version, "locator", v.Locator, "error", err)
			}
		}
		if err := e.catalog.DeleteVersion(ctx, v.ID); err != nil {
			e.logger.WarnContext(ctx, "pruned version row not removed",
				"dataset", dataset.Name, "version", v.Version, "error", err)
		}
	}
}

// ArchiveAged relocates every non-archived dataset whose last update is
// older than its retention window into the archive tree and marks it
// archived. Failures are per-dataset: one dataset's failed relocation does
// not stop the scan.
func (e *engine) ArchiveAged(ctx context.Context) error {
	datasets, err := e.catalog.ListDatasets(ctx, DatasetFilter{IncludeArchived: false})
	if err != nil {
		return &CatalogError{Op: "archive_scan", Err: err}
	}

	now := e.clock().UTC()
	for _, d := range datasets {
		if d.RetentionDays <= 0 {
			continue
		}
		if now.Sub(d.UpdatedAt) < time.Duration(d.RetentionDays)*24*time.Hour {
			continue
		}
		if err := e.archiveDataset(ctx, d.Name); err != nil {
			e.logger.WarnContext(ctx, "dataset archival failed", "dataset", d.Name, "error", err)
		}
	}
	return nil
}

// archiveDataset moves one dataset's version files under archive/, rewrites
// their locators and flips the archived flag. The archived flag only ever
// goes false to true here; nothing in the engine resets it.
func (e *engine) archiveDataset(ctx context.Context, name string) error {
	e.locks.lock(name)
	defer e.locks.unlock(name)

	// Re-read under the lock: a concurrent store may have refreshed the
	// dataset since the scan listed it.
	dataset, err := e.catalog.GetDatasetByName(ctx, name)
	if err != nil {
		return err
	}
	if dataset.Archived {
		return nil
	}
	if e.clock().UTC().Sub(dataset.UpdatedAt) < time.Duration(dataset.RetentionDays)*24*time.Hour {
		return nil
	}

	versions, err := e.catalog.ListVersions(ctx, dataset.ID)
	if err != nil {
		return err
	}

	type move struct {
		versionID  uuid.UUID
		fromPath   string
		toPath     string
		newLocator string
	}
	moved := make([]move, 0, len(versions))

	undo := func() {
		for _, m := range moved {
			if err := os.Rename(m.toPath, m.fromPath); err != nil {
				e.logger.Warn("archival rollback failed", "path", m.toPath, "error", err)
			}
		}
	}

	for _, v := range versions {
		newLocator, ok := e.layout.ArchiveLocator(v.Locator)
		if !ok {
			continue
		}
		from := e.layout.Resolve(v.Locator)
		to := e.layout.Resolve(newLocator)
		if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
			undo()
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
		if err := moveFile(from, to); err != nil {
			undo()
			return fmt.Errorf("failed to relocate %s: %w", v.Locator, err)
		}
		moved = append(moved, move{versionID: v.ID, fromPath: from, toPath: to, newLocator: newLocator})
	}

	err = e.catalog.WithTx(ctx, func(tx Catalog) error {
		for _, m := range moved {
			if err := tx.UpdateVersionLocator(ctx, m.versionID, m.newLocator); err != nil {
				return err
			}
		}
		return tx.MarkArchived(ctx, dataset.ID)
	})
	if err != nil {
		undo()
		return &CatalogError{Op: "archive", Err: err}
	}
	return nil
}

// moveFile renames from to to, falling back to copy+remove for cross-device
// moves.
func moveFile(from, to string) error {
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(to)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(to)
		return err
	}
	return os.Remove(from)
}

// Package memory provides an in-memory catalog for tests and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
)

// Repository implements datasetstore.Catalog with mutex-guarded maps.
// Transactions operate on a deep copy of the state that replaces the live
// state only on success, so partial writes never become visible.
type Repository struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	datasets map[uuid.UUID]*datasetstore.Dataset
	byName   map[string]uuid.UUID
	versions map[uuid.UUID][]*datasetstore.DatasetVersion // dataset id -> insertion order
	metadata map[uuid.UUID]map[string]string
}

// New creates an empty in-memory catalog.
func New() *Repository {
	return &Repository{state: newState()}
}

func newState() *state {
	return &state{
		datasets: make(map[uuid.UUID]*datasetstore.Dataset),
		byName:   make(map[string]uuid.UUID),
		versions: make(map[uuid.UUID][]*datasetstore.DatasetVersion),
		metadata: make(map[uuid.UUID]map[string]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, d := range s.datasets {
		copied := *d
		c.datasets[id] = &copied
	}
	for name, id := range s.byName {
		c.byName[name] = id
	}
	for id, versions := range s.versions {
		copied := make([]*datasetstore.DatasetVersion, len(versions))
		for i, v := range versions {
			vc := *v
			copied[i] = &vc
		}
		c.versions[id] = copied
	}
	for id, entries := range s.metadata {
		copied := make(map[string]string, len(entries))
		for k, v := range entries {
			copied[k] = v
		}
		c.metadata[id] = copied
	}
	return c
}

// WithTx runs fn against a cloned state and swaps it in on success.
func (r *Repository) WithTx(ctx context.Context, fn func(tx datasetstore.Catalog) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := r.state.clone()
	if err := fn(&txCatalog{state: clone}); err != nil {
		return err
	}
	r.state = clone
	return nil
}

func (r *Repository) UpsertDataset(ctx context.Context, dataset *datasetstore.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.upsertDataset(dataset)
}

func (r *Repository) GetDatasetByName(ctx context.Context, name string) (*datasetstore.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.getDatasetByName(name)
}

func (r *Repository) ListDatasets(ctx context.Context, filter datasetstore.DatasetFilter) ([]*datasetstore.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.listDatasets(filter)
}

func (r *Repository) MarkArchived(ctx context.Context, datasetID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.markArchived(datasetID)
}

func (r *Repository) DeleteDataset(ctx context.Context, datasetID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.deleteDataset(datasetID)
}

func (r *Repository) CreateVersion(ctx context.Context, version *datasetstore.DatasetVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.createVersion(version)
}

func (r *Repository) GetVersion(ctx context.Context, datasetID uuid.UUID, label string) (*datasetstore.DatasetVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.getVersion(datasetID, label)
}

func (r *Repository) ListVersions(ctx context.Context, datasetID uuid.UUID) ([]*datasetstore.DatasetVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.listVersions(datasetID)
}

func (r *Repository) UpdateVersionLocator(ctx context.Context, versionID uuid.UUID, locator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.updateVersionLocator(versionID, locator)
}

func (r *Repository) DeleteVersion(ctx context.Context, versionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.deleteVersion(versionID)
}

func (r *Repository) SetMetadata(ctx context.Context, datasetID uuid.UUID, entries map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.setMetadata(datasetID, entries)
}

func (r *Repository) GetMetadata(ctx context.Context, datasetID uuid.UUID) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.getMetadata(datasetID)
}

// txCatalog exposes a cloned state inside WithTx. The outer repository
// lock is already held, so no locking happens here.
type txCatalog struct {
	state *state
}

func (t *txCatalog) WithTx(ctx context.Context, fn func(tx datasetstore.Catalog) error) error {
	return fn(t)
}

func (t *txCatalog) UpsertDataset(ctx context.Context, dataset *datasetstore.Dataset) error {
	return t.state.upsertDataset(dataset)
}

func (t *txCatalog) GetDatasetByName(ctx context.Context, name string) (*datasetstore.Dataset, error) {
	return t.state.getDatasetByName(name)
}

func (t *txCatalog) ListDatasets(ctx context.Context, filter datasetstore.DatasetFilter) ([]*datasetstore.Dataset, error) {
	return t.state.listDatasets(filter)
}

func (t *txCatalog) MarkArchived(ctx context.Context, datasetID uuid.UUID) error {
	return t.state.markArchived(datasetID)
}

func (t *txCatalog) DeleteDataset(ctx context.Context, datasetID uuid.UUID) error {
	return t.state.deleteDataset(datasetID)
}

func (t *txCatalog) CreateVersion(ctx context.Context, version *datasetstore.DatasetVersion) error {
	return t.state.createVersion(version)
}

func (t *txCatalog) GetVersion(ctx context.Context, datasetID uuid.UUID, label string) (*datasetstore.DatasetVersion, error) {
	return t.state.getVersion(datasetID, label)
}

func (t *txCatalog) ListVersions(ctx context.Context, datasetID uuid.UUID) ([]*datasetstore.DatasetVersion, error) {
	return t.state.listVersions(datasetID)
}

func (t *txCatalog) UpdateVersionLocator(ctx context.Context, versionID uuid.UUID, locator string) error {
	return t.state.updateVersionLocator(versionID, locator)
}

func (t *txCatalog) DeleteVersion(ctx context.Context, versionID uuid.UUID) error {
	return t.state.deleteVersion(versionID)
}

func (t *txCatalog) SetMetadata(ctx context.Context, datasetID uuid.UUID, entries map[string]string) error {
	return t.state.setMetadata(datasetID, entries)
}

func (t *txCatalog) GetMetadata(ctx context.Context, datasetID uuid.UUID) (map[string]string, error) {
	return t.state.getMetadata(datasetID)
}

// state operations

func (s *state) upsertDataset(dataset *datasetstore.Dataset) error {
	if existingID, ok := s.byName[dataset.Name]; ok && existingID != dataset.ID {
		return fmt.Errorf("%w: %s", datasetstore.ErrDatasetExists, dataset.Name)
	}
	copied := *dataset
	if existing, ok := s.datasets[dataset.ID]; ok {
		// Archived is monotonic; an upsert never resets it.
		copied.Archived = existing.Archived || copied.Archived
		copied.CreatedAt = existing.CreatedAt
	}
	s.datasets[dataset.ID] = &copied
	s.byName[dataset.Name] = dataset.ID
	return nil
}

func (s *state) getDatasetByName(name string) (*datasetstore.Dataset, error) {
	id, ok := s.byName[name]
	if !ok {
		return nil, datasetstore.ErrDatasetNotFound
	}
	copied := *s.datasets[id]
	return &copied, nil
}

func (s *state) listDatasets(filter datasetstore.DatasetFilter) ([]*datasetstore.Dataset, error) {
	var result []*datasetstore.Dataset
	for _, d := range s.datasets {
		if filter.Kind != "" && d.Kind != filter.Kind {
			continue
		}
		if !filter.IncludeArchived && d.Archived {
			continue
		}
		copied := *d
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *state) markArchived(datasetID uuid.UUID) error {
	d, ok := s.datasets[datasetID]
	if !ok {
		return datasetstore.ErrDatasetNotFound
	}
	d.Archived = true
	return nil
}

func (s *state) deleteDataset(datasetID uuid.UUID) error {
	d, ok := s.datasets[datasetID]
	if !ok {
		return datasetstore.ErrDatasetNotFound
	}
	delete(s.byName, d.Name)
	delete(s.datasets, datasetID)
	delete(s.versions, datasetID)
	delete(s.metadata, datasetID)
	return nil
}

func (s *state) createVersion(version *datasetstore.DatasetVersion) error {
	if _, ok := s.datasets[version.DatasetID]; !ok {
		return datasetstore.ErrDatasetNotFound
	}
	for _, v := range s.versions[version.DatasetID] {
		if v.Version == version.Version {
			return fmt.Errorf("%w: %s", datasetstore.ErrVersionExists, version.Version)
		}
	}
	copied := *version
	s.versions[version.DatasetID] = append(s.versions[version.DatasetID], &copied)
	return nil
}

func (s *state) getVersion(datasetID uuid.UUID, label string) (*datasetstore.DatasetVersion, error) {
	for _, v := range s.versions[datasetID] {
		if v.Version == label {
			copied := *v
			return &copied, nil
		}
	}
	return nil, datasetstore.ErrVersionNotFound
}

func (s *state) listVersions(datasetID uuid.UUID) ([]*datasetstore.DatasetVersion, error) {
	stored := s.versions[datasetID]
	// Reverse insertion order first so that creation-time ties resolve
	// newest-insert first under the stable sort.
	result := make([]*datasetstore.DatasetVersion, len(stored))
	for i, v := range stored {
		copied := *v
		result[len(stored)-1-i] = &copied
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *state) updateVersionLocator(versionID uuid.UUID, locator string) error {
	for _, versions := range s.versions {
		for _, v := range versions {
			if v.ID == versionID {
				v.Locator = locator
				return nil
			}
		}
	}
	return datasetstore.ErrVersionNotFound
}

func (s *state) deleteVersion(versionID uuid.UUID) error {
	for datasetID, versions := range s.versions {
		for i, v := range versions {
			if v.ID == versionID {
				s.versions[datasetID] = append(versions[:i:i], versions[i+1:]...)
				return nil
			}
		}
	}
	return datasetstore.ErrVersionNotFound
}

func (s *state) setMetadata(datasetID uuid.UUID, entries map[string]string) error {
	if _, ok := s.datasets[datasetID]; !ok {
		return datasetstore.ErrDatasetNotFound
	}
	existing, ok := s.metadata[datasetID]
	if !ok {
		existing = make(map[string]string, len(entries))
		s.metadata[datasetID] = existing
	}
	for k, v := range entries {
		existing[k] = v
	}
	return nil
}

func (s *state) getMetadata(datasetID uuid.UUID) (map[string]string, error) {
	if _, ok := s.datasets[datasetID]; !ok {
		return nil, datasetstore.ErrDatasetNotFound
	}
	result := make(map[string]string, len(s.metadata[datasetID]))
	for k, v := range s.metadata[datasetID] {
		result[k] = v
	}
	return result, nil
}

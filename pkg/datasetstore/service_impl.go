package datasetstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lakeward/datasetstore/pkg/datasetstore/storage/container"
)

// engine implements the Service interface.
type engine struct {
	catalog    Catalog
	backends   map[StorageMode]StorageBackend
	events     EventSink
	resolver   StrategyResolver
	classifier Classifier
	cipher     Cipher
	layout     *Layout
	logger     *slog.Logger
	clock      func() time.Time

	gen            versionGenerator
	locks          *nameLocks
	inlineArchival bool
}

// Option represents a functional option for configuring the engine.
type Option func(*engine)

// WithCatalog sets the metadata catalog. Required.
func WithCatalog(catalog Catalog) Option {
	return func(e *engine) { e.catalog = catalog }
}

// WithBackend registers a storage backend under its storage mode.
func WithBackend(backend StorageBackend) Option {
	return func(e *engine) { e.backends[backend.Mode()] = backend }
}

// WithEventSink sets the lifecycle event sink.
func WithEventSink(sink EventSink) Option {
	return func(e *engine) { e.events = sink }
}

// WithResolver sets the strategy resolver. Without one, resolution is
// explicit override > kind defaults > global defaults.
func WithResolver(resolver StrategyResolver) Option {
	return func(e *engine) { e.resolver = resolver }
}

// WithClassifier sets the content classifier used when a store request
// carries no kind.
func WithClassifier(classifier Classifier) Option {
	return func(e *engine) { e.classifier = classifier }
}

// WithCipher sets the cipher used for at-rest confidentiality. Without one,
// encryption requests are logged and the encrypted flag stays false.
func WithCipher(cipher Cipher) Option {
	return func(e *engine) { e.cipher = cipher }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *engine) { e.logger = logger }
}

// WithClock sets the time source used for version labels and archival age.
func WithClock(clock func() time.Time) Option {
	return func(e *engine) { e.clock = clock }
}

// WithInlineArchival controls whether every successful Store triggers the
// catalog-wide archival scan. Enabled by default; deployments running
// ArchiveAged from a periodic task turn it off.
func WithInlineArchival(enabled bool) Option {
	return func(e *engine) { e.inlineArchival = enabled }
}

// New creates an engine rooted at baseDir with the given options. The fixed
// subdirectory layout is created under baseDir if missing.
func New(baseDir string, options ...Option) (Service, error) {
	layout, err := NewLayout(baseDir)
	if err != nil {
		return nil, err
	}

	e := &engine{
		backends:       make(map[StorageMode]StorageBackend),
		layout:         layout,
		clock:          time.Now,
		locks:          newNameLocks(),
		inlineArchival: true,
	}
	for _, option := range options {
		option(e)
	}

	if e.catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if len(e.backends) == 0 {
		return nil, fmt.Errorf("at least one storage backend is required")
	}
	if e.events == nil {
		e.events = NewNoopEventSink()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.gen = versionGenerator{clock: e.clock}

	return e, nil
}

// Store persists a payload as a new dataset version.
func (e *engine) Store(ctx context.Context, req StoreRequest) *StoreResult {
	start := time.Now()
	res := &StoreResult{Name: req.Name}
	e.emit(e.events.StorageStarted(ctx, req.Name))

	err := e.store(ctx, req, res)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		e.emit(e.events.StorageFailed(ctx, req.Name, err))
		return res
	}
	res.OK = true
	e.emit(e.events.StorageCompleted(ctx, req.Name, res))

	if e.inlineArchival {
		if err := e.ArchiveAged(ctx); err != nil {
			e.logger.WarnContext(ctx, "archival scan failed", "error", err)
		}
	}
	return res
}

func (e *engine) store(ctx context.Context, req StoreRequest, res *StoreResult) error {
	if req.Name == "" {
		return &DatasetError{Name: req.Name, Op: "store", Err: fmt.Errorf("dataset name is required")}
	}
	if _, err := os.Stat(req.SourcePath); err != nil {
		return &DatasetError{Name: req.Name, Op: "store", Err: fmt.Errorf("source payload unreadable: %w", err)}
	}

	kind := req.Kind
	if kind == "" {
		kind = KindUnknown
		if e.classifier != nil {
			kind = e.classifier.Detect(req.SourcePath)
		}
	}

	var strategy Strategy
	if e.resolver != nil {
		strategy = e.resolver.Resolve(req.Strategy, req.Profile, kind)
	} else {
		strategy = resolveStrategy(req.Strategy, kind)
	}

	backend, ok := e.backends[strategy.StorageMode]
	if !ok {
		return &DatasetError{Name: req.Name, Op: "store",
			Err: fmt.Errorf("%w: %s", ErrUnsupportedStorageMode, strategy.StorageMode)}
	}

	// Hash and size cover the source payload, before any storage-mode
	// transformation.
	hash, size, err := hashFile(req.SourcePath)
	if err != nil {
		return &DatasetError{Name: req.Name, Op: "store", Err: err}
	}

	e.locks.lock(req.Name)
	defer e.locks.unlock(req.Name)

	dataset, err := e.findDataset(ctx, req.Name)
	if err != nil {
		return &DatasetError{Name: req.Name, Op: "store", Err: err}
	}

	label, err := e.nextLabel(ctx, dataset, strategy.VersionScheme)
	if err != nil {
		return &DatasetError{Name: req.Name, Op: "store", Err: err}
	}

	if strategy.Encrypt && e.cipher == nil {
		// Flagged rather than pretended: the version is stored
		// plaintext and recorded as such.
		e.logger.WarnContext(ctx, "encryption requested but no cipher configured",
			"dataset", req.Name, "version", label)
	}

	wr, err := backend.Write(ctx, WriteRequest{
		SourcePath:   req.SourcePath,
		Name:         req.Name,
		Version:      label,
		Compress:     strategy.Compress,
		Method:       strategy.CompressionMethod,
		Encrypt:      strategy.Encrypt,
		IndexColumns: req.IndexColumns,
	})
	if err != nil {
		return err
	}

	now := e.clock().UTC()
	if dataset == nil {
		dataset = &Dataset{
			ID:        uuid.New(),
			Name:      req.Name,
			CreatedAt: now,
		}
	}
	dataset.Kind = kind
	dataset.UpdatedAt = now
	dataset.Size = size
	dataset.Hash = hash
	dataset.RetentionDays = strategy.ArchiveAfterDays

	version := &DatasetVersion{
		ID:          uuid.New(),
		DatasetID:   dataset.ID,
		Version:     label,
		Locator:     wr.Locator,
		StorageMode: strategy.StorageMode,
		CreatedAt:   now,
		Size:        size,
		Hash:        hash,
		Compressed:  wr.Compressed,
		Encrypted:   wr.Encrypted,
	}

	entries, err := encodeMetadata(req.Metadata)
	if err != nil {
		e.compensate(ctx, backend, wr.Locator)
		return &DatasetError{Name: req.Name, Op: "store", Err: err}
	}

	err = e.catalog.WithTx(ctx, func(tx Catalog) error {
		if err := tx.UpsertDataset(ctx, dataset); err != nil {
			return err
		}
		if err := tx.CreateVersion(ctx, version); err != nil {
			return err
		}
		if len(entries) > 0 {
			return tx.SetMetadata(ctx, dataset.ID, entries)
		}
		return nil
	})
	if err != nil {
		// The bytes were written before the catalog commit; delete
		// them so the backend never holds orphans the catalog does
		// not know about.
		e.compensate(ctx, backend, wr.Locator)
		return &CatalogError{Op: "store", Err: err}
	}

	res.Version = label
	res.Locator = wr.Locator
	res.Size = size
	res.Hash = hash

	if strategy.Versioning {
		e.pruneVersions(ctx, dataset, strategy.MaxVersions)
	}
	return nil
}

// nextLabel generates a version label, disambiguating timestamp collisions
// with a bounded numeric suffix instead of silently overwriting.
func (e *engine) nextLabel(ctx context.Context, dataset *Dataset, scheme VersionScheme) (string, error) {
	datasetID := uuid.Nil
	if dataset != nil {
		datasetID = dataset.ID
	}
	label, err := e.gen.next(ctx, e.catalog, datasetID, scheme)
	if err != nil {
		return "", err
	}
	if dataset == nil {
		return label, nil
	}

	if _, err := e.catalog.GetVersion(ctx, dataset.ID, label); errors.Is(err, ErrVersionNotFound) {
		return label, nil
	}
	if scheme != SchemeTimestamp {
		return "", fmt.Errorf("%w: %s", ErrVersionExists, label)
	}
	for i := 2; i <= 10; i++ {
		candidate := fmt.Sprintf("%s-%d", label, i)
		if _, err := e.catalog.GetVersion(ctx, dataset.ID, candidate); errors.Is(err, ErrVersionNotFound) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrVersionExists, label)
}

func (e *engine) compensate(ctx context.Context, backend StorageBackend, locator string) {
	if err := backend.Remove(ctx, locator); err != nil {
		e.logger.WarnContext(ctx, "compensating deletion failed", "locator", locator, "error", err)
	}
}

// Retrieve copies the requested version(s) into the destination directory.
func (e *engine) Retrieve(ctx context.Context, req RetrieveRequest) *RetrieveResult {
	start := time.Now()
	res := &RetrieveResult{Name: req.Name}
	e.emit(e.events.RetrievalStarted(ctx, req.Name))

	paths, err := e.retrieve(ctx, req)
	if err != nil {
		res.Error = err.Error()
		e.emit(e.events.RetrievalFailed(ctx, req.Name, err))
		return res
	}
	res.OK = true
	res.Paths = paths
	e.emit(e.events.RetrievalCompleted(ctx, req.Name, time.Since(start), paths))
	return res
}

func (e *engine) retrieve(ctx context.Context, req RetrieveRequest) ([]string, error) {
	dataset, err := e.catalog.GetDatasetByName(ctx, req.Name)
	if err != nil {
		return nil, &DatasetError{Name: req.Name, Op: "retrieve", Err: err}
	}

	versions, err := e.resolveVersions(ctx, dataset, req.Version)
	if err != nil {
		return nil, &DatasetError{Name: req.Name, Op: "retrieve", Err: err}
	}

	dest := req.Destination
	if dest == "" {
		dest = e.layout.TempDir()
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, &DatasetError{Name: req.Name, Op: "retrieve", Err: err}
	}

	paths := make([]string, 0, len(versions))
	for _, v := range versions {
		outPath := filepath.Join(dest, container.Strip(filepath.Base(v.Locator)))
		if err := e.copyOut(ctx, v, outPath); err != nil {
			return nil, err
		}
		paths = append(paths, outPath)
	}
	return paths, nil
}

func (e *engine) resolveVersions(ctx context.Context, dataset *Dataset, selector string) ([]*DatasetVersion, error) {
	switch selector {
	case VersionAll:
		versions, err := e.catalog.ListVersions(ctx, dataset.ID)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, ErrVersionNotFound
		}
		return versions, nil
	case VersionLatest, "":
		versions, err := e.catalog.ListVersions(ctx, dataset.ID)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, ErrVersionNotFound
		}
		return versions[:1], nil
	default:
		v, err := e.catalog.GetVersion(ctx, dataset.ID, selector)
		if err != nil {
			return nil, err
		}
		return []*DatasetVersion{v}, nil
	}
}

// copyOut streams one stored version into outPath, reversing compression.
// Flat-file payloads are re-hashed on the way out and checked against the
// hash recorded at write time; table databases are a re-encoded
// representation of the source payload, so their recorded hash cannot be
// re-verified here.
func (e *engine) copyOut(ctx context.Context, v *DatasetVersion, outPath string) error {
	backend, err := e.readBackend(v)
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return &StorageError{Mode: backend.Mode(), Locator: v.Locator, Op: "retrieve", Err: err}
	}

	verify := v.StorageMode != ModeTable
	var dst io.Writer = out
	h := newStreamHasher()
	if verify {
		dst = io.MultiWriter(out, h)
	}

	if err := backend.Read(ctx, v.Locator, dst); err != nil {
		out.Close()
		os.Remove(outPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return &StorageError{Mode: backend.Mode(), Locator: v.Locator, Op: "retrieve", Err: err}
	}

	if verify && h.sum() != v.Hash {
		os.Remove(outPath)
		return &StorageError{Mode: backend.Mode(), Locator: v.Locator, Op: "retrieve",
			Err: fmt.Errorf("%w: version %s", ErrIntegrity, v.Version)}
	}
	return nil
}

// readBackend picks the backend that wrote a version, from the mode recorded
// on its catalog row.
func (e *engine) readBackend(v *DatasetVersion) (StorageBackend, error) {
	mode := v.StorageMode
	if mode == "" {
		mode = ModeFlatFile
	}
	if backend, ok := e.backends[mode]; ok {
		return backend, nil
	}
	// Reading is container-level; any local backend can serve it.
	for _, backend := range e.backends {
		return backend, nil
	}
	return nil, ErrUnsupportedStorageMode
}

// Delete removes one version or a whole dataset. The catalog rows are
// removed before the physical bytes so the catalog never references files
// that are already gone.
func (e *engine) Delete(ctx context.Context, req DeleteRequest) *DeleteResult {
	start := time.Now()
	res := &DeleteResult{Name: req.Name}
	e.emit(e.events.DeletionStarted(ctx, req.Name))

	paths, err := e.delete(ctx, req)
	if err != nil {
		res.Error = err.Error()
		e.emit(e.events.DeletionFailed(ctx, req.Name, err))
		return res
	}
	res.OK = true
	res.DeletedPaths = paths
	e.emit(e.events.DeletionCompleted(ctx, req.Name, time.Since(start), paths))
	return res
}

func (e *engine) delete(ctx context.Context, req DeleteRequest) ([]string, error) {
	e.locks.lock(req.Name)
	defer e.locks.unlock(req.Name)

	dataset, err := e.catalog.GetDatasetByName(ctx, req.Name)
	if err != nil {
		return nil, &DatasetError{Name: req.Name, Op: "delete", Err: err}
	}

	var doomed []*DatasetVersion
	wholeDataset := req.Version == "" || req.Version == VersionAll
	if wholeDataset {
		doomed, err = e.catalog.ListVersions(ctx, dataset.ID)
		if err != nil {
			return nil, &DatasetError{Name: req.Name, Op: "delete", Err: err}
		}
	} else {
		v, err := e.catalog.GetVersion(ctx, dataset.ID, req.Version)
		if err != nil {
			return nil, &DatasetError{Name: req.Name, Op: "delete", Err: err}
		}
		doomed = []*DatasetVersion{v}
	}

	if wholeDataset {
		if err := e.catalog.DeleteDataset(ctx, dataset.ID); err != nil {
			return nil, &CatalogError{Op: "delete", Err: err}
		}
	} else {
		if err := e.catalog.DeleteVersion(ctx, doomed[0].ID); err != nil {
			return nil, &CatalogError{Op: "delete", Err: err}
		}
	}

	paths := make([]string, 0, len(doomed))
	for _, v := range doomed {
		backend, err := e.readBackend(v)
		if err != nil {
			continue
		}
		if err := backend.Remove(ctx, v.Locator); err != nil {
			e.logger.WarnContext(ctx, "failed to delete version bytes",
				"dataset", req.Name, "version", v.Version, "locator", v.Locator, "error", err)
			continue
		}
		paths = append(paths, v.Locator)
	}
	return paths, nil
}

// List returns the catalogued datasets with ordered version summaries.
func (e *engine) List(ctx context.Context, req ListRequest) *ListResult {
	res := &ListResult{Datasets: []DatasetInfo{}}

	datasets, err := e.catalog.ListDatasets(ctx, DatasetFilter{
		Kind:            req.Kind,
		IncludeArchived: req.IncludeArchived,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	for _, d := range datasets {
		info := DatasetInfo{
			Name:          d.Name,
			Kind:          d.Kind,
			CreatedAt:     d.CreatedAt,
			UpdatedAt:     d.UpdatedAt,
			Size:          d.Size,
			Hash:          d.Hash,
			RetentionDays: d.RetentionDays,
			Archived:      d.Archived,
		}

		versions, err := e.catalog.ListVersions(ctx, d.ID)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		info.Versions = make([]VersionInfo, 0, len(versions))
		for _, v := range versions {
			info.Versions = append(info.Versions, VersionInfo{
				Version:    v.Version,
				Locator:    v.Locator,
				CreatedAt:  v.CreatedAt,
				Size:       v.Size,
				Hash:       v.Hash,
				Compressed: v.Compressed,
				Encrypted:  v.Encrypted,
			})
		}

		if req.IncludeMetadata {
			entries, err := e.catalog.GetMetadata(ctx, d.ID)
			if err != nil {
				res.Error = err.Error()
				return res
			}
			info.Metadata = decodeMetadata(entries)
		}

		res.Datasets = append(res.Datasets, info)
	}

	res.OK = true
	return res
}

// findDataset returns nil without error for an unseen name.
func (e *engine) findDataset(ctx context.Context, name string) (*Dataset, error) {
	dataset, err := e.catalog.GetDatasetByName(ctx, name)
	if errors.Is(err, ErrDatasetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dataset, nil
}

// emit discards event sink errors: lifecycle events are fire-and-forget.
func (e *engine) emit(err error) {
	if err != nil {
		e.logger.Warn("event emission failed", "error", err)
	}
}

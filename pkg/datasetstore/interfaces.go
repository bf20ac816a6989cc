package datasetstore

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Catalog is the relational metadata store: the source of truth for
// datasets, their versions and their key/value metadata. Implementations
// must enforce name uniqueness for datasets and (dataset, version) / (dataset,
// key) uniqueness for versions and metadata.
type Catalog interface {
	// WithTx runs fn against a transactional view of the catalog.
	// Either every write made by fn commits, or none do.
	WithTx(ctx context.Context, fn func(tx Catalog) error) error

	// Dataset operations
	UpsertDataset(ctx context.Context, dataset *Dataset) error
	GetDatasetByName(ctx context.Context, name string) (*Dataset, error)
	ListDatasets(ctx context.Context, filter DatasetFilter) ([]*Dataset, error)
	MarkArchived(ctx context.Context, datasetID uuid.UUID) error
	DeleteDataset(ctx context.Context, datasetID uuid.UUID) error

	// Version operations. ListVersions returns versions ordered newest
	// first by creation time. CreateVersion fails with ErrVersionExists
	// when the label is already recorded for the dataset.
	CreateVersion(ctx context.Context, version *DatasetVersion) error
	GetVersion(ctx context.Context, datasetID uuid.UUID, label string) (*DatasetVersion, error)
	ListVersions(ctx context.Context, datasetID uuid.UUID) ([]*DatasetVersion, error)
	UpdateVersionLocator(ctx context.Context, versionID uuid.UUID, locator string) error
	DeleteVersion(ctx context.Context, versionID uuid.UUID) error

	// Metadata operations. Later writes with an existing key overwrite
	// the prior value.
	SetMetadata(ctx context.Context, datasetID uuid.UUID, entries map[string]string) error
	GetMetadata(ctx context.Context, datasetID uuid.UUID) (map[string]string, error)
}

// DatasetFilter narrows ListDatasets results.
type DatasetFilter struct {
	Kind            DatasetKind
	IncludeArchived bool
}

// StorageBackend owns the physical bytes a version's locator points to.
// Locators are paths relative to the engine's base directory so that
// archival can relocate files without consulting the backend.
type StorageBackend interface {
	// Mode identifies which storage_mode this backend serves.
	Mode() StorageMode

	// Write persists the payload for one (dataset, version) pair and
	// returns its locator and the compressed/encrypted flags that
	// actually took effect.
	Write(ctx context.Context, req WriteRequest) (*WriteResult, error)

	// Read streams the stored payload into dst, reversing compression
	// and decryption.
	Read(ctx context.Context, locator string, dst io.Writer) error

	// Remove deletes the stored bytes for a locator.
	Remove(ctx context.Context, locator string) error
}

// WriteRequest contains parameters for a backend write.
type WriteRequest struct {
	SourcePath   string
	Name         string
	Version      string
	Compress     bool
	Method       CompressionMethod
	Encrypt      bool
	IndexColumns []string
}

// WriteResult reports where and how a backend stored a payload.
type WriteResult struct {
	Locator    string
	Compressed bool
	Encrypted  bool
	StoredSize int64
}

// Cipher is the pluggable confidentiality hook at the storage backend
// boundary. Until a cipher is supplied, the encrypted flag on every version
// reads false; requesting encryption without one is logged, never faked.
type Cipher interface {
	Encrypt(dst io.Writer) (io.WriteCloser, error)
	Decrypt(src io.Reader) (io.ReadCloser, error)
}

// EventSink receives lifecycle events. Events are fire-and-forget: a sink
// error never fails the operation that emitted it.
type EventSink interface {
	StorageStarted(ctx context.Context, name string) error
	StorageCompleted(ctx context.Context, name string, result *StoreResult) error
	StorageFailed(ctx context.Context, name string, opErr error) error

	RetrievalStarted(ctx context.Context, name string) error
	RetrievalCompleted(ctx context.Context, name string, elapsed time.Duration, paths []string) error
	RetrievalFailed(ctx context.Context, name string, opErr error) error

	DeletionStarted(ctx context.Context, name string) error
	DeletionCompleted(ctx context.Context, name string, elapsed time.Duration, paths []string) error
	DeletionFailed(ctx context.Context, name string, opErr error) error
}

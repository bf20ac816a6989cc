package datasetstore

import (
	"time"

	"github.com/google/uuid"
)

// DatasetKind is the inferred or declared content type of a dataset. It
// drives strategy defaults when the caller supplies no explicit strategy.
type DatasetKind string

// Dataset kind constants (typed).
const (
	KindTabular    DatasetKind = "tabular"
	KindTimeseries DatasetKind = "timeseries"
	KindImage      DatasetKind = "image"
	KindStructured DatasetKind = "structured"
	KindUnknown    DatasetKind = "unknown"
)

// StorageMode is the physical representation of a stored version.
type StorageMode string

// Storage mode constants (typed).
const (
	// ModeFlatFile copies the payload into a per-dataset directory,
	// optionally wrapped in a gzip or zip container.
	ModeFlatFile StorageMode = "flatfile"

	// ModeTable loads the payload into a dedicated table inside a
	// per-version SQLite database file.
	ModeTable StorageMode = "table"
)

// VersionScheme selects how the next version label is produced.
type VersionScheme string

// Version scheme constants (typed).
const (
	SchemeTimestamp  VersionScheme = "timestamp"
	SchemeSequential VersionScheme = "sequential"
	SchemeSemantic   VersionScheme = "semantic"
)

// CompressionMethod selects the container format used when compression is
// enabled.
type CompressionMethod string

// Compression method constants (typed).
const (
	CompressGzip CompressionMethod = "gzip"
	CompressZip  CompressionMethod = "zip"
)

// Dataset is the logical container for all versions of one data source,
// keyed by a unique human-assigned name. Summary fields (Size, Hash,
// UpdatedAt) always reflect the most recently written version. Archived is
// monotonic: once true it is never reset by the engine.
type Dataset struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Kind          DatasetKind `json:"kind"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Size          int64       `json:"size"`
	Hash          string      `json:"hash"`
	RetentionDays int         `json:"retention_days"`
	Archived      bool        `json:"archived"`
}

// DatasetVersion is one immutable snapshot belonging to exactly one Dataset.
// Locator, Hash and Size never change after creation; versions are
// append-only and removed only by deletion or pruning.
type DatasetVersion struct {
	ID          uuid.UUID   `json:"id"`
	DatasetID   uuid.UUID   `json:"dataset_id"`
	Version     string      `json:"version"`
	Locator     string      `json:"locator"`
	StorageMode StorageMode `json:"storage_mode"`
	CreatedAt   time.Time   `json:"created_at"`
	Size        int64       `json:"size"`
	Hash        string      `json:"hash"`
	Compressed  bool        `json:"compressed"`
	Encrypted   bool        `json:"encrypted"`
}

// Strategy is the resolved bundle of storage settings applied to one store
// operation. Zero values are filled in during resolution; see the profiles
// package for the resolution order.
type Strategy struct {
	StorageMode       StorageMode       `json:"storage_mode"`
	Compress          bool              `json:"compress"`
	CompressionMethod CompressionMethod `json:"compression_method"`
	Encrypt           bool              `json:"encrypt"`
	Versioning        bool              `json:"versioning"`
	VersionScheme     VersionScheme     `json:"version_scheme"`
	MaxVersions       int               `json:"max_versions"`
	ArchiveAfterDays  int               `json:"archive_after_days"`
}

// StoreResult is the envelope returned by Store. Callers branch on OK; Error
// carries the human-readable failure message when OK is false.
type StoreResult struct {
	OK      bool          `json:"ok"`
	Name    string        `json:"name"`
	Version string        `json:"version"`
	Locator string        `json:"locator"`
	Size    int64         `json:"size"`
	Hash    string        `json:"hash"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
}

// RetrieveResult is the envelope returned by Retrieve. Paths holds one
// output file per resolved version.
type RetrieveResult struct {
	OK    bool     `json:"ok"`
	Name  string   `json:"name"`
	Paths []string `json:"paths,omitempty"`
	Error string   `json:"error,omitempty"`
}

// DeleteResult is the envelope returned by Delete.
type DeleteResult struct {
	OK           bool     `json:"ok"`
	Name         string   `json:"name"`
	DeletedPaths []string `json:"deleted_paths,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// ListResult is the envelope returned by List.
type ListResult struct {
	OK       bool          `json:"ok"`
	Datasets []DatasetInfo `json:"datasets"`
	Error    string        `json:"error,omitempty"`
}

// DatasetInfo is one dataset entry in a ListResult, carrying ordered version
// summaries (newest first) and, when requested, the metadata map.
type DatasetInfo struct {
	Name          string         `json:"name"`
	Kind          DatasetKind    `json:"kind"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Size          int64          `json:"size"`
	Hash          string         `json:"hash"`
	RetentionDays int            `json:"retention_days"`
	Archived      bool           `json:"archived"`
	Versions      []VersionInfo  `json:"versions"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// VersionInfo is one version summary inside a DatasetInfo.
type VersionInfo struct {
	Version    string    `json:"version"`
	Locator    string    `json:"locator"`
	CreatedAt  time.Time `json:"created_at"`
	Size       int64     `json:"size"`
	Hash       string    `json:"hash"`
	Compressed bool      `json:"compressed"`
	Encrypted  bool      `json:"encrypted"`
}

// Version selector values accepted by Retrieve and Delete. Any other string
// is treated as a specific version label.
const (
	VersionLatest = "latest"
	VersionAll    = "all"
)

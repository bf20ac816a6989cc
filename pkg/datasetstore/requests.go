package datasetstore

// Request DTOs for the four public operations.

// StoreRequest contains parameters for storing a payload as a new dataset
// version. SourcePath must point at a complete local file. Kind, Metadata,
// Profile, Strategy and IndexColumns are optional.
type StoreRequest struct {
	SourcePath string
	Name       string
	Kind       DatasetKind
	Metadata   map[string]any
	Profile    string
	Strategy   *Strategy
	// IndexColumns get secondary indexes when the payload is loaded in
	// table mode; ignored for flat-file storage.
	IndexColumns []string
}

// RetrieveRequest contains parameters for retrieving one or more versions.
// Version is "latest", "all" or a specific label; empty means "latest".
// Destination defaults to the engine's temp directory.
type RetrieveRequest struct {
	Name        string
	Version     string
	Destination string
}

// DeleteRequest contains parameters for deleting a version or a whole
// dataset. Version is "all" or a specific label; empty means "all".
type DeleteRequest struct {
	Name    string
	Version string
}

// ListRequest contains parameters for listing datasets.
type ListRequest struct {
	Kind            DatasetKind
	IncludeArchived bool
	IncludeMetadata bool
}

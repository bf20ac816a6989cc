package datasetstore

import "context"

// Classifier infers a dataset kind from a payload file. Classification
// never fails; unreadable or unrecognized inputs degrade to KindUnknown.
type Classifier interface {
	Detect(path string) DatasetKind
}

// Service is the orchestration surface of the engine. The four operations
// never return an error or panic across the boundary: every failure is
// captured in the result envelope with OK set to false.
type Service interface {
	// Store persists the payload at req.SourcePath as a new version of
	// the named dataset, then runs retention and archival policy.
	Store(ctx context.Context, req StoreRequest) *StoreResult

	// Retrieve copies the requested version(s) into the destination
	// directory, reversing compression, one output file per version.
	Retrieve(ctx context.Context, req RetrieveRequest) *RetrieveResult

	// Delete removes one version, or the dataset and all of its
	// versions and metadata.
	Delete(ctx context.Context, req DeleteRequest) *DeleteResult

	// List returns every catalogued dataset with ordered version
	// summaries.
	List(ctx context.Context, req ListRequest) *ListResult

	// ArchiveAged scans the whole catalog and relocates every aged,
	// non-archived dataset into cold storage. Store runs it inline by
	// default; a deployment may instead call it from a periodic task.
	ArchiveAged(ctx context.Context) error
}

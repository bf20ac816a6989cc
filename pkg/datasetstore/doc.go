// Package datasetstore persists named datasets as immutable, content-addressed
// versions. It classifies payload content, selects a storage representation
// (flat file or table-in-SQLite), enforces retention and archival policy, and
// serves retrieval and deletion through four envelope-returning operations:
// Store, Retrieve, Delete and List.
package datasetstore

// Package profiles resolves the strategy bundle applied to one store
// operation. A static table maps caller-supplied profile identifiers
// (prefix-matched) to strategy overrides; unmatched identifiers fall back to
// kind-based and then global defaults.
package profiles

import (
	"strings"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
)

// Profile binds an identifier prefix to a strategy override.
type Profile struct {
	Prefix   string
	Strategy datasetstore.Strategy
}

// Resolver implements datasetstore.StrategyResolver with per-consumer
// profiles. Profiles are checked in order; the first prefix match wins.
type Resolver struct {
	profiles []Profile
}

// NewResolver creates a resolver over the given profile table.
func NewResolver(profiles ...Profile) *Resolver {
	return &Resolver{profiles: profiles}
}

// Default returns a resolver with the built-in consumer profiles: sensor
// fleets get table storage with tight retention, archival consumers get
// uncompressed flat files with a long archive window.
func Default() *Resolver {
	return NewResolver(
		Profile{
			Prefix: "sensor",
			Strategy: datasetstore.Strategy{
				StorageMode:   datasetstore.ModeTable,
				Compress:      true,
				Versioning:    true,
				VersionScheme: datasetstore.SchemeTimestamp,
				MaxVersions:   10,
			},
		},
		Profile{
			Prefix: "ml",
			Strategy: datasetstore.Strategy{
				StorageMode:   datasetstore.ModeFlatFile,
				Compress:      true,
				Versioning:    true,
				VersionScheme: datasetstore.SchemeSemantic,
				MaxVersions:   20,
			},
		},
		Profile{
			Prefix: "report",
			Strategy: datasetstore.Strategy{
				StorageMode:      datasetstore.ModeFlatFile,
				Compress:         true,
				Versioning:       true,
				VersionScheme:    datasetstore.SchemeSequential,
				ArchiveAfterDays: 90,
			},
		},
	)
}

// Resolve picks the strategy for one store: explicit override, then the
// first profile whose prefix matches the identifier, then kind defaults.
func (r *Resolver) Resolve(explicit *datasetstore.Strategy, profile string, kind datasetstore.DatasetKind) datasetstore.Strategy {
	if explicit != nil {
		return datasetstore.NormalizeStrategy(*explicit)
	}
	if profile != "" {
		for _, p := range r.profiles {
			if strings.HasPrefix(profile, p.Prefix) {
				return datasetstore.NormalizeStrategy(p.Strategy)
			}
		}
	}
	return datasetstore.KindDefault(kind)
}

package datasetstore

// StrategyResolver resolves the strategy bundle applied to one store
// operation. Resolution order: explicit override, then per-consumer profile,
// then kind-based defaults, then global defaults. The profiles package
// provides the profile-aware implementation; without one the engine resolves
// explicit > kind > global.
type StrategyResolver interface {
	Resolve(explicit *Strategy, profile string, kind DatasetKind) Strategy
}

// DefaultStrategy returns the global default strategy: flat-file storage,
// gzip compression, timestamp versioning, five retained versions, archival
// after 180 days.
func DefaultStrategy() Strategy {
	return Strategy{
		StorageMode:       ModeFlatFile,
		Compress:          true,
		CompressionMethod: CompressGzip,
		Versioning:        true,
		VersionScheme:     SchemeTimestamp,
		MaxVersions:       5,
		ArchiveAfterDays:  180,
	}
}

// KindDefault returns the default strategy for a dataset kind. Tabular and
// timeseries payloads go to table storage; images are stored verbatim.
func KindDefault(kind DatasetKind) Strategy {
	st := DefaultStrategy()
	switch kind {
	case KindTabular, KindTimeseries:
		st.StorageMode = ModeTable
	case KindImage:
		st.StorageMode = ModeFlatFile
		st.Compress = false
	}
	return st
}

// NormalizeStrategy fills zero-valued enum and count fields from the global
// defaults. Boolean fields are left untouched: an explicit false means off.
func NormalizeStrategy(st Strategy) Strategy {
	def := DefaultStrategy()
	if st.StorageMode == "" {
		st.StorageMode = def.StorageMode
	}
	if st.CompressionMethod == "" {
		st.CompressionMethod = def.CompressionMethod
	}
	if st.VersionScheme == "" {
		st.VersionScheme = def.VersionScheme
	}
	if st.MaxVersions <= 0 {
		st.MaxVersions = def.MaxVersions
	}
	if st.ArchiveAfterDays <= 0 {
		st.ArchiveAfterDays = def.ArchiveAfterDays
	}
	return st
}

// resolveStrategy is the resolver used when no StrategyResolver is
// configured: explicit override wins, otherwise kind defaults.
func resolveStrategy(explicit *Strategy, kind DatasetKind) Strategy {
	if explicit != nil {
		return NormalizeStrategy(*explicit)
	}
	return KindDefault(kind)
}

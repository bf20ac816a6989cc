package datasetstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timestampLayout formats a clock reading as a sortable fixed-width numeric
// version label (YYYYMMDDHHmmss).
const timestampLayout = "20060102150405"

// versionGenerator produces the next version label for a dataset. All three
// policies read the catalog but never write it.
type versionGenerator struct {
	clock func() time.Time
}

// next returns the next label under the given scheme. datasetID is uuid.Nil
// for a dataset's first store.
func (g *versionGenerator) next(ctx context.Context, catalog Catalog, datasetID uuid.UUID, scheme VersionScheme) (string, error) {
	switch scheme {
	case SchemeTimestamp:
		return g.timestamp(), nil
	case SchemeSequential:
		return g.sequential(ctx, catalog, datasetID), nil
	case SchemeSemantic:
		return g.semantic(ctx, catalog, datasetID), nil
	default:
		return "", fmt.Errorf("unknown version scheme %q", scheme)
	}
}

func (g *versionGenerator) timestamp() string {
	return g.clock().UTC().Format(timestampLayout)
}

// sequential returns max(version)+1 over the dataset's recorded versions,
// or "1" when none exist. Any lookup or parse failure falls back to the
// timestamp policy.
func (g *versionGenerator) sequential(ctx context.Context, catalog Catalog, datasetID uuid.UUID) string {
	if datasetID == uuid.Nil {
		return "1"
	}
	versions, err := catalog.ListVersions(ctx, datasetID)
	if err != nil {
		return g.timestamp()
	}
	if len(versions) == 0 {
		return "1"
	}
	max := 0
	for _, v := range versions {
		n, err := strconv.Atoi(v.Version)
		if err != nil {
			return g.timestamp()
		}
		if n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}

// semantic bumps the patch component of the most recently created version.
// A missing or malformed predecessor yields "0.1.0".
func (g *versionGenerator) semantic(ctx context.Context, catalog Catalog, datasetID uuid.UUID) string {
	const initial = "0.1.0"
	if datasetID == uuid.Nil {
		return initial
	}
	versions, err := catalog.ListVersions(ctx, datasetID)
	if err != nil || len(versions) == 0 {
		return initial
	}
	parts := strings.Split(versions[0].Version, ".")
	if len(parts) != 3 {
		return initial
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return initial
		}
		nums[i] = n
	}
	return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]+1)
}

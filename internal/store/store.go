package store

import (
	"context"

	"github.com/sells-group/venue-enrich/internal/model"
)

// Stats aggregates the state of the venue table.
type Stats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Done     int64 `json:"done"`
	Locked   int64 `json:"locked"`
	NoData   int64 `json:"no_data"`
	Errored  int64 `json:"errored"`

	// MissingVendor counts rows still lacking a ticket vendor; likewise
	// for capacity and price.
	MissingVendor   int64 `json:"missing_vendor"`
	MissingCapacity int64 `json:"missing_capacity"`
	MissingPrice    int64 `json:"missing_price"`

	// VendorCounts breaks enriched rows down by detected vendor.
	VendorCounts map[string]int64 `json:"vendor_counts"`
}

// Store is the persistence interface for the enrichment worker.
type Store interface {
	// SelectPending returns up to limit rows that are not LOCKED and are
	// missing at least one primary business attribute.
	SelectPending(ctx context.Context, limit int) ([]model.Venue, error)

	// SelectBackfill returns up to limit rows whose revenue is null or
	// zero, or whose revenue came from a low-confidence fallback source.
	SelectBackfill(ctx context.Context, limit int) ([]model.Venue, error)

	// ApplyPatch writes one row's computed fields back in place. Columns
	// not present in the target table are dropped, not errors.
	ApplyPatch(ctx context.Context, v model.Venue, patch model.Patch) error

	// Columns returns the target table's column set, cached with a TTL.
	Columns(ctx context.Context) (map[string]struct{}, error)

	Stats(ctx context.Context) (*Stats, error)
	All(ctx context.Context) ([]model.Venue, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

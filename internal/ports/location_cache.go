package ports

import (
	"context"

	"donation-square-connect/internal/domain"
)

// LocationCache caches resolved business locations per mode with a TTL.
// Get returns (nil, false) on a miss; an empty cached slice is a valid hit.
type LocationCache interface {
	Get(ctx context.Context, mode domain.Mode) ([]domain.Location, bool)
	Set(ctx context.Context, mode domain.Mode, locations []domain.Location) error
	Purge(ctx context.Context, mode domain.Mode) error
}

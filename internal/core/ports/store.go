package ports

import (
	"context"

	"github.com/origami/origamid/internal/core/domain"
)

// Repository persists demos.
type Repository interface {
	// GetOrNone returns the demo stored under demoID, or nil if there is none.
	GetOrNone(ctx context.Context, demoID string) (*domain.Demo, error)
	// Save inserts or updates a demo.
	Save(ctx context.Context, demo *domain.Demo) error
	// List returns every stored demo.
	List(ctx context.Context) ([]domain.Demo, error)
}

// PortAllocator hands out host ports. A port is never handed out twice.
type PortAllocator interface {
	Allocate(ctx context.Context) (int, error)
}

// LogStore keeps build logs keyed by a demo's log id.
type LogStore interface {
	Write(logID string, records []domain.BuildRecord) error
	Read(logID string) ([]byte, error)
}

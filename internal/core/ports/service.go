package ports

import (
	"context"

	"github.com/origami/origamid/internal/core/domain"
)

// DemoService is the entry point used by the interface adapters (HTTP, CLI).
type DemoService interface {
	// Status reconciles and returns a demo.
	Status(ctx context.Context, demoID string) (*domain.Demo, error)
	// Deploy builds contextDir and (re)starts the demo from it.
	Deploy(ctx context.Context, demoID, contextDir string) (*domain.Demo, error)
	// Remove stops and removes the demo's container.
	Remove(ctx context.Context, demoID string) (*domain.Demo, error)
	// BuildLog returns the raw JSON build log of the demo's last build.
	BuildLog(ctx context.Context, demoID string) ([]byte, error)
}

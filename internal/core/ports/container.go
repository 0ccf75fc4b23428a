package ports

import (
	"context"
	"time"

	"github.com/origami/origamid/internal/core/domain"
)

// ContainerRuntime defines the container operations origamid needs from the
// runtime daemon. A missing container is reported through the found result,
// never as an error; every other failure is a *domain.ConnectionError.
type ContainerRuntime interface {
	// Get inspects a container by id.
	Get(ctx context.Context, id string) (c domain.Container, found bool, err error)
	// Stop asks the container to stop, waiting up to timeout before killing it.
	Stop(ctx context.Context, c domain.Container, timeout time.Duration) (found bool, err error)
	// Remove deletes a stopped container.
	Remove(ctx context.Context, c domain.Container) (found bool, err error)
	// Run creates and starts a container.
	Run(ctx context.Context, spec domain.RunSpec) (domain.Container, error)
}

// RuntimeClient is the full capability set of the runtime daemon.
type RuntimeClient interface {
	ContainerRuntime
	ImageBuildStreamer
}

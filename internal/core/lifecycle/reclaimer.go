package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// DefaultStopTimeout is how long a container gets to stop gracefully before
// the runtime kills it.
const DefaultStopTimeout = 10 * time.Second

// InstanceReclaimer stops and removes the container owned by a demo.
type InstanceReclaimer struct {
	runtime     ports.ContainerRuntime
	repo        ports.Repository
	stopTimeout time.Duration
	log         *log.Logger
}

// NewInstanceReclaimer creates an InstanceReclaimer. A non-positive
// stopTimeout falls back to DefaultStopTimeout.
func NewInstanceReclaimer(runtime ports.ContainerRuntime, repo ports.Repository, stopTimeout time.Duration, logger *log.Logger) *InstanceReclaimer {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &InstanceReclaimer{
		runtime:     runtime,
		repo:        repo,
		stopTimeout: stopTimeout,
		log:         orDiscard(logger),
	}
}

// Reclaim stops and removes the container of demoID, then saves the demo with
// status target and no container or image.
//
// It returns nil when there is nothing to reclaim: the demo does not exist,
// has no container, or its container is already gone. In the last case the
// stored demo is left untouched. If the daemon fails, the demo is saved with
// status error and a *domain.ConnectionError is returned.
func (r *InstanceReclaimer) Reclaim(ctx context.Context, demoID string, target domain.Status) (*domain.Demo, error) {
	demo, err := r.repo.GetOrNone(ctx, demoID)
	if err != nil {
		return nil, fmt.Errorf("load demo %s: %w", demoID, err)
	}
	if demo == nil || !demo.HasContainer() {
		return nil, nil
	}

	c, found, err := r.runtime.Get(ctx, demo.ContainerID)
	if err != nil {
		return nil, r.fail(ctx, demo, domain.NewConnectionError("inspect container", err))
	}
	if !found {
		r.log.Info("no container instance found", "demo", demoID, "container", demo.ContainerID)
		return nil, nil
	}
	r.log.Info("removing container instance", "demo", demoID, "container", c.ID, "state", c.Status)

	// The container may vanish on its own once stopped (auto-remove) or be
	// removed by someone else; either way it is gone, which is the goal.
	if _, err := r.runtime.Stop(ctx, c, r.stopTimeout); err != nil {
		return nil, r.fail(ctx, demo, domain.NewConnectionError("stop container", err))
	}
	if _, err := r.runtime.Remove(ctx, c); err != nil {
		return nil, r.fail(ctx, demo, domain.NewConnectionError("remove container", err))
	}
	r.log.Info("container instance removed", "demo", demoID, "container", c.ID)

	demo.Status = target
	demo.ContainerID = ""
	demo.ImageID = ""
	if err := r.repo.Save(ctx, demo); err != nil {
		return nil, fmt.Errorf("save demo %s: %w", demoID, err)
	}
	return demo, nil
}

func (r *InstanceReclaimer) fail(ctx context.Context, demo *domain.Demo, cause error) error {
	demo.Status = domain.StatusError
	if err := r.repo.Save(ctx, demo); err != nil {
		return errors.Join(cause, fmt.Errorf("save demo %s: %w", demo.DemoID, err))
	}
	return cause
}

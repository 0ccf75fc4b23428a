package lifecycle

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// StatusReconciler folds the runtime's view of a demo's container into the
// persisted demo.
type StatusReconciler struct {
	runtime ports.ContainerRuntime
	repo    ports.Repository
	log     *log.Logger
}

// NewStatusReconciler creates a StatusReconciler. A nil logger discards output.
func NewStatusReconciler(runtime ports.ContainerRuntime, repo ports.Repository, logger *log.Logger) *StatusReconciler {
	return &StatusReconciler{runtime: runtime, repo: repo, log: orDiscard(logger)}
}

// Reconcile looks up the demo's container and saves the observed status.
// A demo without a container is left alone. A container the runtime no
// longer knows resets the demo to empty. On a daemon failure the demo is not
// modified and a *domain.ConnectionError is returned.
func (r *StatusReconciler) Reconcile(ctx context.Context, demo *domain.Demo) error {
	if !demo.HasContainer() {
		return nil
	}

	c, found, err := r.runtime.Get(ctx, demo.ContainerID)
	if err != nil {
		return domain.NewConnectionError("inspect container", err)
	}

	if found {
		r.log.Info("updated demo status", "demo", demo.DemoID, "from", demo.Status, "to", c.Status)
		demo.Status = domain.Status(c.Status)
	} else {
		r.log.Info("no container instance found", "demo", demo.DemoID, "container", demo.ContainerID)
		demo.ContainerID = ""
		demo.Status = domain.StatusEmpty
	}

	if err := r.repo.Save(ctx, demo); err != nil {
		return fmt.Errorf("save demo %s: %w", demo.DemoID, err)
	}
	return nil
}

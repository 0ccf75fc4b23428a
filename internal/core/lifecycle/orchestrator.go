package lifecycle

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// DeploymentOrchestrator (re)deploys a demo: it reclaims the previous
// instance, builds a fresh image and launches it.
//
// A deployment is not transactional. If a step fails, the demo keeps the
// fields set by earlier steps (e.g. a new image id with status error when the
// launch fails) and is saved with status error. The next Deploy, or a
// reconcile, brings it back in line.
type DeploymentOrchestrator struct {
	reclaimer *InstanceReclaimer
	builder   *ImageBuilder
	launcher  *ContainerLauncher
	repo      ports.Repository
	log       *log.Logger
}

// NewDeploymentOrchestrator wires the deployment steps together.
func NewDeploymentOrchestrator(
	reclaimer *InstanceReclaimer,
	builder *ImageBuilder,
	launcher *ContainerLauncher,
	repo ports.Repository,
	logger *log.Logger,
) *DeploymentOrchestrator {
	return &DeploymentOrchestrator{
		reclaimer: reclaimer,
		builder:   builder,
		launcher:  launcher,
		repo:      repo,
		log:       orDiscard(logger),
	}
}

// Deploy builds contextDir and runs it as demoID.
//
// Build and launch failures are recorded as status error on the returned demo
// and are not returned as errors. An error is returned only when the previous
// instance could not be reclaimed, in which case nothing else is attempted, or
// when the demo cannot be loaded or saved.
func (o *DeploymentOrchestrator) Deploy(ctx context.Context, demoID, contextDir string) (*domain.Demo, error) {
	o.log.Info("starting deployment", "demo", demoID)

	if _, err := o.reclaimer.Reclaim(ctx, demoID, domain.StatusRedeploying); err != nil {
		o.log.Error("reclaiming previous instance", "demo", demoID, "err", err)
		return nil, fmt.Errorf("deploy %s: %w", demoID, err)
	}

	demo, err := o.repo.GetOrNone(ctx, demoID)
	if err != nil {
		return nil, fmt.Errorf("load demo %s: %w", demoID, err)
	}
	switch {
	case demo == nil:
		demo = domain.NewDemo(demoID)
		if err := o.save(ctx, demo); err != nil {
			return nil, err
		}
	case demo.Settled():
		demo.Status = domain.StatusRedeploying
		if err := o.save(ctx, demo); err != nil {
			return nil, err
		}
	}

	imageID, err := o.builder.Build(ctx, contextDir, demo.LogID)
	if err != nil {
		return o.fail(ctx, demo, "building image", err)
	}
	demo.ImageID = imageID

	if _, _, err := o.launcher.Launch(ctx, demoID, imageID, demo); err != nil {
		return o.fail(ctx, demo, "launching container", err)
	}

	demo.Status = domain.StatusRunning
	if err := o.save(ctx, demo); err != nil {
		return nil, err
	}
	return demo, nil
}

// fail records a failed step. It is the outer boundary for build and daemon
// errors: they end up in the demo's status, not in the returned error.
func (o *DeploymentOrchestrator) fail(ctx context.Context, demo *domain.Demo, step string, cause error) (*domain.Demo, error) {
	switch {
	case domain.IsBuildError(cause):
		o.log.Error("error while building image", "demo", demo.DemoID, "err", cause)
	case domain.IsConnectionError(cause):
		o.log.Error("error while communicating to docker API", "demo", demo.DemoID, "step", step, "err", cause)
	default:
		o.log.Error("deployment failed", "demo", demo.DemoID, "step", step, "err", cause)
	}

	demo.Status = domain.StatusError
	if err := o.save(ctx, demo); err != nil {
		return nil, err
	}
	return demo, nil
}

func (o *DeploymentOrchestrator) save(ctx context.Context, demo *domain.Demo) error {
	if err := o.repo.Save(ctx, demo); err != nil {
		return fmt.Errorf("save demo %s: %w", demo.DemoID, err)
	}
	return nil
}

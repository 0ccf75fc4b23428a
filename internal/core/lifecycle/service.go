package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Runtime ports.RuntimeClient
	Repo    ports.Repository
	Ports   ports.PortAllocator
	Logs    ports.LogStore
	Logger  *log.Logger
}

// Options tune a Service.
type Options struct {
	// StopTimeout bounds the graceful stop during reclaim.
	StopTimeout time.Duration
	// DemoPort is the container-side port of every demo.
	DemoPort int
	// SweepParallelism bounds concurrent reconciles in ReconcileAll.
	SweepParallelism int
}

// Service exposes the lifecycle operations over a shared set of collaborators.
type Service struct {
	repo         ports.Repository
	logs         ports.LogStore
	reconciler   *StatusReconciler
	reclaimer    *InstanceReclaimer
	orchestrator *DeploymentOrchestrator
	sweeper      *Sweeper
}

var _ ports.DemoService = (*Service)(nil)

// NewService builds every lifecycle component from deps.
func NewService(deps Deps, opts Options) *Service {
	logger := orDiscard(deps.Logger)

	reconciler := NewStatusReconciler(deps.Runtime, deps.Repo, logger.WithPrefix("reconcile"))
	reclaimer := NewInstanceReclaimer(deps.Runtime, deps.Repo, opts.StopTimeout, logger.WithPrefix("reclaim"))
	builder := NewImageBuilder(deps.Runtime, deps.Logs, logger.WithPrefix("build"))
	launcher := NewContainerLauncher(deps.Runtime, deps.Ports, opts.DemoPort, logger.WithPrefix("launch"))

	return &Service{
		repo:         deps.Repo,
		logs:         deps.Logs,
		reconciler:   reconciler,
		reclaimer:    reclaimer,
		orchestrator: NewDeploymentOrchestrator(reclaimer, builder, launcher, deps.Repo, logger.WithPrefix("deploy")),
		sweeper:      NewSweeper(deps.Repo, reconciler, opts.SweepParallelism, logger.WithPrefix("sweep")),
	}
}

// Deploy (re)deploys demoID from contextDir.
func (s *Service) Deploy(ctx context.Context, demoID, contextDir string) (*domain.Demo, error) {
	return s.orchestrator.Deploy(ctx, demoID, contextDir)
}

// Remove reclaims the demo's container and leaves the demo empty. It returns
// the stored demo even when there was no container to reclaim.
func (s *Service) Remove(ctx context.Context, demoID string) (*domain.Demo, error) {
	demo, err := s.reclaimer.Reclaim(ctx, demoID, domain.StatusEmpty)
	if err != nil || demo != nil {
		return demo, err
	}
	return s.load(ctx, demoID)
}

// Status reconciles the demo and returns it.
func (s *Service) Status(ctx context.Context, demoID string) (*domain.Demo, error) {
	demo, err := s.load(ctx, demoID)
	if err != nil {
		return nil, err
	}
	if err := s.reconciler.Reconcile(ctx, demo); err != nil {
		return nil, err
	}
	return demo, nil
}

// ReconcileAll reconciles every stored demo.
func (s *Service) ReconcileAll(ctx context.Context) error {
	return s.sweeper.ReconcileAll(ctx)
}

// Sweeper returns the periodic reconcile loop.
func (s *Service) Sweeper() *Sweeper {
	return s.sweeper
}

// BuildLog returns the raw build log of the demo.
func (s *Service) BuildLog(ctx context.Context, demoID string) ([]byte, error) {
	demo, err := s.load(ctx, demoID)
	if err != nil {
		return nil, err
	}
	return s.logs.Read(demo.LogID)
}

func (s *Service) load(ctx context.Context, demoID string) (*domain.Demo, error) {
	demo, err := s.repo.GetOrNone(ctx, demoID)
	if err != nil {
		return nil, fmt.Errorf("load demo %s: %w", demoID, err)
	}
	if demo == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDemoNotFound, demoID)
	}
	return demo, nil
}

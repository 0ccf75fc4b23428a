package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/origami/origamid/internal/core/ports"
)

// DefaultSweepParallelism bounds concurrent daemon lookups during a sweep.
const DefaultSweepParallelism = 4

// Sweeper reconciles every stored demo to catch drift between the
// repository and the runtime.
type Sweeper struct {
	repo        ports.Repository
	reconciler  *StatusReconciler
	parallelism int
	log         *log.Logger
}

// NewSweeper creates a Sweeper running at most parallelism reconciles at once.
func NewSweeper(repo ports.Repository, reconciler *StatusReconciler, parallelism int, logger *log.Logger) *Sweeper {
	if parallelism <= 0 {
		parallelism = DefaultSweepParallelism
	}
	return &Sweeper{
		repo:        repo,
		reconciler:  reconciler,
		parallelism: parallelism,
		log:         orDiscard(logger),
	}
}

// ReconcileAll reconciles each stored demo. A failure on one demo does not
// stop the others; all failures are joined in the returned error.
func (s *Sweeper) ReconcileAll(ctx context.Context) error {
	demos, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list demos: %w", err)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.parallelism)
	for _, demo := range demos {
		if !demo.HasContainer() {
			continue
		}
		g.Go(func() error {
			if err := s.reconciler.Reconcile(ctx, &demo); err != nil {
				s.log.Warn("reconcile failed", "demo", demo.DemoID, "err", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("reconcile %s: %w", demo.DemoID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("reconcile loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconcile loop stopped")
			return
		case <-ticker.C:
			if err := s.ReconcileAll(ctx); err != nil {
				s.log.Error("reconcile sweep", "err", err)
			}
		}
	}
}

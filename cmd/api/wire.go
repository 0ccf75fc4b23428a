package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/origami/origamid/internal/adapters/builder"
	"github.com/origami/origamid/internal/adapters/docker"
	"github.com/origami/origamid/internal/adapters/logstore"
	"github.com/origami/origamid/internal/adapters/sqlite"
	"github.com/origami/origamid/internal/config"
	"github.com/origami/origamid/internal/core/lifecycle"
	"github.com/origami/origamid/internal/core/ports"
	"github.com/origami/origamid/internal/logging"
)

// runtimeClient joins the container and build adapters into one
// ports.RuntimeClient.
type runtimeClient struct {
	ports.ContainerRuntime
	ports.ImageBuildStreamer
}

// app holds the wired components of one origamid process.
type app struct {
	cfg     *config.Config
	log     *log.Logger
	store   *sqlite.Store
	service *lifecycle.Service
	closers []func() error
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	// 1. Initialize Adapters (Infrastructure)
	cli, err := docker.NewClient(cfg.Docker.Host)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger, closers: []func() error{cli.Close}}

	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	allocator, err := sqlite.NewPortAllocator(store, sqlite.PortRange{Min: cfg.Ports.Min, Max: cfg.Ports.Max}, logger.WithPrefix("ports"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	logs, err := logstore.NewFileStore(cfg.LogsDir)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	// 2. Initialize the core, injecting the adapters.
	a.service = lifecycle.NewService(lifecycle.Deps{
		Runtime: runtimeClient{
			ContainerRuntime:   docker.NewAdapter(cli, cfg.Docker.CallTimeout),
			ImageBuildStreamer: builder.NewBuilderAdapter(cli, cfg.Docker.BuildTimeout),
		},
		Repo:   store,
		Ports:  allocator,
		Logs:   logs,
		Logger: logger,
	}, lifecycle.Options{
		StopTimeout:      cfg.Demo.StopTimeout,
		DemoPort:         cfg.Demo.Port,
		SweepParallelism: cfg.Reconcile.Parallelism,
	})
	return a, nil
}

// Close releases the process resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/origami/origamid/internal/adapters/builder"
	"github.com/origami/origamid/internal/adapters/http"
	"github.com/origami/origamid/internal/core/domain"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "origamid",
		Short:        "Build, run and reconcile origami demo containers",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, toml or json)")

	// withApp wires the process for one command and tears it down afterwards.
	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.log.Error("close", "err", err)
				}
			}()
			return run(cmd, a, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the demo API and subdomain proxy",
			Args:  cobra.NoArgs,
			RunE:  withApp(runServe),
		},
		&cobra.Command{
			Use:   "deploy <demo-id> [context-dir]",
			Short: "Build and (re)launch a demo from its build context",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  withApp(runDeploy),
		},
		&cobra.Command{
			Use:   "remove <demo-id>",
			Short: "Stop and remove the demo's container",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(runRemove),
		},
		&cobra.Command{
			Use:   "reconcile [demo-id]",
			Short: "Refresh recorded status from the container runtime",
			Args:  cobra.MaximumNArgs(1),
			RunE:  withApp(runReconcile),
		},
		&cobra.Command{
			Use:   "status <demo-id>",
			Short: "Print the demo record",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(runStatus),
		},
	)
	return root
}

func runServe(cmd *cobra.Command, a *app, _ []string) error {
	ctx := cmd.Context()

	// 1. Initialize HTTP Handlers (Interface Adapters)
	demoHandler := http.NewDemoHandler(a.service, builder.NewCloner(nil), a.cfg.DemosDir, a.log.WithPrefix("http"))
	proxyHandler := http.NewProxyHandler(a.store, a.cfg.ProxyDomain, a.cfg.ProxyTarget)

	// 2. Setup Framework (Fiber)
	server := fiber.New(fiber.Config{DisableStartupMessage: true})

	// Subdomain routing runs before the API routes.
	server.Use(proxyHandler.ProxyRequest)

	// 3. Define Routes
	api := server.Group("/api")
	v1 := api.Group("/v1")
	demoHandler.Routes(v1.Group("/demos"))

	if interval := a.cfg.Reconcile.Interval; interval > 0 {
		go a.service.Sweeper().Run(ctx, interval)
	}

	// 4. Start Server
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", "addr", a.cfg.ListenAddr)
		errCh <- server.Listen(a.cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
		a.log.Error("shutdown", "err", err)
	}
	demoHandler.Wait()
	return nil
}

func runDeploy(cmd *cobra.Command, a *app, args []string) error {
	id := args[0]
	dir := filepath.Join(a.cfg.DemosDir, id)
	if len(args) == 2 {
		dir = args[1]
	}
	demo, err := a.service.Deploy(cmd.Context(), id, dir)
	if err != nil {
		return err
	}
	if err := printDemo(cmd, demo); err != nil {
		return err
	}
	if demo.Status == domain.StatusError {
		return fmt.Errorf("deploy %s failed, see build log %s", id, demo.LogID)
	}
	return nil
}

func runRemove(cmd *cobra.Command, a *app, args []string) error {
	demo, err := a.service.Remove(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printDemo(cmd, demo)
}

func runReconcile(cmd *cobra.Command, a *app, args []string) error {
	if len(args) == 0 {
		return a.service.ReconcileAll(cmd.Context())
	}
	demo, err := a.service.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printDemo(cmd, demo)
}

func runStatus(cmd *cobra.Command, a *app, args []string) error {
	demo, err := a.store.GetOrNone(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if demo == nil {
		return fmt.Errorf("%w: %s", domain.ErrDemoNotFound, args[0])
	}
	return printDemo(cmd, demo)
}

func printDemo(cmd *cobra.Command, demo *domain.Demo) error {
	if demo == nil {
		return errors.New("no demo record")
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(demo)
}

package http

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// demoIDPattern restricts demo ids to valid container names, which also
// keeps them safe as directory names.
var demoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)

// DemoHandler serves the demo lifecycle API.
type DemoHandler struct {
	service  ports.DemoService
	fetcher  ports.SourceFetcher
	demosDir string
	log      *log.Logger

	// deploys tracks deployments still running in the background.
	deploys sync.WaitGroup
}

// NewDemoHandler creates a handler deploying demos from <demosDir>/<id>.
func NewDemoHandler(service ports.DemoService, fetcher ports.SourceFetcher, demosDir string, logger *log.Logger) *DemoHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &DemoHandler{service: service, fetcher: fetcher, demosDir: demosDir, log: logger}
}

// Routes registers the demo endpoints on r.
func (h *DemoHandler) Routes(r fiber.Router) {
	r.Get("/:id", h.GetDemo)
	r.Post("/:id/deploy", h.DeployDemo)
	r.Post("/:id/reconcile", h.GetDemo)
	r.Delete("/:id/instance", h.RemoveDemo)
	r.Get("/:id/logs", h.GetBuildLog)
}

// Wait blocks until background deployments have finished.
func (h *DemoHandler) Wait() {
	h.deploys.Wait()
}

// GetDemo reconciles the demo with the runtime and returns it.
func (h *DemoHandler) GetDemo(c *fiber.Ctx) error {
	id, ok := demoID(c)
	if !ok {
		return invalidDemoID(c)
	}
	demo, err := h.service.Status(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(demo)
}

type DeployDemoRequest struct {
	RepoURL string `json:"repo_url"`
}

// DeployDemo starts a deployment in the background. When a repo_url is
// given, the demo's build context is replaced by a fresh checkout first.
func (h *DemoHandler) DeployDemo(c *fiber.Ctx) error {
	id, ok := demoID(c)
	if !ok {
		return invalidDemoID(c)
	}

	var req DeployDemoRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	contextDir := filepath.Join(h.demosDir, id)
	if req.RepoURL != "" {
		if h.fetcher == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Fetching sources is not enabled",
			})
		}
		if err := h.fetcher.Fetch(c.UserContext(), req.RepoURL, contextDir); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Fetch failed: " + err.Error(),
			})
		}
	}

	// A deploy outlives the request; it is detached from its context.
	h.deploys.Add(1)
	go func() {
		defer h.deploys.Done()
		demo, err := h.service.Deploy(context.Background(), id, contextDir)
		if err != nil {
			h.log.Error("deployment aborted", "demo", id, "err", err)
			return
		}
		h.log.Info("deployment finished", "demo", id, "status", demo.Status)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"demo_id": id,
		"context": contextDir,
	})
}

// RemoveDemo stops and removes the demo's container.
func (h *DemoHandler) RemoveDemo(c *fiber.Ctx) error {
	id, ok := demoID(c)
	if !ok {
		return invalidDemoID(c)
	}
	demo, err := h.service.Remove(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(demo)
}

// GetBuildLog returns the raw JSON build log of the demo.
func (h *DemoHandler) GetBuildLog(c *fiber.Ctx) error {
	id, ok := demoID(c)
	if !ok {
		return invalidDemoID(c)
	}
	data, err := h.service.BuildLog(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

func demoID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	return id, demoIDPattern.MatchString(id)
}

func invalidDemoID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid demo id",
	})
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrDemoNotFound), errors.Is(err, domain.ErrLogNotFound):
		status = fiber.StatusNotFound
	case domain.IsConnectionError(err):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

package http

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/origami/origamid/internal/core/domain"
)

type mapRepo map[string]domain.Demo

func (m mapRepo) GetOrNone(_ context.Context, id string) (*domain.Demo, error) {
	d, ok := m[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m mapRepo) Save(_ context.Context, d *domain.Demo) error {
	m[d.DemoID] = *d
	return nil
}

func (m mapRepo) List(context.Context) ([]domain.Demo, error) {
	out := make([]domain.Demo, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	return out, nil
}

func TestProxyHandler_ProxyRequest(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		fmt.Fprintf(w, "hello from %s", r.URL.Path)
	}))
	t.Cleanup(backend.Close)

	u, err := url.Parse(backend.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}

	repo := mapRepo{
		"demo1": {DemoID: "demo1", Status: domain.StatusRunning, Port: port},
		"demo2": {DemoID: "demo2", Status: domain.StatusError, Port: port + 1},
	}
	app := fiber.New()
	app.Use(NewProxyHandler(repo, "localhost", "127.0.0.1").ProxyRequest)
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("origamid") })
	app.Get("/api/v1/demos/:id", func(c *fiber.Ctx) error { return c.SendString("api " + c.Params("id")) })

	tests := map[string]struct {
		host       string
		path       string
		wantStatus int
		wantBody   string
	}{
		"running demo is proxied":     {host: "demo1.localhost", wantStatus: fiber.StatusOK, wantBody: "hello from /"},
		"running demo with port":      {host: "demo1.localhost:3000", wantStatus: fiber.StatusOK, wantBody: "hello from /"},
		"stopped demo":                {host: "demo2.localhost", wantStatus: fiber.StatusNotFound},
		"unknown demo":                {host: "demo3.localhost", wantStatus: fiber.StatusNotFound},
		"bare host passes through":    {host: "localhost", wantStatus: fiber.StatusOK, wantBody: "origamid"},
		"www passes through":          {host: "www.localhost", wantStatus: fiber.StatusOK, wantBody: "origamid"},
		"ip host reaches api":         {host: "127.0.0.1:3000", path: "/api/v1/demos/demo1", wantStatus: fiber.StatusOK, wantBody: "api demo1"},
		"lan ip reaches api":          {host: "192.168.1.20", path: "/api/v1/demos/demo1", wantStatus: fiber.StatusOK, wantBody: "api demo1"},
		"other domain reaches api":    {host: "origami.example.com", path: "/api/v1/demos/demo1", wantStatus: fiber.StatusOK, wantBody: "api demo1"},
		"nested subdomain falls back": {host: "a.demo1.localhost", wantStatus: fiber.StatusOK, wantBody: "origamid"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			path := tc.path
			if path == "" {
				path = "/"
			}
			req := httptest.NewRequest(fiber.MethodGet, path, nil)
			req.Host = tc.host
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatal(err)
			}
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tc.wantStatus, body)
			}
			if tc.wantBody != "" && string(body) != tc.wantBody {
				t.Errorf("body = %q, want %q", body, tc.wantBody)
			}
		})
	}
}

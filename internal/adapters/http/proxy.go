package http

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

// ProxyHandler manages reverse proxying for subdomains.
type ProxyHandler struct {
	repo       ports.Repository
	baseDomain string
	targetHost string
}

// NewProxyHandler creates a proxy forwarding <demo-id>.<baseDomain> to the
// demo's published port on targetHost.
func NewProxyHandler(repo ports.Repository, baseDomain, targetHost string) *ProxyHandler {
	if baseDomain == "" {
		baseDomain = "localhost"
	}
	if targetHost == "" {
		targetHost = "127.0.0.1"
	}
	return &ProxyHandler{
		repo:       repo,
		baseDomain: strings.ToLower(strings.Trim(baseDomain, ".")),
		targetHost: targetHost,
	}
}

// ProxyRequest intercepts requests to subdomains of the base domain (e.g.,
// demo1.localhost) and routes them to the host port of the matching running
// demo. Any other host falls through to the next handler.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	subdomain, ok := h.demoSubdomain(c.Hostname())
	if !ok {
		return c.Next()
	}

	demo, err := h.repo.GetOrNone(c.UserContext(), subdomain)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to look up demo")
	}
	if demo == nil || demo.Status != domain.StatusRunning || demo.Port == 0 {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("Demo '%s' not found or not running", subdomain))
	}

	remote := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(h.targetHost, strconv.Itoa(demo.Port)),
	}
	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite the Host header so the demo sees a request addressed to it.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = fmt.Fprintf(w, "Proxy Info: demo=%s target=%s error=%v", subdomain, remote.Host, err)
	}

	return adaptor.HTTPHandler(proxy)(c)
}

// demoSubdomain returns the demo id of a host of the form <id>.<baseDomain>.
func (h *ProxyHandler) demoSubdomain(host string) (string, bool) {
	if hostOnly, _, err := net.SplitHostPort(host); err == nil {
		host = hostOnly
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return "", false
	}

	subdomain, found := strings.CutSuffix(host, "."+h.baseDomain)
	if !found || subdomain == "" || strings.Contains(subdomain, ".") {
		return "", false
	}
	// Skip common subdomains
	if subdomain == "www" || subdomain == "api" {
		return "", false
	}
	return subdomain, true
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"bowsernet/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	browser *service.Browser
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(b *service.Browser, v Version) *HealthHandler {
	return &HealthHandler{browser: b, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the version, pooled connections, cached responses and the
// current page.
func (h *HealthHandler) Status(c echo.Context) error {
	stats := h.browser.Stats()
	resp := map[string]any{
		"status":           "ok",
		"version":          string(h.version),
		"connections":      stats.Connections,
		"cached_responses": stats.CachedResponses,
	}
	if page := h.browser.Current(); page != nil {
		resp["current_url"] = page.URL
	}
	return c.JSON(http.StatusOK, resp)
}

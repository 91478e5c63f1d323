package handler

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"bowsernet/internal/client"
	"bowsernet/internal/config"
	"bowsernet/internal/httpwire"
	"bowsernet/internal/pool"
	"bowsernet/internal/service"
	"bowsernet/internal/weburl"
)

// PageHandler loads pages on behalf of API clients.
type PageHandler struct {
	browser   *service.Browser
	allowFile bool
	logger    *slog.Logger
}

// NewPageHandler creates a PageHandler.
func NewPageHandler(b *service.Browser, cfg *config.Config, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		browser:   b,
		allowFile: cfg.Server.AllowFileURLs,
		logger:    logger.With("component", "page_handler"),
	}
}

// Fetch loads the page named by the url query parameter.
//
// Query parameters: url (required), raw=1 to include the document body,
// window=1 to return only the rows visible at scroll (default 0).
func (h *PageHandler) Fetch(c echo.Context) error {
	raw := c.QueryParam("url")
	if raw == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "url query parameter is required",
		})
	}

	u, err := weburl.Parse(raw)
	if err != nil {
		return h.mapError(c, err)
	}
	if _, ok := u.Scheme.(weburl.File); ok && !h.allowFile {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "file URLs are disabled; set server.allow_file_urls to enable",
		})
	}

	var scroll *int
	if s := c.QueryParam("scroll"); s != "" {
		offset, err := strconv.Atoi(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "scroll must be an integer",
			})
		}
		scroll = &offset
	}

	page, err := h.browser.LoadView(c.Request().Context(), u, scroll, flag(c, "window"))
	if err != nil {
		return h.mapError(c, err)
	}
	if !flag(c, "raw") {
		page.Body = ""
	}

	return c.JSON(http.StatusOK, page)
}

func flag(c echo.Context, name string) bool {
	v, err := strconv.ParseBool(c.QueryParam(name))
	return err == nil && v
}

func (h *PageHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("page load failed",
		"err", err,
		"url", c.QueryParam("url"),
	)

	status, msg := classify(err)
	return c.JSON(status, map[string]string{"error": msg})
}

// classify maps a load error to an HTTP status and a client-facing message.
func classify(err error) (int, string) {
	var ce *pool.ConnectError
	switch {
	case errors.Is(err, weburl.ErrMalformedURL), errors.Is(err, weburl.ErrUnsupportedScheme):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "file not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusBadGateway, "client disconnected"
	case errors.As(err, &ce):
		return http.StatusBadGateway, "upstream connection failed"
	case errors.Is(err, client.ErrTooManyRedirects):
		return http.StatusBadGateway, "too many redirects"
	case errors.Is(err, client.ErrInvalidRedirect):
		return http.StatusBadGateway, "invalid redirect"
	case errors.Is(err, httpwire.ErrMalformedResponse), errors.Is(err, httpwire.ErrUnhandledTransferEncoding):
		return http.StatusBadGateway, "upstream sent an unreadable response"
	case errors.Is(err, client.ErrInvalidEncoding):
		return http.StatusUnprocessableEntity, "document is not valid UTF-8"
	}
	return http.StatusBadGateway, "page load failed"
}

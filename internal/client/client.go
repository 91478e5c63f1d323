// Package client fetches documents for every scheme the browser supports,
// speaking HTTP/1.1 over pooled connections for http and https.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"bowsernet/internal/cache"
	"bowsernet/internal/config"
	"bowsernet/internal/httpwire"
	"bowsernet/internal/metrics"
	"bowsernet/internal/pool"
	"bowsernet/internal/weburl"
)

// RedirectLimit is the number of requests a redirect chain may issue before
// the fetch fails.
const RedirectLimit = 5

var (
	// ErrTooManyRedirects is returned when a redirect chain reaches RedirectLimit.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrInvalidRedirect is returned when a Location does not resolve to an http(s) URL.
	ErrInvalidRedirect = errors.New("invalid redirect")
	// ErrInvalidEncoding is returned when a document is not valid UTF-8.
	ErrInvalidEncoding = errors.New("document is not valid UTF-8")
)

var viewSourceEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Client fetches documents. It owns no state of its own: the pool and cache
// are constructed by the caller and shared across fetches.
// A Client is not safe for concurrent use.
type Client struct {
	pool      *pool.Pool
	cache     *cache.Cache
	userAgent string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a Client that fetches through p and c.
// The metrics parameter is optional; pass nil to disable fetch metrics.
func New(cfg *config.Config, p *pool.Pool, c *cache.Cache, logger *slog.Logger, m *metrics.Metrics) *Client {
	ua := cfg.Browser.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	return &Client{
		pool:      p,
		cache:     c,
		userAgent: ua,
		logger:    logger.With("component", "client"),
		metrics:   m,
	}
}

// Request returns the document addressed by u. In view-source mode the
// document's markup characters are escaped.
func (c *Client) Request(ctx context.Context, u weburl.URL) (string, error) {
	c.logger.Info("requesting", "url", u.String())

	start := time.Now()
	var (
		body string
		err  error
	)
	switch s := u.Scheme.(type) {
	case weburl.HTTP:
		body, err = c.fetchHTTP(ctx, s)
	case weburl.File:
		body, err = readFile(s)
	case weburl.Data:
		body = s.Contents
	case weburl.Builtin:
		body = ""
	default:
		err = fmt.Errorf("%w: %T", weburl.ErrUnsupportedScheme, u.Scheme)
	}
	c.observe(u.Scheme, start, err)
	if err != nil {
		return "", err
	}

	if u.ViewSource {
		body = viewSourceEscaper.Replace(body)
	}
	return body, nil
}

// Connections returns the number of pooled connections.
func (c *Client) Connections() int {
	return c.pool.Len()
}

// CachedResponses returns the number of cache entries, stale ones included.
func (c *Client) CachedResponses() int {
	return c.cache.Len()
}

// Close releases every pooled connection.
func (c *Client) Close() error {
	return c.pool.Close()
}

func (c *Client) fetchHTTP(ctx context.Context, u weburl.HTTP) (string, error) {
	for redirects := 0; ; redirects++ {
		if redirects >= RedirectLimit {
			return "", fmt.Errorf("%w: gave up at %s", ErrTooManyRedirects, u)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if body, ok := c.cache.Get(u); ok {
			c.logger.Info("loading response from cache", "url", u.String())
			c.countCache("hit")
			return body, nil
		}
		c.countCache("miss")

		resp, body, err := c.roundTrip(ctx, u)
		if err != nil {
			return "", err
		}

		if resp.Status >= 300 && resp.Status <= 399 {
			next, err := redirectTarget(u, resp.Headers)
			if err != nil {
				return "", err
			}
			c.logger.Info("redirecting", "from", u.String(), "to", next.String())
			if c.metrics != nil {
				c.metrics.Redirects.Inc()
			}
			u = next
			continue
		}

		if resp.Status == 200 {
			c.store(u, resp.Headers, body)
		}
		return body, nil
	}
}

// roundTrip sends one GET for u and reads the complete response. A
// connection that fails mid-exchange is dropped from the pool; the request
// itself is not retried.
func (c *Client) roundTrip(ctx context.Context, u weburl.HTTP) (*httpwire.Response, string, error) {
	conn, err := c.pool.Get(ctx, u)
	if err != nil {
		return nil, "", err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}

	headers := httpwire.NewHeaders().
		Add("Host", u.Host).
		Add("Accept-Encoding", "gzip").
		Add("User-Agent", c.userAgent)

	if err := httpwire.WriteRequest(conn.Writer, u.Path, headers); err != nil {
		c.pool.Discard(conn)
		return nil, "", fmt.Errorf("request %s: %w", u, err)
	}

	resp, err := httpwire.ReadResponse(conn.Reader)
	if err != nil {
		c.pool.Discard(conn)
		return nil, "", fmt.Errorf("response from %s: %w", u, err)
	}
	c.logger.Info("server returned",
		"status", resp.Status,
		"explanation", resp.Explanation,
	)

	raw := resp.Body
	if resp.Headers.Contains("Content-Encoding") {
		c.logger.Debug("decompressing gzipped response", "bytes", len(raw))
		raw, err = httpwire.Decompress(raw)
		if err != nil {
			return nil, "", fmt.Errorf("response from %s: %w", u, err)
		}
	}
	if !utf8.Valid(raw) {
		return nil, "", fmt.Errorf("response from %s: %w", u, ErrInvalidEncoding)
	}
	return resp, string(raw), nil
}

// redirectTarget resolves the Location of a 3xx response against cur.
func redirectTarget(cur weburl.HTTP, headers *httpwire.Headers) (weburl.HTTP, error) {
	loc, ok := headers.Get("Location")
	if !ok {
		return weburl.HTTP{}, fmt.Errorf("%w: redirect without Location", httpwire.ErrMalformedResponse)
	}

	if strings.HasPrefix(loc, "/") {
		next := cur
		next.Path = loc
		return next, nil
	}

	parsed, err := weburl.Parse(loc)
	if err != nil {
		return weburl.HTTP{}, fmt.Errorf("%w: %q: %w", ErrInvalidRedirect, loc, err)
	}
	next, ok := parsed.Scheme.(weburl.HTTP)
	if !ok {
		return weburl.HTTP{}, fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidRedirect, loc)
	}
	return next, nil
}

func (c *Client) store(u weburl.HTTP, headers *httpwire.Headers, body string) {
	var cc httpwire.CacheControl
	if v, ok := headers.Get("Cache-Control"); ok {
		cc = httpwire.ParseCacheControl(v)
	}

	if cc.NoStore {
		c.logger.Info("not caching response due to no-store directive", "url", u.String())
		return
	}
	c.logger.Info("caching response", "url", u.String(), "max_age", cc.MaxAge)
	c.cache.Set(u, body, cc.MaxAge)
}

func readFile(f weburl.File) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("read file %s: %w", f.Path, ErrInvalidEncoding)
	}
	return string(data), nil
}

func (c *Client) countCache(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (c *Client) observe(s weburl.Scheme, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	label := schemeLabel(s)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.FetchesTotal.WithLabelValues(label, outcome).Inc()
	c.metrics.FetchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

func schemeLabel(s weburl.Scheme) string {
	switch s := s.(type) {
	case weburl.HTTP:
		if s.TLS {
			return "https"
		}
		return "http"
	case weburl.File:
		return "file"
	case weburl.Data:
		return "data"
	case weburl.Builtin:
		return "builtin"
	default:
		return "other"
	}
}

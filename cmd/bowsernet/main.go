package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"golang.org/x/time/rate"

	"bowsernet/internal/cache"
	"bowsernet/internal/client"
	"bowsernet/internal/config"
	"bowsernet/internal/handler"
	"bowsernet/internal/metrics"
	"bowsernet/internal/middleware"
	"bowsernet/internal/model"
	"bowsernet/internal/pool"
	"bowsernet/internal/service"
	"bowsernet/internal/weburl"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	ctx := kong.Parse(&cli,
		kong.Name("bowsernet"),
		kong.Description("A small browser: fetches documents over HTTP/1.1 and renders their text."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	switch {
	case strings.HasPrefix(ctx.Command(), "serve"):
		serve(&cli)
	default:
		if err := runFetch(&cli, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "bowsernet:", err)
			os.Exit(1)
		}
	}
}

// runFetch loads each URL in order through one shared pool and cache and
// writes the rendered pages to out. Logs go to stderr.
func runFetch(cli *config.CLI, out io.Writer) error {
	cfg, err := config.Load(cli)
	if err != nil {
		return err
	}
	logger := buildLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(cfg, pool.New(cfg, logger, nil), cache.New(), logger, nil)
	b := service.NewBrowser(cfg, c, logger)
	defer func() { _ = b.Close() }()

	urls := cli.Fetch.URLs
	if len(urls) == 0 {
		urls = []string{cfg.Browser.DefaultURL}
	}

	var (
		errs   []error
		shown  int
		scroll *int
	)
	if cli.Fetch.Scroll != 0 {
		scroll = &cli.Fetch.Scroll
	}
	window := cli.Fetch.Window || scroll != nil

	for _, raw := range urls {
		var page *model.Page
		u, err := weburl.Parse(raw)
		if err == nil {
			page, err = b.LoadView(ctx, u, scroll, window)
		}
		if err != nil {
			logger.Error("load failed", "url", raw, "err", err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if len(urls) > 1 {
			if shown > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "==> %s <==\n", page.URL)
		}
		shown++

		if cli.Fetch.Raw {
			fmt.Fprintln(out, page.Body)
			continue
		}

		for _, line := range page.Lines {
			fmt.Fprintln(out, strings.TrimRight(line, " "))
		}
	}
	return errors.Join(errs...)
}

func serve(cli *config.CLI) {
	fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			pool.New,
			cache.New,
			client.New,
			service.NewBrowser,
			newEcho,
			handler.NewPageHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, closeBrowser, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	return buildLogger(cfg, os.Stdout)
}

func buildLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks. Writes may wait on a
	// slow upstream page, so they get a generous bound.
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 2 * time.Minute
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m, cfg.Metrics.Path))
	}
	e.Use(middleware.RequestLogger(logger))
	// The API only takes GETs.
	e.Use(echomw.BodyLimit("1K"))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func closeBrowser(lc fx.Lifecycle, b *service.Browser) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return b.Close()
		},
	})
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "file_urls", cfg.Server.AllowFileURLs)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}

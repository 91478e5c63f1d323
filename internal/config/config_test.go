package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[browser]
default_url = "https://example.org/index.html"
user_agent = "test-agent"
width = 640
height = 480

[network]
dial_timeout_seconds = 5

[server]
host = "0.0.0.0"
port = 9000
allow_file_urls = true

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Browser.DefaultURL != "https://example.org/index.html" {
		t.Errorf("Browser.DefaultURL = %q, want %q", cfg.Browser.DefaultURL, "https://example.org/index.html")
	}
	if cfg.Browser.UserAgent != "test-agent" {
		t.Errorf("Browser.UserAgent = %q, want %q", cfg.Browser.UserAgent, "test-agent")
	}
	if cfg.Browser.Width != 640 || cfg.Browser.Height != 480 {
		t.Errorf("Browser size = %dx%d, want 640x480", cfg.Browser.Width, cfg.Browser.Height)
	}
	if got := cfg.Network.DialTimeout().Seconds(); got != 5 {
		t.Errorf("Network.DialTimeout() = %vs, want 5s", got)
	}
	if cfg.Server.Addr() != "0.0.0.0:9000" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "0.0.0.0:9000")
	}
	if !cfg.Server.AllowFileURLs {
		t.Error("Server.AllowFileURLs = false, want true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.FilePath() != path {
		t.Errorf("FilePath() = %q, want %q", cfg.FilePath(), path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Browser.DefaultURL != "file://examples/welcome.html" {
		t.Errorf("Browser.DefaultURL = %q", cfg.Browser.DefaultURL)
	}
	if cfg.Browser.UserAgent != DefaultUserAgent {
		t.Errorf("Browser.UserAgent = %q, want %q", cfg.Browser.UserAgent, DefaultUserAgent)
	}
	if cfg.Browser.Width != 800 || cfg.Browser.Height != 800 {
		t.Errorf("Browser size = %dx%d, want 800x800", cfg.Browser.Width, cfg.Browser.Height)
	}
	if cfg.Network.DialTimeout() != 0 {
		t.Errorf("Network.DialTimeout() = %v, want 0", cfg.Network.DialTimeout())
	}
	if cfg.Server.Addr() != "127.0.0.1:8000" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "127.0.0.1:8000")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Server.AllowFileURLs {
		t.Error("Server.AllowFileURLs = true, want false by default")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Browser.UserAgent != DefaultUserAgent {
		t.Errorf("Browser.UserAgent = %q, want %q", cfg.Browser.UserAgent, DefaultUserAgent)
	}
	if cfg.FilePath() != "" {
		t.Errorf("FilePath() = %q, want empty", cfg.FilePath())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing explicit file, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, "[browser\nwidth = ")
	if _, err := Load(cliWithPath(path)); err == nil {
		t.Fatal("Load() expected parse error, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 8000

[log]
level = "info"
`)

	cli := &CLI{
		Config:   path,
		LogLevel: "warn",
		Serve:    ServeCmd{Host: "0.0.0.0", Port: 9999},
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9999)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad default url", "[browser]\ndefault_url = \"example.org\"", "browser.default_url"},
		{"user agent with newline", "[browser]\nuser_agent = \"a\\r\\nX-Injected: 1\"", "browser.user_agent"},
		{"negative width", "[browser]\nwidth = -1", "browser.width"},
		{"negative dial timeout", "[network]\ndial_timeout_seconds = -1", "network.dial_timeout_seconds"},
		{"negative port", "[server]\nport = -1", "server.port"},
		{"port too large", "[server]\nport = 70000", "server.port"},
		{"rate limit without rps", "[server.rate_limit]\nenabled = true", "requests_per_second"},
		{"bad log level", "[log]\nlevel = \"verbose\"", "log.level"},
		{"bad log format", "[log]\nformat = \"xml\"", "log.format"},
		{"metrics path without slash", "[metrics]\nenabled = true\npath = \"metrics\"", "must start with"},
		{"metrics path conflicts", "[metrics]\nenabled = true\npath = \"/fetch\"", "conflicts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 2.5
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("RateLimit.Enabled = false, want true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 2.5 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 2.5", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = false
path = "no-slash"
`)

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	path := writeConfig(t, "")
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	cfg.WarnPermissions(slog.New(slog.NewTextHandler(&buf, nil)))
	if !strings.Contains(buf.String(), "writable by group/others") {
		t.Errorf("expected permission warning, got %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	path := writeConfig(t, "")
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	cfg.WarnPermissions(slog.New(slog.NewTextHandler(&buf, nil)))
	if buf.Len() != 0 {
		t.Errorf("expected no warning, got %q", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml"), path}); got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	if got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.toml")
	second := filepath.Join(dir, "second.toml")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if got := findConfigInPaths([]string{first, second}); got != first {
		t.Errorf("findConfigInPaths() = %q, want %q", got, first)
	}
}

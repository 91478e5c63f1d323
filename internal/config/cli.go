package config

import "github.com/alecthomas/kong"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string           `kong:"short='c',help='Path to TOML config file.',env='BOWSERNET_CONFIG'"`
	LogLevel string           `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Version  kong.VersionFlag `kong:"help='Print version and exit.'"`

	Fetch FetchCmd `kong:"cmd,default='withargs',help='Load pages and print them as text.'"`
	Serve ServeCmd `kong:"cmd,help='Serve loaded pages over a local HTTP API.'"`
}

// FetchCmd loads each URL in order through one shared connection pool and cache.
type FetchCmd struct {
	URLs   []string `kong:"arg,optional,name='url',help='URLs to load (default: browser.default_url).'"`
	Raw    bool     `kong:"help='Print the document body instead of the rendered text.'"`
	Scroll int      `kong:"help='Scroll the window down by this many pixels before printing.'"`
	Window bool     `kong:"short='w',help='Print only the rows visible in the window.'"`
}

// ServeCmd runs the page API.
type ServeCmd struct {
	Host string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
}

// Package service implements page loading on top of the fetch client.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"bowsernet/internal/client"
	"bowsernet/internal/config"
	"bowsernet/internal/layout"
	"bowsernet/internal/markup"
	"bowsernet/internal/model"
	"bowsernet/internal/weburl"
)

// Browser loads pages and keeps the current one laid out for scrolling.
// Loads are serialized: the client's pool and cache see one fetch at a time.
type Browser struct {
	mu     sync.Mutex
	client *client.Client
	width  int
	height int
	logger *slog.Logger

	page   *model.Page
	items  []layout.Item
	scroll int
}

// NewBrowser creates a Browser that fetches through c.
func NewBrowser(cfg *config.Config, c *client.Client, logger *slog.Logger) *Browser {
	return &Browser{
		client: c,
		width:  cfg.Browser.Width,
		height: cfg.Browser.Height,
		logger: logger.With("component", "browser"),
	}
}

// Open parses raw and loads it.
func (b *Browser) Open(ctx context.Context, raw string) (*model.Page, error) {
	u, err := weburl.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	return b.Load(ctx, u)
}

// Load fetches u, strips its markup and lays the text out. The new page
// becomes current, scrolled to the top.
func (b *Browser) Load(ctx context.Context, u weburl.URL) (*model.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx, u); err != nil {
		return nil, err
	}
	p := *b.page
	return &p, nil
}

// LoadView loads u like Load, then scrolls to *scroll when scroll is non-nil
// and, when window is set, replaces Lines with the visible rows. The whole
// sequence holds the lock, so the result describes a single page.
func (b *Browser) LoadView(ctx context.Context, u weburl.URL, scroll *int, window bool) (*model.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.load(ctx, u); err != nil {
		return nil, err
	}
	if scroll != nil {
		b.scrollTo(*scroll)
	}
	p := *b.page
	if window {
		p.Lines = b.window()
	}
	return &p, nil
}

func (b *Browser) load(ctx context.Context, u weburl.URL) error {
	body, err := b.client.Request(ctx, u)
	if err != nil {
		return fmt.Errorf("load %s: %w", u, err)
	}

	text := markup.Strip(markup.Lex(body))
	items := layout.Layout(text, b.width)

	b.items = items
	b.scroll = 0
	b.page = &model.Page{
		URL:        u.String(),
		ViewSource: u.ViewSource,
		Body:       body,
		Text:       text,
		Lines:      layout.Lines(items),
		Height:     layout.Height(items),
	}
	b.logger.Debug("page loaded",
		"url", b.page.URL,
		"chars", len(items),
		"height", b.page.Height,
	)
	return nil
}

// ScrollTo moves the window to offset, clamped to the page, and returns the
// resulting offset.
func (b *Browser) ScrollTo(offset int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrollTo(offset)
}

// ScrollDown moves the window down by one layout.ScrollStep.
func (b *Browser) ScrollDown() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrollTo(b.scroll + layout.ScrollStep)
}

func (b *Browser) scrollTo(offset int) int {
	maxScroll := layout.Height(b.items)
	switch {
	case offset < 0:
		offset = 0
	case offset > maxScroll:
		offset = maxScroll
	}
	b.scroll = offset
	if b.page != nil {
		b.page.Scroll = offset
	}
	return offset
}

// Window returns the rows of the current page visible at the current scroll offset.
func (b *Browser) Window() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window()
}

func (b *Browser) window() []string {
	return layout.Lines(layout.Visible(b.items, b.scroll, b.height))
}

// Current returns a copy of the current page, or nil before the first load.
func (b *Browser) Current() *model.Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page == nil {
		return nil
	}
	p := *b.page
	return &p
}

// Stats reports pooled connections and cached responses.
func (b *Browser) Stats() model.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return model.Stats{
		Connections:     b.client.Connections(),
		CachedResponses: b.client.CachedResponses(),
	}
}

// Close releases the client's pooled connections.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client.Close()
}

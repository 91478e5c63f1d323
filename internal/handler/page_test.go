package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"bowsernet/internal/config"
	"bowsernet/internal/layout"
	"bowsernet/internal/model"
)

func fetch(t *testing.T, h *PageHandler, query url.Values) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/fetch?"+query.Encode(), http.NoBody)
	rec := httptest.NewRecorder()
	if err := h.Fetch(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	return rec
}

func newPageHandler(t *testing.T, cfg *config.Config) *PageHandler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPageHandler(newTestBrowser(t, cfg), cfg, logger)
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) model.Page {
	t.Helper()
	var page model.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return page
}

func TestFetch_Data(t *testing.T) {
	h := newPageHandler(t, config.Default())

	rec := fetch(t, h, url.Values{"url": {"data:text/html,<b>bold</b> move"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	page := decodePage(t, rec)
	if page.Text != "bold move" {
		t.Errorf("Text = %q, want %q", page.Text, "bold move")
	}
	if page.Body != "" {
		t.Errorf("Body = %q, want it omitted without raw", page.Body)
	}

	rec = fetch(t, h, url.Values{"url": {"data:text/html,<b>bold</b>"}, "raw": {"1"}})
	if got := decodePage(t, rec).Body; got != "<b>bold</b>" {
		t.Errorf("raw Body = %q, want %q", got, "<b>bold</b>")
	}
}

func TestFetch_ScrollWindow(t *testing.T) {
	cfg := config.Default()
	cfg.Browser.Width = 2*layout.HStep + 1
	cfg.Browser.Height = 2 * layout.VStep
	h := newPageHandler(t, cfg)

	rec := fetch(t, h, url.Values{
		"url":    {"data:text/plain,abcdefghij"},
		"scroll": {"100"},
		"window": {"true"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	page := decodePage(t, rec)
	if page.Scroll != 100 {
		t.Errorf("Scroll = %d, want 100", page.Scroll)
	}
	if want := []string{"e", "f", "g"}; !reflect.DeepEqual(page.Lines, want) {
		t.Errorf("Lines = %q, want %q", page.Lines, want)
	}
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html><body>remote page</body></html>")
	}))
	defer srv.Close()

	h := newPageHandler(t, config.Default())
	rec := fetch(t, h, url.Values{"url": {srv.URL + "/index.html"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	if got := decodePage(t, rec).Text; got != "remote page" {
		t.Errorf("Text = %q, want %q", got, "remote page")
	}
}

func TestFetch_FileURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte("<p>local</p>"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("disabled", func(t *testing.T) {
		h := newPageHandler(t, config.Default())
		rec := fetch(t, h, url.Values{"url": {"file://" + path}})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Server.AllowFileURLs = true
		h := newPageHandler(t, cfg)

		rec := fetch(t, h, url.Values{"url": {"file://" + path}})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
		}
		if got := decodePage(t, rec).Text; got != "local" {
			t.Errorf("Text = %q, want %q", got, "local")
		}

		rec = fetch(t, h, url.Values{"url": {"file://" + path + ".missing"}})
		if rec.Code != http.StatusNotFound {
			t.Errorf("missing file: status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func TestFetch_Errors(t *testing.T) {
	redirectLoop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer redirectLoop.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	refused := "http://" + ln.Addr().String() + "/"
	_ = ln.Close()

	tests := []struct {
		name  string
		query url.Values
		want  int
	}{
		{"missing url", url.Values{}, http.StatusBadRequest},
		{"malformed url", url.Values{"url": {"not a url"}}, http.StatusBadRequest},
		{"unsupported scheme", url.Values{"url": {"gopher://example.org/"}}, http.StatusBadRequest},
		{"bad scroll", url.Values{"url": {"about:blank"}, "scroll": {"down"}}, http.StatusBadRequest},
		{"too many redirects", url.Values{"url": {redirectLoop.URL + "/"}}, http.StatusBadGateway},
		{"connection refused", url.Values{"url": {refused}}, http.StatusBadGateway},
	}

	h := newPageHandler(t, config.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fetch(t, h, tt.query)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestFetch_ConcurrentCallersSeeTheirOwnPage(t *testing.T) {
	h := newPageHandler(t, config.Default())
	e := echo.New()

	load := func(word string) (model.Page, error) {
		q := url.Values{"url": {"data:text/html," + word}, "window": {"1"}, "scroll": {"0"}}
		req := httptest.NewRequest(http.MethodGet, "/fetch?"+q.Encode(), http.NoBody)
		rec := httptest.NewRecorder()
		if err := h.Fetch(e.NewContext(req, rec)); err != nil {
			return model.Page{}, err
		}
		var page model.Page
		err := json.Unmarshal(rec.Body.Bytes(), &page)
		return page, err
	}

	const rounds = 500
	var wg sync.WaitGroup
	errs := make(chan string, 2*rounds)
	for _, word := range []string{"alpha", "omega"} {
		word := word
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				page, err := load(word)
				if err != nil {
					errs <- err.Error()
					return
				}
				if page.Text != word || strings.Join(page.Lines, "") != word {
					errs <- "text=" + page.Text + " window=" + strings.Join(page.Lines, "")
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Errorf("mismatched response: %s", msg)
	}
}

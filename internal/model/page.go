// Package model defines shared types for the browser.
package model

// Page is a loaded document and its rendered text.
type Page struct {
	URL        string   `json:"url"`
	ViewSource bool     `json:"view_source"`
	Body       string   `json:"body,omitempty"`
	Text       string   `json:"text"`
	Lines      []string `json:"lines"`
	Height     int      `json:"height"`
	Scroll     int      `json:"scroll"`
}

// Stats reports what the browser is holding on to between loads.
type Stats struct {
	Connections     int `json:"connections"`
	CachedResponses int `json:"cached_responses"`
}

// Package httpwire reads and writes the HTTP/1.1 messages the browser
// exchanges with servers.
package httpwire

import (
	"fmt"
	"strings"
)

// Headers is a case-insensitive header collection. Each name holds one
// value; setting a name again replaces it.
type Headers struct {
	values map[string]headerValue
}

type headerValue struct {
	name  string // casing of the most recent Set
	value string
}

// NewHeaders returns an empty collection.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string]headerValue)}
}

// Add sets name to value and returns h for chaining.
func (h *Headers) Add(name, value string) *Headers {
	h.Set(name, value)
	return h
}

// Set stores value under name, replacing any existing value.
func (h *Headers) Set(name, value string) {
	h.values[strings.ToLower(name)] = headerValue{name: name, value: value}
}

// Get returns the value stored under name.
func (h *Headers) Get(name string) (string, bool) {
	v, ok := h.values[strings.ToLower(name)]
	return v.value, ok
}

// Contains reports whether name has a value.
func (h *Headers) Contains(name string) bool {
	_, ok := h.values[strings.ToLower(name)]
	return ok
}

// Len returns the number of distinct names.
func (h *Headers) Len() int {
	return len(h.values)
}

// WireString serializes every header as "Name: value\r\n". Order is unspecified.
func (h *Headers) WireString() string {
	var b strings.Builder
	for _, v := range h.values {
		fmt.Fprintf(&b, "%s: %s\r\n", v.name, v.value)
	}
	return b.String()
}

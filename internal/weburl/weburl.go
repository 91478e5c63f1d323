// Package weburl parses the address strings the browser accepts into a
// scheme-tagged URL value.
package weburl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedURL is returned when the input does not follow the accepted grammar.
	ErrMalformedURL = errors.New("malformed URL")
	// ErrUnsupportedScheme is returned for a scheme with no default port and no explicit one.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

const viewSourcePrefix = "view-source:"

// URL is an immutable parsed address.
type URL struct {
	// ViewSource renders the fetched markup as escaped text.
	ViewSource bool
	Scheme     Scheme
}

// Scheme is one of HTTP, File, Data or Builtin.
type Scheme interface {
	fmt.Stringer
	scheme()
}

// HTTP addresses a document served over HTTP or HTTPS. Path always starts with '/'.
type HTTP struct {
	TLS  bool
	Host string
	Port uint16
	Path string
}

// File addresses a document on the local filesystem.
type File struct {
	Path string
}

// Data carries its document inline.
type Data struct {
	ContentType string
	Contents    string
}

// Builtin names a page the browser provides itself.
type Builtin string

// AboutBlank is the empty page.
const AboutBlank Builtin = "about:blank"

var builtins = map[string]Builtin{
	string(AboutBlank): AboutBlank,
}

func (HTTP) scheme()    {}
func (File) scheme()    {}
func (Data) scheme()    {}
func (Builtin) scheme() {}

// String returns the canonical form http[s]://host:port/path. The port is
// always explicit so the result doubles as a cache key.
func (h HTTP) String() string {
	scheme := "http"
	if h.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, h.Host, h.Port, h.Path)
}

func (f File) String() string    { return "file://" + f.Path }
func (d Data) String() string    { return "data:" + d.ContentType + "," + d.Contents }
func (b Builtin) String() string { return string(b) }

// String formats the URL so that Parse(u.String()) yields u.
func (u URL) String() string {
	if u.Scheme == nil {
		return ""
	}
	if u.ViewSource {
		return viewSourcePrefix + u.Scheme.String()
	}
	return u.Scheme.String()
}

// Parse converts input into a URL. It performs no I/O.
func Parse(input string) (URL, error) {
	if b, ok := builtins[strings.ToLower(input)]; ok {
		return URL{Scheme: b}, nil
	}

	rest, viewSource := strings.CutPrefix(input, viewSourcePrefix)

	if data, ok := strings.CutPrefix(rest, "data:"); ok {
		contentType, contents, found := strings.Cut(data, ",")
		if !found {
			return URL{}, fmt.Errorf("%w: data URL %q has no comma", ErrMalformedURL, input)
		}
		return URL{
			ViewSource: viewSource,
			Scheme:     Data{ContentType: contentType, Contents: contents},
		}, nil
	}

	scheme, rest, found := strings.Cut(rest, "://")
	if !found {
		return URL{}, fmt.Errorf("%w: %q has no scheme", ErrMalformedURL, input)
	}

	if scheme == "file" {
		return URL{ViewSource: viewSource, Scheme: File{Path: rest}}, nil
	}

	authority, path, _ := strings.Cut(rest, "/")
	path = "/" + path

	host := authority
	var port uint16
	// A colon inside a bracketed IPv6 literal is not a port separator.
	i := strings.LastIndexByte(authority, ':')
	if i < strings.LastIndexByte(authority, ']') {
		i = -1
	}
	if i >= 0 {
		host = authority[:i]
		p, err := strconv.ParseUint(authority[i+1:], 10, 16)
		if err != nil {
			return URL{}, fmt.Errorf("%w: bad port in %q: %w", ErrMalformedURL, input, err)
		}
		port = uint16(p)
	} else {
		switch scheme {
		case "http":
			port = 80
		case "https":
			port = 443
		default:
			return URL{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
		}
	}
	if host == "" {
		return URL{}, fmt.Errorf("%w: %q has no host", ErrMalformedURL, input)
	}

	return URL{
		ViewSource: viewSource,
		Scheme: HTTP{
			TLS:  scheme == "https",
			Host: host,
			Port: port,
			Path: path,
		},
	}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(input string) URL {
	u, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return u
}

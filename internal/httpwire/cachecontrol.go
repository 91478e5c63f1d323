package httpwire

import (
	"strconv"
	"strings"
	"time"
)

// CacheControl holds the Cache-Control directives the browser honors.
type CacheControl struct {
	NoStore bool
	// MaxAge is zero when absent. An explicit max-age=0 is also reported as
	// zero, which the cache treats as "never expires".
	MaxAge time.Duration
}

// ParseCacheControl parses a Cache-Control header value. Unknown directives
// and unparseable max-age values are ignored.
func ParseCacheControl(value string) CacheControl {
	var cc CacheControl
	for _, directive := range strings.Split(value, ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-store":
			cc.NoStore = true
		case strings.HasPrefix(directive, "max-age="):
			secs, err := strconv.ParseUint(strings.TrimPrefix(directive, "max-age="), 10, 32)
			if err != nil {
				continue
			}
			cc.MaxAge = time.Duration(secs) * time.Second
		}
	}
	return cc
}

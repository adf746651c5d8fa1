package backend

import (
	"net/url"
	"path"
	"strings"
)

// Kind names a playback backend.
type Kind string

const (
	KindHLS    Kind = "hls"
	KindDASH   Kind = "dash"
	KindDirect Kind = "direct"
	KindNone   Kind = "none"
)

// Capabilities tells which adaptive backends are usable on this host.
// Direct playback is always available.
type Capabilities struct {
	HLS  bool `yaml:"hls"`
	DASH bool `yaml:"dash"`
}

// Classify picks the backend for a stream locator. DASH is checked first,
// then HLS; a format whose backend is unavailable falls through to the next
// check and finally to direct playback.
func Classify(locator string, caps Capabilities) Kind {
	lower := strings.ToLower(locator)
	ext := strings.ToLower(path.Ext(locatorPath(locator)))

	if caps.DASH && (ext == ".mpd" || strings.Contains(lower, "manifest")) {
		return KindDASH
	}
	if caps.HLS && (ext == ".m3u8" || strings.Contains(lower, "m3u8") || ext == ".ts") {
		return KindHLS
	}
	return KindDirect
}

// locatorPath returns the path component, or the raw string when it does not
// parse as a URL.
func locatorPath(locator string) string {
	u, err := url.Parse(locator)
	if err != nil {
		if i := strings.IndexAny(locator, "?#"); i >= 0 {
			return locator[:i]
		}
		return locator
	}
	return u.Path
}

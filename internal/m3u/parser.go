// Package m3u decodes and encodes extended M3U channel playlists.
package m3u

import (
	"regexp"
	"strings"
)

const (
	// HeaderTag is the optional first line of an extended M3U playlist.
	HeaderTag = "#EXTM3U"
	// InfoTag prefixes the metadata line that precedes every stream locator.
	InfoTag = "#EXTINF:"

	// DefaultName is used when an EXTINF line has no comma before its name.
	DefaultName = "Channel"
)

// Channel represents a single channel from the M3U playlist
type Channel struct {
	Name  string `json:"name"`
	Group string `json:"group"`
	Logo  string `json:"logo,omitempty"`
	URL   string `json:"url"`
}

var (
	logoAttr  = regexp.MustCompile(`(?i)tvg-logo="([^"]+)"`)
	groupAttr = regexp.MustCompile(`(?i)group-title="([^"]+)"`)
)

// Parse parses M3U content and returns the channels in encounter order.
// It never fails: an EXTINF line that is not followed by a locator line is
// dropped, and unknown lines are skipped.
func Parse(content string) []Channel {
	var (
		channels []Channel
		current  *Channel
	)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, InfoTag):
			// #EXTINF:-1 tvg-logo="..." group-title="...",Display Name
			current = &Channel{Name: DefaultName}

			// Name is after the last comma; attributes may contain commas too.
			// A comma followed by nothing yields an empty name.
			if idx := strings.LastIndex(line, ","); idx != -1 {
				current.Name = strings.TrimSpace(line[idx+1:])
			}
			if m := logoAttr.FindStringSubmatch(line); m != nil {
				current.Logo = m[1]
			}
			if m := groupAttr.FindStringSubmatch(line); m != nil {
				current.Group = m[1]
			}

		case current != nil && line != "" && !strings.HasPrefix(line, "#"):
			current.URL = line
			channels = append(channels, *current)
			current = nil
		}
	}
	return channels
}

// LooksLikePlaylist reports whether body carries the M3U header or at least
// one EXTINF marker.
func LooksLikePlaylist(body string) bool {
	return strings.Contains(body, HeaderTag) || strings.Contains(body, "#EXTINF")
}

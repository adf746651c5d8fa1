package backend

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

const (
	maxManifestBytes = 8 << 20
	manifestTimeout  = 15 * time.Second
)

// isSegment reports whether locator names a single transport stream rather
// than a playlist. Segments are handed to the sink as-is.
func isSegment(locator string) bool {
	return strings.EqualFold(path.Ext(locatorPath(locator)), ".ts")
}

func getManifest(ctx context.Context, doer HTTPDoer, locator string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid stream url: %w", err)
	}
	resp, err := doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("manifest request failed: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// hlsProbe validates an HLS manifest. A master playlist needs at least one
// variant; an empty media playlist is only a warning since live playlists
// fill up over time. Transport stream locators carry no manifest and are
// not inspected.
func hlsProbe(doer HTTPDoer) probeFunc {
	return func(ctx context.Context, locator string) ([]string, error) {
		if isSegment(locator) {
			return nil, nil
		}
		ctx, cancel := context.WithTimeout(ctx, manifestTimeout)
		defer cancel()

		body, err := getManifest(ctx, doer, locator)
		if err != nil {
			return nil, err
		}
		defer func() { _ = body.Close() }()

		p, listType, err := m3u8.DecodeFrom(bufio.NewReader(io.LimitReader(body, maxManifestBytes)), false)
		if err != nil {
			return nil, fmt.Errorf("unreadable HLS manifest: %w", err)
		}
		switch listType {
		case m3u8.MASTER:
			master := p.(*m3u8.MasterPlaylist)
			if len(master.Variants) == 0 {
				return nil, errors.New("HLS manifest lists no variants")
			}
		case m3u8.MEDIA:
			media := p.(*m3u8.MediaPlaylist)
			if media.Count() == 0 {
				return []string{"HLS playlist has no segments yet"}, nil
			}
		}
		return nil, nil
	}
}

type mpd struct {
	XMLName xml.Name `xml:"MPD"`
	Type    string   `xml:"type,attr"`
	Periods []struct {
		ID string `xml:"id,attr"`
	} `xml:"Period"`
}

// dashProbe validates that the locator serves an MPD document with at least
// one period.
func dashProbe(doer HTTPDoer) probeFunc {
	return func(ctx context.Context, locator string) ([]string, error) {
		ctx, cancel := context.WithTimeout(ctx, manifestTimeout)
		defer cancel()

		body, err := getManifest(ctx, doer, locator)
		if err != nil {
			return nil, err
		}
		defer func() { _ = body.Close() }()

		var doc mpd
		if err := xml.NewDecoder(io.LimitReader(body, maxManifestBytes)).Decode(&doc); err != nil {
			return nil, fmt.Errorf("unreadable DASH manifest: %w", err)
		}
		if len(doc.Periods) == 0 {
			return nil, errors.New("DASH manifest has no periods")
		}
		return nil, nil
	}
}

// Package fetch downloads playlist text over the network with ordered
// fallback through relay endpoints, and reads local playlist files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/m3u"
	"github.com/ManuGH/playm3u/internal/metrics"
	"github.com/ManuGH/playm3u/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// DefaultAttemptTimeout bounds each individual attempt.
	DefaultAttemptTimeout = 15 * time.Second
	// DefaultMaxBodyBytes caps a downloaded playlist.
	DefaultMaxBodyBytes int64 = 32 << 20
	// URLPlaceholder is replaced by the percent-encoded playlist URL in relay templates.
	URLPlaceholder = "{url}"
)

// DefaultRelays are tried in order after the direct request.
var DefaultRelays = []string{
	"https://corsproxy.io/?" + URLPlaceholder,
	"https://api.allorigins.win/raw?url=" + URLPlaceholder,
}

// Config controls a Fetcher.
type Config struct {
	AttemptTimeout time.Duration
	Relays         []string
	MaxBodyBytes   int64
	UserAgent      string
}

func (c Config) withDefaults() Config {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.Relays == nil {
		c.Relays = DefaultRelays
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = "playm3u"
	}
	return c
}

// Fetcher downloads playlists. It is safe for concurrent use; concurrent
// fetches of the same URL share one download.
type Fetcher struct {
	cfg    Config
	doer   Doer
	group  singleflight.Group
	logger zerolog.Logger
	tracer trace.Tracer
}

// New returns a Fetcher. A nil doer selects NewClient.
func New(cfg Config, doer Doer) *Fetcher {
	cfg = cfg.withDefaults()
	if doer == nil {
		doer = NewClient(cfg.AttemptTimeout)
	}
	return &Fetcher{
		cfg:    cfg,
		doer:   doer,
		logger: xglog.WithComponent("fetch"),
		tracer: telemetry.Tracer("github.com/ManuGH/playm3u/internal/fetch"),
	}
}

// Fetch returns the playlist text behind rawURL. Attempts run strictly in
// order (direct, then each relay) and the first acceptable body wins. When all
// attempts fail the error is a *FailureError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	// The shared download belongs to no single caller; each attempt is still
	// bounded by AttemptTimeout. A caller that gives up only stops waiting.
	shared := context.WithoutCancel(ctx)
	ch := f.group.DoChan(target, func() (any, error) {
		return f.fetch(shared, target)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			f.logger.Debug().
				Str(xglog.FieldEvent, "fetch.coalesced").
				Str(xglog.FieldURL, redact(target)).
				Msg("joined in-flight playlist fetch")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Attempts lists the request URLs tried for target, in order.
func (f *Fetcher) Attempts(target string) []Attempt {
	out := make([]Attempt, 0, 1+len(f.cfg.Relays))
	out = append(out, Attempt{Path: "direct", URL: target})
	encoded := strings.ReplaceAll(url.QueryEscape(target), "+", "%20")
	for i, tmpl := range f.cfg.Relays {
		out = append(out, Attempt{
			Path: fmt.Sprintf("relay-%d", i+1),
			URL:  strings.ReplaceAll(tmpl, URLPlaceholder, encoded),
		})
	}
	return out
}

func (f *Fetcher) fetch(ctx context.Context, target string) (string, error) {
	ctx, span := f.tracer.Start(ctx, "playlist.fetch",
		trace.WithAttributes(attribute.String(telemetry.PlaylistURLKey, redact(target))))
	defer span.End()

	start := time.Now()
	attempts := f.Attempts(target)
	for i := range attempts {
		a := &attempts[i]
		body, err := f.attempt(ctx, a.URL)
		if err == nil {
			metrics.RecordFetchAttempt(a.Path, "ok")
			metrics.ObserveFetch(true, time.Since(start))
			span.SetAttributes(telemetry.FetchAttributes(a.Path, i+1)...)
			f.logger.Info().
				Str(xglog.FieldEvent, "fetch.ok").
				Str(xglog.FieldURL, redact(target)).
				Str(xglog.FieldAttempt, a.Path).
				Int("bytes", len(body)).
				Msg("playlist downloaded")
			return body, nil
		}
		a.Err = err
		metrics.RecordFetchAttempt(a.Path, outcome(err))
		f.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "fetch.attempt_failed").
			Str(xglog.FieldURL, redact(target)).
			Str(xglog.FieldAttempt, a.Path).
			Msg("playlist download attempt failed")
	}

	metrics.ObserveFetch(false, time.Since(start))
	failure := &FailureError{URL: redact(target), Attempts: attempts}
	span.RecordError(failure)
	span.SetStatus(codes.Error, ErrFetchFailure.Error())
	return "", failure
}

// attempt performs one bounded request and validates the body.
func (f *Fetcher) attempt(ctx context.Context, requestURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "audio/x-mpegurl, application/vnd.apple.mpegurl, text/plain, */*")

	resp, err := f.doer.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &rejection{reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := decodeBody(resp.Body, f.cfg.MaxBodyBytes)
	if err != nil {
		return "", err
	}
	if !m3u.LooksLikePlaylist(body) {
		return "", &rejection{reason: "response is not an M3U playlist"}
	}
	return body, nil
}

// decodeBody reads at most limit bytes and returns them as UTF-8 text with any
// byte-order mark removed. UTF-16 bodies with a BOM are transcoded.
func decodeBody(r io.Reader, limit int64) (string, error) {
	limited := io.LimitReader(r, limit+1)
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(limited, decoder))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", &rejection{reason: fmt.Sprintf("playlist exceeds %d bytes", limit)}
	}
	return string(data), nil
}

func outcome(err error) string {
	var rej *rejection
	switch {
	case errors.As(err, &rej):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// NormalizeURL validates a playlist URL and converts an internationalised
// host to its ASCII form.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if net.ParseIP(host) != nil {
		u.Scheme = scheme
		return u.String(), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: host %q: %v", ErrInvalidURL, host, err)
	}
	if ascii != host {
		if port := u.Port(); port != "" {
			u.Host = ascii + ":" + port
		} else {
			u.Host = ascii
		}
	}
	u.Scheme = scheme
	return u.String(), nil
}

// redact strips credentials and the query for logging.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url-redacted"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}

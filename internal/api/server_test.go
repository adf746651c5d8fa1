// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/playm3u/internal/fetch"
	"github.com/ManuGH/playm3u/internal/ingest"
	"github.com/ManuGH/playm3u/internal/kv"
	"github.com/ManuGH/playm3u/internal/library"
	"github.com/ManuGH/playm3u/internal/m3u"
	"github.com/ManuGH/playm3u/internal/notify"
	"github.com/ManuGH/playm3u/internal/player"
)

const sample = "#EXTM3U\n#EXTINF:-1 group-title=\"News\",One\nhttp://x/1.m3u8\n#EXTINF:-1,Two\nhttp://x/2\n"

type fakePlayer struct {
	mu      sync.Mutex
	calls   []string
	played  []int
	digits  []int
	playErr error
	snap    player.Snapshot
}

func (p *fakePlayer) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePlayer) PlayChannel(_ context.Context, index int) error {
	p.record("play")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.played = append(p.played, index)
	return nil
}

func (p *fakePlayer) ChannelUp(context.Context) error {
	p.record("up")
	return nil
}

func (p *fakePlayer) ChannelDown(context.Context) error {
	p.record("down")
	return nil
}

func (p *fakePlayer) Resume(context.Context) error {
	p.record("resume")
	return nil
}

func (p *fakePlayer) Stop(context.Context) error {
	p.record("stop")
	return nil
}

func (p *fakePlayer) PressDigit(_ context.Context, d int) error {
	p.record("digit")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.digits = append(p.digits, d)
	return nil
}

func (p *fakePlayer) Snapshot(context.Context) (player.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, nil
}

func (p *fakePlayer) called(call string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == call {
			return true
		}
	}
	return false
}

type stubFetcher struct {
	bodies map[string]string
	err    error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.bodies[url], nil
}

type fixture struct {
	handler http.Handler
	store   *library.Store
	player  *fakePlayer
	feed    *notify.Feed
	fetcher *stubFetcher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := library.NewStore(kv.NewMemoryStore())
	require.NoError(t, store.Load(context.Background()))
	feed := notify.NewFeed(8)
	fetcher := &stubFetcher{bodies: map[string]string{"http://lists/a.m3u": sample}}
	fp := &fakePlayer{snap: player.Snapshot{State: player.StateIdle}}

	srv := New(cfg, Deps{
		Library: store,
		Player:  fp,
		Ingest:  ingest.New(store, fetcher, feed, ingest.Options{}),
		Notices: feed,
	})
	return &fixture{handler: srv.Handler(), store: store, player: fp, feed: feed, fetcher: fetcher}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *fixture) seed(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := f.store.Upsert(context.Background(), library.Playlist{
			Name:          name,
			SourceLocator: "http://lists/" + name,
			Channels:      m3u.Parse(sample),
		})
		require.NoError(t, err)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Config{Version: "1.2.3"})
	w := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.2.3", decode[map[string]string](t, w)["version"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodGet, "/healthz", "")
	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "playm3u_http_request_duration_seconds")
}

func TestImport_SavesAndPlaysFirstChannel(t *testing.T) {
	f := newFixture(t, Config{})

	w := f.do(t, http.MethodPost, "/api/playlists", `{"name":"Mine","url":"http://lists/a.m3u"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	res := decode[ingest.Result](t, w)
	assert.Equal(t, ingest.Result{Index: 0, Name: "Mine", Channels: 2}, res)
	assert.Equal(t, []int{0}, f.player.played)

	n, ok := f.feed.Last()
	require.True(t, ok)
	assert.Equal(t, "Playlist saved", n.Message)
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		fetch   error
		bodies  map[string]string
		status  int
		errCode string
	}{
		{name: "malformed json", body: `{"name":`, status: http.StatusBadRequest, errCode: "invalid_request"},
		{name: "unknown field", body: `{"name":"x","url":"http://a","extra":1}`, status: http.StatusBadRequest, errCode: "invalid_request"},
		{name: "missing name", body: `{"url":"http://lists/a.m3u"}`, status: http.StatusBadRequest, errCode: "invalid_request"},
		{name: "both sources", body: `{"name":"x","url":"http://a","path":"/tmp/a"}`, status: http.StatusBadRequest, errCode: "invalid_request"},
		{
			name:    "empty playlist",
			body:    `{"name":"x","url":"http://lists/empty.m3u"}`,
			bodies:  map[string]string{"http://lists/empty.m3u": "#EXTM3U\n"},
			status:  http.StatusUnprocessableEntity,
			errCode: "empty_playlist",
		},
		{
			name:    "fetch failure",
			body:    `{"name":"x","url":"http://lists/down.m3u"}`,
			fetch:   &fetch.FailureError{URL: "http://lists/down.m3u"},
			status:  http.StatusBadGateway,
			errCode: "fetch_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.fetcher.err = tt.fetch
			for k, v := range tt.bodies {
				f.fetcher.bodies[k] = v
			}

			w := f.do(t, http.MethodPost, "/api/playlists", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.errCode, decode[errorBody](t, w).Error)
			assert.Zero(t, f.store.Len())
			assert.Empty(t, f.player.played)
		})
	}
}

func TestImport_PlayFailureStillCreated(t *testing.T) {
	f := newFixture(t, Config{})
	f.player.playErr = player.ErrNoChannels

	w := f.do(t, http.MethodPost, "/api/playlists", `{"name":"Mine","url":"http://lists/a.m3u"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, f.store.Len())
}

func TestListAndGetPlaylists(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "a", "b")

	w := f.do(t, http.MethodGet, "/api/playlists", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Playlists []library.Summary `json:"playlists"`
	}](t, w)
	require.Len(t, list.Playlists, 2)
	assert.Equal(t, 2, list.Playlists[1].ChannelCount)
	assert.True(t, list.Playlists[1].Current)

	w = f.do(t, http.MethodGet, "/api/playlists/0", "")
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[library.Playlist](t, w)
	assert.Equal(t, "a", p.Name)
	assert.Len(t, p.Channels, 2)

	w = f.do(t, http.MethodGet, "/api/playlists/9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "playlist_not_found", decode[errorBody](t, w).Error)

	w = f.do(t, http.MethodGet, "/api/playlists/x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeletePlaylist(t *testing.T) {
	t.Run("non-current keeps playing", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.seed(t, "a", "b") // current is 1

		w := f.do(t, http.MethodDelete, "/api/playlists/0", "")
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.False(t, f.player.called("stop"))
		assert.Equal(t, 1, f.store.Len())
	})

	t.Run("current stops playback", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.seed(t, "a", "b")

		w := f.do(t, http.MethodDelete, "/api/playlists/1", "")
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, f.player.called("stop"))
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture(t, Config{})
		w := f.do(t, http.MethodDelete, "/api/playlists/0", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSelectPlaylist(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "a", "b")

	w := f.do(t, http.MethodPost, "/api/playlists/0/select", `{"channel":1}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	_, pIdx, chIdx, ok := f.store.Current()
	require.True(t, ok)
	assert.Equal(t, 0, pIdx)
	assert.Equal(t, 1, chIdx)
	assert.True(t, f.player.called("resume"))

	w = f.do(t, http.MethodPost, "/api/playlists/1/select", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	_, pIdx, chIdx, _ = f.store.Current()
	assert.Equal(t, 1, pIdx)
	assert.Equal(t, 0, chIdx)

	w = f.do(t, http.MethodPost, "/api/playlists/5/select", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefresh_KeepsCacheOnFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "a")
	f.fetcher.err = errors.Join(fetch.ErrFetchFailure, errors.New("all paths failed"))

	w := f.do(t, http.MethodPost, "/api/playlists/0/refresh", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	p, ok := f.store.Playlist(0)
	require.True(t, ok)
	assert.Len(t, p.Channels, 2)
}

func TestExport(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.store.Upsert(context.Background(), library.Playlist{
		Name:          "My List",
		SourceLocator: "http://lists/a.m3u",
		Channels:      m3u.Parse(sample),
	})
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/playlists/0/export.m3u", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/x-mpegurl", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="My_List.m3u"`)

	// The exported text parses back to the same channels.
	assert.Equal(t, m3u.Parse(sample), m3u.Parse(w.Body.String()))
}

func TestPlaybackRoutes(t *testing.T) {
	f := newFixture(t, Config{})

	w := f.do(t, http.MethodPost, "/api/channels/3/play", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []int{3}, f.player.played)

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/channel/up", "").Code)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/channel/down", "").Code)
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/stop", "").Code)
	assert.True(t, f.player.called("up"))
	assert.True(t, f.player.called("down"))
	assert.True(t, f.player.called("stop"))
}

func TestPlay_ChannelNotFound(t *testing.T) {
	f := newFixture(t, Config{})
	f.player.playErr = player.ErrChannelNotFound

	w := f.do(t, http.MethodPost, "/api/channels/99/play", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "channel_not_found", decode[errorBody](t, w).Error)
}

func TestKeys(t *testing.T) {
	f := newFixture(t, Config{})

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/keys/0", "").Code)
	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/keys/7", "").Code)
	assert.Equal(t, []int{0, 7}, f.player.digits)

	for _, bad := range []string{"a", "10", "-1"} {
		w := f.do(t, http.MethodPost, "/api/keys/"+bad, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestKeys_Throttled(t *testing.T) {
	f := newFixture(t, Config{KeyRate: 0.001, KeyBurst: 2})

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, f.do(t, http.MethodPost, "/api/keys/1", "").Code)
	}
	assert.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, codes)
}

func TestState_FirstVisitReportedOnce(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "a")

	first := decode[stateResponse](t, f.do(t, http.MethodGet, "/api/state", ""))
	assert.True(t, first.FirstVisit)
	assert.Equal(t, 1, first.Playlists)
	assert.Equal(t, player.StateIdle, first.Player.State)

	second := decode[stateResponse](t, f.do(t, http.MethodGet, "/api/state", ""))
	assert.False(t, second.FirstVisit)
}

func TestNotices_Since(t *testing.T) {
	f := newFixture(t, Config{})
	f.feed.Notify(notify.KindInfo, "one")
	f.feed.Notify(notify.KindError, "two")

	type page struct {
		Notices []notify.Notice `json:"notices"`
		Last    uint64          `json:"last"`
	}

	all := decode[page](t, f.do(t, http.MethodGet, "/api/notices", ""))
	require.Len(t, all.Notices, 2)
	assert.Equal(t, uint64(2), all.Last)

	after := decode[page](t, f.do(t, http.MethodGet, "/api/notices?since=1", ""))
	require.Len(t, after.Notices, 1)
	assert.Equal(t, "two", after.Notices[0].Message)

	none := decode[page](t, f.do(t, http.MethodGet, "/api/notices?since=2", ""))
	assert.Empty(t, none.Notices)
	assert.Equal(t, uint64(2), none.Last)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/notices?since=x", "").Code)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "My_List.m3u", exportFilename("My List"))
	assert.Equal(t, "playlist.m3u", exportFilename("***"))
	assert.Equal(t, "a-b_c.m3u", exportFilename("a-b_c"))
}

package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func TestClassify(t *testing.T) {
	all := Capabilities{HLS: true, DASH: true}
	tests := []struct {
		name    string
		locator string
		caps    Capabilities
		want    Kind
	}{
		{name: "mpd", locator: "http://cdn/live/stream.mpd", caps: all, want: KindDASH},
		{name: "mpd with query", locator: "http://cdn/live/stream.MPD?token=1", caps: all, want: KindDASH},
		{name: "manifest substring", locator: "http://cdn/channel/Manifest(format=dash)", caps: all, want: KindDASH},
		{name: "m3u8", locator: "http://cdn/live/index.m3u8", caps: all, want: KindHLS},
		{name: "m3u8 substring", locator: "http://cdn/play?type=m3u8&id=4", caps: all, want: KindHLS},
		{name: "transport stream", locator: "http://cdn/live/42.ts", caps: all, want: KindHLS},
		{name: "plain", locator: "http://cdn/live/42", caps: all, want: KindDirect},
		{name: "mp4", locator: "http://cdn/movie.mp4", caps: all, want: KindDirect},
		{name: "dash unavailable", locator: "http://cdn/live/stream.mpd", caps: Capabilities{HLS: true}, want: KindDirect},
		{name: "hls unavailable", locator: "http://cdn/live/index.m3u8", caps: Capabilities{DASH: true}, want: KindDirect},
		{name: "dash unavailable falls to hls", locator: "http://cdn/manifest.m3u8", caps: Capabilities{HLS: true}, want: KindHLS},
		{name: "nothing available", locator: "http://cdn/a.m3u8", caps: Capabilities{}, want: KindDirect},
		{name: "unparsable", locator: "::bad::/x.m3u8?y", caps: all, want: KindHLS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.locator, tt.caps))
		})
	}
}

func nextEvent(t *testing.T, b Backend) Event {
	t.Helper()
	select {
	case ev := <-b.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no backend event")
		return Event{}
	}
}

func manifestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1280000\nlow/index.m3u8\n"))
	})
	mux.HandleFunc("/media.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-MEDIA-SEQUENCE:0\n#EXTINF:10.0,\nseg0.ts\n#EXTINF:10.0,\nseg1.ts\n"))
	})
	mux.HandleFunc("/page.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>blocked</body></html>"))
	})
	mux.HandleFunc("/stream.mpd", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic"><Period id="p0"></Period></MPD>`))
	})
	mux.HandleFunc("/empty.mpd", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<MPD type="static"></MPD>`))
	})
	mux.HandleFunc("/page.mpd", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBackends_ReadyAndFatal(t *testing.T) {
	srv := manifestServer(t)
	factory := NewFactory(srv.Client())

	tests := []struct {
		name string
		kind Kind
		path string
		want EventKind
	}{
		{name: "hls master", kind: KindHLS, path: "/master.m3u8", want: EventReady},
		{name: "hls media", kind: KindHLS, path: "/media.m3u8", want: EventReady},
		{name: "hls not a manifest", kind: KindHLS, path: "/page.m3u8", want: EventFatal},
		{name: "hls missing", kind: KindHLS, path: "/missing.m3u8", want: EventFatal},
		{name: "dash", kind: KindDASH, path: "/stream.mpd", want: EventReady},
		{name: "dash no periods", kind: KindDASH, path: "/empty.mpd", want: EventFatal},
		{name: "dash not an mpd", kind: KindDASH, path: "/page.mpd", want: EventFatal},
		{name: "direct skips probing", kind: KindDirect, path: "/missing.mp4", want: EventReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &NullSink{}
			b := factory(tt.kind)
			assert.Equal(t, tt.kind, b.Kind())
			b.Attach(sink)
			require.NoError(t, b.Load(context.Background(), srv.URL+tt.path))

			ev := nextEvent(t, b)
			assert.Equal(t, tt.want, ev.Kind, ev.Message)
			if tt.want == EventReady {
				assert.Equal(t, srv.URL+tt.path, sink.Current())
			} else {
				assert.NotEmpty(t, ev.Message)
				assert.Empty(t, sink.Played())
			}

			require.NoError(t, b.Detach())
			assert.Empty(t, sink.Current())
		})
	}
}

func TestBackends_TransportStreamPlays(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "video/mp2t")
		packet := make([]byte, 188)
		packet[0] = 0x47
		for i := 0; i < 200; i++ {
			_, _ = w.Write(packet)
		}
	}))
	defer srv.Close()

	locator := srv.URL + "/live/user/pass/42.ts"
	kind := Classify(locator, Capabilities{HLS: true, DASH: true})
	require.Equal(t, KindHLS, kind)

	sink := &NullSink{}
	b := NewFactory(srv.Client())(kind)
	b.Attach(sink)
	require.NoError(t, b.Load(context.Background(), locator))

	ev := nextEvent(t, b)
	require.Equal(t, EventReady, ev.Kind, ev.Message)
	assert.Equal(t, []string{locator}, sink.Played())
	assert.Zero(t, hits.Load(), "the stream itself is left to the sink")
	require.NoError(t, b.Detach())
}

func TestEngine_LoadRequiresSinkAndOnce(t *testing.T) {
	b := NewFactory(nil)(KindDirect)
	assert.ErrorIs(t, b.Load(context.Background(), "http://x/1"), ErrNoSink)

	b.Attach(&NullSink{})
	require.NoError(t, b.Load(context.Background(), "http://x/1"))
	assert.ErrorIs(t, b.Load(context.Background(), "http://x/2"), ErrLoaded)

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "detach is idempotent")
}

func TestEngine_DetachWithoutLoad(t *testing.T) {
	b := NewFactory(nil)(KindHLS)
	b.Attach(&NullSink{})
	assert.NoError(t, b.Detach())
	assert.ErrorIs(t, b.Load(context.Background(), "http://x/1"), ErrLoaded)
}

func TestEngine_SinkFailureIsFatal(t *testing.T) {
	b := NewFactory(nil)(KindDirect)
	b.Attach(&NullSink{PlayErr: errors.New("no audio device")})
	require.NoError(t, b.Load(context.Background(), "http://x/1"))

	ev := nextEvent(t, b)
	assert.Equal(t, EventFatal, ev.Kind)
	assert.Contains(t, ev.Message, "no audio device")
	require.NoError(t, b.Detach())
}

func TestEngine_PlaybackEndReported(t *testing.T) {
	sink := &NullSink{}
	b := NewFactory(nil)(KindDirect)
	b.Attach(sink)
	require.NoError(t, b.Load(context.Background(), "http://x/1"))
	require.Equal(t, EventReady, nextEvent(t, b).Kind)

	sink.End(errors.New("decoder crashed"))
	ev := nextEvent(t, b)
	assert.Equal(t, EventFatal, ev.Kind)
	assert.Contains(t, ev.Message, "decoder crashed")
	require.NoError(t, b.Detach())
}

func TestEngine_DetachWhileProbing(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	sink := &NullSink{}
	b := NewFactory(srv.Client())(KindHLS)
	b.Attach(sink)
	require.NoError(t, b.Load(context.Background(), srv.URL+"/slow.m3u8"))

	require.NoError(t, b.Detach())
	assert.Empty(t, sink.Played(), "a detached session never reaches the sink")
	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event after detach: %+v", ev)
	default:
	}
}

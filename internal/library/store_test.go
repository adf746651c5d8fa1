package library

import (
	"context"
	"errors"
	"testing"

	"github.com/ManuGH/playm3u/internal/kv"
	"github.com/ManuGH/playm3u/internal/m3u"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func channels(names ...string) []m3u.Channel {
	out := make([]m3u.Channel, 0, len(names))
	for _, n := range names {
		out = append(out, m3u.Channel{Name: n, Group: "Other", URL: "http://x/" + n})
	}
	return out
}

func newLoaded(t *testing.T, backend kv.Store) *Store {
	t.Helper()
	s := NewStore(backend)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestLoad_EmptyBackendGivesDefaults(t *testing.T) {
	s := newLoaded(t, kv.NewMemoryStore())

	snap := s.Snapshot()
	assert.Empty(t, snap.Playlists)
	assert.Equal(t, 0, snap.CurrentPlaylistIndex)
	assert.Equal(t, 0, snap.CurrentChannelIndex)
	assert.True(t, s.FirstVisit())

	_, _, _, ok := s.Current()
	assert.False(t, ok)
}

func TestLoad_CorruptValuesFallBack(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	require.NoError(t, mem.Set(ctx, KeyPlaylists, []byte("{not json")))
	require.NoError(t, mem.Set(ctx, KeyLastPlaylist, []byte(`"seven"`)))
	require.NoError(t, kv.SetJSON(ctx, mem, KeyLastChannel, 4))

	s := newLoaded(t, mem)
	snap := s.Snapshot()
	assert.Empty(t, snap.Playlists)
	assert.Equal(t, 0, snap.CurrentPlaylistIndex)
	assert.Equal(t, 4, snap.CurrentChannelIndex)
}

func TestLoad_ClampsPlaylistPointer(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	require.NoError(t, kv.SetJSON(ctx, mem, KeyPlaylists, []Playlist{
		{Name: "A", SourceLocator: "a", Channels: channels("one")},
		{Name: "", SourceLocator: "broken"},
	}))
	require.NoError(t, kv.SetJSON(ctx, mem, KeyLastPlaylist, 9))

	s := newLoaded(t, mem)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.Snapshot().CurrentPlaylistIndex)
}

type failingStore struct {
	kv.Store
	err error
}

func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingStore) Set(context.Context, string, []byte) error    { return f.err }

func TestLoad_BackendErrorSurfaces(t *testing.T) {
	boom := errors.New("disk gone")
	s := NewStore(failingStore{Store: kv.NewMemoryStore(), err: boom})
	err := s.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestUpsert_AppendsAndReplacesByLocator(t *testing.T) {
	ctx := context.Background()
	s := newLoaded(t, kv.NewMemoryStore())

	i, err := s.Upsert(ctx, Playlist{Name: "A", SourceLocator: "http://a", Channels: channels("1", "2")})
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	i, err = s.Upsert(ctx, Playlist{Name: "B", SourceLocator: "http://b", Channels: channels("1")})
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	require.NoError(t, s.SelectChannel(ctx, 1))

	i, err = s.Upsert(ctx, Playlist{Name: "A2", SourceLocator: "http://a", Channels: channels("x", "y", "z")})
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	snap := s.Snapshot()
	require.Len(t, snap.Playlists, 2)
	assert.Equal(t, "A2", snap.Playlists[0].Name)
	assert.Len(t, snap.Playlists[0].Channels, 3)
	assert.Equal(t, 0, snap.CurrentPlaylistIndex)
	assert.Equal(t, 0, snap.CurrentChannelIndex)
	assert.Equal(t, SourceRemote, snap.Playlists[0].SourceKind)
}

func TestUpsert_RejectsEmptyName(t *testing.T) {
	s := newLoaded(t, kv.NewMemoryStore())
	_, err := s.Upsert(context.Background(), Playlist{Name: "  ", SourceLocator: "x"})
	assert.ErrorIs(t, err, ErrInvalidPlaylist)
	assert.Equal(t, 0, s.Len())
}

func TestUpsert_EmptyLocatorAlwaysAppends(t *testing.T) {
	s := newLoaded(t, kv.NewMemoryStore())
	ctx := context.Background()

	i, err := s.Upsert(ctx, Playlist{Name: "A", Channels: channels("1")})
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	i, err = s.Upsert(ctx, Playlist{Name: "B", Channels: channels("1", "2")})
	require.NoError(t, err)
	assert.Equal(t, 1, i, "an empty locator never matches an existing entry")
	assert.Equal(t, 2, s.Len())

	matched, err := s.ReplaceChannels(ctx, "", channels("x"))
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestUpsert_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	s := newLoaded(t, mem)

	_, err := s.Upsert(ctx, Playlist{Name: "A", SourceLocator: "a", Channels: channels("1", "2", "3")})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Playlist{Name: "B", SourceLocator: "/tmp/b.m3u", SourceKind: SourceLocal, Channels: channels("1")})
	require.NoError(t, err)
	require.NoError(t, s.SelectPlaylist(ctx, 0))
	require.NoError(t, s.SelectChannel(ctx, 2))
	require.NoError(t, s.MarkVisited(ctx))

	reloaded := newLoaded(t, mem)
	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
	assert.False(t, reloaded.FirstVisit())

	p, pi, ci, ok := reloaded.Current()
	require.True(t, ok)
	assert.Equal(t, "A", p.Name)
	assert.Equal(t, 0, pi)
	assert.Equal(t, 2, ci)
}

func TestUpsert_FlushErrorReturned(t *testing.T) {
	boom := errors.New("read-only")
	s := NewStore(failingStore{Store: kv.NewMemoryStore(), err: boom})

	_, err := s.Upsert(context.Background(), Playlist{Name: "A", SourceLocator: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Len(), "in-memory state keeps the mutation")
}

func TestRemove_AdjustsSelection(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		current   int
		remove    int
		wantCur   int
		wantCount int
	}{
		{name: "before current", count: 3, current: 2, remove: 0, wantCur: 1, wantCount: 2},
		{name: "after current", count: 3, current: 0, remove: 2, wantCur: 0, wantCount: 2},
		{name: "current middle", count: 3, current: 1, remove: 1, wantCur: 1, wantCount: 2},
		{name: "current last", count: 3, current: 2, remove: 2, wantCur: 1, wantCount: 2},
		{name: "only entry", count: 1, current: 0, remove: 0, wantCur: 0, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newLoaded(t, kv.NewMemoryStore())
			for i := 0; i < tt.count; i++ {
				_, err := s.Upsert(ctx, Playlist{Name: string(rune('A' + i)), SourceLocator: string(rune('a' + i)), Channels: channels("1")})
				require.NoError(t, err)
			}
			require.NoError(t, s.SelectPlaylist(ctx, tt.current))
			require.NoError(t, s.SelectChannel(ctx, 5))

			require.NoError(t, s.Remove(ctx, tt.remove))

			snap := s.Snapshot()
			assert.Len(t, snap.Playlists, tt.wantCount)
			assert.Equal(t, tt.wantCur, snap.CurrentPlaylistIndex)
			assert.Equal(t, 0, snap.CurrentChannelIndex)
		})
	}
}

func TestRemove_OutOfRange(t *testing.T) {
	s := newLoaded(t, kv.NewMemoryStore())
	assert.ErrorIs(t, s.Remove(context.Background(), 0), ErrNoSuchPlaylist)
	assert.ErrorIs(t, s.Remove(context.Background(), -1), ErrNoSuchPlaylist)
}

func TestReplaceChannels_KeepsSelection(t *testing.T) {
	ctx := context.Background()
	s := newLoaded(t, kv.NewMemoryStore())
	_, err := s.Upsert(ctx, Playlist{Name: "A", SourceLocator: "a", Channels: channels("1")})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Playlist{Name: "B", SourceLocator: "b", Channels: channels("1", "2")})
	require.NoError(t, err)
	require.NoError(t, s.SelectChannel(ctx, 1))

	ok, err := s.ReplaceChannels(ctx, "a", channels("n1", "n2", "n3"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ReplaceChannels(ctx, "missing", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := s.Snapshot()
	assert.Len(t, snap.Playlists[0].Channels, 3)
	assert.Equal(t, 1, snap.CurrentPlaylistIndex)
	assert.Equal(t, 1, snap.CurrentChannelIndex)
}

func TestCurrent_ClampsChannel(t *testing.T) {
	ctx := context.Background()
	s := newLoaded(t, kv.NewMemoryStore())
	_, err := s.Upsert(ctx, Playlist{Name: "A", SourceLocator: "a", Channels: channels("1", "2")})
	require.NoError(t, err)
	require.NoError(t, s.SelectChannel(ctx, 10))

	_, _, ci, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, 1, ci)
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	s := newLoaded(t, kv.NewMemoryStore())
	_, err := s.Upsert(ctx, Playlist{Name: "A", SourceLocator: "a", Channels: channels("1")})
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Playlists[0].Channels[0].Name = "mutated"

	p, ok := s.Playlist(0)
	require.True(t, ok)
	assert.Equal(t, "1", p.Channels[0].Name)
}

func TestSummaries(t *testing.T) {
	ctx := context.Background()
	s := newLoaded(t, kv.NewMemoryStore())
	_, err := s.Upsert(ctx, Playlist{Name: "A", SourceLocator: "a", Channels: channels("1", "2")})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Playlist{Name: "B", SourceLocator: "b", AutoRefresh: true})
	require.NoError(t, err)

	got := s.Summaries()
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].ChannelCount)
	assert.False(t, got[0].Current)
	assert.True(t, got[1].Current)
	assert.True(t, got[1].AutoRefresh)
}

func TestClampChannel(t *testing.T) {
	assert.Equal(t, 0, ClampChannel(3, 0))
	assert.Equal(t, 0, ClampChannel(-2, 5))
	assert.Equal(t, 4, ClampChannel(7, 5))
	assert.Equal(t, 2, ClampChannel(2, 5))
}

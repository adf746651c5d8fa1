package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messages(ns []Notice) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Message)
	}
	return out
}

func TestFeed_OrderAndEviction(t *testing.T) {
	f := NewFeed(3)
	_, ok := f.Last()
	assert.False(t, ok)

	for _, m := range []string{"a", "b", "c", "d"} {
		f.Notify(KindInfo, m)
	}

	assert.Equal(t, []string{"b", "c", "d"}, messages(f.Since(0)))
	assert.Equal(t, []string{"d"}, messages(f.Since(3)))
	assert.Empty(t, f.Since(4))

	last, ok := f.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(4), last.Seq)
	assert.Equal(t, "d", last.Message)
}

func TestFeed_PartiallyFilled(t *testing.T) {
	f := NewFeed(0)
	f.Notify(KindError, "channel 7 not found")

	got := f.Since(0)
	require.Len(t, got, 1)
	assert.Equal(t, KindError, got[0].Kind)
	assert.False(t, got[0].At.IsZero())
}

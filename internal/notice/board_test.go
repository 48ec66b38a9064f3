package notice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/state"
)

func TestBoardExpiry(t *testing.T) {
	b := NewBoard()
	_, ok := b.Current()
	assert.False(t, ok)

	b.Post(state.Notification{Seq: 1, Kind: state.NoticeInfo, Message: "hi", TTL: 30 * time.Millisecond})
	n, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, "hi", n.Message)

	assert.Eventually(t, func() bool {
		_, ok := b.Current()
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestBoardSticky(t *testing.T) {
	b := NewBoard()
	b.Post(state.Notification{Seq: 1, Kind: state.NoticeError, Message: "boom"})
	time.Sleep(20 * time.Millisecond)

	n, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, state.NoticeError, n.Kind)

	b.Clear()
	_, ok = b.Current()
	assert.False(t, ok)
}

func TestBoardSync(t *testing.T) {
	c := catalog.Default()
	b := NewBoard()

	s0 := state.New(c)
	s1 := state.ApplyCredentialSaved(s0)
	b.Sync(s0, s1)
	n, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, s1.Notification.Seq, n.Seq)

	// Same notification again does not re-post (and so does not extend its TTL).
	b.Clear()
	b.Sync(s1, s1)
	_, ok = b.Current()
	assert.False(t, ok)

	b.Sync(s0, s1)
	s2 := state.Dismiss(s1)
	b.Sync(s1, s2)
	_, ok = b.Current()
	assert.False(t, ok)
}

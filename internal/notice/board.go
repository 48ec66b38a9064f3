// Package notice keeps the notification currently on screen and expires it
// after its display time.
package notice

import (
	"time"

	"github.com/patrickmn/go-cache"

	"ai-profile-studio/internal/state"
)

const currentKey = "current"

type Board struct {
	c *cache.Cache
}

func NewBoard() *Board {
	return &Board{c: cache.New(cache.NoExpiration, time.Second)}
}

// Post replaces the current notification. A zero TTL keeps it until the next
// Post or Clear.
func (b *Board) Post(n state.Notification) {
	ttl := n.TTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	b.c.Set(currentKey, n, ttl)
}

// Current returns the live notification, if any.
func (b *Board) Current() (state.Notification, bool) {
	v, ok := b.c.Get(currentKey)
	if !ok {
		return state.Notification{}, false
	}
	n, ok := v.(state.Notification)
	return n, ok
}

func (b *Board) Clear() {
	b.c.Delete(currentKey)
}

// Sync mirrors a snapshot's notification onto the board: a new sequence is
// posted, a removed one is cleared.
func (b *Board) Sync(prev, next state.Snapshot) {
	switch {
	case next.Notification == nil:
		if prev.Notification != nil {
			b.Clear()
		}
	case prev.Notification == nil || prev.Notification.Seq != next.Notification.Seq:
		b.Post(*next.Notification)
	}
}

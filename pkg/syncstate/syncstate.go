// Package syncstate implements the identity-scoped cache pattern every
// client-side store of per-user data (notifications, conversations, search
// results) follows. It exists to prevent a slow response fetched for one
// identity from being applied after the client has switched to another.
package syncstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrUnauthorized is returned by fetch functions when the server rejects the
// session. The cache reacts by clearing itself rather than keeping data that
// belongs to a dead session.
var ErrUnauthorized = errors.New("unauthorized")

// ErrStaleIdentity is returned when a fetch resolves after the active
// identity changed. The response has been discarded; callers should refetch
// under the new identity.
var ErrStaleIdentity = errors.New("stale identity")

// Session tracks the client's active identity. Every identity change, login,
// logout or account switch, bumps the generation counter so in-flight fetches
// started under the previous identity can be detected and discarded.
type Session struct {
	mu         sync.Mutex
	userID     uint
	generation uint64
}

// Activate sets the active identity
func (s *Session) Activate(userID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.generation++
}

// Clear signs the session out
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = 0
	s.generation++
}

// Snapshot returns the active identity and the current generation
func (s *Session) Snapshot() (userID uint, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.generation
}

// FetchFunc loads the resource for the given identity
type FetchFunc[T any] func(ctx context.Context, userID uint) (T, error)

// Cache is an identity-scoped cache for one resource. Concurrent Gets for the
// same identity share a single fetch; responses that resolve after an
// identity change are discarded instead of being applied.
type Cache[T any] struct {
	session *Session
	fetch   FetchFunc[T]
	group   singleflight.Group

	mu         sync.RWMutex
	value      T
	generation uint64
	valid      bool
}

// NewCache creates a cache bound to a session and a fetch function
func NewCache[T any](session *Session, fetch FetchFunc[T]) *Cache[T] {
	return &Cache[T]{session: session, fetch: fetch}
}

// Get returns the cached value for the active identity, fetching it when
// missing. The identity is captured before the fetch starts; if it changed by
// the time the response arrives, the response is dropped and ErrStaleIdentity
// is returned.
func (c *Cache[T]) Get(ctx context.Context) (T, error) {
	var zero T

	userID, generation := c.session.Snapshot()
	if userID == 0 {
		return zero, ErrUnauthorized
	}

	c.mu.RLock()
	if c.valid && c.generation == generation {
		value := c.value
		c.mu.RUnlock()
		return value, nil
	}
	c.mu.RUnlock()

	// The generation is part of the flight key, so a fetch started under a
	// new identity never joins one started under an old identity.
	key := fmt.Sprintf("%d:%d", userID, generation)
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, userID)
	})

	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.Invalidate()
		}
		return zero, err
	}

	if _, current := c.session.Snapshot(); current != generation {
		return zero, ErrStaleIdentity
	}

	value := result.(T)
	c.mu.Lock()
	c.value = value
	c.generation = generation
	c.valid = true
	c.mu.Unlock()
	return value, nil
}

// Peek returns the cached value without fetching. ok is false when nothing
// valid is cached for the active identity.
func (c *Cache[T]) Peek() (T, bool) {
	_, generation := c.session.Snapshot()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || c.generation != generation {
		var zero T
		return zero, false
	}
	return c.value, true
}

// Invalidate drops the cached value
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.valid = false
}

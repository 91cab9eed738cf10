// ABOUTME: Ephemeral store of pending challenges keyed by wallet subject bytes
// ABOUTME: Bounded in size with oldest-first eviction and expiry-based pruning

package challenge

import (
	"container/list"
	"time"
)

// DefaultMaxPending caps the number of outstanding challenges.
const DefaultMaxPending = 100_000

type storeEntry struct {
	challenge *Challenge
	element   *list.Element
}

// Store holds at most one pending challenge per subject. It is not safe for
// concurrent use; the login service serializes access.
// A doubly-linked list keeps insertion order so the oldest entry can be evicted in O(1).
type Store struct {
	pending map[string]*storeEntry
	order   *list.List // keys in insertion order (oldest at front)
	maxSize int
}

// NewStore creates an empty store. maxSize <= 0 uses DefaultMaxPending.
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxPending
	}
	return &Store{
		pending: make(map[string]*storeEntry),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Insert stores c under key, replacing any pending challenge for the same key.
// When the store is full the oldest challenge is evicted.
func (s *Store) Insert(key string, c *Challenge) {
	if entry, ok := s.pending[key]; ok {
		entry.challenge = c
		s.order.MoveToBack(entry.element)
		return
	}

	if len(s.pending) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.order.PushBack(key)
	s.pending[key] = &storeEntry{challenge: c, element: elem}
}

// Get returns a copy of the challenge pending for key.
func (s *Store) Get(key string) (*Challenge, error) {
	entry, ok := s.pending[key]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	c := *entry.challenge
	return &c, nil
}

// Remove deletes the challenge pending for key, if any.
func (s *Store) Remove(key string) {
	entry, ok := s.pending[key]
	if !ok {
		return
	}
	s.order.Remove(entry.element)
	delete(s.pending, key)
}

// PruneExpired removes every challenge that is expired at now and returns how many were removed.
func (s *Store) PruneExpired(now time.Time) int {
	pruned := 0
	for key, entry := range s.pending {
		if entry.challenge.IsExpired(now) {
			s.order.Remove(entry.element)
			delete(s.pending, key)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of pending challenges.
func (s *Store) Len() int {
	return len(s.pending)
}

// evictOldest removes the oldest entry. O(1) using the linked list.
func (s *Store) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.pending, key)
}

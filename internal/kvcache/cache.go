// Package kvcache is the in-memory, TTL-bounded key-value store exposed
// to plugin code as a capability. Grounded on the single-bucket,
// lazy-sweep design of the original's wasi-keyvalue host implementation.
package kvcache

import (
	"errors"
	"sync"
	"time"
)

// ErrNoSuchStore is returned by Open for any identifier other than "".
var ErrNoSuchStore = errors.New("no such store")

const (
	// DefaultTTL is applied to entries preseeded at construction.
	DefaultTTL = 24 * time.Hour
	// SetTTL is applied to every entry written through Set.
	SetTTL = time.Hour
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Bucket is the single logical store identified by the empty string.
type Bucket struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

// Option configures a Bucket at construction.
type Option func(*Bucket)

// WithClock overrides the bucket's time source, for testing.
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) { b.now = now }
}

// WithPreseed loads initial key/value pairs with DefaultTTL.
func WithPreseed(data map[string][]byte) Option {
	return func(b *Bucket) {
		expires := b.now().Add(DefaultTTL)
		for k, v := range data {
			b.data[k] = entry{value: v, expiresAt: expires}
		}
	}
}

// NewBucket constructs an empty bucket, applying opts in order.
func NewBucket(opts ...Option) *Bucket {
	b := &Bucket{
		data: make(map[string]entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open resolves a store identifier to the shared bucket. Only the empty
// string succeeds.
func Open(identifier string, b *Bucket) (*Bucket, error) {
	if identifier != "" {
		return nil, ErrNoSuchStore
	}
	return b, nil
}

func (b *Bucket) cleanupLocked() {
	now := b.now()
	for k, e := range b.data {
		if !e.expiresAt.After(now) {
			delete(b.data, k)
		}
	}
}

// Get returns the value for key, or (nil, false) if absent or expired.
func (b *Bucket) Get(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupLocked()

	e, ok := b.data[key]
	if !ok {
		return nil, false
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, true
}

// Set writes key with SetTTL, overwriting any existing entry.
func (b *Bucket) Set(key string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupLocked()

	stored := make([]byte, len(value))
	copy(stored, value)
	b.data[key] = entry{value: stored, expiresAt: b.now().Add(SetTTL)}
}

// Delete removes key if present; deleting an absent key is a no-op.
func (b *Bucket) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupLocked()

	delete(b.data, key)
}

// Exists reports whether key is present and unexpired.
func (b *Bucket) Exists(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupLocked()

	_, ok := b.data[key]
	return ok
}

// KeyResponse mirrors the wire shape of list_keys: a page of keys and an
// always-nil continuation cursor (single-shot pagination over the
// current snapshot).
type KeyResponse struct {
	Keys   []string
	Cursor *uint64
}

// ListKeys returns keys from cursor onward. The response cursor is
// always nil; callers that want a fresh page must call again, sweeping
// whatever has since expired.
func (b *Bucket) ListKeys(cursor *uint64) KeyResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupLocked()

	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}

	start := uint64(0)
	if cursor != nil {
		start = *cursor
	}
	if start > uint64(len(keys)) {
		start = uint64(len(keys))
	}

	return KeyResponse{Keys: keys[start:], Cursor: nil}
}

// Len reports the number of live entries, for the octabot_kv_entries_total gauge.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanupLocked()
	return len(b.data)
}

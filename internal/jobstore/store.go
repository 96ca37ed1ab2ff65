// Package jobstore keeps processing results under generated job ids for a
// fixed time-to-live.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/docpipe/internal/document"
)

// DefaultTTL is how long a result stays retrievable.
const DefaultTTL = time.Hour

const (
	keyPrefix  = "job_"
	putRetries = 3
)

var (
	// ErrNotFound is returned for unknown, expired and still-pending jobs.
	ErrNotFound = errors.New("job not found")
	// ErrCollision is returned when every generated id was already taken.
	ErrCollision = errors.New("job id collision")
	// ErrUnavailable wraps failures of the cache backend itself.
	ErrUnavailable = errors.New("job store unavailable")
)

// Backend is the key-value cache the store writes to. Values expire after
// the given ttl.
type Backend interface {
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// SetXX stores value only if key exists and reports whether it did.
	SetXX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Store serialises results into a Backend.
type Store struct {
	backend Backend
	ttl     time.Duration
	newID   func() string
}

// New returns a store writing to b. A zero ttl means DefaultTTL.
func New(b Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{backend: b, ttl: ttl, newID: uuid.NewString}
}

// Key returns the backend key for a job id.
func Key(id string) string { return keyPrefix + id }

// TTL returns the record lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put stores r under a fresh id. An id already in use is never overwritten;
// Put draws a new one and gives up with ErrCollision after a few tries.
func (s *Store) Put(ctx context.Context, r *document.ProcessingResult) (string, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	for attempt := 0; attempt < putRetries; attempt++ {
		id := s.newID()
		ok, err := s.backend.SetNX(ctx, Key(id), data, s.ttl)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ok {
			return id, nil
		}
	}
	return "", ErrCollision
}

// Reserve stores a pending placeholder for a job that completes later.
func (s *Store) Reserve(ctx context.Context, mode document.Mode) (string, error) {
	return s.Put(ctx, &document.ProcessingResult{Mode: mode, Status: document.StatusPending})
}

// Complete replaces the placeholder for id. It returns ErrNotFound if the
// placeholder has already expired.
func (s *Store) Complete(ctx context.Context, id string, r *document.ProcessingResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	ok, err := s.backend.SetXX(ctx, Key(id), data, s.ttl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Lookup returns the record for id in whatever state it is in, including
// pending placeholders.
func (s *Store) Lookup(ctx context.Context, id string) (*document.ProcessingResult, error) {
	data, found, err := s.backend.Get(ctx, Key(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	var r document.ProcessingResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &r, nil
}

// Get returns a finished record. Pending jobs are reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*document.ProcessingResult, error) {
	r, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == document.StatusPending {
		return nil, ErrNotFound
	}
	return r, nil
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// OpenBackend returns the backend named by kind ("redis" or "memory").
func OpenBackend(kind, redisURL string) (Backend, error) {
	switch kind {
	case "", "redis":
		return NewRedisBackend(redisURL)
	case "memory":
		return NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown job store backend %q", kind)
}

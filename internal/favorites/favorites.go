// Package favorites persists the user's favorite spot ids as a JSON array of
// integers under a single durable key.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/vbonduro/sparx/internal/domain"
	"github.com/vbonduro/sparx/internal/kvstore"
)

// DefaultKey is the durable key favorites live under.
const DefaultKey = "sparx_favs_v2"

// writeTimeout bounds a single durable write. Writes run detached from the
// caller's cancellation so an aborted request still lands.
const writeTimeout = 5 * time.Second

// Store reads and writes the durable favorites value.
type Store struct {
	kv     kvstore.Store
	key    string
	logger *slog.Logger
}

// NewStore returns a Store over kv. A nil kv yields a Store whose reads are
// empty and whose writes fail with domain.ErrStorageUnavailable.
func NewStore(kv kvstore.Store, key string, logger *slog.Logger) *Store {
	return &Store{kv: kv, key: key, logger: logger}
}

// Load returns the stored ids in their saved order. A missing key, a
// malformed value or a backend failure all yield an empty slice.
func (s *Store) Load(ctx context.Context) []int64 {
	if s.kv == nil {
		return []int64{}
	}

	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("favorites unreadable, starting empty", "key", s.key, "error", err)
		return []int64{}
	}
	if !found {
		return []int64{}
	}

	ids, err := Decode(raw)
	if err != nil {
		s.logger.Warn("favorites malformed, starting empty", "key", s.key, "error", err)
		return []int64{}
	}
	return ids
}

func (s *Store) Save(ctx context.Context, ids []int64) error {
	if s.kv == nil {
		return fmt.Errorf("no favorites backend: %w", domain.ErrStorageUnavailable)
	}
	if err := s.kv.Put(ctx, s.key, Encode(ids)); err != nil {
		return fmt.Errorf("failed to save favorites: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// Delete removes the durable value. A later Load yields an empty set.
func (s *Store) Delete(ctx context.Context) error {
	if s.kv == nil {
		return fmt.Errorf("no favorites backend: %w", domain.ErrStorageUnavailable)
	}
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to delete favorites: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// Decode parses a JSON array of integers, dropping repeated ids.
func Decode(raw string) ([]int64, error) {
	var parsed []int64
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode favorites: %w", err)
	}
	ids := make([]int64, 0, len(parsed))
	for _, id := range parsed {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func Encode(ids []int64) string {
	if ids == nil {
		ids = []int64{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

// Set is the in-memory favorite set mirrored to a Store after every
// mutation. Once a write fails the set stops writing and serves the
// in-memory copy for the rest of its life.
type Set struct {
	store    *Store
	ids      []int64
	degraded bool
}

func Open(ctx context.Context, store *Store) *Set {
	return &Set{store: store, ids: store.Load(ctx)}
}

// Toggle adds id if absent and removes it otherwise, returning the new ids.
func (f *Set) Toggle(ctx context.Context, id int64) []int64 {
	if i := slices.Index(f.ids, id); i >= 0 {
		f.ids = slices.Delete(f.ids, i, i+1)
	} else {
		f.ids = append(f.ids, id)
	}
	f.persist(ctx)
	return f.IDs()
}

// Clear empties the set and deletes the durable key.
func (f *Set) Clear(ctx context.Context) {
	f.ids = []int64{}
	f.write(ctx, f.store.Delete)
}

func (f *Set) persist(ctx context.Context) {
	f.write(ctx, func(ctx context.Context) error { return f.store.Save(ctx, f.ids) })
}

// write runs op unless the set is degraded. A backend failure degrades the
// set. A timeout does not, and the next mutation writes the full set again.
func (f *Set) write(ctx context.Context, op func(context.Context) error) {
	if f.degraded {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := op(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.store.logger.Warn("favorites write interrupted, will retry on next change", "key", f.store.key, "error", err)
	default:
		f.degraded = true
		f.store.logger.Warn("favorites storage unavailable, keeping them in memory", "key", f.store.key, "error", err)
	}
}

func (f *Set) Contains(id int64) bool {
	return slices.Contains(f.ids, id)
}

// IDs returns the favorite ids in insertion order.
func (f *Set) IDs() []int64 {
	return slices.Clone(f.ids)
}

func (f *Set) Len() int {
	return len(f.ids)
}

func (f *Set) Degraded() bool {
	return f.degraded
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pacelabs/pace-core/internal/blob"
)

// ErrArtifactOrphaned reports that a recording's metadata was removed but its
// stored artifact could not be deleted and needs out-of-band cleanup.
var ErrArtifactOrphaned = errors.New("recording deleted but artifact removal failed")

// Catalog mirrors the external metadata store in a newest-first cache. The
// store is authoritative; the cache is only mutated after a remote operation
// has succeeded.
type Catalog struct {
	store   Store
	blobs   blob.Store
	ownerID string
	log     *slog.Logger

	mu    sync.RWMutex
	cache []Metadata
}

func New(store Store, blobs blob.Store, ownerID string, log *slog.Logger) *Catalog {
	return &Catalog{
		store:   store,
		blobs:   blobs,
		ownerID: ownerID,
		log:     log.With(slog.String("component", "catalog")),
	}
}

// Load replaces the cache with the full remote set, newest first.
func (c *Catalog) Load(ctx context.Context) error {
	records, err := c.store.ListByOwner(ctx, c.ownerID)
	if err != nil {
		return fmt.Errorf("list recordings: %w", err)
	}
	sortNewestFirst(records)

	c.mu.Lock()
	c.cache = records
	c.mu.Unlock()
	return nil
}

// Append persists a record remotely and, only on success, adds it to the
// cache keeping newest-first order.
func (c *Catalog) Append(ctx context.Context, m Metadata) error {
	if err := c.store.Put(ctx, c.ownerID, m); err != nil {
		return fmt.Errorf("persist recording metadata: %w", err)
	}

	c.mu.Lock()
	c.cache = append(c.cache, m)
	sortNewestFirst(c.cache)
	c.mu.Unlock()
	return nil
}

// Remove deletes the metadata record and then the stored artifact. A failed
// artifact delete leaves the record deleted and reports the orphan.
func (c *Catalog) Remove(ctx context.Context, id string) error {
	m, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("recording %s not in catalog", id)
	}

	if err := c.store.Delete(ctx, c.ownerID, id); err != nil {
		return fmt.Errorf("delete recording metadata: %w", err)
	}

	c.mu.Lock()
	kept := c.cache[:0]
	for _, r := range c.cache {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	c.cache = kept
	c.mu.Unlock()

	if err := c.blobs.Delete(ctx, m.StorageURI); err != nil {
		c.log.Warn("artifact delete failed, blob orphaned",
			slog.String("id", id),
			slog.String("uri", m.StorageURI),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrArtifactOrphaned, err)
	}
	return nil
}

// Recordings returns a copy of the cached records, newest first.
func (c *Catalog) Recordings() []Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Metadata, len(c.cache))
	copy(out, c.cache)
	return out
}

// Get looks a record up by id in the cache.
func (c *Catalog) Get(id string) (Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.cache {
		if m.ID == id {
			return m, true
		}
	}
	return Metadata{}, false
}

func sortNewestFirst(records []Metadata) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}

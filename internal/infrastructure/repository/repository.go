// Package repository implements the reference-counted artifact file cache.
// Acquire hands out locks on cached files, fetching a missing artifact at
// most once regardless of how many callers want it concurrently; Release
// returns them. Entries are evictable only while no lock is outstanding.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"plugincheck.dev/cli/internal/core/artifact"
	"plugincheck.dev/cli/internal/core/ports"
	"plugincheck.dev/cli/internal/errs"
)

// repoSeq distinguishes repository instances, so a lock can never be
// released against a repository it was not issued by.
var repoSeq atomic.Uint64

type entry struct {
	key        artifact.Key
	path       string
	size       int64
	refCount   int
	lastAccess time.Time
	state      artifact.EntryState
}

func (e *entry) snapshot() artifact.Entry {
	return artifact.Entry{
		Key:        e.key,
		Path:       e.path,
		Size:       e.size,
		RefCount:   e.refCount,
		LastAccess: e.lastAccess,
		State:      e.state,
	}
}

// FileRepository is the artifact cache. Safe for concurrent use.
type FileRepository struct {
	id      uint64
	fetcher ports.Fetcher
	store   *diskStore
	policy  Policy
	log     *slog.Logger

	group singleflight.Group

	mu         sync.Mutex
	entries    map[artifact.Key]*entry
	live       map[uint64]artifact.Key // outstanding lock id -> key
	nextLockID uint64
	closed     bool
}

// Option configures a FileRepository.
type Option func(*FileRepository)

// WithPolicy sets the eviction policy. Default is LRUPolicy with no size
// cap, i.e. nothing is ever selected.
func WithPolicy(p Policy) Option {
	return func(r *FileRepository) { r.policy = p }
}

// WithLogger sets the repository logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *FileRepository) { r.log = log }
}

// New creates a repository caching fetched artifacts under cacheDir.
func New(cacheDir string, fetcher ports.Fetcher, opts ...Option) (*FileRepository, error) {
	store, err := newDiskStore(cacheDir)
	if err != nil {
		return nil, err
	}
	r := &FileRepository{
		id:      repoSeq.Add(1),
		fetcher: fetcher,
		store:   store,
		policy:  LRUPolicy{},
		log:     slog.New(slog.DiscardHandler),
		entries: make(map[artifact.Key]*entry),
		live:    make(map[uint64]artifact.Key),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Acquire returns a lock on the cached file for key, fetching the artifact
// first if needed. Concurrent acquires for an absent key share one fetch:
// on success every caller gets its own lock, on failure every caller gets
// the same fetch error. The locked path stays readable until Release.
func (r *FileRepository) Acquire(ctx context.Context, key artifact.Key) (artifact.Lock, error) {
	for {
		if err := ctx.Err(); err != nil {
			return artifact.Lock{}, errs.Cancelled("acquire", err)
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return artifact.Lock{}, errs.Fetch("acquire", "repository is closed", errs.ErrRepositoryClosed)
		}
		if e, ok := r.entries[key]; ok && e.state == artifact.StateAvailable {
			lock := r.issueLocked(e)
			r.mu.Unlock()
			return lock, nil
		}
		r.mu.Unlock()

		_, err, _ := r.group.Do(key.String(), func() (interface{}, error) {
			return nil, r.fetch(ctx, key)
		})
		if err != nil {
			return artifact.Lock{}, err
		}
		// Re-check under the mutex: the entry could have been swept in
		// the window between the fetch completing and this lock attempt.
	}
}

// issueLocked hands out a new lock for an available entry. Caller holds mu.
func (r *FileRepository) issueLocked(e *entry) artifact.Lock {
	r.nextLockID++
	e.refCount++
	e.lastAccess = time.Now()
	r.live[r.nextLockID] = e.key
	return artifact.Lock{
		ID:           r.nextLockID,
		RepositoryID: r.id,
		Key:          e.key,
		Path:         e.path,
		AcquiredAt:   e.lastAccess,
	}
}

// fetch obtains the artifact bytes and publishes the cache entry. Runs at
// most once per key at a time, inside the single-flight group.
func (r *FileRepository) fetch(ctx context.Context, key artifact.Key) error {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok && e.state == artifact.StateAvailable {
		r.mu.Unlock()
		return nil
	}
	e := &entry{key: key, state: artifact.StateFetching}
	r.entries[key] = e
	r.mu.Unlock()

	fail := func(err error) error {
		r.mu.Lock()
		if r.entries[key] == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		return err
	}

	if err := ctx.Err(); err != nil {
		return fail(errs.Cancelled("fetch", err))
	}
	src, err := r.fetcher.Fetch(ctx, key)
	if err != nil {
		if errs.IsCancellation(err) {
			return fail(errs.Cancelled("fetch", err))
		}
		return fail(errs.Fetch("fetch", "unable to obtain artifact "+key.String(), err))
	}
	defer src.Close()

	path, size, err := r.store.write(key, src)
	if err != nil {
		return fail(errs.Fetch("fetch", "unable to store artifact "+key.String(), err))
	}

	r.mu.Lock()
	e.path = path
	e.size = size
	e.lastAccess = time.Now()
	e.state = artifact.StateAvailable
	r.mu.Unlock()

	r.log.Debug("artifact fetched", "key", key.String(), "path", path, "size", size)
	return nil
}

// Release returns a lock. Releasing the same lock twice, or a lock issued
// by another repository, is a logged no-op and never corrupts the count.
func (r *FileRepository) Release(lock artifact.Lock) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lock.RepositoryID != r.id {
		r.log.Warn("release of a foreign lock ignored", "lock_id", lock.ID)
		return
	}
	key, ok := r.live[lock.ID]
	if !ok {
		r.log.Debug("duplicate release ignored", "lock_id", lock.ID, "key", lock.Key.String())
		return
	}
	delete(r.live, lock.ID)
	if e, ok := r.entries[key]; ok && e.refCount > 0 {
		e.refCount--
		e.lastAccess = time.Now()
	}
}

// Sweep runs the eviction policy over entries with no outstanding locks
// and deletes the selected files. Returns how many entries were removed.
func (r *FileRepository) Sweep() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []artifact.Entry
	for _, e := range r.entries {
		if e.refCount == 0 && e.state == artifact.StateAvailable {
			candidates = append(candidates, e.snapshot())
		}
	}

	removed := 0
	var firstErr error
	for _, key := range r.policy.SelectForEviction(candidates) {
		e, ok := r.entries[key]
		if !ok || e.refCount != 0 || e.state != artifact.StateAvailable {
			continue
		}
		e.state = artifact.StateEvicting
		if err := r.store.remove(e.path); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to evict %s: %w", key.String(), err)
			}
			e.state = artifact.StateAvailable
			continue
		}
		delete(r.entries, key)
		removed++
	}
	if removed > 0 {
		r.log.Debug("cache swept", "removed", removed)
	}
	return removed, firstErr
}

// Stats reports the repository's current shape.
type Stats struct {
	Entries          int
	TotalBytes       int64
	OutstandingLocks int
}

func (r *FileRepository) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Entries: len(r.entries), OutstandingLocks: len(r.live)}
	for _, e := range r.entries {
		s.TotalBytes += e.size
	}
	return s
}

// Entries returns snapshots of all cache entries, for inspection.
func (r *FileRepository) Entries() []artifact.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]artifact.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.snapshot())
	}
	return out
}

// Close shuts the repository down. Locks still outstanding are reported
// through the logger and returned as an error; cached files stay on disk.
func (r *FileRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	for id, key := range r.live {
		r.log.Warn("lock still outstanding at shutdown", "lock_id", id, "key", key.String())
	}
	if n := len(r.live); n > 0 {
		return fmt.Errorf("repository closed with %d outstanding locks", n)
	}
	return nil
}

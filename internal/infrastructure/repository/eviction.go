package repository

import (
	"sort"

	"plugincheck.dev/cli/internal/core/artifact"
)

// Policy selects which eviction-eligible entries to remove. The
// repository hands it only entries with reference count zero; whatever the
// policy does beyond that is its own business.
type Policy interface {
	SelectForEviction(entries []artifact.Entry) []artifact.Key
}

// LRUPolicy evicts least-recently-accessed entries until the cache fits
// under MaxBytes. MaxBytes <= 0 disables size pressure entirely.
type LRUPolicy struct {
	MaxBytes int64
}

// SelectForEviction returns keys in eviction order, oldest access first,
// freeing just enough to get under the size cap.
func (p LRUPolicy) SelectForEviction(entries []artifact.Entry) []artifact.Key {
	if p.MaxBytes <= 0 {
		return nil
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	if total <= p.MaxBytes {
		return nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})

	toFree := total - p.MaxBytes
	var selected []artifact.Key
	var freed int64
	for _, e := range entries {
		if freed >= toFree {
			break
		}
		selected = append(selected, e.Key)
		freed += e.Size
	}
	return selected
}

// EvictAllPolicy selects every eligible entry. Used by explicit cache
// clearing.
type EvictAllPolicy struct{}

func (EvictAllPolicy) SelectForEviction(entries []artifact.Entry) []artifact.Key {
	keys := make([]artifact.Key, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}

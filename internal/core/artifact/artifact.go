// Package artifact defines the value types of the artifact cache: keys,
// locks and cache entry snapshots.
package artifact

import "time"

// Key identifies an artifact payload by value. Two keys with the same
// fields name the same logical artifact regardless of where the bytes
// come from.
type Key struct {
	// Kind distinguishes key spaces, e.g. "plugin" or "platform".
	Kind string
	// Name is the plugin id or platform product code.
	Name string
	// Version is the artifact version string.
	Version string
}

// PluginKey builds a key for a plugin distribution.
func PluginKey(id, version string) Key {
	return Key{Kind: "plugin", Name: id, Version: version}
}

// PlatformKey builds a key for a target platform build.
func PlatformKey(build string) Key {
	return Key{Kind: "platform", Name: build}
}

func (k Key) String() string {
	if k.Version == "" {
		return k.Kind + ":" + k.Name
	}
	return k.Kind + ":" + k.Name + ":" + k.Version
}

// Lock is a caller's claim on a cached artifact file. While a lock is
// outstanding the file at Path stays readable and the entry is never
// evicted. Locks are compared by (RepositoryID, ID); any number of locks
// may be outstanding for the same key.
type Lock struct {
	ID           uint64
	RepositoryID uint64
	Key          Key
	Path         string
	AcquiredAt   time.Time
}

// EntryState is the lifecycle state of a cache entry.
type EntryState int

const (
	// StateFetching marks an entry whose bytes are still being obtained.
	StateFetching EntryState = iota
	// StateAvailable marks an entry whose file is complete on disk.
	// The path of an available entry never changes.
	StateAvailable
	// StateEvicting marks an entry selected for removal.
	StateEvicting
)

func (s EntryState) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateAvailable:
		return "available"
	case StateEvicting:
		return "evicting"
	default:
		return "unknown"
	}
}

// Entry is a point-in-time snapshot of a cache entry, used by eviction
// policies and stats reporting.
type Entry struct {
	Key        Key
	Path       string
	Size       int64
	RefCount   int
	LastAccess time.Time
	State      EntryState
}

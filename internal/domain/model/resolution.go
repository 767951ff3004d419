package model

import "time"

// ResolutionSource tags which identity tier answered a lookup.
type ResolutionSource int8

const (
	// [ZERO_VALUE_GUARD] The zero value means nothing matched.
	SourceAbsent ResolutionSource = iota
	SourcePinned
	SourceCached
)

func (s ResolutionSource) String() string {
	switch s {
	case SourcePinned:
		return "pinned"
	case SourceCached:
		return "cached"
	default:
		return "absent"
	}
}

// CacheEntry is a username -> user id mapping held by one of the identity tiers.
// A zero ExpiresAt means the entry never expires (pinned users).
type CacheEntry struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// NeverExpires reports whether the entry has an unbounded lifetime.
func (e CacheEntry) NeverExpires() bool { return e.ExpiresAt.IsZero() }

// Resolution is the outcome of a single identity lookup.
//
// [VARIANTS]
//   - pinned: Entry set, never expires, served from process memory.
//   - cached: Entry set, lifetime enforced by the shared tier.
//   - absent: Entry zero.
type Resolution struct {
	Source ResolutionSource
	Entry  CacheEntry
}

// Found reports whether the lookup produced a user id.
func (r Resolution) Found() bool { return r.Source != SourceAbsent }

func Pinned(entry CacheEntry) Resolution {
	entry.ExpiresAt = time.Time{}
	return Resolution{Source: SourcePinned, Entry: entry}
}

func Cached(entry CacheEntry) Resolution {
	return Resolution{Source: SourceCached, Entry: entry}
}

func Absent() Resolution { return Resolution{} }

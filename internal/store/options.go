package store

import (
	"log/slog"

	"flashstr/internal/flash"
)

// Option configures a Store.
type Option func(*Store)

// Policy picks the page for a new record from the pages currently free, in scan order.
// candidates is never empty and the result must be one of them.
type Policy func(candidates []flash.Addr) flash.Addr

// FirstFit takes the lowest-indexed free page. No wear leveling.
func FirstFit(candidates []flash.Addr) flash.Addr {
	return candidates[0]
}

// Scope is what EraseAll wipes.
type Scope uint8

const (
	// ScopeRegion erases only the contiguous save area. Records on the odd pages survive.
	ScopeRegion Scope = iota
	// ScopeNamespace erases every catalog page.
	ScopeNamespace
)

func (sc Scope) String() string {
	switch sc {
	case ScopeRegion:
		return "region"
	case ScopeNamespace:
		return "namespace"
	}
	return "unknown"
}

// WithLogger sets the logger. The store adds "src"="Store" to it.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		s.log = log.With("src", "Store")
	}
}

// WithPolicy replaces the free page selection (default FirstFit).
func WithPolicy(p Policy) Option {
	return func(s *Store) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithEraseAllScope sets what EraseAll erases (default ScopeRegion).
func WithEraseAllScope(sc Scope) Option {
	return func(s *Store) {
		s.scope = sc
	}
}

// WithMarkerLast writes the marker byte after the payload instead of with the rest of the
// header. Power loss mid-save then leaves a page that scans as free rather than a record
// with a truncated payload.
func WithMarkerLast(enabled bool) Option {
	return func(s *Store) {
		s.markerLast = enabled
	}
}

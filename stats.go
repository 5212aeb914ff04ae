package perfscope

import "sync/atomic"

// Process-wide counters describing how the library is being used.
// They help spot misuse in production (groups with no scope, handles
// ended twice) without turning it into an error.
var (
	scopesCreated  atomic.Uint64
	scopesEnded    atomic.Uint64
	groupsRecorded atomic.Uint64
	groupsDropped  atomic.Uint64 // Append with no active scope
	duplicateEnds  atomic.Uint64 // End on an already ended handle
)

// Stats is a snapshot of the process-wide counters.
type Stats struct {
	ScopesCreated  uint64 `json:"scopes_created"`
	ScopesEnded    uint64 `json:"scopes_ended"`
	GroupsRecorded uint64 `json:"groups_recorded"`
	GroupsDropped  uint64 `json:"groups_dropped"`
	DuplicateEnds  uint64 `json:"duplicate_ends"`
}

// GetStats returns the current counters.
func GetStats() Stats {
	return Stats{
		ScopesCreated:  scopesCreated.Load(),
		ScopesEnded:    scopesEnded.Load(),
		GroupsRecorded: groupsRecorded.Load(),
		GroupsDropped:  groupsDropped.Load(),
		DuplicateEnds:  duplicateEnds.Load(),
	}
}

// ResetStats zeroes the counters (useful for testing)
func ResetStats() {
	scopesCreated.Store(0)
	scopesEnded.Store(0)
	groupsRecorded.Store(0)
	groupsDropped.Store(0)
	duplicateEnds.Store(0)
}

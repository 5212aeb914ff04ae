package perfscope

import (
	"context"
	"sync/atomic"
	"time"
)

// ScopeHandle owns an open scope. End it exactly once, typically with
// defer; extra calls to End are ignored.
type ScopeHandle struct {
	node     *Node
	ctx      context.Context // ambient context while the scope is open
	restored context.Context // ambient context before Create
	start    time.Time
	ended    atomic.Bool
}

// Scope returns the node recorded by this handle, or nil when recording
// was disabled at Create.
func (h *ScopeHandle) Scope() *Node {
	if h == nil {
		return nil
	}
	return h.node
}

// Context returns the context in which this scope is active.
func (h *ScopeHandle) Context() context.Context {
	if h == nil {
		return nil
	}
	return h.ctx
}

// End stops the timer, adds the elapsed time to the node and returns the
// context that was active before the scope was opened: the parent scope's
// context, or one with no scope when this was a root.
func (h *ScopeHandle) End() context.Context {
	if h == nil {
		return nil
	}
	if h.node == nil {
		return h.restored
	}
	if !h.ended.CompareAndSwap(false, true) {
		duplicateEnds.Add(1)
		logMisuse("scope ended more than once", map[string]interface{}{
			"scope": h.node.name,
		})
		return h.restored
	}

	h.node.addElapsed(time.Since(h.start))
	scopesEnded.Add(1)
	return h.restored
}

// Ended reports whether End has run.
func (h *ScopeHandle) Ended() bool {
	if h == nil || h.node == nil {
		return true
	}
	return h.ended.Load()
}

// GroupHandle times one contribution to a labeled group on a scope.
type GroupHandle struct {
	node  *Node
	label string
	start time.Time
	ended atomic.Bool
}

// noopGroup is shared by every Append that records nothing.
var noopGroup = &GroupHandle{}

// Label returns the group label, empty for a no-op handle.
func (g *GroupHandle) Label() string {
	if g == nil {
		return ""
	}
	return g.label
}

// Scope returns the node the group is recorded on, or nil.
func (g *GroupHandle) Scope() *Node {
	if g == nil {
		return nil
	}
	return g.node
}

// End adds the elapsed time to the scope's group. Only the first call counts.
func (g *GroupHandle) End() {
	if g == nil || g.node == nil {
		return
	}
	if !g.ended.CompareAndSwap(false, true) {
		duplicateEnds.Add(1)
		logMisuse("group ended more than once", map[string]interface{}{
			"scope": g.node.name,
			"group": g.label,
		})
		return
	}

	g.node.addGroup(g.label, time.Since(g.start))
	groupsRecorded.Add(1)
}

package perfscope

import (
	"context"
	"fmt"
	"time"
)

// Create opens a scope named name under the scope active in ctx, or a new
// root when ctx carries none. When args are given, name is a fmt format.
//
// The returned context carries the new scope; pass it to the work being
// measured. End the handle when the work is done:
//
//	ctx, scope := perfscope.Create(ctx, "load user %d", id)
//	defer scope.End()
//
// With recording disabled, ctx is returned unchanged together with a
// handle whose End does nothing.
func Create(ctx context.Context, name string, args ...any) (context.Context, *ScopeHandle) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !enabled.Load() {
		return ctx, &ScopeHandle{ctx: ctx, restored: ctx}
	}

	if len(args) > 0 {
		name = fmt.Sprintf(name, args...)
	}

	node := newNode(name, FromContext(ctx))
	scoped := WithScope(ctx, node)
	scopesCreated.Add(1)

	return scoped, &ScopeHandle{
		node:     node,
		ctx:      scoped,
		restored: ctx,
		start:    time.Now(),
	}
}

// Append starts timing a contribution to the group label on the scope
// active in ctx. Several contributions to the same label on the same scope
// add up. It records nothing when recording is disabled or no scope is
// active.
//
//	g := perfscope.Append(ctx, "db")
//	rows, err := db.QueryContext(ctx, q)
//	g.End()
func Append(ctx context.Context, label string) *GroupHandle {
	if !enabled.Load() {
		return noopGroup
	}
	node := FromContext(ctx)
	if node == nil {
		groupsDropped.Add(1)
		logMisuse("group appended with no active scope", map[string]interface{}{
			"group": label,
		})
		return noopGroup
	}

	return &GroupHandle{
		node:  node,
		label: label,
		start: time.Now(),
	}
}

// Run opens a scope, calls fn with the scoped context and ends the scope
// when fn returns or panics.
func Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, scope := Create(ctx, name)
	defer scope.End()
	return fn(ctx)
}

// Track times fn as a contribution to the group label on the active scope.
func Track(ctx context.Context, label string, fn func()) {
	g := Append(ctx, label)
	defer g.End()
	fn()
}

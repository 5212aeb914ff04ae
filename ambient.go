package perfscope

import "context"

// ambientKey is the context key for the active scope.
type ambientKey struct{}

// FromContext returns the scope active in ctx, or nil when none is.
func FromContext(ctx context.Context) *Node {
	if ctx == nil {
		return nil
	}
	n, _ := ctx.Value(ambientKey{}).(*Node)
	return n
}

// Current is FromContext for call sites that only inspect the active scope.
func Current(ctx context.Context) *Node {
	return FromContext(ctx)
}

// WithScope returns a copy of ctx in which n is the active scope.
//
// Contexts are immutable, so goroutines started with the parent ctx keep
// seeing the scope that was active when they were started.
func WithScope(ctx context.Context, n *Node) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ambientKey{}, n)
}

// WithoutScope returns a copy of ctx with no active scope, hiding any scope
// inherited from ctx. Scopes opened from the result become roots.
func WithoutScope(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if FromContext(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, ambientKey{}, (*Node)(nil))
}

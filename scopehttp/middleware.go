// Package scopehttp opens a perfscope scope for every HTTP request.
//
// Handlers see the request scope through r.Context(), so scopes and groups
// they create nest under it:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/orders", ordersHandler)
//
//	handler := scopehttp.Middleware(
//	    scopehttp.WithExcludedPaths("/health"),
//	    scopehttp.WithFinisher(func(n *perfscope.Node, r *http.Request) {
//	        pipeline.Export(r.Context(), n)
//	    }),
//	)(mux)
//
// Instrument does the same inside an otelhttp handler, so the request span
// and the scope tree share a trace.
package scopehttp

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/itsneelabh/perfscope"
)

// Finisher receives a request scope after it has ended.
type Finisher func(node *perfscope.Node, r *http.Request)

// Option configures the middleware.
type Option func(*config)

type config struct {
	nameFormatter func(r *http.Request) string
	excluded      map[string]bool
	finisher      Finisher
	finishNested  bool
}

// WithNameFormatter overrides the default "HTTP {method} {path}" scope name.
func WithNameFormatter(fn func(r *http.Request) string) Option {
	return func(c *config) {
		if fn != nil {
			c.nameFormatter = fn
		}
	}
}

// WithExcludedPaths lists URL paths that are served without a scope.
func WithExcludedPaths(paths ...string) Option {
	return func(c *config) {
		for _, p := range paths {
			c.excluded[p] = true
		}
	}
}

// WithFinisher registers fn to receive each finished request scope. Only
// root scopes are passed unless WithFinishNested is also given.
func WithFinisher(fn Finisher) Option {
	return func(c *config) {
		c.finisher = fn
	}
}

// WithFinishNested passes request scopes to the finisher even when the
// incoming context already carried a scope.
func WithFinishNested() Option {
	return func(c *config) {
		c.finishNested = true
	}
}

func defaultName(r *http.Request) string {
	return "HTTP " + r.Method + " " + r.URL.Path
}

func newConfig(opts []Option) *config {
	c := &config{
		nameFormatter: defaultName,
		excluded:      make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Middleware returns middleware that wraps each request in a scope.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	c := newConfig(opts)
	return func(next http.Handler) http.Handler {
		return c.wrap(next)
	}
}

func (c *config) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.excluded[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ctx, scope := perfscope.Create(r.Context(), c.nameFormatter(r))
		r = r.WithContext(ctx)
		defer func() {
			scope.End()
			node := scope.Scope()
			if c.finisher == nil || node == nil {
				return
			}
			if node.IsRoot() || c.finishNested {
				c.finisher(node, r)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Instrument returns Middleware wrapped in otelhttp.NewHandler. Excluded
// paths are skipped by both, and the span carries the scope's name.
func Instrument(serviceName string, opts ...Option) func(http.Handler) http.Handler {
	c := newConfig(opts)

	otelOpts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return c.nameFormatter(r)
		}),
	}
	if len(c.excluded) > 0 {
		otelOpts = append(otelOpts, otelhttp.WithFilter(func(r *http.Request) bool {
			return !c.excluded[r.URL.Path]
		}))
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(c.wrap(next), serviceName, otelOpts...)
	}
}

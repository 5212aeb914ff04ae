/*
Package perfscope records the nested timing structure of a call chain.

Code marks a block of work with Create and ends it with the returned
handle. Scopes nest the way the code that opens them nests at runtime,
without a profiler object in every function signature: the active scope
travels in the context.Context that already flows through the call chain.

Architecture Overview:

  - Node: one scope in the tree (name, start time, elapsed time, children
    and labeled groups)
  - Ambient context: the active Node, carried as an immutable context value
  - Handles: ScopeHandle and GroupHandle, each ended exactly once
  - Gate: a process-wide switch; when off every call is a no-op

Usage:

Turn recording on once in main:

	perfscope.Initialize(perfscope.UseProfile(perfscope.ProfileDevelopment))

Then open scopes wherever work happens:

	func handle(ctx context.Context, id int) error {
	    ctx, scope := perfscope.Create(ctx, "handle %d", id)
	    defer scope.End()

	    g := perfscope.Append(ctx, "db")
	    err := load(ctx, id)
	    g.End()
	    return err
	}

Groups (Append) add time to a named bucket on the active scope instead of
creating a child node. Repeated groups with the same label on the same
scope add up.

Concurrency:

Scopes opened from goroutines that share a parent context become siblings
under that parent. A goroutine sees the scope that was active in the
context it was given; scopes it opens later are invisible to the others.
Children and groups of a node are safe for concurrent use and each node
has its own lock, so sibling branches never contend with each other.

Fail-Safe:

Nothing in this package returns an error or panics on misuse. A group
appended with no active scope records nothing, and neither does a second
End on a handle. Both are counted in Stats and logged at debug level.
With recording disabled every call is a no-op.

Reading Results:

Once the root handle has ended, read the tree through Node's accessors
(Name, StartedOn, Elapsed, Children, Groups) or Walk. The otelexport
package replays a finished tree into OpenTelemetry.

Known Edge Case:

Children are ordered by their wall-clock start time, while elapsed time
comes from the monotonic clock. A system clock adjustment while scopes
are open can therefore order siblings differently from their creation
order.
*/
package perfscope

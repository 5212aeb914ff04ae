package perfscope

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// nodeSeq orders nodes that share a wall-clock start time.
var nodeSeq atomic.Uint64

// Node is one scope in the timing tree.
//
// A Node is created by Create, attached to its parent at that instant, and
// written to only through the handles that own it. Everything exported here
// is a read accessor; readers may call them concurrently with writers.
type Node struct {
	idOnce    sync.Once
	id        string
	name      string
	startedOn time.Time
	seq       uint64
	parent    *Node

	// elapsed is stored in nanoseconds and only ever added to.
	elapsed atomic.Int64

	// mu guards children and sorted. Each node has its own lock so
	// siblings never serialize on each other.
	mu       sync.Mutex
	children []*Node
	sorted   []*Node // nil when invalidated

	// groups maps label -> *atomic.Int64 (nanoseconds).
	groups sync.Map
}

// newNode builds a node and attaches it to parent when parent is non-nil.
func newNode(name string, parent *Node) *Node {
	n := &Node{
		name: name,
		// Wall clock only. Sibling order follows the system clock, so a clock
		// step while scopes are open can reorder them.
		startedOn: time.Now().Round(0),
		seq:       nodeSeq.Add(1),
		parent:    parent,
	}
	if parent != nil {
		parent.addChild(n)
	}
	return n
}

func (n *Node) addChild(child *Node) {
	n.mu.Lock()
	n.children = append(n.children, child)
	n.sorted = nil
	n.mu.Unlock()
}

func (n *Node) addElapsed(d time.Duration) {
	if d <= 0 {
		return
	}
	n.elapsed.Add(int64(d))
}

func (n *Node) addGroup(label string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	v, ok := n.groups.Load(label)
	if !ok {
		v, _ = n.groups.LoadOrStore(label, new(atomic.Int64))
	}
	v.(*atomic.Int64).Add(int64(d))
}

// ID returns a unique identifier for the node, suitable for exporters.
// It is generated on first use.
func (n *Node) ID() string {
	n.idOnce.Do(func() { n.id = uuid.NewString() })
	return n.id
}

// Name returns the materialized scope name.
func (n *Node) Name() string { return n.name }

// StartedOn returns the wall-clock time the scope was opened.
func (n *Node) StartedOn() time.Time { return n.startedOn }

// Elapsed returns the time accumulated so far. It is final once the
// owning handle has ended.
func (n *Node) Elapsed() time.Duration { return time.Duration(n.elapsed.Load()) }

// Parent returns the enclosing scope, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// IsRoot reports whether the node was opened with no ambient scope.
func (n *Node) IsRoot() bool { return n.parent == nil }

// Children returns the child scopes ordered by start time. Children that
// started at the same instant keep their creation order. The sorted view
// is cached until the next child is added; callers get their own copy.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sorted == nil && len(n.children) > 0 {
		sorted := make([]*Node, len(n.children))
		copy(sorted, n.children)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sorted[i], sorted[j]
			if !a.startedOn.Equal(b.startedOn) {
				return a.startedOn.Before(b.startedOn)
			}
			return a.seq < b.seq
		})
		n.sorted = sorted
	}

	out := make([]*Node, len(n.sorted))
	copy(out, n.sorted)
	return out
}

// Groups returns a snapshot of the labeled durations recorded on this node.
func (n *Node) Groups() map[string]time.Duration {
	out := make(map[string]time.Duration)
	n.groups.Range(func(key, value any) bool {
		out[key.(string)] = time.Duration(value.(*atomic.Int64).Load())
		return true
	})
	return out
}

// Group returns the accumulated duration for a single label.
func (n *Node) Group(label string) (time.Duration, bool) {
	v, ok := n.groups.Load(label)
	if !ok {
		return 0, false
	}
	return time.Duration(v.(*atomic.Int64).Load()), true
}

// Walk visits n and its descendants depth-first, children in start order.
// Returning false from fn skips the subtree below that node.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	if n == nil || fn == nil {
		return
	}
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(node *Node, depth int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, child := range n.Children() {
		child.walk(fn, depth+1)
	}
}

// String returns "name (Nms)".
func (n *Node) String() string {
	return fmt.Sprintf("%s (%dms)", n.name, n.Elapsed().Milliseconds())
}

// Root returns the root of the tree n belongs to.
func Root(n *Node) *Node {
	if n == nil {
		return nil
	}
	for n.parent != nil {
		n = n.parent
	}
	return n
}

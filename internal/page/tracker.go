// Package page tracks cursor-paginated search result windows. Edge order
// is authoritative on the server side; trackers never re-sort.
package page

import (
	"errors"
	"sync"
)

// ErrNoQuery is returned when AppendNext is called before any Replace.
var ErrNoQuery = errors.New("page: append without an active query")

// Edge pairs a result node with its server-opaque cursor.
type Edge[T any] struct {
	Node   T
	Cursor string
}

// Page is one window of results as returned by the server.
type Page[T any] struct {
	Edges       []Edge[T]
	HasNextPage bool
}

// Tracker maintains the result window of one search query: the ordered
// edge list, the query it is valid for, and the has-next-page flag.
type Tracker[T any] struct {
	mu      sync.RWMutex
	query   string
	active  bool
	edges   []Edge[T]
	hasNext bool
}

// NewTracker creates an empty tracker with no active query.
func NewTracker[T any]() *Tracker[T] {
	return &Tracker[T]{}
}

// Replace starts a new query, discarding the previous window entirely.
func (t *Tracker[T]) Replace(query string, p Page[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.query = query
	t.active = true
	t.edges = append([]Edge[T](nil), p.Edges...)
	t.hasNext = p.HasNextPage
}

// AppendNext extends the current window with the next page. It is an error
// to append before a query has been issued.
func (t *Tracker[T]) AppendNext(p Page[T]) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return ErrNoQuery
	}
	t.edges = append(t.edges, p.Edges...)
	t.hasNext = p.HasNextPage
	return nil
}

// Query returns the active query, if any.
func (t *Tracker[T]) Query() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.query, t.active
}

// Edges returns a snapshot of the current window in server order.
func (t *Tracker[T]) Edges() []Edge[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Edge[T](nil), t.edges...)
}

// Nodes returns the window's nodes in server order.
func (t *Tracker[T]) Nodes() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.edges))
	for _, e := range t.edges {
		out = append(out, e.Node)
	}
	return out
}

// LastCursor returns the cursor to resume from for the next page.
func (t *Tracker[T]) LastCursor() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.edges) == 0 {
		return "", false
	}
	return t.edges[len(t.edges)-1].Cursor, true
}

// HasNextPage reports whether a further page exists. It returns false, not
// unknown, when no query has ever been issued, so load-more affordances
// default to disabled.
func (t *Tracker[T]) HasNextPage() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.active {
		return false
	}
	return t.hasNext
}

// Clear drops the window and deactivates the tracker.
func (t *Tracker[T]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.query = ""
	t.active = false
	t.edges = nil
	t.hasNext = false
}

package page

import (
	"errors"
	"testing"
)

func TestHasNextPageDefaultsFalse(t *testing.T) {
	tr := NewTracker[string]()
	if tr.HasNextPage() {
		t.Error("HasNextPage = true with no query issued, want false")
	}
}

func TestReplaceThenAppend(t *testing.T) {
	tr := NewTracker[string]()

	tr.Replace("bob", Page[string]{
		Edges:       []Edge[string]{{Node: "a", Cursor: "c1"}, {Node: "b", Cursor: "c2"}},
		HasNextPage: true,
	})
	if err := tr.AppendNext(Page[string]{
		Edges:       []Edge[string]{{Node: "c", Cursor: "c3"}},
		HasNextPage: false,
	}); err != nil {
		t.Fatal(err)
	}

	nodes := tr.Nodes()
	want := []string{"a", "b", "c"}
	if len(nodes) != len(want) {
		t.Fatalf("len = %d, want %d", len(nodes), len(want))
	}
	for i, n := range nodes {
		if n != want[i] {
			t.Errorf("nodes[%d] = %q, want %q", i, n, want[i])
		}
	}
	if tr.HasNextPage() {
		t.Error("HasNextPage = true, want false after final page")
	}
	if cur, ok := tr.LastCursor(); !ok || cur != "c3" {
		t.Errorf("LastCursor = %q, %v, want c3", cur, ok)
	}
}

func TestAppendWithoutReplace(t *testing.T) {
	tr := NewTracker[string]()
	err := tr.AppendNext(Page[string]{})
	if !errors.Is(err, ErrNoQuery) {
		t.Errorf("err = %v, want ErrNoQuery", err)
	}
}

func TestReplaceDiscardsPreviousWindow(t *testing.T) {
	tr := NewTracker[string]()
	tr.Replace("bob", Page[string]{Edges: []Edge[string]{{Node: "a", Cursor: "c1"}}})
	tr.Replace("carol", Page[string]{Edges: []Edge[string]{{Node: "z", Cursor: "c9"}}, HasNextPage: true})

	nodes := tr.Nodes()
	if len(nodes) != 1 || nodes[0] != "z" {
		t.Errorf("nodes = %v, want [z]", nodes)
	}
	q, _ := tr.Query()
	if q != "carol" {
		t.Errorf("query = %q, want carol", q)
	}
	if !tr.HasNextPage() {
		t.Error("HasNextPage = false, want true")
	}
}

func TestClear(t *testing.T) {
	tr := NewTracker[string]()
	tr.Replace("bob", Page[string]{Edges: []Edge[string]{{Node: "a", Cursor: "c1"}}, HasNextPage: true})
	tr.Clear()

	if tr.HasNextPage() {
		t.Error("HasNextPage = true after Clear")
	}
	if _, ok := tr.Query(); ok {
		t.Error("query still active after Clear")
	}
	if len(tr.Edges()) != 0 {
		t.Error("edges not dropped by Clear")
	}
}

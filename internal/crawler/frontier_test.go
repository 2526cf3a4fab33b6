package crawler

import (
	"slices"
	"sort"
	"testing"
)

func TestStackFrontier(t *testing.T) {
	t.Parallel()

	f := NewStackFrontier()
	f.Push("a", "b", "c")
	f.Push("d", "e")

	var got []string
	for {
		u, ok := f.Pop()
		if !ok {
			break
		}
		got = append(got, u)
	}

	want := []string{"d", "e", "a", "b", "c"}
	if !slices.Equal(got, want) {
		t.Errorf("pop order = %v, want %v", got, want)
	}
	if f.Len() != 0 {
		t.Errorf("Len() = %d after draining", f.Len())
	}
}

func TestSetFrontier(t *testing.T) {
	t.Parallel()

	f := NewSetFrontier()
	f.Push("a", "b", "a")
	f.Push("c", "b")

	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}

	var got []string
	for {
		u, ok := f.Pop()
		if !ok {
			break
		}
		got = append(got, u)
	}
	sort.Strings(got)
	if want := []string{"a", "b", "c"}; !slices.Equal(got, want) {
		t.Errorf("popped = %v, want %v", got, want)
	}
}

func TestParseTraversal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Traversal
		wantErr bool
	}{
		{"", TraversalDepthFirst, false},
		{"depth-first", TraversalDepthFirst, false},
		{"recursive", TraversalDepthFirst, false},
		{"unordered", TraversalUnordered, false},
		{"iterative", TraversalUnordered, false},
		{"bfs", TraversalDepthFirst, true},
	}

	for _, tt := range tests {
		got, err := ParseTraversal(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTraversal(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTraversal(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, ok := NewFrontier(TraversalUnordered).(*SetFrontier); !ok {
		t.Error("NewFrontier(TraversalUnordered) should return a SetFrontier")
	}
	if _, ok := NewFrontier(TraversalDepthFirst).(*StackFrontier); !ok {
		t.Error("NewFrontier(TraversalDepthFirst) should return a StackFrontier")
	}
}

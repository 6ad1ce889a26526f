package changelog

import (
	"reflect"
	"testing"
	"time"

	"github.com/debemdeboas/the-folio/internal/block"
)

func TestLog(t *testing.T) {
	l := New()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	l.Append("b1", Added)
	l.Append("b2", Added)
	l.Append("b1", Updated)
	l.Append("b1", Deleted)

	if l.Len() != 4 {
		t.Fatalf("Expected 4 entries, got %d", l.Len())
	}

	t.Run("History survives deletion", func(t *testing.T) {
		var types []Type
		for _, c := range l.ForBlock("b1") {
			types = append(types, c.Type)
		}
		want := []Type{Added, Updated, Deleted}
		if !reflect.DeepEqual(types, want) {
			t.Errorf("Expected %v, got %v", want, types)
		}
	})

	t.Run("Entries returns a copy", func(t *testing.T) {
		entries := l.Entries()
		entries[0].Type = Deleted
		if l.Entries()[0].Type != Added {
			t.Error("Mutating the returned slice changed the log")
		}
	})

	t.Run("Timestamps", func(t *testing.T) {
		if !l.Entries()[0].At.Equal(fixed) {
			t.Errorf("Expected %v, got %v", fixed, l.Entries()[0].At)
		}
	})
}

func TestReduce(t *testing.T) {
	ch := func(id block.ID, tt Type) Change { return Change{BlockID: id, Type: tt} }

	tests := []struct {
		name      string
		entries   []Change
		persisted func(block.ID) bool
		want      []Entry
	}{
		{
			name:    "empty",
			entries: nil,
			want:    nil,
		},
		{
			name:    "added then updated is one create",
			entries: []Change{ch("a", Added), ch("a", Updated), ch("a", Updated)},
			want:    []Entry{{"a", OpCreate}},
		},
		{
			name:    "added then deleted is dropped",
			entries: []Change{ch("a", Added), ch("a", Updated), ch("a", Deleted)},
			want:    nil,
		},
		{
			name:    "updated persisted block",
			entries: []Change{ch("p", Updated)},
			want:    []Entry{{"p", OpUpdate}},
		},
		{
			name:    "updated then deleted persisted block",
			entries: []Change{ch("p", Updated), ch("p", Deleted)},
			want:    []Entry{{"p", OpDelete}},
		},
		{
			name:    "first appearance order",
			entries: []Change{ch("b", Added), ch("a", Updated), ch("b", Updated), ch("c", Added)},
			want:    []Entry{{"b", OpCreate}, {"a", OpUpdate}, {"c", OpCreate}},
		},
		{
			name:      "predicate overrides history",
			entries:   []Change{ch("a", Added), ch("a", Deleted)},
			persisted: func(id block.ID) bool { return id == "a" },
			want:      []Entry{{"a", OpDelete}},
		},
		{
			name:      "unpersisted update becomes create",
			entries:   []Change{ch("x", Updated)},
			persisted: func(block.ID) bool { return false },
			want:      []Entry{{"x", OpCreate}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(tt.entries, tt.persisted)
			if !reflect.DeepEqual(got.Entries, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got.Entries)
			}
		})
	}
}

func TestChangeSetSplit(t *testing.T) {
	cs := ChangeSet{Entries: []Entry{{"a", OpCreate}, {"b", OpDelete}, {"c", OpUpdate}}}

	if got := cs.Upserts(); !reflect.DeepEqual(got, []block.ID{"a", "c"}) {
		t.Errorf("Unexpected upserts %v", got)
	}
	if got := cs.Deletes(); !reflect.DeepEqual(got, []block.ID{"b"}) {
		t.Errorf("Unexpected deletes %v", got)
	}
	if cs.Empty() {
		t.Error("Expected non-empty change-set")
	}
}

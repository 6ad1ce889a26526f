package changelog

import "github.com/debemdeboas/the-folio/internal/block"

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Entry is the terminal state of one block after reduction.
type Entry struct {
	BlockID block.ID
	Op      Op
}

// ChangeSet holds at most one entry per block, in order of first appearance in the log.
type ChangeSet struct {
	Entries []Entry
}

func (cs ChangeSet) Empty() bool {
	return len(cs.Entries) == 0
}

func (cs ChangeSet) Upserts() []block.ID {
	var ids []block.ID
	for _, e := range cs.Entries {
		if e.Op != OpDelete {
			ids = append(ids, e.BlockID)
		}
	}
	return ids
}

func (cs ChangeSet) Deletes() []block.ID {
	var ids []block.ID
	for _, e := range cs.Entries {
		if e.Op == OpDelete {
			ids = append(ids, e.BlockID)
		}
	}
	return ids
}

// Reduce collapses a change history into a minimal change-set.
//
// persisted reports whether storage already holds a block. When it is nil a
// block counts as persisted iff its history has no Added event. A block whose
// last event is Deleted is dropped entirely when it was never persisted.
func Reduce(entries []Change, persisted func(block.ID) bool) ChangeSet {
	type state struct {
		last  Type
		added bool
	}

	var order []block.ID
	states := make(map[block.ID]*state)
	for _, c := range entries {
		s, ok := states[c.BlockID]
		if !ok {
			s = &state{}
			states[c.BlockID] = s
			order = append(order, c.BlockID)
		}
		s.last = c.Type
		if c.Type == Added {
			s.added = true
		}
	}

	var cs ChangeSet
	for _, id := range order {
		s := states[id]

		stored := !s.added
		if persisted != nil {
			stored = persisted(id)
		}

		switch {
		case s.last == Deleted && stored:
			cs.Entries = append(cs.Entries, Entry{BlockID: id, Op: OpDelete})
		case s.last == Deleted:
		case stored:
			cs.Entries = append(cs.Entries, Entry{BlockID: id, Op: OpUpdate})
		default:
			cs.Entries = append(cs.Entries, Entry{BlockID: id, Op: OpCreate})
		}
	}
	return cs
}

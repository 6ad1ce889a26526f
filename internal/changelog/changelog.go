// Package changelog records per-block mutations of an editing session and reduces
// them into the change-set sent to storage.
package changelog

import (
	"time"

	"github.com/debemdeboas/the-folio/internal/block"
)

type Type string

const (
	Added   Type = "added"
	Updated Type = "updated"
	Deleted Type = "deleted"
)

type Change struct {
	BlockID block.ID  `json:"blockId"`
	Type    Type      `json:"changeType"`
	At      time.Time `json:"at"`
}

// Log is an append-only history of changes. Entries are never rewritten, even
// after the block they refer to is gone.
type Log struct {
	entries []Change
	now     func() time.Time
}

func New() *Log {
	return &Log{now: time.Now}
}

func (l *Log) Append(id block.ID, t Type) Change {
	c := Change{BlockID: id, Type: t, At: l.now().UTC()}
	l.entries = append(l.entries, c)
	return c
}

func (l *Log) Entries() []Change {
	out := make([]Change, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	return len(l.entries)
}

// ForBlock returns the history of a single block in append order.
func (l *Log) ForBlock(id block.ID) []Change {
	var out []Change
	for _, c := range l.entries {
		if c.BlockID == id {
			out = append(out, c)
		}
	}
	return out
}

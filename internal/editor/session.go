// Package editor holds the in-memory state of one article editing session:
// the ordered block store, its change log and the pending image attachments.
//
// A Session has a single writer and does no locking or I/O. Uploads and
// persistence read its change log and attachments from the outside.
package editor

import (
	"errors"
	"fmt"
	"slices"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/changelog"
	"github.com/debemdeboas/the-folio/internal/model"
)

var (
	ErrBlockNotFound       = errors.New("block not found")
	ErrAnchorNotFound      = errors.New("anchor block not found")
	ErrKindMismatch        = block.ErrKindMismatch
	ErrInconsistentContent = errors.New("block order and block store disagree")
	ErrNoAttachment        = errors.New("no pending attachment")
	ErrSessionClosed       = errors.New("editing session is closed")
)

type Session struct {
	populated bool
	closed    bool

	order  []block.ID
	blocks map[block.ID]*block.Block

	changes     *changelog.Log
	attachments map[block.ID]*Attachment
}

func NewSession() *Session {
	return &Session{
		blocks:      make(map[block.ID]*block.Block),
		changes:     changelog.New(),
		attachments: make(map[block.ID]*Attachment),
	}
}

// Populate loads persisted content into the session. Only the first successful
// call has any effect, and none once an edit has been logged, so a late fetch
// can't clobber blocks already being edited.
func (s *Session) Populate(order []block.ID, blocks map[block.ID]block.Block) (bool, error) {
	if s.closed {
		return false, ErrSessionClosed
	}
	if s.populated || s.changes.Len() > 0 {
		return false, nil
	}
	if err := checkBijection(order, blocks); err != nil {
		return false, err
	}

	s.order = slices.Clone(order)
	s.blocks = make(map[block.ID]*block.Block, len(blocks))
	for id, b := range blocks {
		c := b.Clone()
		s.blocks[id] = &c
	}
	s.populated = true
	return true, nil
}

func (s *Session) PopulateArticle(a *model.Article) (bool, error) {
	return s.Populate(a.Order, a.Blocks)
}

func checkBijection(order []block.ID, blocks map[block.ID]block.Block) error {
	if len(order) != len(blocks) {
		return fmt.Errorf("%w: %d ids in order, %d blocks", ErrInconsistentContent, len(order), len(blocks))
	}

	seen := make(map[block.ID]struct{}, len(order))
	for _, id := range order {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s appears twice in order", ErrInconsistentContent, id)
		}
		seen[id] = struct{}{}

		b, ok := blocks[id]
		if !ok {
			return fmt.Errorf("%w: %s has no block", ErrInconsistentContent, id)
		}
		if b.ID != id || b.Value == nil {
			return fmt.Errorf("%w: %s is keyed under the wrong id or empty", ErrInconsistentContent, id)
		}
	}
	return nil
}

// InsertOptions positions and seeds a new block. An empty After appends.
type InsertOptions struct {
	After   block.ID
	Level   block.Level
	URL     string
	Caption *string
}

// Insert creates a block of kind and places it right after opts.After.
// An After that isn't part of the session is rejected without mutating anything.
func (s *Session) Insert(kind block.Kind, opts InsertOptions) (block.Block, error) {
	if s.closed {
		return block.Block{}, ErrSessionClosed
	}

	pos := len(s.order)
	if opts.After != "" {
		idx := slices.Index(s.order, opts.After)
		if idx < 0 {
			return block.Block{}, fmt.Errorf("%w: %s", ErrAnchorNotFound, opts.After)
		}
		pos = idx + 1
	}

	b, err := block.New(kind, block.Options{Level: opts.Level, URL: opts.URL, Caption: opts.Caption})
	if err != nil {
		return block.Block{}, err
	}
	if _, taken := s.blocks[b.ID]; taken {
		return block.Block{}, fmt.Errorf("%w: generated id %s already in use", ErrInconsistentContent, b.ID)
	}

	s.blocks[b.ID] = &b
	s.order = slices.Insert(s.order, pos, b.ID)
	s.changes.Append(b.ID, changelog.Added)
	return b.Clone(), nil
}

// Update applies a kind-matched patch to an existing block.
func (s *Session) Update(id block.ID, patch block.Patch) (block.Block, error) {
	if s.closed {
		return block.Block{}, ErrSessionClosed
	}

	b, ok := s.blocks[id]
	if !ok {
		return block.Block{}, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	if err := block.Apply(b, patch); err != nil {
		return block.Block{}, err
	}

	s.changes.Append(id, changelog.Updated)
	return b.Clone(), nil
}

// Remove deletes a block and releases its pending attachment, if any.
// Removing an unknown id changes nothing and reports ErrBlockNotFound.
func (s *Session) Remove(id block.ID) error {
	if s.closed {
		return ErrSessionClosed
	}

	idx := slices.Index(s.order, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}

	s.order = slices.Delete(s.order, idx, idx+1)
	delete(s.blocks, id)
	s.releaseAttachment(id)
	s.changes.Append(id, changelog.Deleted)
	return nil
}

func (s *Session) Populated() bool {
	return s.populated
}

func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) Len() int {
	return len(s.order)
}

func (s *Session) Order() []block.ID {
	return slices.Clone(s.order)
}

func (s *Session) Block(id block.ID) (block.Block, bool) {
	b, ok := s.blocks[id]
	if !ok {
		return block.Block{}, false
	}
	return b.Clone(), true
}

// Blocks returns copies of every block in display order.
func (s *Session) Blocks() []block.Block {
	out := make([]block.Block, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.blocks[id].Clone())
	}
	return out
}

// Changes returns the full, unreduced change history.
func (s *Session) Changes() []changelog.Change {
	return s.changes.Entries()
}

// Diff reduces the change history into the change-set for articleID.
// persisted reports whether storage already holds a block; see changelog.Reduce.
func (s *Session) Diff(articleID model.ArticleID, persisted func(block.ID) bool) model.ArticleChanges {
	cs := changelog.Reduce(s.changes.Entries(), persisted)

	changes := model.ArticleChanges{
		ArticleID: articleID,
		Order:     slices.Clone(s.order),
		Deletes:   cs.Deletes(),
	}
	for _, id := range cs.Upserts() {
		if b, ok := s.blocks[id]; ok {
			changes.Upserts = append(changes.Upserts, b.Clone())
		}
	}
	return changes
}

// Discard ends the session. Attachments are released and later mutations fail.
func (s *Session) Discard() {
	for id := range s.attachments {
		s.releaseAttachment(id)
	}
	s.order = nil
	s.blocks = make(map[block.ID]*block.Block)
	s.closed = true
}

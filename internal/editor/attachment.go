package editor

import (
	"fmt"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/changelog"
)

const PendingURLScheme = "pending://"

// Attachment is an image payload held locally until it is uploaded.
type Attachment struct {
	BlockID     block.ID
	Filename    string
	ContentType string
	Data        []byte
}

func PendingURL(id block.ID) string {
	return PendingURLScheme + string(id)
}

// AttachImage holds data as the pending payload of an image block and points the
// block at a local placeholder until the upload resolves.
func (s *Session) AttachImage(id block.ID, att Attachment) error {
	if s.closed {
		return ErrSessionClosed
	}

	b, ok := s.blocks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	img, ok := b.Value.(*block.Image)
	if !ok {
		return fmt.Errorf("%w: block %s is %s, attachments need an image", ErrKindMismatch, id, b.Kind())
	}

	s.releaseAttachment(id)
	att.BlockID = id
	s.attachments[id] = &att
	img.URL = PendingURL(id)
	s.changes.Append(id, changelog.Updated)
	return nil
}

// ResolveAttachment replaces the placeholder with the durable URL returned by
// the upload and drops the local payload.
func (s *Session) ResolveAttachment(id block.ID, url string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if _, ok := s.attachments[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNoAttachment, id)
	}

	b, ok := s.blocks[id]
	if !ok {
		s.releaseAttachment(id)
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}

	b.Value.(*block.Image).URL = url
	s.releaseAttachment(id)
	s.changes.Append(id, changelog.Updated)
	return nil
}

func (s *Session) Attachment(id block.ID) (Attachment, bool) {
	att, ok := s.attachments[id]
	if !ok {
		return Attachment{}, false
	}
	return *att, true
}

// PendingAttachments lists attachments in block display order.
func (s *Session) PendingAttachments() []Attachment {
	var out []Attachment
	for _, id := range s.order {
		if att, ok := s.attachments[id]; ok {
			out = append(out, *att)
		}
	}
	return out
}

func (s *Session) releaseAttachment(id block.ID) {
	if att, ok := s.attachments[id]; ok {
		att.Data = nil
		delete(s.attachments, id)
	}
}

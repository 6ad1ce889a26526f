package block

import (
	"errors"
	"fmt"
)

var ErrKindMismatch = errors.New("patch kind does not match block kind")

// Patch is a partial update that only carries fields valid for one kind.
// Dividers have no payload and therefore no patch.
type Patch interface {
	Kind() Kind
	apply(Value)
}

type ParagraphPatch struct {
	Text string
}

type HeadingPatch struct {
	Text  *string
	Level *Level
}

// ImagePatch sets the image reference and/or caption. An empty Caption clears it.
type ImagePatch struct {
	URL     *string
	Caption *string
}

func (ParagraphPatch) Kind() Kind { return KindParagraph }
func (HeadingPatch) Kind() Kind   { return KindHeading }
func (ImagePatch) Kind() Kind     { return KindImage }

func (p ParagraphPatch) apply(v Value) {
	v.(*Paragraph).Text = p.Text
}

func (p HeadingPatch) apply(v Value) {
	h := v.(*Heading)
	if p.Text != nil {
		h.Text = *p.Text
	}
	if p.Level != nil {
		h.Level = *p.Level
	}
}

func (p ImagePatch) apply(v Value) {
	img := v.(*Image)
	if p.URL != nil {
		img.URL = *p.URL
	}
	if p.Caption != nil {
		if *p.Caption == "" {
			img.Caption = nil
		} else {
			c := *p.Caption
			img.Caption = &c
		}
	}
}

// Apply mutates b in place. The kind check runs before any field is touched,
// so a mismatching patch leaves the block as it was.
func Apply(b *Block, p Patch) error {
	if p == nil {
		return fmt.Errorf("%w: nil patch", ErrKindMismatch)
	}
	if b.Kind() != p.Kind() {
		return fmt.Errorf("%w: block %s is %s, patch is %s", ErrKindMismatch, b.ID, b.Kind(), p.Kind())
	}
	p.apply(b.Value)
	return nil
}

// PatchFrom builds the patch that turns a fresh block of v's kind into a copy of v.
// Dividers have nothing to patch.
func PatchFrom(v Value) (Patch, bool) {
	switch v := v.(type) {
	case *Paragraph:
		return ParagraphPatch{Text: v.Text}, true
	case *Heading:
		text, level := v.Text, v.Level
		return HeadingPatch{Text: &text, Level: &level}, true
	case *Image:
		url := v.URL
		p := ImagePatch{URL: &url}
		if v.Caption != nil {
			c := *v.Caption
			p.Caption = &c
		}
		return p, true
	default:
		return nil, false
	}
}

package block

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	MaxTextLength    = 20000
	MaxCaptionLength = 300
)

var ErrInvalidBlock = errors.New("invalid block")

// Validate checks the constraints enforced when a block is persisted.
// Editing never calls it: half-written blocks are fine while a session is open.
func Validate(b Block) error {
	if b.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidBlock)
	}

	switch v := b.Value.(type) {
	case *Paragraph:
		if utf8.RuneCountInString(v.Text) > MaxTextLength {
			return fmt.Errorf("%w: %s: paragraph text exceeds %d characters", ErrInvalidBlock, b.ID, MaxTextLength)
		}
	case *Heading:
		if !v.Level.Valid() {
			return fmt.Errorf("%w: %s: heading variant %q", ErrInvalidBlock, b.ID, v.Level)
		}
		if utf8.RuneCountInString(v.Text) > MaxTextLength {
			return fmt.Errorf("%w: %s: heading text exceeds %d characters", ErrInvalidBlock, b.ID, MaxTextLength)
		}
	case *Divider:
	case *Image:
		if v.URL == "" {
			return fmt.Errorf("%w: %s: image has no URL", ErrInvalidBlock, b.ID)
		}
		if v.Caption != nil && utf8.RuneCountInString(*v.Caption) > MaxCaptionLength {
			return fmt.Errorf("%w: %s: caption exceeds %d characters", ErrInvalidBlock, b.ID, MaxCaptionLength)
		}
	default:
		return fmt.Errorf("%w: %s: no value", ErrInvalidBlock, b.ID)
	}
	return nil
}

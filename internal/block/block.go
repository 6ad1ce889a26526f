// Package block defines the closed set of article content blocks and their payloads.
package block

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Kind string

const (
	KindParagraph Kind = "paragraph"
	KindHeading   Kind = "heading"
	KindDivider   Kind = "divider"
	KindImage     Kind = "image"
)

// Kinds lists every block kind in the order a block picker offers them.
var Kinds = []Kind{KindParagraph, KindHeading, KindDivider, KindImage}

var ErrUnknownKind = errors.New("unknown block kind")

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

type ID string

const idPrefix = "blk"

// NewID returns a globally unique block identifier. IDs never depend on position.
func NewID() ID {
	return ID(idPrefix + "_" + uuid.New().String())
}

type Level string

const (
	H1 Level = "h1"
	H2 Level = "h2"
	H3 Level = "h3"
)

const DefaultLevel = H2

func (l Level) Valid() bool {
	return l == H1 || l == H2 || l == H3
}

// Value is the kind-specific payload of a block.
type Value interface {
	Kind() Kind
	clone() Value
}

type Paragraph struct {
	Text string `json:"text"`
}

type Heading struct {
	Text  string `json:"text"`
	Level Level  `json:"variant"`
}

type Divider struct{}

type Image struct {
	URL     string  `json:"URL"`
	Caption *string `json:"caption,omitempty"`
}

func (Paragraph) Kind() Kind { return KindParagraph }
func (Heading) Kind() Kind   { return KindHeading }
func (Divider) Kind() Kind   { return KindDivider }
func (Image) Kind() Kind     { return KindImage }

func (p *Paragraph) clone() Value { c := *p; return &c }
func (h *Heading) clone() Value   { c := *h; return &c }
func (d *Divider) clone() Value   { return &Divider{} }

func (i *Image) clone() Value {
	c := *i
	if i.Caption != nil {
		caption := *i.Caption
		c.Caption = &caption
	}
	return &c
}

type Block struct {
	ID    ID
	Value Value
}

func (b Block) Kind() Kind {
	if b.Value == nil {
		return ""
	}
	return b.Value.Kind()
}

// Clone returns a deep copy so callers can't mutate a store through it.
func (b Block) Clone() Block {
	if b.Value == nil {
		return Block{ID: b.ID}
	}
	return Block{ID: b.ID, Value: b.Value.clone()}
}

// Options carries the kind-specific construction arguments of New.
type Options struct {
	Level   Level
	URL     string
	Caption *string
}

// New builds a block of the given kind with a fresh ID and default payload.
func New(kind Kind, opts Options) (Block, error) {
	switch kind {
	case KindParagraph:
		return NewParagraph(), nil
	case KindHeading:
		return NewHeading(opts.Level), nil
	case KindDivider:
		return NewDivider(), nil
	case KindImage:
		return NewImage(opts.URL, opts.Caption), nil
	default:
		return Block{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func NewParagraph() Block {
	return Block{ID: NewID(), Value: &Paragraph{}}
}

func NewHeading(level Level) Block {
	if level == "" {
		level = DefaultLevel
	}
	return Block{ID: NewID(), Value: &Heading{Level: level}}
}

func NewDivider() Block {
	return Block{ID: NewID(), Value: &Divider{}}
}

func NewImage(url string, caption *string) Block {
	img := &Image{URL: url}
	if caption != nil {
		c := *caption
		img.Caption = &c
	}
	return Block{ID: NewID(), Value: img}
}

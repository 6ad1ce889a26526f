// Package model defines core data structures and types for the publishing application.
package model

import (
	"slices"
	"time"

	"github.com/debemdeboas/the-folio/internal/block"
)

type ArticleID string

type UserID string

const UntitledArticle = "Untitled"

type Article struct {
	ID ArticleID `json:"articleId"`

	Title    string   `json:"title"`
	Authors  []UserID `json:"authorIds"`
	IsPublic bool     `json:"isPublic"`

	Order  []block.ID               `json:"blockIds"`
	Blocks map[block.ID]block.Block `json:"blocks"`

	// Hash of the stored block content, used for change detection and ETags.
	ContentHash string `json:"contentHash"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"lastUpdatedAt"`
}

// OrderedBlocks returns the article's blocks in display order.
func (a *Article) OrderedBlocks() []block.Block {
	out := make([]block.Block, 0, len(a.Order))
	for _, id := range a.Order {
		if b, ok := a.Blocks[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Clone returns a deep copy, so cached articles can be handed out safely.
func (a *Article) Clone() *Article {
	c := *a
	c.Authors = slices.Clone(a.Authors)
	c.Order = slices.Clone(a.Order)
	c.Blocks = make(map[block.ID]block.Block, len(a.Blocks))
	for id, b := range a.Blocks {
		c.Blocks[id] = b.Clone()
	}
	return &c
}

func (a *Article) HasBlock(id block.ID) bool {
	_, ok := a.Blocks[id]
	return ok
}

func (a *Article) HasAuthor(id UserID) bool {
	return slices.Contains(a.Authors, id)
}

// DeriveTitle picks the text of the first non-empty heading.
func DeriveTitle(order []block.ID, blocks map[block.ID]block.Block) string {
	for _, id := range order {
		if h, ok := blocks[id].Value.(*block.Heading); ok && h.Text != "" {
			return h.Text
		}
	}
	return UntitledArticle
}

// ArticleChanges is a reduced change-set addressed to one article.
type ArticleChanges struct {
	ArticleID ArticleID
	Order     []block.ID
	Upserts   []block.Block
	Deletes   []block.ID
}

func (c ArticleChanges) Empty() bool {
	return len(c.Upserts) == 0 && len(c.Deletes) == 0
}

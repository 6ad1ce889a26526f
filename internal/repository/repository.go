// Package repository persists articles and applies editor change-sets to them.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/model"
	"github.com/debemdeboas/the-folio/internal/util"
)

var (
	ErrArticleNotFound   = errors.New("article not found")
	ErrInconsistentOrder = errors.New("block order does not match stored blocks")
)

type ListFilter struct {
	Author model.UserID
	Public *bool
}

type ArticleRepository interface {
	Init(ctx context.Context) error

	CreateArticle(ctx context.Context, author model.UserID) (*model.Article, error)
	GetArticle(ctx context.Context, id model.ArticleID) (*model.Article, error)
	ListArticles(ctx context.Context, filter ListFilter) ([]model.Article, error)
	SetVisibility(ctx context.Context, id model.ArticleID, public bool) error
	DeleteArticle(ctx context.Context, id model.ArticleID) error

	// ApplyChanges writes a reduced change-set and returns the new durable article.
	ApplyChanges(ctx context.Context, changes model.ArticleChanges) (*model.Article, error)

	// SetReloadNotifier sets a function that will be called when an article changes.
	SetReloadNotifier(notifier func(model.ArticleID))
}

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

// merge computes the block set that results from applying changes on top of
// current and checks it against the new order. Nothing is mutated.
func merge(current map[block.ID]block.Block, changes model.ArticleChanges) (map[block.ID]block.Block, error) {
	next := make(map[block.ID]block.Block, len(current)+len(changes.Upserts))
	for id, b := range current {
		next[id] = b
	}

	for _, id := range changes.Deletes {
		delete(next, id)
	}
	for _, b := range changes.Upserts {
		if err := block.Validate(b); err != nil {
			return nil, err
		}
		next[b.ID] = b
	}

	if len(changes.Order) != len(next) {
		return nil, fmt.Errorf("%w: %d ids in order, %d blocks", ErrInconsistentOrder, len(changes.Order), len(next))
	}
	seen := make(map[block.ID]struct{}, len(changes.Order))
	for _, id := range changes.Order {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInconsistentOrder, id)
		}
		seen[id] = struct{}{}
		if _, ok := next[id]; !ok {
			return nil, fmt.Errorf("%w: %s has no block", ErrInconsistentOrder, id)
		}
	}
	return next, nil
}

// contentHash hashes the ordered block values so identical content yields the same hash
// regardless of when or where it was stored.
func contentHash(order []block.ID, blocks map[block.ID]block.Block) (string, error) {
	ordered := make([]block.Block, 0, len(order))
	for _, id := range order {
		ordered = append(ordered, blocks[id])
	}
	raw, err := json.Marshal(ordered)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return util.ContentHash(raw), nil
}

func newArticleID() model.ArticleID {
	return model.ArticleID(uuid.New().String())
}

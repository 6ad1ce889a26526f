// Package persist carries an editing session across the sync boundary: pending
// uploads first, then the reduced change-set into the article repository.
package persist

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/editor"
	"github.com/debemdeboas/the-folio/internal/model"
	"github.com/debemdeboas/the-folio/internal/repository"
	"github.com/debemdeboas/the-folio/internal/upload"
)

var ErrUploadFailed = errors.New("attachment upload failed")

var persistLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	persistLogger = l
}

type Syncer struct {
	repo     repository.ArticleRepository
	uploader upload.Uploader
}

func NewSyncer(repo repository.ArticleRepository, uploader upload.Uploader) *Syncer {
	return &Syncer{
		repo:     repo,
		uploader: uploader,
	}
}

// Open loads an article into a new, populated editing session.
func (s *Syncer) Open(ctx context.Context, articleID model.ArticleID) (*model.Article, *editor.Session, error) {
	article, err := s.repo.GetArticle(ctx, articleID)
	if err != nil {
		return nil, nil, err
	}

	sess := editor.NewSession()
	if _, err := sess.PopulateArticle(article); err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", articleID, err)
	}
	return article, sess, nil
}

// Save uploads every pending attachment, then writes the session's reduced changes.
// A failed upload stops the save; attachments resolved before it stay resolved.
func (s *Syncer) Save(ctx context.Context, articleID model.ArticleID, sess *editor.Session) (*model.Article, error) {
	if sess.Closed() {
		return nil, editor.ErrSessionClosed
	}

	for _, att := range sess.PendingAttachments() {
		url, err := s.uploader.Upload(ctx, att)
		if err != nil {
			persistLogger.Error().Err(err).Str("block_id", string(att.BlockID)).Msg("Upload failed")
			return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, att.BlockID, err)
		}
		if err := sess.ResolveAttachment(att.BlockID, url); err != nil {
			return nil, err
		}
	}

	current, err := s.repo.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	changes := sess.Diff(articleID, current.HasBlock)
	if changes.Empty() && slices.Equal(changes.Order, current.Order) {
		persistLogger.Debug().Str("article_id", string(articleID)).Msg("Nothing to save")
		return current, nil
	}

	article, err := s.repo.ApplyChanges(ctx, changes)
	if err != nil {
		return nil, err
	}

	persistLogger.Info().
		Str("article_id", string(articleID)).
		Int("log_entries", len(sess.Changes())).
		Int("upserts", len(changes.Upserts)).
		Int("deletes", len(changes.Deletes)).
		Msg("Session saved")
	return article, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/cache"
	"github.com/debemdeboas/the-folio/internal/db"
	"github.com/debemdeboas/the-folio/internal/model"
	"github.com/debemdeboas/the-folio/internal/util"
	"github.com/debemdeboas/the-folio/internal/util/compression"
)

type DBArticleRepository struct { // implements ArticleRepository
	articleCache *cache.Cache[model.ArticleID, *model.Article]
	cacheEnabled bool

	// cacheGen counts writes to articleCache. Reads that missed only fill the
	// cache if no write happened while they were loading.
	cacheMu  sync.Mutex
	cacheGen uint64

	reloadNotifier func(model.ArticleID)

	db         db.DB
	compressor compression.Compressor

	now func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewDBArticleRepository(db db.DB, compressor compression.Compressor, cacheEnabled bool) *DBArticleRepository {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &DBArticleRepository{
		articleCache: cache.NewCache[model.ArticleID, *model.Article](),
		cacheEnabled: cacheEnabled,

		db: db,

		compressor: compressor,

		now: func() time.Time { return time.Now().UTC() },
	}
}

// Init warms the article cache.
func (r *DBArticleRepository) Init(ctx context.Context) error {
	if !r.cacheEnabled {
		return nil
	}

	gen := r.cacheGeneration()
	articles, err := r.ListArticles(ctx, ListFilter{})
	if err != nil {
		return fmt.Errorf("error initializing articles: %w", err)
	}
	for i := range articles {
		r.cacheFill(gen, &articles[i])
	}

	repoLogger.Info().Int("articles", len(articles)).Msg("Article cache warmed")
	return nil
}

func (r *DBArticleRepository) SetReloadNotifier(notifier func(model.ArticleID)) {
	r.reloadNotifier = notifier
}

func (r *DBArticleRepository) notify(id model.ArticleID) {
	if r.reloadNotifier != nil {
		go r.reloadNotifier(id)
	}
}

func (r *DBArticleRepository) CreateArticle(ctx context.Context, author model.UserID) (*model.Article, error) {
	now := r.now()
	article := &model.Article{
		ID:        newArticleID(),
		Title:     model.UntitledArticle,
		Order:     []block.ID{},
		Blocks:    map[block.ID]block.Block{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if author != "" {
		article.Authors = []model.UserID{author}
	}

	hash, err := contentHash(article.Order, article.Blocks)
	if err != nil {
		return nil, err
	}
	article.ContentHash = hash

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO articles (id, title, is_public, block_order, content_hash, created_at, updated_at) VALUES (?, ?, 0, '[]', ?, ?, ?)`,
			article.ID, article.Title, article.ContentHash, article.CreatedAt, article.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("error saving article: %w", err)
		}

		for _, a := range article.Authors {
			if _, err := tx.ExecContext(ctx, `INSERT INTO article_authors (article_id, user_id) VALUES (?, ?)`, article.ID, a); err != nil {
				return fmt.Errorf("error saving article author: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	repoLogger.Debug().Str("article_id", string(article.ID)).Str("author", string(author)).Msg("Article created")

	r.cacheStore(article)
	return article, nil
}

func (r *DBArticleRepository) GetArticle(ctx context.Context, id model.ArticleID) (*model.Article, error) {
	if r.cacheEnabled {
		if article, ok := r.articleCache.Get(id); ok {
			return article.Clone(), nil
		}
	}

	gen := r.cacheGeneration()
	article, err := r.loadArticle(ctx, r.db.Get(), id)
	if err != nil {
		return nil, err
	}

	r.cacheFill(gen, article)
	return article, nil
}

// ListArticles returns matching articles, most recently updated first.
func (r *DBArticleRepository) ListArticles(ctx context.Context, filter ListFilter) ([]model.Article, error) {
	query := `SELECT id FROM articles`
	var where []string
	var args []any
	if filter.Author != "" {
		where = append(where, `id IN (SELECT article_id FROM article_authors WHERE user_id = ?)`)
		args = append(args, filter.Author)
	}
	if filter.Public != nil {
		where = append(where, `is_public = ?`)
		args = append(args, *filter.Public)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY updated_at DESC, id`

	ids, err := r.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	articles := make([]model.Article, 0, len(ids))
	for _, id := range ids {
		article, err := r.GetArticle(ctx, id)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *article)
	}
	return articles, nil
}

// queryIDs drains the id rows before anything else runs, since an in-memory
// database only has one connection.
func (r *DBArticleRepository) queryIDs(ctx context.Context, query string, args ...any) ([]model.ArticleID, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying articles: %w", err)
	}
	defer rows.Close()

	var ids []model.ArticleID
	for rows.Next() {
		var id model.ArticleID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning article id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *DBArticleRepository) SetVisibility(ctx context.Context, id model.ArticleID, public bool) error {
	res, err := r.db.Exec(ctx, `UPDATE articles SET is_public = ? WHERE id = ?`, public, id)
	if err != nil {
		return fmt.Errorf("error updating visibility: %w", err)
	}
	if err := expectRow(res, id); err != nil {
		return err
	}

	r.cacheEvict(id)
	r.notify(id)
	return nil
}

func (r *DBArticleRepository) DeleteArticle(ctx context.Context, id model.ArticleID) error {
	res, err := r.db.Exec(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting article: %w", err)
	}
	if err := expectRow(res, id); err != nil {
		return err
	}

	repoLogger.Info().Str("article_id", string(id)).Msg("Article deleted")
	r.cacheEvict(id)
	r.notify(id)
	return nil
}

func (r *DBArticleRepository) cacheGeneration() uint64 {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	return r.cacheGen
}

// cacheFill caches an article read at generation gen, unless a write has landed since.
func (r *DBArticleRepository) cacheFill(gen uint64, article *model.Article) {
	if !r.cacheEnabled {
		return
	}
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if r.cacheGen != gen {
		return
	}
	// Init may run while other reads already filled fresher entries.
	if _, ok := r.articleCache.Get(article.ID); ok {
		return
	}
	r.articleCache.Set(article.ID, article.Clone())
}

func (r *DBArticleRepository) cacheStore(article *model.Article) {
	if !r.cacheEnabled {
		return
	}
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cacheGen++
	r.articleCache.Set(article.ID, article.Clone())
}

func (r *DBArticleRepository) cacheEvict(id model.ArticleID) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cacheGen++
	r.articleCache.Delete(id)
}

func expectRow(res sql.Result, id model.ArticleID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	return nil
}

func (r *DBArticleRepository) ApplyChanges(ctx context.Context, changes model.ArticleChanges) (*model.Article, error) {
	var updated *model.Article

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := r.loadArticle(ctx, tx, changes.ArticleID)
		if err != nil {
			return err
		}

		next, err := merge(current.Blocks, changes)
		if err != nil {
			return err
		}

		now := r.now()

		for _, id := range changes.Deletes {
			if !current.HasBlock(id) {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE id = ? AND article_id = ?`, id, current.ID); err != nil {
				return fmt.Errorf("error deleting block %s: %w", id, err)
			}
		}

		for _, b := range changes.Upserts {
			raw, err := json.Marshal(b.Value)
			if err != nil {
				return fmt.Errorf("error encoding block %s: %w", b.ID, err)
			}
			compressed, err := r.compressor.Compress(raw)
			if err != nil {
				return fmt.Errorf("error compressing block %s: %w", b.ID, err)
			}

			// Unchanged values keep their row and timestamp.
			_, err = tx.ExecContext(ctx,
				`INSERT INTO blocks (id, article_id, type, value, value_hash, updated_at) VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET type = excluded.type, value = excluded.value, value_hash = excluded.value_hash, updated_at = excluded.updated_at
				WHERE blocks.article_id = excluded.article_id AND blocks.value_hash != excluded.value_hash`,
				b.ID, current.ID, b.Kind(), compressed, util.ContentHash(raw), now,
			)
			if err != nil {
				return fmt.Errorf("error saving block %s: %w", b.ID, err)
			}
		}

		order, err := json.Marshal(changes.Order)
		if err != nil {
			return fmt.Errorf("error encoding block order: %w", err)
		}
		hash, err := contentHash(changes.Order, next)
		if err != nil {
			return err
		}
		title := model.DeriveTitle(changes.Order, next)

		_, err = tx.ExecContext(ctx,
			`UPDATE articles SET title = ?, block_order = ?, content_hash = ?, updated_at = ? WHERE id = ?`,
			title, string(order), hash, now, current.ID,
		)
		if err != nil {
			return fmt.Errorf("error saving article: %w", err)
		}

		current.Title = title
		current.Order = append([]block.ID{}, changes.Order...)
		current.Blocks = next
		current.ContentHash = hash
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	repoLogger.Info().
		Str("article_id", string(updated.ID)).
		Int("upserts", len(changes.Upserts)).
		Int("deletes", len(changes.Deletes)).
		Str("content_hash", updated.ContentHash).
		Msg("Article changes applied")

	r.cacheStore(updated)
	r.notify(updated.ID)

	return updated.Clone(), nil
}

func (r *DBArticleRepository) loadArticle(ctx context.Context, q querier, id model.ArticleID) (*model.Article, error) {
	article := &model.Article{ID: id}
	var order string

	row := q.QueryRowContext(ctx,
		`SELECT title, is_public, block_order, content_hash, created_at, updated_at FROM articles WHERE id = ?`, id)
	err := row.Scan(&article.Title, &article.IsPublic, &order, &article.ContentHash, &article.CreatedAt, &article.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning article: %w", err)
	}

	if err := json.Unmarshal([]byte(order), &article.Order); err != nil {
		return nil, fmt.Errorf("error decoding block order of %s: %w", id, err)
	}
	if article.Order == nil {
		article.Order = []block.ID{}
	}

	if article.Authors, err = r.loadAuthors(ctx, q, id); err != nil {
		return nil, err
	}
	if article.Blocks, err = r.loadBlocks(ctx, q, id); err != nil {
		return nil, err
	}
	return article, nil
}

func (r *DBArticleRepository) loadAuthors(ctx context.Context, q querier, id model.ArticleID) ([]model.UserID, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id FROM article_authors WHERE article_id = ? ORDER BY user_id`, id)
	if err != nil {
		return nil, fmt.Errorf("error querying authors: %w", err)
	}
	defer rows.Close()

	var authors []model.UserID
	for rows.Next() {
		var a model.UserID
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("error scanning author: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

func (r *DBArticleRepository) loadBlocks(ctx context.Context, q querier, id model.ArticleID) (map[block.ID]block.Block, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, type, value FROM blocks WHERE article_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("error querying blocks: %w", err)
	}
	defer rows.Close()

	blocks := make(map[block.ID]block.Block)
	for rows.Next() {
		var (
			b          block.Block
			kind       string
			compressed []byte
		)
		if err := rows.Scan(&b.ID, &kind, &compressed); err != nil {
			return nil, fmt.Errorf("error scanning block: %w", err)
		}

		raw, err := r.compressor.Decompress(compressed)
		if err != nil {
			return nil, fmt.Errorf("error decompressing block %s: %w", b.ID, err)
		}
		k, err := block.ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}
		if b.Value, err = block.DecodeValue(k, raw); err != nil {
			return nil, err
		}
		blocks[b.ID] = b
	}
	return blocks, rows.Err()
}

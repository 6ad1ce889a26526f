package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/model"
)

const articlesCollection = "articles"

var ErrConcurrentUpdate = errors.New("article changed during update")

type MongoArticleRepository struct { // implements ArticleRepository
	client   *mongo.Client
	articles *mongo.Collection

	reloadNotifier func(model.ArticleID)

	now func() time.Time
}

type articleDocument struct {
	ID          string                   `bson:"_id"`
	Title       string                   `bson:"title"`
	Authors     []string                 `bson:"authors"`
	IsPublic    bool                     `bson:"isPublic"`
	Order       []string                 `bson:"blockOrder"`
	Blocks      map[string]blockDocument `bson:"blocks"`
	ContentHash string                   `bson:"contentHash"`
	CreatedAt   time.Time                `bson:"createdAt"`
	UpdatedAt   time.Time                `bson:"updatedAt"`
}

// blockDocument keeps the JSON wire shape of a block value as a BSON document.
type blockDocument struct {
	Type  string `bson:"type"`
	Value bson.D `bson:"value"`
}

func NewMongoArticleRepository(uri, database string) (*MongoArticleRepository, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	return &MongoArticleRepository{
		client:   client,
		articles: client.Database(database).Collection(articlesCollection),

		// BSON dates only keep milliseconds.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}, nil
}

func (r *MongoArticleRepository) Init(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	_, err := r.articles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "authors", Value: 1}}},
		{Keys: bson.D{{Key: "isPublic", Value: 1}, {Key: "updatedAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	repoLogger.Info().Str("collection", r.articles.Name()).Msg("Mongo article repository ready")
	return nil
}

func (r *MongoArticleRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoArticleRepository) SetReloadNotifier(notifier func(model.ArticleID)) {
	r.reloadNotifier = notifier
}

func (r *MongoArticleRepository) notify(id model.ArticleID) {
	if r.reloadNotifier != nil {
		go r.reloadNotifier(id)
	}
}

func (r *MongoArticleRepository) CreateArticle(ctx context.Context, author model.UserID) (*model.Article, error) {
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

	doc, err := toDocument(article)
	if err != nil {
		return nil, err
	}
	if _, err := r.articles.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("error saving article: %w", err)
	}

	repoLogger.Debug().Str("article_id", string(article.ID)).Str("author", string(author)).Msg("Article created")
	return article, nil
}

func (r *MongoArticleRepository) GetArticle(ctx context.Context, id model.ArticleID) (*model.Article, error) {
	var doc articleDocument
	err := r.articles.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading article: %w", err)
	}
	return fromDocument(doc)
}

func (r *MongoArticleRepository) ListArticles(ctx context.Context, filter ListFilter) ([]model.Article, error) {
	query := bson.M{}
	if filter.Author != "" {
		query["authors"] = string(filter.Author)
	}
	if filter.Public != nil {
		query["isPublic"] = *filter.Public
	}

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.articles.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying articles: %w", err)
	}

	var docs []articleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error reading articles: %w", err)
	}

	articles := make([]model.Article, 0, len(docs))
	for _, doc := range docs {
		article, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *article)
	}
	return articles, nil
}

func (r *MongoArticleRepository) SetVisibility(ctx context.Context, id model.ArticleID, public bool) error {
	res, err := r.articles.UpdateOne(ctx, bson.M{"_id": string(id)}, bson.M{"$set": bson.M{"isPublic": public}})
	if err != nil {
		return fmt.Errorf("error updating visibility: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	r.notify(id)
	return nil
}

func (r *MongoArticleRepository) DeleteArticle(ctx context.Context, id model.ArticleID) error {
	res, err := r.articles.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return fmt.Errorf("error deleting article: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}

	repoLogger.Info().Str("article_id", string(id)).Msg("Article deleted")
	r.notify(id)
	return nil
}

// ApplyChanges writes the change-set as one update. The update only matches if the
// stored content hash is still the one the merge was computed against.
func (r *MongoArticleRepository) ApplyChanges(ctx context.Context, changes model.ArticleChanges) (*model.Article, error) {
	current, err := r.GetArticle(ctx, changes.ArticleID)
	if err != nil {
		return nil, err
	}

	next, err := merge(current.Blocks, changes)
	if err != nil {
		return nil, err
	}

	update, err := changeUpdate(current, changes, next)
	if err != nil {
		return nil, err
	}
	now := r.now()
	update.set["updatedAt"] = now

	doc := bson.M{"$set": update.set}
	if len(update.unset) > 0 {
		doc["$unset"] = update.unset
	}

	res, err := r.articles.UpdateOne(ctx,
		bson.M{"_id": string(current.ID), "contentHash": current.ContentHash},
		doc,
	)
	if err != nil {
		return nil, fmt.Errorf("error saving article: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConcurrentUpdate, current.ID)
	}

	current.Title = update.set["title"].(string)
	current.Order = append([]block.ID{}, changes.Order...)
	current.Blocks = next
	current.ContentHash = update.set["contentHash"].(string)
	current.UpdatedAt = now

	repoLogger.Info().
		Str("article_id", string(current.ID)).
		Int("upserts", len(changes.Upserts)).
		Int("deletes", len(changes.Deletes)).
		Str("content_hash", current.ContentHash).
		Msg("Article changes applied")

	r.notify(current.ID)
	return current, nil
}

type articleUpdate struct {
	set   bson.M
	unset bson.M
}

func changeUpdate(current *model.Article, changes model.ArticleChanges, next map[block.ID]block.Block) (articleUpdate, error) {
	hash, err := contentHash(changes.Order, next)
	if err != nil {
		return articleUpdate{}, err
	}

	order := make([]string, len(changes.Order))
	for i, id := range changes.Order {
		order[i] = string(id)
	}

	u := articleUpdate{
		set: bson.M{
			"title":       model.DeriveTitle(changes.Order, next),
			"blockOrder":  order,
			"contentHash": hash,
		},
		unset: bson.M{},
	}

	for _, b := range changes.Upserts {
		bd, err := toBlockDocument(b)
		if err != nil {
			return articleUpdate{}, err
		}
		u.set["blocks."+string(b.ID)] = bd
	}
	for _, id := range changes.Deletes {
		if _, kept := next[id]; kept || !current.HasBlock(id) {
			continue
		}
		u.unset["blocks."+string(id)] = ""
	}
	return u, nil
}

func toBlockDocument(b block.Block) (blockDocument, error) {
	raw, err := json.Marshal(b.Value)
	if err != nil {
		return blockDocument{}, fmt.Errorf("error encoding block %s: %w", b.ID, err)
	}
	var value bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &value); err != nil {
		return blockDocument{}, fmt.Errorf("error converting block %s: %w", b.ID, err)
	}
	return blockDocument{Type: string(b.Kind()), Value: value}, nil
}

func fromBlockDocument(id string, bd blockDocument) (block.Block, error) {
	kind, err := block.ParseKind(bd.Type)
	if err != nil {
		return block.Block{}, fmt.Errorf("block %s: %w", id, err)
	}

	value := bd.Value
	if value == nil {
		value = bson.D{}
	}
	raw, err := bson.MarshalExtJSON(value, false, false)
	if err != nil {
		return block.Block{}, fmt.Errorf("error converting block %s: %w", id, err)
	}

	v, err := block.DecodeValue(kind, raw)
	if err != nil {
		return block.Block{}, err
	}
	return block.Block{ID: block.ID(id), Value: v}, nil
}

func toDocument(a *model.Article) (articleDocument, error) {
	doc := articleDocument{
		ID:          string(a.ID),
		Title:       a.Title,
		Authors:     make([]string, len(a.Authors)),
		IsPublic:    a.IsPublic,
		Order:       make([]string, len(a.Order)),
		Blocks:      make(map[string]blockDocument, len(a.Blocks)),
		ContentHash: a.ContentHash,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	for i, author := range a.Authors {
		doc.Authors[i] = string(author)
	}
	for i, id := range a.Order {
		doc.Order[i] = string(id)
	}
	for id, b := range a.Blocks {
		bd, err := toBlockDocument(b)
		if err != nil {
			return articleDocument{}, err
		}
		doc.Blocks[string(id)] = bd
	}
	return doc, nil
}

func fromDocument(doc articleDocument) (*model.Article, error) {
	a := &model.Article{
		ID:          model.ArticleID(doc.ID),
		Title:       doc.Title,
		IsPublic:    doc.IsPublic,
		Order:       make([]block.ID, len(doc.Order)),
		Blocks:      make(map[block.ID]block.Block, len(doc.Blocks)),
		ContentHash: doc.ContentHash,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
	for _, author := range doc.Authors {
		a.Authors = append(a.Authors, model.UserID(author))
	}
	for i, id := range doc.Order {
		a.Order[i] = block.ID(id)
	}
	for id, bd := range doc.Blocks {
		b, err := fromBlockDocument(id, bd)
		if err != nil {
			return nil, err
		}
		a.Blocks[b.ID] = b
	}
	return a, nil
}

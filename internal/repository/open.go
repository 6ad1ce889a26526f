package repository

import (
	"context"

	"github.com/debemdeboas/the-folio/internal/config"
	"github.com/debemdeboas/the-folio/internal/db"
	"github.com/debemdeboas/the-folio/internal/util/compression"
)

// Open connects the storage backend named by cfg.Driver. The returned function
// releases it.
func Open(cfg config.StorageConfig) (ArticleRepository, func(context.Context) error, error) {
	switch cfg.Driver {
	case config.StorageMongo:
		repo, err := NewMongoArticleRepository(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		compressor, err := compression.New(cfg.Compression)
		if err != nil {
			return nil, nil, err
		}

		sqlite := db.NewSQLite(cfg.SQLitePath)
		if err := sqlite.InitDB(); err != nil {
			return nil, nil, err
		}
		repo := NewDBArticleRepository(sqlite, compressor, cfg.CacheArticles)
		return repo, func(context.Context) error { return sqlite.Close() }, nil
	}
}

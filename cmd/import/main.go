// Command import loads a directory of Markdown files as block articles.
package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/config"
	"github.com/debemdeboas/the-folio/internal/db"
	"github.com/debemdeboas/the-folio/internal/editor"
	"github.com/debemdeboas/the-folio/internal/logger"
	"github.com/debemdeboas/the-folio/internal/model"
	"github.com/debemdeboas/the-folio/internal/persist"
	"github.com/debemdeboas/the-folio/internal/render"
	"github.com/debemdeboas/the-folio/internal/repository"
	"github.com/debemdeboas/the-folio/internal/upload"
)

var importLogger zerolog.Logger

func main() {
	path := flag.String("path", "", "Path to the directory containing .md files")
	ownerID := flag.String("owner-id", "", "Author ID for the imported articles")
	public := flag.Bool("public", false, "Publish the imported articles")
	configPath := flag.String("config", config.DefaultConfigPath, "Path to the configuration file")
	flag.Parse()

	importLogger = logger.New("info", logger.FormatConsole)
	db.SetLogger(importLogger)
	repository.SetLogger(importLogger)
	upload.SetLogger(importLogger)
	persist.SetLogger(importLogger)

	if *path == "" || *ownerID == "" {
		importLogger.Fatal().Msg("Both --path and --owner-id flags are required")
	}
	if err := config.LoadConfig(*configPath); err != nil {
		importLogger.Fatal().Err(err).Msg("Invalid configuration")
	}
	cfg := config.AppConfig

	ctx := context.Background()
	repo, closeRepo, err := repository.Open(cfg.Storage)
	if err != nil {
		importLogger.Fatal().Err(err).Msg("Failed to open article storage")
	}
	defer closeRepo(ctx)
	if err := repo.Init(ctx); err != nil {
		importLogger.Fatal().Err(err).Msg("Failed to initialize article storage")
	}

	uploader, err := upload.FromConfig(ctx, cfg.Uploads)
	if err != nil {
		importLogger.Fatal().Err(err).Msg("Failed to configure uploads")
	}
	syncer := persist.NewSyncer(repo, uploader)

	files, err := os.ReadDir(*path)
	if err != nil {
		importLogger.Fatal().Err(err).Str("path", *path).Msg("Error reading directory")
	}

	imported := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".md") {
			continue
		}

		article, err := importFile(ctx, repo, syncer, filepath.Join(*path, file.Name()), model.UserID(*ownerID), *public)
		if err != nil {
			importLogger.Error().Err(err).Str("file", file.Name()).Msg("Error importing file")
			continue
		}
		imported++
		importLogger.Info().
			Str("file", file.Name()).
			Str("article_id", string(article.ID)).
			Str("title", article.Title).
			Int("blocks", len(article.Order)).
			Msg("Imported article")
	}
	importLogger.Info().Int("imported", imported).Msg("Import finished")
}

// importFile creates an article and fills it through an editing session, the same
// way an author would. Local images become pending attachments and are uploaded on save.
func importFile(ctx context.Context, repo repository.ArticleRepository, syncer *persist.Syncer, filePath string, owner model.UserID, public bool) (*model.Article, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	order, blocks := render.FromMarkdown(content)

	article, err := repo.CreateArticle(ctx, owner)
	if err != nil {
		return nil, err
	}

	_, sess, err := syncer.Open(ctx, article.ID)
	if err != nil {
		return nil, err
	}
	defer sess.Discard()

	dir := filepath.Dir(filePath)
	for _, id := range order {
		if err := insertBlock(sess, blocks[id], dir); err != nil {
			return nil, fmt.Errorf("block %s: %w", id, err)
		}
	}

	saved, err := syncer.Save(ctx, article.ID, sess)
	if err != nil {
		return nil, err
	}

	if public {
		if err := repo.SetVisibility(ctx, saved.ID, true); err != nil {
			return nil, err
		}
		saved.IsPublic = true
	}
	return saved, nil
}

func insertBlock(sess *editor.Session, src block.Block, dir string) error {
	opts := editor.InsertOptions{}
	if h, ok := src.Value.(*block.Heading); ok {
		opts.Level = h.Level
	}

	inserted, err := sess.Insert(src.Kind(), opts)
	if err != nil {
		return err
	}

	patch, ok := block.PatchFrom(src.Value)
	if !ok {
		return nil
	}
	if _, err := sess.Update(inserted.ID, patch); err != nil {
		return err
	}

	img, ok := src.Value.(*block.Image)
	if !ok || !isLocal(img.URL) {
		return nil
	}

	imgPath := filepath.Join(dir, filepath.FromSlash(img.URL))
	data, err := os.ReadFile(imgPath)
	if err != nil {
		importLogger.Warn().Err(err).Str("image", imgPath).Msg("Keeping unreadable image reference as is")
		return nil
	}
	return sess.AttachImage(inserted.ID, editor.Attachment{
		Filename:    filepath.Base(imgPath),
		ContentType: mime.TypeByExtension(filepath.Ext(imgPath)),
		Data:        data,
	})
}

func isLocal(url string) bool {
	if url == "" || strings.HasPrefix(url, "/") || strings.HasPrefix(url, "data:") {
		return false
	}
	return !strings.Contains(url, "://")
}

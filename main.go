package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/api"
	"github.com/debemdeboas/the-folio/internal/config"
	"github.com/debemdeboas/the-folio/internal/db"
	"github.com/debemdeboas/the-folio/internal/logger"
	"github.com/debemdeboas/the-folio/internal/persist"
	"github.com/debemdeboas/the-folio/internal/render"
	"github.com/debemdeboas/the-folio/internal/repository"
	"github.com/debemdeboas/the-folio/internal/routes"
	"github.com/debemdeboas/the-folio/internal/session"
	"github.com/debemdeboas/the-folio/internal/sse"
	"github.com/debemdeboas/the-folio/internal/upload"
)

var mainLogger zerolog.Logger

func setLoggers(l zerolog.Logger) {
	mainLogger = l
	config.SetLogger(l)
	db.SetLogger(l)
	repository.SetLogger(l)
	upload.SetLogger(l)
	session.SetLogger(l)
	persist.SetLogger(l)
	render.SetLogger(l)
	sse.SetLogger(l)
	api.SetLogger(l)
}

func main() {
	envErr := godotenv.Load()

	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}

	// Config errors are reported once the real logger exists.
	cfgErr := config.LoadConfig(configPath)
	if cfgErr != nil {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		config.AppConfig = cfg
	}
	cfg := config.AppConfig

	setLoggers(logger.New(cfg.Logging.Level, cfg.Logging.Format))
	if envErr != nil {
		mainLogger.Debug().Err(envErr).Msg("No .env file loaded")
	}
	if cfgErr != nil {
		mainLogger.Fatal().Err(cfgErr).Str("path", configPath).Msg("Invalid configuration")
	}

	ctx := context.Background()

	repo, closeRepo, err := repository.Open(cfg.Storage)
	if err != nil {
		mainLogger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open article storage")
	}
	defer closeRepo(ctx)

	uploader, err := upload.FromConfig(ctx, cfg.Uploads)
	if err != nil {
		mainLogger.Fatal().Err(err).Str("backend", cfg.Uploads.Backend).Msg("Failed to configure uploads")
	}

	sessions := session.NewManager()
	purger, err := session.StartPurger(sessions, cfg.Editor.PurgeSchedule, cfg.Editor.TTL())
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to start session purger")
	}
	defer purger.Stop()

	clients := sse.NewSSEClients()
	repo.SetReloadNotifier(clients.NotifyReload)

	go func() {
		if err := repo.Init(ctx); err != nil {
			mainLogger.Error().Err(err).Msg("Failed to initialize article repository")
		}
	}()

	handler := newHandler(cfg, repo, uploader, sessions, clients)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	mainLogger.Info().Str("addr", addr).Str("storage", cfg.Storage.Driver).Str("uploads", cfg.Uploads.Backend).Msg("Starting server")
	if err := http.ListenAndServe(addr, handler); err != nil {
		mainLogger.Fatal().Err(err).Msg("Server stopped")
	}
}

func newHandler(cfg *config.Config, repo repository.ArticleRepository, uploader upload.Uploader, sessions *session.Manager, clients *sse.SSEClients) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCType, "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow: /api/"))
	})

	// Local uploads are served by the app itself. S3 objects are served by the bucket.
	if fsUploader, ok := uploader.(*upload.FSUploader); ok {
		prefix := routes.UploadsPath
		if strings.HasPrefix(cfg.Uploads.BaseURL, "/") {
			prefix = strings.TrimSuffix(cfg.Uploads.BaseURL, "/") + "/"
		}
		mux.Handle(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(fsUploader.Dir()))))
	}

	mux.HandleFunc(routes.SSEPath, clients.EventsHandler)

	syncer := persist.NewSyncer(repo, uploader)
	api.NewHandler(repo, sessions, syncer, cfg.Render.SyntaxTheme, int64(cfg.Uploads.MaxBytes)).Register(mux)

	secured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			mux.ServeHTTP(w, r)
		} else {
			api.SecureHeaders(mux).ServeHTTP(w, r)
		}
	})

	return api.LogRequests(api.Recover(api.CacheIt(secured)))
}

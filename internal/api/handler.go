// Package api exposes articles and editing sessions over HTTP.
package api

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/config"
	"github.com/debemdeboas/the-folio/internal/editor"
	"github.com/debemdeboas/the-folio/internal/model"
	"github.com/debemdeboas/the-folio/internal/persist"
	"github.com/debemdeboas/the-folio/internal/repository"
	"github.com/debemdeboas/the-folio/internal/routes"
	"github.com/debemdeboas/the-folio/internal/session"
	"github.com/debemdeboas/the-folio/internal/upload"
)

//go:embed templates/*
var templates embed.FS

var apiLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	apiLogger = l
}

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("not an author of this article")
)

type Handler struct {
	repo     repository.ArticleRepository
	sessions *session.Manager
	syncer   *persist.Syncer

	syntaxTheme    string
	maxUploadBytes int64

	page *template.Template
}

func NewHandler(repo repository.ArticleRepository, sessions *session.Manager, syncer *persist.Syncer, syntaxTheme string, maxUploadBytes int64) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		syncer:   syncer,

		syntaxTheme:    syntaxTheme,
		maxUploadBytes: maxUploadBytes,

		page: template.Must(template.ParseFS(templates, "templates/article.html")),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(routes.APIArticles, h.serveArticles)
	mux.HandleFunc(routes.APIArticle, h.serveArticle)
	mux.HandleFunc(routes.APIArticleVisibility, h.setVisibility)
	mux.HandleFunc(routes.APIArticleSessions, h.openSession)
	mux.HandleFunc(routes.ArticlePage, h.serveArticlePage)
	mux.HandleFunc(routes.SyntaxCSS, h.serveSyntaxCSS)
	mux.HandleFunc(routes.SyntaxSet, h.setSyntaxTheme)
	mux.HandleFunc(routes.APISyntaxThemes, h.listSyntaxThemes)

	mux.HandleFunc(routes.APISession, h.serveSession)
	mux.HandleFunc(routes.APISessionBlocks, h.insertBlock)
	mux.HandleFunc(routes.APISessionBlock, h.serveBlock)
	mux.HandleFunc(routes.APISessionImage, h.attachImage)
	mux.HandleFunc(routes.APISessionSave, h.saveSession)
}

func author(r *http.Request) model.UserID {
	return model.UserID(r.Header.Get(config.HAuthorID))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		apiLogger.Error().Err(err).Msg("Error encoding response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrArticleNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, editor.ErrBlockNotFound):
		return http.StatusNotFound
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, editor.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, upload.ErrNotAnImage),
		errors.Is(err, upload.ErrTooLarge),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, persist.ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, repository.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, editor.ErrKindMismatch),
		errors.Is(err, editor.ErrAnchorNotFound),
		errors.Is(err, editor.ErrNoAttachment),
		errors.Is(err, editor.ErrInconsistentContent),
		errors.Is(err, block.ErrUnknownKind),
		errors.Is(err, block.ErrInvalidBlock),
		errors.Is(err, repository.ErrInconsistentOrder):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		apiLogger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		msg = http.StatusText(status)
	} else {
		apiLogger.Debug().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request rejected")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

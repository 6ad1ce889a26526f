package api

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/debemdeboas/the-folio/internal/config"
	"github.com/debemdeboas/the-folio/internal/model"
	"github.com/debemdeboas/the-folio/internal/render"
	"github.com/debemdeboas/the-folio/internal/repository"
	"github.com/debemdeboas/the-folio/internal/util"
)

func (h *Handler) serveArticles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := repository.ListFilter{Author: model.UserID(r.URL.Query().Get("author"))}
		if v := r.URL.Query().Get("public"); v != "" {
			public, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, r, errBadRequest)
				return
			}
			filter.Public = &public
		}

		articles, err := h.repo.ListArticles(r.Context(), filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, articles)
	case http.MethodPost:
		article, err := h.repo.CreateArticle(r.Context(), author(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, article)
	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveArticle(w http.ResponseWriter, r *http.Request) {
	id := model.ArticleID(r.PathValue("id"))

	switch r.Method {
	case http.MethodGet:
		article, err := h.repo.GetArticle(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set(config.HETag, `"`+article.ContentHash+`"`)
		writeJSON(w, http.StatusOK, article)
	case http.MethodDelete:
		if err := h.requireAuthor(r, id); err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.repo.DeleteArticle(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

// requireAuthor fails with errForbidden unless the requester authors the article.
func (h *Handler) requireAuthor(r *http.Request, id model.ArticleID) error {
	article, err := h.repo.GetArticle(r.Context(), id)
	if err != nil {
		return err
	}
	if !article.HasAuthor(author(r)) {
		return errForbidden
	}
	return nil
}

type visibilityRequest struct {
	IsPublic bool `json:"isPublic"`
}

func (h *Handler) setVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id := model.ArticleID(r.PathValue("id"))
	if err := h.requireAuthor(r, id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.repo.SetVisibility(r.Context(), id, req.IsPublic); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveArticlePage renders an article as HTML. Private articles are only shown to their authors.
func (h *Handler) serveArticlePage(w http.ResponseWriter, r *http.Request) {
	article, err := h.repo.GetArticle(r.Context(), model.ArticleID(r.PathValue("id")))
	if err != nil || (!article.IsPublic && !article.HasAuthor(author(r))) {
		http.NotFound(w, r)
		return
	}

	syntaxTheme := h.syntaxThemeFor(r)

	data := struct {
		Article     *model.Article
		Content     template.HTML
		SyntaxTheme string
	}{
		Article:     article,
		Content:     template.HTML(render.RenderArticle(article, syntaxTheme)),
		SyntaxTheme: syntaxTheme,
	}

	w.Header().Set(config.HCType, config.CTypeHTML)
	w.Header().Set(config.HETag, `"`+util.ContentHashString(article.ContentHash+syntaxTheme)+`"`)
	if err := h.page.Execute(w, data); err != nil {
		apiLogger.Error().Err(err).Str("article_id", string(article.ID)).Msg("Error rendering article page")
	}
}

// syntaxThemeFor picks the highlight theme: the "syntax" query parameter, then the
// reader's cookie, then the configured default. Unknown names are skipped.
func (h *Handler) syntaxThemeFor(r *http.Request) string {
	if t := r.URL.Query().Get("syntax"); render.IsSyntaxTheme(t) {
		return t
	}
	if cookie, err := r.Cookie(config.CookieSyntaxTheme); err == nil && render.IsSyntaxTheme(cookie.Value) {
		return cookie.Value
	}
	return h.syntaxTheme
}

func (h *Handler) setSyntaxTheme(w http.ResponseWriter, r *http.Request) {
	theme := r.PathValue("theme")
	if !render.IsSyntaxTheme(theme) {
		http.NotFound(w, r)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     config.CookieSyntaxTheme,
		Value:    theme,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSyntaxThemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, render.SyntaxThemes())
}

func (h *Handler) serveSyntaxCSS(w http.ResponseWriter, r *http.Request) {
	theme := r.PathValue("theme")
	if !render.IsSyntaxTheme(theme) {
		http.NotFound(w, r)
		return
	}
	css := []byte(render.SyntaxCSS(theme))
	w.Header().Set(config.HCType, config.CTypeCSS)
	w.Header().Set(config.HETag, `"`+util.ContentHash(css)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(css)
}

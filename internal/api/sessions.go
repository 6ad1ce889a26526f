package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/changelog"
	"github.com/debemdeboas/the-folio/internal/config"
	"github.com/debemdeboas/the-folio/internal/editor"
	"github.com/debemdeboas/the-folio/internal/model"
	"github.com/debemdeboas/the-folio/internal/session"
	"github.com/debemdeboas/the-folio/internal/upload"
)

type sessionView struct {
	SessionID          session.ID         `json:"sessionId"`
	ArticleID          model.ArticleID    `json:"articleId"`
	Order              []block.ID         `json:"blockIds"`
	Blocks             []block.Block      `json:"blocks"`
	Changes            []changelog.Change `json:"changes"`
	PendingAttachments []block.ID         `json:"pendingAttachments"`
}

func viewOf(e *session.Entry) sessionView {
	pending := make([]block.ID, 0)
	for _, att := range e.Session.PendingAttachments() {
		pending = append(pending, att.BlockID)
	}
	return sessionView{
		SessionID:          e.ID,
		ArticleID:          e.ArticleID,
		Order:              e.Session.Order(),
		Blocks:             e.Session.Blocks(),
		Changes:            e.Session.Changes(),
		PendingAttachments: pending,
	}
}

func sessionID(r *http.Request) session.ID {
	return session.ID(r.PathValue("sid"))
}

// openSession loads the article into a fresh editing session owned by the requesting author.
func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	articleID := model.ArticleID(r.PathValue("id"))
	article, sess, err := h.syncer.Open(r.Context(), articleID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	usr := author(r)
	if !article.HasAuthor(usr) {
		sess.Discard()
		writeError(w, r, errForbidden)
		return
	}

	id := h.sessions.Create(articleID, usr, sess)
	var view sessionView
	if err := h.sessions.With(id, func(e *session.Entry) error {
		view = viewOf(e)
		return nil
	}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// withSession runs fn on the request's session. Only the author who opened the
// session may use it.
func (h *Handler) withSession(r *http.Request, fn func(e *session.Entry) error) error {
	usr := author(r)
	return h.sessions.With(sessionID(r), func(e *session.Entry) error {
		if e.Author != usr {
			return errForbidden
		}
		return fn(e)
	})
}

// respondWith runs fn against the session and answers with the session's view.
func (h *Handler) respondWith(w http.ResponseWriter, r *http.Request, status int, fn func(e *session.Entry) error) {
	var view sessionView
	err := h.withSession(r, func(e *session.Entry) error {
		if fn != nil {
			if err := fn(e); err != nil {
				return err
			}
		}
		view = viewOf(e)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, view)
}

func (h *Handler) serveSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.respondWith(w, r, http.StatusOK, nil)
	case http.MethodDelete:
		if err := h.withSession(r, func(*session.Entry) error { return nil }); err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.sessions.Delete(sessionID(r)); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

type insertRequest struct {
	Type    block.Kind  `json:"type"`
	After   block.ID    `json:"after"`
	Variant block.Level `json:"variant"`
	URL     string      `json:"URL"`
	Caption *string     `json:"caption"`
}

func (h *Handler) insertBlock(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := block.ParseKind(string(req.Type))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var inserted block.Block
	err = h.withSession(r, func(e *session.Entry) error {
		inserted, err = e.Session.Insert(kind, editor.InsertOptions{
			After:   req.After,
			Level:   req.Variant,
			URL:     req.URL,
			Caption: req.Caption,
		})
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inserted)
}

type updateRequest struct {
	Type  block.Kind      `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (h *Handler) serveBlock(w http.ResponseWriter, r *http.Request) {
	id := block.ID(r.PathValue("bid"))

	switch r.Method {
	case http.MethodGet:
		var found block.Block
		err := h.withSession(r, func(e *session.Entry) error {
			b, ok := e.Session.Block(id)
			if !ok {
				return fmt.Errorf("%w: %s", editor.ErrBlockNotFound, id)
			}
			found = b
			return nil
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPatch:
		var req updateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		var updated block.Block
		err := h.withSession(r, func(e *session.Entry) error {
			// Without an explicit type the patch is read as the block's own kind.
			kind := req.Type
			if kind == "" {
				current, ok := e.Session.Block(id)
				if !ok {
					return fmt.Errorf("%w: %s", editor.ErrBlockNotFound, id)
				}
				kind = current.Kind()
			}

			patch, err := block.DecodePatch(kind, req.Value)
			if err != nil {
				return err
			}
			updated, err = e.Session.Update(id, patch)
			return err
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		err := h.withSession(r, func(e *session.Entry) error {
			return e.Session.Remove(id)
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

// attachImage reads the multipart "image" field and holds it as the block's pending upload.
func (h *Handler) attachImage(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+config.MaxMultipartMemory)
	}
	if err := r.ParseMultipartForm(config.MaxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, upload.ErrTooLarge)
			return
		}
		writeError(w, r, errors.Join(errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, errors.Join(errBadRequest, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, errors.Join(errBadRequest, err))
		return
	}
	if h.maxUploadBytes > 0 && int64(len(data)) > h.maxUploadBytes {
		writeError(w, r, upload.ErrTooLarge)
		return
	}
	if len(data) == 0 {
		writeError(w, r, upload.ErrNotAnImage)
		return
	}

	att := editor.Attachment{
		Filename:    header.Filename,
		ContentType: header.Header.Get(config.HCType),
		Data:        data,
	}
	h.respondWith(w, r, http.StatusOK, func(e *session.Entry) error {
		return e.Session.AttachImage(block.ID(r.PathValue("bid")), att)
	})
}

type saveResponse struct {
	Article *model.Article `json:"article"`
	Session sessionView    `json:"session"`
}

// saveSession syncs the session into storage and restarts it from the saved article,
// so the next save only carries what changed after this one.
func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request) {
	var resp saveResponse
	err := h.withSession(r, func(e *session.Entry) error {
		saved, err := h.syncer.Save(r.Context(), e.ArticleID, e.Session)
		if err != nil {
			return err
		}

		next := editor.NewSession()
		if _, err := next.PopulateArticle(saved); err != nil {
			return err
		}
		e.Replace(next)

		resp.Article = saved
		resp.Session = viewOf(e)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

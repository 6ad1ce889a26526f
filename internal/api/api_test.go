package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/db"
	"github.com/debemdeboas/the-folio/internal/editor"
	"github.com/debemdeboas/the-folio/internal/model"
	"github.com/debemdeboas/the-folio/internal/persist"
	"github.com/debemdeboas/the-folio/internal/repository"
	"github.com/debemdeboas/the-folio/internal/session"
	"github.com/debemdeboas/the-folio/internal/upload"
	"github.com/debemdeboas/the-folio/internal/util/compression"
)

func init() {
	l := zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
	SetLogger(l)
	db.SetLogger(l)
	repository.SetLogger(l)
	persist.SetLogger(l)
	session.SetLogger(l)
}

type fakeUploader struct {
	fail bool
}

func (f *fakeUploader) Upload(ctx context.Context, att editor.Attachment) (string, error) {
	if f.fail {
		return "", errors.New("bucket unreachable")
	}
	return "/uploads/" + string(att.BlockID) + ".jpg", nil
}

type testServer struct {
	mux      *http.ServeMux
	repo     *repository.DBArticleRepository
	uploader *fakeUploader
	article  *model.Article
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	sqlite := db.NewSQLite(db.MemoryPath)
	if err := sqlite.InitDB(); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	repo := repository.NewDBArticleRepository(sqlite, compression.ZstdCompressor{}, true)
	article, err := repo.CreateArticle(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Failed to create article: %v", err)
	}

	uploader := &fakeUploader{}
	h := NewHandler(repo, session.NewManager(), persist.NewSyncer(repo, uploader), "github", 1<<20)
	mux := http.NewServeMux()
	h.Register(mux)

	return &testServer{mux: mux, repo: repo, uploader: uploader, article: article}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return s.doAs(t, "alice", method, path, body)
}

func (s *testServer) doAs(t *testing.T, user, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Author-Id", user)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (s *testServer) openSession(t *testing.T) session.ID {
	t.Helper()
	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/articles/%s/sessions", s.article.ID), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 opening session, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[sessionView](t, rec).SessionID
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{repository.ErrArticleNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: blk-1", editor.ErrBlockNotFound), http.StatusNotFound},
		{session.ErrNotFound, http.StatusNotFound},
		{editor.ErrKindMismatch, http.StatusUnprocessableEntity},
		{editor.ErrAnchorNotFound, http.StatusUnprocessableEntity},
		{block.ErrUnknownKind, http.StatusUnprocessableEntity},
		{repository.ErrInconsistentOrder, http.StatusUnprocessableEntity},
		{editor.ErrSessionClosed, http.StatusGone},
		{upload.ErrTooLarge, http.StatusBadRequest},
		{errors.Join(errBadRequest, io.EOF), http.StatusBadRequest},
		{fmt.Errorf("%w: blk-1: %w", persist.ErrUploadFailed, io.ErrUnexpectedEOF), http.StatusBadGateway},
		{repository.ErrConcurrentUpdate, http.StatusConflict},
		{errForbidden, http.StatusForbidden},
		{io.ErrClosedPipe, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestArticles(t *testing.T) {
	s := setupServer(t)

	t.Run("Create", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/articles", "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d", rec.Code)
		}
		created := decode[model.Article](t, rec)
		if !created.HasAuthor("alice") {
			t.Errorf("Expected alice as author, got %v", created.Authors)
		}
	})

	t.Run("List", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/articles?author=alice", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if list := decode[[]model.Article](t, rec); len(list) != 2 {
			t.Errorf("Expected 2 articles, got %d", len(list))
		}

		rec = s.do(t, http.MethodGet, "/api/articles?public=maybe", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for a bad filter, got %d", rec.Code)
		}
	})

	t.Run("Get sets ETag", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/articles/"+string(s.article.ID), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if etag := rec.Header().Get("ETag"); etag != `"`+s.article.ContentHash+`"` {
			t.Errorf("Unexpected ETag %q", etag)
		}
	})

	t.Run("Visibility", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/articles/"+string(s.article.ID)+"/visibility", `{"isPublic":true}`)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", rec.Code)
		}
		rec = s.do(t, http.MethodGet, "/api/articles?public=true", "")
		if list := decode[[]model.Article](t, rec); len(list) != 1 || list[0].ID != s.article.ID {
			t.Errorf("Expected only the public article, got %v", list)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if rec := s.do(t, http.MethodGet, "/api/articles/missing", ""); rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
		if rec := s.do(t, http.MethodDelete, "/api/articles/missing", ""); rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 deleting, got %d", rec.Code)
		}
	})

	t.Run("Method not allowed", func(t *testing.T) {
		if rec := s.do(t, http.MethodPatch, "/api/articles", ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rec.Code)
		}
	})
}

func TestEditingSession(t *testing.T) {
	s := setupServer(t)
	sid := s.openSession(t)
	base := "/api/sessions/" + string(sid)

	rec := s.do(t, http.MethodPost, base+"/blocks", `{"type":"heading","variant":"h1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 inserting heading, got %d: %s", rec.Code, rec.Body.String())
	}
	heading := decode[block.Block](t, rec)

	rec = s.do(t, http.MethodPost, base+"/blocks", `{"type":"paragraph"}`)
	paragraph := decode[block.Block](t, rec)

	rec = s.do(t, http.MethodPost, base+"/blocks", fmt.Sprintf(`{"type":"divider","after":%q}`, heading.ID))
	divider := decode[block.Block](t, rec)

	t.Run("Insert after anchor", func(t *testing.T) {
		view := decode[sessionView](t, s.do(t, http.MethodGet, base, ""))
		want := []block.ID{heading.ID, divider.ID, paragraph.ID}
		if fmt.Sprint(view.Order) != fmt.Sprint(want) {
			t.Errorf("Expected order %v, got %v", want, view.Order)
		}
		if len(view.Changes) != 3 {
			t.Errorf("Expected 3 changes, got %d", len(view.Changes))
		}
	})

	t.Run("Insert rejects", func(t *testing.T) {
		if rec := s.do(t, http.MethodPost, base+"/blocks", `{"type":"paragraph","after":"nope"}`); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 for missing anchor, got %d", rec.Code)
		}
		if rec := s.do(t, http.MethodPost, base+"/blocks", `{"type":"table"}`); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 for unknown kind, got %d", rec.Code)
		}
		if rec := s.do(t, http.MethodPost, base+"/blocks", `{`); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for bad JSON, got %d", rec.Code)
		}
	})

	t.Run("Update", func(t *testing.T) {
		rec := s.do(t, http.MethodPatch, base+"/blocks/"+string(heading.ID), `{"value":{"text":"Launch notes"}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := decode[block.Block](t, rec).Value.(*block.Heading); got.Text != "Launch notes" || got.Level != block.H1 {
			t.Errorf("Unexpected heading %+v", got)
		}

		rec = s.do(t, http.MethodPatch, base+"/blocks/"+string(paragraph.ID), `{"type":"heading","value":{"text":"x"}}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 for a kind mismatch, got %d", rec.Code)
		}
		rec = s.do(t, http.MethodPatch, base+"/blocks/"+string(divider.ID), `{"value":{}}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 patching a divider, got %d", rec.Code)
		}
		rec = s.do(t, http.MethodPatch, base+"/blocks/missing", `{"value":{"text":"x"}}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if rec := s.do(t, http.MethodDelete, base+"/blocks/"+string(divider.ID), ""); rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", rec.Code)
		}
		if rec := s.do(t, http.MethodDelete, base+"/blocks/"+string(divider.ID), ""); rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 removing twice, got %d", rec.Code)
		}
	})

	t.Run("Save", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, base+"/save", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[saveResponse](t, rec)
		if resp.Article.Title != "Launch notes" {
			t.Errorf("Expected derived title, got %q", resp.Article.Title)
		}
		if len(resp.Session.Changes) != 0 {
			t.Errorf("Expected a fresh change log after save, got %d entries", len(resp.Session.Changes))
		}

		stored, err := s.repo.GetArticle(context.Background(), s.article.ID)
		if err != nil {
			t.Fatalf("GetArticle returned error: %v", err)
		}
		if len(stored.Order) != 2 || stored.Order[0] != heading.ID || stored.Order[1] != paragraph.ID {
			t.Errorf("Unexpected stored order %v", stored.Order)
		}
	})

	t.Run("Delete session", func(t *testing.T) {
		if rec := s.do(t, http.MethodDelete, base, ""); rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", rec.Code)
		}
		if rec := s.do(t, http.MethodGet, base, ""); rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 after delete, got %d", rec.Code)
		}
	})
}

func TestOpenSessionForbidden(t *testing.T) {
	s := setupServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/articles/"+string(s.article.ID)+"/sessions", nil)
	req.Header.Set("X-Author-Id", "mallory")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", rec.Code)
	}
}

func imageRequest(t *testing.T, path string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "photo.png")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPut, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Author-Id", "alice")
	return req
}

func TestArticleChangesRequireAuthor(t *testing.T) {
	s := setupServer(t)
	path := "/api/articles/" + string(s.article.ID)

	if rec := s.doAs(t, "mallory", http.MethodPut, path+"/visibility", `{"isPublic":true}`); rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 publishing someone else's article, got %d", rec.Code)
	}
	if rec := s.doAs(t, "mallory", http.MethodDelete, path, ""); rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 deleting someone else's article, got %d", rec.Code)
	}

	stored, err := s.repo.GetArticle(context.Background(), s.article.ID)
	if err != nil {
		t.Fatalf("Expected article to survive, got %v", err)
	}
	if stored.IsPublic {
		t.Error("Expected article to stay private")
	}

	if rec := s.do(t, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Errorf("Expected the author to delete, got %d", rec.Code)
	}
}

func TestSessionBelongsToItsAuthor(t *testing.T) {
	s := setupServer(t)
	sid := s.openSession(t)
	base := "/api/sessions/" + string(sid)

	for _, tc := range []struct {
		method, path, body string
	}{
		{http.MethodGet, base, ""},
		{http.MethodPost, base + "/blocks", `{"type":"divider"}`},
		{http.MethodPost, base + "/save", ""},
		{http.MethodDelete, base, ""},
	} {
		if rec := s.doAs(t, "mallory", tc.method, tc.path, tc.body); rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d", tc.method, tc.path, rec.Code)
		}
	}

	rec := s.do(t, http.MethodGet, base, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected session to survive, got %d", rec.Code)
	}
	if view := decode[sessionView](t, rec); len(view.Blocks) != 0 {
		t.Errorf("Expected no blocks from another author, got %v", view.Blocks)
	}
}

func TestAttachImage(t *testing.T) {
	s := setupServer(t)
	sid := s.openSession(t)
	base := "/api/sessions/" + string(sid)

	img := decode[block.Block](t, s.do(t, http.MethodPost, base+"/blocks", `{"type":"image"}`))
	para := decode[block.Block](t, s.do(t, http.MethodPost, base+"/blocks", `{"type":"paragraph"}`))

	t.Run("Pending until saved", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, imageRequest(t, base+"/blocks/"+string(img.ID)+"/image", []byte("png bytes")))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		view := decode[sessionView](t, rec)
		if len(view.PendingAttachments) != 1 || view.PendingAttachments[0] != img.ID {
			t.Errorf("Expected one pending attachment, got %v", view.PendingAttachments)
		}
	})

	t.Run("Rejects non-image blocks", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, imageRequest(t, base+"/blocks/"+string(para.ID)+"/image", []byte("png bytes")))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422, got %d", rec.Code)
		}
	})

	t.Run("Too large", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, imageRequest(t, base+"/blocks/"+string(img.ID)+"/image", make([]byte, 2<<20)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("Upload failure", func(t *testing.T) {
		s.uploader.fail = true
		defer func() { s.uploader.fail = false }()

		if rec := s.do(t, http.MethodPost, base+"/save", ""); rec.Code != http.StatusBadGateway {
			t.Errorf("Expected 502, got %d", rec.Code)
		}
	})

	t.Run("Save resolves", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, base+"/save", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[saveResponse](t, rec)
		if url := resp.Article.Blocks[img.ID].Value.(*block.Image).URL; url != "/uploads/"+string(img.ID)+".jpg" {
			t.Errorf("Expected durable URL, got %q", url)
		}
		if len(resp.Session.PendingAttachments) != 0 {
			t.Errorf("Expected no pending attachments, got %v", resp.Session.PendingAttachments)
		}
	})
}

func TestArticlePage(t *testing.T) {
	s := setupServer(t)
	sid := s.openSession(t)
	base := "/api/sessions/" + string(sid)

	h := decode[block.Block](t, s.do(t, http.MethodPost, base+"/blocks", `{"type":"heading"}`))
	s.do(t, http.MethodPatch, base+"/blocks/"+string(h.ID), `{"value":{"text":"Public <notes>"}}`)
	s.do(t, http.MethodPost, base+"/save", "")

	anon := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles/"+string(s.article.ID), nil))
		return rec
	}

	if rec := anon(); rec.Code != http.StatusNotFound {
		t.Errorf("Expected private article to be hidden, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/articles/"+string(s.article.ID), ""); rec.Code != http.StatusOK {
		t.Errorf("Expected authors to see private articles, got %d", rec.Code)
	}

	s.do(t, http.MethodPut, "/api/articles/"+string(s.article.ID)+"/visibility", `{"isPublic":true}`)
	rec := anon()
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Public &lt;notes&gt;") {
		t.Errorf("Expected escaped heading in page, got %s", body)
	}
	if !strings.Contains(body, "/syntax/github") {
		t.Error("Expected syntax stylesheet link")
	}
}

func TestSyntaxCSS(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodGet, "/syntax/monokai", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/css" {
		t.Errorf("Unexpected content type %q", ct)
	}
	if rec.Body.Len() == 0 || rec.Header().Get("ETag") == "" {
		t.Error("Expected CSS with an ETag")
	}
}

func TestMiddleware(t *testing.T) {
	h := LogRequests(SecureHeaders(CacheIt(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected status to pass through, got %d", rec.Code)
	}
	for header, want := range map[string]string{
		"X-Frame-Options":        "deny",
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-cache",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("Expected %s %q, got %q", header, want, got)
		}
	}
}

func TestSyntaxThemeSelection(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/api/syntax-themes", "")
	if themes := decode[[]string](t, rec); !slices.Contains(themes, "monokai") {
		t.Fatalf("Expected monokai among %d themes", len(themes))
	}

	if rec := s.do(t, http.MethodPost, "/syntax/not-a-theme", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown theme, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/syntax/monokai", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "monokai" {
		t.Fatalf("Expected syntax cookie, got %v", cookies)
	}

	s.do(t, http.MethodPut, "/api/articles/"+string(s.article.ID)+"/visibility", `{"isPublic":true}`)
	req := httptest.NewRequest(http.MethodGet, "/articles/"+string(s.article.ID), nil)
	req.AddCookie(cookies[0])
	page := httptest.NewRecorder()
	s.mux.ServeHTTP(page, req)
	if !strings.Contains(page.Body.String(), "/syntax/monokai") {
		t.Error("Expected the cookie theme to be used")
	}
}

func TestUnknownSyntaxThemeFallsBack(t *testing.T) {
	s := setupServer(t)
	s.do(t, http.MethodPut, "/api/articles/"+string(s.article.ID)+"/visibility", `{"isPublic":true}`)
	page := "/articles/" + string(s.article.ID)

	rec := s.do(t, http.MethodGet, page+"?syntax=bogus-1", "")
	if !strings.Contains(rec.Body.String(), "/syntax/github") {
		t.Error("Expected an unknown query theme to fall back to the default")
	}

	req := httptest.NewRequest(http.MethodGet, page, nil)
	req.AddCookie(&http.Cookie{Name: "syntax-theme", Value: "bogus-2"})
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "/syntax/github") {
		t.Error("Expected an unknown cookie theme to fall back to the default")
	}

	if rec := s.do(t, http.MethodGet, "/syntax/bogus-3", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown stylesheet, got %d", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

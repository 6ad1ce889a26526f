package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/config"
	"github.com/debemdeboas/the-folio/internal/db"
	"github.com/debemdeboas/the-folio/internal/repository"
	"github.com/debemdeboas/the-folio/internal/session"
	"github.com/debemdeboas/the-folio/internal/sse"
	"github.com/debemdeboas/the-folio/internal/upload"
)

func init() {
	setLoggers(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))
}

func setupHandler(t *testing.T) (http.Handler, string) {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.SQLitePath = db.MemoryPath
	cfg.Uploads.Dir = t.TempDir()

	ctx := context.Background()
	repo, closeRepo, err := repository.Open(cfg.Storage)
	if err != nil {
		t.Fatalf("repository.Open returned error: %v", err)
	}
	t.Cleanup(func() { closeRepo(ctx) })

	uploader, err := upload.FromConfig(ctx, cfg.Uploads)
	if err != nil {
		t.Fatalf("upload.FromConfig returned error: %v", err)
	}

	return newHandler(cfg, repo, uploader, session.NewManager(), sse.NewSSEClients()), cfg.Uploads.Dir
}

func TestRobots(t *testing.T) {
	h, _ := setupHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "User-agent") {
		t.Errorf("Unexpected robots.txt %q", rec.Body.String())
	}
	if rec.Header().Get("X-Frame-Options") != "" {
		t.Error("Expected robots.txt to skip security headers")
	}
}

func TestServesUploads(t *testing.T) {
	h, dir := setupHandler(t)
	if err := os.WriteFile(filepath.Join(dir, "blk_1-abc.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("Failed to write upload: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/blk_1-abc.jpg", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "jpeg" {
		t.Errorf("Unexpected body %q", body)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected security headers on uploads")
	}
}

func TestAPIWired(t *testing.T) {
	h, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/articles", nil)
	req.Header.Set(config.HAuthorID, "alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(config.HCacheControl) != "no-cache" {
		t.Error("Expected no-cache on API responses")
	}
}

func TestSSERequiresArticle(t *testing.T) {
	h, _ := setupHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sse", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

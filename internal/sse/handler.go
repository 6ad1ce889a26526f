package sse

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/config"
	"github.com/debemdeboas/the-folio/internal/model"
)

var sseLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	sseLogger = l
}

// EventsHandler streams reload events for the article named by the "article" query parameter.
func (s *SSEClients) EventsHandler(w http.ResponseWriter, r *http.Request) {
	articleID := r.URL.Query().Get("article")
	if articleID == "" {
		http.Error(w, "Article parameter required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set(config.HCType, "text/event-stream")
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Del("X-Content-Type-Options")

	fmt.Fprintf(w, "event: connected\ndata: SSE connection established\n\n")
	flusher.Flush()

	client := &Client{
		Msg:       make(chan string, 1),
		ArticleID: model.ArticleID(articleID),
	}
	s.Add(client)

	sseLogger.Debug().Str("article_id", articleID).Msg("New SSE client connected")

	defer func() {
		s.Delete(client)
		sseLogger.Debug().Str("article_id", articleID).Msg("SSE client disconnected")
	}()

	notify := r.Context().Done()
	for {
		select {
		case msg := <-client.Msg:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

// Package routes defines HTTP route constants for the application.
package routes

const (
	// SSE
	SSEPath = "/sse"

	// Uploaded images served from the filesystem backend
	UploadsPath = "/uploads/"

	// Pages
	ArticlePage = "GET /articles/{id}"
	SyntaxCSS   = "GET /syntax/{theme}"
	SyntaxSet   = "POST /syntax/{theme}"

	// Articles
	APIArticles          = "/api/articles"
	APIArticle           = "/api/articles/{id}"
	APIArticleVisibility = "PUT /api/articles/{id}/visibility"
	APIArticleSessions   = "POST /api/articles/{id}/sessions"
	APISyntaxThemes      = "GET /api/syntax-themes"

	// Editing sessions
	APISession       = "/api/sessions/{sid}"
	APISessionBlocks = "POST /api/sessions/{sid}/blocks"
	APISessionBlock  = "/api/sessions/{sid}/blocks/{bid}"
	APISessionImage  = "PUT /api/sessions/{sid}/blocks/{bid}/image"
	APISessionSave   = "POST /api/sessions/{sid}/save"
)

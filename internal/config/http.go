package config

const (
	HCType        = "Content-Type"
	HETag         = "ETag"
	HCacheControl = "Cache-Control"
	HAuthorID     = "X-Author-Id"

	CTypeJSON = "application/json"
	CTypeHTML = "text/html; charset=utf-8"
	CTypeCSS  = "text/css"
)

const CookieSyntaxTheme = "syntax-theme"

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

// MaxMultipartMemory bounds the in-memory part of an image upload request.
const MaxMultipartMemory = 32 << 20

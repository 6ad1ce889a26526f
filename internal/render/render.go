// Package render turns article blocks into HTML and Markdown documents into blocks.
package render

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"io"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	md_html "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/block"
	"github.com/debemdeboas/the-folio/internal/cache"
	"github.com/debemdeboas/the-folio/internal/model"
)

const paragraphExtensions = parser.FencedCode | parser.Autolink | parser.Strikethrough |
	parser.BackslashLineBreak | parser.SuperSubscript | parser.NoIntraEmphasis | parser.Tables

var renderLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	renderLogger = l
}

func formatter() *chromahtml.Formatter {
	return chromahtml.New(
		chromahtml.WithClasses(true),
		chromahtml.TabWidth(4),
		chromahtml.WrapLongLines(true),
	)
}

func HighlightCode(code, language, highlightTheme string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return html.EscapeString(code)
	}

	style := styles.Get(highlightTheme)
	var buf strings.Builder
	if err := formatter().Format(&buf, style, iterator); err != nil {
		return html.EscapeString(code)
	}
	return buf.String()
}

// SyntaxThemes lists the available chroma themes, sorted by name.
func SyntaxThemes() []string {
	names := styles.Names()
	slices.Sort(names)
	return names
}

func IsSyntaxTheme(name string) bool {
	_, ok := styles.Registry[name]
	return ok
}

// themeName maps unknown themes to chroma's fallback so cache keys stay bounded.
func themeName(highlightTheme string) string {
	if IsSyntaxTheme(highlightTheme) {
		return highlightTheme
	}
	return styles.Fallback.Name
}

// SyntaxCSS returns the stylesheet for highlighted code in the given chroma theme.
func SyntaxCSS(highlightTheme string) template.CSS {
	highlightTheme = themeName(highlightTheme)
	if css, ok := cache.GetSyntaxCSS(highlightTheme); ok {
		return css
	}

	var buf strings.Builder
	style := styles.Get(highlightTheme)

	bg := style.Get(chroma.Background)
	if !bg.Colour.IsSet() {
		// Themes without a text colour need one that reads on their background.
		luminance := (0.299*float64(bg.Background.Red()) +
			0.587*float64(bg.Background.Green()) +
			0.114*float64(bg.Background.Blue())) / 255
		if luminance > 0.5 {
			buf.WriteString(".chroma { color: #181818; }\n")
		}
	}

	if err := formatter().WriteCSS(&buf, style); err != nil {
		renderLogger.Error().Err(err).Str("theme", highlightTheme).Msg("Error writing syntax CSS")
	}
	css := template.CSS(buf.String())
	cache.SetSyntaxCSS(highlightTheme, css)
	return css
}

// safeLink allows relative links, fragments and http(s)/mailto. The destination is
// checked as the browser will see it, after entity decoding.
func safeLink(dest []byte) bool {
	link := strings.TrimSpace(html.UnescapeString(string(dest)))
	if link == "" || strings.HasPrefix(link, "#") {
		return true
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
		return true
	}
	return false
}

// RenderMarkdown renders the Markdown text of a paragraph block. Raw HTML is dropped
// and links to anything but web, mail and relative targets are rendered as text.
func RenderMarkdown(md []byte, highlightTheme string) []byte {
	opts := md_html.RendererOptions{
		Flags: md_html.CommonFlags | md_html.HrefTargetBlank | md_html.SkipHTML |
			md_html.Safelink | md_html.NofollowLinks | md_html.NoopenerLinks,
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if code, ok := node.(*ast.CodeBlock); ok && entering {
				var lang string
				if info := code.Info; info != nil {
					lang = string(info)
				}
				highlighted := HighlightCode(string(code.Literal), lang, highlightTheme)
				fmt.Fprintf(w, "<div class=\"highlight\">%s</div>", highlighted)
				return ast.GoToNext, true
			}
			return ast.GoToNext, false
		},
	}

	doc := parser.NewWithExtensions(paragraphExtensions).Parse(md)
	renderer := md_html.NewRenderer(opts)
	renderer.IsSafeURLOverride = safeLink
	return markdown.Render(doc, renderer)
}

// RenderBlocks renders blocks in the order given.
func RenderBlocks(blocks []block.Block, highlightTheme string) []byte {
	var buf bytes.Buffer
	for _, b := range blocks {
		renderBlock(&buf, b, highlightTheme)
	}
	return buf.Bytes()
}

func renderBlock(buf *bytes.Buffer, b block.Block, highlightTheme string) {
	id := html.EscapeString(string(b.ID))

	switch v := b.Value.(type) {
	case *block.Paragraph:
		if strings.TrimSpace(v.Text) == "" {
			return
		}
		fmt.Fprintf(buf, "<section class=\"block-paragraph\" id=\"%s\">\n", id)
		buf.Write(RenderMarkdown([]byte(v.Text), highlightTheme))
		buf.WriteString("</section>\n")
	case *block.Heading:
		level := v.Level
		if !level.Valid() {
			level = block.DefaultLevel
		}
		fmt.Fprintf(buf, "<%s id=\"%s\">%s</%s>\n", level, id, html.EscapeString(v.Text), level)
	case *block.Divider:
		fmt.Fprintf(buf, "<hr id=\"%s\">\n", id)
	case *block.Image:
		fmt.Fprintf(buf, "<figure id=\"%s\">\n<img src=\"%s\"", id, html.EscapeString(v.URL))
		if v.Caption != nil {
			fmt.Fprintf(buf, " alt=\"%s\">\n<figcaption>%s</figcaption>\n", html.EscapeString(*v.Caption), html.EscapeString(*v.Caption))
		} else {
			buf.WriteString(" alt=\"\">\n")
		}
		buf.WriteString("</figure>\n")
	default:
		renderLogger.Warn().Str("block_id", string(b.ID)).Msg("Skipping block without a value")
	}
}

// Mutex to protect the check-render-set operation in RenderArticle
var renderCacheMutex sync.Mutex

// RenderArticle renders an article's blocks, reusing earlier output for the same
// content hash and theme.
func RenderArticle(article *model.Article, highlightTheme string) []byte {
	highlightTheme = themeName(highlightTheme)
	if article.ContentHash == "" {
		renderLogger.Warn().Str("article_id", string(article.ID)).Msg("Content hash is empty, skipping cache check")
		return RenderBlocks(article.OrderedBlocks(), highlightTheme)
	}

	if cached, found := cache.GetRenderedArticle(article.ContentHash, highlightTheme); found {
		renderLogger.Debug().Str("contentHash", article.ContentHash).Str("highlightTheme", highlightTheme).Msg("Cache hit for rendered article")
		return cached.HTML
	}

	renderCacheMutex.Lock()
	defer renderCacheMutex.Unlock()

	if cached, found := cache.GetRenderedArticle(article.ContentHash, highlightTheme); found {
		return cached.HTML
	}

	renderLogger.Debug().Str("contentHash", article.ContentHash).Str("highlightTheme", highlightTheme).Msg("Cache miss for rendered article")
	out := RenderBlocks(article.OrderedBlocks(), highlightTheme)
	cache.SetRenderedArticle(article.ContentHash, highlightTheme, out)
	return out
}

// WarmCache pre-renders an article asynchronously.
func WarmCache(article *model.Article, highlightTheme string) {
	go func() {
		RenderArticle(article, highlightTheme)
		renderLogger.Debug().Str("article_id", string(article.ID)).Msg("Cache warming completed")
	}()
}

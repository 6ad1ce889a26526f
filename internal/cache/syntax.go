package cache

import "html/template"

// Stylesheets per chroma theme, keyed by the exact theme name.
var syntaxCache = NewCache[string, template.CSS]()

func GetSyntaxCSS(theme string) (template.CSS, bool) {
	return syntaxCache.Get(theme)
}

func SetSyntaxCSS(theme string, css template.CSS) {
	syntaxCache.Set(theme, css)
}

func ClearSyntaxCSS() {
	syntaxCache.Clear()
}

func SyntaxCSSLen() int {
	return syntaxCache.Len()
}

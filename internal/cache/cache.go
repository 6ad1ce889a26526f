// Package cache provides a thread-safe generic cache and the rendered article cache.
package cache

import "sync"

type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]V),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.items[key]
	return val, ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]V)
}

// RenderedArticle is the cached HTML of an article's blocks.
type RenderedArticle struct {
	HTML []byte
}

var renderedArticleCache = NewCache[string, *RenderedArticle]()

func GetRenderedArticle(contentHash, syntaxTheme string) (*RenderedArticle, bool) {
	return renderedArticleCache.Get(contentHash + ":" + syntaxTheme)
}

func SetRenderedArticle(contentHash, syntaxTheme string, html []byte) {
	renderedArticleCache.Set(contentHash+":"+syntaxTheme, &RenderedArticle{HTML: html})
}

func ClearRenderedArticles() {
	renderedArticleCache.Clear()
}

func RenderedArticlesLen() int {
	return renderedArticleCache.Len()
}

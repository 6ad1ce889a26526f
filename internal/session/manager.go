// Package session keeps the open editing sessions of the server, one editor.Session
// per session ID, and serializes access to each of them.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/the-folio/internal/editor"
	"github.com/debemdeboas/the-folio/internal/model"
)

type ID string

var ErrNotFound = errors.New("editing session not found")

var sessionLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	sessionLogger = l
}

type Info struct {
	ID        ID
	ArticleID model.ArticleID
	Author    model.UserID

	CreatedAt time.Time
	LastUsed  time.Time
}

// Entry is one open session. Its fields may only be touched inside Manager.With.
type Entry struct {
	mu sync.Mutex

	Info
	Session *editor.Session
}

// Replace swaps in a fresh editor session, discarding the current one.
func (e *Entry) Replace(s *editor.Session) {
	if e.Session != nil && e.Session != s {
		e.Session.Discard()
	}
	e.Session = s
}

type Manager struct {
	sessions sync.Map // ID -> *Entry

	now func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		now: time.Now,
	}
}

func (m *Manager) Create(articleID model.ArticleID, author model.UserID, s *editor.Session) ID {
	now := m.now()
	id := ID(uuid.New().String())
	m.sessions.Store(id, &Entry{
		Info: Info{
			ID:        id,
			ArticleID: articleID,
			Author:    author,
			CreatedAt: now,
			LastUsed:  now,
		},
		Session: s,
	})

	sessionLogger.Debug().Str("session_id", string(id)).Str("article_id", string(articleID)).Msg("Session opened")
	return id
}

// With runs fn while holding the session's lock. Calls for the same session never
// overlap; calls for different sessions run concurrently.
func (m *Manager) With(id ID, fn func(e *Entry) error) error {
	v, ok := m.sessions.Load(id)
	if !ok {
		return ErrNotFound
	}
	e := v.(*Entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Deleted while we were waiting for the lock.
	if current, ok := m.sessions.Load(id); !ok || current != e {
		return ErrNotFound
	}

	e.LastUsed = m.now()
	return fn(e)
}

// Get reports the session's metadata without its editor state.
func (m *Manager) Get(id ID) (Info, error) {
	var info Info
	err := m.With(id, func(e *Entry) error {
		info = e.Info
		return nil
	})
	return info, err
}

// Delete discards the session and everything pending in it.
func (m *Manager) Delete(id ID) error {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return ErrNotFound
	}
	e := v.(*Entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.Session.Discard()

	sessionLogger.Debug().Str("session_id", string(id)).Msg("Session discarded")
	return nil
}

// PurgeIdle discards sessions unused for longer than maxIdle. Sessions that are
// busy right now are skipped.
func (m *Manager) PurgeIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)
	purged := 0

	m.sessions.Range(func(key, value any) bool {
		e := value.(*Entry)
		if !e.mu.TryLock() {
			return true
		}
		defer e.mu.Unlock()

		if e.LastUsed.Before(cutoff) && m.sessions.CompareAndDelete(key, e) {
			e.Session.Discard()
			purged++
		}
		return true
	})

	if purged > 0 {
		sessionLogger.Info().Int("purged", purged).Dur("max_idle", maxIdle).Msg("Idle sessions purged")
	}
	return purged
}

func (m *Manager) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

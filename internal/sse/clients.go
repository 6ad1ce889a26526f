// Package sse provides Server-Sent Events client management for real-time communication.
package sse

import (
	"sync"

	"github.com/debemdeboas/the-folio/internal/model"
)

const ReloadMessage = "reload"

type Client struct {
	Msg       chan string
	ArticleID model.ArticleID
}

type SSEClients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewSSEClients() *SSEClients {
	return &SSEClients{
		clients: make(map[*Client]bool),
	}
}

func (s *SSEClients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *SSEClients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	close(client.Msg)
}

func (s *SSEClients) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends msg to every reader of articleID. Slow clients miss the message
// instead of blocking the sender.
func (s *SSEClients) Broadcast(articleID model.ArticleID, msg string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if client.ArticleID == articleID {
			select {
			case client.Msg <- msg:
			default:
			}
		}
	}
}

// NotifyReload is meant to be installed as a repository reload notifier.
func (s *SSEClients) NotifyReload(articleID model.ArticleID) {
	s.Broadcast(articleID, ReloadMessage)
}

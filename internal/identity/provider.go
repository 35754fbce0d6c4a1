package identity

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/sandeepkv93/remindd/internal/feed"
)

// Provider exposes the signed-in identity. An empty string means signed out.
type Provider interface {
	Current() string
	Watch(ctx context.Context) <-chan string
}

// Normalize trims and case-folds an identity so index keys compare equal
// regardless of how the address was typed.
func Normalize(id string) string {
	return cases.Fold().String(strings.TrimSpace(id))
}

// Session is the in-process Provider.
type Session struct {
	mu      sync.RWMutex
	current string
	changes feed.Hub[string]
}

func NewSession(initial string) *Session {
	return &Session{current: Normalize(initial)}
}

func (s *Session) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch yields the current identity immediately and then every change.
func (s *Session) Watch(ctx context.Context) <-chan string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes.Subscribe(ctx, s.current)
}

func (s *Session) SignIn(id string) {
	s.set(Normalize(id))
}

func (s *Session) SignOut() {
	s.set("")
}

func (s *Session) set(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == id {
		return
	}
	s.current = id
	s.changes.Publish(id)
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/domain"
)

// OAuthStateStore is the fallback when Redis is not available. State does
// not survive a restart and is not shared between replicas.
type OAuthStateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	states map[string]stateEntry
}

type stateEntry struct {
	data      auth.OAuthStateData
	expiresAt time.Time
}

func NewOAuthStateStore(ttl time.Duration) *OAuthStateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OAuthStateStore{
		ttl:    ttl,
		now:    time.Now,
		states: make(map[string]stateEntry),
	}
}

func (s *OAuthStateStore) Create(ctx context.Context, state auth.OAuthStateData) (string, error) {
	token, err := auth.RandomToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, v := range s.states {
		if now.After(v.expiresAt) {
			delete(s.states, k)
		}
	}

	s.states[token] = stateEntry{data: state, expiresAt: now.Add(s.ttl)}
	return token, nil
}

func (s *OAuthStateStore) Consume(ctx context.Context, token string) (auth.OAuthStateData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[token]
	delete(s.states, token) // one-time use
	if !ok || s.now().After(entry.expiresAt) {
		return auth.OAuthStateData{}, domain.ErrInvalidOAuthState()
	}
	return entry.data, nil
}

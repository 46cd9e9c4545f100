package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/domain"
)

// OAuthStateStore keeps the PKCE verifier and redirect target between the
// start and callback legs. Entries are single use.
type OAuthStateStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewOAuthStateStore(client *Client, ttl time.Duration) *OAuthStateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OAuthStateStore{rdb: client.rdb, ttl: ttl}
}

func stateKey(token string) string { return "oauth:state:" + token }

func (s *OAuthStateStore) Create(ctx context.Context, state auth.OAuthStateData) (string, error) {
	token, err := auth.RandomToken()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return "", domain.ErrInternal(err)
	}
	if err := s.rdb.Set(ctx, stateKey(token), data, s.ttl).Err(); err != nil {
		return "", domain.ErrRedisUnavailable(err)
	}
	return token, nil
}

// Consume reads and deletes the entry in one GETDEL, so a replayed state
// token finds nothing.
func (s *OAuthStateStore) Consume(ctx context.Context, token string) (auth.OAuthStateData, error) {
	if token == "" {
		return auth.OAuthStateData{}, domain.ErrInvalidOAuthState()
	}

	data, err := s.rdb.GetDel(ctx, stateKey(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return auth.OAuthStateData{}, domain.ErrInvalidOAuthState()
	}
	if err != nil {
		return auth.OAuthStateData{}, domain.ErrRedisUnavailable(err)
	}

	var state auth.OAuthStateData
	if err := json.Unmarshal(data, &state); err != nil {
		return auth.OAuthStateData{}, domain.ErrInvalidOAuthState()
	}
	return state, nil
}

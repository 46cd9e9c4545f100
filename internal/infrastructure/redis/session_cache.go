package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/storefront-auth/internal/application/auth"
	"github.com/baechuer/storefront-auth/internal/domain"
	"github.com/baechuer/storefront-auth/internal/logger"
)

// SessionSource is the store the cache sits in front of.
type SessionSource interface {
	auth.UserRepo
	auth.SessionStateReader
}

// CachedUserRepo decorates the credential store with a Redis cache for the
// per-request session state (role, active, token_version).
//   - Read path: Redis -> DB fallback -> Redis fill (only if nothing newer is cached)
//   - Write path: DB -> re-read -> Redis overwrite, for every mutation that
//     changes what the session middleware checks
//
// Entries carry the token version, and storeState never lets an older version
// replace a newer one, so a fill that raced a mutation cannot resurrect the
// old state. Redis errors never fail a request; the DB stays the source of
// truth. If the overwrite itself fails, the TTL bounds the stale window.
type CachedUserRepo struct {
	SessionSource

	rdb     *goredis.Client
	ttl     time.Duration
	keyPref string
}

var _ SessionSource = (*CachedUserRepo)(nil)

// storeState sets KEYS[1] unless the cached entry has a newer version.
// ARGV: payload, version, strict ("1" also refuses an equal version), ttl ms.
var storeState = goredis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
  local v = tonumber(string.match(cur, '"ver":(%d+)'))
  local nv = tonumber(ARGV[2])
  if v and (v > nv or (ARGV[3] == "1" and v == nv)) then
    return 0
  end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[4])
return 1
`)

// cacheEntry is the stored form; Gone marks a deleted account.
type cacheEntry struct {
	domain.SessionState
	Gone bool `json:"gone,omitempty"`
}

func NewCachedUserRepo(inner SessionSource, client *Client, ttl time.Duration) *CachedUserRepo {
	var rdb *goredis.Client
	if client != nil {
		rdb = client.rdb
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedUserRepo{
		SessionSource: inner,
		rdb:           rdb,
		ttl:           ttl,
		keyPref:       "sess:",
	}
}

func (c *CachedUserRepo) key(userID string) string {
	return c.keyPref + userID
}

func (c *CachedUserRepo) GetSessionState(ctx context.Context, userID string) (domain.SessionState, error) {
	// 1) Try Redis
	if c.rdb != nil {
		b, err := c.rdb.Get(ctx, c.key(userID)).Bytes()
		switch {
		case err == nil:
			var e cacheEntry
			if jerr := json.Unmarshal(b, &e); jerr == nil && e.UserID == userID {
				if e.Gone {
					return domain.SessionState{}, domain.ErrUserNotFound()
				}
				return e.SessionState, nil
			}
			// corrupt entry -> fall back to DB
		case !errors.Is(err, goredis.Nil):
			logger.WithCtx(ctx).Debug().Err(err).Msg("session_cache_get_failed")
		}
	}

	// 2) DB source of truth
	st, err := c.SessionSource.GetSessionState(ctx, userID)
	if err != nil {
		return domain.SessionState{}, err
	}

	// 3) Best-effort cache fill
	if err := c.store(ctx, cacheEntry{SessionState: st}, true); err != nil {
		logger.WithCtx(ctx).Debug().Err(err).Msg("session_cache_fill_failed")
	}
	return st, nil
}

func (c *CachedUserRepo) store(ctx context.Context, e cacheEntry, fill bool) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	strict := "0"
	if fill {
		strict = "1"
	}
	return storeState.Run(ctx, c.rdb, []string{c.key(e.UserID)},
		string(b), e.TokenVersion, strict, c.ttl.Milliseconds()).Err()
}

// invalidate runs after the DB write succeeded: it writes the fresh state
// over whatever is cached, and drops the key if that is not possible.
func (c *CachedUserRepo) invalidate(ctx context.Context, userID string) {
	if c.rdb == nil {
		return
	}
	st, err := c.SessionSource.GetSessionState(ctx, userID)
	if err == nil {
		err = c.store(ctx, cacheEntry{SessionState: st}, false)
		if err == nil {
			return
		}
	}
	if err := c.rdb.Del(ctx, c.key(userID)).Err(); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("user_id", userID).Msg("session_cache_invalidate_failed")
	}
}

func (c *CachedUserRepo) invalidateAfter(ctx context.Context, userID string, ver int64, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, userID)
	return ver, nil
}

/*
Mutations that change role, active or token_version.
Everything else is delegated through the embedded store.
*/

func (c *CachedUserRepo) UpdatePassword(ctx context.Context, userID, newHash string) (int64, error) {
	ver, err := c.SessionSource.UpdatePassword(ctx, userID, newHash)
	return c.invalidateAfter(ctx, userID, ver, err)
}

func (c *CachedUserRepo) Deactivate(ctx context.Context, userID string) (int64, error) {
	ver, err := c.SessionSource.Deactivate(ctx, userID)
	return c.invalidateAfter(ctx, userID, ver, err)
}

func (c *CachedUserRepo) SetRole(ctx context.Context, userID string, role domain.Role) (int64, error) {
	ver, err := c.SessionSource.SetRole(ctx, userID, role)
	return c.invalidateAfter(ctx, userID, ver, err)
}

func (c *CachedUserRepo) BumpTokenVersion(ctx context.Context, userID string) (int64, error) {
	ver, err := c.SessionSource.BumpTokenVersion(ctx, userID)
	return c.invalidateAfter(ctx, userID, ver, err)
}

func (c *CachedUserRepo) ConsumeResetToken(ctx context.Context, userID, hash, newPasswordHash string, now time.Time) (int64, error) {
	ver, err := c.SessionSource.ConsumeResetToken(ctx, userID, hash, newPasswordHash, now)
	return c.invalidateAfter(ctx, userID, ver, err)
}

func (c *CachedUserRepo) Activate(ctx context.Context, userID string) error {
	if err := c.SessionSource.Activate(ctx, userID); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

func (c *CachedUserRepo) Delete(ctx context.Context, userID string) error {
	if err := c.SessionSource.Delete(ctx, userID); err != nil {
		return err
	}
	tomb := cacheEntry{SessionState: domain.SessionState{UserID: userID, TokenVersion: math.MaxInt64}, Gone: true}
	if err := c.store(ctx, tomb, false); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("user_id", userID).Msg("session_cache_invalidate_failed")
		_ = c.rdb.Del(ctx, c.key(userID)).Err()
	}
	return nil
}

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CachingVerifier memoizes successful verifications. A local map answers hot
// tokens; Redis, when configured, shares results across restarts and
// processes. Failed verifications are never cached, and a revoked token keeps
// working until its entry expires.
type CachingVerifier struct {
	next  Verifier
	redis *redis.Client
	ttl   time.Duration
	log   *logrus.Entry

	mu        sync.Mutex
	local     map[string]cacheEntry
	lastSweep time.Time
	now       func() time.Time
}

type cacheEntry struct {
	principal Principal
	expires   time.Time
}

// NewCachingVerifier wraps next. redisClient may be nil.
func NewCachingVerifier(next Verifier, redisClient *redis.Client, ttl time.Duration, log *logrus.Logger) *CachingVerifier {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachingVerifier{
		next:  next,
		redis: redisClient,
		ttl:   ttl,
		log:   log.WithField("component", "token-cache"),
		local: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

func (v *CachingVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	key := cacheKey(token)

	if p, ok := v.getLocal(key); ok {
		return p, nil
	}

	if v.redis != nil {
		data, err := v.redis.Get(ctx, key).Bytes()
		if err == nil {
			var p Principal
			if json.Unmarshal(data, &p) == nil && p.ID != "" {
				v.setLocal(key, p)
				return p, nil
			}
		} else if err != redis.Nil {
			v.log.WithError(err).Warn("Redis get error")
		}
	}

	p, err := v.next.Verify(ctx, token)
	if err != nil {
		return Principal{}, err
	}

	v.setLocal(key, p)
	if v.redis != nil {
		data, _ := json.Marshal(p)
		if err := v.redis.Set(ctx, key, data, v.ttl).Err(); err != nil {
			v.log.WithError(err).Warn("Redis set error")
		}
	}
	return p, nil
}

// Forget drops a token from both cache levels, e.g. after logout.
func (v *CachingVerifier) Forget(ctx context.Context, token string) {
	key := cacheKey(token)
	v.mu.Lock()
	delete(v.local, key)
	v.mu.Unlock()
	if v.redis != nil {
		v.redis.Del(ctx, key)
	}
}

func (v *CachingVerifier) getLocal(key string) (Principal, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.local[key]
	if !ok {
		return Principal{}, false
	}
	if !v.now().Before(e.expires) {
		delete(v.local, key)
		return Principal{}, false
	}
	return e.principal, true
}

// setLocal stores an entry and, at most once per ttl, drops expired entries
// of tokens that were never presented again.
func (v *CachingVerifier) setLocal(key string, p Principal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	if now.Sub(v.lastSweep) >= v.ttl {
		for k, e := range v.local {
			if !now.Before(e.expires) {
				delete(v.local, k)
			}
		}
		v.lastSweep = now
	}
	v.local[key] = cacheEntry{principal: p, expires: now.Add(v.ttl)}
}

// cacheKey hashes the token so raw credentials never reach Redis.
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "pishield:token:" + hex.EncodeToString(sum[:])
}

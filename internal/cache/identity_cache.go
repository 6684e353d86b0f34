// Package cache keeps resolved identities in Redis so the request
// authenticator can skip the username lookup on every call.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nickmous/beanstash/internal/auth"
	"github.com/nickmous/beanstash/internal/config"
	"github.com/nickmous/beanstash/internal/logging"
	"github.com/nickmous/beanstash/internal/model"
	"github.com/nickmous/beanstash/internal/repository"
)

// LiveAccountsByID re-checks a cached account against the store.
type LiveAccountsByID interface {
	FindLiveByID(ctx context.Context, id string) (model.Account, error)
}

// IdentityCache decorates an auth.IdentityResolver with a Redis read-through
// cache of username -> account id. A hit is never trusted on its own: the
// account is re-read by primary key so a soft delete or deactivation takes
// effect on the next request, whether or not an eviction reached Redis.
// Only successful resolutions are cached. Redis failures are logged and fall
// through to the wrapped resolver.
type IdentityCache struct {
	next     auth.IdentityResolver
	accounts LiveAccountsByID
	rdb      redis.Cmdable
	ttl      time.Duration
	prefix   string
	logger   *slog.Logger
}

// NewIdentityCache wraps next. When the cache is disabled or rdb is nil the
// returned resolver is next itself.
func NewIdentityCache(cfg config.CacheConfig, rdb *redis.Client, next auth.IdentityResolver, accounts LiveAccountsByID, logger *slog.Logger) auth.IdentityResolver {
	if !cfg.Enabled || rdb == nil {
		return next
	}
	return newIdentityCache(cfg, rdb, next, accounts, logger)
}

func newIdentityCache(cfg config.CacheConfig, rdb redis.Cmdable, next auth.IdentityResolver, accounts LiveAccountsByID, logger *slog.Logger) *IdentityCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = config.DefaultCacheTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "identity"
	}
	return &IdentityCache{
		next:     next,
		accounts: accounts,
		rdb:      rdb,
		ttl:      ttl,
		prefix:   prefix,
		logger:   logging.OrDiscard(logger),
	}
}

func (c *IdentityCache) key(username string) string {
	return c.prefix + ":" + username
}

// entry is what is stored under a username.
type entry struct {
	AccountID string `json:"account_id"`
}

// Resolve maps username to its account id through Redis, then confirms the
// account is still live and active. A miss resolves through the wrapped
// resolver and caches the result.
func (c *IdentityCache) Resolve(ctx context.Context, username string) (auth.Identity, error) {
	key := c.key(username)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e entry
		if jerr := json.Unmarshal(raw, &e); jerr == nil && e.AccountID != "" {
			return c.confirm(ctx, key, username, e.AccountID)
		}
		c.logger.WarnContext(ctx, "identity cache: dropping unreadable entry", "key", key)
		c.evict(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "identity cache: get failed", "err", err)
		return c.next.Resolve(ctx, username)
	}

	id, err := c.next.Resolve(ctx, username)
	if err != nil {
		return auth.Identity{}, err
	}
	if b, merr := json.Marshal(entry{AccountID: id.AccountID}); merr == nil {
		if serr := c.rdb.Set(ctx, key, b, c.ttl).Err(); serr != nil {
			c.logger.WarnContext(ctx, "identity cache: set failed", "err", serr)
		}
	}
	return id, nil
}

// confirm re-reads the cached account by id. Deleted, inactive or renamed
// accounts evict the entry and resolve to nothing.
func (c *IdentityCache) confirm(ctx context.Context, key, username, accountID string) (auth.Identity, error) {
	a, err := c.accounts.FindLiveByID(ctx, accountID)
	if err != nil {
		if repository.IsNotFound(err) {
			c.evict(ctx, key)
			return auth.Identity{}, auth.ErrUnknownIdentity
		}
		return auth.Identity{}, errors.Join(auth.ErrStoreUnavailable, err)
	}
	if !a.Active || a.Username != username {
		c.evict(ctx, key)
		return auth.Identity{}, auth.ErrUnknownIdentity
	}
	return auth.IdentityFor(a), nil
}

func (c *IdentityCache) evict(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.WarnContext(ctx, "identity cache: delete failed", "key", key, "err", err)
	}
}

// Invalidate evicts username so the next request re-reads the store.
func (c *IdentityCache) Invalidate(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}
	return c.rdb.Del(ctx, c.key(username)).Err()
}

// Invalidator evicts cached identities.
type Invalidator interface {
	Invalidate(ctx context.Context, username string) error
}

// NopInvalidator is used when no cache is configured.
type NopInvalidator struct{}

func (NopInvalidator) Invalidate(context.Context, string) error { return nil }

// NewInvalidator returns a Redis-backed Invalidator, or NopInvalidator when
// the cache is disabled.
func NewInvalidator(cfg config.CacheConfig, rdb *redis.Client) Invalidator {
	if !cfg.Enabled || rdb == nil {
		return NopInvalidator{}
	}
	return newIdentityCache(cfg, rdb, nil, nil, nil)
}

// Package revocation keeps short-lived server-side state in Redis: revoked
// session tokens and per-address signup locks.
package revocation

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/pkg/wallet"
)

const (
	blacklistPrefix = "blacklist:"
	signupPrefix    = "signup:"

	DefaultSignupLockTTL = 30 * time.Second
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Store struct {
	rdb           *redis.Client
	signupLockTTL time.Duration
}

func New(rdb *redis.Client, signupLockTTL time.Duration) *Store {
	if signupLockTTL <= 0 {
		signupLockTTL = DefaultSignupLockTTL
	}
	return &Store{rdb: rdb, signupLockTTL: signupLockTTL}
}

// Revoke blacklists token for ttl; ttl <= 0 blacklists it for good, which is
// what tokens without an expiry need.
func (s *Store) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, blacklistPrefix+token, 1, ttl).Err(); err != nil {
		return apperror.Internal("failed to revoke token", err)
	}
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.rdb.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AcquireSignup takes the signup lock for address. A second caller gets a
// Conflict until the first releases or the lock times out.
func (s *Store) AcquireSignup(ctx context.Context, address string) (func(), error) {
	key := signupPrefix + wallet.NormalizeAddress(address)
	owner := uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, key, owner, s.signupLockTTL).Result()
	if err != nil {
		return nil, apperror.Internal("failed to acquire signup lock", err)
	}
	if !ok {
		return nil, apperror.Conflict("signup already in progress")
	}

	release := func() {
		// the request context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, s.rdb, []string{key}, owner).Err()
	}
	return release, nil
}

package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RunLock guards against overlapping crawl runs. Acquire reports false when
// another run holds the lock.
type RunLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error)
}

const (
	LockNone  = "none"
	LockLocal = "local"
	LockRedis = "redis"
)

type localLock struct{ held atomic.Bool }

// NewLocalLock allows one run at a time within this process.
func NewLocalLock() RunLock { return &localLock{} }

func (l *localLock) Acquire(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	if !l.held.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return func() { l.held.Store(false) }, true, nil
}

type noLock struct{}

// NewNoLock lets scheduled and manual runs overlap.
func NewNoLock() RunLock { return noLock{} }

func (noLock) Acquire(context.Context, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

type redisLock struct {
	rdb *goredis.Client
	key string
}

// NewRedisLock shares the lock across replicas. The ttl bounds how long a
// crashed holder blocks later runs.
func NewRedisLock(rdb *goredis.Client, key string) RunLock {
	if strings.TrimSpace(key) == "" {
		key = "lexbridge:crawl:lock"
	}
	return &redisLock{rdb: rdb, key: key}
}

func (l *redisLock) Acquire(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, false, err
	}
	token := hex.EncodeToString(buf)
	ok, err := l.rdb.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
	}
	return release, true, nil
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld another run holds the stage lock
var ErrLockHeld = errors.New("stage lock held by another run")

// releaseScript 소유자 토큰이 일치할 때만 삭제
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// StageLocker 스테이지 단위 상호 배제 (동일 아티팩트 동시 쓰기 방지)
// ⭐ SSOT: 락 키 형식은 여기서만
type StageLocker struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// Lock 획득한 락 핸들
type Lock struct {
	key   string
	token string
	rdb   *redis.Client
}

// NewStageLocker creates a locker; keys are <prefix>:lock:<stage>
func NewStageLocker(client *Client, prefix string, ttl time.Duration) *StageLocker {
	return &StageLocker{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the lock key for a stage
func (l *StageLocker) Key(stage string) string {
	return fmt.Sprintf("%s:lock:%s", l.prefix, stage)
}

// Acquire takes the stage lock or returns ErrLockHeld.
// Redis 비활성 시 no-op 락 반환
func (l *StageLocker) Acquire(ctx context.Context, stage string) (*Lock, error) {
	if !l.client.Enabled() {
		return &Lock{}, nil
	}

	key := l.Key(stage)
	token := uuid.NewString()

	ok, err := l.client.Redis().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	return &Lock{key: key, token: token, rdb: l.client.Redis()}, nil
}

// Release drops the lock if still owned. TTL 만료 후 다른 실행이 획득한 락은 건드리지 않음
func (lk *Lock) Release(ctx context.Context) error {
	if lk.rdb == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, lk.rdb, []string{lk.key}, lk.token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", lk.key, err)
	}
	return nil
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retailbank/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 加锁：SET key value NX EX timeout
//   - value 为持有者标识，释放时校验，防止误删他人的锁
//
// 释放：Lua 脚本保证"检查 + 删除"的原子性
//
// 数据库行锁保证余额正确；分布式锁让同一笔转账 / 同一笔预约还款的并发请求在进入数据库事务前排队
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

type DistributedLock struct {
	client     redis.UniversalClient
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client redis.UniversalClient, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 只删除自己持有的锁；返回 false 表示锁已过期或被他人持有
func (l *DistributedLock) Unlock(ctx context.Context) (bool, error) {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ============================================================================
// Locker：业务层使用的加锁接口
// ============================================================================

type Locker interface {
	// Acquire 获取 key 对应的锁，返回的 release 必须调用
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type RedisLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client redis.UniversalClient, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l := NewDistributedLock(r.client, key, uuid.NewString(), r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("加锁 %s 失败: %w", key, err)
	}

	return func() {
		// 业务 ctx 可能已取消，释放锁使用独立的 ctx
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		released, err := l.Unlock(unlockCtx)
		if err != nil {
			logger.Warnf("[Lock] 释放锁失败: key=%s, err=%v", key, err)
		} else if !released {
			logger.Warnf("[Lock] 锁已过期: key=%s", key)
		}
	}, nil
}

func TransferKey(ref string) string {
	return "bank:lock:transfer:" + ref
}

func ScheduledPaymentKey(id int64) string {
	return fmt.Sprintf("bank:lock:scheduled_payment:%d", id)
}

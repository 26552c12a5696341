package lock

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker 按账户加锁，返回的 unlock 必须调用
type Locker interface {
	LockAccount(ctx context.Context, accountNumber int64, owner string) (unlock func(), err error)
}

type Options struct {
	TTL           time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

// RedisLocker 多实例部署时使用
type RedisLocker struct {
	client *redis.Client
	opts   Options
}

func NewRedisLocker(client *redis.Client, opts Options) *RedisLocker {
	return &RedisLocker{client: client, opts: opts}
}

func (l *RedisLocker) LockAccount(ctx context.Context, accountNumber int64, owner string) (func(), error) {
	dl := NewDistributedLock(l.client, AccountLockKey(accountNumber), owner, l.opts.TTL)
	if err := dl.Lock(ctx, l.opts.RetryInterval, l.opts.MaxRetries); err != nil {
		return nil, err
	}
	return func() {
		// 请求 ctx 可能已取消，释放锁使用独立的 ctx
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		switch err := dl.Unlock(unlockCtx); {
		case errors.Is(err, ErrLockExpired):
			// 操作耗时超过 TTL，期间锁可能已被其他请求获取
			log.Printf("[AccountLock] 锁在释放前已过期: account=%d, owner=%s, ttl=%v", accountNumber, owner, l.opts.TTL)
		case err != nil:
			log.Printf("[AccountLock] 释放锁失败: account=%d, owner=%s, err=%v", accountNumber, owner, err)
		}
	}, nil
}

// LocalLocker 单实例（内存存储）使用的进程内锁
type LocalLocker struct {
	mu    sync.Mutex
	locks map[int64]*localLock
}

// localLock refs 为持有者与等待者的总数，归零时从 map 中移除
type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[int64]*localLock)}
}

func (l *LocalLocker) LockAccount(ctx context.Context, accountNumber int64, _ string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[accountNumber]
	if !ok {
		entry = &localLock{ch: make(chan struct{}, 1)}
		l.locks[accountNumber] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			l.release(accountNumber, entry)
		}, nil
	case <-ctx.Done():
		l.release(accountNumber, entry)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(accountNumber int64, entry *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, accountNumber)
	}
}

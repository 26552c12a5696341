package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 账户锁：同一账户上的充值/提现/转账串行执行
//
// 提现在锁内先校验余额再调用网关，幂等键的查询与写入也在锁内完成。
// 余额正确性由数据库的原子增减和行锁保证，这把锁只减少无意义的冲突。
//
// 加锁 SET key owner NX PX ttl；释放时 Lua 脚本比较 owner 后再删除。

var (
	ErrLockFailed  = errors.New("获取账户锁失败")
	ErrLockExpired = errors.New("账户锁已过期或被他人持有")
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// DistributedLock 一次加锁持有的 key/owner
type DistributedLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

func NewDistributedLock(client *redis.Client, key, owner string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{client: client, key: key, owner: owner, ttl: ttl}
}

// TryLock 非阻塞
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
}

// Lock 最多尝试 attempts 次，每次间隔 interval
func (l *DistributedLock) Lock(ctx context.Context, interval time.Duration, attempts int) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for attempt := 1; attempt <= attempts; attempt++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return fmt.Errorf("redis setnx %s: %w", l.key, err)
		}
		if ok {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: key=%s, attempts=%d", ErrLockFailed, l.key, attempts)
}

// Unlock 只删除自己持有的锁；锁已不属于自己时返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	deleted, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.owner).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockExpired
	}
	return nil
}

func AccountLockKey(accountNumber int64) string {
	return fmt.Sprintf("ewallet:lock:account:%d", accountNumber)
}

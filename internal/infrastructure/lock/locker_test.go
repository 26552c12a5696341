package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_LockAndUnlock(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, Options{TTL: 5 * time.Second, RetryInterval: time.Millisecond, MaxRetries: 3})
	key := AccountLockKey(1001)

	mock.ExpectSetNX(key, "req-1", 5*time.Second).SetVal(false)
	mock.ExpectSetNX(key, "req-1", 5*time.Second).SetVal(true)
	mock.ExpectEval(unlockScript, []string{key}, "req-1").SetVal(int64(1))

	unlock, err := locker.LockAccount(context.Background(), 1001, "req-1")
	require.NoError(t, err)
	unlock()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_GivesUp(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, Options{TTL: time.Second, RetryInterval: time.Millisecond, MaxRetries: 2})
	key := AccountLockKey(1002)

	mock.ExpectSetNX(key, "owner", time.Second).SetVal(false)
	mock.ExpectSetNX(key, "owner", time.Second).SetVal(false)

	_, err := locker.LockAccount(context.Background(), 1002, "owner")
	assert.ErrorIs(t, err, ErrLockFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_RedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, Options{TTL: time.Second, RetryInterval: time.Millisecond, MaxRetries: 2})

	mock.ExpectSetNX(AccountLockKey(1003), "owner", time.Second).SetErr(errors.New("connection refused"))

	_, err := locker.LockAccount(context.Background(), 1003, "owner")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrLockFailed))
}

func TestDistributedLock_UnlockExpired(t *testing.T) {
	client, mock := redismock.NewClientMock()
	key := AccountLockKey(1004)
	dl := NewDistributedLock(client, key, "owner", time.Second)

	mock.ExpectEval(unlockScript, []string{key}, "owner").SetVal(int64(0))

	assert.ErrorIs(t, dl.Unlock(context.Background()), ErrLockExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountLockKey(t *testing.T) {
	assert.Equal(t, "ewallet:lock:account:1001", AccountLockKey(1001))
}

func TestLocalLocker_Serializes(t *testing.T) {
	locker := NewLocalLocker()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.LockAccount(context.Background(), 1001, "")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
}

func TestLocalLocker_ReleasesIdleAccounts(t *testing.T) {
	locker := NewLocalLocker()

	for account := int64(1001); account < 1101; account++ {
		unlock, err := locker.LockAccount(context.Background(), account, "")
		require.NoError(t, err)
		unlock()
	}
	assert.Empty(t, locker.locks)

	unlock, err := locker.LockAccount(context.Background(), 1001, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.LockAccount(ctx, 1001, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, locker.locks, 1, "持有者仍在")

	unlock()
	assert.Empty(t, locker.locks)
}

func TestLocalLocker_RespectsContext(t *testing.T) {
	locker := NewLocalLocker()

	unlock, err := locker.LockAccount(context.Background(), 1001, "")
	require.NoError(t, err)
	defer unlock()

	// 其他账户不受影响
	other, err := locker.LockAccount(context.Background(), 1002, "")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.LockAccount(ctx, 1001, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package synclock_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shutterspot/shutterspot/internal/synclock"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := synclock.NewKeyedMutex()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(context.Background(), "loc-1")
			require.NoError(t, err)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := synclock.NewKeyedMutex()

	unlockA, err := km.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := km.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	km := synclock.NewKeyedMutex()

	unlock, err := km.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, km.Len())
}

// fakeRedis is an in-memory stand-in for the handful of commands the locker uses.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	failSet bool
	calls   []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) GetContext(_ context.Context) (redis.Conn, error) {
	return &fakeConn{srv: f}, nil
}

func (f *fakeRedis) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

type fakeConn struct {
	srv *fakeRedis
}

func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Err() error   { return nil }
func (c *fakeConn) Flush() error { return nil }

func (c *fakeConn) Send(string, ...interface{}) error { return nil }

func (c *fakeConn) Receive() (interface{}, error) { return nil, nil }

func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	f := c.srv
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)

	switch cmd {
	case "SET":
		if f.failSet {
			return nil, errors.New("connection refused")
		}
		key := fmt.Sprint(args[0])
		if _, exists := f.data[key]; exists {
			return nil, nil
		}
		f.data[key] = fmt.Sprint(args[1])
		return "OK", nil
	case "EVALSHA":
		// args: sha, numkeys, key, token
		key := fmt.Sprint(args[2])
		if f.data[key] == fmt.Sprint(args[3]) {
			delete(f.data, key)
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unexpected command %s", cmd)
	}
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	srv := newFakeRedis()
	locker := synclock.NewRedisLocker(synclock.RedisConfig{
		Pool:          srv,
		RetryInterval: 5 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})

	unlock, err := locker.Lock(context.Background(), "loc-1")
	require.NoError(t, err)

	token, held := srv.get("shutterspot:sync:loc-1")
	require.True(t, held)
	assert.NotEmpty(t, token)

	unlock()
	_, held = srv.get("shutterspot:sync:loc-1")
	assert.False(t, held)
}

func TestRedisLocker_WaitsForHolder(t *testing.T) {
	srv := newFakeRedis()
	locker := synclock.NewRedisLocker(synclock.RedisConfig{
		Pool:          srv,
		Prefix:        "test:",
		RetryInterval: 5 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})

	unlock, err := locker.Lock(context.Background(), "loc-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Lock(context.Background(), "loc-1")
		if err == nil {
			close(acquired)
			second()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(30 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestRedisLocker_DoesNotReleaseForeignToken(t *testing.T) {
	srv := newFakeRedis()
	locker := synclock.NewRedisLocker(synclock.RedisConfig{Pool: srv, Prefix: "test:", Logger: zerolog.Nop()})

	unlock, err := locker.Lock(context.Background(), "loc-1")
	require.NoError(t, err)

	// Simulate expiry followed by another worker taking the key.
	srv.mu.Lock()
	srv.data["test:loc-1"] = "someone-else"
	srv.mu.Unlock()

	unlock()

	token, held := srv.get("test:loc-1")
	assert.True(t, held)
	assert.Equal(t, "someone-else", token)
}

func TestRedisLocker_ContextCancelled(t *testing.T) {
	srv := newFakeRedis()
	srv.data["test:loc-1"] = "holder"
	locker := synclock.NewRedisLocker(synclock.RedisConfig{
		Pool:          srv,
		Prefix:        "test:",
		RetryInterval: 5 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := locker.Lock(ctx, "loc-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLocker_RedisError(t *testing.T) {
	srv := newFakeRedis()
	srv.failSet = true
	locker := synclock.NewRedisLocker(synclock.RedisConfig{Pool: srv, Logger: zerolog.Nop()})

	_, err := locker.Lock(context.Background(), "loc-1")
	assert.ErrorIs(t, err, synclock.ErrLockUnavailable)
}

package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/formsight/internal/config"
)

type testStore interface {
	PersistenceStore
	Updater
}

func newStores(t *testing.T) map[string]testStore {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rs := NewRedisStoreWithClient(rdb, time.Hour)
	t.Cleanup(func() { rs.Close() })

	bs, err := NewBadgerStore(config.BadgerConfig{InMemory: true}, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	return map[string]testStore{
		"redis":  rs,
		"badger": bs,
		"memory": NewMemoryStore(100, time.Hour),
	}
}

func TestStoreGetMissingReturnsNil(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			v, err := s.Get(context.Background(), SessionKey("absent"))
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestStoreSetThenGet(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, UserKey("u1"), []byte(`{"userId":"u1"}`)))

			v, err := s.Get(ctx, UserKey("u1"))
			require.NoError(t, err)
			assert.Equal(t, `{"userId":"u1"}`, string(v))
		})
	}
}

func TestStoreUpdateIsAtomic(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := UserKey("counter")

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 5; j++ {
						err := s.Update(ctx, key, func(cur []byte) ([]byte, error) {
							n := 0
							if cur != nil {
								n, _ = strconv.Atoi(string(cur))
							}
							return []byte(strconv.Itoa(n + 1)), nil
						})
						// redis and badger may give up after repeated conflicts
						if err != nil {
							assert.True(t, errors.Is(err, ErrConflict), err)
						}
					}
				}()
			}
			wg.Wait()

			v, err := s.Get(ctx, key)
			require.NoError(t, err)
			n, err := strconv.Atoi(string(v))
			require.NoError(t, err)
			assert.LessOrEqual(t, n, 20)
			assert.Greater(t, n, 0)
		})
	}
}

func TestStoreUpdatePropagatesCallbackError(t *testing.T) {
	boom := errors.New("boom")
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(context.Background(), UserKey("x"), func([]byte) ([]byte, error) {
				return nil, boom
			})
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestRedisStoreUnavailableReturnsPersistenceError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(rdb, time.Minute)
	defer s.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := s.Get(ctx, SessionKey("s1"))
	var pErr *PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "get", pErr.Op)
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(rdb, time.Minute)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), SessionKey("s1"), []byte("x")))
	assert.Equal(t, time.Minute, mr.TTL(SessionKey("s1")))

	mr.FastForward(2 * time.Minute)
	v, err := s.Get(context.Background(), SessionKey("s1"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "session:abc", SessionKey("abc"))
	assert.Equal(t, "user:u1", UserKey("u1"))
}

package redis_test

import (
	"context"
	"testing"

	"pieat-payments/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditGuard_CheckAndSet(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	guard := redis.NewCreditGuard(client)
	ctx := context.Background()

	t.Run("first credit for an attempt wins", func(t *testing.T) {
		ok, err := guard.CheckAndSet(ctx, "attempt-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("second credit for same attempt is rejected", func(t *testing.T) {
		ok, err := guard.CheckAndSet(ctx, "attempt-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different attempts are independent", func(t *testing.T) {
		ok, err := guard.CheckAndSet(ctx, "attempt-2")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("redis failure surfaces as error", func(t *testing.T) {
		mr.SetError("connection lost")
		defer mr.SetError("")

		_, err := guard.CheckAndSet(ctx, "attempt-3")
		assert.Error(t, err)
	})
}

func TestCreditGuard_Release(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	guard := redis.NewCreditGuard(client)
	ctx := context.Background()

	ok, err := guard.CheckAndSet(ctx, "attempt-1")
	require.NoError(t, err)
	require.True(t, ok)

	// After a release the attempt is creditable again.
	require.NoError(t, guard.Release(ctx, "attempt-1"))
	ok, err = guard.CheckAndSet(ctx, "attempt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Releasing an attempt without a marker is harmless.
	assert.NoError(t, guard.Release(ctx, "attempt-9"))
}

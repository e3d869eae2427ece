//go:build integration

package pending

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/pkg/platform/sentinel"
	"authgate/pkg/testutil/containers"
)

func TestRedisStoreIntegration(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	store := NewRedis(rc.Client)

	t.Run("put then consume round-trips the record", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		require.NoError(t, store.Put(ctx, "tok-1", testRecord(), time.Minute))

		got, err := store.Consume(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, testRecord(), got)
	})

	t.Run("second consume observes the deletion", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		require.NoError(t, store.Put(ctx, "tok-2", testRecord(), time.Minute))

		_, err := store.Consume(ctx, "tok-2")
		require.NoError(t, err)

		_, err = store.Consume(ctx, "tok-2")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("redis expiry makes the record unresolvable", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		require.NoError(t, store.Put(ctx, "tok-3", testRecord(), time.Second))

		time.Sleep(1500 * time.Millisecond)

		_, err := store.Consume(ctx, "tok-3")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("corrupted payload fails closed", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		require.NoError(t, rc.Client.Set(ctx, "oauth:state:tok-4", "{not-json", time.Minute).Err())

		_, err := store.Consume(ctx, "tok-4")
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
		assert.ErrorContains(t, err, "invalid character", "decode detail must survive the wrapping")
	})
}

//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/config"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{Cache: config.Cache{Driver: "redis", DefaultTTL: time.Minute}}
	cfg.Cache.Redis.Addr = addr

	store, err := cache.NewStore(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	claimed, err := store.SetIfAbsent(ctx, "orders:idempotency:c:k", []byte("o-1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.SetIfAbsent(ctx, "orders:idempotency:c:k", []byte("o-2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	raw, err := store.Get(ctx, "orders:idempotency:c:k")
	require.NoError(t, err)
	assert.Equal(t, "o-1", string(raw))

	require.NoError(t, store.Delete(ctx, "orders:idempotency:c:k"))
	_, err = store.Get(ctx, "orders:idempotency:c:k")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

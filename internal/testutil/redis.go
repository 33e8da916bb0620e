package testutil

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// NewTestRedis starts a throwaway redis container and returns a
// connected client plus a cleanup function. Skips the test under
// -short.
func NewTestRedis(t *testing.T) (*goredis.Client, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping containerized redis test in short mode")
	}

	ctx := context.Background()
	container, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err, "get connection string")

	opts, err := goredis.ParseURL(connStr)
	require.NoError(t, err, "parse connection string")
	client := goredis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err(), "ping redis")

	cleanup := func() {
		_ = client.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	}
	return client, cleanup
}

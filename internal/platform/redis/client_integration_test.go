//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"creditmint/internal/platform/config"
	"creditmint/pkg/testutil/containers"
)

func TestNew_Integration(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	c, err := New(ctx, config.RedisConfig{URL: rc.URL, PoolSize: 4, DialTimeout: time.Second})
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Close()

	require.NoError(t, c.Health(ctx))
}

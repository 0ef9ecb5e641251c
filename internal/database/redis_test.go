package database

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableClient points at a closed port so every command fails quickly.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestHealthCheckEntersDegradedMode(t *testing.T) {
	reg := prometheus.NewRegistry()
	rc := newRedisClient(unreachableClient(), reg)
	defer rc.Close()

	assert.False(t, rc.IsDegraded())

	err := rc.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, rc.IsDegraded())
	assert.Equal(t, float64(1), testutil.ToFloat64(rc.metrics.degradedMode))
	assert.Equal(t, float64(1), testutil.ToFloat64(rc.metrics.healthCheck))
}

func TestSafeCommandsFailFastWhenDegraded(t *testing.T) {
	rc := NewRedisClientFrom(unreachableClient())
	defer rc.Close()
	rc.setDegradedState(true)

	ctx := context.Background()
	assert.ErrorContains(t, rc.SafePublish(ctx, "calls:events", "x").Err(), "degraded")
	assert.ErrorContains(t, rc.SafeSet(ctx, "k", "v", time.Minute).Err(), "degraded")
	assert.ErrorContains(t, rc.SafeExists(ctx, "k").Err(), "degraded")
	assert.ErrorContains(t, rc.SafeSAdd(ctx, "s", "m").Err(), "degraded")

	rc.setDegradedState(false)
	assert.False(t, rc.IsDegraded())
}

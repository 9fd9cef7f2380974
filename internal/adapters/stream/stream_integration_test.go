//go:build integration

package stream_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alejandrodnm/betpool/internal/adapters/stream"
	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("BETPOOL_REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return client
}

func TestPublisher_PublishEpisode(t *testing.T) {
	client := getTestRedisClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := stream.NewPublisher(client, "test.episodes", 100)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.PublishEpisode(ctx, "race-1", domain.EpisodeSummary{AgentID: i, Reward: 0.1}))
	}

	msgs, err := client.XRange(ctx, "test.episodes", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "race-1", msgs[0].Values["race_id"])
	assert.Equal(t, "2", msgs[2].Values["agent_id"])
}

package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"yieldRouter/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	addr := os.Getenv("ENGINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ENGINE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	store := NewStore(client, "engine-test:"+time.Now().Format("150405.000000")+":")
	t.Cleanup(func() {
		_ = store.DeleteAll(context.Background())
	})
	storagetest.Run(t, store)
}

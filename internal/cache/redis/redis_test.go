package redis_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/cache/redis"
	"github.com/oraculo/protocol/internal/domain"
)

// newClient connects to TEST_REDIS_ADDR or skips.
func newClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	c, err := redis.New(context.Background(), redis.ClientConfig{Addr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEventBus_RoundTrip(t *testing.T) {
	c := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := redis.NewEventBus(c, "oraculo:test:"+uuid.NewString())
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	market := uuid.New()
	if err := bus.Publish(ctx, domain.WinningsClaimed{Market: market, User: "bob", Amount: 7}); err != nil {
		t.Fatal(err)
	}
	select {
	case env := <-sub:
		if env.Type != domain.EventWinningsClaimed || env.Market != market {
			t.Errorf("envelope = %+v", env)
		}
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestLockManager_Exclusive(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	locks := redis.NewLockManager(c)
	key := "test:" + uuid.NewString()

	unlock, err := locks.Acquire(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := locks.Acquire(ctx, key, 5*time.Second); !errors.Is(err, redis.ErrLockHeld) {
		t.Errorf("second acquire: err = %v, want ErrLockHeld", err)
	}
	unlock()
	unlock()
	again, err := locks.Acquire(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatalf("acquire after unlock: %v", err)
	}
	again()
}

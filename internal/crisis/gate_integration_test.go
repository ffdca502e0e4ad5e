//go:build integration

package crisis

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisGate(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	a := NewRedisGate(client, "user-1", 300*time.Millisecond)
	b := NewRedisGate(client, "user-1", 300*time.Millisecond)
	other := NewRedisGate(client, "user-2", 300*time.Millisecond)

	if !a.Allow(ctx, VisualDistress) {
		t.Fatal("first signal suppressed")
	}
	if b.Allow(ctx, VisualDistress) {
		t.Error("second instance should share the cooldown")
	}
	if !other.Allow(ctx, VisualDistress) {
		t.Error("cooldown leaked across subjects")
	}
	time.Sleep(400 * time.Millisecond)
	if !b.Allow(ctx, VisualDistress) {
		t.Error("signal after expiry suppressed")
	}
}

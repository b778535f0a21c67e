// Package testutil starts the containers used by integration tests.
package testutil

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Redis test configuration constants
const (
	redisCtxTimeout                = 10 * time.Second
	redisContainerStartupTimeout   = 60 * time.Second
	redisContainerTerminateTimeout = 5 * time.Second
	redisContainerMemoryLimit      = 128 * 1024 * 1024 // 128MB
	redisTestPoolSize              = 10
)

var (
	sharedRedis     *RedisContainer
	sharedRedisErr  error
	sharedRedisOnce sync.Once
)

// RedisContainer is a running Redis container.
type RedisContainer struct {
	Container testcontainers.Container
	Addr      string
}

// SharedRedis starts one Redis container per test binary and returns it.
func SharedRedis() (*RedisContainer, error) {
	sharedRedisOnce.Do(func() {
		startupCtx, cancel := context.WithTimeout(context.Background(), redisContainerStartupTimeout)
		defer cancel()
		sharedRedis, sharedRedisErr = StartRedis(startupCtx)
	})
	return sharedRedis, sharedRedisErr
}

// StartRedis starts a new Redis container.
func StartRedis(ctx context.Context) (*RedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Memory = redisContainerMemoryLimit
			hc.MemorySwap = redisContainerMemoryLimit
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(redisContainerStartupTimeout),
			wait.ForListeningPort("6379/tcp").WithStartupTimeout(redisContainerStartupTimeout),
		),
	}

	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := cont.MappedPort(ctx, "6379")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &RedisContainer{
		Container: cont,
		Addr:      net.JoinHostPort(host, port.Port()),
	}, nil
}

// CleanupSharedRedis terminates the shared container if one was started.
// It is typically called from TestMain.
func CleanupSharedRedis() {
	if sharedRedis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisContainerTerminateTimeout)
	defer cancel()
	_ = sharedRedis.Container.Terminate(ctx)
}

// SetupTestRedis returns a client on the shared container. The database is
// flushed and the client closed when the test ends.
func SetupTestRedis(t *testing.T) (*redis.Client, string) {
	t.Helper()

	cont, err := SharedRedis()
	if err != nil {
		t.Fatalf("Failed to get shared Redis container: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisCtxTimeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     cont.Addr,
		PoolSize: redisTestPoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to ping Redis: %v", err)
	}

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), redisCtxTimeout)
		defer cleanupCancel()
		_ = client.FlushDB(cleanupCtx).Err()
		_ = client.Close()
	})

	return client, cont.Addr
}

// Package instancelock provides a cross-host advisory lock on a
// PluginSupervisor instance id, so two hosts sharing a Redis instance
// cannot both claim the same strategy:symbol pair. It is purely additive:
// on a single host the in-process registry's own uniqueness check is
// already sufficient.
//
// Grounded on the reference codebase's internal/cache/cache_service.go
// (Redis client options, healthy/failureCount circuit-breaker bookkeeping
// against a degraded Redis), retargeted from settings caching to a
// single SET NX PX lock operation.
package instancelock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tradehost/internal/logging"
)

// Config controls whether this package talks to a real Redis instance.
// Enabled false makes every Lock call a no-op success, matching the
// single-host behavior the strict spec describes.
type Config struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	PoolSize int
}

const (
	lockTTL       = 30 * time.Second
	maxFailures   = 3
	checkInterval = 30 * time.Second
)

// Lock is the instance-id advisory lock. One Lock is shared by the whole
// PluginSupervisor.
type Lock struct {
	client  *redis.Client
	enabled bool
	logger  *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time
}

// New creates a Lock. When cfg.Enabled is false, Acquire/Release always
// succeed without touching the network.
func New(cfg Config, logger *logging.Logger) *Lock {
	if logger == nil {
		logger = logging.Default()
	}
	l := &Lock{enabled: cfg.Enabled, logger: logger.WithComponent("instancelock")}
	if !cfg.Enabled {
		return l
	}

	l.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.client.Ping(ctx).Err(); err != nil {
		l.logger.Warn("initial redis connection failed, instance lock degraded", "error", err)
		return l
	}
	l.setHealthy(true)
	return l
}

// Acquire takes the lock for instanceID using SET NX PX. It returns
// (true, nil) if the lock was acquired, (false, nil) if another host
// already holds it, and a non-nil error only on a Redis-level failure
// (in which case the caller should fall back to its local uniqueness
// check rather than block startup on a degraded Redis).
func (l *Lock) Acquire(ctx context.Context, instanceID string) (bool, error) {
	if !l.enabled || !l.IsHealthy() {
		return true, nil
	}

	ok, err := l.client.SetNX(ctx, redisKey(instanceID), "1", lockTTL).Result()
	if err != nil {
		l.recordFailure()
		return false, fmt.Errorf("acquire instance lock for %s: %w", instanceID, err)
	}
	l.recordSuccess()
	return ok, nil
}

// Release drops the lock for instanceID. A no-op if disabled or degraded.
func (l *Lock) Release(ctx context.Context, instanceID string) error {
	if !l.enabled || !l.IsHealthy() {
		return nil
	}
	if err := l.client.Del(ctx, redisKey(instanceID)).Err(); err != nil {
		l.recordFailure()
		return fmt.Errorf("release instance lock for %s: %w", instanceID, err)
	}
	l.recordSuccess()
	return nil
}

// IsHealthy reports whether Redis is currently reachable. Disabled locks
// are always reported healthy since they never touch Redis.
func (l *Lock) IsHealthy() bool {
	if !l.enabled {
		return true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.healthy
}

func (l *Lock) setHealthy(v bool) {
	l.mu.Lock()
	l.healthy = v
	l.lastCheck = time.Now()
	l.mu.Unlock()
}

func (l *Lock) recordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureCount++
	if l.failureCount >= maxFailures && l.healthy {
		l.logger.Warn("instance lock circuit breaker open, redis marked unhealthy", "failures", l.failureCount)
		l.healthy = false
	}
}

func (l *Lock) recordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.healthy {
		l.logger.Info("instance lock circuit breaker closed, redis recovered")
	}
	l.healthy = true
	l.failureCount = 0
	l.lastCheck = time.Now()
}

func redisKey(instanceID string) string {
	return "tradehost:instance_lock:" + instanceID
}

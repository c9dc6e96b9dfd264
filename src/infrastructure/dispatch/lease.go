package dispatch

import (
	"context"
	"sync"
	"time"

	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RunLease guarantees only one job processor instance works at a time.
// Overlapping cron invocations under load are the main source of duplicate
// sends and quota overshoot, so a run that cannot take the lease does nothing.
type RunLease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

const leaseKey = "jobprocessor:lease"

// RedisLease is a cross-host lease backed by SET NX with a TTL. The TTL
// bounds how long a crashed holder can block other instances.
type RedisLease struct {
	client *redis.Client
	ttl    time.Duration
	token  string
	Logger *logger.Logger
}

func NewRedisLease(client *redis.Client, ttl time.Duration, loggerInstance *logger.Logger) *RedisLease {
	return &RedisLease{
		client: client,
		ttl:    ttl,
		Logger: loggerInstance,
	}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return false, err
	}

	ok, err := l.client.SetNX(ctx, leaseKey, token.String(), l.ttl).Result()
	if err != nil {
		l.Logger.Error("Error acquiring run lease", zap.Error(err))
		return false, err
	}
	if !ok {
		l.Logger.Warn("Run lease held by another instance, skipping run")
		return false, nil
	}

	l.token = token.String()
	return true, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}

	// Only the holder may release; a lease that expired and was re-acquired
	// by another instance is left alone.
	current, err := l.client.Get(ctx, leaseKey).Result()
	if err != nil {
		if err == redis.Nil {
			l.token = ""
			return nil
		}
		l.Logger.Error("Error reading run lease for release", zap.Error(err))
		return err
	}
	if current != l.token {
		l.token = ""
		return nil
	}

	if err := l.client.Del(ctx, leaseKey).Err(); err != nil {
		l.Logger.Error("Error releasing run lease", zap.Error(err))
		return err
	}
	l.token = ""
	return nil
}

// LocalLease is the in-process fallback used when no Redis address is
// configured; it serializes runs within a single host only.
type LocalLease struct {
	mu   sync.Mutex
	held bool
}

func NewLocalLease() *LocalLease {
	return &LocalLease{}
}

func (l *LocalLease) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *LocalLease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

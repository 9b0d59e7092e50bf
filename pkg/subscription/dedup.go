package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers processed webhook event IDs so duplicate deliveries
// become no-ops. MarkSeen must be atomic: exactly one caller per event ID
// observes first=true. Unmark releases an ID whose processing failed, so
// the provider's redelivery gets another attempt instead of being dropped.
type Deduper interface {
	MarkSeen(ctx context.Context, eventID string) (first bool, err error)
	Unmark(ctx context.Context, eventID string) error
}

// RedisDeduper implements Deduper on a shared Redis instance, so dedup
// holds across processes and restarts. Keys expire after the retention
// window; providers do not redeliver events older than that.
type RedisDeduper struct {
	client    *redis.Client
	retention time.Duration
	prefix    string
}

// NewRedisDeduper creates a Deduper with the given retention window.
// A retention of 0 falls back to 72 hours, Paddle's redelivery horizon.
func NewRedisDeduper(client *redis.Client, retention time.Duration) *RedisDeduper {
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return &RedisDeduper{
		client:    client,
		retention: retention,
		prefix:    "billing:webhook:event:",
	}
}

func (d *RedisDeduper) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+eventID, 1, d.retention).Result()
}

func (d *RedisDeduper) Unmark(ctx context.Context, eventID string) error {
	return d.client.Del(ctx, d.prefix+eventID).Err()
}

// MemoryDeduper is an in-process Deduper for tests and single-node setups.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryDeduper creates an empty in-memory Deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) MarkSeen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[eventID]; ok {
		return false, nil
	}
	d.seen[eventID] = struct{}{}
	return true, nil
}

func (d *MemoryDeduper) Unmark(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}

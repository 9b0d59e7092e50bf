package planchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/propkit/billing/pkg/catalog"
	"github.com/propkit/billing/pkg/subscription"
)

// ChargeLedger records submitted charges by idempotency key. Commit
// consults it before touching the processor: a hit means the charge for
// this key already went out, so a retried commit must not resubmit it.
// Lookup returns nil with no error when the key is unknown.
type ChargeLedger interface {
	Lookup(ctx context.Context, key string) (*subscription.ChargeResult, error)
	Record(ctx context.Context, key string, res *subscription.ChargeResult) error
}

type ledgerEntry struct {
	TransactionID string        `json:"transaction_id,omitempty"`
	Amount        catalog.Money `json:"amount"`
}

// RedisChargeLedger implements ChargeLedger on a shared Redis instance, so
// the guarantee holds across processes and restarts. Entries expire after
// the retention window, which must outlast any plausible retry horizon.
type RedisChargeLedger struct {
	client    *redis.Client
	retention time.Duration
	prefix    string
}

// NewRedisChargeLedger creates a ChargeLedger with the given retention
// window. A retention of 0 falls back to 45 days.
func NewRedisChargeLedger(client *redis.Client, retention time.Duration) *RedisChargeLedger {
	if retention <= 0 {
		retention = 45 * 24 * time.Hour
	}
	return &RedisChargeLedger{
		client:    client,
		retention: retention,
		prefix:    "billing:charge:key:",
	}
}

func (l *RedisChargeLedger) Lookup(ctx context.Context, key string) (*subscription.ChargeResult, error) {
	raw, err := l.client.Get(ctx, l.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("charge ledger get: %w", err)
	}

	var entry ledgerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("charge ledger decode: %w", err)
	}
	return &subscription.ChargeResult{TransactionID: entry.TransactionID, Amount: entry.Amount}, nil
}

func (l *RedisChargeLedger) Record(ctx context.Context, key string, res *subscription.ChargeResult) error {
	raw, err := json.Marshal(ledgerEntry{TransactionID: res.TransactionID, Amount: res.Amount})
	if err != nil {
		return fmt.Errorf("charge ledger encode: %w", err)
	}
	if err := l.client.Set(ctx, l.prefix+key, raw, l.retention).Err(); err != nil {
		return fmt.Errorf("charge ledger set: %w", err)
	}
	return nil
}

// MemoryChargeLedger is an in-process ChargeLedger for tests and
// single-node setups.
type MemoryChargeLedger struct {
	mu      sync.Mutex
	entries map[string]subscription.ChargeResult
}

// NewMemoryChargeLedger creates an empty in-memory ChargeLedger.
func NewMemoryChargeLedger() *MemoryChargeLedger {
	return &MemoryChargeLedger{entries: make(map[string]subscription.ChargeResult)}
}

func (l *MemoryChargeLedger) Lookup(_ context.Context, key string) (*subscription.ChargeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if res, ok := l.entries[key]; ok {
		return &res, nil
	}
	return nil, nil
}

func (l *MemoryChargeLedger) Record(_ context.Context, key string, res *subscription.ChargeResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = *res
	return nil
}

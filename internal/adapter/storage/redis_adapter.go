package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-allocation/internal/core/domain"
)

const (
	inventoryKeyPrefix = "inventory:"
	idempotencyKeyTTL  = 24 * time.Hour
)

// setSnapshotScript writes the snapshot hash only when it is newer than the cached one.
var setSnapshotScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) >= version then
	return 0
end

redis.call('HSET', key,
	'version', ARGV[1],
	'quantity', ARGV[2],
	'reserved_quantity', ARGV[3],
	'location', ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return 1
`)

var ErrCorruptSnapshot = errors.New("corrupt cached snapshot")

type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) GetSnapshot(ctx context.Context, itemID string) (domain.InventorySnapshot, bool, error) {
	fields, err := r.client.HGetAll(ctx, inventoryKeyPrefix+itemID).Result()
	if err != nil {
		return domain.InventorySnapshot{}, false, err
	}
	if len(fields) == 0 {
		return domain.InventorySnapshot{}, false, nil
	}

	snap := domain.InventorySnapshot{ItemID: itemID, Location: fields["location"]}
	for name, dst := range map[string]*int{
		"version":           &snap.Version,
		"quantity":          &snap.Quantity,
		"reserved_quantity": &snap.ReservedQuantity,
	} {
		v, err := strconv.Atoi(fields[name])
		if err != nil {
			return domain.InventorySnapshot{}, false, fmt.Errorf("%w: %s field %s", ErrCorruptSnapshot, itemID, name)
		}
		*dst = v
	}
	snap.AvailableQuantity = snap.Quantity - snap.ReservedQuantity

	return snap, true, nil
}

func (r *RedisAdapter) SetSnapshot(ctx context.Context, snap domain.InventorySnapshot) error {
	return setSnapshotScript.Run(ctx, r.client,
		[]string{inventoryKeyPrefix + snap.ItemID},
		snap.Version, snap.Quantity, snap.ReservedQuantity, snap.Location, r.ttl.Milliseconds(),
	).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) DeleteIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Invalidate drops the cached snapshot of an item.
func (r *RedisAdapter) Invalidate(ctx context.Context, itemID string) error {
	return r.client.Del(ctx, inventoryKeyPrefix+itemID).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

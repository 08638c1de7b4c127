package cache

import (
	"context"
	"fmt"
	"time"
)

// ProcessedTTL is how long a consumed event id is remembered for
// de-duplication.
const ProcessedTTL = 24 * time.Hour

// Seat count fields of the per-flight replica hash.
const (
	FieldHeld   = "held"
	FieldBooked = "booked"
)

// MarkProcessed records eventID and reports whether it was seen for the
// first time.
func (c *RedisCache) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	return c.client.SetNX(ctx, processedKey(eventID), 1, ProcessedTTL).Result()
}

// UnmarkProcessed forgets eventID so a redelivery is applied again.
func (c *RedisCache) UnmarkProcessed(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, processedKey(eventID)).Err()
}

func (c *RedisCache) AdjustSeats(ctx context.Context, flightID int64, field string, delta int64) error {
	return c.client.HIncrBy(ctx, replicaKey(flightID), field, delta).Err()
}

func processedKey(eventID string) string {
	return "replica:processed:" + eventID
}

func replicaKey(flightID int64) string {
	return fmt.Sprintf("replica:flight:%d", flightID)
}

func refundsKey() string {
	return "refunds:pending"
}

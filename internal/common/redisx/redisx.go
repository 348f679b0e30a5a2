package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Dedup of processed saga events: dedup:{service}:{orderId}:{event}
	keyDedup = "dedup:%s:%s:%s"

	// Cached order status projection: order_status:{orderId}
	keyOrderStatus = "order_status:%s"

	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Dedup guards saga handlers against at-least-once redelivery. MarkProcessed
// is best-effort: a lost key only means one extra (idempotent) pass.
type Dedup struct {
	rdb     *redis.Client
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

func (d *Dedup) Seen(ctx context.Context, orderID, event string) bool {
	n, err := d.rdb.Exists(ctx, fmt.Sprintf(keyDedup, d.service, orderID, event)).Result()
	return err == nil && n > 0
}

func (d *Dedup) MarkProcessed(ctx context.Context, orderID, event string) {
	_ = d.rdb.Set(ctx, fmt.Sprintf(keyDedup, d.service, orderID, event), "1", TTLDedup).Err()
}

// StatusCache keeps the order status projection hot for GET /orders/:id.
type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb}
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (string, bool) {
	s, err := c.rdb.Get(ctx, fmt.Sprintf(keyOrderStatus, orderID)).Result()
	return s, err == nil && s != ""
}

func (c *StatusCache) Set(ctx context.Context, orderID, status string) {
	_ = c.rdb.Set(ctx, fmt.Sprintf(keyOrderStatus, orderID), status, TTLStatusCache).Err()
}

func (c *StatusCache) Drop(ctx context.Context, orderID string) {
	_ = c.rdb.Del(ctx, fmt.Sprintf(keyOrderStatus, orderID)).Err()
}

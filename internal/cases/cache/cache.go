// Package cache keeps rendered case reports in Redis. Entries expire after a
// short TTL and are dropped as soon as an event for the case is published.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"curaledger/internal/cases/service"
	"curaledger/internal/events"
	"curaledger/pkg/domain"
)

const keyPrefix = "cura:report:"

// RedisReportCache implements service.ReportCache.
type RedisReportCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisReportCache(client redis.Cmdable, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{client: client, ttl: ttl}
}

func key(id domain.CaseID) string {
	return keyPrefix + string(id)
}

func (c *RedisReportCache) Get(ctx context.Context, id domain.CaseID) (*service.Report, bool, error) {
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get report: %w", err)
	}
	var r service.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return &r, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, report *service.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.client.Set(ctx, key(report.CaseID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set report: %w", err)
	}
	return nil
}

// Invalidate drops the cached report of id.
func (c *RedisReportCache) Invalidate(ctx context.Context, id domain.CaseID) error {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("invalidate report: %w", err)
	}
	return nil
}

// Invalidator is an events.Publisher that evicts the report of every case an
// event names. Wire it into the publisher fan-out.
type Invalidator struct {
	cache *RedisReportCache
}

func NewInvalidator(cache *RedisReportCache) *Invalidator {
	return &Invalidator{cache: cache}
}

func (i *Invalidator) Publish(ctx context.Context, event events.Event) error {
	if event.CaseID == "" {
		// Registry changes move every report's quorum figures; TTL covers them.
		return nil
	}
	return i.cache.Invalidate(ctx, event.CaseID)
}

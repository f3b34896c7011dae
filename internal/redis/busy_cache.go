package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

const busyKeyPrefix = "busy:"

type cachedBusy struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BusyCache keeps external busy ranges in Redis, one key per clinic day.
// Misses are read through to the wrapped source. Redis failures fall back
// to the source so a cache outage never hides the calendar.
type BusyCache struct {
	client *redis.Client
	source scheduling.BusySource
	loc    *time.Location
	ttl    time.Duration
}

func NewBusyCache(client *redis.Client, source scheduling.BusySource, loc *time.Location, ttl time.Duration) *BusyCache {
	if loc == nil {
		loc = time.UTC
	}
	return &BusyCache{client: client, source: source, loc: loc, ttl: ttl}
}

func (c *BusyCache) ListBusyTimes(ctx context.Context, from, to time.Time) ([]scheduling.BusyTime, error) {
	var out []scheduling.BusyTime

	for _, day := range c.days(from, to) {
		busy, err := c.day(ctx, day)
		if err != nil {
			return nil, err
		}
		for _, b := range busy {
			if b.Start.Before(to) && b.End.After(from) {
				out = append(out, b)
			}
		}
	}

	return dedupe(out), nil
}

func (c *BusyCache) day(ctx context.Context, day time.Time) ([]scheduling.BusyTime, error) {
	key := busyKey(day)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		busy, decErr := decodeBusy(data)
		if decErr == nil {
			return busy, nil
		}
		log.Warn().Err(decErr).Str("key", key).Msg("discarding unreadable busy cache entry")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("busy cache read failed, using calendar directly")
	}

	end := day.AddDate(0, 0, 1)
	busy, err := c.source.ListBusyTimes(ctx, day, end)
	if err != nil {
		return nil, err
	}

	if err := c.put(ctx, day, busy); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("busy cache write failed")
	}
	return busy, nil
}

// Refresh pulls [from, to) from the source in one call and rewrites the
// cache entry of every day in the range.
func (c *BusyCache) Refresh(ctx context.Context, from, to time.Time) (int, error) {
	busy, err := c.source.ListBusyTimes(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("pull busy times: %w", err)
	}

	days := c.days(from, to)
	for _, day := range days {
		end := day.AddDate(0, 0, 1)
		var bucket []scheduling.BusyTime
		for _, b := range busy {
			if b.Start.Before(end) && b.End.After(day) {
				bucket = append(bucket, b)
			}
		}
		if err := c.put(ctx, day, bucket); err != nil {
			return 0, err
		}
	}

	return len(days), nil
}

// Invalidate drops the cached day containing t.
func (c *BusyCache) Invalidate(ctx context.Context, t time.Time) error {
	return c.client.Del(ctx, busyKey(c.startOfDay(t))).Err()
}

func (c *BusyCache) put(ctx context.Context, day time.Time, busy []scheduling.BusyTime) error {
	data, err := encodeBusy(busy)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, busyKey(day), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("write busy cache: %w", err)
	}
	return nil
}

func (c *BusyCache) startOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// days lists the clinic-local midnights of every day touching [from, to).
func (c *BusyCache) days(from, to time.Time) []time.Time {
	var days []time.Time
	for d := c.startOfDay(from); d.Before(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func busyKey(day time.Time) string {
	return busyKeyPrefix + day.Format("2006-01-02")
}

func encodeBusy(busy []scheduling.BusyTime) ([]byte, error) {
	out := make([]cachedBusy, len(busy))
	for i, b := range busy {
		out[i] = cachedBusy{Start: b.Start, End: b.End}
	}
	return json.Marshal(out)
}

func decodeBusy(data []byte) ([]scheduling.BusyTime, error) {
	var in []cachedBusy
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	out := make([]scheduling.BusyTime, len(in))
	for i, b := range in {
		out[i] = scheduling.BusyTime{Start: b.Start, End: b.End}
	}
	return out, nil
}

// dedupe drops ranges repeated across day buckets.
func dedupe(busy []scheduling.BusyTime) []scheduling.BusyTime {
	seen := make(map[[2]int64]bool, len(busy))
	out := busy[:0]
	for _, b := range busy {
		k := [2]int64{b.Start.UnixNano(), b.End.UnixNano()}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, b)
	}
	return out
}

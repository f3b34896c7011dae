package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastPullKey = "calendar:last_pull"

// SyncClock remembers when the external busy times were last pulled, so any
// number of sync workers agree on whether a pull is due.
type SyncClock struct {
	client   *redis.Client
	interval time.Duration
}

func NewSyncClock(client *redis.Client, interval time.Duration) *SyncClock {
	return &SyncClock{client: client, interval: interval}
}

// Due reports whether interval has elapsed since the last recorded pull.
func (c *SyncClock) Due(ctx context.Context, now time.Time) (bool, error) {
	last, err := c.LastPull(ctx)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	return !now.Before(last.Add(c.interval)), nil
}

func (c *SyncClock) LastPull(ctx context.Context) (time.Time, error) {
	v, err := c.client.Get(ctx, lastPullKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read last pull: %w", err)
	}
	return time.Unix(v, 0), nil
}

func (c *SyncClock) MarkPulled(ctx context.Context, at time.Time) error {
	if err := c.client.Set(ctx, lastPullKey, at.Unix(), 0).Err(); err != nil {
		return fmt.Errorf("record last pull: %w", err)
	}
	return nil
}

package calendar

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// BusyCache is a busy source that can forget a cached day.
type BusyCache interface {
	scheduling.BusySource
	Invalidate(ctx context.Context, t time.Time) error
}

// Cached serves busy times from busy (typically a Redis read-through cache
// over the same Google integration) and everything else from Google.
type Cached struct {
	*Google
	busy BusyCache
}

func NewCached(g *Google, busy BusyCache) *Cached {
	return &Cached{Google: g, busy: busy}
}

func (c *Cached) ListBusyTimes(ctx context.Context, from, to time.Time) ([]scheduling.BusyTime, error) {
	return c.busy.ListBusyTimes(ctx, from, to)
}

// CreateEvent mirrors the booking and drops the cached day it lands on, so
// the next read sees the new event.
func (c *Cached) CreateEvent(ctx context.Context, b scheduling.Booking, contact scheduling.PatientContact) (*scheduling.ExternalEvent, error) {
	ev, err := c.Google.CreateEvent(ctx, b, contact)
	if err != nil {
		return nil, err
	}

	if err := c.busy.Invalidate(ctx, b.ScheduledAt); err != nil {
		log.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("busy cache invalidation failed")
	}
	return ev, nil
}

package calendar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type fakeBusyCache struct {
	busy          []scheduling.BusyTime
	invalidated   []time.Time
	invalidateErr error
}

func (f *fakeBusyCache) ListBusyTimes(context.Context, time.Time, time.Time) ([]scheduling.BusyTime, error) {
	return f.busy, nil
}

func (f *fakeBusyCache) Invalidate(_ context.Context, t time.Time) error {
	f.invalidated = append(f.invalidated, t)
	return f.invalidateErr
}

func TestCached_ListBusyTimesReadsCache(t *testing.T) {
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected calendar request %s", r.URL.Path)
	}, &memTokens{tok: validToken()})

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	cache := &fakeBusyCache{busy: []scheduling.BusyTime{{Start: start, End: start.Add(time.Hour)}}}

	busy, err := NewCached(g, cache).ListBusyTimes(context.Background(), start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, cache.busy, busy)
}

func TestCached_CreateEventInvalidatesDay(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		invalidateErr error
		wantErr       bool
		invalidations int
	}{
		{name: "mirrored", status: http.StatusOK, invalidations: 1},
		{name: "invalidation failure is not fatal", status: http.StatusOK, invalidateErr: errors.New("redis down"), invalidations: 1},
		{name: "insert fails", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				if tt.status == http.StatusOK {
					_, _ = io.WriteString(w, `{"id": "evt-7", "hangoutLink": "https://meet.google.com/xyz"}`)
					return
				}
				_, _ = io.WriteString(w, `{"error": {"code": 500, "message": "backend"}}`)
			}, &memTokens{tok: validToken()})

			cache := &fakeBusyCache{invalidateErr: tt.invalidateErr}
			b := scheduling.Booking{
				ID:              uuid.New(),
				ScheduledAt:     time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC),
				DurationMinutes: 30,
				Kind:            scheduling.KindMeeting,
			}

			ev, err := NewCached(g, cache).CreateEvent(context.Background(), b, scheduling.PatientContact{Name: "Ana"})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "evt-7", ev.ID)
			}

			require.Len(t, cache.invalidated, tt.invalidations)
			if tt.invalidations > 0 {
				assert.True(t, cache.invalidated[0].Equal(b.ScheduledAt))
			}
		})
	}
}

package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type memTokens struct {
	tok   *oauth2.Token
	saves int
}

func (m *memTokens) Load(context.Context) (*oauth2.Token, error) {
	if m.tok == nil {
		return nil, errors.New("no token")
	}
	return m.tok, nil
}

func (m *memTokens) Save(_ context.Context, tok *oauth2.Token) error {
	m.tok = tok
	m.saves++
	return nil
}

func (m *memTokens) Delete(context.Context) error {
	m.tok = nil
	return nil
}

func validToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: "access-123",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}
}

func newTestGoogle(t *testing.T, handler http.HandlerFunc, tokens *memTokens) *Google {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGoogle(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/calendar/callback",
		CalendarID:   "clinic@example.com",
	}, tokens, option.WithEndpoint(srv.URL+"/"))
}

func TestGoogle_IsConnected(t *testing.T) {
	tokens := &memTokens{}
	g := NewGoogle(Config{ClientID: "c", ClientSecret: "s"}, tokens)

	assert.False(t, g.IsConnected(context.Background()))

	tokens.tok = validToken()
	assert.True(t, g.IsConnected(context.Background()))

	require.NoError(t, g.Disconnect(context.Background()))
	assert.False(t, g.IsConnected(context.Background()))
}

func TestGoogle_AuthURL(t *testing.T) {
	g := NewGoogle(Config{ClientID: "client-id", ClientSecret: "s", RedirectURL: "http://localhost/cb"}, &memTokens{})

	u := g.AuthURL("state-xyz")
	assert.Contains(t, u, "client_id=client-id")
	assert.Contains(t, u, "state=state-xyz")
	assert.Contains(t, u, "access_type=offline")
}

func TestGoogle_ListBusyTimes(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string

	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/freeBusy"), r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"kind": "calendar#freeBusy",
			"calendars": {
				"clinic@example.com": {
					"busy": [
						{"start": "2025-03-03T10:00:00Z", "end": "2025-03-03T10:30:00Z"},
						{"start": "2025-03-03T14:00:00Z", "end": "2025-03-03T15:00:00Z"}
					]
				}
			}
		}`)
	}, &memTokens{tok: validToken()})

	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	busy, err := g.ListBusyTimes(context.Background(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, busy, 2)

	assert.Equal(t, "Bearer access-123", gotAuth)
	assert.Equal(t, "2025-03-03T00:00:00Z", gotBody["timeMin"])
	assert.True(t, busy[0].Start.Equal(time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)))
	assert.True(t, busy[1].End.Equal(time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)))
}

func TestGoogle_ListBusyTimes_CalendarError(t *testing.T) {
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"calendars": {"clinic@example.com": {"errors": [{"domain": "global", "reason": "notFound"}]}}}`)
	}, &memTokens{tok: validToken()})

	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	_, err := g.ListBusyTimes(context.Background(), from, from.AddDate(0, 0, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notFound")
}

func TestGoogle_ListBusyTimes_NotConnected(t *testing.T) {
	g := NewGoogle(Config{ClientID: "c", ClientSecret: "s"}, &memTokens{})

	_, err := g.ListBusyTimes(context.Background(), time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGoogle_CreateEvent(t *testing.T) {
	var got map[string]any
	var query string

	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/calendars/clinic@example.com/events")
		query = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "evt-42",
			"hangoutLink": "https://meet.google.com/abc-defg-hij"
		}`)
	}, &memTokens{tok: validToken()})

	email := "ana@example.com"
	b := scheduling.Booking{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		ScheduledAt:     time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 45,
		Kind:            scheduling.KindMeeting,
		Notes:           "follow-up",
	}

	ev, err := g.CreateEvent(context.Background(), b, scheduling.PatientContact{Name: "Ana", Email: &email})
	require.NoError(t, err)

	assert.Equal(t, "evt-42", ev.ID)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", ev.JoinLink)
	assert.Contains(t, query, "conferenceDataVersion=1")
	assert.Equal(t, "Consultation with Ana", got["summary"])

	end := got["end"].(map[string]any)
	assert.Equal(t, "2025-03-03T10:45:00Z", end["dateTime"])

	attendees := got["attendees"].([]any)
	require.Len(t, attendees, 1)
	assert.Equal(t, email, attendees[0].(map[string]any)["email"])
}

func TestGoogle_CreateEvent_ServerError(t *testing.T) {
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 500, "message": "backend"}}`, http.StatusInternalServerError)
	}, &memTokens{tok: validToken()})

	b := scheduling.Booking{ID: uuid.New(), ScheduledAt: time.Now(), DurationMinutes: 30, Kind: scheduling.KindMeeting}
	_, err := g.CreateEvent(context.Background(), b, scheduling.PatientContact{Name: "Ana"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert calendar event")
}

func TestJoinLink_FallsBackToVideoEntryPoint(t *testing.T) {
	tokens := &memTokens{tok: validToken()}
	g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "evt-7",
			"conferenceData": {"entryPoints": [
				{"entryPointType": "phone", "uri": "tel:+1-555"},
				{"entryPointType": "video", "uri": "https://meet.example/v"}
			]}
		}`)
	}, tokens)

	b := scheduling.Booking{ID: uuid.New(), ScheduledAt: time.Now(), DurationMinutes: 30, Kind: scheduling.KindMeeting}
	ev, err := g.CreateEvent(context.Background(), b, scheduling.PatientContact{Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example/v", ev.JoinLink)
	assert.Zero(t, tokens.saves)
}

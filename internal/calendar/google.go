package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

var ErrNotConnected = errors.New("calendar is not connected")

// TokenStore persists the clinic's OAuth token.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
	Delete(ctx context.Context) error
}

// Config holds the Google OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CalendarID   string
}

// Google is the Google Calendar integration. It is connected once a token
// has been stored through the OAuth flow.
type Google struct {
	oauth      *oauth2.Config
	tokens     TokenStore
	calendarID string
	opts       []option.ClientOption
}

// NewGoogle builds the integration. Extra client options are appended to
// every service, which lets tests point the client at a local endpoint.
func NewGoogle(cfg Config, tokens TokenStore, opts ...option.ClientOption) *Google {
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				gcal.CalendarReadonlyScope,
				gcal.CalendarEventsScope,
			},
			Endpoint: google.Endpoint,
		},
		tokens:     tokens,
		calendarID: calendarID,
		opts:       opts,
	}
}

// AuthURL starts the OAuth consent flow.
func (g *Google) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange finishes the OAuth flow and stores the token.
func (g *Google) Exchange(ctx context.Context, code string) error {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	return g.tokens.Save(ctx, tok)
}

// Disconnect forgets the stored token.
func (g *Google) Disconnect(ctx context.Context) error {
	return g.tokens.Delete(ctx)
}

func (g *Google) IsConnected(ctx context.Context) bool {
	tok, err := g.tokens.Load(ctx)
	if err != nil {
		return false
	}
	return tok != nil && (tok.AccessToken != "" || tok.RefreshToken != "")
}

func (g *Google) service(ctx context.Context) (*gcal.Service, error) {
	tok, err := g.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	ts := &savingTokenSource{
		ctx:    context.WithoutCancel(ctx),
		base:   g.oauth.TokenSource(ctx, tok),
		store:  g.tokens,
		access: tok.AccessToken,
	}
	client := oauth2.NewClient(ctx, ts)

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, g.opts...)
	srv, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, nil
}

// ListBusyTimes asks the free/busy endpoint for the clinic calendar.
func (g *Google) ListBusyTimes(ctx context.Context, from, to time.Time) ([]scheduling.BusyTime, error) {
	srv, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := srv.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: g.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("query free/busy: %w", err)
	}

	cal, ok := resp.Calendars[g.calendarID]
	if !ok {
		return nil, fmt.Errorf("free/busy response has no calendar %q", g.calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("free/busy for %q: %s", g.calendarID, cal.Errors[0].Reason)
	}

	busy := make([]scheduling.BusyTime, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", p.Start, err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", p.End, err)
		}
		busy = append(busy, scheduling.BusyTime{Start: start, End: end})
	}
	return busy, nil
}

// CreateEvent mirrors a meeting with a Google Meet conference attached.
func (g *Google) CreateEvent(ctx context.Context, b scheduling.Booking, contact scheduling.PatientContact) (*scheduling.ExternalEvent, error) {
	srv, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	ev := &gcal.Event{
		Summary:     fmt.Sprintf("Consultation with %s", contact.Name),
		Description: b.Notes,
		Start:       &gcal.EventDateTime{DateTime: b.ScheduledAt.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: b.End().Format(time.RFC3339)},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             b.ID.String(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	if contact.Email != nil && *contact.Email != "" {
		ev.Attendees = []*gcal.EventAttendee{{Email: *contact.Email, DisplayName: contact.Name}}
	}

	created, err := srv.Events.Insert(g.calendarID, ev).ConferenceDataVersion(1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert calendar event: %w", err)
	}

	return &scheduling.ExternalEvent{ID: created.Id, JoinLink: joinLink(created)}, nil
}

func joinLink(ev *gcal.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				return ep.Uri
			}
		}
	}
	return ""
}

// savingTokenSource writes refreshed tokens back to the store.
type savingTokenSource struct {
	ctx    context.Context
	base   oauth2.TokenSource
	store  TokenStore
	access string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.access {
		s.access = tok.AccessToken
		if err := s.store.Save(s.ctx, tok); err != nil {
			log.Warn().Err(err).Msg("failed to persist refreshed calendar token")
		}
	}
	return tok, nil
}

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/logging"
)

const oauthStateCookie = "calendar_oauth_state"

type calendarHandler struct {
	cal CalendarConnector
}

func newCalendarHandler(cal CalendarConnector) *calendarHandler {
	return &calendarHandler{cal: cal}
}

func (h *calendarHandler) enabled(w http.ResponseWriter) bool {
	if h.cal == nil {
		writeError(w, http.StatusNotFound, "calendar_not_configured", "calendar integration is not configured")
		return false
	}
	return true
}

// Connect redirects staff to the consent screen. The state is echoed back
// through a short-lived cookie and checked in Callback.
func (h *calendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/calendar",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.cal.AuthURL(state), http.StatusFound)
}

func (h *calendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "calendar_consent_denied", e)
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		writeError(w, http.StatusBadRequest, "invalid_state", "oauth state does not match")
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing_code", "authorization code is required")
		return
	}

	if err := h.cal.Exchange(r.Context(), code); err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("calendar token exchange failed")
		writeError(w, http.StatusBadGateway, "calendar_exchange_failed", err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/calendar", MaxAge: -1})
	logging.FromContext(r.Context()).Info().Msg("calendar connected")
	writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

func (h *calendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}

	if err := h.cal.Disconnect(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "calendar_disconnect_failed", err.Error())
		return
	}

	logging.FromContext(r.Context()).Info().Msg("calendar disconnected")
	w.WriteHeader(http.StatusNoContent)
}

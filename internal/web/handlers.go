package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"

	"rz-top100-srv/internal/models"
)

// SubmitRequest is the payload channel adapters post after extracting the
// user id and text from their platform-specific webhook.
type SubmitRequest struct {
	Channel       models.Channel `json:"channel"`
	ChannelUserID string         `json:"channel_user_id"`
	RawText       string         `json:"raw_text"`
	SubmittedAt   *time.Time     `json:"submitted_at,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Channel.Valid() {
		writeError(w, http.StatusBadRequest, "channel must be telegram or whatsapp")
		return
	}
	if req.ChannelUserID == "" {
		writeError(w, http.StatusBadRequest, "channel_user_id is required")
		return
	}

	submittedAt := time.Now()
	if req.SubmittedAt != nil {
		submittedAt = *req.SubmittedAt
	}

	result, err := s.ledger.Submit(r.Context(), req.Channel, req.ChannelUserID, req.RawText, submittedAt)
	if err != nil {
		// transient fault: the user resubmits, nothing was written
		s.logger.Error().Err(err).Str("channel", string(req.Channel)).Msg("submit failed")
		writeError(w, http.StatusServiceUnavailable, "temporary failure, please try again")
		return
	}

	// rejections are payload, not HTTP errors; the adapter relays Message
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChartToday(w http.ResponseWriter, r *http.Request) {
	snap, err := s.reader.Today(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "chart storage unavailable")
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"day_key":  s.reader.TodayKey(),
			"computed": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleChartDay(w http.ResponseWriter, r *http.Request) {
	dayKey := chi.URLParam(r, "day")
	if _, err := time.Parse(models.DayKeyFormat, dayKey); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	snap, err := s.reader.Day(r.Context(), dayKey)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "chart storage unavailable")
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"day_key":  dayKey,
			"computed": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleChartWeekly(w http.ResponseWriter, r *http.Request) {
	endDay := r.URL.Query().Get("end")
	if endDay == "" {
		endDay = s.reader.TodayKey()
	}
	if _, err := time.Parse(models.DayKeyFormat, endDay); err != nil {
		writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
		return
	}
	weekly, err := s.aggregator.ComputeWeekly(r.Context(), endDay)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "chart storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, weekly)
}

type recomputeRequest struct {
	DayKey string `json:"day_key"`
}

// handleRecompute is the manual/backfill trigger. It is disabled unless an
// operator TOTP secret is configured.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if s.totpSecret == "" {
		writeError(w, http.StatusNotFound, "recompute is not enabled")
		return
	}
	if !totp.Validate(r.Header.Get("X-Admin-Code"), s.totpSecret) {
		writeError(w, http.StatusUnauthorized, "invalid admin code")
		return
	}

	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DayKey == "" {
		writeError(w, http.StatusBadRequest, "day_key is required")
		return
	}
	if _, err := time.Parse(models.DayKeyFormat, req.DayKey); err != nil {
		writeError(w, http.StatusBadRequest, "day_key must be YYYY-MM-DD")
		return
	}

	snap, err := s.aggregator.Compute(r.Context(), req.DayKey)
	if err != nil {
		s.logger.Error().Err(err).Str("day", req.DayKey).Msg("manual recompute failed")
		writeError(w, http.StatusServiceUnavailable, "recompute failed, prior snapshot left intact")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"quotespeak/internal/app/playback"
	"quotespeak/internal/app/session"
	"quotespeak/internal/app/synth"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type joinRequest struct {
	ChannelID     string `json:"channel_id"`
	TextChannelID string `json:"text_channel_id"`
}

type speechRequest struct {
	Text          string `json:"text"`
	Speaker       *int   `json:"speaker"`
	ChannelID     string `json:"channel_id"`
	TextChannelID string `json:"text_channel_id"`
	// Wait keeps the request open until the speech has played or failed.
	Wait bool `json:"wait"`
}

type speechResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

type autoReadRequest struct {
	Enabled *bool `json:"enabled"`
}

type countResponse struct {
	Count int `json:"count"`
}

type skipResponse struct {
	Skipped bool `json:"skipped"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func tenantID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "tenant_id"))
}

func (api *API) joinSession(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}

	if req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, "channel_id is required")
		return
	}

	if _, err := api.service.JoinSession(r.Context(), tenantID(r), req.ChannelID, req.TextChannelID); err != nil {
		api.logger.Error("Failed to join session", "tenant", tenantID(r), "err", err)
		api.writeServiceError(w, err)
		return
	}

	status, err := api.service.Status(tenantID(r))
	if err != nil {
		api.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (api *API) leaveSession(w http.ResponseWriter, r *http.Request) {
	if err := api.service.LeaveSession(tenantID(r)); err != nil {
		api.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *API) sessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := api.service.Status(tenantID(r))
	if err != nil {
		api.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (api *API) submitSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if !decode(w, r, &req) {
		return
	}

	var opts []session.SubmitOption
	if req.ChannelID != "" {
		opts = append(opts, session.WithAutoJoin(req.ChannelID, req.TextChannelID))
	}
	if req.Speaker != nil {
		opts = append(opts, session.WithSpeaker(*req.Speaker))
	}

	handle, err := api.service.SubmitSpeech(r.Context(), tenantID(r), req.Text, opts...)
	if err != nil {
		api.writeServiceError(w, err)
		return
	}

	if !req.Wait {
		writeJSON(w, http.StatusAccepted, &speechResponse{ID: handle.ID(), Status: "queued"})
		return
	}

	if err := handle.Wait(r.Context()); err != nil {
		if r.Context().Err() != nil {
			return
		}

		writeJSON(w, statusOf(err), &speechResponse{ID: handle.ID(), Status: "failed", Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, &speechResponse{ID: handle.ID(), Status: "finished"})
}

func (api *API) skip(w http.ResponseWriter, r *http.Request) {
	skipped, err := api.service.SkipCurrent(tenantID(r))
	if err != nil {
		api.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &skipResponse{Skipped: skipped})
}

func (api *API) clear(w http.ResponseWriter, r *http.Request) {
	cnt, err := api.service.ClearQueue(tenantID(r))
	if err != nil {
		api.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &countResponse{Count: cnt})
}

func (api *API) stopAll(w http.ResponseWriter, r *http.Request) {
	cnt, err := api.service.StopAll(tenantID(r))
	if err != nil {
		api.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &countResponse{Count: cnt})
}

func (api *API) setAutoRead(w http.ResponseWriter, r *http.Request) {
	var req autoReadRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := api.service.SetAutoRead(tenantID(r), *req.Enabled); err != nil {
		api.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func statusOf(err error) int {
	var synthErr *synth.SynthesisError

	switch {
	case errors.Is(err, session.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, playback.ErrQueueCleared):
		return http.StatusConflict
	case errors.As(err, &synthErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (api *API) writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusOf(err), err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, &errorResponse{Error: msg})
}

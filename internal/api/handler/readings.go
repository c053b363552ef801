package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
	"github.com/ultrasense/ultrasense-server/internal/api/respond"
	"github.com/ultrasense/ultrasense-server/internal/cache"
)

// RegisterTokenRequest is the body of POST /register-token.
type RegisterTokenRequest struct {
	Token        string `json:"token"`
	ExperienceID string `json:"experienceId"`
}

// SendDistanceRequest is the body of POST /send-distance.
type SendDistanceRequest struct {
	Distance *float64 `json:"distance"`
}

// SendDistanceResponse is returned for every stored reading.
type SendDistanceResponse struct {
	Message  string         `json:"message"`
	Reading  alerts.Reading `json:"reading"`
	Dispatch *alerts.Report `json:"dispatch"`
}

// RegisterToken stores or re-assigns a device push token.
// @Summary Register a device token
// @Description Upserts a push token for an app experience. Re-registering a token moves it to the new experience.
// @Tags devices
// @Accept json
// @Produce json
// @Param body body RegisterTokenRequest true "Token and experience"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /register-token [post]
func (h *Handler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req RegisterTokenRequest
	if !h.decode(w, r, &req, "MISSING_FIELDS", "Missing token or experienceId") {
		return
	}

	err := h.services.Load().Registry.Register(r.Context(), req.Token, req.ExperienceID)
	var ve *alerts.ValidationError
	switch {
	case errors.As(err, &ve):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "MISSING_FIELDS", "Missing token or experienceId", ve.Error())
		return
	case err != nil:
		h.logger.Error("Register token failed", "experience_id", req.ExperienceID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Error registering token")
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, map[string]string{"message": "Token registered"})
}

// SendDistance stores a reading and alerts every registered device when it
// crosses the threshold. The response carries the dispatch report.
// @Summary Submit a distance reading
// @Description Stores the reading. Readings above the alert threshold are pushed to every registered device, grouped per experience.
// @Tags readings
// @Accept json
// @Produce json
// @Param body body SendDistanceRequest true "Distance in centimetres"
// @Success 200 {object} SendDistanceResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /send-distance [post]
func (h *Handler) SendDistance(w http.ResponseWriter, r *http.Request) {
	var req SendDistanceRequest
	if !h.decode(w, r, &req, "INVALID_DISTANCE", "Invalid distance") {
		return
	}
	if req.Distance == nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_DISTANCE", "Invalid distance", "distance is required")
		return
	}

	sub, err := h.services.Load().Coordinator.SubmitReading(r.Context(), *req.Distance)
	var ve *alerts.ValidationError
	switch {
	case errors.As(err, &ve):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_DISTANCE", "Invalid distance", ve.Error())
		return
	case err != nil && !sub.Persisted:
		h.logger.Error("Store distance failed", "distance", *req.Distance, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Error storing distance")
		return
	case err != nil:
		h.logger.Error("Alert dispatch failed", "reading_id", sub.Stored.ID, "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "STORAGE_ERROR", "Error dispatching alert",
			fmt.Sprintf("reading %d was stored", sub.Stored.ID))
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, SendDistanceResponse{
		Message:  "Distance received",
		Reading:  sub.Stored,
		Dispatch: sub.Dispatch,
	})
}

// LatestDistance returns the most recent reading.
// @Summary Latest distance reading
// @Description Returns the last stored reading, or {"distance": null} when none exist. Supports ETag revalidation.
// @Tags readings
// @Produce json
// @Success 200 {object} alerts.Reading
// @Success 304
// @Failure 500 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /latest-distance [get]
func (h *Handler) LatestDistance(w http.ResponseWriter, r *http.Request) {
	key := cache.KeyLatestReading
	ttl := cache.TTLLatestReading

	if data, etag, ok := h.cache.Get(r.Context(), key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	gen := h.latestGen.Load()
	latest, err := h.services.Load().Readings.Latest(r.Context())
	if err != nil {
		h.logger.Error("Fetch latest distance failed", "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", "Error fetching distance")
		return
	}

	var v any = map[string]any{"distance": nil}
	if latest != nil {
		v = latest
	}
	data, err := json.Marshal(v)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Error encoding distance")
		return
	}

	etag := h.cache.Set(r.Context(), key, data, ttl)
	if h.latestGen.Load() != gen {
		// A reading landed while this one was being read; don't keep it.
		h.cache.Delete(r.Context(), key)
	}
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, ttl, false)
}

// decode parses a JSON body. Malformed JSON and oversized bodies get their
// own codes; a well-formed body with wrong field types answers code/message.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, code, message string) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		// An empty body decodes as an empty object.
		return true
	}

	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxErr):
		respond.WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
	case errors.As(err, &typeErr):
		respond.WriteErrorDetail(w, http.StatusBadRequest, code, message, err.Error())
	default:
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body", err.Error())
	}
	return false
}

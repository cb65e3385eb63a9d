package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/agendave/micita/libs/httpx"
	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/agendave/micita/services/booking-service/internal/storage"
	"github.com/agendave/micita/services/booking-service/internal/supabase"
)

// writeDomainError maps domain and storage errors to HTTP responses. An
// overlap tells the client to refresh its slot list.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, availability.ErrOverlap), errors.Is(err, storage.ErrConflict):
		httpx.WriteJSON(w, http.StatusConflict, httpx.ErrorBody{
			Error:   "the selected time is no longer available",
			Reason:  "overlap",
			Refresh: true,
		})
	case errors.Is(err, availability.ErrOutsideBusinessHours):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "outside_business_hours", "requested time is outside business hours")
	case errors.Is(err, availability.ErrProviderNotConfigured):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "provider_not_configured", "provider has not configured availability")
	case errors.Is(err, availability.ErrInvalidDuration):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_duration", "invalid duration")
	case errors.Is(err, availability.ErrInvalidTime):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "invalid start time")
	case errors.Is(err, availability.ErrInvalidSchedule), errors.Is(err, storage.ErrMultipleRanges):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
	case errors.Is(err, model.ErrInvalidServiceDuration), errors.Is(err, model.ErrInvalidPrice):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_service", err.Error())
	case errors.Is(err, storage.ErrIdempotencyKeyReused):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", err.Error())
	case errors.Is(err, storage.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "appointment not found")
	case errors.Is(err, model.ErrServiceNotFound):
		httpx.WriteError(w, http.StatusNotFound, "service_not_found", "service not found")
	case errors.Is(err, supabase.ErrMalformedRecord):
		logger.Error(op+" failed: malformed upstream record", "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "malformed_record", "upstream returned an invalid record")
	default:
		logger.Error(op+" failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "", op+" failed")
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agendave/micita/libs/auth"
	"github.com/agendave/micita/libs/httpx"
	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/agendave/micita/services/booking-service/internal/storage"
	"github.com/google/uuid"
)

type BookingHandler struct {
	ledger      LedgerReader
	schedules   ScheduleReader
	catalog     CatalogReader
	booker      Booker
	logger      *slog.Logger
	granularity int
	defaultLoc  *time.Location
	now         func() time.Time
}

type BookingConfig struct {
	GranularityMinutes int
	DefaultLocation    *time.Location
}

func NewBookingHandler(ledger LedgerReader, schedules ScheduleReader, catalog CatalogReader, booker Booker, logger *slog.Logger, cfg BookingConfig) *BookingHandler {
	if cfg.GranularityMinutes <= 0 {
		cfg.GranularityMinutes = 30
	}
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	return &BookingHandler{
		ledger:      ledger,
		schedules:   schedules,
		catalog:     catalog,
		booker:      booker,
		logger:      logger,
		granularity: cfg.GranularityMinutes,
		defaultLoc:  cfg.DefaultLocation,
		now:         time.Now,
	}
}

// Slots lists the provider's slots for a date. Slots that already started in
// the provider's timezone are reported unavailable; available_only=true drops
// every unavailable slot.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if !isUUID(providerID) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_provider", "provider_id required")
		return
	}
	date, err := model.ParseDate(q.Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	ctx := r.Context()
	duration := 0
	if serviceID != "" {
		svc, err := h.catalog.GetService(ctx, providerID, serviceID)
		if err != nil {
			writeDomainError(w, h.logger, "load service", err)
			return
		}
		if !svc.Active {
			httpx.WriteError(w, http.StatusNotFound, "service_not_found", "service not found")
			return
		}
		duration = svc.DurationMinutes
	}
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be an integer")
			return
		}
		duration = n
	}
	if serviceID == "" && q.Get("duration_minutes") == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_duration", "service_id or duration_minutes required")
		return
	}

	week, err := h.schedules.GetWeekly(ctx, providerID)
	if err != nil {
		writeDomainError(w, h.logger, "load availability", err)
		return
	}
	appts, err := h.ledger.ListActive(ctx, providerID, date)
	if err != nil {
		writeDomainError(w, h.logger, "load appointments", err)
		return
	}

	slots, reason := availability.GenerateSlots(week, appts, duration, date, h.granularity)

	loc := week.Location(h.defaultLoc)
	local := h.now().In(loc)
	today := model.DateOf(local)
	switch {
	case date == today:
		slots = availability.MarkElapsed(slots, model.ClockOf(local))
	case date.Before(today):
		slots = availability.MarkElapsed(slots, model.MinutesPerDay)
	}
	if q.Get("available_only") == "true" {
		slots = availability.Available(slots)
	}
	if slots == nil {
		slots = []availability.TimeSlot{}
	}

	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		ProviderID:      providerID,
		ServiceID:       serviceID,
		Date:            date.String(),
		DurationMinutes: duration,
		Timezone:        loc.String(),
		Reason:          string(reason),
		Slots:           slots,
	})
}

type bookRequest struct {
	ProviderID  string `json:"provider_id"`
	ServiceID   string `json:"service_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
}

// Book creates a pending appointment for the authenticated client. The
// Idempotency-Key header makes retries return the original appointment.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clientID := strings.TrimSpace(r.Header.Get(auth.HeaderUserID))
	if clientID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if !isUUID(req.ProviderID) || req.ServiceID == "" {
		http.Error(w, "provider_id and service_id required", http.StatusBadRequest)
		return
	}
	date, at, ok := parseDateTime(w, req.Date, req.Time)
	if !ok {
		return
	}

	ctx := r.Context()
	svc, err := h.catalog.GetService(ctx, req.ProviderID, req.ServiceID)
	if err != nil {
		writeDomainError(w, h.logger, "load service", err)
		return
	}
	if !svc.Active {
		httpx.WriteError(w, http.StatusNotFound, "service_not_found", "service not found")
		return
	}
	if h.startsInPast(ctx, req.ProviderID, date, at) {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "in_past", "requested time has already passed")
		return
	}

	res, err := h.booker.Book(ctx, storage.BookRequest{
		Appointment: model.Appointment{
			ProviderID:      req.ProviderID,
			ServiceID:       svc.ID,
			ClientID:        clientID,
			ClientName:      strings.TrimSpace(req.ClientName),
			ClientPhone:     strings.TrimSpace(req.ClientPhone),
			Date:            date,
			Time:            at,
			DurationMinutes: svc.DurationMinutes,
			Status:          model.StatusPending,
			Notes:           strings.TrimSpace(req.Notes),
		},
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeDomainError(w, h.logger, "book appointment", err)
		return
	}
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	h.logger.Info("appointment booked", "appointment_id", res.Appointment.ID, "provider_id", req.ProviderID, "replayed", res.Replayed)
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentItem(res.Appointment))
}

// Appointments serves the provider's ledger: GET lists, POST records a manual
// or imported appointment.
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.createManual(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(r.Header.Get(auth.HeaderProviderID))

	var date model.Date
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.ledger.ListByProvider(r.Context(), providerID, date, limit)
	if err != nil {
		writeDomainError(w, h.logger, "list appointments", err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

type manualRequest struct {
	ServiceID             string `json:"service_id"`
	ClientName            string `json:"client_name"`
	ClientPhone           string `json:"client_phone"`
	Date                  string `json:"date"`
	Time                  string `json:"time"`
	DurationMinutes       int    `json:"duration_minutes"`
	Status                string `json:"status"`
	Notes                 string `json:"notes"`
	SkipAvailabilityCheck bool   `json:"skip_availability_check"`
}

func (h *BookingHandler) createManual(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(r.Header.Get(auth.HeaderProviderID))

	var req manualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	date, at, ok := parseDateTime(w, req.Date, req.Time)
	if !ok {
		return
	}
	status := model.StatusConfirmed
	if req.Status != "" {
		s, ok := model.ParseStatus(req.Status)
		if !ok || !s.Occupies() {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_status", "status must be pending or confirmed")
			return
		}
		status = s
	}

	ctx := r.Context()
	duration := req.DurationMinutes
	serviceID := strings.TrimSpace(req.ServiceID)
	if serviceID != "" {
		svc, err := h.catalog.GetService(ctx, providerID, serviceID)
		if err != nil {
			writeDomainError(w, h.logger, "load service", err)
			return
		}
		if duration == 0 {
			duration = svc.DurationMinutes
		}
	}

	res, err := h.booker.Book(ctx, storage.BookRequest{
		Appointment: model.Appointment{
			ProviderID:      providerID,
			ServiceID:       serviceID,
			ClientName:      strings.TrimSpace(req.ClientName),
			ClientPhone:     strings.TrimSpace(req.ClientPhone),
			Date:            date,
			Time:            at,
			DurationMinutes: duration,
			Status:          status,
			Notes:           strings.TrimSpace(req.Notes),
		},
		SkipAvailabilityCheck: req.SkipAvailabilityCheck,
		IdempotencyKey:        strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeDomainError(w, h.logger, "create appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentItem(res.Appointment))
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := strings.TrimSpace(r.Header.Get(auth.HeaderProviderID))

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	next, ok := model.ParseStatus(strings.TrimSpace(req.Status))
	if !ok || strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id and a valid status required", http.StatusBadRequest)
		return
	}

	appt, err := h.booker.UpdateStatus(r.Context(), providerID, strings.TrimSpace(req.AppointmentID), next)
	if err != nil {
		writeDomainError(w, h.logger, "update status", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

// Cancel lets the provider, or the client who booked, cancel an appointment.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.AppointmentID)
	if id == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	reason := strings.TrimSpace(req.Reason)

	ctx := r.Context()
	providerID := strings.TrimSpace(r.Header.Get(auth.HeaderProviderID))
	userID := strings.TrimSpace(r.Header.Get(auth.HeaderUserID))

	var (
		appt model.Appointment
		err  error
	)
	if providerID != "" {
		appt, err = h.booker.Cancel(ctx, storage.Actor{ProviderID: providerID}, id, reason)
	}
	if providerID == "" || (storage.IsNotFound(err) && userID != "") {
		appt, err = h.booker.Cancel(ctx, storage.Actor{ClientID: userID}, id, reason)
	}
	if err != nil {
		writeDomainError(w, h.logger, "cancel appointment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentItem(appt))
}

// startsInPast compares against the provider's local clock. A failed schedule
// lookup is left for the commit path to report.
func (h *BookingHandler) startsInPast(ctx context.Context, providerID string, date model.Date, at model.Clock) bool {
	week, err := h.schedules.GetWeekly(ctx, providerID)
	if err != nil {
		return false
	}
	local := h.now().In(week.Location(h.defaultLoc))
	today := model.DateOf(local)
	return date.Before(today) || (date == today && at < model.ClockOf(local))
}

func parseDateTime(w http.ResponseWriter, rawDate, rawTime string) (model.Date, model.Clock, bool) {
	date, err := model.ParseDate(rawDate)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return model.Date{}, 0, false
	}
	at, err := model.ParseClock(rawTime)
	if err != nil || !at.Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
		return model.Date{}, 0, false
	}
	return date, at, true
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

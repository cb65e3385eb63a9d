package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agendave/micita/libs/auth"
	"github.com/agendave/micita/libs/httpx"
	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// ProviderHandler serves the provider's own schedule and catalog, plus the
// public catalog listing.
type ProviderHandler struct {
	schedules      ScheduleReader
	scheduleWriter ScheduleWriter
	catalog        CatalogReader
	catalogWriter  CatalogWriter
	invalidator    Invalidator
	logger         *slog.Logger
}

func NewProviderHandler(schedules ScheduleReader, scheduleWriter ScheduleWriter, catalog CatalogReader, catalogWriter CatalogWriter, invalidator Invalidator, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{
		schedules:      schedules,
		scheduleWriter: scheduleWriter,
		catalog:        catalog,
		catalogWriter:  catalogWriter,
		invalidator:    invalidator,
		logger:         logger,
	}
}

func (h *ProviderHandler) Availability(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(r.Header.Get(auth.HeaderProviderID))
	switch r.Method {
	case http.MethodGet:
		week, err := h.schedules.GetWeekly(r.Context(), providerID)
		if err != nil {
			writeDomainError(w, h.logger, "load availability", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toAvailabilityBody(week))
	case http.MethodPut:
		h.updateAvailability(w, r, providerID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ProviderHandler) updateAvailability(w http.ResponseWriter, r *http.Request, providerID string) {
	var body availabilityBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	week := availability.WeeklyAvailability{ProviderID: providerID, Timezone: strings.TrimSpace(body.Timezone)}
	for _, d := range body.Days {
		day := availability.DayAvailability{Weekday: time.Weekday(d.Weekday), Enabled: d.Enabled}
		if d.Start != "" || d.End != "" {
			start, err := model.ParseClock(d.Start)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
				return
			}
			end, err := model.ParseClock(d.End)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
				return
			}
			day.Ranges = []availability.Range{{Start: start, End: end}}
		}
		week.Days = append(week.Days, day)
	}
	if err := week.Validate(); err != nil {
		writeDomainError(w, h.logger, "update availability", err)
		return
	}

	ctx := r.Context()
	if err := h.scheduleWriter.UpsertWeekly(ctx, week); err != nil {
		writeDomainError(w, h.logger, "update availability", err)
		return
	}
	h.invalidate(r, providerID)

	saved, err := h.schedules.GetWeekly(ctx, providerID)
	if err != nil {
		writeDomainError(w, h.logger, "load availability", err)
		return
	}
	h.logger.Info("availability updated", "provider_id", providerID)
	httpx.WriteJSON(w, http.StatusOK, toAvailabilityBody(saved))
}

func (h *ProviderHandler) Services(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(r.Header.Get(auth.HeaderProviderID))
	switch r.Method {
	case http.MethodGet:
		h.writeServices(w, r, providerID, false)
	case http.MethodPost:
		h.createService(w, r, providerID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// PublicServices lists a provider's active services for clients.
func (h *ProviderHandler) PublicServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if !isUUID(providerID) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_provider", "provider_id required")
		return
	}
	h.writeServices(w, r, providerID, true)
}

func (h *ProviderHandler) writeServices(w http.ResponseWriter, r *http.Request, providerID string, activeOnly bool) {
	services, err := h.catalog.ListServices(r.Context(), providerID)
	if err != nil {
		writeDomainError(w, h.logger, "list services", err)
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		if activeOnly && !s.Active {
			continue
		}
		items = append(items, toServiceItem(s))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

type createServiceRequest struct {
	Name            string           `json:"name"`
	DurationMinutes int              `json:"duration_minutes"`
	Price           decimal.Decimal  `json:"price"`
	PriceMax        *decimal.Decimal `json:"price_max"`
	InputType       string           `json:"input_type"`
}

func (h *ProviderHandler) createService(w http.ResponseWriter, r *http.Request, providerID string) {
	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_service", "name required")
		return
	}
	inputType := model.PriceInputType(strings.TrimSpace(req.InputType))
	if inputType == "" {
		inputType = model.PriceFixed
	}

	svc, err := h.catalogWriter.CreateService(r.Context(), model.Service{
		ProviderID:      providerID,
		Name:            name,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		PriceMax:        req.PriceMax,
		InputType:       inputType,
	})
	if err != nil {
		writeDomainError(w, h.logger, "create service", err)
		return
	}
	h.invalidate(r, providerID)
	httpx.WriteJSON(w, http.StatusCreated, toServiceItem(svc))
}

// invalidate is best effort: entries also expire by age and on the
// availability and catalog events.
func (h *ProviderHandler) invalidate(r *http.Request, providerID string) {
	if h.invalidator == nil {
		return
	}
	if err := h.invalidator.Invalidate(r.Context(), providerID); err != nil {
		h.logger.Warn("cache invalidation failed", "provider_id", providerID, "err", err)
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agendave/micita/libs/auth"
	"github.com/agendave/micita/libs/httpx"
	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/agendave/micita/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
)

const (
	providerID = "8d3c6a52-1f0e-4b7a-9c1d-2e5f6a7b8c9d"
	clientID   = "0f9e8d7c-6b5a-4c3d-8e2f-1a0b9c8d7e6f"
	serviceID  = "svc-corte"
)

var (
	vet    = time.FixedZone("VET", -4*60*60)
	monday = model.Date{Year: 2026, Month: time.March, Day: 2}
)

type fakeStore struct {
	week         availability.WeeklyAvailability
	services     []model.Service
	appts        []model.Appointment
	upserted     *availability.WeeklyAvailability
	created      *model.Service
	invalidated  []string
	booked       []storage.BookRequest
	bookErr      error
	statusErr    error
	cancelActors []storage.Actor
	cancelErrs   map[string]error
}

func (f *fakeStore) GetWeekly(_ context.Context, id string) (availability.WeeklyAvailability, error) {
	w := f.week
	w.ProviderID = id
	return w, nil
}

func (f *fakeStore) UpsertWeekly(_ context.Context, w availability.WeeklyAvailability) error {
	f.upserted = &w
	f.week = w
	return nil
}

func (f *fakeStore) ListServices(context.Context, string) ([]model.Service, error) {
	return f.services, nil
}

func (f *fakeStore) GetService(_ context.Context, _, id string) (model.Service, error) {
	for _, s := range f.services {
		if s.ID == id {
			return s, nil
		}
	}
	return model.Service{}, model.ErrServiceNotFound
}

func (f *fakeStore) CreateService(_ context.Context, s model.Service) (model.Service, error) {
	if err := s.Validate(); err != nil {
		return model.Service{}, err
	}
	s.ID = "svc-new"
	s.Active = true
	f.created = &s
	return s, nil
}

func (f *fakeStore) ListActive(context.Context, string, model.Date) ([]model.Appointment, error) {
	return f.appts, nil
}

func (f *fakeStore) ListByProvider(context.Context, string, model.Date, int) ([]model.Appointment, error) {
	return f.appts, nil
}

func (f *fakeStore) Book(_ context.Context, req storage.BookRequest) (storage.BookResult, error) {
	f.booked = append(f.booked, req)
	if f.bookErr != nil {
		return storage.BookResult{}, f.bookErr
	}
	a := req.Appointment
	a.ID = "appt-1"
	a.Manual = req.SkipAvailabilityCheck
	return storage.BookResult{Appointment: a}, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, _, id string, next model.Status) (model.Appointment, error) {
	if f.statusErr != nil {
		return model.Appointment{}, f.statusErr
	}
	return model.Appointment{ID: id, ProviderID: providerID, Date: monday, Time: 600, DurationMinutes: 30, Status: next}, nil
}

func (f *fakeStore) Cancel(_ context.Context, actor storage.Actor, id, reason string) (model.Appointment, error) {
	f.cancelActors = append(f.cancelActors, actor)
	key := "client"
	if actor.ProviderID != "" {
		key = "provider"
	}
	if err := f.cancelErrs[key]; err != nil {
		return model.Appointment{}, err
	}
	return model.Appointment{ID: id, ProviderID: providerID, Date: monday, Time: 600, DurationMinutes: 30, Status: model.StatusCancelled, CancelReason: reason}, nil
}

func (f *fakeStore) Invalidate(_ context.Context, id string) error {
	f.invalidated = append(f.invalidated, id)
	return nil
}

func newFixture(now time.Time) (*fakeStore, *BookingHandler, *ProviderHandler) {
	store := &fakeStore{
		week: availability.WeeklyAvailability{Days: []availability.DayAvailability{
			{Weekday: time.Monday, Enabled: true, Ranges: []availability.Range{{Start: 9 * 60, End: 12 * 60}}},
			{Weekday: time.Tuesday, Enabled: false, Ranges: []availability.Range{{Start: 9 * 60, End: 12 * 60}}},
		}},
		services: []model.Service{
			{ID: serviceID, ProviderID: providerID, Name: "Corte", DurationMinutes: 30, Price: decimal.NewFromInt(10), InputType: model.PriceFixed, Active: true},
			{ID: "svc-old", ProviderID: providerID, Name: "Retirado", DurationMinutes: 60, Price: decimal.NewFromInt(5), InputType: model.PriceFixed, Active: false},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bh := NewBookingHandler(store, store, store, store, logger, BookingConfig{GranularityMinutes: 30, DefaultLocation: vet})
	bh.now = func() time.Time { return now }
	ph := NewProviderHandler(store, store, store, store, store, logger)
	return store, bh, ph
}

// The Sunday before the test Monday, in provider-local time.
var sundayNoon = time.Date(2026, 3, 1, 12, 0, 0, 0, vet)

func getSlots(t *testing.T, h *BookingHandler, query string) (int, slotsResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?"+query, nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	var resp slotsResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode slots: %v", err)
		}
	}
	return rec.Code, resp
}

func TestSlots(t *testing.T) {
	store, h, _ := newFixture(sundayNoon)
	store.appts = []model.Appointment{{ID: "a1", Date: monday, Time: 10 * 60, DurationMinutes: 30, Status: model.StatusConfirmed}}

	code, resp := getSlots(t, h, "provider_id="+providerID+"&service_id="+serviceID+"&date=2026-03-02")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(resp.Slots) != 6 || resp.DurationMinutes != 30 || resp.Reason != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	for _, s := range resp.Slots {
		if want := s.Time.String() != "10:00"; s.IsAvailable != want {
			t.Fatalf("slot %s: expected available=%v", s.Time, want)
		}
	}
}

func TestSlotsMarksElapsedToday(t *testing.T) {
	_, h, _ := newFixture(time.Date(2026, 3, 2, 10, 15, 0, 0, vet))
	_, resp := getSlots(t, h, "provider_id="+providerID+"&date=2026-03-02&duration_minutes=30")
	for _, s := range resp.Slots {
		if want := s.Time >= 10*60+30; s.IsAvailable != want {
			t.Fatalf("slot %s: expected available=%v", s.Time, want)
		}
	}
}

func TestSlotsAvailableOnly(t *testing.T) {
	store, h, _ := newFixture(sundayNoon)
	store.appts = []model.Appointment{{ID: "a1", Date: monday, Time: 10 * 60, DurationMinutes: 30, Status: model.StatusConfirmed}}

	_, resp := getSlots(t, h, "provider_id="+providerID+"&service_id="+serviceID+"&date=2026-03-02&available_only=true")
	if len(resp.Slots) != 5 {
		t.Fatalf("expected 5 free slots, got %+v", resp.Slots)
	}
	for _, s := range resp.Slots {
		if !s.IsAvailable || s.Time == 10*60 {
			t.Fatalf("unexpected slot %+v", s)
		}
	}
}

func TestSlotsClosedDay(t *testing.T) {
	_, h, _ := newFixture(sundayNoon)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id="+providerID+"&service_id="+serviceID+"&date=2026-03-03", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"reason":"day_closed"`) || !strings.Contains(body, `"slots":[]`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestSlotsValidation(t *testing.T) {
	_, h, _ := newFixture(sundayNoon)
	cases := []struct {
		query string
		want  int
	}{
		{"service_id=" + serviceID + "&date=2026-03-02", http.StatusBadRequest},
		{"provider_id=" + providerID + "&service_id=" + serviceID + "&date=02-03-2026", http.StatusBadRequest},
		{"provider_id=" + providerID + "&date=2026-03-02", http.StatusBadRequest},
		{"provider_id=" + providerID + "&date=2026-03-02&duration_minutes=abc", http.StatusBadRequest},
		{"provider_id=" + providerID + "&service_id=missing&date=2026-03-02", http.StatusNotFound},
		{"provider_id=" + providerID + "&service_id=svc-old&date=2026-03-02", http.StatusNotFound},
	}
	for _, tc := range cases {
		if code, _ := getSlots(t, h, tc.query); code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.query, tc.want, code)
		}
	}
}

func postJSON(handler http.HandlerFunc, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestBook(t *testing.T) {
	store, h, _ := newFixture(sundayNoon)
	body := fmt.Sprintf(`{"provider_id":%q,"service_id":%q,"date":"2026-03-02","time":"10:30","client_name":"Ana"}`, providerID, serviceID)
	rec := postJSON(h.Book, "/api/v1/public/book", body, map[string]string{
		auth.HeaderUserID: clientID,
		"Idempotency-Key": "k-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.booked) != 1 {
		t.Fatalf("expected one booking call, got %d", len(store.booked))
	}
	got := store.booked[0]
	if got.IdempotencyKey != "k-1" || got.SkipAvailabilityCheck {
		t.Fatalf("unexpected request flags %+v", got)
	}
	a := got.Appointment
	if a.ClientID != clientID || a.DurationMinutes != 30 || a.Time != 10*60+30 || a.Status != model.StatusPending {
		t.Fatalf("unexpected appointment %+v", a)
	}
	var item appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.EndTime != "11:00" {
		t.Fatalf("expected end 11:00, got %s", item.EndTime)
	}
}

func TestBookErrors(t *testing.T) {
	body := fmt.Sprintf(`{"provider_id":%q,"service_id":%q,"date":"2026-03-02","time":"10:00"}`, providerID, serviceID)
	cases := []struct {
		name    string
		err     error
		code    int
		reason  string
		refresh bool
	}{
		{"late overlap", fmt.Errorf("%w: %w", storage.ErrConflict, availability.ErrOverlap), http.StatusConflict, "overlap", true},
		{"guard overlap", &availability.ConflictError{Reason: availability.ErrOverlap}, http.StatusConflict, "overlap", true},
		{"outside hours", &availability.ConflictError{Reason: availability.ErrOutsideBusinessHours}, http.StatusUnprocessableEntity, "outside_business_hours", false},
		{"not configured", &availability.ConflictError{Reason: availability.ErrProviderNotConfigured}, http.StatusUnprocessableEntity, "provider_not_configured", false},
		{"bad start", &availability.ConflictError{Reason: availability.ErrInvalidTime}, http.StatusBadRequest, "invalid_time", false},
		{"key reused", storage.ErrIdempotencyKeyReused, http.StatusUnprocessableEntity, "idempotency_key_reused", false},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, h, _ := newFixture(sundayNoon)
			store.bookErr = tc.err
			rec := postJSON(h.Book, "/api/v1/public/book", body, map[string]string{auth.HeaderUserID: clientID})
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			var eb httpx.ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &eb); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if eb.Reason != tc.reason || eb.Refresh != tc.refresh {
				t.Fatalf("unexpected body %+v", eb)
			}
		})
	}
}

func TestBookRejectsBeforeCommit(t *testing.T) {
	body := fmt.Sprintf(`{"provider_id":%q,"service_id":%q,"date":"2026-03-02","time":"09:00"}`, providerID, serviceID)

	store, h, _ := newFixture(sundayNoon)
	if rec := postJSON(h.Book, "/api/v1/public/book", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	late, h, _ := newFixture(time.Date(2026, 3, 2, 9, 5, 0, 0, vet))
	rec := postJSON(h.Book, "/api/v1/public/book", body, map[string]string{auth.HeaderUserID: clientID})
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "in_past") {
		t.Fatalf("expected in_past rejection, got %d %s", rec.Code, rec.Body.String())
	}

	bad := fmt.Sprintf(`{"provider_id":%q,"service_id":%q,"date":"2026-03-02","time":"25:00"}`, providerID, serviceID)
	if rec := postJSON(h.Book, "/api/v1/public/book", bad, map[string]string{auth.HeaderUserID: clientID}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad time, got %d", rec.Code)
	}
	if len(store.booked) != 0 || len(late.booked) != 0 {
		t.Fatal("no request should reach the commit path")
	}
}

func TestManualAppointmentSkipsChecks(t *testing.T) {
	store, h, _ := newFixture(sundayNoon)
	body := `{"client_name":"Importado","date":"2026-03-02","time":"23:00","duration_minutes":30,"skip_availability_check":true}`
	rec := postJSON(h.Appointments, "/api/v1/appointments", body, map[string]string{auth.HeaderProviderID: providerID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	got := store.booked[0]
	if !got.SkipAvailabilityCheck || got.Appointment.Status != model.StatusConfirmed || got.Appointment.ProviderID != providerID {
		t.Fatalf("unexpected manual request %+v", got)
	}

	rec = postJSON(h.Appointments, "/api/v1/appointments", `{"date":"2026-03-02","time":"10:00","duration_minutes":30,"status":"done"}`, map[string]string{auth.HeaderProviderID: providerID})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for terminal initial status, got %d", rec.Code)
	}
}

func TestListAppointments(t *testing.T) {
	store, h, _ := newFixture(sundayNoon)
	store.appts = []model.Appointment{{ID: "a1", ProviderID: providerID, Date: monday, Time: 600, DurationMinutes: 45, Status: model.StatusPending}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?date=2026-03-02", nil)
	req.Header.Set(auth.HeaderProviderID, providerID)
	rec := httptest.NewRecorder()
	h.Appointments(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []appointmentItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Time != "10:00" || items[0].EndTime != "10:45" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestUpdateStatus(t *testing.T) {
	store, h, _ := newFixture(sundayNoon)
	headers := map[string]string{auth.HeaderProviderID: providerID}

	rec := postJSON(h.UpdateStatus, "/api/v1/appointments/status", `{"appointment_id":"a1","status":"confirmed"}`, headers)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"confirmed"`) {
		t.Fatalf("expected confirmed, got %d %s", rec.Code, rec.Body.String())
	}

	if rec := postJSON(h.UpdateStatus, "/api/v1/appointments/status", `{"appointment_id":"a1","status":"booked"}`, headers); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	store.statusErr = fmt.Errorf("%w: done -> pending", storage.ErrInvalidTransition)
	rec = postJSON(h.UpdateStatus, "/api/v1/appointments/status", `{"appointment_id":"a1","status":"pending"}`, headers)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "invalid_transition") {
		t.Fatalf("expected 409 invalid_transition, got %d %s", rec.Code, rec.Body.String())
	}

	store.statusErr = storage.ErrNotFound
	if rec := postJSON(h.UpdateStatus, "/api/v1/appointments/status", `{"appointment_id":"a1","status":"done"}`, headers); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelFallsBackToClient(t *testing.T) {
	store, h, _ := newFixture(sundayNoon)
	store.cancelErrs = map[string]error{"provider": storage.ErrNotFound}

	rec := postJSON(h.Cancel, "/api/v1/appointments/cancel", `{"appointment_id":"a1","reason":"viaje"}`, map[string]string{
		auth.HeaderProviderID: providerID,
		auth.HeaderUserID:     clientID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if len(store.cancelActors) != 2 || store.cancelActors[1].ClientID != clientID {
		t.Fatalf("expected provider then client attempt, got %+v", store.cancelActors)
	}
	if !strings.Contains(rec.Body.String(), `"cancel_reason":"viaje"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/supabase-community/postgrest-go"
)

func TestDecodeAppointments(t *testing.T) {
	data := []byte(`[{
		"id": "a1", "provider_id": "p1", "service_id": null, "client_id": "c1",
		"client_name": "Ana", "appointment_date": "2026-03-02", "start_minute": 600,
		"duration_minutes": 30, "status": "confirmed", "manual": false,
		"cancelled_at": null, "created_at": "2026-02-20T10:00:00+00:00"
	}]`)
	appts, err := decodeAppointments(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(appts))
	}
	a := appts[0]
	if a.Time.String() != "10:00" || a.Date.String() != "2026-03-02" || a.Status != model.StatusConfirmed || a.ClientID != "c1" || a.ServiceID != "" {
		t.Fatalf("unexpected appointment %+v", a)
	}
}

func TestDecodeAppointmentsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing id":      `[{"provider_id":"p1","appointment_date":"2026-03-02","start_minute":600,"duration_minutes":30,"status":"pending"}]`,
		"bad date":        `[{"id":"a1","provider_id":"p1","appointment_date":"02/03/2026","start_minute":600,"duration_minutes":30,"status":"pending"}]`,
		"minute overflow": `[{"id":"a1","provider_id":"p1","appointment_date":"2026-03-02","start_minute":1440,"duration_minutes":30,"status":"pending"}]`,
		"zero duration":   `[{"id":"a1","provider_id":"p1","appointment_date":"2026-03-02","start_minute":600,"duration_minutes":0,"status":"pending"}]`,
		"unknown status":  `[{"id":"a1","provider_id":"p1","appointment_date":"2026-03-02","start_minute":600,"duration_minutes":30,"status":"booked"}]`,
		"not an array":    `{"id":"a1"}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeAppointments([]byte(data)); !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}

func TestDecodeWeekly(t *testing.T) {
	week, err := decodeWeekly("p1",
		[]byte(`[{"timezone":"America/Caracas"}]`),
		[]byte(`[{"weekday":1,"enabled":true,"start_minute":540,"end_minute":720},{"weekday":0,"enabled":false,"start_minute":540,"end_minute":1080}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if week.Timezone != "America/Caracas" || !week.Configured() {
		t.Fatalf("unexpected week %+v", week)
	}
	if r := week.Day(time.Monday); len(r) != 1 || r[0].End.String() != "12:00" {
		t.Fatalf("unexpected monday ranges %+v", r)
	}
	if r := week.Day(time.Sunday); len(r) != 0 {
		t.Fatalf("sunday is disabled, got %+v", r)
	}

	_, err = decodeWeekly("p1", []byte(`[]`), []byte(`[{"weekday":1,"enabled":true,"start_minute":720,"end_minute":540}]`))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord for inverted range, got %v", err)
	}
	_, err = decodeWeekly("p1", []byte(`[]`), []byte(`[{"weekday":7,"enabled":true,"start_minute":540,"end_minute":720}]`))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord for weekday 7, got %v", err)
	}
}

func TestDecodeServices(t *testing.T) {
	services, err := decodeServices([]byte(`[
		{"id":"s1","provider_id":"p1","name":"Corte","duration_minutes":30,"price":10,"price_max":null,"input_type":"fixed","active":true},
		{"id":"s2","provider_id":"p1","name":"Tinte","duration_minutes":90,"price":"20.5","price_max":"35","input_type":"range"}
	]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}
	if got := services[1].PriceLabel("$"); got != "$20.50 - $35.00" {
		t.Fatalf("unexpected label %q", got)
	}
	if !services[1].Active {
		t.Fatal("missing active flag defaults to true")
	}

	_, err = decodeServices([]byte(`[{"id":"s3","provider_id":"p1","name":"X","duration_minutes":30,"price":20,"price_max":10,"input_type":"range"}]`))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord for inverted price range, got %v", err)
	}
}

func TestStoreListActive(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/appointments") {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a1","provider_id":"p1","appointment_date":"2026-03-02","start_minute":540,"duration_minutes":45,"status":"pending"}]`))
	}))
	defer srv.Close()

	store := NewWithTables(postgrest.NewClient(srv.URL, "public", nil))
	appts, err := store.ListActive(context.Background(), "p1", model.Date{Year: 2026, Month: time.March, Day: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 1 || appts[0].DurationMinutes != 45 {
		t.Fatalf("unexpected appointments %+v", appts)
	}
	if !strings.Contains(gotQuery, "provider_id=eq.p1") || !strings.Contains(gotQuery, "appointment_date=eq.2026-03-02") {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestStoreListByProviderOrdersBeforeLimit(t *testing.T) {
	var order, limit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = r.URL.Query().Get("order")
		limit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"a2","provider_id":"p1","appointment_date":"2026-03-02","start_minute":600,"duration_minutes":30,"status":"confirmed"},
			{"id":"a1","provider_id":"p1","appointment_date":"2026-03-02","start_minute":540,"duration_minutes":30,"status":"pending"}
		]`))
	}))
	defer srv.Close()

	store := NewWithTables(postgrest.NewClient(srv.URL, "public", nil))
	appts, err := store.ListByProvider(context.Background(), "p1", model.Date{}, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.HasPrefix(order, "appointment_date.desc") || !strings.Contains(order, ",start_minute.desc") {
		t.Fatalf("expected date then time descending, got %q", order)
	}
	if limit != "2" {
		t.Fatalf("expected limit 2, got %q", limit)
	}
	if len(appts) != 2 || appts[0].ID != "a2" {
		t.Fatalf("expected server order to be kept, got %+v", appts)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	store := NewWithTables(postgrest.NewClient("http://127.0.0.1:1", "public", nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.ListServices(ctx, "p1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// ErrMalformedRecord is returned when a row from the REST API is missing a
// field or carries a value outside its domain.
var ErrMalformedRecord = errors.New("malformed record")

func malformed(table, field string, v any) error {
	return fmt.Errorf("%w: %s.%s = %v", ErrMalformedRecord, table, field, v)
}

type appointmentRow struct {
	ID                 *string    `json:"id"`
	ProviderID         *string    `json:"provider_id"`
	ServiceID          *string    `json:"service_id"`
	ClientID           *string    `json:"client_id"`
	ClientName         string     `json:"client_name"`
	ClientPhone        string     `json:"client_phone"`
	AppointmentDate    *string    `json:"appointment_date"`
	StartMinute        *int       `json:"start_minute"`
	DurationMinutes    *int       `json:"duration_minutes"`
	Status             *string    `json:"status"`
	Manual             bool       `json:"manual"`
	Notes              string     `json:"notes"`
	CancelledAt        *time.Time `json:"cancelled_at"`
	CancellationReason *string    `json:"cancellation_reason"`
	CreatedAt          *time.Time `json:"created_at"`
}

func decodeAppointments(data []byte) ([]model.Appointment, error) {
	var rows []appointmentRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: appointments: %v", ErrMalformedRecord, err)
	}
	out := make([]model.Appointment, 0, len(rows))
	for _, r := range rows {
		a, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r appointmentRow) toModel() (model.Appointment, error) {
	const table = "appointments"
	if r.ID == nil || *r.ID == "" {
		return model.Appointment{}, malformed(table, "id", nil)
	}
	if r.ProviderID == nil || *r.ProviderID == "" {
		return model.Appointment{}, malformed(table, "provider_id", nil)
	}
	if r.AppointmentDate == nil {
		return model.Appointment{}, malformed(table, "appointment_date", nil)
	}
	date, err := model.ParseDate(*r.AppointmentDate)
	if err != nil {
		return model.Appointment{}, malformed(table, "appointment_date", *r.AppointmentDate)
	}
	if r.StartMinute == nil || !model.Clock(*r.StartMinute).Valid() {
		return model.Appointment{}, malformed(table, "start_minute", deref(r.StartMinute))
	}
	if r.DurationMinutes == nil || *r.DurationMinutes <= 0 {
		return model.Appointment{}, malformed(table, "duration_minutes", deref(r.DurationMinutes))
	}
	if r.Status == nil {
		return model.Appointment{}, malformed(table, "status", nil)
	}
	status, ok := model.ParseStatus(*r.Status)
	if !ok {
		return model.Appointment{}, malformed(table, "status", *r.Status)
	}

	a := model.Appointment{
		ID:              *r.ID,
		ProviderID:      *r.ProviderID,
		ClientName:      r.ClientName,
		ClientPhone:     r.ClientPhone,
		Date:            date,
		Time:            model.Clock(*r.StartMinute),
		DurationMinutes: *r.DurationMinutes,
		Status:          status,
		Manual:          r.Manual,
		Notes:           r.Notes,
		CancelledAt:     r.CancelledAt,
	}
	if r.ServiceID != nil {
		a.ServiceID = *r.ServiceID
	}
	if r.ClientID != nil {
		a.ClientID = *r.ClientID
	}
	if r.CancellationReason != nil {
		a.CancelReason = *r.CancellationReason
	}
	if r.CreatedAt != nil {
		a.CreatedAt = *r.CreatedAt
	}
	return a, nil
}

type providerRow struct {
	Timezone string `json:"timezone"`
}

type availabilityRow struct {
	Weekday     *int `json:"weekday"`
	Enabled     bool `json:"enabled"`
	StartMinute *int `json:"start_minute"`
	EndMinute   *int `json:"end_minute"`
}

func decodeWeekly(providerID string, providerData, rowsData []byte) (availability.WeeklyAvailability, error) {
	const table = "weekly_availability"
	week := availability.WeeklyAvailability{ProviderID: providerID}

	var providers []providerRow
	if err := json.Unmarshal(providerData, &providers); err != nil {
		return week, fmt.Errorf("%w: providers: %v", ErrMalformedRecord, err)
	}
	if len(providers) > 0 {
		week.Timezone = strings.TrimSpace(providers[0].Timezone)
	}

	var rows []availabilityRow
	if err := json.Unmarshal(rowsData, &rows); err != nil {
		return week, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, table, err)
	}
	for _, r := range rows {
		if r.Weekday == nil || *r.Weekday < 0 || *r.Weekday > 6 {
			return week, malformed(table, "weekday", deref(r.Weekday))
		}
		if r.StartMinute == nil || r.EndMinute == nil || *r.StartMinute >= *r.EndMinute ||
			!model.Clock(*r.StartMinute).Valid() || *r.EndMinute > model.MinutesPerDay {
			return week, malformed(table, "start_minute/end_minute", fmt.Sprintf("%d-%d", deref(r.StartMinute), deref(r.EndMinute)))
		}
		week.Days = append(week.Days, availability.DayAvailability{
			Weekday: time.Weekday(*r.Weekday),
			Enabled: r.Enabled,
			Ranges:  []availability.Range{{Start: model.Clock(*r.StartMinute), End: model.Clock(*r.EndMinute)}},
		})
	}
	return week, nil
}

type serviceRow struct {
	ID              *string          `json:"id"`
	ProviderID      *string          `json:"provider_id"`
	Name            string           `json:"name"`
	DurationMinutes *int             `json:"duration_minutes"`
	Price           *decimal.Decimal `json:"price"`
	PriceMax        *decimal.Decimal `json:"price_max"`
	InputType       string           `json:"input_type"`
	Active          *bool            `json:"active"`
}

func decodeServices(data []byte) ([]model.Service, error) {
	const table = "services"
	var rows []serviceRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, table, err)
	}
	out := make([]model.Service, 0, len(rows))
	for _, r := range rows {
		if r.ID == nil || r.ProviderID == nil {
			return nil, malformed(table, "id", nil)
		}
		if r.DurationMinutes == nil || *r.DurationMinutes <= 0 {
			return nil, malformed(table, "duration_minutes", deref(r.DurationMinutes))
		}
		s := model.Service{
			ID:              *r.ID,
			ProviderID:      *r.ProviderID,
			Name:            r.Name,
			DurationMinutes: *r.DurationMinutes,
			PriceMax:        r.PriceMax,
			InputType:       model.PriceInputType(r.InputType),
			Active:          r.Active == nil || *r.Active,
		}
		if r.Price != nil {
			s.Price = *r.Price
		}
		if s.InputType == "" {
			s.InputType = model.PriceFixed
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrMalformedRecord, table, s.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func deref(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

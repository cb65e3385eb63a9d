package handlers

import (
	"time"

	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	ProviderID      string `json:"provider_id"`
	ServiceID       string `json:"service_id,omitempty"`
	ClientID        string `json:"client_id,omitempty"`
	ClientName      string `json:"client_name,omitempty"`
	ClientPhone     string `json:"client_phone,omitempty"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Manual          bool   `json:"manual"`
	Notes           string `json:"notes,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:   a.ID,
		ProviderID:      a.ProviderID,
		ServiceID:       a.ServiceID,
		ClientID:        a.ClientID,
		ClientName:      a.ClientName,
		ClientPhone:     a.ClientPhone,
		Date:            a.Date.String(),
		Time:            a.Time.String(),
		EndTime:         a.End().String(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Manual:          a.Manual,
		Notes:           a.Notes,
		CancelReason:    a.CancelReason,
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !a.CreatedAt.IsZero() {
		item.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

type slotsResponse struct {
	ProviderID      string                  `json:"provider_id"`
	ServiceID       string                  `json:"service_id,omitempty"`
	Date            string                  `json:"date"`
	DurationMinutes int                     `json:"duration_minutes"`
	Timezone        string                  `json:"timezone"`
	Reason          string                  `json:"reason,omitempty"`
	Slots           []availability.TimeSlot `json:"slots"`
}

type dayItem struct {
	Weekday int    `json:"weekday"`
	Enabled bool   `json:"enabled"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

type availabilityBody struct {
	ProviderID string    `json:"provider_id,omitempty"`
	Timezone   string    `json:"timezone"`
	Days       []dayItem `json:"days"`
}

func toAvailabilityBody(w availability.WeeklyAvailability) availabilityBody {
	body := availabilityBody{ProviderID: w.ProviderID, Timezone: w.Timezone, Days: make([]dayItem, 0, len(w.Days))}
	for _, d := range w.Days {
		item := dayItem{Weekday: int(d.Weekday), Enabled: d.Enabled}
		if len(d.Ranges) > 0 {
			item.Start = d.Ranges[0].Start.String()
			item.End = d.Ranges[0].End.String()
		}
		body.Days = append(body.Days, item)
	}
	return body
}

type serviceItem struct {
	ServiceID       string           `json:"service_id"`
	ProviderID      string           `json:"provider_id"`
	Name            string           `json:"name"`
	DurationMinutes int              `json:"duration_minutes"`
	Price           decimal.Decimal  `json:"price"`
	PriceMax        *decimal.Decimal `json:"price_max,omitempty"`
	InputType       string           `json:"input_type"`
	PriceLabel      string           `json:"price_label"`
	Active          bool             `json:"active"`
}

func toServiceItem(s model.Service) serviceItem {
	return serviceItem{
		ServiceID:       s.ID,
		ProviderID:      s.ProviderID,
		Name:            s.Name,
		DurationMinutes: s.DurationMinutes,
		Price:           s.Price,
		PriceMax:        s.PriceMax,
		InputType:       string(s.InputType),
		PriceLabel:      s.PriceLabel("$"),
		Active:          s.Active,
	}
}

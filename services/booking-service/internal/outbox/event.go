package outbox

import (
	"encoding/json"
	"time"

	"github.com/agendave/micita/services/booking-service/internal/model"
)

// Kafka topics equal the event type.
const (
	TypeAppointmentBooked        = "booking.appointment.booked.v1"
	TypeAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	TypeAppointmentCancelled     = "booking.appointment.cancelled.v1"
	TypeAvailabilityUpdated      = "provider.availability.updated.v1"
	TypeCatalogUpdated           = "provider.catalog.updated.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type AppointmentPayload struct {
	AppointmentID   string `json:"appointment_id"`
	ProviderID      string `json:"provider_id"`
	ServiceID       string `json:"service_id,omitempty"`
	ClientID        string `json:"client_id,omitempty"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	PreviousStatus  string `json:"previous_status,omitempty"`
	Manual          bool   `json:"manual"`
	Reason          string `json:"reason,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}

type AvailabilityPayload struct {
	ProviderID string `json:"provider_id"`
	Timezone   string `json:"timezone,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

type CatalogPayload struct {
	ProviderID string `json:"provider_id"`
	ServiceID  string `json:"service_id"`
	UpdatedAt  string `json:"updated_at"`
}

// AppointmentEvent builds an appointment event of the given type. previous is
// empty for bookings.
func AppointmentEvent(eventType string, a model.Appointment, previous model.Status, at time.Time) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID:   a.ID,
		ProviderID:      a.ProviderID,
		ServiceID:       a.ServiceID,
		ClientID:        a.ClientID,
		Date:            a.Date.String(),
		Time:            a.Time.String(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		PreviousStatus:  string(previous),
		Manual:          a.Manual,
		Reason:          a.CancelReason,
		OccurredAt:      at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: "appointment", AggregateID: a.ID, EventType: eventType, Payload: payload}, nil
}

func AvailabilityEvent(providerID, timezone string, at time.Time) (Event, error) {
	payload, err := json.Marshal(AvailabilityPayload{
		ProviderID: providerID,
		Timezone:   timezone,
		UpdatedAt:  at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: "provider", AggregateID: providerID, EventType: TypeAvailabilityUpdated, Payload: payload}, nil
}

func CatalogEvent(providerID, serviceID string, at time.Time) (Event, error) {
	payload, err := json.Marshal(CatalogPayload{
		ProviderID: providerID,
		ServiceID:  serviceID,
		UpdatedAt:  at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: "provider", AggregateID: providerID, EventType: TypeCatalogUpdated, Payload: payload}, nil
}

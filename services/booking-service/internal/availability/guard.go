package availability

import (
	"errors"
	"fmt"

	"github.com/agendave/micita/services/booking-service/internal/model"
)

var (
	ErrOutsideBusinessHours  = errors.New("outside business hours")
	ErrOverlap               = errors.New("overlaps an existing appointment")
	ErrProviderNotConfigured = errors.New("provider has no availability configured")
	ErrInvalidDuration       = errors.New("invalid duration")
	ErrInvalidTime           = errors.New("invalid start time")
)

// ConflictError is returned by ValidateBooking. Reason is one of the sentinel
// errors above; Appointment is set for overlaps.
type ConflictError struct {
	Reason      error
	Appointment *model.Appointment
}

func (e *ConflictError) Error() string {
	if e.Appointment != nil {
		return fmt.Sprintf("%s (%s %s)", e.Reason, e.Appointment.Time, e.Appointment.ID)
	}
	return e.Reason.Error()
}

func (e *ConflictError) Is(target error) bool {
	return e.Reason == target
}

func (e *ConflictError) Unwrap() error {
	return e.Reason
}

// Code is the stable wire name of the conflict reason.
func (e *ConflictError) Code() string {
	return ReasonCode(e.Reason)
}

func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrOutsideBusinessHours):
		return "outside_business_hours"
	case errors.Is(err, ErrOverlap):
		return "overlap"
	case errors.Is(err, ErrProviderNotConfigured):
		return "provider_not_configured"
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, ErrInvalidTime):
		return "invalid_time"
	}
	return ""
}

type Proposed struct {
	Date                  model.Date
	Time                  model.Clock
	DurationMinutes       int
	SkipAvailabilityCheck bool
}

// ValidateBooking decides whether proposed may be committed given the
// provider's schedule and existing appointments. Manual entries set
// SkipAvailabilityCheck and bypass both schedule and overlap checks.
func ValidateBooking(p Proposed, existing []model.Appointment, week WeeklyAvailability) error {
	if p.DurationMinutes <= 0 || p.DurationMinutes > model.MinutesPerDay {
		return &ConflictError{Reason: ErrInvalidDuration}
	}
	if !p.Time.Valid() {
		return &ConflictError{Reason: ErrInvalidTime}
	}
	if p.SkipAvailabilityCheck {
		return nil
	}
	if !week.Configured() {
		return &ConflictError{Reason: ErrProviderNotConfigured}
	}

	start, end := p.Time, p.Time.Add(p.DurationMinutes)
	inside := false
	for _, r := range week.Day(p.Date.Weekday()) {
		if r.Contains(start, end) {
			inside = true
			break
		}
	}
	if !inside {
		return &ConflictError{Reason: ErrOutsideBusinessHours}
	}

	if appt, ok := firstOverlap(start, end, occupied(existing, p.Date)); ok {
		return &ConflictError{Reason: ErrOverlap, Appointment: &appt}
	}
	return nil
}

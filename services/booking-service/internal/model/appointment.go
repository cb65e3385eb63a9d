package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusDone      Status = "done"
	StatusNoShow    Status = "no_show"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusDone, StatusNoShow:
		return st, true
	}
	return "", false
}

// Occupies reports whether an appointment in this status blocks its time range.
func (s Status) Occupies() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDone || s == StatusNoShow
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusDone, StatusNoShow, StatusCancelled},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID              string
	ProviderID      string
	ServiceID       string
	ClientID        string
	ClientName      string
	ClientPhone     string
	Date            Date
	Time            Clock
	DurationMinutes int
	Status          Status
	Manual          bool
	Notes           string
	CancelledAt     *time.Time
	CancelReason    string
	CreatedAt       time.Time
}

// End is the exclusive end of the occupied interval. It may exceed
// MinutesPerDay for manual entries that run past midnight.
func (a Appointment) End() Clock {
	return a.Time.Add(a.DurationMinutes)
}

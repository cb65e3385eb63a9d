package availability

import (
	"sort"

	"github.com/agendave/micita/services/booking-service/internal/model"
)

// Reason explains an empty slot list. It is empty when slots were generated.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonProviderNotConfigured Reason = "provider_not_configured"
	ReasonInvalidDuration       Reason = "invalid_duration"
	ReasonInvalidGranularity    Reason = "invalid_granularity"
	ReasonDayClosed             Reason = "day_closed"
)

type TimeSlot struct {
	Time        model.Clock `json:"time"`
	IsAvailable bool        `json:"is_available"`
}

// GenerateSlots lists candidate start times for a booking of durationMinutes on
// date. Candidates start at each enabled range's start and advance by
// granularityMinutes; a candidate is kept only if it ends by the range end.
// A slot is unavailable when it overlaps an occupying appointment on the same
// date. The result is ordered by time and has no duplicates.
func GenerateSlots(week WeeklyAvailability, appointments []model.Appointment, durationMinutes int, date model.Date, granularityMinutes int) ([]TimeSlot, Reason) {
	if durationMinutes <= 0 || durationMinutes > model.MinutesPerDay {
		return nil, ReasonInvalidDuration
	}
	if granularityMinutes <= 0 {
		return nil, ReasonInvalidGranularity
	}
	if !week.Configured() {
		return nil, ReasonProviderNotConfigured
	}
	ranges := week.Day(date.Weekday())
	if len(ranges) == 0 {
		return nil, ReasonDayClosed
	}

	busy := occupied(appointments, date)
	seen := make(map[model.Clock]bool)
	var slots []TimeSlot
	for _, r := range ranges {
		for t := r.Start; t.Add(durationMinutes) <= r.End; t = t.Add(granularityMinutes) {
			if seen[t] {
				continue
			}
			seen[t] = true
			slots = append(slots, TimeSlot{Time: t, IsAvailable: !overlapsAny(t, t.Add(durationMinutes), busy)})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Time < slots[j].Time })
	return slots, ReasonNone
}

// MarkElapsed marks slots starting before cutoff unavailable. It is meant for
// the current provider-local day.
func MarkElapsed(slots []TimeSlot, cutoff model.Clock) []TimeSlot {
	out := make([]TimeSlot, len(slots))
	for i, s := range slots {
		if s.Time < cutoff {
			s.IsAvailable = false
		}
		out[i] = s
	}
	return out
}

// Available filters slots down to the bookable ones.
func Available(slots []TimeSlot) []TimeSlot {
	var out []TimeSlot
	for _, s := range slots {
		if s.IsAvailable {
			out = append(out, s)
		}
	}
	return out
}

type interval struct {
	start, end model.Clock
	appt       model.Appointment
}

func occupied(appointments []model.Appointment, date model.Date) []interval {
	var out []interval
	for _, a := range appointments {
		if a.Date != date || !a.Status.Occupies() || a.DurationMinutes <= 0 {
			continue
		}
		out = append(out, interval{start: a.Time, end: a.End(), appt: a})
	}
	return out
}

func overlapsAny(start, end model.Clock, busy []interval) bool {
	_, ok := firstOverlap(start, end, busy)
	return ok
}

func firstOverlap(start, end model.Clock, busy []interval) (model.Appointment, bool) {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.start,b.end) iff start < b.end && b.start < end.
		if start < b.end && b.start < end {
			return b.appt, true
		}
	}
	return model.Appointment{}, false
}

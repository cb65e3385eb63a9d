package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/agendave/micita/services/booking-service/internal/model"
)

// Range is a half-open business-hours window [Start, End) in provider-local time.
type Range struct {
	Start model.Clock `json:"start"`
	End   model.Clock `json:"end"`
}

func (r Range) Contains(start, end model.Clock) bool {
	return start >= r.Start && end <= r.End
}

type DayAvailability struct {
	Weekday time.Weekday `json:"weekday"`
	Enabled bool         `json:"enabled"`
	Ranges  []Range      `json:"ranges"`
}

// WeeklyAvailability is a provider's recurring schedule. A weekday with no
// entry is closed.
type WeeklyAvailability struct {
	ProviderID string            `json:"provider_id"`
	Timezone   string            `json:"timezone"`
	Days       []DayAvailability `json:"days"`
}

var ErrInvalidSchedule = errors.New("invalid weekly availability")

func (w WeeklyAvailability) Validate() error {
	seen := make(map[time.Weekday]bool, len(w.Days))
	for _, d := range w.Days {
		if d.Weekday < time.Sunday || d.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d", ErrInvalidSchedule, d.Weekday)
		}
		if seen[d.Weekday] {
			return fmt.Errorf("%w: duplicate %s", ErrInvalidSchedule, d.Weekday)
		}
		seen[d.Weekday] = true
		if !d.Enabled {
			continue
		}
		if len(d.Ranges) == 0 {
			return fmt.Errorf("%w: %s enabled without hours", ErrInvalidSchedule, d.Weekday)
		}
		for _, r := range d.Ranges {
			if !r.Start.Valid() || r.End > model.MinutesPerDay || r.Start >= r.End {
				return fmt.Errorf("%w: %s %s-%s", ErrInvalidSchedule, d.Weekday, r.Start, r.End)
			}
		}
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q", ErrInvalidSchedule, w.Timezone)
		}
	}
	return nil
}

// Configured reports whether at least one weekday is open.
func (w WeeklyAvailability) Configured() bool {
	for _, d := range w.Days {
		if d.Enabled && len(d.Ranges) > 0 {
			return true
		}
	}
	return false
}

// Day returns the enabled ranges for weekday, or nil when the day is closed.
func (w WeeklyAvailability) Day(weekday time.Weekday) []Range {
	var out []Range
	for _, d := range w.Days {
		if d.Weekday == weekday && d.Enabled {
			out = append(out, d.Ranges...)
		}
	}
	return out
}

// Location resolves the provider timezone, falling back to def.
func (w WeeklyAvailability) Location(def *time.Location) *time.Location {
	if w.Timezone == "" {
		return def
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return def
	}
	return loc
}

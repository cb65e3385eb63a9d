package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agendave/micita/libs/db"
	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/agendave/micita/services/booking-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

// Hours written for a weekday that has never been configured and is saved closed.
const (
	defaultOpen  = model.Clock(9 * 60)
	defaultClose = model.Clock(18 * 60)
)

type ScheduleRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	now    func() time.Time
}

func NewScheduleRepository(pool *db.Pool, outboxRepo *outbox.Repository) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, outbox: outboxRepo, now: time.Now}
}

// GetWeekly returns the stored schedule. A provider with no rows yields an
// empty, unconfigured schedule rather than ErrNotFound.
func (r *ScheduleRepository) GetWeekly(ctx context.Context, providerID string) (availability.WeeklyAvailability, error) {
	if !validIDs(providerID) {
		return availability.WeeklyAvailability{ProviderID: providerID}, nil
	}
	return r.getWeekly(ctx, r.pool, providerID)
}

func (r *ScheduleRepository) getWeekly(ctx context.Context, q querier, providerID string) (availability.WeeklyAvailability, error) {
	week := availability.WeeklyAvailability{ProviderID: providerID}
	err := q.QueryRow(ctx, `SELECT timezone FROM providers WHERE id = $1`, providerID).Scan(&week.Timezone)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return week, fmt.Errorf("load provider: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT weekday, enabled, start_minute, end_minute
		FROM weekly_availability
		WHERE provider_id = $1
		ORDER BY weekday
	`, providerID)
	if err != nil {
		return week, fmt.Errorf("load weekly availability: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var weekday, start, end int
		var day availability.DayAvailability
		if err := rows.Scan(&weekday, &day.Enabled, &start, &end); err != nil {
			return week, err
		}
		day.Weekday = time.Weekday(weekday)
		day.Ranges = []availability.Range{{Start: model.Clock(start), End: model.Clock(end)}}
		week.Days = append(week.Days, day)
	}
	return week, rows.Err()
}

// UpsertWeekly writes all seven weekdays. Days absent from week, or present
// without hours, are stored closed and keep their previous hours. Rows are
// never deleted.
func (r *ScheduleRepository) UpsertWeekly(ctx context.Context, week availability.WeeklyAvailability) error {
	if !validIDs(week.ProviderID) {
		return fmt.Errorf("%w: provider id", availability.ErrInvalidSchedule)
	}
	if err := week.Validate(); err != nil {
		return err
	}
	byDay := make(map[time.Weekday]availability.DayAvailability, len(week.Days))
	for _, d := range week.Days {
		if len(d.Ranges) > 1 {
			return fmt.Errorf("%w: %s", ErrMultipleRanges, d.Weekday)
		}
		byDay[d.Weekday] = d
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO providers (id, timezone)
		VALUES ($1, COALESCE(NULLIF($2, ''), 'America/Caracas'))
		ON CONFLICT (id) DO UPDATE
		SET timezone = COALESCE(NULLIF(EXCLUDED.timezone, ''), providers.timezone),
			updated_at = now()
	`, week.ProviderID, week.Timezone); err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}

	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		d, ok := byDay[wd]
		hasHours := ok && len(d.Ranges) == 1
		start, end := defaultOpen, defaultClose
		if hasHours {
			start, end = d.Ranges[0].Start, d.Ranges[0].End
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO weekly_availability (provider_id, weekday, enabled, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (provider_id, weekday) DO UPDATE
			SET enabled = EXCLUDED.enabled,
				start_minute = CASE WHEN $6 THEN EXCLUDED.start_minute ELSE weekly_availability.start_minute END,
				end_minute = CASE WHEN $6 THEN EXCLUDED.end_minute ELSE weekly_availability.end_minute END,
				updated_at = now()
		`, week.ProviderID, int(wd), ok && d.Enabled, int(start), int(end), hasHours); err != nil {
			return fmt.Errorf("upsert %s: %w", wd, err)
		}
	}

	evt, err := outbox.AvailabilityEvent(week.ProviderID, week.Timezone, r.now())
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("write outbox event: %w", err)
	}
	return tx.Commit(ctx)
}

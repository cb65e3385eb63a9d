package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agendave/micita/libs/db"
	otelx "github.com/agendave/micita/libs/otel"
	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/agendave/micita/services/booking-service/internal/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const appointmentColumns = `
	id::text, provider_id::text, COALESCE(service_id::text, ''), COALESCE(client_id::text, ''),
	client_name, client_phone, appointment_date, start_minute, duration_minutes, status, manual,
	notes, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

type BookingRepository struct {
	pool      *db.Pool
	outbox    *outbox.Repository
	schedules *ScheduleRepository
	now       func() time.Time
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository, schedules *ScheduleRepository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo, schedules: schedules, now: time.Now}
}

type BookRequest struct {
	Appointment           model.Appointment
	SkipAvailabilityCheck bool
	IdempotencyKey        string
}

type BookResult struct {
	Appointment model.Appointment
	// Replayed is set when the idempotency key had already produced this appointment.
	Replayed bool
}

// Book commits a new appointment. Writers for the same provider and date are
// serialized with a transaction-scoped advisory lock, and the conflict guard
// runs again against the locked view before the insert. A rejected attempt
// rolls back and leaves its idempotency key unused. A key replays only for the
// same actor and the same request; anything else is ErrIdempotencyKeyReused.
func (r *BookingRepository) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	a := req.Appointment
	ctx, span := otelx.Start(ctx, "booking-service", "booking.commit", "provider_id", a.ProviderID, "date", a.Date.String())
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return BookResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	key := strings.TrimSpace(req.IdempotencyKey)
	actor := idempotencyActor(a)
	if key != "" {
		appointmentID, err := r.lockIdempotencyKey(ctx, tx, a.ProviderID, actor, key)
		if err != nil {
			return BookResult{}, fmt.Errorf("lock idempotency key: %w", err)
		}
		if appointmentID != "" {
			prior, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, appointmentID))
			if err != nil {
				return BookResult{}, err
			}
			if !sameBooking(prior, a) {
				return BookResult{}, ErrIdempotencyKeyReused
			}
			return BookResult{Appointment: prior, Replayed: true}, nil
		}
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, a.ProviderID+"/"+a.Date.String()); err != nil {
		return BookResult{}, fmt.Errorf("advisory lock: %w", err)
	}

	week, err := r.schedules.getWeekly(ctx, tx, a.ProviderID)
	if err != nil {
		return BookResult{}, err
	}
	existing, err := listActive(ctx, tx, a.ProviderID, a.Date)
	if err != nil {
		return BookResult{}, err
	}
	if err := availability.ValidateBooking(availability.Proposed{
		Date:                  a.Date,
		Time:                  a.Time,
		DurationMinutes:       a.DurationMinutes,
		SkipAvailabilityCheck: req.SkipAvailabilityCheck,
	}, existing, week); err != nil {
		return BookResult{}, err
	}

	a.ID = uuid.NewString()
	a.Manual = req.SkipAvailabilityCheck
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	if _, err := tx.Exec(ctx, `INSERT INTO providers (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, a.ProviderID); err != nil {
		return BookResult{}, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, provider_id, service_id, client_id, client_name, client_phone,
			 appointment_date, start_minute, duration_minutes, status, manual, notes)
		VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, a.ID, a.ProviderID, a.ServiceID, a.ClientID, a.ClientName, a.ClientPhone,
		pgDate(a.Date), int(a.Time), a.DurationMinutes, string(a.Status), a.Manual, a.Notes).Scan(&a.CreatedAt)
	if err != nil {
		if IsConflict(err) {
			return BookResult{}, fmt.Errorf("%w: %w", ErrConflict, availability.ErrOverlap)
		}
		return BookResult{}, fmt.Errorf("insert appointment: %w", err)
	}

	evt, err := outbox.AppointmentEvent(outbox.TypeAppointmentBooked, a, "", r.now())
	if err != nil {
		return BookResult{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return BookResult{}, fmt.Errorf("write outbox event: %w", err)
	}

	if key != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE booking_idempotency_keys
			SET appointment_id = $4, updated_at = now()
			WHERE provider_id = $1 AND actor_id = $2 AND idempotency_key = $3
		`, a.ProviderID, actor, key, a.ID); err != nil {
			return BookResult{}, fmt.Errorf("finalize idempotency key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return BookResult{}, fmt.Errorf("%w: %w", ErrConflict, availability.ErrOverlap)
		}
		return BookResult{}, err
	}
	return BookResult{Appointment: a}, nil
}

func (r *BookingRepository) ListActive(ctx context.Context, providerID string, date model.Date) ([]model.Appointment, error) {
	return listActive(ctx, r.pool, providerID, date)
}

// ListByProvider lists a provider's appointments, newest first. A zero date
// lists every date.
func (r *BookingRepository) ListByProvider(ctx context.Context, providerID string, date model.Date, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	var dateArg any
	if !date.IsZero() {
		dateArg = pgDate(date)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND ($2::date IS NULL OR appointment_date = $2::date)
		ORDER BY appointment_date DESC, start_minute DESC
		LIMIT $3
	`, providerID, dateArg, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *BookingRepository) Get(ctx context.Context, providerID, appointmentID string) (model.Appointment, error) {
	if !validIDs(providerID, appointmentID) {
		return model.Appointment{}, ErrNotFound
	}
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 AND provider_id = $2
	`, appointmentID, providerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	return a, err
}

// UpdateStatus moves an appointment owned by providerID to next. Setting the
// current status again is a no-op.
func (r *BookingRepository) UpdateStatus(ctx context.Context, providerID, appointmentID string, next model.Status) (model.Appointment, error) {
	return r.transition(ctx, appointmentID, `provider_id = $2`, providerID, next, "")
}

type Actor struct {
	ProviderID string
	ClientID   string
}

// Cancel cancels an appointment on behalf of its provider or the client who
// booked it. Cancelling twice returns the cancelled appointment.
func (r *BookingRepository) Cancel(ctx context.Context, actor Actor, appointmentID, reason string) (model.Appointment, error) {
	if actor.ProviderID != "" {
		return r.transition(ctx, appointmentID, `provider_id = $2`, actor.ProviderID, model.StatusCancelled, reason)
	}
	if actor.ClientID == "" {
		return model.Appointment{}, ErrNotFound
	}
	return r.transition(ctx, appointmentID, `client_id = $2`, actor.ClientID, model.StatusCancelled, reason)
}

func (r *BookingRepository) transition(ctx context.Context, appointmentID, ownerClause, ownerID string, next model.Status, reason string) (model.Appointment, error) {
	if !validIDs(appointmentID, ownerID) {
		return model.Appointment{}, ErrNotFound
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND `+ownerClause+`::uuid
		FOR UPDATE
	`, appointmentID, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	if a.Status == next {
		return a, nil
	}
	if a.Status.Terminal() {
		return model.Appointment{}, fmt.Errorf("%w: %s is final", ErrInvalidTransition, a.Status)
	}
	if !a.Status.CanTransitionTo(next) {
		return model.Appointment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
	}

	previous := a.Status
	var cancelledAt *time.Time
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE cancelled_at END,
			cancellation_reason = CASE WHEN $2 = 'cancelled' THEN NULLIF($3, '') ELSE cancellation_reason END,
			updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at
	`, a.ID, string(next), reason).Scan(&cancelledAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = next
	a.CancelledAt = cancelledAt
	if next == model.StatusCancelled {
		a.CancelReason = reason
	}

	eventType := outbox.TypeAppointmentStatusChanged
	if next == model.StatusCancelled {
		eventType = outbox.TypeAppointmentCancelled
	}
	evt, err := outbox.AppointmentEvent(eventType, a, previous, r.now())
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, fmt.Errorf("write outbox event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// validIDs keeps malformed ids from reaching a uuid cast in SQL.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// idempotencyActor scopes a key to whoever sends the request: the booking
// client, or the provider for manual entries.
func idempotencyActor(a model.Appointment) string {
	if a.ClientID != "" {
		return "client:" + a.ClientID
	}
	return "provider:" + a.ProviderID
}

// sameBooking reports whether a stored appointment answers the same request.
// Status and notes may have changed since, so they are not compared.
func sameBooking(prior, req model.Appointment) bool {
	return prior.ProviderID == req.ProviderID &&
		prior.ClientID == req.ClientID &&
		prior.ServiceID == req.ServiceID &&
		prior.Date == req.Date &&
		prior.Time == req.Time &&
		prior.DurationMinutes == req.DurationMinutes
}

func (r *BookingRepository) lockIdempotencyKey(ctx context.Context, tx pgx.Tx, providerID, actor, key string) (string, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (provider_id, actor_id, idempotency_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id, actor_id, idempotency_key) DO NOTHING
	`, providerID, actor, key); err != nil {
		return "", err
	}
	var appointmentID string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE provider_id = $1 AND actor_id = $2 AND idempotency_key = $3
		FOR UPDATE
	`, providerID, actor, key).Scan(&appointmentID)
	return appointmentID, err
}

func listActive(ctx context.Context, q querier, providerID string, date model.Date) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND appointment_date = $2
			AND status IN ('pending', 'confirmed')
		ORDER BY start_minute ASC
	`, providerID, pgDate(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a           model.Appointment
		date        time.Time
		startMinute int
		status      string
	)
	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.ServiceID,
		&a.ClientID,
		&a.ClientName,
		&a.ClientPhone,
		&date,
		&startMinute,
		&a.DurationMinutes,
		&status,
		&a.Manual,
		&a.Notes,
		&a.CancelledAt,
		&a.CancelReason,
		&a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = model.DateOf(date)
	a.Time = model.Clock(startMinute)
	a.Status = model.Status(status)
	return a, nil
}

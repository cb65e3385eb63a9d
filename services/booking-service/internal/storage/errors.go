package storage

import (
	"context"
	"errors"
	"time"

	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("time slot already booked")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrMultipleRanges    = errors.New("only one range per weekday can be stored")

	ErrIdempotencyKeyReused = errors.New("idempotency key already used for a different booking")
)

// IsConflict reports an exclusion constraint violation (SQLSTATE 23P01).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgDate(d model.Date) time.Time {
	return d.At(0, time.UTC)
}

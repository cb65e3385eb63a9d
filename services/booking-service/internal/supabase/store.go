// Package supabase reads the ledger, schedules and catalog through the
// Supabase REST API. Every row is decoded into domain types at the boundary;
// rows that do not fit fail with ErrMalformedRecord.
package supabase

import (
	"context"
	"strconv"

	otelx "github.com/agendave/micita/libs/otel"
	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

// Tables is satisfied by *supa.Client and *postgrest.Client.
type Tables interface {
	From(table string) *postgrest.QueryBuilder
}

type Store struct {
	db Tables
}

func New(url, serviceRoleKey string) (*Store, error) {
	client, err := supa.NewClient(url, serviceRoleKey, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: client}, nil
}

func NewWithTables(t Tables) *Store {
	return &Store{db: t}
}

func (s *Store) GetWeekly(ctx context.Context, providerID string) (availability.WeeklyAvailability, error) {
	if err := ctx.Err(); err != nil {
		return availability.WeeklyAvailability{}, err
	}
	_, span := otelx.Start(ctx, "supabase", "supabase.get_weekly", "provider_id", providerID)
	defer span.End()

	providers, _, err := s.db.From("providers").
		Select("timezone", "", false).
		Eq("id", providerID).
		Execute()
	if err != nil {
		return availability.WeeklyAvailability{}, err
	}
	rows, _, err := s.db.From("weekly_availability").
		Select("weekday,enabled,start_minute,end_minute", "", false).
		Eq("provider_id", providerID).
		Order("weekday", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return availability.WeeklyAvailability{}, err
	}
	return decodeWeekly(providerID, providers, rows)
}

func (s *Store) ListActive(ctx context.Context, providerID string, date model.Date) ([]model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, span := otelx.Start(ctx, "supabase", "supabase.list_active", "provider_id", providerID, "date", date.String())
	defer span.End()

	data, _, err := s.db.From("appointments").
		Select("*", "", false).
		Eq("provider_id", providerID).
		Eq("appointment_date", date.String()).
		In("status", []string{string(model.StatusPending), string(model.StatusConfirmed)}).
		Order("start_minute", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, err
	}
	return decodeAppointments(data)
}

func (s *Store) ListByProvider(ctx context.Context, providerID string, date model.Date, limit int) ([]model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	_, span := otelx.Start(ctx, "supabase", "supabase.list_by_provider", "provider_id", providerID, "limit", strconv.Itoa(limit))
	defer span.End()

	q := s.db.From("appointments").
		Select("*", "", false).
		Eq("provider_id", providerID)
	if !date.IsZero() {
		q = q.Eq("appointment_date", date.String())
	}
	data, _, err := q.
		Order("appointment_date", &postgrest.OrderOpts{Ascending: false}).
		Order("start_minute", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, err
	}
	return decodeAppointments(data)
}

func (s *Store) ListServices(ctx context.Context, providerID string) ([]model.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, span := otelx.Start(ctx, "supabase", "supabase.list_services", "provider_id", providerID)
	defer span.End()

	data, _, err := s.db.From("services").
		Select("*", "", false).
		Eq("provider_id", providerID).
		Order("name", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, err
	}
	return decodeServices(data)
}

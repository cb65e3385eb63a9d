package handlers

import (
	"context"

	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/agendave/micita/services/booking-service/internal/storage"
)

// Reads may come from Postgres or the Supabase REST API, optionally behind a
// cache. Writes always go through the transactional Postgres repositories.

type ScheduleReader interface {
	GetWeekly(ctx context.Context, providerID string) (availability.WeeklyAvailability, error)
}

type ScheduleWriter interface {
	UpsertWeekly(ctx context.Context, week availability.WeeklyAvailability) error
}

type CatalogReader interface {
	ListServices(ctx context.Context, providerID string) ([]model.Service, error)
	GetService(ctx context.Context, providerID, serviceID string) (model.Service, error)
}

type CatalogWriter interface {
	CreateService(ctx context.Context, s model.Service) (model.Service, error)
}

type LedgerReader interface {
	ListActive(ctx context.Context, providerID string, date model.Date) ([]model.Appointment, error)
	ListByProvider(ctx context.Context, providerID string, date model.Date, limit int) ([]model.Appointment, error)
}

type Booker interface {
	Book(ctx context.Context, req storage.BookRequest) (storage.BookResult, error)
	UpdateStatus(ctx context.Context, providerID, appointmentID string, next model.Status) (model.Appointment, error)
	Cancel(ctx context.Context, actor storage.Actor, appointmentID, reason string) (model.Appointment, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, providerID string) error
}

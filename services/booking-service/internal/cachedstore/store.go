// Package cachedstore is a read-through cache over the weekly schedule and the
// service catalog. The appointment ledger is never cached.
package cachedstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agendave/micita/libs/cache"
	"github.com/agendave/micita/services/booking-service/internal/availability"
	"github.com/agendave/micita/services/booking-service/internal/model"
)

type ScheduleSource interface {
	GetWeekly(ctx context.Context, providerID string) (availability.WeeklyAvailability, error)
}

type CatalogSource interface {
	ListServices(ctx context.Context, providerID string) ([]model.Service, error)
}

type Store struct {
	schedules ScheduleSource
	catalog   CatalogSource
	cache     cache.Cache
	maxAge    time.Duration
	logger    *slog.Logger
}

func New(schedules ScheduleSource, catalog CatalogSource, c cache.Cache, maxAge time.Duration, logger *slog.Logger) *Store {
	return &Store{schedules: schedules, catalog: catalog, cache: c, maxAge: maxAge, logger: logger}
}

func scheduleKey(providerID string) string { return "schedule:" + providerID }
func servicesKey(providerID string) string { return "services:" + providerID }

func (s *Store) GetWeekly(ctx context.Context, providerID string) (availability.WeeklyAvailability, error) {
	var week availability.WeeklyAvailability
	if s.lookup(ctx, scheduleKey(providerID), &week) {
		return week, nil
	}
	week, err := s.schedules.GetWeekly(ctx, providerID)
	if err != nil {
		return availability.WeeklyAvailability{}, err
	}
	s.store(ctx, scheduleKey(providerID), week)
	return week, nil
}

func (s *Store) ListServices(ctx context.Context, providerID string) ([]model.Service, error) {
	var services []model.Service
	if s.lookup(ctx, servicesKey(providerID), &services) {
		return services, nil
	}
	services, err := s.catalog.ListServices(ctx, providerID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, servicesKey(providerID), services)
	return services, nil
}

func (s *Store) GetService(ctx context.Context, providerID, serviceID string) (model.Service, error) {
	services, err := s.ListServices(ctx, providerID)
	if err != nil {
		return model.Service{}, err
	}
	for _, svc := range services {
		if svc.ID == serviceID {
			return svc, nil
		}
	}
	return model.Service{}, model.ErrServiceNotFound
}

// Invalidate drops every cached entry for providerID.
func (s *Store) Invalidate(ctx context.Context, providerID string) error {
	if err := s.cache.Delete(ctx, scheduleKey(providerID)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, servicesKey(providerID))
}

// lookup treats cache failures as misses; the source stays authoritative.
func (s *Store) lookup(ctx context.Context, key string, dst any) bool {
	raw, ok, err := s.cache.Get(ctx, key, s.maxAge)
	if err != nil {
		s.logger.Warn("cache get failed", "key", key, "err", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("cache entry undecodable; dropping", "key", key, "err", err)
		_ = s.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (s *Store) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("cache encode failed", "key", key, "err", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw); err != nil {
		s.logger.Warn("cache set failed", "key", key, "err", err)
	}
}

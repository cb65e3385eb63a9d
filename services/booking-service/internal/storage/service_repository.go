package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/agendave/micita/libs/db"
	"github.com/agendave/micita/services/booking-service/internal/model"
	"github.com/agendave/micita/services/booking-service/internal/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const serviceColumns = `id::text, provider_id::text, name, duration_minutes, price::text, price_max::text, input_type, active`

type ServiceRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	now    func() time.Time
}

func NewServiceRepository(pool *db.Pool, outboxRepo *outbox.Repository) *ServiceRepository {
	return &ServiceRepository{pool: pool, outbox: outboxRepo, now: time.Now}
}

// CreateService stores an active service and announces the catalog change so
// every replica drops its cached catalog for the provider.
func (r *ServiceRepository) CreateService(ctx context.Context, s model.Service) (model.Service, error) {
	if err := s.Validate(); err != nil {
		return model.Service{}, err
	}
	s.ID = uuid.NewString()
	s.Active = true
	var priceMax *string
	if s.PriceMax != nil {
		v := s.PriceMax.String()
		priceMax = &v
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Service{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO providers (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, s.ProviderID); err != nil {
		return model.Service{}, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO services (id, provider_id, name, duration_minutes, price, price_max, input_type, active)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8)
	`, s.ID, s.ProviderID, s.Name, s.DurationMinutes, s.Price.String(), priceMax, string(s.InputType), s.Active); err != nil {
		return model.Service{}, fmt.Errorf("insert service: %w", err)
	}
	evt, err := outbox.CatalogEvent(s.ProviderID, s.ID, r.now())
	if err != nil {
		return model.Service{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Service{}, fmt.Errorf("write outbox event: %w", err)
	}
	return s, tx.Commit(ctx)
}

func (r *ServiceRepository) ListServices(ctx context.Context, providerID string) ([]model.Service, error) {
	if !validIDs(providerID) {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE provider_id = $1
		ORDER BY name ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanService(row pgx.Row) (model.Service, error) {
	var (
		s         model.Service
		price     string
		priceMax  *string
		inputType string
	)
	if err := row.Scan(&s.ID, &s.ProviderID, &s.Name, &s.DurationMinutes, &price, &priceMax, &inputType, &s.Active); err != nil {
		return model.Service{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return model.Service{}, fmt.Errorf("service %s price: %w", s.ID, err)
	}
	s.Price = p
	if priceMax != nil {
		m, err := decimal.NewFromString(*priceMax)
		if err != nil {
			return model.Service{}, fmt.Errorf("service %s price_max: %w", s.ID, err)
		}
		s.PriceMax = &m
	}
	s.InputType = model.PriceInputType(inputType)
	return s, nil
}

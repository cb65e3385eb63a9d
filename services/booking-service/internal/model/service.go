package model

import (
	"errors"

	"github.com/shopspring/decimal"
)

type PriceInputType string

const (
	PriceFixed      PriceInputType = "fixed"
	PriceRange      PriceInputType = "range"
	PriceStartingAt PriceInputType = "starting_at"
)

var (
	ErrInvalidServiceDuration = errors.New("duration_minutes must be positive")
	ErrInvalidPrice           = errors.New("invalid price")
	ErrServiceNotFound        = errors.New("service not found")
)

type Service struct {
	ID              string
	ProviderID      string
	Name            string
	DurationMinutes int
	Price           decimal.Decimal
	PriceMax        *decimal.Decimal
	InputType       PriceInputType
	Active          bool
}

func (s Service) Validate() error {
	if s.DurationMinutes <= 0 || s.DurationMinutes > MinutesPerDay {
		return ErrInvalidServiceDuration
	}
	if s.Price.IsNegative() {
		return ErrInvalidPrice
	}
	switch s.InputType {
	case PriceFixed, PriceStartingAt:
	case PriceRange:
		if s.PriceMax == nil || s.PriceMax.LessThan(s.Price) {
			return ErrInvalidPrice
		}
	default:
		return ErrInvalidPrice
	}
	return nil
}

// PriceLabel renders the price the way the app lists it, e.g. "$10.00 - $15.00"
// or "Desde $10.00".
func (s Service) PriceLabel(symbol string) string {
	base := symbol + s.Price.StringFixed(2)
	switch s.InputType {
	case PriceRange:
		if s.PriceMax != nil {
			return base + " - " + symbol + s.PriceMax.StringFixed(2)
		}
	case PriceStartingAt:
		return "Desde " + base
	}
	return base
}

package brokerage

import (
	"context"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
)

var (
	_ drepo.Brokerage  = Unavailable{}
	_ drepo.MarketData = Unavailable{}
)

// Unavailable stands in for the brokerage when no credentials are configured.
// Every call fails with models.ErrMissingCredentials.
type Unavailable struct{}

func (Unavailable) SubmitOrder(context.Context, models.OrderRequest) (*models.Order, error) {
	return nil, models.ErrMissingCredentials
}

func (Unavailable) GetOrder(context.Context, string) (*models.Order, error) {
	return nil, models.ErrMissingCredentials
}

func (Unavailable) Position(context.Context, string) (*models.BrokerPosition, error) {
	return nil, models.ErrMissingCredentials
}

func (Unavailable) Positions(context.Context) ([]models.BrokerPosition, error) {
	return nil, models.ErrMissingCredentials
}

func (Unavailable) Account(context.Context) (*models.Account, error) {
	return nil, models.ErrMissingCredentials
}

func (Unavailable) IsMarketOpen(context.Context) (bool, error) {
	return false, models.ErrMissingCredentials
}

func (Unavailable) Snapshot(context.Context, string, int) (*models.MarketSnapshot, error) {
	return nil, models.ErrMissingCredentials
}

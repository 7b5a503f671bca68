package models

import "errors"

var (
	ErrNoAggregate        = errors.New("no aggregate data")
	ErrNoMarketData       = errors.New("no market data")
	ErrPositionNotFound   = errors.New("position not found")
	ErrInvalidSignal      = errors.New("invalid signal")
	ErrInvalidEvent       = errors.New("invalid sentiment event")
	ErrInvalidWindow      = errors.New("invalid window size")
	ErrUnknownAction      = errors.New("unknown action")
	ErrOrderNotFilled     = errors.New("order not filled")
	ErrMissingCredentials = errors.New("brokerage credentials missing")
	ErrInvalidQuery       = errors.New("invalid query")
)

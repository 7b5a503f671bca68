package models

import (
	"github.com/shopspring/decimal"
)

// OrderStatus mirrors the brokerage order lifecycle.
type OrderStatus string

const (
	OrderNew             OrderStatus = "new"
	OrderAccepted        OrderStatus = "accepted"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderExpired         OrderStatus = "expired"
	OrderRejected        OrderStatus = "rejected"
	OrderTimeout         OrderStatus = "timeout"
)

// Terminal reports whether the order can no longer fill.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderCanceled, OrderExpired, OrderRejected:
		return true
	}
	return false
}

// OrderRequest is a market, day order for whole shares.
type OrderRequest struct {
	Ticker   string
	Side     Action
	Quantity int64
}

// Order is the brokerage view of a submitted order.
type Order struct {
	ID             string
	Ticker         string
	Status         OrderStatus
	FilledQty      int64
	FilledAvgPrice decimal.Decimal
}

// BrokerPosition is the brokerage's authoritative open position.
type BrokerPosition struct {
	Ticker        string
	Quantity      int64
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// Account holds brokerage account balances.
type Account struct {
	Cash        decimal.Decimal `json:"cash"`
	Equity      decimal.Decimal `json:"equity"`
	BuyingPower decimal.Decimal `json:"buying_power"`
}

package brokerage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	applogger "SentiTrader/pkg/logger"
)

var (
	_ drepo.Brokerage  = (*Alpaca)(nil)
	_ drepo.MarketData = (*Alpaca)(nil)
)

// tradingAPI is the subset of *alpaca.Client the adapter calls.
type tradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	GetPosition(symbol string) (*alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	GetOrder(orderID string) (*alpaca.Order, error)
	GetClock() (*alpaca.Clock, error)
}

// barsAPI is the subset of *marketdata.Client the adapter calls.
type barsAPI interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Options configures the Alpaca adapter.
type Options struct {
	APIKey        string
	SecretKey     string
	BaseURL       string
	DataFeed      string
	RatePerMinute int
	Logger        *applogger.Logger
}

// Alpaca implements the brokerage and market data ports on the Alpaca REST API.
// Every call waits on a shared limiter so the account stays under the API quota.
type Alpaca struct {
	trading tradingAPI
	bars    barsAPI
	feed    marketdata.Feed
	limiter *rate.Limiter
	now     func() time.Time
	l       *applogger.Logger
}

func NewAlpaca(opts Options) (*Alpaca, error) {
	if opts.APIKey == "" || opts.SecretKey == "" {
		return nil, models.ErrMissingCredentials
	}
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.SecretKey,
		BaseURL:   opts.BaseURL,
	})
	bars := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.SecretKey,
	})
	return newAlpaca(trading, bars, opts), nil
}

func newAlpaca(trading tradingAPI, bars barsAPI, opts Options) *Alpaca {
	perMinute := opts.RatePerMinute
	if perMinute <= 0 {
		perMinute = 200
	}
	l := opts.Logger
	if l == nil {
		l = applogger.NewNop()
	}
	feed := marketdata.IEX
	if strings.EqualFold(opts.DataFeed, "sip") {
		feed = marketdata.SIP
	}
	return &Alpaca{
		trading: trading,
		bars:    bars,
		feed:    feed,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5),
		now:     time.Now,
		l:       l.With(applogger.String("component", "alpaca")),
	}
}

func (a *Alpaca) wait(ctx context.Context) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("alpaca rate limit: %w", err)
	}
	return nil
}

// SubmitOrder places a market DAY order.
func (a *Alpaca) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	qty := decimal.NewFromInt(req.Quantity)
	side := alpaca.Buy
	if req.Side == models.ActionSell {
		side = alpaca.Sell
	}
	o, err := a.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      req.Ticker,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return nil, fmt.Errorf("place %s order %s: %w", req.Side, req.Ticker, err)
	}
	a.l.Info("order submitted",
		applogger.String("order_id", o.ID),
		applogger.String("ticker", req.Ticker),
		applogger.String("side", string(req.Side)),
		applogger.Int64("qty", req.Quantity))
	return toOrder(o), nil
}

func (a *Alpaca) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	o, err := a.trading.GetOrder(id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return toOrder(o), nil
}

// Position returns the open brokerage position or models.ErrPositionNotFound.
func (a *Alpaca) Position(ctx context.Context, ticker string) (*models.BrokerPosition, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	p, err := a.trading.GetPosition(ticker)
	if err == nil {
		bp := toPosition(*p)
		return &bp, nil
	}

	// A missing position is an API error; confirm it against the full list
	// before reporting not-found so transport failures still surface.
	all, listErr := a.Positions(ctx)
	if listErr != nil {
		return nil, fmt.Errorf("get position %s: %w", ticker, err)
	}
	for i := range all {
		if all[i].Ticker == ticker {
			return &all[i], nil
		}
	}
	return nil, models.ErrPositionNotFound
}

func (a *Alpaca) Positions(ctx context.Context) ([]models.BrokerPosition, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	ps, err := a.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]models.BrokerPosition, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPosition(p))
	}
	return out, nil
}

func (a *Alpaca) Account(ctx context.Context) (*models.Account, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	acct, err := a.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &models.Account{
		Cash:        dec(acct.Cash),
		Equity:      dec(acct.Equity),
		BuyingPower: dec(acct.BuyingPower),
	}, nil
}

func (a *Alpaca) IsMarketOpen(ctx context.Context) (bool, error) {
	if err := a.wait(ctx); err != nil {
		return false, err
	}
	c, err := a.trading.GetClock()
	if err != nil {
		return false, fmt.Errorf("get clock: %w", err)
	}
	return c.IsOpen, nil
}

// Snapshot reads one-minute bars covering the lookback and summarizes the tail.
func (a *Alpaca) Snapshot(ctx context.Context, ticker string, bars int) (*models.MarketSnapshot, error) {
	if bars <= 0 {
		bars = 20
	}
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	end := a.now()
	// the window is padded so closed-market gaps still leave enough bars
	start := end.Add(-time.Duration(bars*4) * time.Minute)
	raw, err := a.bars.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     start,
		End:       end,
		Feed:      a.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("get bars %s: %w", ticker, err)
	}
	if len(raw) > bars {
		raw = raw[len(raw)-bars:]
	}
	out := make([]models.Bar, 0, len(raw))
	for _, b := range raw {
		out = append(out, models.Bar{Time: b.Timestamp, Close: b.Close, Volume: float64(b.Volume)})
	}
	return models.SnapshotFromBars(ticker, out)
}

func toOrder(o *alpaca.Order) *models.Order {
	return &models.Order{
		ID:             o.ID,
		Ticker:         o.Symbol,
		Status:         models.OrderStatus(o.Status),
		FilledQty:      dec(o.FilledQty).IntPart(),
		FilledAvgPrice: dec(o.FilledAvgPrice),
	}
}

func toPosition(p alpaca.Position) models.BrokerPosition {
	return models.BrokerPosition{
		Ticker:        p.Symbol,
		Quantity:      dec(p.Qty).IntPart(),
		AvgEntryPrice: dec(p.AvgEntryPrice),
		CurrentPrice:  dec(p.CurrentPrice),
		UnrealizedPnl: dec(p.UnrealizedPL),
	}
}

// dec reads an API numeric field. Optional fields arrive as nil pointers.
func dec(v interface{}) decimal.Decimal {
	switch x := v.(type) {
	case decimal.Decimal:
		return x
	case *decimal.Decimal:
		if x != nil {
			return *x
		}
	}
	return decimal.Zero
}

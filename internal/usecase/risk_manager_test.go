package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentiTrader/internal/domain/models"
)

func testLimits() models.RiskLimits {
	return models.RiskLimits{
		StartingCapital:        dec("100000"),
		MaxPositions:           5,
		PositionSizePct:        0.10,
		MaxDailyLossPct:        0.02,
		MaxSectorExposurePct:   0.30,
		MaxTradeLossPct:        0.02,
		KillSwitchEnabled:      true,
		KillSwitchThresholdPct: 0.03,
	}
}

func healthyState() models.PortfolioState {
	return models.PortfolioState{
		Cash:            dec("100000"),
		TotalValue:      dec("100000"),
		StartingCapital: dec("100000"),
	}
}

func buySignal(ticker string) *models.Signal {
	return &models.Signal{Version: 1, Timestamp: genNow, Ticker: ticker, Action: models.ActionBuy, Confidence: 0.8, Reason: "test"}
}

func sellSignal(ticker string) *models.Signal {
	return &models.Signal{Version: 1, Timestamp: genNow, Ticker: ticker, Action: models.ActionSell, Confidence: 1, Reason: "test"}
}

func newRisk(ledger *memLedger) (*RiskManager, *countingMetrics) {
	m := newCountingMetrics()
	return NewRiskManager(testLimits(), ledger, ledger, m, nil), m
}

func TestValidateBuy_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(l *memLedger, s *models.PortfolioState)
		reason string
	}{
		{
			name: "accepts a healthy portfolio",
			setup:  func(*memLedger, *models.PortfolioState) {},
			reason: "ok",
		},
		{
			name: "max positions",
			setup: func(_ *memLedger, s *models.PortfolioState) {
				s.PositionCount = 5
			},
			reason: "max positions reached (5)",
		},
		{
			name: "insufficient cash",
			setup: func(_ *memLedger, s *models.PortfolioState) {
				s.Cash = dec("5000")
			},
			reason: "insufficient cash (need $10000.00, have $5000.00)",
		},
		{
			name: "daily loss",
			setup: func(_ *memLedger, s *models.PortfolioState) {
				s.DailyPnlPct = -0.025
			},
			reason: "daily loss limit hit (-2.50%)",
		},
		{
			name: "already in position",
			setup: func(l *memLedger, _ *models.PortfolioState) {
				l.positions["AAPL"] = models.Position{Ticker: "AAPL", Quantity: 1, AvgEntryPrice: dec("100")}
			},
			reason: "already in position",
		},
		{
			name: "sector exposure",
			setup: func(l *memLedger, s *models.PortfolioState) {
				l.sectors["AAPL"] = "Technology"
				l.sectors["MSFT"] = "Technology"
				l.positions["MSFT"] = models.Position{Ticker: "MSFT", Quantity: 250, AvgEntryPrice: dec("100")}
				s.PositionCount = 1
			},
			reason: "max sector exposure would be exceeded (Technology: $25000.00 + $10000.00 > $30000.00)",
		},
		{
			name: "unknown sector is not limited",
			setup: func(l *memLedger, s *models.PortfolioState) {
				l.sectors["MSFT"] = "Technology"
				l.positions["MSFT"] = models.Position{Ticker: "MSFT", Quantity: 290, AvgEntryPrice: dec("100")}
				s.PositionCount = 1
			},
			reason: "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemLedger()
			state := healthyState()
			tt.setup(ledger, &state)
			rm, _ := newRisk(ledger)

			d := rm.Validate(context.Background(), buySignal("AAPL"), state)
			assert.Equal(t, tt.reason == "ok", d.Accepted)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestValidateBuy_SectorWithinLimit(t *testing.T) {
	ledger := newMemLedger()
	ledger.sectors["AAPL"] = "Technology"
	ledger.sectors["MSFT"] = "Technology"
	ledger.positions["MSFT"] = models.Position{Ticker: "MSFT", Quantity: 200, AvgEntryPrice: dec("100")}
	state := healthyState()
	state.PositionCount = 1
	rm, _ := newRisk(ledger)

	// 20000 + 10000 == 30000 is still inside the limit
	d := rm.Validate(context.Background(), buySignal("AAPL"), state)
	assert.True(t, d.Accepted)
}

func TestKillSwitch_PersistsUntilReset(t *testing.T) {
	ledger := newMemLedger()
	ledger.positions["MSFT"] = models.Position{Ticker: "MSFT", Quantity: 1, AvgEntryPrice: dec("100")}
	rm, metrics := newRisk(ledger)
	ctx := context.Background()

	losing := healthyState()
	losing.DailyPnlPct = -0.035
	d := rm.Validate(ctx, buySignal("AAPL"), losing)
	assert.False(t, d.Accepted)
	assert.Equal(t, "trading halted - daily loss limit exceeded", d.Reason)
	assert.True(t, rm.Halted())

	// recovery does not clear the switch
	d = rm.Validate(ctx, buySignal("AAPL"), healthyState())
	assert.Equal(t, "trading halted - daily loss limit exceeded", d.Reason)

	// exits still go through
	d = rm.Validate(ctx, sellSignal("MSFT"), losing)
	assert.True(t, d.Accepted)

	rm.Reset()
	assert.False(t, rm.Halted())
	d = rm.Validate(ctx, buySignal("AAPL"), healthyState())
	assert.True(t, d.Accepted)

	assert.Equal(t, []bool{true, false}, metrics.killSwitch)
}

func TestKillSwitch_Disabled(t *testing.T) {
	limits := testLimits()
	limits.KillSwitchEnabled = false
	rm := NewRiskManager(limits, newMemLedger(), newMemLedger(), nil, nil)

	losing := healthyState()
	losing.DailyPnlPct = -0.05
	d := rm.Validate(context.Background(), buySignal("AAPL"), losing)
	assert.Equal(t, "daily loss limit hit (-5.00%)", d.Reason)
	assert.False(t, rm.Halted())
}

func TestValidateSell(t *testing.T) {
	ledger := newMemLedger()
	rm, _ := newRisk(ledger)
	ctx := context.Background()

	d := rm.Validate(ctx, sellSignal("AAPL"), healthyState())
	assert.Equal(t, models.Reject("not in position"), d)

	ledger.positions["AAPL"] = models.Position{Ticker: "AAPL", Quantity: 3, AvgEntryPrice: dec("100")}
	broke := healthyState()
	broke.Cash = dec("0")
	broke.PositionCount = 99
	d = rm.Validate(ctx, sellSignal("AAPL"), broke)
	assert.True(t, d.Accepted)
}

func TestValidate_UnknownAction(t *testing.T) {
	rm, _ := newRisk(newMemLedger())
	sig := buySignal("AAPL")
	sig.Action = "HOLD"
	d := rm.Validate(context.Background(), sig, healthyState())
	assert.Equal(t, "unknown action: HOLD", d.Reason)
}

func TestCheck_FailsClosed(t *testing.T) {
	rm, metrics := newRisk(newMemLedger())
	failing := stateFunc(func(context.Context) (models.PortfolioState, error) {
		return models.PortfolioState{}, errors.New("ledger down")
	})

	d, _ := rm.Check(context.Background(), buySignal("AAPL"), failing)
	assert.False(t, d.Accepted)
	assert.Equal(t, "portfolio state unavailable: ledger down", d.Reason)
	assert.Equal(t, 1, metrics.decisions[false])

	ledger := newMemLedger()
	ledger.err = errors.New("timeout")
	rm, _ = newRisk(ledger)
	d = rm.Validate(context.Background(), sellSignal("AAPL"), healthyState())
	assert.False(t, d.Accepted)
	assert.Contains(t, d.Reason, "portfolio state unavailable")
}

func TestCheck_UsesProviderState(t *testing.T) {
	rm, _ := newRisk(newMemLedger())
	provider := stateFunc(func(context.Context) (models.PortfolioState, error) {
		s := healthyState()
		s.PositionCount = 5
		return s, nil
	})
	d, state := rm.Check(context.Background(), buySignal("AAPL"), provider)
	assert.Equal(t, "max positions reached (5)", d.Reason)
	assert.Equal(t, 5, state.PositionCount)
}

func TestSizePosition(t *testing.T) {
	rm, _ := newRisk(newMemLedger())
	tests := []struct {
		name  string
		cash  string
		price string
		want  int64
	}{
		{"target notional", "100000", "150", 66},
		{"capped by cash", "3000", "150", 20},
		{"at least one share", "50", "150", 1},
		{"no price", "100000", "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := healthyState()
			s.Cash = dec(tt.cash)
			require.Equal(t, tt.want, rm.SizePosition(s, dec(tt.price)))
		})
	}
}

func TestRiskManager_ConcurrentKillSwitch(t *testing.T) {
	rm, metrics := newRisk(newMemLedger())
	losing := healthyState()
	losing.DailyPnlPct = -0.04

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			rm.Validate(context.Background(), buySignal("AAPL"), losing)
		}()
	}
	timeout := time.After(5 * time.Second)
	for i := 0; i < 8; i++ {
		select {
		case <-done:
		case <-timeout:
			t.Fatal("validators did not finish")
		}
	}
	assert.Equal(t, []bool{true}, metrics.killSwitch)
}

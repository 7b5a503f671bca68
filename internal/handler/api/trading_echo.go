package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	xhttp "SentiTrader/pkg/http"
	xlogger "SentiTrader/pkg/logger"
	"SentiTrader/pkg/util"
)

// PortfolioService is what the API reads from usecase.Portfolio.
type PortfolioService interface {
	State(ctx context.Context) (models.PortfolioState, error)
	Positions(ctx context.Context) ([]models.Position, error)
	Position(ctx context.Context, ticker string) (*models.Position, error)
	Trades(ctx context.Context, from, to time.Time, limit int) ([]models.Trade, error)
	SyncWithBrokerage(ctx context.Context) (int, error)
}

// KillSwitch is the operator view of usecase.RiskManager.
type KillSwitch interface {
	Halted() bool
	Reset()
	Limits() models.RiskLimits
}

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// TradingEchoHandler serves the operations API.
type TradingEchoHandler struct {
	logger     *xlogger.Logger
	portfolio  PortfolioService
	risk       KillSwitch
	aggregates drepo.AggregateReader
	checks     map[string]HealthCheck
}

func NewTradingEchoHandler(logger *xlogger.Logger, portfolio PortfolioService, risk KillSwitch, aggregates drepo.AggregateReader, checks map[string]HealthCheck) *TradingEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &TradingEchoHandler{logger: logger, portfolio: portfolio, risk: risk, aggregates: aggregates, checks: checks}
}

func (h *TradingEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.GET("/portfolio", h.Portfolio)
	g.POST("/portfolio/sync", h.Sync)
	g.GET("/positions", h.Positions)
	g.GET("/positions/:ticker", h.Position)
	g.GET("/trades", h.Trades)
	g.GET("/sentiment/:ticker", h.Sentiment)
	g.GET("/risk/kill-switch", h.KillSwitchStatus)
	g.POST("/risk/kill-switch/reset", h.KillSwitchReset)
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *TradingEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	res := healthStatus{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			continue
		}
		res.Checks[name] = "ok"
	}
	if res.Status != "ok" {
		return xhttp.ServiceUnavailableResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *TradingEchoHandler) Portfolio(c echo.Context) error {
	state, err := h.portfolio.State(c.Request().Context())
	if err != nil {
		h.logger.Error("portfolio state", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UpstreamError("portfolio state unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, state)
}

func (h *TradingEchoHandler) Positions(c echo.Context) error {
	ps, err := h.portfolio.Positions(c.Request().Context())
	if err != nil {
		h.logger.Error("list positions", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UpstreamError("positions unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, ps, int64(len(ps)))
}

func (h *TradingEchoHandler) Position(c echo.Context) error {
	ticker := util.NormalizeTicker(c.Param("ticker"))
	p, err := h.portfolio.Position(c.Request().Context(), ticker)
	if errors.Is(err, models.ErrPositionNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no open position in %s", ticker))
	}
	if err != nil {
		h.logger.Error("read position", xlogger.String("ticker", ticker), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UpstreamError("position unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *TradingEchoHandler) Trades(c echo.Context) error {
	req := &models.TradesQuery{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := req.Range()
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	trades, err := h.portfolio.Trades(c.Request().Context(), from, to, req.Limit)
	if errors.Is(err, models.ErrInvalidQuery) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	if err != nil {
		h.logger.Error("list trades", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UpstreamError("trades unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, trades, int64(len(trades)))
}

// Sentiment returns the latest aggregate for a ticker, optionally for one window.
func (h *TradingEchoHandler) Sentiment(c echo.Context) error {
	ticker := util.NormalizeTicker(c.Param("ticker"))
	window := c.QueryParam("window")

	var (
		rec *models.AggregateRecord
		err error
	)
	if window != "" {
		rec, err = h.aggregates.Latest(c.Request().Context(), ticker, window)
	} else {
		rec, err = h.aggregates.LatestAny(c.Request().Context(), ticker)
	}
	if errors.Is(err, models.ErrNoAggregate) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no sentiment aggregate for %s", ticker))
	}
	if err != nil {
		h.logger.Error("read aggregate", xlogger.String("ticker", ticker), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UpstreamError("aggregates unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, rec)
}

type killSwitchStatus struct {
	Halted bool              `json:"halted"`
	Limits models.RiskLimits `json:"limits"`
}

func (h *TradingEchoHandler) KillSwitchStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, killSwitchStatus{Halted: h.risk.Halted(), Limits: h.risk.Limits()})
}

func (h *TradingEchoHandler) KillSwitchReset(c echo.Context) error {
	was := h.risk.Halted()
	h.risk.Reset()
	h.logger.Info("kill switch reset by operator", xlogger.Bool("was_halted", was))
	return xhttp.SuccessResponse(c, killSwitchStatus{Halted: h.risk.Halted(), Limits: h.risk.Limits()})
}

type syncResult struct {
	Positions int `json:"positions"`
}

func (h *TradingEchoHandler) Sync(c echo.Context) error {
	n, err := h.portfolio.SyncWithBrokerage(c.Request().Context())
	if err != nil {
		h.logger.Error("manual brokerage sync", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UpstreamError("brokerage sync failed").WithError(err))
	}
	return xhttp.DataResponse(c, http.StatusOK, syncResult{Positions: n})
}

var _ xhttp.Handler = (*TradingEchoHandler)(nil)

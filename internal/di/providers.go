package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"SentiTrader/internal/domain/models"
	drepo "SentiTrader/internal/domain/repository"
	"SentiTrader/internal/handler/api"
	internalrepo "SentiTrader/internal/repository"
	"SentiTrader/internal/service/brokerage"
	"SentiTrader/internal/usecase"
	"SentiTrader/internal/worker"
	"SentiTrader/pkg/cache"
	pkgch "SentiTrader/pkg/clickhouse"
	"SentiTrader/pkg/config"
	xhttp "SentiTrader/pkg/http"
	pkgkafka "SentiTrader/pkg/kafka"
	applogger "SentiTrader/pkg/logger"
	"SentiTrader/pkg/metrics"
	pkgpg "SentiTrader/pkg/postgres"
	"SentiTrader/pkg/server"
)

const schemaTimeout = 10 * time.Second

// ProvideBaseLogger creates the process logger without log shipping.
func ProvideBaseLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideLogger creates the process logger. When the log collector is enabled,
// aggregated entries are shipped through the producer; children created from
// the returned logger share the collector.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := ProvideBaseLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.LogCollector.Enabled || cfg.Kafka.Topics.Logs == "" {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.LogCollector.Interval,
		CountThreshold: cfg.LogCollector.Threshold,
		Levels:         cfg.LogCollector.Levels,
		Topic:          cfg.Kafka.Topics.Logs,
		Publisher:      producer,
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, true),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvidePostgresClient creates the ledger database client.
func ProvidePostgresClient(cfg *config.Config, l *applogger.Logger) (*pkgpg.Client, func(), error) {
	client, err := pkgpg.NewClient(
		pkgpg.WithDSN(cfg.Postgres.DSN),
		pkgpg.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("postgres close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideRedisCache creates the Redis client used for the aggregate cache.
func ProvideRedisCache(cfg *config.Config, l *applogger.Logger) (*cache.RedisCache, func(), error) {
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 3*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	cleanup := func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	return rc, cleanup, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Producer.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	cleanup := func() {
		if err := producer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "kafka producer close: %v\n", err)
		}
	}
	return producer, cleanup, nil
}

// ProvideAggregateStore creates the ClickHouse aggregate history and ensures its schema.
func ProvideAggregateStore(ch *pkgch.Client, l *applogger.Logger) (*internalrepo.ClickHouseAggregateStore, error) {
	store := internalrepo.NewClickHouseAggregateStore(ch, l)
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("aggregate schema: %w", err)
	}
	return store, nil
}

// ProvideAggregateCache wraps the layered cache with the aggregate key layout.
func ProvideAggregateCache(lc *cache.LayeredCache) *internalrepo.RedisAggregateCache {
	return internalrepo.NewRedisAggregateCache(lc)
}

// ProvideLayeredCache puts a short-lived memory layer in front of Redis for
// the aggregate read path. The memory TTL never exceeds the aggregate TTL.
func ProvideLayeredCache(cfg *config.Config, rc *cache.RedisCache) (*cache.LayeredCache, func()) {
	ttl := cfg.Aggregator.MemoryCacheTTL
	if cfg.Aggregator.CacheTTL > 0 && (ttl <= 0 || ttl > cfg.Aggregator.CacheTTL) {
		ttl = cfg.Aggregator.CacheTTL
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemoryTTL(ttl))
	return lc, func() { _ = lc.Close() }
}

// ProvideAggregateLookup reads aggregates cache first with a store fallback.
func ProvideAggregateLookup(c *internalrepo.RedisAggregateCache, store *internalrepo.ClickHouseAggregateStore, cfg *config.Config, l *applogger.Logger) *internalrepo.AggregateLookup {
	return internalrepo.NewAggregateLookup(c, store, cfg.Aggregator.Windows, l)
}

// ProvideLedger creates the Postgres ledger and ensures its schema.
func ProvideLedger(pg *pkgpg.Client) (*internalrepo.PostgresLedger, error) {
	ledger := internalrepo.NewPostgresLedger(pg)
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := ledger.Init(ctx); err != nil {
		return nil, fmt.Errorf("ledger schema: %w", err)
	}
	return ledger, nil
}

// ProvideSectorReference memoizes the ledger's ticker reference table in memory.
func ProvideSectorReference(ledger *internalrepo.PostgresLedger, cfg *config.Config) (drepo.SectorReference, func()) {
	mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(5000))
	ref := internalrepo.NewCachedSectorReference(ledger, mc, cfg.Risk.SectorCacheTTL)
	return ref, func() { _ = mc.Close() }
}

// ProvideBrokerage creates the Alpaca adapter. Without credentials it returns
// a stand-in that fails every call; the stages needing it are not started.
func ProvideBrokerage(cfg *config.Config, l *applogger.Logger) (drepo.Brokerage, error) {
	if !cfg.Brokerage.HasCredentials() {
		return brokerage.Unavailable{}, nil
	}
	b, err := brokerage.NewAlpaca(brokerage.Options{
		APIKey:        cfg.Brokerage.APIKey,
		SecretKey:     cfg.Brokerage.SecretKey,
		BaseURL:       cfg.Brokerage.Endpoint(),
		DataFeed:      cfg.Brokerage.DataFeed,
		RatePerMinute: cfg.Brokerage.RatePerMinute,
		Logger:        l,
	})
	if err != nil {
		return nil, fmt.Errorf("brokerage: %w", err)
	}
	l.Info("brokerage configured",
		applogger.String("mode", cfg.Brokerage.Mode),
		applogger.String("endpoint", cfg.Brokerage.Endpoint()))
	return b, nil
}

// ProvideMarketData selects the bar source for the signal generator.
func ProvideMarketData(cfg *config.Config, ch *pkgch.Client, broker drepo.Brokerage) (drepo.MarketData, error) {
	if cfg.Brokerage.MarketDataSource == "clickhouse" {
		md := internalrepo.NewClickHouseMarketData(ch)
		ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
		defer cancel()
		if err := md.Init(ctx); err != nil {
			return nil, fmt.Errorf("market bars schema: %w", err)
		}
		return md, nil
	}
	md, ok := broker.(drepo.MarketData)
	if !ok {
		return nil, fmt.Errorf("brokerage %T does not serve market data", broker)
	}
	return md, nil
}

// ProvideMarketHours builds the session schedule, optionally confirmed by the brokerage clock.
func ProvideMarketHours(cfg *config.Config, broker drepo.Brokerage) (*usecase.MarketHours, error) {
	open, err := config.ParseClock(cfg.MarketHours.Open)
	if err != nil {
		return nil, fmt.Errorf("market open: %w", err)
	}
	closeAt, err := config.ParseClock(cfg.MarketHours.Close)
	if err != nil {
		return nil, fmt.Errorf("market close: %w", err)
	}
	var clock drepo.Brokerage
	if cfg.MarketHours.UseBrokerageClock && cfg.Brokerage.HasCredentials() {
		clock = broker
	}
	return usecase.NewMarketHours(cfg.MarketHours.Timezone, open, closeAt, clock)
}

// ProvideAggregatePublisher creates the aggregates stream publisher.
func ProvideAggregatePublisher(p *pkgkafka.Producer, cfg *config.Config) drepo.AggregatePublisher {
	return internalrepo.NewKafkaAggregatePublisher(p, cfg.Kafka.Topics.Aggregates)
}

// ProvideSignalPublisher creates the signals stream publisher.
func ProvideSignalPublisher(p *pkgkafka.Producer, cfg *config.Config) drepo.SignalPublisher {
	return internalrepo.NewKafkaSignalPublisher(p, cfg.Kafka.Topics.Signals)
}

// ProvideAggregator creates the aggregator use case.
func ProvideAggregator(
	cfg *config.Config,
	store *internalrepo.ClickHouseAggregateStore,
	c *internalrepo.RedisAggregateCache,
	pub drepo.AggregatePublisher,
	m drepo.Metrics,
	l *applogger.Logger,
) (*usecase.Aggregator, error) {
	windows, err := models.ParseWindows(cfg.Aggregator.Windows)
	if err != nil {
		return nil, fmt.Errorf("aggregator windows: %w", err)
	}
	return usecase.NewAggregator(usecase.AggregatorConfig{
		Windows:   windows,
		Retention: cfg.Aggregator.Retention,
		CacheTTL:  cfg.Aggregator.CacheTTL,
	}, store, c, pub, m, l), nil
}

// StrategyParams maps the strategy section onto generator thresholds.
func StrategyParams(cfg *config.Config) usecase.StrategyParams {
	s := cfg.Strategy
	return usecase.StrategyParams{
		SignalWindow:       s.SignalWindow,
		SentimentThreshold: s.SentimentThreshold,
		MinMentions:        s.MinMentions,
		VolumeMultiplier:   s.VolumeMultiplier,
		StdDevFloor:        s.StdDevFloor,
		TakeProfitPct:      s.TakeProfitPct,
		StopLossPct:        s.StopLossPct,
		MaxHold:            time.Duration(s.MaxHoldSeconds) * time.Second,
		ReversalThreshold:  s.ReversalThreshold,
		MarketBars:         s.MarketBars,
	}
}

// ProvideSignalGenerator creates the signal generator use case.
func ProvideSignalGenerator(
	cfg *config.Config,
	lookup *internalrepo.AggregateLookup,
	md drepo.MarketData,
	ledger *internalrepo.PostgresLedger,
	hours *usecase.MarketHours,
	pub drepo.SignalPublisher,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.SignalGenerator {
	return usecase.NewSignalGenerator(StrategyParams(cfg), lookup, md, ledger, hours, pub, m, l)
}

// RiskLimits maps the risk section onto the guardrails.
func RiskLimits(cfg *config.Config) models.RiskLimits {
	r := cfg.Risk
	return models.RiskLimits{
		StartingCapital:        decimal.NewFromFloat(r.StartingCapital),
		MaxPositions:           r.MaxPositions,
		PositionSizePct:        r.PositionSizePct,
		MaxDailyLossPct:        r.MaxDailyLossPct,
		MaxSectorExposurePct:   r.MaxSectorExposurePct,
		MaxTradeLossPct:        r.MaxTradeLossPct,
		KillSwitchEnabled:      r.KillSwitchEnabled,
		KillSwitchThresholdPct: r.KillSwitchThresholdPct,
		AllowPyramiding:        r.AllowPyramiding,
	}
}

// ProvideRiskManager creates the risk manager use case.
func ProvideRiskManager(cfg *config.Config, ledger *internalrepo.PostgresLedger, sectors drepo.SectorReference, m drepo.Metrics, l *applogger.Logger) *usecase.RiskManager {
	return usecase.NewRiskManager(RiskLimits(cfg), ledger, sectors, m, l)
}

// ProvidePositionGuard creates the lock shared by the executor and the
// brokerage sync.
func ProvidePositionGuard() *usecase.PositionGuard {
	return usecase.NewPositionGuard()
}

// ProvideOrderExecutor creates the order executor use case.
func ProvideOrderExecutor(cfg *config.Config, broker drepo.Brokerage, ledger *internalrepo.PostgresLedger, guard *usecase.PositionGuard, m drepo.Metrics, l *applogger.Logger) *usecase.OrderExecutor {
	return usecase.NewOrderExecutor(usecase.ExecutorConfig{
		MaxAttempts:  cfg.Executor.MaxAttempts,
		BackoffBase:  cfg.Executor.BackoffBase,
		FillTimeout:  cfg.Executor.FillTimeout,
		PollInterval: cfg.Executor.PollInterval,
	}, broker, ledger, guard, m, l)
}

// ProvidePortfolio creates the portfolio use case.
func ProvidePortfolio(cfg *config.Config, ledger *internalrepo.PostgresLedger, broker drepo.Brokerage, guard *usecase.PositionGuard, hours *usecase.MarketHours, l *applogger.Logger) *usecase.Portfolio {
	return usecase.NewPortfolio(ledger, broker, guard, hours, decimal.NewFromFloat(cfg.Risk.StartingCapital), l)
}

func batchReaderOptions(cfg *config.Config, stage string, l *applogger.Logger) []pkgkafka.ConsumerOption {
	c := cfg.Kafka.Consumer
	return []pkgkafka.ConsumerOption{
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID(stage)),
		pkgkafka.WithConsumerStartOffset(c.StartOffset),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerReadTimeout(c.ReadTimeout),
		pkgkafka.WithConsumerLogger(l),
	}
}

// ProvideAggregatorWorker creates the aggregator stage on the sentiment events
// topic. A disabled stage yields nil and opens no reader.
func ProvideAggregatorWorker(cfg *config.Config, agg *usecase.Aggregator, m drepo.Metrics, l *applogger.Logger) (*worker.AggregatorWorker, func(), error) {
	if !cfg.Stages.Aggregator {
		return nil, func() {}, nil
	}
	reader, err := pkgkafka.NewBatchReader(cfg.Kafka.Topics.SentimentEvents, batchReaderOptions(cfg, "aggregator", l)...)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregator reader: %w", err)
	}
	w := worker.NewAggregatorWorker(reader, agg, cfg.Aggregator.BatchSize, cfg.Aggregator.Retention, m, l)
	cleanup := func() {
		if err := reader.Close(); err != nil {
			l.Warn("aggregator reader close error", applogger.Error(err))
		}
	}
	return w, cleanup, nil
}

// ProvideSignalWorker creates the signal stage on the aggregates topic.
func ProvideSignalWorker(cfg *config.Config, gen *usecase.SignalGenerator, m drepo.Metrics, l *applogger.Logger) (*worker.SignalWorker, func(), error) {
	if !cfg.Stages.Signals {
		return nil, func() {}, nil
	}
	reader, err := pkgkafka.NewBatchReader(cfg.Kafka.Topics.Aggregates, batchReaderOptions(cfg, "signals", l)...)
	if err != nil {
		return nil, nil, fmt.Errorf("signal reader: %w", err)
	}
	w := worker.NewSignalWorker(reader, gen, cfg.Strategy.BatchSize, m, l)
	cleanup := func() {
		if err := reader.Close(); err != nil {
			l.Warn("signal reader close error", applogger.Error(err))
		}
	}
	return w, cleanup, nil
}

// ProvideExecutorWorker creates the push consumer on the signals topic. It
// needs brokerage credentials; without them the stage is skipped.
func ProvideExecutorWorker(
	cfg *config.Config,
	risk *usecase.RiskManager,
	portfolio *usecase.Portfolio,
	exec *usecase.OrderExecutor,
	hours *usecase.MarketHours,
	m drepo.Metrics,
	l *applogger.Logger,
) (*worker.ConsumerWorker, error) {
	if !cfg.Stages.Executor {
		return nil, nil
	}
	if !cfg.Brokerage.HasCredentials() {
		l.Error("executor stage not started", applogger.Error(models.ErrMissingCredentials))
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID("executor")),
		pkgkafka.WithConsumerStartOffset(c.StartOffset),
		pkgkafka.WithConsumerWorkers(1),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Topics.SignalsDLQ),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerReadTimeout(c.ReadTimeout),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("executor consumer: %w", err)
	}
	consumer.RegisterHandler(worker.NewSignalHandler(cfg.Kafka.Topics.Signals, risk, portfolio, exec, hours, m, l))
	return worker.NewConsumerWorker("executor", consumer, cfg.Server.ShutdownTimeout), nil
}

// ProvideReconciler creates the periodic brokerage reconciliation stage.
func ProvideReconciler(cfg *config.Config, portfolio *usecase.Portfolio, m drepo.Metrics, l *applogger.Logger) *worker.Reconciler {
	if !cfg.Stages.Reconciler {
		return nil
	}
	if !cfg.Brokerage.HasCredentials() {
		l.Error("reconciler stage not started", applogger.Error(models.ErrMissingCredentials))
		return nil
	}
	return worker.NewReconciler(portfolio, cfg.Executor.PriceRefreshInterval, cfg.Executor.ReconcileInterval, m, l)
}

// ProvideStages collects the enabled stages.
func ProvideStages(aw *worker.AggregatorWorker, sw *worker.SignalWorker, ew *worker.ConsumerWorker, rw *worker.Reconciler) []worker.Worker {
	var stages []worker.Worker
	if aw != nil {
		stages = append(stages, aw)
	}
	if sw != nil {
		stages = append(stages, sw)
	}
	if ew != nil {
		stages = append(stages, ew)
	}
	if rw != nil {
		stages = append(stages, rw)
	}
	return stages
}

// ProvideHealthChecks lists the dependencies pinged by /health.
func ProvideHealthChecks(pg *pkgpg.Client, ch *pkgch.Client, rc *cache.RedisCache) map[string]api.HealthCheck {
	return map[string]api.HealthCheck{
		"postgres":   pg.Health,
		"clickhouse": ch.Health,
		"redis":      rc.Ping,
	}
}

// ProvideHTTPHandler creates the operations API handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	portfolio *usecase.Portfolio,
	risk *usecase.RiskManager,
	lookup *internalrepo.AggregateLookup,
	checks map[string]api.HealthCheck,
) xhttp.Handler {
	return api.NewTradingEchoHandler(l, portfolio, risk, lookup, checks)
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
}

// ProvideApp creates the application.
func ProvideApp(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, stages []worker.Worker) *server.App {
	return server.New(cfg, l, srv, stages)
}

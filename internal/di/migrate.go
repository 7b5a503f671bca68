package di

import (
	"context"
	"fmt"

	internalrepo "SentiTrader/internal/repository"
	"SentiTrader/pkg/config"
	applogger "SentiTrader/pkg/logger"
)

// Migrate creates the ClickHouse and Postgres tables without starting any stage.
// The ClickHouse database itself must already exist.
func Migrate(ctx context.Context, cfg *config.Config, l *applogger.Logger) error {
	ch, closeCH, err := ProvideClickHouseClient(cfg, l)
	if err != nil {
		return err
	}
	defer closeCH()

	stmts := append(append([]string{}, internalrepo.AggregateSchema...), internalrepo.MarketBarsSchema...)
	if err := ch.InitSchema(ctx, stmts); err != nil {
		return fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse schema ready", applogger.String("database", cfg.ClickHouse.Database))

	pg, closePG, err := ProvidePostgresClient(cfg, l)
	if err != nil {
		return err
	}
	defer closePG()

	if err := pg.InitSchema(ctx, internalrepo.LedgerSchema); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	l.Info("postgres schema ready")
	return nil
}

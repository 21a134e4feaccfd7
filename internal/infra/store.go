package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/store"
)

// OpenStore builds the backend named by cfg.StoreDriver. The returned close
// function releases the underlying connections.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return store.NewMemory(), func() {}, nil

	case config.DriverPostgres:
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to postgres", "max_conns", cfg.DBMaxConns)
		return store.NewPostgres(pool), pool.Close, nil

	case config.DriverSQLite:
		db, err := NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewSQLite(db)
		if err := s.ApplySchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Warn("close sqlite", "error", err)
			}
		}
		return s, closeDB, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

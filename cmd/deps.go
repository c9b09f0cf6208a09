package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"github.com/xkilldash9x/deskpilot/internal/desktop/cdpdesk"
	"github.com/xkilldash9x/deskpilot/internal/desktop/memdesk"
	"github.com/xkilldash9x/deskpilot/internal/oracle"
	"github.com/xkilldash9x/deskpilot/internal/store"
	"go.uber.org/zap"
)

// platformProvider creates the desktop substrate selected by the configuration.
type platformProvider interface {
	// Create returns the platform and a cleanup function that releases it.
	Create(ctx context.Context, cfg config.DesktopConfig, logger *zap.Logger) (desktop.Platform, func(), error)
}

// storeProvider creates the run store. This abstraction allows tests to inject
// a store backed by a mock pool instead of a live database connection.
type storeProvider interface {
	Create(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*store.Store, func(), error)
}

// oracleFactory creates the decision oracle.
type oracleFactory func(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (oracle.Oracle, error)

// deps groups the providers every command builds its components from.
type deps struct {
	platforms platformProvider
	stores    storeProvider
	oracles   oracleFactory
}

func defaultDeps() *deps {
	return &deps{
		platforms: defaultPlatformProvider{},
		stores:    defaultStoreProvider{},
		oracles:   oracle.New,
	}
}

type defaultPlatformProvider struct{}

func (defaultPlatformProvider) Create(ctx context.Context, cfg config.DesktopConfig, logger *zap.Logger) (desktop.Platform, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		fixture, err := memdesk.LoadFixture(cfg.Fixture)
		if err != nil {
			return desktop.Platform{}, nil, err
		}
		return memdesk.New(fixture, logger).Platform(), func() {}, nil
	case config.BackendCDP:
		d, err := cdpdesk.New(ctx, cfg, logger)
		if err != nil {
			return desktop.Platform{}, nil, err
		}
		return d.Platform(), d.Close, nil
	default:
		return desktop.Platform{}, nil, fmt.Errorf("unknown or unsupported desktop backend configured: '%s'. Supported: [%s, %s]",
			cfg.Backend, config.BackendCDP, config.BackendMemory)
	}
}

type defaultStoreProvider struct{}

// Create connects to PostgreSQL, applies the schema and returns the store with
// a cleanup function that closes the pool.
func (defaultStoreProvider) Create(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*store.Store, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (DESKPILOT_STORE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

package oracle

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/deskpilot/internal/config"
	"go.uber.org/zap"
)

// New creates the configured Oracle, paced by RequestsPerMinute.
func New(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (Oracle, error) {
	var (
		o   Oracle
		err error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		o, err = NewGemini(ctx, cfg, logger)
	case config.ProviderScript:
		o, err = LoadScript(cfg.Script)
	default:
		return nil, fmt.Errorf("unknown or unsupported oracle provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderScript)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Provider == config.ProviderScript {
		return o, nil
	}
	return NewRateLimited(o, cfg.RequestsPerMinute), nil
}

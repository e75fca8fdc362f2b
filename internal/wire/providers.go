// Package wire assembles a Cache instance from a loaded Config, following
// the layered provider-set style the rest of the stack uses for dependency
// injection (spec SPEC_FULL §10.3, §11 google/wire row).
package wire

import (
	"fmt"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cachebay/cachebay"
	"github.com/cachebay/cachebay/internal/config"
)

// ProvideLogger builds the zap.Logger every subsystem shares, configured
// from cfg.Logging.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Logging.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("wire: parse log level: %w", err)
	}
	zcfg.Level = level

	switch cfg.Logging.Output {
	case "stderr":
		zcfg.OutputPaths = []string{"stderr"}
	default:
		zcfg.OutputPaths = []string{"stdout"}
	}

	return zcfg.Build()
}

// ProvideCacheOptions translates cfg into the cachebay.Option values New
// accepts, wiring metrics, tracing, and persistence only when enabled.
func ProvideCacheOptions(cfg *config.Config, logger *zap.Logger) []cachebay.Option {
	opts := []cachebay.Option{cachebay.WithLogger(logger)}

	if cfg.Metrics.Enabled {
		opts = append(opts, cachebay.WithMetrics(cfg.Metrics.Namespace))
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, cachebay.WithTracing(cfg.Tracing.ServiceName))
	}
	if cfg.Persistence.Enabled {
		opts = append(opts, cachebay.WithPersistence(cfg.Persistence.Dir))
	}
	if cfg.Features.EnableBatchedNotify {
		opts = append(opts, cachebay.WithBatchedNotify())
	}

	return opts
}

// ProvideCacheConfig builds the cachebay.Config identity/decision-mode
// settings from cfg. Key functions and interface maps are not
// environment-derived, so callers needing custom identity rules construct
// cachebay.Config directly instead of going through this provider.
func ProvideCacheConfig(cfg *config.Config) cachebay.Config {
	mode := cachebay.DecisionCanonical
	if cfg.Connection.DefaultMode == "page" {
		mode = cachebay.DecisionStrict
	}
	return cachebay.Config{DefaultDecisionMode: mode}
}

// ProvideCache constructs the fully wired *cachebay.Cache.
func ProvideCache(cacheCfg cachebay.Config, opts []cachebay.Option) (*cachebay.Cache, error) {
	return cachebay.New(cacheCfg, opts...)
}

var (
	// ConfigSet provides the loaded configuration and the logger derived
	// from it.
	ConfigSet = wire.NewSet(
		ProvideLogger,
	)

	// CacheSet provides everything needed to construct a *cachebay.Cache.
	CacheSet = wire.NewSet(
		ProvideCacheConfig,
		ProvideCacheOptions,
		ProvideCache,
	)

	// SuperSet combines every provider set into the complete application
	// graph.
	SuperSet = wire.NewSet(
		ConfigSet,
		CacheSet,
	)
)

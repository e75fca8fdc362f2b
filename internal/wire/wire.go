//go:build wireinject

package wire

import (
	"github.com/google/wire"

	"github.com/cachebay/cachebay"
	"github.com/cachebay/cachebay/internal/config"
)

// InitializeCache wires a *cachebay.Cache from an already-loaded *config.Config.
func InitializeCache(cfg *config.Config) (*cachebay.Cache, error) {
	wire.Build(SuperSet)
	return nil, nil
}

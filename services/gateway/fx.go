package gateway

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"creatorlane-marketplace/internal/config"
)

var Module = fx.Module("gateway",
	fx.Provide(New),
)

// New selects the gateway driver once at startup. Call sites depend on the
// Gateway interface and never inspect which implementation they got.
func New(cfg *config.Config) Gateway {
	switch cfg.Gateway.Driver {
	case "http":
		return NewHTTPGateway(cfg)
	default:
		zap.L().Warn("using simulated payment gateway", zap.String("driver", cfg.Gateway.Driver))
		return NewSimulator()
	}
}

package otelcol

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/pkg/otelcol/exporters"
)

// Module installs the OTLP trace pipeline when OTEL.ADDR is configured and
// stays inert otherwise.
var Module = fx.Module("otelcol",
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, cfg *config.Config) {
	if cfg.Otel.Addr == "" {
		return
	}

	exporter, err := exporters.ProvideGrpc(cfg)
	if err != nil {
		zap.L().Warn("failed to initialize otlp exporter, tracing disabled", zap.Error(err))
		return
	}

	tp := ProvideTrace(exporter)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
}

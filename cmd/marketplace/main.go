package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/internal/logger"
	"creatorlane-marketplace/internal/server"
	"creatorlane-marketplace/pkg/db"
	"creatorlane-marketplace/pkg/health"
	"creatorlane-marketplace/pkg/otelcol"
	"creatorlane-marketplace/pkg/redis"
	"creatorlane-marketplace/pkg/sequence"
	"creatorlane-marketplace/pkg/task"
	"creatorlane-marketplace/services/balance"
	"creatorlane-marketplace/services/bootstrap"
	"creatorlane-marketplace/services/contract"
	"creatorlane-marketplace/services/escrow"
	"creatorlane-marketplace/services/funding"
	"creatorlane-marketplace/services/gateway"
	"creatorlane-marketplace/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		fx.Provide(provideSnowflakeNode),
		health.Module,
		server.Router,
		bootstrap.Module,
		gateway.Module,
		contract.Module,
		escrow.Module,
		balance.Module,
		withdrawal.Module,
		funding.Module,
		server.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

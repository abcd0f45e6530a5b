package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/internal/logger"
	"creatorlane-marketplace/pkg/db"
	"creatorlane-marketplace/pkg/redis"
	"creatorlane-marketplace/pkg/sequence"
	"creatorlane-marketplace/pkg/task"
	"creatorlane-marketplace/services/balance"
	"creatorlane-marketplace/services/contract"
	"creatorlane-marketplace/services/escrow"
	"creatorlane-marketplace/services/funding"
	"creatorlane-marketplace/services/gateway"
)

// The worker runs asynq consumers: payment event fan-out targets and the
// funding reconcile sweep.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		sequence.Module,
		fx.Provide(provideSnowflakeNode),
		gateway.Module,
		escrow.Module,
		// Route registration needs the HTTP engine, so the worker provides
		// the bare services instead of the full modules.
		fx.Provide(contract.NewService, balance.NewService, funding.NewService),
		funding.Worker,
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

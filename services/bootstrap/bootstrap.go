package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorlane-marketplace/services/balance"
	"creatorlane-marketplace/services/contract"
	"creatorlane-marketplace/services/escrow"
	"creatorlane-marketplace/services/funding"
	"creatorlane-marketplace/services/withdrawal"
)

var Module = fx.Module("bootstrap",
	fx.Invoke(runBootstrap),
)

// Run after DB initialized
func runBootstrap(lc fx.Lifecycle, db *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return migrate(db)
		},
	})
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&contract.Contract{},
		&escrow.EscrowPayment{},
		&escrow.GatewayTransaction{},
		&balance.CreatorBalance{},
		&balance.BalanceTransaction{},
		&withdrawal.Withdrawal{},
		&funding.FundingSession{},
	); err != nil {
		zap.L().Error("failed to run migrations", zap.Error(err))
		return err
	}

	zap.L().Info("database schema up to date")
	return nil
}

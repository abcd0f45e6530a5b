package funding

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/pkg/db/option"
	"creatorlane-marketplace/pkg/taskname"
	ftask "creatorlane-marketplace/services/funding/task"
	"creatorlane-marketplace/services/gateway"
)

// Worker wires the reconcile sweep into the asynq server. The sweep is the
// safety net for completions that lost both their webhook delivery and
// their user redirect.
var Worker = fx.Module("funding.worker",
	fx.Invoke(registerWorkerHandlers),
	fx.Invoke(runReconcileScheduler),
)

func runReconcileScheduler(lc fx.Lifecycle, cfg *config.Config) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		nil,
	)

	if _, err := scheduler.Register("@every 10m", ftask.NewReconcileTask()); err != nil {
		zap.L().Error("failed to register reconcile schedule", zap.Error(err))
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start()
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Shutdown()
			return nil
		},
	})
}

func registerWorkerHandlers(mux *asynq.ServeMux, svc *Service, cfg *config.Config) {
	reconciler := &reconciler{
		svc:     svc,
		after:   cfg.Payments.ReconcileAfter,
		workers: cfg.Payments.ReconcileWorkers,
	}
	mux.HandleFunc(taskname.FundingReconcile, reconciler.Handle)
}

type reconciler struct {
	svc     *Service
	after   time.Duration
	workers int
}

func (r *reconciler) Handle(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().UTC().Add(-r.after)

	stale, err := r.svc.sessions.Find(ctx, &FundingSession{Status: SessionCreated},
		option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LT, Value: cutoff}),
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "ASC"}),
		option.WithLimit(200),
	)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	zap.L().Info("reconciling stale funding sessions", zap.Int("count", len(stale)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, fs := range stale {
		fs := fs
		g.Go(func() error {
			return r.reconcileSession(ctx, fs)
		})
	}
	return g.Wait()
}

func (r *reconciler) reconcileSession(ctx context.Context, fs *FundingSession) error {
	session, err := r.svc.gateway.RetrieveSession(ctx, fs.GatewaySessionID)
	if err != nil {
		zap.L().Warn("reconcile: failed to retrieve session",
			zap.String("session_id", fs.GatewaySessionID), zap.Error(err))
		return nil
	}

	if session.PaymentStatus == gateway.PaymentStatusPaid {
		if _, err := r.svc.HandleFundingCompletion(ctx, fs.GatewaySessionID); err != nil && !errors.Is(err, ErrPaymentNotConfirmed) {
			zap.L().Error("reconcile: failed to apply completion",
				zap.String("session_id", fs.GatewaySessionID), zap.Error(err))
			return err
		}
		zap.L().Info("reconcile: recovered missed completion",
			zap.String("contract_id", fs.ContractID),
			zap.String("session_id", fs.GatewaySessionID))
		return nil
	}

	// Still unpaid well past the grace period; stop scanning it.
	return r.svc.sessions.Update(ctx, fs.ID, map[string]any{
		"status":     SessionAbandoned,
		"updated_at": time.Now().UTC(),
	})
}

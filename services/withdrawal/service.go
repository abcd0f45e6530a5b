package withdrawal

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/pkg/db/option"
	"creatorlane-marketplace/pkg/db/pagination"
	"creatorlane-marketplace/pkg/errutil"
	"creatorlane-marketplace/pkg/repository"
	"creatorlane-marketplace/pkg/sequence"
	"creatorlane-marketplace/pkg/task"
	"creatorlane-marketplace/services/balance"
	wtask "creatorlane-marketplace/services/withdrawal/task"
)

var (
	ErrNotFound     = errutil.New(errutil.StatusNotFound, "withdrawal not found")
	ErrBelowMinimum = errutil.New(errutil.StatusValidationFailed, "withdrawal amount below minimum")
	ErrInvalidState = errutil.New(errutil.StatusUnprocessableEntity, "withdrawal is not pending")
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	sequence sequence.Generator
	enqueuer task.Enqueuer
	balances *balance.Service

	minAmount decimal.Decimal
	currency  string

	withdrawals repository.Repository[Withdrawal]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Sequence sequence.Generator
	Enqueuer task.Enqueuer
	Balances *balance.Service
	Config   *config.Config
}

func NewService(p ServiceParams) *Service {
	minAmount, err := decimal.NewFromString(p.Config.Payments.MinWithdrawal)
	if err != nil {
		zap.L().Warn("invalid PAYMENTS.MIN_WITHDRAWAL, using zero",
			zap.String("value", p.Config.Payments.MinWithdrawal), zap.Error(err))
		minAmount = decimal.Zero
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		sequence: p.Sequence,
		enqueuer: p.Enqueuer,
		balances: p.Balances,

		minAmount: minAmount,
		currency:  p.Config.Payments.Currency,

		withdrawals: repository.ProvideStore[Withdrawal](p.DB),
	}
}

type RequestParams struct {
	CreatorID string          `json:"creator_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Method    string          `json:"method" binding:"required"`
	Details   datatypes.JSON  `json:"details"`
}

// Request reserves the funds and creates the pending withdrawal in one
// transaction, so the money is out of available_balance before any human
// looks at the request.
func (s *Service) Request(ctx context.Context, p RequestParams) (*Withdrawal, error) {
	if p.Amount.LessThan(s.minAmount) {
		return nil, ErrBelowMinimum
	}

	code, err := s.sequence.NextWithdrawalCode(ctx, p.CreatorID)
	if err != nil {
		zap.L().Warn("failed to generate withdrawal code", zap.Error(err))
	}

	w := &Withdrawal{
		ID:          s.node.Generate().String(),
		Code:        code,
		CreatorID:   p.CreatorID,
		Amount:      p.Amount,
		Currency:    s.currency,
		Method:      p.Method,
		Details:     p.Details,
		Status:      StatusPending,
		RequestedAt: time.Now().UTC(),
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.balances.Reserve(ctx, tx, p.CreatorID, p.Amount, w.ID); err != nil {
			return err
		}
		return s.withdrawals.WithTrx(tx).Create(ctx, w)
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, wtask.NewWithdrawalRequestedTask, w)
	return w, nil
}

// Approve settles a pending withdrawal. external_ref records the payout
// reference on the provider side.
func (s *Service) Approve(ctx context.Context, withdrawalID, externalRef string) (*Withdrawal, error) {
	var out *Withdrawal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		w, err := s.lockPending(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := s.withdrawals.WithTrx(tx).Update(ctx, w.ID, map[string]any{
			"status":       StatusCompleted,
			"external_ref": externalRef,
			"processed_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}

		if err := s.balances.CompleteWithdrawal(ctx, tx, w.CreatorID, w.Amount, w.ID); err != nil {
			return err
		}

		w.Status = StatusCompleted
		w.ExternalRef = externalRef
		w.ProcessedAt = &now
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, wtask.NewWithdrawalCompletedTask, out)
	return out, nil
}

// Reject cancels a pending withdrawal and returns the reserved funds.
func (s *Service) Reject(ctx context.Context, withdrawalID, reason string) (*Withdrawal, error) {
	var out *Withdrawal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		w, err := s.lockPending(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := s.withdrawals.WithTrx(tx).Update(ctx, w.ID, map[string]any{
			"status":       StatusCancelled,
			"reason":       reason,
			"cancelled_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}

		if err := s.balances.ReturnReserved(ctx, tx, w.CreatorID, w.Amount, w.ID); err != nil {
			return err
		}

		w.Status = StatusCancelled
		w.Reason = reason
		w.CancelledAt = &now
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, wtask.NewWithdrawalRejectedTask, out)
	return out, nil
}

func (s *Service) Get(ctx context.Context, withdrawalID string) (*Withdrawal, error) {
	w, err := s.withdrawals.FindOne(ctx, &Withdrawal{ID: withdrawalID})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrNotFound
	}
	return w, nil
}

func (s *Service) ListByCreator(ctx context.Context, creatorID string, page pagination.Pagination) ([]*Withdrawal, *pagination.PageInfo, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}),
		option.WithLimit(limit + 1),
	}
	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field: "created_at", Operator: option.LT, Value: cursor.CreatedAt,
		}))
	}

	rows, err := s.withdrawals.Find(ctx, &Withdrawal{CreatorID: creatorID}, opts...)
	if err != nil {
		return nil, nil, err
	}

	rows, info := pagination.Page(rows, limit, func(w *Withdrawal) pagination.Cursor {
		return pagination.At(w.CreatedAt, w.ID)
	})
	return rows, info, nil
}

// lockPending loads the withdrawal under FOR UPDATE and rejects anything
// that already reached a terminal state, so approve/reject never
// double-apply balance changes.
func (s *Service) lockPending(ctx context.Context, tx *gorm.DB, withdrawalID string) (*Withdrawal, error) {
	locked := s.withdrawals.WithTrx(tx.Scopes(option.LockingUpdate))

	w, err := locked.FindOne(ctx, &Withdrawal{ID: withdrawalID})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrNotFound
	}
	if w.Status != StatusPending {
		return nil, ErrInvalidState
	}
	return w, nil
}

func (s *Service) publish(ctx context.Context, build func(wtask.WithdrawalEventPayload) (*asynq.Task, error), w *Withdrawal) {
	t, err := build(wtask.WithdrawalEventPayload{
		WithdrawalID: w.ID,
		Code:         w.Code,
		CreatorID:    w.CreatorID,
		Amount:       w.Amount,
		Currency:     w.Currency,
		Method:       w.Method,
		Status:       w.Status,
		Reason:       w.Reason,
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		zap.L().Error("failed to build withdrawal event", zap.Error(err))
		return
	}
	if _, err := s.enqueuer.Enqueue(ctx, t); err != nil {
		zap.L().Error("failed to enqueue withdrawal event",
			zap.String("withdrawal_id", w.ID), zap.Error(err))
	}
}

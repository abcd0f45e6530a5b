package balance

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/pkg/db/option"
	"creatorlane-marketplace/pkg/db/pagination"
	"creatorlane-marketplace/pkg/errutil"
	"creatorlane-marketplace/pkg/repository"
)

var (
	ErrInsufficientPending   = errutil.New(errutil.StatusUnprocessableEntity, "insufficient pending balance")
	ErrInsufficientAvailable = errutil.New(errutil.StatusUnprocessableEntity, "insufficient available balance")
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	currency string

	balances     repository.Repository[CreatorBalance]
	transactions repository.Repository[BalanceTransaction]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		currency: p.Config.Payments.Currency,

		balances:     repository.ProvideStore[CreatorBalance](p.DB),
		transactions: repository.ProvideStore[BalanceTransaction](p.DB),
	}
}

// Get returns the creator's balance, a zero-valued one if none exists yet.
func (s *Service) Get(ctx context.Context, creatorID string) (*CreatorBalance, error) {
	b, err := s.balances.FindOne(ctx, &CreatorBalance{CreatorID: creatorID})
	if err != nil {
		return nil, err
	}
	if b == nil {
		return &CreatorBalance{CreatorID: creatorID, Currency: s.currency}, nil
	}
	return b, nil
}

// History lists the creator's audit records, newest first, with cursor
// pagination.
func (s *Service) History(ctx context.Context, creatorID string, page pagination.Pagination) ([]*BalanceTransaction, *pagination.PageInfo, error) {
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

	rows, err := s.transactions.Find(ctx, &BalanceTransaction{CreatorID: creatorID}, opts...)
	if err != nil {
		return nil, nil, err
	}

	rows, info := pagination.Page(rows, limit, func(txn *BalanceTransaction) pagination.Cursor {
		return pagination.At(txn.CreatedAt, txn.ID)
	})
	return rows, info, nil
}

// CreditPending adds earned-but-escrowed funds to the creator's pending
// bucket. Runs inside the caller's transaction when tx is non-nil.
func (s *Service) CreditPending(ctx context.Context, tx *gorm.DB, creatorID string, amount decimal.Decimal, referenceID, description string) error {
	return s.mutate(ctx, tx, creatorID, func(tx *gorm.DB, b *CreatorBalance) (map[string]any, *BalanceTransaction, error) {
		return map[string]any{
				"pending_balance": gorm.Expr("pending_balance + ?", amount),
			}, &BalanceTransaction{
				CreatorID: creatorID, Type: TxnCreditPending, Amount: amount,
				ReferenceID: referenceID, Description: description,
			}, nil
	})
}

// CreditAvailable adds withdrawable funds directly, as escrow release does,
// and counts them toward total earned.
func (s *Service) CreditAvailable(ctx context.Context, tx *gorm.DB, creatorID string, amount decimal.Decimal, referenceID, description string) error {
	return s.mutate(ctx, tx, creatorID, func(tx *gorm.DB, b *CreatorBalance) (map[string]any, *BalanceTransaction, error) {
		return map[string]any{
				"available_balance": gorm.Expr("available_balance + ?", amount),
				"total_earned":      gorm.Expr("total_earned + ?", amount),
			}, &BalanceTransaction{
				CreatorID: creatorID, Type: TxnCreditAvailable, Amount: amount,
				ReferenceID: referenceID, Description: description,
			}, nil
	})
}

// MovePendingToAvailable releases pending funds for withdrawal.
func (s *Service) MovePendingToAvailable(ctx context.Context, tx *gorm.DB, creatorID string, amount decimal.Decimal, referenceID string) error {
	return s.mutate(ctx, tx, creatorID, func(tx *gorm.DB, b *CreatorBalance) (map[string]any, *BalanceTransaction, error) {
		if b.PendingBalance.LessThan(amount) {
			return nil, nil, ErrInsufficientPending
		}
		return map[string]any{
				"pending_balance":   gorm.Expr("pending_balance - ?", amount),
				"available_balance": gorm.Expr("available_balance + ?", amount),
				"total_earned":      gorm.Expr("total_earned + ?", amount),
			}, &BalanceTransaction{
				CreatorID: creatorID, Type: TxnReleasePending, Amount: amount,
				ReferenceID: referenceID,
			}, nil
	})
}

// DebitAvailable removes up to amount from the available bucket, clamped so
// the balance never goes negative. Returns the amount actually debited;
// callers compare it with the requested amount to detect a shortfall.
func (s *Service) DebitAvailable(ctx context.Context, tx *gorm.DB, creatorID string, amount decimal.Decimal, referenceID, description string) (decimal.Decimal, error) {
	debited := decimal.Zero
	err := s.mutate(ctx, tx, creatorID, func(tx *gorm.DB, b *CreatorBalance) (map[string]any, *BalanceTransaction, error) {
		debited = decimal.Min(amount, b.AvailableBalance)
		if debited.IsZero() {
			return nil, nil, nil
		}
		return map[string]any{
				"available_balance": gorm.Expr("available_balance - ?", debited),
			}, &BalanceTransaction{
				CreatorID: creatorID, Type: TxnRefundClawback, Amount: debited,
				ReferenceID: referenceID, Description: description,
			}, nil
	})
	return debited, err
}

// DebitPending removes escrowed funds that were refunded before release,
// clamped the same way as DebitAvailable.
func (s *Service) DebitPending(ctx context.Context, tx *gorm.DB, creatorID string, amount decimal.Decimal, referenceID, description string) (decimal.Decimal, error) {
	debited := decimal.Zero
	err := s.mutate(ctx, tx, creatorID, func(tx *gorm.DB, b *CreatorBalance) (map[string]any, *BalanceTransaction, error) {
		debited = decimal.Min(amount, b.PendingBalance)
		if debited.IsZero() {
			return nil, nil, nil
		}
		return map[string]any{
				"pending_balance": gorm.Expr("pending_balance - ?", debited),
			}, &BalanceTransaction{
				CreatorID: creatorID, Type: TxnDebitPending, Amount: debited,
				ReferenceID: referenceID, Description: description,
			}, nil
	})
	return debited, err
}

// Reserve atomically moves amount out of the available bucket for a pending
// withdrawal. Strict: fails instead of clamping.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, creatorID string, amount decimal.Decimal, referenceID string) error {
	return s.mutate(ctx, tx, creatorID, func(tx *gorm.DB, b *CreatorBalance) (map[string]any, *BalanceTransaction, error) {
		if b.AvailableBalance.LessThan(amount) {
			return nil, nil, ErrInsufficientAvailable
		}
		return map[string]any{
				"available_balance": gorm.Expr("available_balance - ?", amount),
			}, &BalanceTransaction{
				CreatorID: creatorID, Type: TxnWithdrawalReserve, Amount: amount,
				ReferenceID: referenceID,
			}, nil
	})
}

// CompleteWithdrawal settles a reserved amount into total withdrawn.
func (s *Service) CompleteWithdrawal(ctx context.Context, tx *gorm.DB, creatorID string, amount decimal.Decimal, referenceID string) error {
	return s.mutate(ctx, tx, creatorID, func(tx *gorm.DB, b *CreatorBalance) (map[string]any, *BalanceTransaction, error) {
		return map[string]any{
				"total_withdrawn": gorm.Expr("total_withdrawn + ?", amount),
			}, &BalanceTransaction{
				CreatorID: creatorID, Type: TxnWithdrawalComplete, Amount: amount,
				ReferenceID: referenceID,
			}, nil
	})
}

// ReturnReserved puts a cancelled withdrawal's funds back into available.
func (s *Service) ReturnReserved(ctx context.Context, tx *gorm.DB, creatorID string, amount decimal.Decimal, referenceID string) error {
	return s.mutate(ctx, tx, creatorID, func(tx *gorm.DB, b *CreatorBalance) (map[string]any, *BalanceTransaction, error) {
		return map[string]any{
				"available_balance": gorm.Expr("available_balance + ?", amount),
			}, &BalanceTransaction{
				CreatorID: creatorID, Type: TxnWithdrawalReturn, Amount: amount,
				ReferenceID: referenceID,
			}, nil
	})
}

type mutation func(tx *gorm.DB, b *CreatorBalance) (map[string]any, *BalanceTransaction, error)

// mutate locks the creator's balance row, applies the relative update the
// mutation returns, and writes the audit record in the same transaction.
// A nil update from the mutation is a no-op.
func (s *Service) mutate(ctx context.Context, tx *gorm.DB, creatorID string, fn mutation) error {
	run := func(tx *gorm.DB) error {
		b, err := s.lockOrCreate(ctx, tx, creatorID)
		if err != nil {
			return err
		}

		fields, audit, err := fn(tx, b)
		if err != nil {
			return err
		}
		if fields == nil {
			return nil
		}
		fields["updated_at"] = time.Now().UTC()

		if err := s.balances.WithTrx(tx).Update(ctx, b.ID, fields); err != nil {
			zap.L().Error("failed to update creator balance",
				zap.String("creator_id", creatorID), zap.Error(err))
			return err
		}

		if audit != nil {
			audit.ID = s.node.Generate().String()
			if err := s.transactions.WithTrx(tx).Create(ctx, audit); err != nil {
				return err
			}
		}
		return nil
	}

	if tx != nil {
		return run(tx)
	}
	return s.db.Transaction(run)
}

// lockOrCreate reads the balance row under FOR UPDATE, creating it lazily on
// first credit. A concurrent create loses the unique-index race and re-reads.
func (s *Service) lockOrCreate(ctx context.Context, tx *gorm.DB, creatorID string) (*CreatorBalance, error) {
	locked := s.balances.WithTrx(tx.Scopes(option.LockingUpdate))

	b, err := locked.FindOne(ctx, &CreatorBalance{CreatorID: creatorID})
	if err != nil {
		return nil, err
	}
	if b != nil {
		return b, nil
	}

	fresh := &CreatorBalance{
		ID:        s.node.Generate().String(),
		CreatorID: creatorID,
		Currency:  s.currency,
	}
	if err := s.balances.WithTrx(tx).Create(ctx, fresh); err != nil {
		b, findErr := locked.FindOne(ctx, &CreatorBalance{CreatorID: creatorID})
		if findErr == nil && b != nil {
			return b, nil
		}
		return nil, err
	}
	return fresh, nil
}

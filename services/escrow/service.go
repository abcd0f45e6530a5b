package escrow

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorlane-marketplace/pkg/db"
	"creatorlane-marketplace/pkg/db/option"
	"creatorlane-marketplace/pkg/errutil"
	"creatorlane-marketplace/pkg/repository"
)

var (
	// ErrDuplicateEvent marks an external event that was already applied.
	// Per the idempotency contract callers treat it as success, not failure.
	ErrDuplicateEvent = errutil.New(errutil.StatusConflict, "gateway event already processed")

	ErrNoHeldPayment = errutil.New(errutil.StatusUnprocessableEntity, "no held escrow payment for contract")
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	payments     repository.Repository[EscrowPayment]
	transactions repository.Repository[GatewayTransaction]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		payments:     repository.ProvideStore[EscrowPayment](p.DB),
		transactions: repository.ProvideStore[GatewayTransaction](p.DB),
	}
}

// Split computes the platform fee and creator payout for a funded total.
// The fee is deducted from the total, never added on top, so the invariant
// creatorAmount + fee == total holds exactly. The fee rounds half up to
// cents; the creator absorbs the rounding remainder.
func Split(total, feeRate decimal.Decimal) (fee, creatorAmount decimal.Decimal) {
	fee = total.Mul(feeRate).Round(2)
	creatorAmount = total.Sub(fee)
	return fee, creatorAmount
}

// AlreadyProcessed reports whether a gateway event with this ref was applied
// in the given scope. Advisory only: the unique index decides under races.
func (s *Service) AlreadyProcessed(ctx context.Context, externalRef, scope string) (bool, error) {
	count, err := s.transactions.Count(ctx, &GatewayTransaction{ExternalRef: externalRef, Scope: scope})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordTransaction inserts the event mirror inside the caller's transaction.
// A unique-index violation means another trigger won the race; the caller
// rolls back and re-reads the winner's state.
func (s *Service) RecordTransaction(ctx context.Context, tx *gorm.DB, gt *GatewayTransaction) error {
	if gt.ID == "" {
		gt.ID = s.node.Generate().String()
	}

	store := s.transactions
	if tx != nil {
		store = s.transactions.WithTrx(tx)
	}

	if err := store.Create(ctx, gt); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

// FindTransaction returns the recorded mirror of an external event, or nil.
func (s *Service) FindTransaction(ctx context.Context, externalRef, scope string) (*GatewayTransaction, error) {
	return s.transactions.FindOne(ctx, &GatewayTransaction{ExternalRef: externalRef, Scope: scope})
}

// ActivePayment returns the contract's escrow payment that still holds or
// held money (any status but refunded), newest first.
func (s *Service) ActivePayment(ctx context.Context, contractID string) (*EscrowPayment, error) {
	payments, err := s.payments.Find(ctx, &EscrowPayment{ContractID: contractID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}))
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		if p.Status != StatusRefunded {
			return p, nil
		}
	}
	return nil, nil
}

// HeldPayment returns the contract's escrow payment in held status, locked
// for update when called inside a transaction.
func (s *Service) HeldPayment(ctx context.Context, tx *gorm.DB, contractID string) (*EscrowPayment, error) {
	store := s.payments
	if tx != nil {
		store = s.payments.WithTrx(tx.Scopes(option.LockingUpdate))
	}

	p, err := store.FindOne(ctx, &EscrowPayment{ContractID: contractID, Status: StatusHeld})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoHeldPayment
	}
	return p, nil
}

// LockRefundable re-reads the payment under a row lock and verifies it is
// still held or released. Refund callers race the webhook and each other
// between their advisory status check and the write transaction, so the
// locked status is the one that counts.
func (s *Service) LockRefundable(ctx context.Context, tx *gorm.DB, paymentID string) (*EscrowPayment, error) {
	store := s.payments.WithTrx(tx.Scopes(option.LockingUpdate))

	p, err := store.FindOne(ctx, &EscrowPayment{ID: paymentID})
	if err != nil {
		return nil, err
	}
	if p == nil || (p.Status != StatusHeld && p.Status != StatusCompleted) {
		return nil, ErrNoHeldPayment
	}
	return p, nil
}

// CreateHold writes a new escrow payment in held status.
func (s *Service) CreateHold(ctx context.Context, tx *gorm.DB, p *EscrowPayment) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = s.node.Generate().String()
	}
	p.Status = StatusHeld
	p.HeldAt = &now

	store := s.payments
	if tx != nil {
		store = s.payments.WithTrx(tx)
	}
	if err := store.Create(ctx, p); err != nil {
		zap.L().Error("failed to create escrow hold",
			zap.String("contract_id", p.ContractID), zap.Error(err))
		return err
	}
	return nil
}

// MarkReleased transitions held -> completed and stamps released_at.
func (s *Service) MarkReleased(ctx context.Context, tx *gorm.DB, paymentID string) error {
	now := time.Now().UTC()
	return s.update(ctx, tx, paymentID, map[string]any{
		"status":      StatusCompleted,
		"released_at": now,
		"updated_at":  now,
	})
}

// MarkRefunded transitions held/completed -> refunded and stamps refunded_at.
func (s *Service) MarkRefunded(ctx context.Context, tx *gorm.DB, paymentID, externalRef string) error {
	now := time.Now().UTC()
	fields := map[string]any{
		"status":      StatusRefunded,
		"refunded_at": now,
		"updated_at":  now,
	}
	if externalRef != "" {
		fields["external_ref"] = externalRef
	}
	return s.update(ctx, tx, paymentID, fields)
}

func (s *Service) update(ctx context.Context, tx *gorm.DB, paymentID string, fields map[string]any) error {
	store := s.payments
	if tx != nil {
		store = s.payments.WithTrx(tx)
	}
	return store.Update(ctx, paymentID, fields)
}

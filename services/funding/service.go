package funding

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/pkg/errutil"
	"creatorlane-marketplace/pkg/repository"
	"creatorlane-marketplace/pkg/sequence"
	"creatorlane-marketplace/pkg/task"
	"creatorlane-marketplace/services/balance"
	"creatorlane-marketplace/services/contract"
	"creatorlane-marketplace/services/escrow"
	ftask "creatorlane-marketplace/services/funding/task"
	"creatorlane-marketplace/services/gateway"
)

var (
	ErrAlreadyFunded       = errutil.New(errutil.StatusConflict, "contract is already funded")
	ErrPaymentNotConfirmed = errutil.New(errutil.StatusUnprocessableEntity, "payment is not confirmed by the gateway")
	ErrNotFundable         = errutil.New(errutil.StatusUnprocessableEntity, "contract is not awaiting payment")
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	gateway  gateway.Gateway
	sequence sequence.Generator
	enqueuer task.Enqueuer

	contracts *contract.Service
	escrows   *escrow.Service
	balances  *balance.Service

	feeRate    decimal.Decimal
	currency   string
	successURL string
	cancelURL  string

	sessions repository.Repository[FundingSession]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Gateway   gateway.Gateway
	Sequence  sequence.Generator
	Enqueuer  task.Enqueuer
	Contracts *contract.Service
	Escrows   *escrow.Service
	Balances  *balance.Service
	Config    *config.Config
}

func NewService(p ServiceParams) *Service {
	feeRate, err := decimal.NewFromString(p.Config.Payments.FeeRate)
	if err != nil {
		zap.L().Warn("invalid PAYMENTS.FEE_RATE, using zero",
			zap.String("value", p.Config.Payments.FeeRate), zap.Error(err))
		feeRate = decimal.Zero
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		gateway:  p.Gateway,
		sequence: p.Sequence,
		enqueuer: p.Enqueuer,

		contracts: p.Contracts,
		escrows:   p.Escrows,
		balances:  p.Balances,

		feeRate:    feeRate,
		currency:   p.Config.Payments.Currency,
		successURL: p.Config.Gateway.SuccessURL,
		cancelURL:  p.Config.Gateway.CancelURL,

		sessions: repository.ProvideStore[FundingSession](p.DB),
	}
}

// CreateFundingSession opens a checkout session for the contract's budget.
// The platform fee is deducted from the budget on completion, never added
// on top, so the payer is charged exactly the budget.
func (s *Service) CreateFundingSession(ctx context.Context, contractID, payerID, payerEmail string) (*FundingSession, error) {
	c, err := s.contracts.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}

	if c.WorkflowStatus != contract.WorkflowPaymentPending {
		return nil, ErrNotFundable
	}

	active, err := s.escrows.ActivePayment(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrAlreadyFunded
	}

	customerID, err := s.gateway.EnsureCustomer(ctx, payerID, payerEmail)
	if err != nil {
		zap.L().Warn("failed to ensure gateway customer",
			zap.String("payer_id", payerID), zap.Error(err))
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutSessionParams{
		Amount:     c.Budget,
		Currency:   s.sessionCurrency(c),
		CustomerID: customerID,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
		// Echoed back on completion; the only link between an async
		// gateway event and the contract it funds.
		Metadata: map[string]string{
			"contract_id": c.ID,
			"payer_id":    payerID,
			"amount":      c.Budget.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	fs := &FundingSession{
		ID:               s.node.Generate().String(),
		ContractID:       c.ID,
		PayerID:          payerID,
		GatewaySessionID: session.ID,
		Amount:           c.Budget,
		Currency:         s.sessionCurrency(c),
		Status:           SessionCreated,
		CheckoutURL:      session.URL,
	}
	if err := s.sessions.Create(ctx, fs); err != nil {
		return nil, errutil.Internal("failed to persist funding session", err)
	}

	return fs, nil
}

// HandleFundingCompletion applies a completed checkout session exactly once.
// Both the user redirect and the webhook land here; whichever loses the race
// on the gateway transaction unique index backs off and returns the winner's
// escrow payment.
func (s *Service) HandleFundingCompletion(ctx context.Context, sessionRef string) (*escrow.EscrowPayment, error) {
	session, err := s.gateway.RetrieveSession(ctx, sessionRef)
	if err != nil {
		return nil, err
	}

	externalRef := session.PaymentIntentID
	if externalRef == "" {
		externalRef = session.ID
	}

	contractID := session.Metadata["contract_id"]
	if contractID == "" {
		return nil, errutil.BadRequest("session has no contract correlation metadata", nil)
	}

	// Fast path for duplicate deliveries. Advisory only; the unique index
	// below is what actually decides under concurrency.
	processed, err := s.escrows.AlreadyProcessed(ctx, externalRef, escrow.ScopeFunding)
	if err != nil {
		return nil, err
	}
	if processed {
		return s.heldPaymentFor(ctx, contractID)
	}

	if session.PaymentStatus != gateway.PaymentStatusPaid {
		return nil, ErrPaymentNotConfirmed
	}

	c, err := s.contracts.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}

	fee, creatorAmount := escrow.Split(session.AmountTotal, s.feeRate)

	code, err := s.sequence.NextEscrowCode(ctx, c.BrandID)
	if err != nil {
		zap.L().Warn("failed to generate escrow code", zap.Error(err))
	}

	payment := &escrow.EscrowPayment{
		Code:             code,
		ContractID:       c.ID,
		BrandID:          c.BrandID,
		CreatorID:        c.CreatorID,
		TotalAmount:      session.AmountTotal,
		PlatformFee:      fee,
		CreatorAmount:    creatorAmount,
		Currency:         s.sessionCurrency(c),
		GatewaySessionID: session.ID,
		ExternalRef:      externalRef,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.escrows.RecordTransaction(ctx, tx, &escrow.GatewayTransaction{
			ExternalRef: externalRef,
			Scope:       escrow.ScopeFunding,
			UserID:      session.Metadata["payer_id"],
			ContractID:  c.ID,
			Status:      session.PaymentStatus,
			Amount:      session.AmountTotal,
			Currency:    s.sessionCurrency(c),
		}); err != nil {
			return err
		}

		if err := s.escrows.CreateHold(ctx, tx, payment); err != nil {
			return err
		}

		if err := s.balances.CreditPending(ctx, tx, c.CreatorID, creatorAmount, payment.ID, "contract funded"); err != nil {
			return err
		}

		if err := s.contracts.SetStatus(ctx, tx, c.ID, contract.StatusActive); err != nil {
			return err
		}
		if err := s.contracts.SetWorkflowStatus(ctx, tx, c.ID, contract.WorkflowActive); err != nil {
			return err
		}

		return s.markSessionCompleted(ctx, tx, session.ID)
	})
	if err != nil {
		if errors.Is(err, escrow.ErrDuplicateEvent) {
			// Lost the race; the other trigger committed.
			return s.heldPaymentFor(ctx, contractID)
		}
		zap.L().Error("failed to apply funding completion",
			zap.String("contract_id", contractID),
			zap.String("external_ref", externalRef), zap.Error(err))
		return nil, err
	}

	s.publish(ctx, ftask.NewContractFundedTask, payment, "")
	return payment, nil
}

// ReleaseEscrow pays the creator out of escrow after the brand accepts the
// delivered work.
func (s *Service) ReleaseEscrow(ctx context.Context, contractID string) (*escrow.EscrowPayment, error) {
	var payment *escrow.EscrowPayment
	err := s.db.Transaction(func(tx *gorm.DB) error {
		p, err := s.escrows.HeldPayment(ctx, tx, contractID)
		if err != nil {
			return err
		}

		if err := s.escrows.MarkReleased(ctx, tx, p.ID); err != nil {
			return err
		}

		if err := s.balances.MovePendingToAvailable(ctx, tx, p.CreatorID, p.CreatorAmount, p.ID); err != nil {
			return err
		}

		if err := s.contracts.SetWorkflowStatus(ctx, tx, contractID, contract.WorkflowPaymentAvailable); err != nil {
			return err
		}

		now := time.Now().UTC()
		p.Status = escrow.StatusCompleted
		p.ReleasedAt = &now
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ftask.NewEscrowReleasedTask, payment, "")
	return payment, nil
}

// Refund reverses a held or released escrow. The gateway refund happens
// before the local transaction; if the local write then fails, or two
// callers race through the gateway round-trip, the duplicate refund is
// re-reported by the gateway and reconciled manually. The local ledger is
// guarded either way: the transaction re-locks the payment and bails once
// the status has moved.
func (s *Service) Refund(ctx context.Context, contractID, reason string) (*escrow.EscrowPayment, error) {
	payment, err := s.escrows.ActivePayment(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if payment == nil || (payment.Status != escrow.StatusHeld && payment.Status != escrow.StatusCompleted) {
		return nil, escrow.ErrNoHeldPayment
	}

	intentID := payment.ExternalRef
	refund, err := s.gateway.Refund(ctx, gateway.RefundParams{
		PaymentIntentID: intentID,
		Amount:          payment.TotalAmount,
		Reason:          reason,
	})
	if err != nil {
		return nil, err
	}

	var wasReleased bool

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// The advisory read above is stale by now; the locked row decides
		// whether this refund still applies and which bucket it debits.
		locked, err := s.escrows.LockRefundable(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		wasReleased = locked.Status == escrow.StatusCompleted

		if err := s.escrows.RecordTransaction(ctx, tx, &escrow.GatewayTransaction{
			ExternalRef: refund.ID,
			Scope:       escrow.ScopeRefund,
			UserID:      payment.BrandID,
			ContractID:  contractID,
			Status:      refund.Status,
			Amount:      refund.Amount,
			Currency:    payment.Currency,
		}); err != nil {
			return err
		}

		if err := s.escrows.MarkRefunded(ctx, tx, payment.ID, refund.ID); err != nil {
			return err
		}

		if wasReleased {
			// Best-effort clawback of funds the creator already received.
			debited, err := s.balances.DebitAvailable(ctx, tx, payment.CreatorID, payment.CreatorAmount, payment.ID, "refund clawback")
			if err != nil {
				return err
			}
			if debited.LessThan(payment.CreatorAmount) {
				zap.L().Warn("reconciliation_gap: refund clawback shortfall, manual resolution required",
					zap.String("contract_id", contractID),
					zap.String("creator_id", payment.CreatorID),
					zap.String("expected", payment.CreatorAmount.String()),
					zap.String("recovered", debited.String()))
			}
		} else {
			if _, err := s.balances.DebitPending(ctx, tx, payment.CreatorID, payment.CreatorAmount, payment.ID, "refund before release"); err != nil {
				return err
			}
		}

		if err := s.contracts.SetStatus(ctx, tx, contractID, contract.StatusCancelled); err != nil {
			return err
		}
		return s.contracts.SetWorkflowStatus(ctx, tx, contractID, contract.WorkflowRefunded)
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payment.Status = escrow.StatusRefunded
	payment.RefundedAt = &now
	s.publish(ctx, ftask.NewEscrowRefundedTask, payment, reason)
	return payment, nil
}

type PaymentStatus struct {
	ContractStatus string                `json:"contract_status"`
	WorkflowStatus string                `json:"workflow_status"`
	Escrow         *escrow.EscrowPayment `json:"escrow,omitempty"`
}

// Status reports the contract's money-side state for collaborator services.
func (s *Service) Status(ctx context.Context, contractID string) (*PaymentStatus, error) {
	c, err := s.contracts.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}

	payment, err := s.escrows.ActivePayment(ctx, contractID)
	if err != nil {
		return nil, err
	}

	return &PaymentStatus{
		ContractStatus: c.Status,
		WorkflowStatus: c.WorkflowStatus,
		Escrow:         payment,
	}, nil
}

func (s *Service) heldPaymentFor(ctx context.Context, contractID string) (*escrow.EscrowPayment, error) {
	payment, err := s.escrows.ActivePayment(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, escrow.ErrNoHeldPayment
	}
	return payment, nil
}

func (s *Service) markSessionCompleted(ctx context.Context, tx *gorm.DB, gatewaySessionID string) error {
	fs, err := s.sessions.WithTrx(tx).FindOne(ctx, &FundingSession{GatewaySessionID: gatewaySessionID})
	if err != nil || fs == nil {
		return err
	}
	return s.sessions.WithTrx(tx).Update(ctx, fs.ID, map[string]any{
		"status":     SessionCompleted,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Service) sessionCurrency(c *contract.Contract) string {
	if c.Currency != "" {
		return c.Currency
	}
	return s.currency
}

func (s *Service) publish(ctx context.Context, build func(ftask.EscrowEventPayload) (*asynq.Task, error), p *escrow.EscrowPayment, reason string) {
	t, err := build(ftask.EscrowEventPayload{
		ContractID:      p.ContractID,
		EscrowPaymentID: p.ID,
		BrandID:         p.BrandID,
		CreatorID:       p.CreatorID,
		TotalAmount:     p.TotalAmount,
		PlatformFee:     p.PlatformFee,
		CreatorAmount:   p.CreatorAmount,
		Currency:        p.Currency,
		Reason:          reason,
		OccurredAt:      time.Now().UTC(),
	})
	if err != nil {
		zap.L().Error("failed to build escrow event", zap.Error(err))
		return
	}
	if _, err := s.enqueuer.Enqueue(ctx, t); err != nil {
		zap.L().Error("failed to enqueue escrow event",
			zap.String("contract_id", p.ContractID), zap.Error(err))
	}
}

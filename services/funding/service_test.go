package funding

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/services/balance"
	"creatorlane-marketplace/services/contract"
	"creatorlane-marketplace/services/escrow"
	"creatorlane-marketplace/services/gateway"
	"creatorlane-marketplace/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type sequenceStub struct{}

func (sequenceStub) NextEscrowCode(ctx context.Context, brandID string) (string, error) {
	return "ESC-TEST-001", nil
}

func (sequenceStub) NextWithdrawalCode(ctx context.Context, creatorID string) (string, error) {
	return "WD-TEST-001", nil
}

type enqueuerStub struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (e *enqueuerStub) Enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, t)
	return &asynq.TaskInfo{}, nil
}

type fixture struct {
	svc       *Service
	simulator *gateway.Simulator
	contracts *contract.Service
	escrows   *escrow.Service
	balances  *balance.Service
	enqueued  *enqueuerStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&contract.Contract{},
		&escrow.EscrowPayment{},
		&escrow.GatewayTransaction{},
		&balance.CreatorBalance{},
		&balance.BalanceTransaction{},
		&FundingSession{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Payments.FeeRate = "0.05"
	cfg.Payments.Currency = "USD"
	cfg.Gateway.SuccessURL = "https://app.test/funding/success"
	cfg.Gateway.CancelURL = "https://app.test/funding/cancel"

	sim := gateway.NewSimulator()
	contracts := contract.NewService(contract.ServiceParams{DB: db, Node: node})
	escrows := escrow.NewService(escrow.ServiceParams{DB: db, Node: node})
	balances := balance.NewService(balance.ServiceParams{DB: db, Node: node, Config: cfg})
	enqueued := &enqueuerStub{}

	svc := NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Gateway:   sim,
		Sequence:  sequenceStub{},
		Enqueuer:  enqueued,
		Contracts: contracts,
		Escrows:   escrows,
		Balances:  balances,
		Config:    cfg,
	})

	return &fixture{
		svc:       svc,
		simulator: sim,
		contracts: contracts,
		escrows:   escrows,
		balances:  balances,
		enqueued:  enqueued,
	}
}

func (f *fixture) newContract(t *testing.T, budget string) *contract.Contract {
	t.Helper()

	c, err := f.contracts.Create(context.Background(), contract.CreateRequest{
		BrandID:   "brand-1",
		CreatorID: "creator-1",
		Title:     "Product launch campaign",
		Budget:    decimal.RequireFromString(budget),
		Currency:  "USD",
	})
	require.NoError(t, err)
	return c
}

// fundAndPay walks a contract through checkout up to a paid session.
func (f *fixture) fundAndPay(t *testing.T, contractID string) string {
	t.Helper()

	fs, err := f.svc.CreateFundingSession(context.Background(), contractID, "brand-1", "brand@example.com")
	require.NoError(t, err)

	_, err = f.simulator.CompleteSession(fs.GatewaySessionID)
	require.NoError(t, err)

	return fs.GatewaySessionID
}

func TestCreateFundingSession(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t, "1000.00")

	fs, err := f.svc.CreateFundingSession(context.Background(), c.ID, "brand-1", "brand@example.com")
	require.NoError(t, err)
	require.Equal(t, "1000.00", fs.Amount.StringFixed(2))
	require.NotEmpty(t, fs.CheckoutURL)
	require.Equal(t, SessionCreated, fs.Status)

	// The session carries the correlation metadata that ties the async
	// completion back to the contract.
	session, err := f.simulator.RetrieveSession(context.Background(), fs.GatewaySessionID)
	require.NoError(t, err)
	require.Equal(t, c.ID, session.Metadata["contract_id"])
	require.Equal(t, "brand-1", session.Metadata["payer_id"])
}

func TestCreateFundingSessionRejectsFundedContract(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t, "1000.00")

	sessionID := f.fundAndPay(t, c.ID)
	_, err := f.svc.HandleFundingCompletion(context.Background(), sessionID)
	require.NoError(t, err)

	_, err = f.svc.CreateFundingSession(context.Background(), c.ID, "brand-1", "")
	require.ErrorIs(t, err, ErrNotFundable)
}

func TestCreateFundingSessionAlreadyFunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")

	// An escrow hold with the workflow still in payment_pending means a
	// completion landed but the contract update was lost; funding again
	// must be refused rather than double-charged.
	require.NoError(t, f.escrows.CreateHold(ctx, nil, &escrow.EscrowPayment{
		ContractID:  c.ID,
		BrandID:     c.BrandID,
		CreatorID:   c.CreatorID,
		TotalAmount: decimal.RequireFromString("1000.00"),
	}))

	_, err := f.svc.CreateFundingSession(ctx, c.ID, "brand-1", "")
	require.ErrorIs(t, err, ErrAlreadyFunded)
}

func TestHandleFundingCompletionUnpaidSession(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t, "1000.00")

	fs, err := f.svc.CreateFundingSession(context.Background(), c.ID, "brand-1", "")
	require.NoError(t, err)

	_, err = f.svc.HandleFundingCompletion(context.Background(), fs.GatewaySessionID)
	require.ErrorIs(t, err, ErrPaymentNotConfirmed)

	// No state may change on an unconfirmed payment.
	b, err := f.balances.Get(context.Background(), "creator-1")
	require.NoError(t, err)
	require.True(t, b.PendingBalance.IsZero())
}

func TestHandleFundingCompletionIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")
	sessionID := f.fundAndPay(t, c.ID)

	first, err := f.svc.HandleFundingCompletion(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, escrow.StatusHeld, first.Status)
	require.Equal(t, "1000.00", first.TotalAmount.StringFixed(2))
	require.Equal(t, "50.00", first.PlatformFee.StringFixed(2))
	require.Equal(t, "950.00", first.CreatorAmount.StringFixed(2))

	second, err := f.svc.HandleFundingCompletion(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// Exactly one escrow, one mirror row, one pending credit.
	var escrowCount int64
	require.NoError(t, f.svc.db.Model(&escrow.EscrowPayment{}).Count(&escrowCount).Error)
	require.EqualValues(t, 1, escrowCount)

	var txnCount int64
	require.NoError(t, f.svc.db.Model(&escrow.GatewayTransaction{}).Count(&txnCount).Error)
	require.EqualValues(t, 1, txnCount)

	b, err := f.balances.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "950.00", b.PendingBalance.StringFixed(2))

	got, err := f.contracts.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, contract.StatusActive, got.Status)
	require.Equal(t, contract.WorkflowActive, got.WorkflowStatus)
}

func TestHandleFundingCompletionConcurrent(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t, "1000.00")
	sessionID := f.fundAndPay(t, c.ID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.HandleFundingCompletion(context.Background(), sessionID)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var escrowCount int64
	require.NoError(t, f.svc.db.Model(&escrow.EscrowPayment{}).Count(&escrowCount).Error)
	require.EqualValues(t, 1, escrowCount)

	b, err := f.balances.Get(context.Background(), "creator-1")
	require.NoError(t, err)
	require.Equal(t, "950.00", b.PendingBalance.StringFixed(2))
}

func TestReleaseEscrowWithoutHeldPayment(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t, "1000.00")

	_, err := f.svc.ReleaseEscrow(context.Background(), c.ID)
	require.ErrorIs(t, err, escrow.ErrNoHeldPayment)

	// Nothing may change when the precondition fails.
	got, err := f.contracts.Get(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, contract.WorkflowPaymentPending, got.WorkflowStatus)
}

func TestReleaseEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")
	sessionID := f.fundAndPay(t, c.ID)

	_, err := f.svc.HandleFundingCompletion(ctx, sessionID)
	require.NoError(t, err)

	released, err := f.svc.ReleaseEscrow(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, escrow.StatusCompleted, released.Status)
	require.NotNil(t, released.ReleasedAt)

	b, err := f.balances.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "0.00", b.PendingBalance.StringFixed(2))
	require.Equal(t, "950.00", b.AvailableBalance.StringFixed(2))
	require.Equal(t, "950.00", b.TotalEarned.StringFixed(2))

	got, err := f.contracts.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, contract.WorkflowPaymentAvailable, got.WorkflowStatus)

	// A second release must fail; the money already moved.
	_, err = f.svc.ReleaseEscrow(ctx, c.ID)
	require.ErrorIs(t, err, escrow.ErrNoHeldPayment)
}

func TestRefundBeforeRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")
	sessionID := f.fundAndPay(t, c.ID)

	_, err := f.svc.HandleFundingCompletion(ctx, sessionID)
	require.NoError(t, err)

	refunded, err := f.svc.Refund(ctx, c.ID, "brand cancelled the engagement")
	require.NoError(t, err)
	require.Equal(t, escrow.StatusRefunded, refunded.Status)

	b, err := f.balances.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "0.00", b.PendingBalance.StringFixed(2))

	got, err := f.contracts.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, contract.StatusCancelled, got.Status)
	require.Equal(t, contract.WorkflowRefunded, got.WorkflowStatus)
}

func TestRefundAfterReleaseClawsBackClamped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")
	sessionID := f.fundAndPay(t, c.ID)

	_, err := f.svc.HandleFundingCompletion(ctx, sessionID)
	require.NoError(t, err)
	_, err = f.svc.ReleaseEscrow(ctx, c.ID)
	require.NoError(t, err)

	// Part of the payout is already withdrawn; only the remainder can be
	// clawed back.
	require.NoError(t, f.balances.Reserve(ctx, nil, "creator-1", decimal.RequireFromString("600.00"), "wd-1"))

	refunded, err := f.svc.Refund(ctx, c.ID, "dispute resolved for the brand")
	require.NoError(t, err)
	require.Equal(t, escrow.StatusRefunded, refunded.Status)

	b, err := f.balances.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "0.00", b.AvailableBalance.StringFixed(2))
	require.False(t, b.AvailableBalance.IsNegative())
}

func TestRefundTwiceDebitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")
	sessionID := f.fundAndPay(t, c.ID)

	_, err := f.svc.HandleFundingCompletion(ctx, sessionID)
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, c.ID, "brand cancelled")
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, c.ID, "retry of the same cancellation")
	require.ErrorIs(t, err, escrow.ErrNoHeldPayment)

	b, err := f.balances.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "0.00", b.PendingBalance.StringFixed(2))
	require.Equal(t, "0.00", b.AvailableBalance.StringFixed(2))
}

func TestRefundWithoutEscrow(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t, "1000.00")

	_, err := f.svc.Refund(context.Background(), c.ID, "nothing to refund")
	require.ErrorIs(t, err, escrow.ErrNoHeldPayment)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")

	status, err := f.svc.Status(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, contract.WorkflowPaymentPending, status.WorkflowStatus)
	require.Nil(t, status.Escrow)

	sessionID := f.fundAndPay(t, c.ID)
	_, err = f.svc.HandleFundingCompletion(ctx, sessionID)
	require.NoError(t, err)

	status, err = f.svc.Status(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, contract.WorkflowActive, status.WorkflowStatus)
	require.NotNil(t, status.Escrow)
	require.Equal(t, escrow.StatusHeld, status.Escrow.Status)
}

package balance

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/pkg/db/pagination"
	"creatorlane-marketplace/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &CreatorBalance{}, &BalanceTransaction{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Payments.Currency = "USD"

	return NewService(ServiceParams{DB: db, Node: node, Config: cfg})
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGetReturnsZeroBalanceForUnknownCreator(t *testing.T) {
	svc := newTestService(t)

	b, err := svc.Get(context.Background(), "creator-1")
	require.NoError(t, err)
	require.True(t, b.PendingBalance.IsZero())
	require.True(t, b.AvailableBalance.IsZero())
	require.Equal(t, "USD", b.Currency)
}

func TestCreditPendingCreatesBalanceLazily(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditPending(ctx, nil, "creator-1", amount("950.00"), "escrow-1", "contract funded"))

	b, err := svc.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "950.00", b.PendingBalance.StringFixed(2))
	require.Equal(t, "0.00", b.AvailableBalance.StringFixed(2))
	require.Equal(t, "0.00", b.TotalEarned.StringFixed(2))

	history, _, err := svc.History(ctx, "creator-1", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, TxnCreditPending, history[0].Type)
	require.Equal(t, "escrow-1", history[0].ReferenceID)
}

func TestMovePendingToAvailable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditPending(ctx, nil, "creator-1", amount("950.00"), "escrow-1", ""))
	require.NoError(t, svc.MovePendingToAvailable(ctx, nil, "creator-1", amount("950.00"), "escrow-1"))

	b, err := svc.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "0.00", b.PendingBalance.StringFixed(2))
	require.Equal(t, "950.00", b.AvailableBalance.StringFixed(2))
	require.Equal(t, "950.00", b.TotalEarned.StringFixed(2))
}

func TestMovePendingInsufficient(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditPending(ctx, nil, "creator-1", amount("100.00"), "escrow-1", ""))

	err := svc.MovePendingToAvailable(ctx, nil, "creator-1", amount("100.01"), "escrow-1")
	require.ErrorIs(t, err, ErrInsufficientPending)

	// Nothing moved.
	b, err := svc.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "100.00", b.PendingBalance.StringFixed(2))
	require.Equal(t, "0.00", b.AvailableBalance.StringFixed(2))
}

func TestDebitAvailableClamps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditAvailable(ctx, nil, "creator-1", amount("40.00"), "escrow-1", ""))

	debited, err := svc.DebitAvailable(ctx, nil, "creator-1", amount("100.00"), "escrow-1", "refund clawback")
	require.NoError(t, err)
	require.Equal(t, "40.00", debited.StringFixed(2))

	b, err := svc.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "0.00", b.AvailableBalance.StringFixed(2))
	require.False(t, b.AvailableBalance.IsNegative())
}

func TestDebitPendingClamps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditPending(ctx, nil, "creator-1", amount("25.00"), "escrow-1", ""))

	debited, err := svc.DebitPending(ctx, nil, "creator-1", amount("95.00"), "escrow-1", "refund before release")
	require.NoError(t, err)
	require.Equal(t, "25.00", debited.StringFixed(2))

	b, err := svc.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "0.00", b.PendingBalance.StringFixed(2))
}

func TestReserveStrict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditAvailable(ctx, nil, "creator-1", amount("50.00"), "escrow-1", ""))

	err := svc.Reserve(ctx, nil, "creator-1", amount("50.01"), "wd-1")
	require.ErrorIs(t, err, ErrInsufficientAvailable)

	require.NoError(t, svc.Reserve(ctx, nil, "creator-1", amount("50.00"), "wd-1"))

	b, err := svc.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "0.00", b.AvailableBalance.StringFixed(2))
}

func TestWithdrawalSettlement(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditAvailable(ctx, nil, "creator-1", amount("200.00"), "escrow-1", ""))
	require.NoError(t, svc.Reserve(ctx, nil, "creator-1", amount("200.00"), "wd-1"))
	require.NoError(t, svc.CompleteWithdrawal(ctx, nil, "creator-1", amount("200.00"), "wd-1"))

	b, err := svc.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "0.00", b.AvailableBalance.StringFixed(2))
	require.Equal(t, "200.00", b.TotalWithdrawn.StringFixed(2))
	require.Equal(t, "200.00", b.TotalEarned.StringFixed(2))
}

func TestReturnReserved(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditAvailable(ctx, nil, "creator-1", amount("75.00"), "escrow-1", ""))
	require.NoError(t, svc.Reserve(ctx, nil, "creator-1", amount("75.00"), "wd-1"))
	require.NoError(t, svc.ReturnReserved(ctx, nil, "creator-1", amount("75.00"), "wd-1"))

	b, err := svc.Get(ctx, "creator-1")
	require.NoError(t, err)
	require.Equal(t, "75.00", b.AvailableBalance.StringFixed(2))
	require.Equal(t, "0.00", b.TotalWithdrawn.StringFixed(2))
}

func TestAuditTrailMatchesMutations(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditPending(ctx, nil, "creator-1", amount("100.00"), "escrow-1", ""))
	require.NoError(t, svc.MovePendingToAvailable(ctx, nil, "creator-1", amount("100.00"), "escrow-1"))
	require.NoError(t, svc.Reserve(ctx, nil, "creator-1", amount("60.00"), "wd-1"))

	history, _, err := svc.History(ctx, "creator-1", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, history, 3)

	types := make(map[string]bool)
	for _, txn := range history {
		types[txn.Type] = true
	}
	require.True(t, types[TxnCreditPending])
	require.True(t, types[TxnReleasePending])
	require.True(t, types[TxnWithdrawalReserve])
}

func TestHistoryPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreditPending(ctx, nil, "creator-1", amount("10.00"), "escrow-1", ""))
	require.NoError(t, svc.CreditPending(ctx, nil, "creator-1", amount("20.00"), "escrow-2", ""))
	require.NoError(t, svc.CreditPending(ctx, nil, "creator-1", amount("30.00"), "escrow-3", ""))

	history, info, err := svc.History(ctx, "creator-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, info.HasMore)
	require.NotEmpty(t, info.NextCursor)

	cursor, err := pagination.DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, history[1].ID, cursor.ID)
}

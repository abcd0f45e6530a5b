package funding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ftask "creatorlane-marketplace/services/funding/task"
)

func TestReconcileRecoversMissedCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")
	sessionID := f.fundAndPay(t, c.ID)

	// Backdate the session so the sweep picks it up.
	require.NoError(t, f.svc.db.Model(&FundingSession{}).
		Where("gateway_session_id = ?", sessionID).
		Update("created_at", time.Now().UTC().Add(-2*time.Hour)).Error)

	r := &reconciler{svc: f.svc, after: time.Hour, workers: 2}
	require.NoError(t, r.Handle(ctx, ftask.NewReconcileTask()))

	payment, err := f.escrows.ActivePayment(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	require.Equal(t, "950.00", payment.CreatorAmount.StringFixed(2))

	fs, err := f.svc.sessions.FindOne(ctx, &FundingSession{GatewaySessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, SessionCompleted, fs.Status)
}

func TestReconcileAbandonsStaleUnpaidSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")

	fs, err := f.svc.CreateFundingSession(ctx, c.ID, "brand-1", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.db.Model(&FundingSession{}).
		Where("id = ?", fs.ID).
		Update("created_at", time.Now().UTC().Add(-2*time.Hour)).Error)

	r := &reconciler{svc: f.svc, after: time.Hour, workers: 2}
	require.NoError(t, r.Handle(ctx, ftask.NewReconcileTask()))

	got, err := f.svc.sessions.FindOne(ctx, &FundingSession{ID: fs.ID})
	require.NoError(t, err)
	require.Equal(t, SessionAbandoned, got.Status)

	payment, err := f.escrows.ActivePayment(ctx, c.ID)
	require.NoError(t, err)
	require.Nil(t, payment)
}

func TestReconcileIgnoresFreshSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.newContract(t, "1000.00")

	fs, err := f.svc.CreateFundingSession(ctx, c.ID, "brand-1", "")
	require.NoError(t, err)

	r := &reconciler{svc: f.svc, after: time.Hour, workers: 2}
	require.NoError(t, r.Handle(ctx, ftask.NewReconcileTask()))

	got, err := f.svc.sessions.FindOne(ctx, &FundingSession{ID: fs.ID})
	require.NoError(t, err)
	require.Equal(t, SessionCreated, got.Status)
}

package contract

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"creatorlane-marketplace/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Contract{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestCreate(t *testing.T) {
	svc := newTestService(t)

	c, err := svc.Create(context.Background(), CreateRequest{
		BrandID:   "brand-1",
		CreatorID: "creator-1",
		Title:     "Spring campaign",
		Budget:    decimal.RequireFromString("1000.00"),
		Currency:  "USD",
	})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	require.Equal(t, StatusPending, c.Status)
	require.Equal(t, WorkflowPaymentPending, c.WorkflowStatus)
}

func TestCreateRejectsNonPositiveBudget(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), CreateRequest{
		BrandID:   "brand-1",
		CreatorID: "creator-1",
		Title:     "Free work",
		Budget:    decimal.Zero,
	})
	require.Error(t, err)
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetWorkflowStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{
		BrandID:   "brand-1",
		CreatorID: "creator-1",
		Title:     "Spring campaign",
		Budget:    decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetWorkflowStatus(ctx, nil, c.ID, WorkflowActive))

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, WorkflowActive, got.WorkflowStatus)
}

func TestListByBrand(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second"} {
		_, err := svc.Create(ctx, CreateRequest{
			BrandID:   "brand-1",
			CreatorID: "creator-1",
			Title:     title,
			Budget:    decimal.RequireFromString("100.00"),
		})
		require.NoError(t, err)
	}

	contracts, err := svc.ListByBrand(ctx, "brand-1")
	require.NoError(t, err)
	require.Len(t, contracts, 2)

	contracts, err = svc.ListByBrand(ctx, "brand-2")
	require.NoError(t, err)
	require.Empty(t, contracts)
}

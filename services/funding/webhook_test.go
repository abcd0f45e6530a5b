package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"creatorlane-marketplace/pkg/middleware"
	"creatorlane-marketplace/services/escrow"
)

func newWebhookRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.Error())
	registerRoutes(engine, f.svc)
	return engine
}

func postWebhook(t *testing.T, engine *gin.Engine, sessionID string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"type": "checkout.session.completed",
		"data": map[string]any{"session_id": sessionID},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAppliesCompletion(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t, "1000.00")
	sessionID := f.fundAndPay(t, c.ID)
	engine := newWebhookRouter(f)

	rec := postWebhook(t, engine, sessionID)
	require.Equal(t, http.StatusOK, rec.Code)

	var escrowCount int64
	require.NoError(t, f.svc.db.Model(&escrow.EscrowPayment{}).Count(&escrowCount).Error)
	require.EqualValues(t, 1, escrowCount)
}

func TestWebhookDuplicateDeliveryReturnsOK(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t, "1000.00")
	sessionID := f.fundAndPay(t, c.ID)
	engine := newWebhookRouter(f)

	first := postWebhook(t, engine, sessionID)
	require.Equal(t, http.StatusOK, first.Code)

	// Redelivery of the same event must succeed without a second credit.
	second := postWebhook(t, engine, sessionID)
	require.Equal(t, http.StatusOK, second.Code)

	var txnCount int64
	require.NoError(t, f.svc.db.Model(&escrow.GatewayTransaction{}).Count(&txnCount).Error)
	require.EqualValues(t, 1, txnCount)

	b, err := f.balances.Get(context.Background(), "creator-1")
	require.NoError(t, err)
	require.Equal(t, "950.00", b.PendingBalance.StringFixed(2))
}

func TestWebhookUnpaidSessionIgnored(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t, "1000.00")

	fs, err := f.svc.CreateFundingSession(context.Background(), c.ID, "brand-1", "")
	require.NoError(t, err)
	engine := newWebhookRouter(f)

	rec := postWebhook(t, engine, fs.GatewaySessionID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ignored")
}

func TestWebhookUnknownSessionIsRetryable(t *testing.T) {
	f := newFixture(t)
	engine := newWebhookRouter(f)

	rec := postWebhook(t, engine, "cs_missing")
	// Anything the handler cannot apply surfaces as a non-2xx instead of a
	// silent drop.
	require.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
}

func TestWebhookIgnoresUnrelatedEventTypes(t *testing.T) {
	f := newFixture(t)
	engine := newWebhookRouter(f)

	body := []byte(`{"type":"customer.created","data":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

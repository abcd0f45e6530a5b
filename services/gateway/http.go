package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/pkg/errutil"
)

// httpGateway talks to the real payment provider over its REST API.
type httpGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPGateway(cfg *config.Config) Gateway {
	return &httpGateway{
		baseURL: cfg.Gateway.BaseURL,
		apiKey:  cfg.Gateway.APIKey,
		client:  &http.Client{Timeout: cfg.Gateway.Timeout},
	}
}

type sessionResponse struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   decimal.Decimal   `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type intentResponse struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Charge   string          `json:"latest_charge"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type refundResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

type customerResponse struct {
	ID string `json:"id"`
}

func (g *httpGateway) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	body := map[string]any{
		"amount_total": p.Amount,
		"currency":     p.Currency,
		"customer":     p.CustomerID,
		"success_url":  p.SuccessURL,
		"cancel_url":   p.CancelURL,
		"metadata":     p.Metadata,
	}

	var resp sessionResponse
	if err := g.do(ctx, http.MethodPost, "/v1/checkout/sessions", body, &resp); err != nil {
		return nil, err
	}

	return sessionFromResponse(&resp), nil
}

func (g *httpGateway) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var resp sessionResponse
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	if err := g.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return sessionFromResponse(&resp), nil
}

func (g *httpGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	var resp intentResponse
	path := "/v1/payment_intents/" + url.PathEscape(intentID)
	if err := g.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &PaymentIntent{
		ID:       resp.ID,
		Status:   resp.Status,
		ChargeID: resp.Charge,
		Amount:   resp.Amount,
		Currency: resp.Currency,
	}, nil
}

func (g *httpGateway) Refund(ctx context.Context, p RefundParams) (*RefundResult, error) {
	body := map[string]any{
		"payment_intent": p.PaymentIntentID,
		"amount":         p.Amount,
		"reason":         p.Reason,
	}

	var resp refundResponse
	if err := g.do(ctx, http.MethodPost, "/v1/refunds", body, &resp); err != nil {
		return nil, err
	}
	return &RefundResult{ID: resp.ID, Status: resp.Status, Amount: resp.Amount}, nil
}

func (g *httpGateway) EnsureCustomer(ctx context.Context, ownerID, email string) (string, error) {
	body := map[string]any{
		"email":    email,
		"metadata": map[string]string{"owner_id": ownerID},
	}

	var resp customerResponse
	if err := g.do(ctx, http.MethodPost, "/v1/customers", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (g *httpGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	body := map[string]any{"customer": customerID}
	path := "/v1/payment_methods/" + url.PathEscape(paymentMethodID) + "/attach"
	return g.do(ctx, http.MethodPost, path, body, nil)
}

func (g *httpGateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errutil.Internal("failed to encode gateway request", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return errutil.Internal("failed to build gateway request", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		zap.L().Warn("payment gateway unreachable", zap.String("path", path), zap.Error(err))
		return errutil.BadGateway("payment gateway unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return errutil.BadGateway(fmt.Sprintf("payment gateway returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errutil.BadRequest(fmt.Sprintf("payment gateway rejected request: %s", string(raw)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errutil.Internal("failed to decode gateway response", err)
	}
	return nil
}

func sessionFromResponse(r *sessionResponse) *CheckoutSession {
	return &CheckoutSession{
		ID:              r.ID,
		URL:             r.URL,
		PaymentIntentID: r.PaymentIntent,
		PaymentStatus:   r.PaymentStatus,
		AmountTotal:     r.AmountTotal,
		Currency:        r.Currency,
		Metadata:        r.Metadata,
	}
}

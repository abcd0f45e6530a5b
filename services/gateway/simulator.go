package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"creatorlane-marketplace/pkg/errutil"
)

// Simulator is a deterministic in-memory gateway for local development and
// tests. Sessions stay unpaid until CompleteSession is called, which mirrors
// the user finishing checkout on the provider's hosted page.
type Simulator struct {
	mu        sync.Mutex
	sessions  map[string]*CheckoutSession
	intents   map[string]*PaymentIntent
	customers map[string]string
}

func NewSimulator() *Simulator {
	return &Simulator{
		sessions:  make(map[string]*CheckoutSession),
		intents:   make(map[string]*PaymentIntent),
		customers: make(map[string]string),
	}
}

func (s *Simulator) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID := "cs_sim_" + uuid.NewString()
	intentID := "pi_sim_" + uuid.NewString()

	meta := make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		meta[k] = v
	}

	session := &CheckoutSession{
		ID:              sessionID,
		URL:             "https://checkout.simulated.local/pay/" + sessionID,
		PaymentIntentID: intentID,
		PaymentStatus:   PaymentStatusUnpaid,
		AmountTotal:     p.Amount,
		Currency:        p.Currency,
		Metadata:        meta,
	}

	s.sessions[sessionID] = session
	s.intents[intentID] = &PaymentIntent{
		ID:       intentID,
		Status:   IntentStatusPending,
		Amount:   p.Amount,
		Currency: p.Currency,
	}

	return copySession(session), nil
}

func (s *Simulator) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errutil.NotFound("checkout session not found", nil)
	}
	return copySession(session), nil
}

func (s *Simulator) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[intentID]
	if !ok {
		return nil, errutil.NotFound("payment intent not found", nil)
	}
	cp := *intent
	return &cp, nil
}

func (s *Simulator) Refund(ctx context.Context, p RefundParams) (*RefundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[p.PaymentIntentID]
	if !ok {
		return nil, errutil.NotFound("payment intent not found", nil)
	}
	if intent.Status != IntentStatusSucceeded {
		return nil, errutil.UnprocessableEntity("payment intent is not refundable", nil)
	}

	return &RefundResult{
		ID:     "re_sim_" + uuid.NewString(),
		Status: "succeeded",
		Amount: p.Amount,
	}, nil
}

func (s *Simulator) EnsureCustomer(ctx context.Context, ownerID, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.customers[ownerID]; ok {
		return id, nil
	}
	id := "cus_sim_" + uuid.NewString()
	s.customers[ownerID] = id
	return id, nil
}

func (s *Simulator) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return nil
}

// CompleteSession marks a session as paid, the way a real provider would
// after the payer finishes checkout. Returns the updated session.
func (s *Simulator) CompleteSession(sessionID string) (*CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errutil.NotFound("checkout session not found", nil)
	}

	session.PaymentStatus = PaymentStatusPaid
	if intent, ok := s.intents[session.PaymentIntentID]; ok {
		intent.Status = IntentStatusSucceeded
		intent.ChargeID = "ch_sim_" + uuid.NewString()
	}

	return copySession(session), nil
}

func copySession(in *CheckoutSession) *CheckoutSession {
	out := *in
	out.Metadata = make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

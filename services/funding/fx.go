package funding

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"creatorlane-marketplace/pkg/errutil"
)

var Module = fx.Module("funding.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	g := engine.Group("/v1/contracts/:id")
	g.POST("/fund", svc.handleFund)
	g.POST("/confirm-funding", svc.handleConfirmFunding)
	g.POST("/release", svc.handleRelease)
	g.POST("/refund", svc.handleRefund)
	g.GET("/payment-status", svc.handleStatus)

	engine.POST("/v1/webhooks/gateway", svc.handleWebhook)
}

type fundRequest struct {
	PayerID    string `json:"payer_id" binding:"required"`
	PayerEmail string `json:"payer_email"`
}

func (s *Service) handleFund(c *gin.Context) {
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	fs, err := s.CreateFundingSession(c.Request.Context(), c.Param("id"), req.PayerID, req.PayerEmail)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":   fs.GatewaySessionID,
		"checkout_url": fs.CheckoutURL,
		"amount":       fs.Amount,
		"currency":     fs.Currency,
	})
}

type confirmRequest struct {
	SessionRef string `json:"session_ref" binding:"required"`
}

// handleConfirmFunding is the redirect path: the payer lands back on the
// success URL and the frontend confirms with the session reference.
func (s *Service) handleConfirmFunding(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	payment, err := s.HandleFundingCompletion(c.Request.Context(), req.SessionRef)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow_status": payment.Status, "escrow": payment})
}

func (s *Service) handleRelease(c *gin.Context) {
	payment, err := s.ReleaseEscrow(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

type refundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Service) handleRefund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	payment, err := s.Refund(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (s *Service) handleStatus(c *gin.Context) {
	status, err := s.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		SessionID string `json:"session_id"`
	} `json:"data"`
}

// handleWebhook is the asynchronous path. Anything already applied or not
// yet payable returns 200 so the gateway stops redelivering; real failures
// return 5xx so its retry mechanism re-attempts, which is the designed
// recovery path.
func (s *Service) handleWebhook(c *gin.Context) {
	var event webhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.Error(errutil.BadRequest("invalid webhook payload", err))
		return
	}

	if event.Type != "checkout.session.completed" || event.Data.SessionID == "" {
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	payment, err := s.HandleFundingCompletion(c.Request.Context(), event.Data.SessionID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotConfirmed) {
			// The session exists but is not paid; nothing to apply and
			// nothing a redelivery would change.
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
			return
		}
		zap.L().Error("webhook processing failed",
			zap.String("session_id", event.Data.SessionID), zap.Error(err))
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "escrow_status": payment.Status})
}

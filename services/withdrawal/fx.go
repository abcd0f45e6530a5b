package withdrawal

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"creatorlane-marketplace/pkg/db/pagination"
	"creatorlane-marketplace/pkg/errutil"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	g := engine.Group("/v1/withdrawals")
	g.POST("", svc.handleRequest)
	g.GET("/:id", svc.handleGet)
	g.GET("", svc.handleList)

	admin := engine.Group("/v1/admin/withdrawals")
	admin.POST("/:id/approve", svc.handleApprove)
	admin.POST("/:id/reject", svc.handleReject)
}

func (s *Service) handleRequest(c *gin.Context) {
	var req RequestParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	w, err := s.Request(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (s *Service) handleGet(c *gin.Context) {
	w, err := s.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Service) handleList(c *gin.Context) {
	creatorID := c.Query("creator_id")
	if creatorID == "" {
		c.Error(errutil.BadRequest("creator_id is required", nil))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination parameters", err))
		return
	}

	withdrawals, info, err := s.ListByCreator(c.Request.Context(), creatorID, page)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": withdrawals, "page_info": info})
}

type approveRequest struct {
	ExternalRef string `json:"external_ref"`
}

func (s *Service) handleApprove(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	w, err := s.Approve(c.Request.Context(), c.Param("id"), req.ExternalRef)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Service) handleReject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	w, err := s.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}

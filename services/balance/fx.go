package balance

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"creatorlane-marketplace/pkg/db/pagination"
	"creatorlane-marketplace/pkg/errutil"
)

var Module = fx.Module("balance.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	g := engine.Group("/v1/creators/:creator_id/balance")
	g.GET("", svc.handleGet)
	g.GET("/transactions", svc.handleHistory)
}

func (s *Service) handleGet(c *gin.Context) {
	b, err := s.Get(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Service) handleHistory(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination parameters", err))
		return
	}

	txns, info, err := s.History(c.Request.Context(), c.Param("creator_id"), page)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "page_info": info})
}

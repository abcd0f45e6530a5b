package contract

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"creatorlane-marketplace/pkg/errutil"
)

var Module = fx.Module("contract.service",
	fx.Provide(NewService),
	fx.Invoke(registerRoutes),
)

func registerRoutes(engine *gin.Engine, svc *Service) {
	g := engine.Group("/v1/contracts")
	g.POST("", svc.handleCreate)
	g.GET("/:id", svc.handleGet)
	g.GET("", svc.handleList)
}

func (s *Service) handleCreate(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	contract, err := s.Create(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, contract)
}

func (s *Service) handleGet(c *gin.Context) {
	contract, err := s.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

func (s *Service) handleList(c *gin.Context) {
	brandID := c.Query("brand_id")
	if brandID == "" {
		c.Error(errutil.BadRequest("brand_id is required", nil))
		return
	}

	contracts, err := s.ListByBrand(c.Request.Context(), brandID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"creatorlane-marketplace/internal/config"
	"creatorlane-marketplace/pkg/health"
	"creatorlane-marketplace/pkg/middleware"
)

var Router = fx.Module("http.router",
	fx.Provide(ProvideRouter),
	fx.Invoke(registerHealthRoutes),
)

// ProvideRouter builds the gin engine all services register their routes on.
func ProvideRouter(cfg *config.Config) (*gin.Engine, http.Handler) {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Channel())
	engine.Use(middleware.Error())

	return engine, engine
}

func registerHealthRoutes(engine *gin.Engine, h health.HealthService) {
	engine.GET("/healthz", h.Liveness)
	engine.GET("/readyz", h.Readiness)
}

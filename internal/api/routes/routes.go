package routes

import (
	"net/http"
	"time"

	"collab-service/internal/api/handlers"
	"collab-service/internal/api/middleware"
	"collab-service/internal/collab"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Router struct {
	engine    *gin.Engine
	wsHandler *handlers.WSHandler
}

func NewRouter(hub *collab.Hub, jwtSecret string, logger *zap.SugaredLogger) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.RequestLogger(logger))

	return &Router{
		engine:    engine,
		wsHandler: handlers.NewWSHandler(hub, jwtSecret, logger),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := r.engine.Group("/api/v1")
	api.GET("/ws", r.wsHandler.HandleWebSocket)
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

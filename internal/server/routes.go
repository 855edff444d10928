package server

import (
	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxline/internal/config"
	"github.com/xpanvictor/voxline/internal/handlers"
	"github.com/xpanvictor/voxline/internal/handlers/websocket"
	"github.com/xpanvictor/voxline/pkg/Logger"
)

type Dependencies struct {
	Configs *config.Settings
	Logger  *Logger.Logger
	Voice   *websocket.WebSocketHandler
	// nil when auth is disabled
	Auth *handlers.TokenValidator
	// backend kind ("stt", "tts", "llm") -> registered engines
	Backends map[string][]string
}

func InitializeRoutes(r *gin.Engine, dep Dependencies) {
	r.Use(
		handlers.ErrorHandlerMiddleware(dep.Logger),
		handlers.RequestLoggerMiddleware(dep.Logger),
		handlers.CORSMiddleware(),
	)

	r.GET("/", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"message": "Server healthy"}) })
	r.GET("/health", handlers.HealthHandler(dep.Backends))

	v1 := r.Group("/v1")
	var auth []gin.HandlerFunc
	if dep.Auth != nil {
		auth = append(auth, handlers.AuthMiddleware(dep.Auth, dep.Logger))
	}
	dep.Voice.RegisterRoutes(v1, auth...)
}

package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clearshot/handshake/service"
)

// SetupRouter sets up the gin router: public handshake routes plus the
// envelope-protected API group.
func SetupRouter(authService *service.AuthService, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(authService)

	auth := router.Group("/auth")
	{
		auth.POST("/start", handlers.Start)
		auth.POST("/callback", CallbackProofMiddleware(authService), handlers.Callback)
		auth.GET("/status/:challengeId", handlers.Status)
	}

	router.POST("/auto-register", handlers.AutoRegister)
	router.POST("/verify-key", handlers.VerifyKey)

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/profile", handlers.Profile)
		api.GET("/authorize", handlers.Authorize)
	}

	return router
}

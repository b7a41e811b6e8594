// Package api wires the HTTP routes of the chat backend.
package api

import (
	"chatly/internal/api/handlers"
	"chatly/internal/app"
	"chatly/internal/auth"
	"chatly/internal/logger"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the gin engine serving the /api routes
func NewRouter(config *app.Config, tokens *auth.TokenManager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	if origins := config.AppConfig.CORS.AllowedOrigins; len(origins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if rl := config.AppConfig.RateLimit; rl.Enabled {
		router.Use(newIPRateLimiter(rl).middleware())
	}

	h := handlers.NewHandlers(config, tokens)

	api := router.Group("/api")
	{
		api.GET("/health", h.Health)
		api.POST("/login", h.Login)
		api.POST("/register", h.Register)
		api.POST("/logout", h.Logout)
	}

	protected := api.Group("", tokens.Middleware())
	{
		protected.GET("/current_user", h.CurrentUser)
		protected.POST("/update_settings", h.UpdateSettings)
		protected.POST("/change_password", h.ChangePassword)
		protected.POST("/delete_account", h.DeleteAccount)

		protected.GET("/get_chats", h.GetChats)
		protected.GET("/get_chat/:id", h.GetChat)
		protected.POST("/new_chat", h.NewChat)
		protected.POST("/rename_chat", h.RenameChat)
		protected.POST("/delete_chat", h.DeleteChat)
		protected.POST("/clear_chats", h.ClearChats)
		protected.POST("/send_message", h.SendMessage)
	}

	return router
}

// requestLogger logs each request through the shared logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.Log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if c.Writer.Status() >= 500 {
			entry.Error("Request completed")
			return
		}
		entry.Debug("Request completed")
	}
}

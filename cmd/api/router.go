package api

import (
	"net/http"
	"time"

	"postmark-backend/internal/auth/delivery"
	authUsecase "postmark-backend/internal/auth/usecase"
	mailboxDelivery "postmark-backend/internal/mailbox/delivery"
	mailboxUsecase "postmark-backend/internal/mailbox/usecase"
	"postmark-backend/pkg/config"
	"postmark-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logger.For("http")

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, mailboxUc mailboxUsecase.MailboxUsecase, accountUc mailboxUsecase.AccountUsecase, cfg *config.Config) {
	authHandler := delivery.NewAuthHandler(authUsecase)
	mailboxHandler := mailboxDelivery.NewMailboxHandler(mailboxUc)
	accountHandler := mailboxDelivery.NewAccountHandler(accountUc, cfg.FrontendURL)
	requireAuth := delivery.AuthMiddleware(authUsecase)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", requireAuth, authHandler.Me)
			auth.POST("/logout", authHandler.Logout)
		}

		// Device routes (protected)
		devices := api.Group("/devices")
		devices.Use(requireAuth)
		{
			devices.POST("", authHandler.RegisterDevice)
			devices.DELETE("/:token", authHandler.UnregisterDevice)
		}

		// Account routes; the OAuth callback authenticates through its signed state
		api.GET("/accounts/google/callback", accountHandler.Callback)
		accounts := api.Group("/accounts")
		accounts.Use(requireAuth)
		{
			accounts.GET("", accountHandler.List)
			accounts.GET("/google/connect", accountHandler.ConnectURL)
			accounts.DELETE("/google", accountHandler.Disconnect)
			accounts.POST("/:id/watch", accountHandler.StartWatch)
			accounts.DELETE("/:id/watch", accountHandler.StopWatch)
		}

		// Sync routes (protected)
		api.POST("/sync/gmail", requireAuth, mailboxHandler.Sync)

		// Message routes (protected)
		messages := api.Group("/messages")
		messages.Use(requireAuth)
		{
			messages.GET("", mailboxHandler.ListMessages)
			messages.GET("/:id", mailboxHandler.GetMessage)
			messages.PATCH("/:id", mailboxHandler.ApplyAction)
		}

		// Thread routes (protected)
		threads := api.Group("/threads")
		threads.Use(requireAuth)
		{
			threads.GET("", mailboxHandler.ListThreads)
			threads.POST("/hydrate", mailboxHandler.HydrateThread)
		}
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("request")
	}
}

package api

import (
	"net/http"
	"strings"

	authUsecase "postmark-backend/internal/auth/usecase"
	mailboxUsecase "postmark-backend/internal/mailbox/usecase"
	"postmark-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase    authUsecase.AuthUsecase
	mailboxUsecase mailboxUsecase.MailboxUsecase
	accountUsecase mailboxUsecase.AccountUsecase
	config         *config.Config
}

func NewHandler(authUc authUsecase.AuthUsecase, mailboxUc mailboxUsecase.MailboxUsecase, accountUc mailboxUsecase.AccountUsecase, cfg *config.Config) *Handler {
	return &Handler{
		authUsecase:    authUc,
		mailboxUsecase: mailboxUc,
		accountUsecase: accountUc,
		config:         cfg,
	}
}

// Engine builds the gin engine with CORS and every route mounted.
func (h *Handler) Engine() *gin.Engine {
	gin.SetMode(h.config.GinMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.Use(cors(h.config.FrontendURL))

	SetupRoutes(r, h.authUsecase, h.mailboxUsecase, h.accountUsecase, h.config)
	return r
}

const corsAllowHeaders = "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With"

// cors lets the configured frontend call the API with credentials. Other origins get no CORS headers.
func cors(frontendURL string) gin.HandlerFunc {
	allowed := strings.TrimRight(frontendURL, "/")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed == "" || origin == allowed) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

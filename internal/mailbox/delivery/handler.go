package delivery

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/dto"
	"postmark-backend/internal/mailbox/usecase"
	"postmark-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

var log = logger.For("http")

type MailboxHandler struct {
	mailboxUsecase usecase.MailboxUsecase
}

func NewMailboxHandler(mailboxUsecase usecase.MailboxUsecase) *MailboxHandler {
	return &MailboxHandler{mailboxUsecase: mailboxUsecase}
}

// Sync accepts parameters from the JSON body or the query string.
func (h *MailboxHandler) Sync(c *gin.Context) {
	var req dto.SyncRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
		return
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
			return
		}
	}

	resp, err := h.mailboxUsecase.Sync(c.Request.Context(), c.GetString("userID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MailboxHandler) ListMessages(c *gin.Context) {
	filter, err := bindFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
		return
	}
	resp, err := h.mailboxUsecase.ListMessages(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MailboxHandler) ListThreads(c *gin.Context) {
	filter, err := bindFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
		return
	}
	resp, err := h.mailboxUsecase.ListThreads(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MailboxHandler) GetMessage(c *gin.Context) {
	includeConversation, _ := strconv.ParseBool(c.Query("include_conversation"))
	includeBody, _ := strconv.ParseBool(c.Query("include_body"))

	resp, err := h.mailboxUsecase.GetMessage(c.Request.Context(), c.GetString("userID"), c.Param("id"), includeConversation, includeBody)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MailboxHandler) ApplyAction(c *gin.Context) {
	var req dto.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
		return
	}

	updated, err := h.mailboxUsecase.ApplyAction(c.Request.Context(), c.GetString("userID"), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": updated})
}

func (h *MailboxHandler) HydrateThread(c *gin.Context) {
	var req dto.HydrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
		return
	}

	hydrated, err := h.mailboxUsecase.HydrateThread(c.Request.Context(), c.GetString("userID"), req.MessageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.HydrateResponse{Hydrated: hydrated})
}

func bindFilter(c *gin.Context) (domain.MessageFilter, error) {
	filter := domain.MessageFilter{
		UserID:       c.GetString("userID"),
		Providers:    splitList(c.Query("provider")),
		ConnectionID: c.Query("connection_id"),
		Query:        c.Query("q"),
	}

	var err error
	if filter.Page, err = intQuery(c, "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = intQuery(c, "page_size"); err != nil {
		return filter, err
	}
	if filter.IsRead, err = boolQuery(c, "is_read"); err != nil {
		return filter, err
	}
	if filter.IsArchived, err = boolQuery(c, "is_archived"); err != nil {
		return filter, err
	}
	return filter, nil
}

// splitList reads a comma-separated query value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func boolQuery(c *gin.Context, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean", key)
	}
	return &b, nil
}

type AccountHandler struct {
	accountUsecase usecase.AccountUsecase
	frontendURL    string
}

func NewAccountHandler(accountUsecase usecase.AccountUsecase, frontendURL string) *AccountHandler {
	return &AccountHandler{accountUsecase: accountUsecase, frontendURL: frontendURL}
}

func (h *AccountHandler) List(c *gin.Context) {
	conns, err := h.accountUsecase.ListConnections(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": conns})
}

func (h *AccountHandler) ConnectURL(c *gin.Context) {
	authURL, err := h.accountUsecase.ConnectURL(c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ConnectURLResponse{URL: authURL})
}

// Callback is the OAuth redirect target. It always ends on the frontend.
func (h *AccountHandler) Callback(c *gin.Context) {
	target := h.frontendURL + "/settings/accounts"

	if denied := c.Query("error"); denied != "" {
		c.Redirect(http.StatusFound, target+"?error="+url.QueryEscape(denied))
		return
	}

	conn, err := h.accountUsecase.CompleteConnect(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		_, code := errorKind(err)
		log.WithError(err).Warn("google account connect failed")
		c.Redirect(http.StatusFound, target+"?error="+url.QueryEscape(code))
		return
	}
	c.Redirect(http.StatusFound, target+"?connected="+url.QueryEscape(conn.EmailAddress))
}

func (h *AccountHandler) Disconnect(c *gin.Context) {
	if err := h.accountUsecase.Disconnect(c.Request.Context(), c.GetString("userID"), domain.ProviderGoogle); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account disconnected"})
}

func (h *AccountHandler) StartWatch(c *gin.Context) {
	result, err := h.accountUsecase.StartWatch(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AccountHandler) StopWatch(c *gin.Context) {
	if err := h.accountUsecase.StopWatch(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "watch stopped"})
}

package dto

import (
	"time"

	"postmark-backend/internal/mailbox/domain"
)

type SyncRequest struct {
	Mode         string `json:"mode" form:"mode"`
	MaxResults   *int   `json:"max_results" form:"max_results"`
	ConnectionID string `json:"connection_id" form:"connection_id"`
}

type SyncResponse struct {
	Results []*domain.SyncResult `json:"results"`
}

type MessageListResponse struct {
	Messages []*domain.MessageProjection `json:"messages"`
	Total    int64                       `json:"total"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
}

type ThreadListResponse struct {
	Threads  []*domain.ThreadSummary `json:"threads"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
}

type MessageDetailResponse struct {
	Message      *domain.MessageProjection   `json:"message"`
	Conversation []*domain.MessageProjection `json:"conversation,omitempty"`
	Body         *domain.MessageBody         `json:"body,omitempty"`
}

type ActionRequest struct {
	Action        string `json:"action" binding:"required"`
	ApplyToThread bool   `json:"apply_to_thread"`
}

type HydrateRequest struct {
	MessageID string `json:"message_id" binding:"required"`
}

type HydrateResponse struct {
	Hydrated int `json:"hydrated"`
}

type ConnectionResponse struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	EmailAddress    string     `json:"email_address"`
	Scope           string     `json:"scope,omitempty"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	LastSyncError   *string    `json:"last_sync_error,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	HasCursor       bool       `json:"has_cursor"`
	CreatedAt       time.Time  `json:"created_at"`
}

func NewConnectionResponse(c *domain.MailboxConnection) ConnectionResponse {
	resp := ConnectionResponse{
		ID:              c.ID,
		Provider:        c.Provider,
		EmailAddress:    c.EmailAddress,
		LastSyncedAt:    c.LastSyncedAt,
		LastSyncError:   c.LastSyncError,
		HasRefreshToken: c.HasRefreshToken(),
		HasCursor:       c.Cursor() != "",
		CreatedAt:       c.CreatedAt,
	}
	if c.Scope != nil {
		resp.Scope = *c.Scope
	}
	return resp
}

type ConnectURLResponse struct {
	URL string `json:"url"`
}

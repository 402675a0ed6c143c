package usecase

import (
	"context"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/dto"
)

// MailboxUsecase is the request-facing surface over sync, queries, actions and hydration.
type MailboxUsecase interface {
	// Sync runs one engine invocation per selected connection, in order.
	Sync(ctx context.Context, userID string, req *dto.SyncRequest) (*dto.SyncResponse, error)
	// SyncConnection runs the engine for conn unless a run for it is already active.
	SyncConnection(ctx context.Context, conn *domain.MailboxConnection, mode domain.SyncMode, maxResults int) (*domain.SyncResult, error)

	ListMessages(ctx context.Context, filter domain.MessageFilter) (*dto.MessageListResponse, error)
	ListThreads(ctx context.Context, filter domain.MessageFilter) (*dto.ThreadListResponse, error)
	GetMessage(ctx context.Context, userID, id string, includeConversation, includeBody bool) (*dto.MessageDetailResponse, error)

	ApplyAction(ctx context.Context, userID, id string, req *dto.ActionRequest) ([]*domain.MessageProjection, error)
	HydrateThread(ctx context.Context, userID, messageID string) (int, error)
}

// AccountUsecase manages the lifecycle of mailbox connections.
type AccountUsecase interface {
	ListConnections(ctx context.Context, userID string) ([]dto.ConnectionResponse, error)
	ConnectURL(userID string) (string, error)
	// CompleteConnect finishes the OAuth round trip. It never resets an existing cursor.
	CompleteConnect(ctx context.Context, state, code string) (*domain.MailboxConnection, error)
	Disconnect(ctx context.Context, userID, provider string) error
	StartWatch(ctx context.Context, userID, connectionID string) (*domain.WatchResult, error)
	StopWatch(ctx context.Context, userID, connectionID string) error
}

// StateSigner binds an OAuth round trip to the user that started it.
type StateSigner interface {
	SignState(userID string) (string, error)
	VerifyState(state string) (string, error)
}

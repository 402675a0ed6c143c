package repository

import (
	"context"

	"postmark-backend/internal/mailbox/domain"
)

// MessageRepository is the message projection store.
type MessageRepository interface {
	// Upsert creates or fully replaces the projection for (connection, remote id).
	// Read and archived flags are derived from snap.Labels.
	Upsert(ctx context.Context, conn *domain.MailboxConnection, snap domain.MessageSnapshot) (*domain.MessageProjection, error)
	// DeleteByRemoteIDs returns how many rows were removed; unknown ids are ignored
	DeleteByRemoteIDs(ctx context.Context, connectionID string, remoteIDs []string) (int64, error)
	// ListByThread orders by date ascending (nulls last), then creation order, then id
	ListByThread(ctx context.Context, connectionID, threadID string) ([]*domain.MessageProjection, error)
	FindByID(ctx context.Context, userID, id string) (*domain.MessageProjection, error)
	FindByRemoteID(ctx context.Context, connectionID, remoteID string) (*domain.MessageProjection, error)
	List(ctx context.Context, filter domain.MessageFilter) ([]*domain.MessageProjection, int64, error)
	ListThreads(ctx context.Context, filter domain.MessageFilter) ([]*domain.ThreadSummary, int64, error)
}

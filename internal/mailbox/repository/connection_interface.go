package repository

import (
	"context"

	"postmark-backend/internal/mailbox/domain"
)

// ConnectionRepository persists MailboxConnection rows.
// Find methods return (nil, nil) when no row matches.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *domain.MailboxConnection) error
	FindByID(ctx context.Context, id string) (*domain.MailboxConnection, error)
	FindByIDForUser(ctx context.Context, id, userID string) (*domain.MailboxConnection, error)
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*domain.MailboxConnection, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.MailboxConnection, error)
	ListByEmailAddress(ctx context.Context, provider, address string) ([]*domain.MailboxConnection, error)
	// ListWithCredentials returns connections holding at least one token
	ListWithCredentials(ctx context.Context, provider string) ([]*domain.MailboxConnection, error)
	// SaveTokens stores a (possibly refreshed) token pair. An empty refresh token keeps the stored one.
	SaveTokens(ctx context.Context, id string, creds domain.Credentials, scope string) error
	UpdateSyncState(ctx context.Context, id string, state domain.SyncState) error
	// Delete removes the connection and every message projected from it
	Delete(ctx context.Context, id string) (int64, error)
}

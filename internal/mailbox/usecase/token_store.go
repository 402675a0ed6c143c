package usecase

import (
	"context"
	"time"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/repository"

	"golang.org/x/oauth2"
)

const tokenWriteTimeout = 5 * time.Second

// TokenStore hands a connection's credentials to the remote client and records what happened.
// Writes are best-effort: failures are logged and never returned.
type TokenStore interface {
	Read(conn *domain.MailboxConnection) domain.Credentials
	OnRefresh(conn *domain.MailboxConnection) domain.TokenUpdateFunc
	Write(ctx context.Context, conn *domain.MailboxConnection, state domain.SyncState)
}

type tokenStore struct {
	conns repository.ConnectionRepository
}

func NewTokenStore(conns repository.ConnectionRepository) TokenStore {
	return &tokenStore{conns: conns}
}

func (s *tokenStore) Read(conn *domain.MailboxConnection) domain.Credentials {
	return conn.Credentials()
}

// OnRefresh persists refreshed tokens. Google usually omits the refresh token on refresh,
// in which case the stored one is kept.
func (s *tokenStore) OnRefresh(conn *domain.MailboxConnection) domain.TokenUpdateFunc {
	return func(t *oauth2.Token) error {
		ctx, cancel := context.WithTimeout(context.Background(), tokenWriteTimeout)
		defer cancel()

		creds := domain.Credentials{
			AccessToken:  t.AccessToken,
			RefreshToken: t.RefreshToken,
			Expiry:       t.Expiry,
		}
		if err := s.conns.SaveTokens(ctx, conn.ID, creds, ""); err != nil {
			return err
		}

		access := t.AccessToken
		conn.AccessToken = &access
		if t.RefreshToken != "" {
			refresh := t.RefreshToken
			conn.RefreshToken = &refresh
		}
		if !t.Expiry.IsZero() {
			expiry := t.Expiry
			conn.TokenExpiry = &expiry
		}
		log.WithField("connection_id", conn.ID).Debug("stored refreshed access token")
		return nil
	}
}

func (s *tokenStore) Write(ctx context.Context, conn *domain.MailboxConnection, state domain.SyncState) {
	// detached so a cancelled request still records its outcome
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenWriteTimeout)
	defer cancel()

	if err := s.conns.UpdateSyncState(ctx, conn.ID, state); err != nil {
		log.WithError(err).WithField("connection_id", conn.ID).Warn("failed to record sync state")
		return
	}

	conn.LastSyncError = state.Error
	if state.SyncedAt != nil {
		conn.LastSyncedAt = state.SyncedAt
	}
	if state.Cursor != nil {
		conn.SyncCursor = state.Cursor
	}
}

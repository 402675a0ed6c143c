package usecase

import (
	"context"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/repository"

	"github.com/sirupsen/logrus"
)

// ThreadHydrator backfills every member of a remote conversation into the projection store.
type ThreadHydrator struct {
	tokens   TokenStore
	messages repository.MessageRepository
	opener   domain.MailboxOpener
}

func NewThreadHydrator(tokens TokenStore, messages repository.MessageRepository, opener domain.MailboxOpener) *ThreadHydrator {
	return &ThreadHydrator{tokens: tokens, messages: messages, opener: opener}
}

// Hydrate fetches the thread that msg belongs to and upserts each member.
// Messages outside the Google provider or without a thread are a no-op.
func (h *ThreadHydrator) Hydrate(ctx context.Context, conn *domain.MailboxConnection, msg *domain.MessageProjection) (int, error) {
	if msg.Provider != domain.ProviderGoogle || msg.Thread() == "" {
		return 0, nil
	}

	creds := h.tokens.Read(conn)
	if creds.Empty() {
		return 0, domain.ErrMissingCredentials
	}
	remote, err := h.opener.Open(ctx, creds, h.tokens.OnRefresh(conn))
	if err != nil {
		return 0, err
	}

	members, err := remote.GetThread(ctx, msg.Thread())
	if err != nil {
		return 0, err
	}

	hydrated := 0
	for _, rm := range members {
		if _, err := h.messages.Upsert(ctx, conn, snapshotFromRemote(rm)); err != nil {
			return hydrated, err
		}
		hydrated++
	}

	log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"thread_id":     msg.Thread(),
		"hydrated":      hydrated,
	}).Info("thread hydrated")
	return hydrated, nil
}

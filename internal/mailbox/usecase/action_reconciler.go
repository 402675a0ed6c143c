package usecase

import (
	"context"
	"fmt"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/repository"

	"github.com/sirupsen/logrus"
)

// ActionReconciler applies user actions remotely and mirrors the resulting labels locally.
type ActionReconciler struct {
	tokens   TokenStore
	messages repository.MessageRepository
	opener   domain.MailboxOpener
}

func NewActionReconciler(tokens TokenStore, messages repository.MessageRepository, opener domain.MailboxOpener) *ActionReconciler {
	return &ActionReconciler{tokens: tokens, messages: messages, opener: opener}
}

// Apply mutates msg (or its whole thread) remotely. A message-level call stores the labels
// the provider reports back. A thread-level call makes one remote mutation, then recomputes
// the mutation over every locally known member of the thread.
func (r *ActionReconciler) Apply(ctx context.Context, conn *domain.MailboxConnection, msg *domain.MessageProjection, action domain.Action, applyToThread bool) ([]*domain.MessageProjection, error) {
	if conn.Provider != domain.ProviderGoogle {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, conn.Provider)
	}
	mutation, err := action.Mutation()
	if err != nil {
		return nil, err
	}

	creds := r.tokens.Read(conn)
	if creds.Empty() {
		return nil, domain.ErrMissingCredentials
	}
	remote, err := r.opener.Open(ctx, creds, r.tokens.OnRefresh(conn))
	if err != nil {
		return nil, err
	}

	entry := log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"message_id":    msg.ID,
		"action":        action,
	})

	if !applyToThread || msg.Thread() == "" {
		labels, err := remote.MutateLabels(ctx, domain.TargetMessage, msg.ProviderMessageID, mutation.Add, mutation.Remove)
		if err != nil {
			return nil, err
		}
		updated, err := r.messages.Upsert(ctx, conn, domain.SnapshotWithLabels(msg, labels))
		if err != nil {
			return nil, err
		}
		entry.Debug("message action applied")
		return []*domain.MessageProjection{updated}, nil
	}

	if _, err := remote.MutateLabels(ctx, domain.TargetThread, msg.Thread(), mutation.Add, mutation.Remove); err != nil {
		return nil, err
	}

	members, err := r.messages.ListByThread(ctx, conn.ID, msg.Thread())
	if err != nil {
		return nil, err
	}
	updated := make([]*domain.MessageProjection, 0, len(members))
	for _, m := range members {
		next := mutation.Apply(m.Labels)
		saved, err := r.messages.Upsert(ctx, conn, domain.SnapshotWithLabels(m, next))
		if err != nil {
			return updated, err
		}
		updated = append(updated, saved)
	}
	entry.WithField("thread_size", len(updated)).Debug("thread action applied")
	return updated, nil
}

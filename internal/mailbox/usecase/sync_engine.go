package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/repository"
	"postmark-backend/pkg/logger"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logger.For("mailbox")

var errHistoryPageLimit = errors.New("history page limit reached")

// SyncOptions bounds the remote fan-out of a single run.
type SyncOptions struct {
	DefaultMaxResults int
	MaxResultsCap     int
	MaxHistoryPages   int
	FetchConcurrency  int
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.MaxResultsCap <= 0 {
		o.MaxResultsCap = 50
	}
	if o.DefaultMaxResults <= 0 || o.DefaultMaxResults > o.MaxResultsCap {
		o.DefaultMaxResults = 25
		if o.DefaultMaxResults > o.MaxResultsCap {
			o.DefaultMaxResults = o.MaxResultsCap
		}
	}
	if o.MaxHistoryPages <= 0 {
		o.MaxHistoryPages = 20
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 1
	}
	return o
}

// SyncEngine reconciles the projection store with one remote mailbox.
type SyncEngine struct {
	tokens   TokenStore
	messages repository.MessageRepository
	opener   domain.MailboxOpener
	opts     SyncOptions
	now      func() time.Time
}

func NewSyncEngine(tokens TokenStore, messages repository.MessageRepository, opener domain.MailboxOpener, opts SyncOptions) *SyncEngine {
	return &SyncEngine{
		tokens:   tokens,
		messages: messages,
		opener:   opener,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// MaxResults clamps a requested batch size; zero or negative selects the default.
func (e *SyncEngine) MaxResults(requested int) int {
	switch {
	case requested <= 0:
		return e.opts.DefaultMaxResults
	case requested > e.opts.MaxResultsCap:
		return e.opts.MaxResultsCap
	}
	return requested
}

func (e *SyncEngine) MaxResultsCap() int {
	return e.opts.MaxResultsCap
}

// Run performs one synchronization of conn. Sync bookkeeping is written on every path;
// on failure only the error text changes and the stored cursor is preserved.
func (e *SyncEngine) Run(ctx context.Context, conn *domain.MailboxConnection, mode domain.SyncMode, maxResults int) (*domain.SyncResult, error) {
	if conn.Provider != domain.ProviderGoogle {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, conn.Provider)
	}

	result := &domain.SyncResult{
		ConnectionID:   conn.ID,
		Mode:           mode,
		PreviousCursor: conn.Cursor(),
	}
	entry := log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"mode":          mode,
	})

	cursor, err := e.run(ctx, conn, mode, e.MaxResults(maxResults), result)
	if err != nil {
		msg := err.Error()
		e.tokens.Write(ctx, conn, domain.SyncState{Error: &msg})
		entry.WithError(err).Warn("sync failed")
		if domain.IsAuthError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrSyncFailed, err)
	}

	syncedAt := e.now()
	result.StoredCursor = cursor
	e.tokens.Write(ctx, conn, domain.SyncState{SyncedAt: &syncedAt, Cursor: &cursor})

	entry.WithFields(logrus.Fields{
		"strategy":        result.Strategy,
		"fallback_reason": result.FallbackReason,
		"synced":          result.Synced,
		"deleted":         result.Deleted,
		"skipped":         result.Skipped,
		"previous_cursor": result.PreviousCursor,
		"stored_cursor":   result.StoredCursor,
	}).Info("sync completed")
	return result, nil
}

// run returns the cursor to store on success.
func (e *SyncEngine) run(ctx context.Context, conn *domain.MailboxConnection, mode domain.SyncMode, limit int, result *domain.SyncResult) (string, error) {
	creds := e.tokens.Read(conn)
	if creds.Empty() {
		return "", domain.ErrMissingCredentials
	}

	remote, err := e.opener.Open(ctx, creds, e.tokens.OnRefresh(conn))
	if err != nil {
		return "", err
	}

	mailboxCursor, err := remote.GetCursor(ctx)
	if err != nil {
		return "", err
	}
	result.MailboxCursor = mailboxCursor

	if mode == domain.SyncModeFull || conn.Cursor() == "" {
		result.Strategy = domain.StrategyQuery
		return mailboxCursor, e.applyQuery(ctx, remote, conn, limit, result)
	}

	changed, deleted, latest, err := e.collectHistory(ctx, remote, conn.Cursor())
	switch {
	case errors.Is(err, domain.ErrCursorExpired):
		return e.fallback(ctx, remote, conn, limit, result, domain.FallbackCursorExpired)
	case errors.Is(err, errHistoryPageLimit):
		return e.fallback(ctx, remote, conn, limit, result, domain.FallbackPageLimit)
	case err != nil:
		return "", err
	}

	result.Strategy = domain.StrategyHistory
	if len(deleted) > 0 {
		removed, err := e.messages.DeleteByRemoteIDs(ctx, conn.ID, deleted)
		if err != nil {
			return "", err
		}
		result.Deleted = int(removed)
	}
	if err := e.upsertAll(ctx, remote, conn, changed, result); err != nil {
		return "", err
	}

	if latest == "" {
		latest = mailboxCursor
	}
	return latest, nil
}

func (e *SyncEngine) fallback(ctx context.Context, remote domain.RemoteMailbox, conn *domain.MailboxConnection, limit int, result *domain.SyncResult, reason string) (string, error) {
	log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"reason":        reason,
	}).Info("history unusable, falling back to inbox listing")

	result.Strategy = domain.StrategyFallback
	result.FellBack = true
	result.FallbackReason = reason
	return result.MailboxCursor, e.applyQuery(ctx, remote, conn, limit, result)
}

func (e *SyncEngine) applyQuery(ctx context.Context, remote domain.RemoteMailbox, conn *domain.MailboxConnection, limit int, result *domain.SyncResult) error {
	ids, err := remote.ListInboxIDs(ctx, limit)
	if err != nil {
		return err
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return e.upsertAll(ctx, remote, conn, ids, result)
}

// collectHistory pages through the change log from cursor. Identities seen as both
// changed and deleted are reported only as deleted.
func (e *SyncEngine) collectHistory(ctx context.Context, remote domain.RemoteMailbox, cursor string) (changed, deleted []string, latest string, err error) {
	changedSet := make(map[string]struct{})
	deletedSet := make(map[string]struct{})

	pageToken := ""
	for page := 0; page < e.opts.MaxHistoryPages; page++ {
		hp, err := remote.ListHistorySince(ctx, cursor, pageToken)
		if err != nil {
			return nil, nil, "", err
		}

		for _, entry := range hp.Entries {
			if entry.Kind.IsDeletion() {
				deletedSet[entry.MessageID] = struct{}{}
			} else {
				changedSet[entry.MessageID] = struct{}{}
			}
		}
		if hp.NextCursor != "" {
			latest = hp.NextCursor
		}

		if hp.NextPageToken == "" {
			for id := range deletedSet {
				delete(changedSet, id)
			}
			return sortedKeys(changedSet), sortedKeys(deletedSet), latest, nil
		}
		pageToken = hp.NextPageToken
	}
	return nil, nil, "", errHistoryPageLimit
}

// upsertAll fetches and upserts each identity once. Messages that vanished remotely
// between listing and fetch are skipped.
func (e *SyncEngine) upsertAll(ctx context.Context, remote domain.RemoteMailbox, conn *domain.MailboxConnection, ids []string, result *domain.SyncResult) error {
	var synced, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.FetchConcurrency)
	for _, id := range ids {
		id := id // per-iteration copy: go.mod targets go1.21 loop semantics
		g.Go(func() error {
			rm, err := remote.GetMessage(gctx, id)
			if errors.Is(err, domain.ErrRemoteMessageNotFound) {
				skipped.Add(1)
				log.WithField("remote_id", id).Debug("message gone before fetch, skipping")
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := e.messages.Upsert(gctx, conn, snapshotFromRemote(rm)); err != nil {
				return err
			}
			synced.Add(1)
			return nil
		})
	}
	err := g.Wait()

	result.Synced += int(synced.Load())
	result.Skipped += int(skipped.Load())
	return err
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

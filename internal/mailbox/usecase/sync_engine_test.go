package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"postmark-backend/internal/mailbox/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryDeduplicatesChangedMessages(t *testing.T) {
	f := newFixture(t, "C9")
	conn := f.connection(t, "u1", "C1")
	f.remote.put("42", "t42", "Hello", "INBOX")
	f.remote.history[""] = &domain.HistoryPage{
		Entries: []domain.HistoryEntry{
			{Kind: domain.HistoryMessageAdded, MessageID: "42"},
			{Kind: domain.HistoryLabelRemoved, MessageID: "42"},
		},
		NextCursor: "C2",
	}

	result, err := f.engine(SyncOptions{}).Run(context.Background(), conn, domain.SyncModeDelta, 0)
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyHistory, result.Strategy)
	assert.False(t, result.FellBack)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, f.remote.fetched["42"])
	assert.Equal(t, "C1", result.PreviousCursor)
	assert.Equal(t, "C9", result.MailboxCursor)
	assert.Equal(t, "C2", result.StoredCursor)

	msg, err := f.messages.FindByRemoteID(context.Background(), conn.ID, "42")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.True(t, msg.IsRead)
	assert.Equal(t, "Hello", msg.Subject)

	stored := f.reload(t, conn.ID)
	assert.Equal(t, "C2", stored.Cursor())
	assert.Nil(t, stored.LastSyncError)
	assert.NotNil(t, stored.LastSyncedAt)
}

func TestHistoryDeletionWins(t *testing.T) {
	f := newFixture(t, "C9")
	conn := f.connection(t, "u1", "C1")
	ctx := context.Background()

	_, err := f.messages.Upsert(ctx, conn, domain.MessageSnapshot{ProviderMessageID: "7", Labels: []string{"INBOX"}})
	require.NoError(t, err)
	f.remote.put("7", "", "doomed", "INBOX")
	f.remote.put("8", "", "fresh", "INBOX", "UNREAD")

	f.remote.history[""] = &domain.HistoryPage{
		Entries: []domain.HistoryEntry{
			{Kind: domain.HistoryMessageAdded, MessageID: "7"},
			{Kind: domain.HistoryMessageAdded, MessageID: "8"},
		},
		NextCursor:    "C2",
		NextPageToken: "p2",
	}
	f.remote.history["p2"] = &domain.HistoryPage{
		Entries:    []domain.HistoryEntry{{Kind: domain.HistoryMessageDeleted, MessageID: "7"}},
		NextCursor: "C3",
	}

	result, err := f.engine(SyncOptions{}).Run(ctx, conn, domain.SyncModeDelta, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, "C3", result.StoredCursor)
	assert.Zero(t, f.remote.fetched["7"])

	gone, err := f.messages.FindByRemoteID(ctx, conn.ID, "7")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestHistoryPageLimitFallsBack(t *testing.T) {
	f := newFixture(t, "C9")
	conn := f.connection(t, "u1", "C1")
	f.remote.put("1", "", "one", "INBOX")
	f.remote.inbox = []string{"1"}
	for i := 0; i < 5; i++ {
		token := ""
		if i > 0 {
			token = fmt.Sprintf("p%d", i)
		}
		f.remote.history[token] = &domain.HistoryPage{
			Entries:       []domain.HistoryEntry{{Kind: domain.HistoryMessageAdded, MessageID: "1"}},
			NextCursor:    "C2",
			NextPageToken: fmt.Sprintf("p%d", i+1),
		}
	}

	result, err := f.engine(SyncOptions{MaxHistoryPages: 3}).Run(context.Background(), conn, domain.SyncModeDelta, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, f.remote.historyCalls)
	assert.Equal(t, domain.StrategyFallback, result.Strategy)
	assert.True(t, result.FellBack)
	assert.Equal(t, domain.FallbackPageLimit, result.FallbackReason)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, "C9", result.StoredCursor)
	assert.Equal(t, "C9", f.reload(t, conn.ID).Cursor())
}

func TestExpiredCursorFallsBack(t *testing.T) {
	f := newFixture(t, "C9")
	conn := f.connection(t, "u1", "C1")
	f.remote.put("1", "", "one", "INBOX")
	f.remote.inbox = []string{"1"}
	f.remote.historyErr = fmt.Errorf("gmail list history: %w: 404", domain.ErrCursorExpired)

	result, err := f.engine(SyncOptions{}).Run(context.Background(), conn, domain.SyncModeDelta, 0)
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyFallback, result.Strategy)
	assert.Equal(t, domain.FallbackCursorExpired, result.FallbackReason)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, "C9", f.reload(t, conn.ID).Cursor())
}

func TestFullSyncUsesQueryStrategy(t *testing.T) {
	f := newFixture(t, "C9")
	conn := f.connection(t, "u1", "C1")
	for i := 0; i < 15; i++ {
		id := fmt.Sprintf("m%02d", i)
		f.remote.put(id, "", "msg "+id, "INBOX")
		f.remote.inbox = append(f.remote.inbox, id)
	}

	result, err := f.engine(SyncOptions{FetchConcurrency: 4}).Run(context.Background(), conn, domain.SyncModeFull, 10)
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyQuery, result.Strategy)
	assert.Zero(t, result.Deleted)
	assert.LessOrEqual(t, result.Synced, 10)
	assert.Equal(t, 10, result.Synced)
	assert.Zero(t, f.remote.historyCalls)
	assert.Equal(t, "C9", result.StoredCursor)
}

func TestFirstDeltaSyncUsesQueryStrategy(t *testing.T) {
	f := newFixture(t, "C9")
	conn := f.connection(t, "u1", "")
	f.remote.put("1", "", "one", "INBOX")
	f.remote.inbox = []string{"1"}

	result, err := f.engine(SyncOptions{}).Run(context.Background(), conn, domain.SyncModeDelta, 0)
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyQuery, result.Strategy)
	assert.Zero(t, f.remote.historyCalls)
	assert.Equal(t, "C9", f.reload(t, conn.ID).Cursor())
}

func TestVanishedMessageIsSkipped(t *testing.T) {
	f := newFixture(t, "C9")
	conn := f.connection(t, "u1", "")
	f.remote.put("1", "", "one", "INBOX")
	f.remote.inbox = []string{"1", "ghost"}

	result, err := f.engine(SyncOptions{}).Run(context.Background(), conn, domain.SyncModeFull, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Skipped)
}

func TestMissingCredentialsFailsWithoutRemoteCall(t *testing.T) {
	f := newFixture(t, "C9")
	conn := &domain.MailboxConnection{UserID: "u1", Provider: domain.ProviderGoogle}
	require.NoError(t, f.conns.Create(context.Background(), conn))

	_, err := f.engine(SyncOptions{}).Run(context.Background(), conn, domain.SyncModeDelta, 0)
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)
	assert.NotErrorIs(t, err, domain.ErrSyncFailed)
	assert.Zero(t, f.opener.opens)

	stored := f.reload(t, conn.ID)
	require.NotNil(t, stored.LastSyncError)
	assert.Nil(t, stored.LastSyncedAt)
}

func TestAuthFailurePreservesCursor(t *testing.T) {
	f := newFixture(t, "C9")
	conn := f.connection(t, "u1", "C1")
	f.remote.cursorErr = fmt.Errorf("gmail get profile: %w: 403", domain.ErrInsufficientScope)

	_, err := f.engine(SyncOptions{}).Run(context.Background(), conn, domain.SyncModeDelta, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientScope)
	assert.NotErrorIs(t, err, domain.ErrSyncFailed)

	stored := f.reload(t, conn.ID)
	assert.Equal(t, "C1", stored.Cursor())
	require.NotNil(t, stored.LastSyncError)
	assert.Contains(t, *stored.LastSyncError, "insufficient")
}

func TestGenericFailureIsWrapped(t *testing.T) {
	f := newFixture(t, "C9")
	conn := f.connection(t, "u1", "C1")
	f.remote.historyErr = errors.New("connection reset by peer")

	_, err := f.engine(SyncOptions{}).Run(context.Background(), conn, domain.SyncModeDelta, 0)
	assert.ErrorIs(t, err, domain.ErrSyncFailed)
	assert.Equal(t, "C1", f.reload(t, conn.ID).Cursor())
}

func TestUnsupportedProviderIsRejected(t *testing.T) {
	f := newFixture(t, "C9")
	conn := &domain.MailboxConnection{ID: "x", UserID: "u1", Provider: "outlook"}

	_, err := f.engine(SyncOptions{}).Run(context.Background(), conn, domain.SyncModeDelta, 0)
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
	assert.Zero(t, f.opener.opens)
}

func TestMaxResultsClamp(t *testing.T) {
	e := NewSyncEngine(nil, nil, nil, SyncOptions{})
	assert.Equal(t, 25, e.MaxResults(0))
	assert.Equal(t, 25, e.MaxResults(-3))
	assert.Equal(t, 7, e.MaxResults(7))
	assert.Equal(t, 50, e.MaxResults(500))
}

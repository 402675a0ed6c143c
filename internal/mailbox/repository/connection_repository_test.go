package repository

import (
	"context"
	"testing"
	"time"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRejectsSecondConnectionForProvider(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()

	newConnection(t, db, "u1")
	err := repo.Create(ctx, &domain.MailboxConnection{UserID: "u1", Provider: domain.ProviderGoogle})
	assert.ErrorIs(t, err, domain.ErrConnectionExists)
}

func TestFindReturnsNilWhenMissing(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewConnectionRepository(db)

	conn, err := repo.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, conn)
}

func TestSaveTokensKeepsRefreshTokenWhenOmitted(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()
	conn := newConnection(t, db, "u1")

	require.NoError(t, repo.SaveTokens(ctx, conn.ID, domain.Credentials{AccessToken: "a1", RefreshToken: "r1"}, "gmail.modify"))
	require.NoError(t, repo.SaveTokens(ctx, conn.ID, domain.Credentials{AccessToken: "a2"}, ""))

	got, err := repo.FindByID(ctx, conn.ID)
	require.NoError(t, err)
	creds := got.Credentials()
	assert.Equal(t, "a2", creds.AccessToken)
	assert.Equal(t, "r1", creds.RefreshToken)
	require.NotNil(t, got.Scope)
	assert.Equal(t, "gmail.modify", *got.Scope)
}

func TestUpdateSyncStatePreservesCursorOnFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()
	conn := newConnection(t, db, "u1")

	syncedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cursor := "C1"
	require.NoError(t, repo.UpdateSyncState(ctx, conn.ID, domain.SyncState{SyncedAt: &syncedAt, Cursor: &cursor}))

	failure := "gmail list history: boom"
	require.NoError(t, repo.UpdateSyncState(ctx, conn.ID, domain.SyncState{Error: &failure}))

	got, err := repo.FindByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "C1", got.Cursor())
	require.NotNil(t, got.LastSyncError)
	assert.Equal(t, failure, *got.LastSyncError)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, syncedAt.Equal(*got.LastSyncedAt))

	require.NoError(t, repo.UpdateSyncState(ctx, conn.ID, domain.SyncState{SyncedAt: &syncedAt, Cursor: &cursor}))
	got, err = repo.FindByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastSyncError)
}

func TestListWithCredentialsSkipsEmptyConnections(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewConnectionRepository(db)
	ctx := context.Background()

	withToken := newConnection(t, db, "u1")
	require.NoError(t, repo.Create(ctx, &domain.MailboxConnection{UserID: "u2", Provider: domain.ProviderGoogle}))

	conns, err := repo.ListWithCredentials(ctx, domain.ProviderGoogle)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, withToken.ID, conns[0].ID)
}

func TestListByEmailAddressIgnoresCase(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewConnectionRepository(db)
	conn := newConnection(t, db, "u1")

	conns, err := repo.ListByEmailAddress(context.Background(), domain.ProviderGoogle, "U1@Example.com")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, conn.ID, conns[0].ID)
}

func TestDeleteCascadesToMessages(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewConnectionRepository(db)
	messages := NewMessageRepository(db)
	ctx := context.Background()
	conn := newConnection(t, db, "u1")

	for _, id := range []string{"a", "b"} {
		_, err := messages.Upsert(ctx, conn, domain.MessageSnapshot{ProviderMessageID: id})
		require.NoError(t, err)
	}

	removed, err := repo.Delete(ctx, conn.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	var count int64
	require.NoError(t, db.Model(&domain.MessageProjection{}).Count(&count).Error)
	assert.Zero(t, count)
}

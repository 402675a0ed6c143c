package repository

import (
	"context"
	"testing"
	"time"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newConnection(t *testing.T, db *gorm.DB, userID string) *domain.MailboxConnection {
	t.Helper()
	token := "access"
	conn := &domain.MailboxConnection{
		UserID:       userID,
		Provider:     domain.ProviderGoogle,
		EmailAddress: userID + "@example.com",
		AccessToken:  &token,
	}
	require.NoError(t, NewConnectionRepository(db).Create(context.Background(), conn))
	return conn
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func datePtr(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestUpsertDerivesFlagsFromLabels(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	conn := newConnection(t, db, "u1")
	ctx := context.Background()

	msg, err := repo.Upsert(ctx, conn, domain.MessageSnapshot{
		ProviderMessageID: "m1",
		ThreadID:          "t1",
		Subject:           "hello",
		Labels:            []string{"UNREAD", "INBOX"},
	})
	require.NoError(t, err)
	assert.False(t, msg.IsRead)
	assert.False(t, msg.IsArchived)
	assert.Equal(t, domain.LabelSet{"INBOX", "UNREAD"}, msg.Labels)

	msg, err = repo.Upsert(ctx, conn, domain.MessageSnapshot{
		ProviderMessageID: "m1",
		ThreadID:          "t1",
		Subject:           "hello again",
		Labels:            []string{"STARRED"},
	})
	require.NoError(t, err)
	assert.True(t, msg.IsRead)
	assert.True(t, msg.IsArchived)
	assert.Equal(t, "hello again", msg.Subject)
}

func TestUpsertIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	conn := newConnection(t, db, "u1")
	ctx := context.Background()

	snap := domain.MessageSnapshot{
		ProviderMessageID: "m1",
		ThreadID:          "t1",
		Subject:           "Quarterly report",
		From:              "alice@example.com",
		To:                "bob@example.com",
		Date:              datePtr("2024-01-02"),
		Snippet:           "numbers inside",
		Labels:            []string{"INBOX"},
	}
	first, err := repo.Upsert(ctx, conn, snap)
	require.NoError(t, err)
	second, err := repo.Upsert(ctx, conn, snap)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())
	assert.Equal(t, first.Subject, second.Subject)
	assert.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, first.IsRead, second.IsRead)
	assert.Equal(t, first.IsArchived, second.IsArchived)

	var count int64
	require.NoError(t, db.Model(&domain.MessageProjection{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeleteByRemoteIDsCountsOnlyRemovedRows(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	conn := newConnection(t, db, "u1")
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := repo.Upsert(ctx, conn, domain.MessageSnapshot{ProviderMessageID: id})
		require.NoError(t, err)
	}

	removed, err := repo.DeleteByRemoteIDs(ctx, conn.ID, []string{"a", "missing"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = repo.DeleteByRemoteIDs(ctx, conn.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDeletedMessageCanBeRecreated(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	conn := newConnection(t, db, "u1")
	ctx := context.Background()

	snap := domain.MessageSnapshot{ProviderMessageID: "a", Labels: []string{"INBOX"}}
	_, err := repo.Upsert(ctx, conn, snap)
	require.NoError(t, err)
	_, err = repo.DeleteByRemoteIDs(ctx, conn.ID, []string{"a"})
	require.NoError(t, err)

	msg, err := repo.Upsert(ctx, conn, snap)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "a", msg.ProviderMessageID)
}

func TestListByThreadOrdersNullDatesLast(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := &messageRepository{db: db, now: steppingClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))}
	conn := newConnection(t, db, "u1")
	ctx := context.Background()

	snaps := []domain.MessageSnapshot{
		{ProviderMessageID: "jan2", ThreadID: "t", Date: datePtr("2024-01-02")},
		{ProviderMessageID: "nodate-1", ThreadID: "t"},
		{ProviderMessageID: "jan1", ThreadID: "t", Date: datePtr("2024-01-01")},
		{ProviderMessageID: "nodate-2", ThreadID: "t"},
		{ProviderMessageID: "other-thread", ThreadID: "x", Date: datePtr("2023-12-31")},
	}
	for _, s := range snaps {
		_, err := repo.Upsert(ctx, conn, s)
		require.NoError(t, err)
	}

	msgs, err := repo.ListByThread(ctx, conn.ID, "t")
	require.NoError(t, err)

	var got []string
	for _, m := range msgs {
		got = append(got, m.ProviderMessageID)
	}
	assert.Equal(t, []string{"jan1", "jan2", "nodate-1", "nodate-2"}, got)
}

func TestListFiltersAndPaginates(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	conn := newConnection(t, db, "u1")
	other := newConnection(t, db, "u2")
	ctx := context.Background()

	for _, s := range []domain.MessageSnapshot{
		{ProviderMessageID: "1", Subject: "Invoice March", Date: datePtr("2024-03-01"), Labels: []string{"INBOX", "UNREAD"}},
		{ProviderMessageID: "2", Subject: "Lunch?", Date: datePtr("2024-03-02"), Labels: []string{"INBOX"}},
		{ProviderMessageID: "3", Subject: "invoice April", Date: datePtr("2024-04-01"), Labels: []string{}},
	} {
		_, err := repo.Upsert(ctx, conn, s)
		require.NoError(t, err)
	}
	_, err := repo.Upsert(ctx, other, domain.MessageSnapshot{ProviderMessageID: "x", Subject: "invoice"})
	require.NoError(t, err)

	msgs, total, err := repo.List(ctx, domain.MessageFilter{UserID: "u1", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, msgs, 2)
	assert.Equal(t, "3", msgs[0].ProviderMessageID)
	assert.Equal(t, "2", msgs[1].ProviderMessageID)

	msgs, total, err = repo.List(ctx, domain.MessageFilter{UserID: "u1", Query: "INVOICE", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, msgs, 2)

	unread := false
	msgs, _, err = repo.List(ctx, domain.MessageFilter{UserID: "u1", IsRead: &unread, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "1", msgs[0].ProviderMessageID)
}

func TestListThreadsGroupsConversations(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	conn := newConnection(t, db, "u1")
	ctx := context.Background()

	for _, s := range []domain.MessageSnapshot{
		{ProviderMessageID: "a1", ThreadID: "a", Date: datePtr("2024-01-01"), Labels: []string{"INBOX", "UNREAD"}},
		{ProviderMessageID: "a2", ThreadID: "a", Date: datePtr("2024-01-03"), Labels: []string{"INBOX", "UNREAD"}},
		{ProviderMessageID: "b1", ThreadID: "b", Date: datePtr("2024-01-02"), Labels: []string{"INBOX"}},
		{ProviderMessageID: "solo", Date: datePtr("2023-12-01"), Labels: []string{"INBOX"}},
	} {
		_, err := repo.Upsert(ctx, conn, s)
		require.NoError(t, err)
	}

	threads, total, err := repo.ListThreads(ctx, domain.MessageFilter{UserID: "u1", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, threads, 3)

	assert.Equal(t, "a2", threads[0].Latest.ProviderMessageID)
	assert.Equal(t, 2, threads[0].ThreadCount)
	assert.Equal(t, 2, threads[0].UnreadCount)

	assert.Equal(t, "b1", threads[1].Latest.ProviderMessageID)
	assert.Equal(t, 1, threads[1].ThreadCount)
	assert.Equal(t, 0, threads[1].UnreadCount)

	assert.Equal(t, "solo", threads[2].Latest.ProviderMessageID)
	assert.Equal(t, 1, threads[2].ThreadCount)
}

func TestListThreadsFiltersByThreadReadState(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	conn := newConnection(t, db, "u1")
	ctx := context.Background()

	for _, s := range []domain.MessageSnapshot{
		{ProviderMessageID: "old", ThreadID: "t", Date: datePtr("2024-01-01"), Labels: []string{"INBOX", "UNREAD"}},
		{ProviderMessageID: "new", ThreadID: "t", Date: datePtr("2024-01-02"), Labels: []string{"INBOX"}},
		{ProviderMessageID: "done", ThreadID: "r", Date: datePtr("2023-12-01"), Labels: []string{"INBOX"}},
	} {
		_, err := repo.Upsert(ctx, conn, s)
		require.NoError(t, err)
	}

	unread := false
	threads, total, err := repo.ListThreads(ctx, domain.MessageFilter{UserID: "u1", IsRead: &unread, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, threads, 1)
	assert.Equal(t, "new", threads[0].Latest.ProviderMessageID)
	assert.Equal(t, 2, threads[0].ThreadCount)
	assert.Equal(t, 1, threads[0].UnreadCount)

	read := true
	threads, total, err = repo.ListThreads(ctx, domain.MessageFilter{UserID: "u1", IsRead: &read, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, threads, 1)
	assert.Equal(t, "done", threads[0].Latest.ProviderMessageID)
	assert.Equal(t, 0, threads[0].UnreadCount)

	// The read filter is applied before paging, so an out-of-range page stays empty.
	threads, total, err = repo.ListThreads(ctx, domain.MessageFilter{UserID: "u1", IsRead: &read, Page: 2, PageSize: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Empty(t, threads)
}

func TestListMatchesAnyListedProvider(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewMessageRepository(db)
	google := newConnection(t, db, "u1")
	token := "access"
	outlook := &domain.MailboxConnection{
		UserID:       "u1",
		Provider:     "outlook",
		EmailAddress: "u1@outlook.example.com",
		AccessToken:  &token,
	}
	require.NoError(t, NewConnectionRepository(db).Create(context.Background(), outlook))
	ctx := context.Background()

	_, err := repo.Upsert(ctx, google, domain.MessageSnapshot{ProviderMessageID: "g", Date: datePtr("2024-01-01")})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, outlook, domain.MessageSnapshot{ProviderMessageID: "o", Date: datePtr("2024-01-02")})
	require.NoError(t, err)

	_, total, err := repo.List(ctx, domain.MessageFilter{UserID: "u1", Providers: []string{domain.ProviderGoogle}, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = repo.List(ctx, domain.MessageFilter{UserID: "u1", Providers: []string{domain.ProviderGoogle, "outlook"}, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	_, total, err = repo.List(ctx, domain.MessageFilter{UserID: "u1", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

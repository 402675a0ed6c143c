package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/repository"
	"postmark-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSyncer struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingSyncer) SyncConnection(ctx context.Context, conn *domain.MailboxConnection, mode domain.SyncMode, maxResults int) (*domain.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, conn.UserID)
	if conn.UserID == "busy" {
		return nil, domain.ErrSyncInProgress
	}
	return &domain.SyncResult{ConnectionID: conn.ID, Mode: mode}, nil
}

func (s *recordingSyncer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func seed(t *testing.T) repository.ConnectionRepository {
	t.Helper()
	conns := repository.NewConnectionRepository(testutil.NewTestDB(t))
	ctx := context.Background()
	for _, userID := range []string{"u1", "busy", "no-creds"} {
		conn := &domain.MailboxConnection{UserID: userID, Provider: domain.ProviderGoogle}
		require.NoError(t, conns.Create(ctx, conn))
		if userID != "no-creds" {
			require.NoError(t, conns.SaveTokens(ctx, conn.ID, domain.Credentials{AccessToken: "a", RefreshToken: "r"}, ""))
		}
	}
	return conns
}

func TestSweepSyncsConnectionsWithCredentials(t *testing.T) {
	syncer := &recordingSyncer{}
	s := NewSyncScheduler(seed(t), syncer, time.Minute)

	s.sweep(context.Background())
	assert.ElementsMatch(t, []string{"u1", "busy"}, syncer.calls)
}

func TestStartRunsUntilStopped(t *testing.T) {
	syncer := &recordingSyncer{}
	s := NewSyncScheduler(seed(t), syncer, 10*time.Millisecond)

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return syncer.count() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	n := syncer.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, syncer.count())
}

func TestZeroIntervalDisablesScheduler(t *testing.T) {
	syncer := &recordingSyncer{}
	s := NewSyncScheduler(seed(t), syncer, 0)

	s.Start(context.Background())
	s.Stop()
	assert.Zero(t, syncer.count())
}

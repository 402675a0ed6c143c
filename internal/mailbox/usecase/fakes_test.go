package usecase

import (
	"context"
	"sync"
	"testing"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/repository"
	"postmark-backend/internal/testutil"

	"github.com/stretchr/testify/require"
)

type mutateCall struct {
	target domain.LabelTarget
	id     string
	add    []string
	remove []string
}

// fakeMailbox is an in-memory RemoteMailbox.
type fakeMailbox struct {
	mu sync.Mutex

	cursor     string
	cursorErr  error
	messages   map[string]*domain.RemoteMessage
	inbox      []string
	threads    map[string][]string
	history    map[string]*domain.HistoryPage // keyed by page token
	historyErr error

	historyCalls int
	fetched      map[string]int
	mutations    []mutateCall
}

func newFakeMailbox(cursor string) *fakeMailbox {
	return &fakeMailbox{
		cursor:   cursor,
		messages: make(map[string]*domain.RemoteMessage),
		threads:  make(map[string][]string),
		history:  make(map[string]*domain.HistoryPage),
		fetched:  make(map[string]int),
	}
}

func (f *fakeMailbox) put(id, threadID, subject string, labels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[id] = &domain.RemoteMessage{
		ID:       id,
		ThreadID: threadID,
		Headers: []domain.MessageHeader{
			{Name: "Subject", Value: subject},
			{Name: "From", Value: "Alice <alice@example.com>"},
			{Name: "To", Value: "bob@example.com"},
			{Name: "Date", Value: "Tue, 02 Jan 2024 10:00:00 +0000"},
		},
		Snippet:  subject,
		LabelIDs: labels,
	}
	if threadID != "" {
		f.threads[threadID] = append(f.threads[threadID], id)
	}
}

func (f *fakeMailbox) GetCursor(ctx context.Context) (string, error) {
	return f.cursor, f.cursorErr
}

func (f *fakeMailbox) ListHistorySince(ctx context.Context, cursor, pageToken string) (*domain.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if page, ok := f.history[pageToken]; ok {
		return page, nil
	}
	return &domain.HistoryPage{}, nil
}

func (f *fakeMailbox) ListInboxIDs(ctx context.Context, limit int) ([]string, error) {
	ids := f.inbox
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return append([]string(nil), ids...), nil
}

func (f *fakeMailbox) GetMessage(ctx context.Context, id string) (*domain.RemoteMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched[id]++
	msg, ok := f.messages[id]
	if !ok {
		return nil, domain.ErrRemoteMessageNotFound
	}
	return msg, nil
}

func (f *fakeMailbox) GetThread(ctx context.Context, threadID string) ([]*domain.RemoteMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.RemoteMessage
	for _, id := range f.threads[threadID] {
		out = append(out, f.messages[id])
	}
	return out, nil
}

func (f *fakeMailbox) MutateLabels(ctx context.Context, target domain.LabelTarget, id string, add, remove []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, mutateCall{target: target, id: id, add: add, remove: remove})

	mutation := domain.LabelMutation{Add: add, Remove: remove}
	if target == domain.TargetThread {
		for _, mid := range f.threads[id] {
			f.messages[mid].LabelIDs = mutation.Apply(f.messages[mid].LabelIDs)
		}
		return nil, nil
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, domain.ErrRemoteMessageNotFound
	}
	msg.LabelIDs = mutation.Apply(msg.LabelIDs)
	return msg.LabelIDs, nil
}

func (f *fakeMailbox) GetMessageBody(ctx context.Context, id string) (*domain.MessageBody, error) {
	return &domain.MessageBody{Content: "<p>body of " + id + "</p>", IsHTML: true}, nil
}

func (f *fakeMailbox) GetProfileAddress(ctx context.Context) (string, error) {
	return "owner@example.com", nil
}

func (f *fakeMailbox) Watch(ctx context.Context, topic string) (*domain.WatchResult, error) {
	return &domain.WatchResult{Cursor: f.cursor}, nil
}

func (f *fakeMailbox) StopWatch(ctx context.Context) error {
	return nil
}

type fakeOpener struct {
	remote domain.RemoteMailbox
	opens  int
}

func (o *fakeOpener) Open(ctx context.Context, creds domain.Credentials, onRefresh domain.TokenUpdateFunc) (domain.RemoteMailbox, error) {
	o.opens++
	return o.remote, nil
}

type fixture struct {
	conns    repository.ConnectionRepository
	messages repository.MessageRepository
	remote   *fakeMailbox
	opener   *fakeOpener
}

func newFixture(t *testing.T, mailboxCursor string) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	remote := newFakeMailbox(mailboxCursor)
	return &fixture{
		conns:    repository.NewConnectionRepository(db),
		messages: repository.NewMessageRepository(db),
		remote:   remote,
		opener:   &fakeOpener{remote: remote},
	}
}

// connection stores a Google connection with an access token and the given cursor ("" for none).
func (f *fixture) connection(t *testing.T, userID, cursor string) *domain.MailboxConnection {
	t.Helper()
	token := "access-" + userID
	conn := &domain.MailboxConnection{
		UserID:       userID,
		Provider:     domain.ProviderGoogle,
		EmailAddress: userID + "@example.com",
		AccessToken:  &token,
	}
	if cursor != "" {
		conn.SyncCursor = &cursor
	}
	require.NoError(t, f.conns.Create(context.Background(), conn))
	return conn
}

func (f *fixture) engine(opts SyncOptions) *SyncEngine {
	return NewSyncEngine(NewTokenStore(f.conns), f.messages, f.opener, opts)
}

func (f *fixture) reload(t *testing.T, id string) *domain.MailboxConnection {
	t.Helper()
	conn, err := f.conns.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, conn)
	return conn
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/dto"
	"postmark-backend/internal/mailbox/repository"
)

const (
	defaultPageSize = 25
	maxPageSize     = 50
)

// mailboxUsecase implements MailboxUsecase interface
type mailboxUsecase struct {
	conns      repository.ConnectionRepository
	messages   repository.MessageRepository
	tokens     TokenStore
	opener     domain.MailboxOpener
	engine     *SyncEngine
	hydrator   *ThreadHydrator
	reconciler *ActionReconciler
	gate       *syncGate
	runTimeout time.Duration
}

// NewMailboxUsecase wires the sync engine, hydrator and reconciler over one set of stores.
func NewMailboxUsecase(
	conns repository.ConnectionRepository,
	messages repository.MessageRepository,
	opener domain.MailboxOpener,
	opts SyncOptions,
	runTimeout time.Duration,
) MailboxUsecase {
	tokens := NewTokenStore(conns)
	return &mailboxUsecase{
		conns:      conns,
		messages:   messages,
		tokens:     tokens,
		opener:     opener,
		engine:     NewSyncEngine(tokens, messages, opener, opts),
		hydrator:   NewThreadHydrator(tokens, messages, opener),
		reconciler: NewActionReconciler(tokens, messages, opener),
		gate:       newSyncGate(),
		runTimeout: runTimeout,
	}
}

func (u *mailboxUsecase) Sync(ctx context.Context, userID string, req *dto.SyncRequest) (*dto.SyncResponse, error) {
	mode, err := domain.ParseSyncMode(req.Mode)
	if err != nil {
		return nil, err
	}
	maxResults := 0
	if req.MaxResults != nil {
		maxResults = *req.MaxResults
		if maxResults < 1 || maxResults > u.engine.MaxResultsCap() {
			return nil, fmt.Errorf("%w: max_results must be between 1 and %d", domain.ErrInvalidSyncRequest, u.engine.MaxResultsCap())
		}
	}

	var targets []*domain.MailboxConnection
	if req.ConnectionID != "" {
		conn, err := u.conns.FindByIDForUser(ctx, req.ConnectionID, userID)
		if err != nil {
			return nil, err
		}
		if conn == nil {
			return nil, domain.ErrConnectionNotFound
		}
		targets = append(targets, conn)
	} else {
		conns, err := u.conns.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, conn := range conns {
			if conn.Provider == domain.ProviderGoogle {
				targets = append(targets, conn)
			}
		}
		if len(targets) == 0 {
			return nil, domain.ErrConnectionNotFound
		}
	}

	resp := &dto.SyncResponse{Results: make([]*domain.SyncResult, 0, len(targets))}
	for _, conn := range targets {
		result, err := u.SyncConnection(ctx, conn, mode, maxResults)
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

func (u *mailboxUsecase) SyncConnection(ctx context.Context, conn *domain.MailboxConnection, mode domain.SyncMode, maxResults int) (*domain.SyncResult, error) {
	if !u.gate.acquire(conn.ID) {
		return nil, domain.ErrSyncInProgress
	}
	defer u.gate.release(conn.ID)

	if u.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.runTimeout)
		defer cancel()
	}
	return u.engine.Run(ctx, conn, mode, maxResults)
}

func normalizePage(filter *domain.MessageFilter) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
}

func (u *mailboxUsecase) ListMessages(ctx context.Context, filter domain.MessageFilter) (*dto.MessageListResponse, error) {
	normalizePage(&filter)
	messages, total, err := u.messages.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &dto.MessageListResponse{
		Messages: messages,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

func (u *mailboxUsecase) ListThreads(ctx context.Context, filter domain.MessageFilter) (*dto.ThreadListResponse, error) {
	normalizePage(&filter)
	threads, total, err := u.messages.ListThreads(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &dto.ThreadListResponse{
		Threads:  threads,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

func (u *mailboxUsecase) GetMessage(ctx context.Context, userID, id string, includeConversation, includeBody bool) (*dto.MessageDetailResponse, error) {
	msg, conn, err := u.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	resp := &dto.MessageDetailResponse{Message: msg}
	if includeConversation && msg.Thread() != "" {
		resp.Conversation, err = u.messages.ListByThread(ctx, conn.ID, msg.Thread())
		if err != nil {
			return nil, err
		}
	}

	if includeBody {
		if conn.Provider != domain.ProviderGoogle {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, conn.Provider)
		}
		creds := u.tokens.Read(conn)
		if creds.Empty() {
			return nil, domain.ErrMissingCredentials
		}
		remote, err := u.opener.Open(ctx, creds, u.tokens.OnRefresh(conn))
		if err != nil {
			return nil, err
		}
		resp.Body, err = remote.GetMessageBody(ctx, msg.ProviderMessageID)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (u *mailboxUsecase) ApplyAction(ctx context.Context, userID, id string, req *dto.ActionRequest) ([]*domain.MessageProjection, error) {
	msg, conn, err := u.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return u.reconciler.Apply(ctx, conn, msg, domain.Action(req.Action), req.ApplyToThread)
}

func (u *mailboxUsecase) HydrateThread(ctx context.Context, userID, messageID string) (int, error) {
	msg, conn, err := u.load(ctx, userID, messageID)
	if err != nil {
		return 0, err
	}
	return u.hydrator.Hydrate(ctx, conn, msg)
}

// load resolves a projection and the connection it was synced through, both owned by userID.
func (u *mailboxUsecase) load(ctx context.Context, userID, id string) (*domain.MessageProjection, *domain.MailboxConnection, error) {
	msg, err := u.messages.FindByID(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if msg == nil {
		return nil, nil, domain.ErrMessageNotFound
	}
	conn, err := u.conns.FindByIDForUser(ctx, msg.ConnectionID, userID)
	if err != nil {
		return nil, nil, err
	}
	if conn == nil {
		return nil, nil, domain.ErrConnectionNotFound
	}
	return msg, conn, nil
}

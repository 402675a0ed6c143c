package gmail

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"postmark-backend/internal/mailbox/domain"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
)

const user = "me"

// metadataHeaders are the only headers fetched for projections.
var metadataHeaders = []string{"Subject", "From", "To", "Date"}

var historyTypes = []string{"messageAdded", "messageDeleted", "labelAdded", "labelRemoved"}

// Client is a RemoteMailbox backed by the Gmail API for one set of credentials.
type Client struct {
	srv     *gmail.Service
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

var _ domain.RemoteMailbox = (*Client)(nil)

func newClient(srv *gmail.Service, breaker *gobreaker.CircuitBreaker, limiter *rate.Limiter) *Client {
	return &Client{srv: srv, breaker: breaker, limiter: limiter}
}

// call runs fn behind the limiter and breaker and returns fn's own error, unclassified.
func (c *Client) call(ctx context.Context, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var callErr error
	_, err := c.breaker.Execute(func() (interface{}, error) {
		callErr = fn()
		if isTransient(callErr) {
			return nil, callErr
		}
		return nil, nil
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (c *Client) GetCursor(ctx context.Context) (string, error) {
	var profile *gmail.Profile
	err := c.call(ctx, func() (err error) {
		profile, err = c.srv.Users.GetProfile(user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", classifyError("get profile", err)
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

func (c *Client) GetProfileAddress(ctx context.Context) (string, error) {
	var profile *gmail.Profile
	err := c.call(ctx, func() (err error) {
		profile, err = c.srv.Users.GetProfile(user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", classifyError("get profile", err)
	}
	return profile.EmailAddress, nil
}

func (c *Client) ListHistorySince(ctx context.Context, cursor, pageToken string) (*domain.HistoryPage, error) {
	start, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil || start == 0 {
		return nil, fmt.Errorf("%w: unparseable cursor %q", domain.ErrCursorExpired, cursor)
	}

	var resp *gmail.ListHistoryResponse
	err = c.call(ctx, func() (err error) {
		req := c.srv.Users.History.List(user).
			StartHistoryId(start).
			HistoryTypes(historyTypes...).
			MaxResults(500).
			Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		resp, err = req.Do()
		return err
	})
	if err != nil {
		if isCursorRejected(err) {
			return nil, fmt.Errorf("gmail list history: %w: %w", domain.ErrCursorExpired, err)
		}
		return nil, classifyError("list history", err)
	}

	page := &domain.HistoryPage{NextPageToken: resp.NextPageToken}
	if resp.HistoryId != 0 {
		page.NextCursor = strconv.FormatUint(resp.HistoryId, 10)
	}
	for _, h := range resp.History {
		for _, a := range h.MessagesAdded {
			page.Entries = appendEntry(page.Entries, domain.HistoryMessageAdded, a.Message)
		}
		for _, l := range h.LabelsAdded {
			page.Entries = appendEntry(page.Entries, domain.HistoryLabelAdded, l.Message)
		}
		for _, l := range h.LabelsRemoved {
			page.Entries = appendEntry(page.Entries, domain.HistoryLabelRemoved, l.Message)
		}
		for _, d := range h.MessagesDeleted {
			page.Entries = appendEntry(page.Entries, domain.HistoryMessageDeleted, d.Message)
		}
	}
	return page, nil
}

func appendEntry(entries []domain.HistoryEntry, kind domain.HistoryKind, msg *gmail.Message) []domain.HistoryEntry {
	if msg == nil || msg.Id == "" {
		return entries
	}
	return append(entries, domain.HistoryEntry{Kind: kind, MessageID: msg.Id})
}

func (c *Client) ListInboxIDs(ctx context.Context, limit int) ([]string, error) {
	var resp *gmail.ListMessagesResponse
	err := c.call(ctx, func() (err error) {
		resp, err = c.srv.Users.Messages.List(user).
			LabelIds(domain.LabelInbox).
			MaxResults(int64(limit)).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, classifyError("list messages", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m.Id != "" {
			ids = append(ids, m.Id)
		}
	}
	return ids, nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (*domain.RemoteMessage, error) {
	var msg *gmail.Message
	err := c.call(ctx, func() (err error) {
		msg, err = c.srv.Users.Messages.Get(user, id).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("gmail get message %s: %w", id, domain.ErrRemoteMessageNotFound)
		}
		return nil, classifyError("get message", err)
	}
	return toRemoteMessage(msg), nil
}

func (c *Client) GetThread(ctx context.Context, threadID string) ([]*domain.RemoteMessage, error) {
	var thread *gmail.Thread
	err := c.call(ctx, func() (err error) {
		thread, err = c.srv.Users.Threads.Get(user, threadID).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, classifyError("get thread", err)
	}

	msgs := make([]*domain.RemoteMessage, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		if m.Id == "" {
			continue
		}
		rm := toRemoteMessage(m)
		if rm.ThreadID == "" {
			rm.ThreadID = threadID
		}
		msgs = append(msgs, rm)
	}
	return msgs, nil
}

func (c *Client) MutateLabels(ctx context.Context, target domain.LabelTarget, id string, add, remove []string) ([]string, error) {
	switch target {
	case domain.TargetMessage:
		var msg *gmail.Message
		err := c.call(ctx, func() (err error) {
			msg, err = c.srv.Users.Messages.Modify(user, id, &gmail.ModifyMessageRequest{
				AddLabelIds:    add,
				RemoveLabelIds: remove,
			}).Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, classifyError("modify message", err)
		}
		return msg.LabelIds, nil
	case domain.TargetThread:
		err := c.call(ctx, func() error {
			_, err := c.srv.Users.Threads.Modify(user, id, &gmail.ModifyThreadRequest{
				AddLabelIds:    add,
				RemoveLabelIds: remove,
			}).Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, classifyError("modify thread", err)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unknown label target %q", target)
}

func (c *Client) GetMessageBody(ctx context.Context, id string) (*domain.MessageBody, error) {
	var msg *gmail.Message
	err := c.call(ctx, func() (err error) {
		msg, err = c.srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("gmail get message %s: %w", id, domain.ErrRemoteMessageNotFound)
		}
		return nil, classifyError("get message body", err)
	}
	if msg.Payload == nil {
		return &domain.MessageBody{}, nil
	}

	content, isHTML := extractBody(msg.Payload)
	if isHTML {
		content = stripScripts(content)
	}
	return &domain.MessageBody{Content: content, IsHTML: isHTML}, nil
}

// Watch (re)starts push notifications for INBOX changes on topic.
func (c *Client) Watch(ctx context.Context, topic string) (*domain.WatchResult, error) {
	// only one watch per mailbox is allowed, so clear any previous one first
	_ = c.call(ctx, func() error {
		return c.srv.Users.Stop(user).Context(ctx).Do()
	})

	var resp *gmail.WatchResponse
	err := c.call(ctx, func() (err error) {
		resp, err = c.srv.Users.Watch(user, &gmail.WatchRequest{
			TopicName: topic,
			LabelIds:  []string{domain.LabelInbox},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, classifyError("watch", err)
	}
	return &domain.WatchResult{
		Cursor:     strconv.FormatUint(resp.HistoryId, 10),
		Expiration: time.UnixMilli(resp.Expiration),
	}, nil
}

func (c *Client) StopWatch(ctx context.Context) error {
	err := c.call(ctx, func() error {
		return c.srv.Users.Stop(user).Context(ctx).Do()
	})
	return classifyError("stop watch", err)
}

func toRemoteMessage(msg *gmail.Message) *domain.RemoteMessage {
	rm := &domain.RemoteMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			rm.Headers = append(rm.Headers, domain.MessageHeader{Name: h.Name, Value: h.Value})
		}
	}
	return rm
}

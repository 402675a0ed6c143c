package domain

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// HistoryKind is the type of one change-log entry.
type HistoryKind string

const (
	HistoryMessageAdded   HistoryKind = "messageAdded"
	HistoryLabelAdded     HistoryKind = "labelAdded"
	HistoryLabelRemoved   HistoryKind = "labelRemoved"
	HistoryMessageDeleted HistoryKind = "messageDeleted"
)

// IsDeletion reports whether the entry removes the message rather than changing it.
func (k HistoryKind) IsDeletion() bool {
	return k == HistoryMessageDeleted
}

type HistoryEntry struct {
	Kind      HistoryKind
	MessageID string
}

// HistoryPage is one page of the remote change log.
type HistoryPage struct {
	Entries       []HistoryEntry
	NextCursor    string
	NextPageToken string
}

type MessageHeader struct {
	Name  string
	Value string
}

// RemoteMessage is message metadata as returned by the provider, before normalization.
type RemoteMessage struct {
	ID       string
	ThreadID string
	Headers  []MessageHeader
	Snippet  string
	LabelIDs []string
}

type MessageBody struct {
	Content string `json:"content"`
	IsHTML  bool   `json:"is_html"`
}

type WatchResult struct {
	Cursor     string    `json:"cursor"`
	Expiration time.Time `json:"expiration"`
}

// RemoteMailbox is the set of provider RPCs the sync subsystem depends on.
type RemoteMailbox interface {
	GetCursor(ctx context.Context) (string, error)
	ListHistorySince(ctx context.Context, cursor, pageToken string) (*HistoryPage, error)
	ListInboxIDs(ctx context.Context, limit int) ([]string, error)
	GetMessage(ctx context.Context, id string) (*RemoteMessage, error)
	GetThread(ctx context.Context, threadID string) ([]*RemoteMessage, error)
	// MutateLabels returns the resulting labels for message targets; thread targets return nil.
	MutateLabels(ctx context.Context, target LabelTarget, id string, add, remove []string) ([]string, error)
	GetMessageBody(ctx context.Context, id string) (*MessageBody, error)
	GetProfileAddress(ctx context.Context) (string, error)
	Watch(ctx context.Context, topic string) (*WatchResult, error)
	StopWatch(ctx context.Context) error
}

// MailboxOpener builds a RemoteMailbox for one connection's credentials.
type MailboxOpener interface {
	Open(ctx context.Context, creds Credentials, onRefresh TokenUpdateFunc) (RemoteMailbox, error)
}

// Authorizer runs the provider OAuth consent flow.
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Scopes() []string
}

package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const (
	LabelUnread = "UNREAD"
	LabelInbox  = "INBOX"
)

// LabelSet is a deduplicated, sorted set of provider label tokens stored as a JSON array.
type LabelSet []string

// NewLabelSet normalizes labels: blanks dropped, duplicates removed, sorted.
func NewLabelSet(labels ...string) LabelSet {
	seen := make(map[string]struct{}, len(labels))
	set := make(LabelSet, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		set = append(set, l)
	}
	sort.Strings(set)
	return set
}

func (s LabelSet) Has(label string) bool {
	for _, l := range s {
		if l == label {
			return true
		}
	}
	return false
}

// Flags derives the read and archived flags. They are never stored independently of the set.
func (s LabelSet) Flags() (isRead, isArchived bool) {
	return !s.Has(LabelUnread), !s.Has(LabelInbox)
}

// Value implements driver.Valuer
func (s LabelSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (s *LabelSet) Scan(value interface{}) error {
	if value == nil {
		*s = LabelSet{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported label set type %T", value)
	}
	if len(bytes) == 0 {
		*s = LabelSet{}
		return nil
	}
	var labels []string
	if err := json.Unmarshal(bytes, &labels); err != nil {
		return err
	}
	*s = NewLabelSet(labels...)
	return nil
}

// MessageProjection is the local metadata copy of one remote message. Bodies are never stored.
type MessageProjection struct {
	ID                string     `json:"id" gorm:"primaryKey"`
	UserID            string     `json:"user_id" gorm:"index;not null"`
	ConnectionID      string     `json:"connection_id" gorm:"not null;uniqueIndex:idx_message_connection_remote;index:idx_message_connection_thread"`
	Provider          string     `json:"provider" gorm:"not null"`
	ProviderMessageID string     `json:"provider_message_id" gorm:"not null;uniqueIndex:idx_message_connection_remote"`
	ThreadID          *string    `json:"thread_id,omitempty" gorm:"index:idx_message_connection_thread"`
	Subject           string     `json:"subject"`
	FromAddress       string     `json:"from"`
	ToAddress         string     `json:"to"`
	Date              *time.Time `json:"date,omitempty" gorm:"index"`
	Snippet           string     `json:"snippet"`
	Labels            LabelSet   `json:"labels" gorm:"type:text"`
	IsRead            bool       `json:"is_read"`
	IsArchived        bool       `json:"is_archived"`
	LastSyncedAt      time.Time  `json:"last_synced_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (MessageProjection) TableName() string {
	return "message_projections"
}

func (m *MessageProjection) Thread() string {
	if m.ThreadID == nil {
		return ""
	}
	return *m.ThreadID
}

// MessageSnapshot is a freshly fetched, normalized view of a remote message.
// It is the only input the projection store accepts for message content.
type MessageSnapshot struct {
	ProviderMessageID string
	ThreadID          string
	Subject           string
	From              string
	To                string
	Date              *time.Time
	Snippet           string
	Labels            []string
}

// SnapshotWithLabels rebuilds a snapshot from a stored projection with a replaced label set.
func SnapshotWithLabels(m *MessageProjection, labels []string) MessageSnapshot {
	return MessageSnapshot{
		ProviderMessageID: m.ProviderMessageID,
		ThreadID:          m.Thread(),
		Subject:           m.Subject,
		From:              m.FromAddress,
		To:                m.ToAddress,
		Date:              m.Date,
		Snippet:           m.Snippet,
		Labels:            labels,
	}
}

// MessageFilter drives inbox and thread listings.
type MessageFilter struct {
	UserID       string
	// Providers matches any of the listed provider tags; empty matches all.
	Providers    []string
	ConnectionID string
	IsRead       *bool
	IsArchived   *bool
	Query        string
	Page         int
	PageSize     int
}

// ThreadSummary is one conversation row: its most recent message plus counts.
type ThreadSummary struct {
	Latest      *MessageProjection `json:"latest"`
	ThreadCount int                `json:"thread_count"`
	UnreadCount int                `json:"unread_count"`
}

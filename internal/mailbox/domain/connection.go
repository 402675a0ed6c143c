package domain

import (
	"time"

	"golang.org/x/oauth2"
)

// ProviderGoogle is the only provider the sync engine understands.
const ProviderGoogle = "google"

// TokenUpdateFunc is called whenever the OAuth client refreshes a token.
type TokenUpdateFunc func(*oauth2.Token) error

// MailboxConnection is one authorized link between a local user and a remote mailbox.
type MailboxConnection struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	UserID        string     `json:"user_id" gorm:"not null;uniqueIndex:idx_connection_user_provider"`
	Provider      string     `json:"provider" gorm:"not null;uniqueIndex:idx_connection_user_provider"`
	EmailAddress  string     `json:"email_address" gorm:"index"`
	AccessToken   *string    `json:"-"`
	RefreshToken  *string    `json:"-"`
	TokenExpiry   *time.Time `json:"-"`
	Scope         *string    `json:"scope,omitempty"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	LastSyncError *string    `json:"last_sync_error,omitempty"`
	SyncCursor    *string    `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (MailboxConnection) TableName() string {
	return "mailbox_connections"
}

// Credentials returns the stored token pair. Empty strings mean absent.
func (c *MailboxConnection) Credentials() Credentials {
	creds := Credentials{}
	if c.AccessToken != nil {
		creds.AccessToken = *c.AccessToken
	}
	if c.RefreshToken != nil {
		creds.RefreshToken = *c.RefreshToken
	}
	if c.TokenExpiry != nil {
		creds.Expiry = *c.TokenExpiry
	}
	return creds
}

// Cursor returns the stored delta cursor, or "" before the first successful sync.
func (c *MailboxConnection) Cursor() string {
	if c.SyncCursor == nil {
		return ""
	}
	return *c.SyncCursor
}

func (c *MailboxConnection) HasRefreshToken() bool {
	return c.RefreshToken != nil && *c.RefreshToken != ""
}

// Credentials is the token pair handed to the remote client.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// SyncState is the bookkeeping written after a sync run.
// Nil SyncedAt and Cursor leave the stored values untouched; nil Error clears it.
type SyncState struct {
	SyncedAt *time.Time
	Error    *string
	Cursor   *string
}

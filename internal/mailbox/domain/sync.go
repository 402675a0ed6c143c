package domain

import (
	"fmt"
	"strings"
)

type SyncMode string

const (
	SyncModeFull  SyncMode = "full"
	SyncModeDelta SyncMode = "delta"
)

// ParseSyncMode accepts "full" or "delta"; empty defaults to delta.
func ParseSyncMode(s string) (SyncMode, error) {
	switch SyncMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SyncModeDelta:
		return SyncModeDelta, nil
	case SyncModeFull:
		return SyncModeFull, nil
	}
	return "", fmt.Errorf("%w: mode must be full or delta, got %q", ErrInvalidSyncRequest, s)
}

// SyncStrategy is the strategy a run actually used.
type SyncStrategy string

const (
	StrategyQuery    SyncStrategy = "query"
	StrategyHistory  SyncStrategy = "history"
	StrategyFallback SyncStrategy = "fallback"
)

const (
	FallbackPageLimit     = "page_limit"
	FallbackCursorExpired = "cursor_expired"
)

// SyncResult summarizes one run for callers and logs.
type SyncResult struct {
	ConnectionID   string       `json:"connection_id"`
	Mode           SyncMode     `json:"mode"`
	Strategy       SyncStrategy `json:"strategy"`
	FellBack       bool         `json:"fell_back"`
	FallbackReason string       `json:"fallback_reason,omitempty"`
	Synced         int          `json:"synced"`
	Deleted        int          `json:"deleted"`
	Skipped        int          `json:"skipped"`
	PreviousCursor string       `json:"previous_cursor,omitempty"`
	MailboxCursor  string       `json:"mailbox_cursor,omitempty"`
	StoredCursor   string       `json:"stored_cursor,omitempty"`
}

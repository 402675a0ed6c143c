package domain

import "errors"

var (
	ErrMissingCredentials  = errors.New("no usable OAuth token for this connection")
	ErrInsufficientScope   = errors.New("mailbox access denied: insufficient authentication scopes")
	ErrInvalidGrant        = errors.New("refresh token is invalid or revoked")
	ErrCursorExpired       = errors.New("sync cursor expired or not found")
	ErrUnsupportedProvider = errors.New("provider is not supported")
	ErrSyncFailed          = errors.New("sync failed")

	ErrSyncInProgress        = errors.New("a sync is already running for this connection")
	ErrConnectionNotFound    = errors.New("mailbox connection not found")
	ErrConnectionExists      = errors.New("a connection for this provider already exists")
	ErrMessageNotFound       = errors.New("message not found")
	ErrRemoteMessageNotFound = errors.New("remote message not found")
	ErrInvalidAction         = errors.New("invalid action")
	ErrInvalidSyncRequest    = errors.New("invalid sync request")
)

// IsAuthError reports whether err means the stored grant cannot be used as-is.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInsufficientScope) ||
		errors.Is(err, ErrInvalidGrant)
}

// Guidance tells the user how to recover from a classified failure. Empty for generic errors.
func Guidance(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "Connect your Google account again to grant mailbox access."
	case errors.Is(err, ErrInsufficientScope):
		return "Reconnect your Google account and approve Gmail access on the consent screen."
	case errors.Is(err, ErrInvalidGrant):
		return "Google access was revoked or expired. Disconnect and reconnect the account."
	case errors.Is(err, ErrUnsupportedProvider):
		return "Only Google accounts can be synced."
	}
	return ""
}

package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"postmark-backend/internal/mailbox/domain"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// classifyError maps Gmail and OAuth failures onto the mailbox error taxonomy.
// The original error stays in the chain for errors.As.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" || strings.Contains(string(retrieveErr.Body), "invalid_grant") {
			return fmt.Errorf("gmail %s: %w: %w", op, domain.ErrInvalidGrant, err)
		}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		switch {
		case apiErr.Code == http.StatusForbidden &&
			(strings.Contains(msg, "insufficient authentication scopes") ||
				hasReason(apiErr, "insufficientPermissions", "ACCESS_TOKEN_SCOPE_INSUFFICIENT")):
			return fmt.Errorf("gmail %s: %w: %w", op, domain.ErrInsufficientScope, err)
		case apiErr.Code == http.StatusUnauthorized,
			apiErr.Code == http.StatusBadRequest && strings.Contains(msg, "invalid_grant"):
			return fmt.Errorf("gmail %s: %w: %w", op, domain.ErrInvalidGrant, err)
		}
	}

	if strings.Contains(strings.ToLower(err.Error()), "invalid_grant") {
		return fmt.Errorf("gmail %s: %w: %w", op, domain.ErrInvalidGrant, err)
	}
	return fmt.Errorf("gmail %s: %w", op, err)
}

// isCursorRejected reports the History API's answer for an expired or unknown startHistoryId.
func isCursorRejected(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return apiErr.Code == http.StatusBadRequest &&
		(strings.Contains(msg, "starthistoryid") || strings.Contains(msg, "start history id"))
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// isTransient decides which failures count against the circuit breaker: server errors,
// throttling and transport failures. Client errors and auth failures never trip it.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, r := range reasons {
			if strings.EqualFold(item.Reason, r) {
				return true
			}
		}
	}
	for _, r := range reasons {
		if strings.Contains(apiErr.Body, r) {
			return true
		}
	}
	return false
}

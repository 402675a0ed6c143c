package usecase

import (
	"strings"
	"time"

	"postmark-backend/internal/mailbox/domain"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// snapshotFromRemote normalizes provider metadata into a projection snapshot.
// Header names match case-insensitively; encoded words are decoded; a missing or
// unparseable Date yields a nil date.
func snapshotFromRemote(rm *domain.RemoteMessage) domain.MessageSnapshot {
	var h mail.Header
	for _, hdr := range rm.Headers {
		// first occurrence wins
		if !h.Has(hdr.Name) {
			h.Set(hdr.Name, hdr.Value)
		}
	}

	snap := domain.MessageSnapshot{
		ProviderMessageID: rm.ID,
		ThreadID:          rm.ThreadID,
		Subject:           headerText(&h, "Subject"),
		From:              headerText(&h, "From"),
		To:                headerText(&h, "To"),
		Snippet:           rm.Snippet,
		Labels:            rm.LabelIDs,
	}
	if h.Has("Date") {
		if date, err := h.Date(); err == nil && !date.IsZero() {
			d := date.UTC().Truncate(time.Second)
			snap.Date = &d
		}
	}
	return snap
}

func headerText(h *mail.Header, key string) string {
	value, err := h.Text(key)
	if err != nil {
		value = h.Get(key)
	}
	return strings.TrimSpace(value)
}

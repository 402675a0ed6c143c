package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelSetNormalizes(t *testing.T) {
	set := NewLabelSet("INBOX", "", "UNREAD", "INBOX", "CATEGORY_UPDATES")
	assert.Equal(t, LabelSet{"CATEGORY_UPDATES", "INBOX", "UNREAD"}, set)
}

func TestLabelSetFlags(t *testing.T) {
	tests := []struct {
		name         string
		labels       []string
		wantRead     bool
		wantArchived bool
	}{
		{"unread in inbox", []string{LabelInbox, LabelUnread}, false, false},
		{"read in inbox", []string{LabelInbox}, true, false},
		{"unread archived", []string{LabelUnread}, false, true},
		{"read archived", nil, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isRead, isArchived := NewLabelSet(tt.labels...).Flags()
			assert.Equal(t, tt.wantRead, isRead)
			assert.Equal(t, tt.wantArchived, isArchived)
		})
	}
}

func TestLabelSetScan(t *testing.T) {
	var set LabelSet
	require.NoError(t, set.Scan(`["UNREAD","INBOX","UNREAD"]`))
	assert.Equal(t, LabelSet{"INBOX", "UNREAD"}, set)

	require.NoError(t, set.Scan(nil))
	assert.Empty(t, set)

	assert.Error(t, set.Scan(42))
}

func TestActionMutation(t *testing.T) {
	tests := []struct {
		action Action
		start  []string
		want   LabelSet
	}{
		{ActionMarkRead, []string{LabelInbox, LabelUnread}, LabelSet{LabelInbox}},
		{ActionMarkUnread, []string{LabelInbox}, LabelSet{LabelInbox, LabelUnread}},
		{ActionArchive, []string{LabelInbox, "STARRED"}, LabelSet{"STARRED"}},
		{ActionUnarchive, []string{"STARRED"}, LabelSet{LabelInbox, "STARRED"}},
		{ActionMarkUnread, []string{LabelUnread}, LabelSet{LabelUnread}},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			m, err := tt.action.Mutation()
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Apply(tt.start))
		})
	}
}

func TestActionMutationRejectsUnknown(t *testing.T) {
	_, err := Action("star").Mutation()
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestParseSyncMode(t *testing.T) {
	mode, err := ParseSyncMode("")
	require.NoError(t, err)
	assert.Equal(t, SyncModeDelta, mode)

	mode, err = ParseSyncMode(" Full ")
	require.NoError(t, err)
	assert.Equal(t, SyncModeFull, mode)

	_, err = ParseSyncMode("partial")
	assert.ErrorIs(t, err, ErrInvalidSyncRequest)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(fmt.Errorf("gmail get profile: %w: boom", ErrInsufficientScope)))
	assert.True(t, IsAuthError(ErrInvalidGrant))
	assert.True(t, IsAuthError(ErrMissingCredentials))
	assert.False(t, IsAuthError(ErrCursorExpired))
	assert.False(t, IsAuthError(errors.New("network down")))
}

func TestGuidance(t *testing.T) {
	assert.NotEmpty(t, Guidance(fmt.Errorf("wrap: %w", ErrInvalidGrant)))
	assert.NotEmpty(t, Guidance(ErrInsufficientScope))
	assert.Empty(t, Guidance(errors.New("generic")))
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"postmark-backend/internal/mailbox/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// threadScanLimit bounds how many recent messages are grouped into conversations per listing.
const threadScanLimit = 1000

// upsertColumns are replaced together on conflict; id, user and created_at are kept.
var upsertColumns = []string{
	"thread_id", "subject", "from_address", "to_address", "date", "snippet",
	"labels", "is_read", "is_archived", "last_synced_at", "updated_at",
}

// messageRepository implements MessageRepository interface
type messageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMessageRepository creates a new instance of messageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db, now: time.Now}
}

func (r *messageRepository) Upsert(ctx context.Context, conn *domain.MailboxConnection, snap domain.MessageSnapshot) (*domain.MessageProjection, error) {
	if snap.ProviderMessageID == "" {
		return nil, errors.New("upsert message: empty remote id")
	}

	labels := domain.NewLabelSet(snap.Labels...)
	isRead, isArchived := labels.Flags()
	now := r.now()

	var threadID *string
	if snap.ThreadID != "" {
		t := snap.ThreadID
		threadID = &t
	}

	msg := &domain.MessageProjection{
		ID:                uuid.New().String(),
		UserID:            conn.UserID,
		ConnectionID:      conn.ID,
		Provider:          conn.Provider,
		ProviderMessageID: snap.ProviderMessageID,
		ThreadID:          threadID,
		Subject:           snap.Subject,
		FromAddress:       snap.From,
		ToAddress:         snap.To,
		Date:              snap.Date,
		Snippet:           snap.Snippet,
		Labels:            labels,
		IsRead:            isRead,
		IsArchived:        isArchived,
		LastSyncedAt:      now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connection_id"}, {Name: "provider_message_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(msg).Error
	if err != nil {
		return nil, fmt.Errorf("upsert message %s: %w", snap.ProviderMessageID, err)
	}

	return r.FindByRemoteID(ctx, conn.ID, snap.ProviderMessageID)
}

func (r *messageRepository) DeleteByRemoteIDs(ctx context.Context, connectionID string, remoteIDs []string) (int64, error) {
	if len(remoteIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("connection_id = ? AND provider_message_id IN ?", connectionID, remoteIDs).
		Delete(&domain.MessageProjection{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete messages: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *messageRepository) ListByThread(ctx context.Context, connectionID, threadID string) ([]*domain.MessageProjection, error) {
	var msgs []*domain.MessageProjection
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND thread_id = ?", connectionID, threadID).
		Order("CASE WHEN date IS NULL THEN 1 ELSE 0 END, date ASC, created_at ASC, id ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepository) FindByID(ctx context.Context, userID, id string) (*domain.MessageProjection, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID))
}

func (r *messageRepository) FindByRemoteID(ctx context.Context, connectionID, remoteID string) (*domain.MessageProjection, error) {
	return r.first(r.db.WithContext(ctx).Where("connection_id = ? AND provider_message_id = ?", connectionID, remoteID))
}

func (r *messageRepository) first(query *gorm.DB) (*domain.MessageProjection, error) {
	var msg domain.MessageProjection
	if err := query.First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) filtered(ctx context.Context, filter domain.MessageFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&domain.MessageProjection{}).Where("user_id = ?", filter.UserID)
	if len(filter.Providers) > 0 {
		query = query.Where("provider IN ?", filter.Providers)
	}
	if filter.ConnectionID != "" {
		query = query.Where("connection_id = ?", filter.ConnectionID)
	}
	if filter.IsRead != nil {
		query = query.Where("is_read = ?", *filter.IsRead)
	}
	if filter.IsArchived != nil {
		query = query.Where("is_archived = ?", *filter.IsArchived)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(subject) LIKE ? OR LOWER(from_address) LIKE ? OR LOWER(to_address) LIKE ? OR LOWER(snippet) LIKE ?",
			like, like, like, like,
		)
	}
	return query
}

const newestFirst = "CASE WHEN date IS NULL THEN 1 ELSE 0 END, date DESC, created_at DESC, id DESC"

func (r *messageRepository) List(ctx context.Context, filter domain.MessageFilter) ([]*domain.MessageProjection, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var msgs []*domain.MessageProjection
	err := r.filtered(ctx, filter).
		Order(newestFirst).
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&msgs).Error
	return msgs, total, err
}

type threadCountRow struct {
	ConnectionID string
	ThreadID     string
	ThreadCount  int
	UnreadCount  int
}

func threadKey(connectionID, threadID string) string {
	return connectionID + ":" + threadID
}

// ListThreads groups the newest matching messages into conversations. The read filter applies
// to whole threads: read means no unread member, unread means at least one.
func (r *messageRepository) ListThreads(ctx context.Context, filter domain.MessageFilter) ([]*domain.ThreadSummary, int64, error) {
	scan := filter
	scan.IsRead = nil

	var recent []*domain.MessageProjection
	if err := r.filtered(ctx, scan).Order(newestFirst).Limit(threadScanLimit).Find(&recent).Error; err != nil {
		return nil, 0, err
	}

	// Rows arrive newest first, so the first row seen for a key is the thread's latest message.
	var groups []*domain.ThreadSummary
	seen := make(map[string]struct{}, len(recent))
	for _, m := range recent {
		key := threadKey(m.ConnectionID, m.Thread())
		if m.ThreadID == nil {
			key = m.ConnectionID + ":msg:" + m.ID
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unread := 0
		if !m.IsRead {
			unread = 1
		}
		groups = append(groups, &domain.ThreadSummary{Latest: m, ThreadCount: 1, UnreadCount: unread})
	}

	if filter.IsRead != nil {
		if err := r.fillCounts(ctx, filter.UserID, groups); err != nil {
			return nil, 0, err
		}
		kept := groups[:0]
		for _, g := range groups {
			if (g.UnreadCount == 0) == *filter.IsRead {
				kept = append(kept, g)
			}
		}
		groups = kept
	}

	total := int64(len(groups))
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(groups) {
		return []*domain.ThreadSummary{}, total, nil
	}
	end := start + filter.PageSize
	if end > len(groups) {
		end = len(groups)
	}
	page := groups[start:end]

	if filter.IsRead == nil {
		if err := r.fillCounts(ctx, filter.UserID, page); err != nil {
			return nil, 0, err
		}
	}
	return page, total, nil
}

// fillCounts sets ThreadCount and UnreadCount over every stored member of each threaded group.
func (r *messageRepository) fillCounts(ctx context.Context, userID string, groups []*domain.ThreadSummary) error {
	var connectionIDs, threadIDs []string
	for _, g := range groups {
		if g.Latest.ThreadID != nil {
			connectionIDs = append(connectionIDs, g.Latest.ConnectionID)
			threadIDs = append(threadIDs, *g.Latest.ThreadID)
		}
	}
	if len(threadIDs) == 0 {
		return nil
	}

	var counts []threadCountRow
	err := r.db.WithContext(ctx).Model(&domain.MessageProjection{}).
		Select("connection_id, thread_id, COUNT(*) AS thread_count, SUM(CASE WHEN is_read THEN 0 ELSE 1 END) AS unread_count").
		Where("user_id = ? AND connection_id IN ? AND thread_id IN ?", userID, connectionIDs, threadIDs).
		Group("connection_id, thread_id").
		Scan(&counts).Error
	if err != nil {
		return err
	}

	byKey := make(map[string]threadCountRow, len(counts))
	for _, c := range counts {
		byKey[threadKey(c.ConnectionID, c.ThreadID)] = c
	}
	for _, g := range groups {
		if g.Latest.ThreadID == nil {
			continue
		}
		if c, ok := byKey[threadKey(g.Latest.ConnectionID, *g.Latest.ThreadID)]; ok {
			g.ThreadCount = c.ThreadCount
			g.UnreadCount = c.UnreadCount
		}
	}
	return nil
}

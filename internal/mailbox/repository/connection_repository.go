package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postmark-backend/internal/mailbox/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// connectionRepository implements ConnectionRepository interface
type connectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new instance of connectionRepository
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) Create(ctx context.Context, conn *domain.MailboxConnection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(conn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConnectionExists
		}
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) FindByID(ctx context.Context, id string) (*domain.MailboxConnection, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *connectionRepository) FindByIDForUser(ctx context.Context, id, userID string) (*domain.MailboxConnection, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID))
}

func (r *connectionRepository) FindByUserAndProvider(ctx context.Context, userID, provider string) (*domain.MailboxConnection, error) {
	return r.first(r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider))
}

func (r *connectionRepository) first(query *gorm.DB) (*domain.MailboxConnection, error) {
	var conn domain.MailboxConnection
	if err := query.First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) ListByUser(ctx context.Context, userID string) ([]*domain.MailboxConnection, error) {
	var conns []*domain.MailboxConnection
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&conns).Error
	return conns, err
}

func (r *connectionRepository) ListByEmailAddress(ctx context.Context, provider, address string) ([]*domain.MailboxConnection, error) {
	var conns []*domain.MailboxConnection
	err := r.db.WithContext(ctx).
		Where("provider = ? AND LOWER(email_address) = LOWER(?)", provider, address).
		Find(&conns).Error
	return conns, err
}

func (r *connectionRepository) ListWithCredentials(ctx context.Context, provider string) ([]*domain.MailboxConnection, error) {
	var conns []*domain.MailboxConnection
	err := r.db.WithContext(ctx).
		Where("provider = ?", provider).
		Where("(access_token IS NOT NULL AND access_token <> '') OR (refresh_token IS NOT NULL AND refresh_token <> '')").
		Order("created_at ASC").
		Find(&conns).Error
	return conns, err
}

func (r *connectionRepository) SaveTokens(ctx context.Context, id string, creds domain.Credentials, scope string) error {
	updates := map[string]interface{}{
		"access_token": creds.AccessToken,
		"updated_at":   time.Now(),
	}
	if creds.RefreshToken != "" {
		updates["refresh_token"] = creds.RefreshToken
	}
	if !creds.Expiry.IsZero() {
		updates["token_expiry"] = creds.Expiry
	}
	if scope != "" {
		updates["scope"] = scope
	}
	return r.db.WithContext(ctx).Model(&domain.MailboxConnection{}).Where("id = ?", id).Updates(updates).Error
}

func (r *connectionRepository) UpdateSyncState(ctx context.Context, id string, state domain.SyncState) error {
	var lastError interface{}
	if state.Error != nil {
		lastError = *state.Error
	}
	updates := map[string]interface{}{
		"last_sync_error": lastError,
		"updated_at":      time.Now(),
	}
	if state.SyncedAt != nil {
		updates["last_synced_at"] = *state.SyncedAt
	}
	if state.Cursor != nil {
		updates["sync_cursor"] = *state.Cursor
	}
	return r.db.WithContext(ctx).Model(&domain.MailboxConnection{}).Where("id = ?", id).Updates(updates).Error
}

func (r *connectionRepository) Delete(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("connection_id = ?", id).Delete(&domain.MessageProjection{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.MailboxConnection{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}

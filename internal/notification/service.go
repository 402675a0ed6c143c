package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	authrepo "postmark-backend/internal/auth/repository"
	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/repository"
	"postmark-backend/pkg/fcm"
	"postmark-backend/pkg/logger"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var log = logger.For("pubsub")

// GmailNotification is the payload Gmail publishes for a watched mailbox.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Syncer runs one delta sync for a connection.
type Syncer interface {
	SyncConnection(ctx context.Context, conn *domain.MailboxConnection, mode domain.SyncMode, maxResults int) (*domain.SyncResult, error)
}

// Pusher delivers a notification to devices and reports the tokens that failed.
type Pusher interface {
	SendToDevices(ctx context.Context, tokens []string, notification fcm.NotificationData) ([]string, error)
}

// Service turns Gmail push notifications into delta syncs and device pushes.
type Service struct {
	pubsubClient *pubsub.Client
	conns        repository.ConnectionRepository
	devices      authrepo.DeviceTokenRepository
	pusher       Pusher
	syncer       Syncer
	topicName    string
	subName      string
	inboxLink    string

	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(ctx context.Context, projectID, topicName, credentialsFile, frontendURL string, conns repository.ConnectionRepository, devices authrepo.DeviceTokenRepository, pusher Pusher, syncer Syncer) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	s := newService(conns, devices, pusher, syncer)
	s.pubsubClient = client
	s.topicName = topicName
	s.subName = topicName + "-sub"
	if frontendURL != "" {
		s.inboxLink = strings.TrimRight(frontendURL, "/") + "/inbox"
	}
	return s, nil
}

func newService(conns repository.ConnectionRepository, devices authrepo.DeviceTokenRepository, pusher Pusher, syncer Syncer) *Service {
	return &Service{
		conns:         conns,
		devices:       devices,
		pusher:        pusher,
		syncer:        syncer,
		lastHistoryID: make(map[string]uint64),
	}
}

// Start blocks receiving notifications until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	entry := log.WithFields(logrus.Fields{"topic": s.topicName, "subscription": s.subName})
	entry.Info("starting notification listener")

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive notifications: %w", err)
	}
	entry.Info("notification listener stopped")
	return nil
}

func (s *Service) Close() error {
	if s.pubsubClient == nil {
		return nil
	}
	return s.pubsubClient.Close()
}

func (s *Service) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription: %w", err)
	}
	if exists {
		return sub, nil
	}

	topic := s.pubsubClient.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist", s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	log.WithField("subscription", s.subName).Info("created subscription")
	return sub, nil
}

func (s *Service) handleMessage(ctx context.Context, data []byte) {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		log.WithError(err).Warn("failed to unmarshal notification")
		return
	}

	conns, err := s.conns.ListByEmailAddress(ctx, domain.ProviderGoogle, notification.EmailAddress)
	if err != nil {
		log.WithError(err).Error("failed to look up connections")
		return
	}
	if len(conns) == 0 {
		log.WithField("email", notification.EmailAddress).Debug("no connection for notification")
		return
	}

	for _, conn := range conns {
		if s.seen(conn.ID, notification.HistoryID) {
			log.WithFields(logrus.Fields{
				"connection_id": conn.ID,
				"history_id":    notification.HistoryID,
			}).Debug("skipping duplicate notification")
			continue
		}
		if s.syncAndNotify(ctx, conn, notification) {
			s.markSeen(conn.ID, notification.HistoryID)
		}
	}
}

// seen reports whether historyID is not newer than the last one synced for the connection.
func (s *Service) seen(connectionID string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastHistoryID[connectionID]
	return ok && historyID <= last
}

// markSeen records historyID once a sync covering it has completed.
func (s *Service) markSeen(connectionID string, historyID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if historyID > s.lastHistoryID[connectionID] {
		s.lastHistoryID[connectionID] = historyID
	}
}

// syncAndNotify reports whether the sync itself completed; push failures do not count.
func (s *Service) syncAndNotify(ctx context.Context, conn *domain.MailboxConnection, notification GmailNotification) bool {
	entry := log.WithField("connection_id", conn.ID)

	result, err := s.syncer.SyncConnection(ctx, conn, domain.SyncModeDelta, 0)
	if errors.Is(err, domain.ErrSyncInProgress) {
		entry.Debug("sync already running, notification left unrecorded")
		return false
	}
	if err != nil {
		entry.WithError(err).Warn("push-triggered sync failed")
		return false
	}
	if result.Synced > 0 && s.pusher != nil {
		s.notifyDevices(ctx, entry, conn, notification, result.Synced)
	}
	return true
}

func (s *Service) notifyDevices(ctx context.Context, entry *logrus.Entry, conn *domain.MailboxConnection, notification GmailNotification, synced int) {
	devices, err := s.devices.ListByUser(ctx, conn.UserID)
	if err != nil {
		entry.WithError(err).Warn("failed to load device tokens")
		return
	}
	if len(devices) == 0 {
		return
	}
	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.Token)
	}

	failed, err := s.pusher.SendToDevices(ctx, tokens, fcm.NotificationData{
		Title: "New mail",
		Body:  fmt.Sprintf("%d new or updated messages in %s", synced, conn.EmailAddress),
		Link:  s.inboxLink,
		Data: map[string]string{
			"type":          "mailbox_sync",
			"connection_id": conn.ID,
			"email":         notification.EmailAddress,
			"history_id":    fmt.Sprintf("%d", notification.HistoryID),
			"synced":        fmt.Sprintf("%d", synced),
		},
	})
	if err != nil {
		entry.WithError(err).Warn("failed to send push notification")
		return
	}
	for _, token := range failed {
		if err := s.devices.Delete(ctx, token); err != nil {
			entry.WithError(err).Warn("failed to remove stale device token")
		}
	}
}

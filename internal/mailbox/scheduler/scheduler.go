package scheduler

import (
	"context"
	"errors"
	"time"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/repository"
	"postmark-backend/pkg/logger"
)

var log = logger.For("scheduler")

// Syncer runs one delta sync for a connection.
type Syncer interface {
	SyncConnection(ctx context.Context, conn *domain.MailboxConnection, mode domain.SyncMode, maxResults int) (*domain.SyncResult, error)
}

// SyncScheduler periodically runs a delta sync for every connection holding credentials.
type SyncScheduler struct {
	conns    repository.ConnectionRepository
	syncer   Syncer
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

func NewSyncScheduler(conns repository.ConnectionRepository, syncer Syncer, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		conns:    conns,
		syncer:   syncer,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler loop. A zero interval disables it.
func (s *SyncScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		log.Info("sync interval not set, scheduler disabled")
		close(s.done)
		return
	}

	log.WithField("interval", s.interval).Info("starting sync scheduler")
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stopChan:
				log.Info("scheduler stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *SyncScheduler) Stop() {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	<-s.done
}

func (s *SyncScheduler) sweep(ctx context.Context) {
	conns, err := s.conns.ListWithCredentials(ctx, domain.ProviderGoogle)
	if err != nil {
		log.WithError(err).Error("failed to list connections")
		return
	}

	var synced, failed int
	for _, conn := range conns {
		if ctx.Err() != nil {
			return
		}
		_, err := s.syncer.SyncConnection(ctx, conn, domain.SyncModeDelta, 0)
		switch {
		case errors.Is(err, domain.ErrSyncInProgress):
		case err != nil:
			failed++
			log.WithError(err).WithField("connection_id", conn.ID).Warn("scheduled sync failed")
		default:
			synced++
		}
	}
	log.WithField("synced", synced).WithField("failed", failed).Debug("sweep finished")
}

package app

import (
	authRepo "postmark-backend/internal/auth/repository"
	authUsecase "postmark-backend/internal/auth/usecase"
	mailboxRepo "postmark-backend/internal/mailbox/repository"
	mailboxUsecase "postmark-backend/internal/mailbox/usecase"
	"postmark-backend/pkg/gmail"

	"gorm.io/gorm"
)

// services is the dependency graph shared by serve and sync.
type services struct {
	users       authRepo.UserRepository
	devices     authRepo.DeviceTokenRepository
	connections mailboxRepo.ConnectionRepository
	messages    mailboxRepo.MessageRepository
	gmail       *gmail.Service
	auth        authUsecase.AuthUsecase
	mailbox     mailboxUsecase.MailboxUsecase
	accounts    mailboxUsecase.AccountUsecase
}

func buildServices(db *gorm.DB) *services {
	s := &services{
		users:       authRepo.NewUserRepository(db),
		devices:     authRepo.NewDeviceTokenRepository(db),
		connections: mailboxRepo.NewConnectionRepository(db),
		messages:    mailboxRepo.NewMessageRepository(db),
		gmail: gmail.NewService(gmail.Config{
			ClientID:          cfg.GoogleClientID,
			ClientSecret:      cfg.GoogleClientSecret,
			RedirectURL:       cfg.GoogleRedirectURI,
			RequestsPerSecond: cfg.GmailRequestsPerSecond,
		}),
	}

	s.auth = authUsecase.NewAuthUsecase(s.users, s.devices, cfg)
	s.mailbox = mailboxUsecase.NewMailboxUsecase(s.connections, s.messages, s.gmail, mailboxUsecase.SyncOptions{
		DefaultMaxResults: cfg.Sync.DefaultMaxResults,
		MaxResultsCap:     cfg.Sync.MaxResultsCap,
		MaxHistoryPages:   cfg.Sync.MaxHistoryPages,
		FetchConcurrency:  cfg.Sync.FetchConcurrency,
	}, cfg.Sync.RunTimeout)

	watchTopic := ""
	if cfg.GoogleProjectID != "" {
		watchTopic = cfg.PubSubTopicPath()
	}
	s.accounts = mailboxUsecase.NewAccountUsecase(s.connections, s.gmail, s.gmail, s.auth, watchTopic)
	return s
}

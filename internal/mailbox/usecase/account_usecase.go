package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/internal/mailbox/dto"
	"postmark-backend/internal/mailbox/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// accountUsecase implements AccountUsecase interface
type accountUsecase struct {
	conns      repository.ConnectionRepository
	tokens     TokenStore
	opener     domain.MailboxOpener
	authorizer domain.Authorizer
	signer     StateSigner
	watchTopic string
}

// NewAccountUsecase creates a new instance of accountUsecase. An empty watchTopic disables push.
func NewAccountUsecase(
	conns repository.ConnectionRepository,
	opener domain.MailboxOpener,
	authorizer domain.Authorizer,
	signer StateSigner,
	watchTopic string,
) AccountUsecase {
	return &accountUsecase{
		conns:      conns,
		tokens:     NewTokenStore(conns),
		opener:     opener,
		authorizer: authorizer,
		signer:     signer,
		watchTopic: watchTopic,
	}
}

func (u *accountUsecase) ListConnections(ctx context.Context, userID string) ([]dto.ConnectionResponse, error) {
	conns, err := u.conns.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		resp = append(resp, dto.NewConnectionResponse(c))
	}
	return resp, nil
}

func (u *accountUsecase) ConnectURL(userID string) (string, error) {
	state, err := u.signer.SignState(userID)
	if err != nil {
		return "", err
	}
	return u.authorizer.AuthCodeURL(state), nil
}

func (u *accountUsecase) CompleteConnect(ctx context.Context, state, code string) (*domain.MailboxConnection, error) {
	userID, err := u.signer.VerifyState(state)
	if err != nil {
		return nil, err
	}

	token, err := u.authorizer.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	creds := domain.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}

	remote, err := u.opener.Open(ctx, creds, nil)
	if err != nil {
		return nil, err
	}
	address, err := remote.GetProfileAddress(ctx)
	if err != nil {
		return nil, err
	}
	scope := grantedScope(token, u.authorizer.Scopes())

	existing, err := u.conns.FindByUserAndProvider(ctx, userID, domain.ProviderGoogle)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !strings.EqualFold(existing.EmailAddress, address) {
			return nil, fmt.Errorf("%w: already linked to %s", domain.ErrConnectionExists, existing.EmailAddress)
		}
		if err := u.conns.SaveTokens(ctx, existing.ID, creds, scope); err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"connection_id": existing.ID, "user_id": userID}).Info("mailbox connection reauthorized")
		return u.conns.FindByID(ctx, existing.ID)
	}

	conn := &domain.MailboxConnection{
		UserID:       userID,
		Provider:     domain.ProviderGoogle,
		EmailAddress: address,
		Scope:        &scope,
	}
	if creds.AccessToken != "" {
		conn.AccessToken = &creds.AccessToken
	}
	if creds.RefreshToken != "" {
		conn.RefreshToken = &creds.RefreshToken
	}
	if !creds.Expiry.IsZero() {
		conn.TokenExpiry = &creds.Expiry
	}
	if err := u.conns.Create(ctx, conn); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"connection_id": conn.ID, "user_id": userID}).Info("mailbox connected")
	return conn, nil
}

// grantedScope prefers the scope Google reports on the token response.
func grantedScope(token *oauth2.Token, requested []string) string {
	if s, ok := token.Extra("scope").(string); ok && s != "" {
		return s
	}
	return strings.Join(requested, " ")
}

func (u *accountUsecase) Disconnect(ctx context.Context, userID, provider string) error {
	conn, err := u.conns.FindByUserAndProvider(ctx, userID, provider)
	if err != nil {
		return err
	}
	if conn == nil {
		return domain.ErrConnectionNotFound
	}

	if u.watchTopic != "" {
		if err := u.stopWatch(ctx, conn); err != nil {
			log.WithError(err).WithField("connection_id", conn.ID).Warn("failed to stop watch before disconnect")
		}
	}

	removed, err := u.conns.Delete(ctx, conn.ID)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"connection_id": conn.ID, "messages_removed": removed}).Info("mailbox disconnected")
	return nil
}

func (u *accountUsecase) StartWatch(ctx context.Context, userID, connectionID string) (*domain.WatchResult, error) {
	if u.watchTopic == "" {
		return nil, errors.New("push notifications are not configured")
	}
	conn, err := u.owned(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	remote, err := u.open(ctx, conn)
	if err != nil {
		return nil, err
	}
	return remote.Watch(ctx, u.watchTopic)
}

func (u *accountUsecase) StopWatch(ctx context.Context, userID, connectionID string) error {
	conn, err := u.owned(ctx, userID, connectionID)
	if err != nil {
		return err
	}
	return u.stopWatch(ctx, conn)
}

func (u *accountUsecase) stopWatch(ctx context.Context, conn *domain.MailboxConnection) error {
	remote, err := u.open(ctx, conn)
	if err != nil {
		return err
	}
	return remote.StopWatch(ctx)
}

func (u *accountUsecase) owned(ctx context.Context, userID, connectionID string) (*domain.MailboxConnection, error) {
	conn, err := u.conns.FindByIDForUser(ctx, connectionID, userID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.ErrConnectionNotFound
	}
	return conn, nil
}

func (u *accountUsecase) open(ctx context.Context, conn *domain.MailboxConnection) (domain.RemoteMailbox, error) {
	if conn.Provider != domain.ProviderGoogle {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, conn.Provider)
	}
	creds := u.tokens.Read(conn)
	if creds.Empty() {
		return nil, domain.ErrMissingCredentials
	}
	return u.opener.Open(ctx, creds, u.tokens.OnRefresh(conn))
}

package gmail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"postmark-backend/internal/mailbox/domain"
	"postmark-backend/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

var log = logger.For("gmail")

const userinfoEmailScope = "https://www.googleapis.com/auth/userinfo.email"

// Config carries the OAuth client identity and request budget. It is passed in explicitly;
// nothing in this package reads the environment.
type Config struct {
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	RequestsPerSecond float64
}

// Service opens per-connection Gmail clients that share one circuit breaker and rate limiter.
type Service struct {
	oauth   *oauth2.Config
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

var (
	_ domain.MailboxOpener = (*Service)(nil)
	_ domain.Authorizer    = (*Service)(nil)
)

func NewService(cfg Config) *Service {
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gmail.GmailModifyScope, userinfoEmailScope},
			Endpoint:     google.Endpoint,
		},
		breaker: newBreaker(),
		limiter: newLimiter(cfg.RequestsPerSecond),
	}
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithField("breaker", name).Warnf("circuit breaker state %s -> %s", from, to)
		},
	})
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// notifyTokenSource reports every refreshed token to callback so it can be persisted.
type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback domain.TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.current == nil || s.current.AccessToken != t.AccessToken {
		s.current = t
		if s.callback != nil {
			if err := s.callback(t); err != nil {
				log.WithError(err).Warn("failed to persist refreshed token")
			}
		}
	}
	return t, nil
}

// Open builds a client for one connection. A refresh token with unknown expiry is refreshed
// on first use so stale access tokens never reach the API.
func (s *Service) Open(ctx context.Context, creds domain.Credentials, onRefresh domain.TokenUpdateFunc) (domain.RemoteMailbox, error) {
	if creds.Empty() {
		return nil, domain.ErrMissingCredentials
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}
	if creds.RefreshToken != "" && (creds.AccessToken == "" || creds.Expiry.IsZero()) {
		token.Expiry = time.Now()
	}

	src := &notifyTokenSource{
		src:      s.oauth.TokenSource(ctx, token),
		current:  token,
		callback: onRefresh,
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, src)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return newClient(srv, s.breaker, s.limiter), nil
}

func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyError("exchange code", err)
	}
	return token, nil
}

func (s *Service) Scopes() []string {
	return append([]string(nil), s.oauth.Scopes...)
}

package usecase

import (
	"context"
	"testing"
	"time"

	authdto "postmark-backend/internal/auth/dto"
	"postmark-backend/internal/auth/repository"
	"postmark-backend/internal/testutil"
	"postmark-backend/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthUsecase(t *testing.T) AuthUsecase {
	t.Helper()
	db := testutil.NewTestDB(t)
	return NewAuthUsecase(repository.NewUserRepository(db), repository.NewDeviceTokenRepository(db), &config.Config{
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  time.Minute,
		JWTRefreshExpiry: time.Hour,
	})
}

func TestRegisterThenLogin(t *testing.T) {
	u := newAuthUsecase(t)
	ctx := context.Background()

	tokens, err := u.Register(ctx, &authdto.RegisterRequest{Email: " Ann@Example.com ", Password: "secret1", Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", tokens.User.Email)

	user, err := u.ValidateToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tokens.User.ID, user.ID)

	_, err = u.Register(ctx, &authdto.RegisterRequest{Email: "ann@example.com", Password: "secret2", Name: "Ann"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = u.Login(ctx, &authdto.LoginRequest{Email: "ann@example.com", Password: "wrong!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = u.Login(ctx, &authdto.LoginRequest{Email: "ANN@example.com", Password: "secret1"})
	assert.NoError(t, err)
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	u := newAuthUsecase(t)
	ctx := context.Background()
	tokens, err := u.Register(ctx, &authdto.RegisterRequest{Email: "bo@example.com", Password: "secret1", Name: "Bo"})
	require.NoError(t, err)

	rotated, err := u.RefreshToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	_, err = u.RefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// an access token is not accepted where a refresh token is expected
	_, err = u.RefreshToken(ctx, rotated.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, u.Logout(ctx, rotated.RefreshToken))
	_, err = u.RefreshToken(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOAuthState(t *testing.T) {
	u := newAuthUsecase(t)

	state, err := u.SignState("u1")
	require.NoError(t, err)
	userID, err := u.VerifyState(state)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = u.VerifyState("garbage")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateIsNotAnAccessToken(t *testing.T) {
	u := newAuthUsecase(t)
	state, err := u.SignState("u1")
	require.NoError(t, err)

	_, err = u.ValidateToken(context.Background(), state)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

package usecase

import (
	"context"

	authdomain "postmark-backend/internal/auth/domain"
	authdto "postmark-backend/internal/auth/dto"
)

// AuthUsecase issues and validates sessions, and signs OAuth state for account linking.
type AuthUsecase interface {
	Register(ctx context.Context, req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	Login(ctx context.Context, req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*authdto.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	ValidateToken(ctx context.Context, token string) (*authdomain.User, error)

	RegisterDevice(ctx context.Context, userID string, req *authdto.RegisterDeviceRequest) error
	UnregisterDevice(ctx context.Context, userID, token string) error

	// SignState binds an OAuth round trip to the user that started it
	SignState(userID string) (string, error)
	VerifyState(state string) (string, error)
}

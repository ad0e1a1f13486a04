package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/farmlink/market/internal/domain"
	"github.com/farmlink/market/internal/mailer"
	"github.com/farmlink/market/internal/repository"
	"github.com/farmlink/market/pkg/auth"
	"github.com/farmlink/market/pkg/config"
	"github.com/farmlink/market/pkg/events"
	"github.com/farmlink/market/pkg/logger"
	"github.com/google/uuid"
)

type AccountService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	VerifyEmail(ctx context.Context, token string) (*domain.User, error)
	ResendVerification(ctx context.Context, email string) error
	Me(ctx context.Context, userID int64) (*domain.User, error)
}

type accountService struct {
	userRepo   repository.UserRepository
	verifyRepo repository.VerifyRepository
	mailer     mailer.Service
	eventBus   events.Publisher
	config     *config.Config
}

func NewAccountService(
	userRepo repository.UserRepository,
	verifyRepo repository.VerifyRepository,
	mailer mailer.Service,
	eventBus events.Publisher,
	config *config.Config,
) AccountService {
	return &accountService{
		userRepo:   userRepo,
		verifyRepo: verifyRepo,
		mailer:     mailer,
		eventBus:   eventBus,
		config:     config,
	}
}

func (s *accountService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	existing, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check existing account: %w", domain.ErrStoreUnavailable)
	}
	if existing != nil {
		return nil, fmt.Errorf("an account with this email already exists")
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, req, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", domain.ErrStoreUnavailable)
	}

	verifyToken := uuid.NewString()
	expiresAt := time.Now().Add(s.config.Auth.EmailVerificationTTL)

	if err := s.verifyRepo.CreateEmailVerification(ctx, user.ID, verifyToken, expiresAt); err != nil {
		logger.ErrorContext(ctx, "Failed to create email verification token", "error", err, "user_id", user.ID)
		return nil, fmt.Errorf("create verification token: %w", domain.ErrStoreUnavailable)
	}

	if err := s.eventBus.Publish(ctx, events.AccountRegistered, events.AccountRegisteredEvent{
		UserID:       user.ID,
		Email:        user.Email,
		Username:     user.Username,
		Role:         user.Role,
		RegisteredAt: user.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish registered event", "error", err, "user_id", user.ID)
	}

	verifyURL := s.buildVerificationURL(verifyToken)
	if err := s.mailer.SendVerificationEmail(user.Email, user.Username, verifyURL, verifyToken); err != nil {
		// Don't fail registration if email fails
		logger.ErrorContext(ctx, "Failed to send verification email", "error", err, "user_id", user.ID)
	}

	return user, nil
}

func (s *accountService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", domain.ErrStoreUnavailable)
	}
	if user == nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	if !user.IsVerified {
		return nil, fmt.Errorf("email not verified")
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, fmt.Errorf("invalid credentials")
	}

	scope := s.generateScope(user.Role)
	accessToken, err := auth.NewAccessToken(
		user.ID,
		user.Email,
		user.Role,
		scope,
		s.config.Auth.JWTSecret,
		s.config.Auth.AccessTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	refreshToken, err := auth.NewAccessToken(
		user.ID,
		user.Email,
		"refresh",
		"refresh",
		s.config.Auth.JWTSecret,
		s.config.Auth.RefreshTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.Auth.AccessTokenTTL.Seconds()),
		User:         user.ToUserInfo(),
	}, nil
}

func (s *accountService) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.verifyRepo.ConsumeEmailVerification(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("consume verification token: %w", domain.ErrStoreUnavailable)
	}
	if userID == 0 {
		return nil, fmt.Errorf("invalid or expired verification token")
	}

	if err := s.userRepo.MarkVerified(ctx, userID); err != nil {
		return nil, fmt.Errorf("mark account verified: %w", domain.ErrStoreUnavailable)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load verified account: %w", domain.ErrStoreUnavailable)
	}

	if err := s.eventBus.Publish(ctx, events.AccountVerified, events.AccountVerifiedEvent{
		UserID:     userID,
		Email:      user.Email,
		VerifiedAt: time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish verified event", "error", err, "user_id", userID)
	}

	return user, nil
}

func (s *accountService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find account: %w", domain.ErrStoreUnavailable)
	}
	if user == nil {
		// Don't reveal whether the account exists
		return nil
	}

	if user.IsVerified {
		return fmt.Errorf("account is already verified")
	}

	verifyToken := uuid.NewString()
	expiresAt := time.Now().Add(s.config.Auth.EmailVerificationTTL)

	if err := s.verifyRepo.CreateEmailVerification(ctx, user.ID, verifyToken, expiresAt); err != nil {
		return fmt.Errorf("create verification token: %w", domain.ErrStoreUnavailable)
	}

	verifyURL := s.buildVerificationURL(verifyToken)
	if err := s.mailer.SendVerificationEmail(user.Email, user.Username, verifyURL, verifyToken); err != nil {
		logger.ErrorContext(ctx, "Failed to send verification email", "error", err, "user_id", user.ID)
	}

	return nil
}

func (s *accountService) Me(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", domain.ErrStoreUnavailable)
	}
	if user == nil {
		return nil, fmt.Errorf("account not found")
	}
	return user, nil
}

func (s *accountService) generateScope(role string) string {
	switch role {
	case domain.RoleFarmer:
		return "listings:read listings:write orders:read"
	case domain.RoleBuyer:
		return "listings:read orders:read:self orders:write:self"
	default:
		return ""
	}
}

func (s *accountService) buildVerificationURL(token string) string {
	baseURL := "http://localhost:5173" // Should come from config
	return fmt.Sprintf("%s/verify-email?token=%s", baseURL, token)
}

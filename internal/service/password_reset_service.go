package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/farmlink/market/internal/domain"
	"github.com/farmlink/market/internal/mailer"
	"github.com/farmlink/market/internal/otp"
	"github.com/farmlink/market/internal/repository"
	"github.com/farmlink/market/pkg/config"
	"github.com/farmlink/market/pkg/events"
	"github.com/farmlink/market/pkg/logger"
)

// PasswordResetService runs the recovery workflow: issue a one-time code by
// email, verify it, mint a reset token, and redeem that token once for a new
// password.
type PasswordResetService interface {
	RequestCode(ctx context.Context, req *domain.RequestCodeRequest) (*domain.RequestCodeResponse, error)
	ResendCode(ctx context.Context, req *domain.RequestCodeRequest) (*domain.RequestCodeResponse, error)
	VerifyCode(ctx context.Context, userID int64, rawCode string) (*domain.VerifyCodeResponse, error)
	VerifyCodeForAccount(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.VerifyCodeResponse, error)
	RedeemToken(ctx context.Context, req *domain.RedeemTokenRequest) error
}

type passwordResetService struct {
	userRepo  repository.UserRepository
	otpRepo   repository.OTPRepository
	tokenRepo repository.TokenRepository
	mailer    mailer.Service
	eventBus  events.Publisher
	config    *config.Config
}

func NewPasswordResetService(
	userRepo repository.UserRepository,
	otpRepo repository.OTPRepository,
	tokenRepo repository.TokenRepository,
	mailer mailer.Service,
	eventBus events.Publisher,
	config *config.Config,
) PasswordResetService {
	return &passwordResetService{
		userRepo:  userRepo,
		otpRepo:   otpRepo,
		tokenRepo: tokenRepo,
		mailer:    mailer,
		eventBus:  eventBus,
		config:    config,
	}
}

// RequestCode issues a fresh recovery code and emails it. The response is
// success-shaped whether or not the account exists, so the endpoint cannot
// be used to enumerate accounts. Email delivery is fire-and-forget: a
// provider failure downgrades DeliveryConfirmed but never fails the request.
func (s *passwordResetService) RequestCode(ctx context.Context, req *domain.RequestCodeRequest) (*domain.RequestCodeResponse, error) {
	req.Normalize()
	if req.Email == "" || !domain.IsValidEmail(req.Email) {
		return nil, fmt.Errorf("invalid email format")
	}
	if req.Username == "" {
		return nil, fmt.Errorf("username is required")
	}

	user, err := s.userRepo.FindByEmailAndUsername(ctx, req.Email, req.Username)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up account for code request", "error", err)
		return nil, fmt.Errorf("look up account: %w", domain.ErrStoreUnavailable)
	}
	if user == nil {
		// Indistinguishable from the success path
		logger.InfoContext(ctx, "Recovery code requested for unknown account")
		return &domain.RequestCodeResponse{Accepted: true, DeliveryConfirmed: true}, nil
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	// Stored in the same canonical form the verifier compares against
	normalized, err := otp.NormalizeCode(code)
	if err != nil {
		return nil, fmt.Errorf("normalize generated code: %w", err)
	}

	expiresAt := time.Now().Add(s.config.Reset.CodeTTL)
	if err := s.otpRepo.IssueCode(ctx, user.ID, normalized, expiresAt); err != nil {
		logger.ErrorContext(ctx, "Failed to store recovery code", "error", err, "user_id", user.ID)
		return nil, fmt.Errorf("store recovery code: %w", domain.ErrStoreUnavailable)
	}

	if err := s.eventBus.Publish(ctx, events.PasswordResetRequested, events.PasswordResetRequestedEvent{
		UserID:      user.ID,
		Email:       user.Email,
		RequestedAt: time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish reset-requested event", "error", err, "user_id", user.ID)
	}

	delivered := true
	if err := s.mailer.SendRecoveryCodeEmail(user.Email, user.Username, normalized); err != nil {
		// Code issuance already succeeded; the user can resend
		err = fmt.Errorf("%w: %v", domain.ErrEmailDelivery, err)
		logger.ErrorContext(ctx, "Failed to send recovery code email", "error", err, "user_id", user.ID)
		delivered = false
	}

	return &domain.RequestCodeResponse{Accepted: true, DeliveryConfirmed: delivered}, nil
}

// ResendCode invalidates and replaces any outstanding code.
func (s *passwordResetService) ResendCode(ctx context.Context, req *domain.RequestCodeRequest) (*domain.RequestCodeResponse, error) {
	return s.RequestCode(ctx, req)
}

// VerifyCode matches a submitted code against the user's latest credential.
// Check order is deliberate: mismatch before consumed before expired, so a
// replayed-but-expired code reports "already used" rather than "expired".
func (s *passwordResetService) VerifyCode(ctx context.Context, userID int64, rawCode string) (*domain.VerifyCodeResponse, error) {
	normalized, err := otp.NormalizeCode(rawCode)
	if err != nil {
		return nil, err
	}

	cred, err := s.otpRepo.FindLatest(ctx, userID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load recovery credential", "error", err, "user_id", userID)
		return nil, fmt.Errorf("load credential: %w", domain.ErrStoreUnavailable)
	}
	if cred == nil {
		return nil, domain.ErrNoCodeIssued
	}

	if cred.Code != normalized {
		return nil, domain.ErrCodeMismatch
	}
	if cred.Consumed {
		return nil, domain.ErrAlreadyUsed
	}
	if cred.IsExpired() {
		return nil, domain.ErrExpired
	}

	won, err := s.otpRepo.Consume(ctx, cred.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to consume recovery credential", "error", err, "user_id", userID)
		return nil, fmt.Errorf("consume credential: %w", domain.ErrStoreUnavailable)
	}
	if !won {
		// A concurrent request got here first
		return nil, domain.ErrAlreadyUsed
	}

	token, err := otp.GenerateResetToken()
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}

	expiresAt := time.Now().Add(s.config.Reset.TokenTTL)
	if err := s.tokenRepo.Create(ctx, userID, token, expiresAt); err != nil {
		logger.ErrorContext(ctx, "Failed to store reset token", "error", err, "user_id", userID)
		return nil, fmt.Errorf("store reset token: %w", domain.ErrStoreUnavailable)
	}

	return &domain.VerifyCodeResponse{
		ResetToken: token,
		ExpiresIn:  int64(s.config.Reset.TokenTTL.Seconds()),
	}, nil
}

// VerifyCodeForAccount resolves the account named in the request and runs
// VerifyCode against it. An unknown account reports ErrNoCodeIssued, the
// same failure the caller sees for a known account with no outstanding code.
func (s *passwordResetService) VerifyCodeForAccount(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.VerifyCodeResponse, error) {
	req.Normalize()
	if req.Email == "" || !domain.IsValidEmail(req.Email) {
		return nil, fmt.Errorf("invalid email format")
	}

	user, err := s.userRepo.FindByEmailAndUsername(ctx, req.Email, req.Username)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up account for verification", "error", err)
		return nil, fmt.Errorf("look up account: %w", domain.ErrStoreUnavailable)
	}
	if user == nil {
		return nil, domain.ErrNoCodeIssued
	}

	return s.VerifyCode(ctx, user.ID, req.Code)
}

// RedeemToken consumes a reset token exactly once and commits the new
// password hash. Input validation runs before any store access; the token
// transition and the password write share one transaction.
func (s *passwordResetService) RedeemToken(ctx context.Context, req *domain.RedeemTokenRequest) error {
	if req.Token == "" {
		return domain.ErrInvalidToken
	}
	if req.NewPassword != req.ConfirmPassword {
		return fmt.Errorf("passwords do not match")
	}
	if len(req.NewPassword) < s.config.Reset.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", s.config.Reset.MinPasswordLength)
	}

	token, err := s.tokenRepo.FindByValue(ctx, req.Token)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to look up reset token", "error", err)
		return fmt.Errorf("look up reset token: %w", domain.ErrStoreUnavailable)
	}
	if token == nil {
		return domain.ErrInvalidToken
	}
	if token.Used {
		return domain.ErrTokenAlreadyUsed
	}
	if token.IsExpired() {
		return domain.ErrTokenExpired
	}

	passwordHash, err := argon2id.CreateHash(req.NewPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	won, err := s.tokenRepo.RedeemAndSetPassword(ctx, token.ID, token.UserID, passwordHash)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to redeem reset token", "error", err, "user_id", token.UserID)
		return fmt.Errorf("redeem reset token: %w", domain.ErrStoreUnavailable)
	}
	if !won {
		return domain.ErrTokenAlreadyUsed
	}

	if err := s.eventBus.Publish(ctx, events.PasswordChanged, events.PasswordChangedEvent{
		UserID:    token.UserID,
		ChangedAt: time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish password-changed event", "error", err, "user_id", token.UserID)
	}

	logger.InfoContext(ctx, "Password reset completed", "user_id", token.UserID)
	return nil
}

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farmlink/market/internal/domain"
	"github.com/farmlink/market/internal/handlers"
	"github.com/farmlink/market/internal/service"
	"github.com/farmlink/market/pkg/config"
	"github.com/farmlink/market/pkg/events"
)

// ---------- Mocks ----------

type mockMailer struct {
	mu       sync.Mutex
	lastTo   string
	lastCode string
}

func (m *mockMailer) SendVerificationEmail(toEmail, username, verifyURL, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	return nil
}

func (m *mockMailer) SendRecoveryCodeEmail(toEmail, username, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	m.lastCode = code
	return nil
}

func (m *mockMailer) code() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCode
}

type mockUserRepo struct {
	users map[int64]*domain.User
}

func (m *mockUserRepo) Create(_ context.Context, req *domain.RegisterRequest, hash string) (*domain.User, error) {
	u := &domain.User{ID: int64(len(m.users) + 1), Role: req.Role, Email: req.Email, Username: req.Username, PasswordHash: hash}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmailAndUsername(_ context.Context, email, username string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email && u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) MarkVerified(_ context.Context, userID int64) error {
	if u, ok := m.users[userID]; ok {
		u.IsVerified = true
	}
	return nil
}

type mockOTPRepo struct {
	mu     sync.Mutex
	nextID int64
	creds  map[int64]*domain.OTPCredential
}

func (m *mockOTPRepo) IssueCode(_ context.Context, userID int64, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.creds[userID] = &domain.OTPCredential{ID: m.nextID, UserID: userID, Code: code, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	return nil
}

func (m *mockOTPRepo) FindLatest(_ context.Context, userID int64) (*domain.OTPCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[userID]
	if !ok {
		return nil, nil
	}
	cp := *cred
	return &cp, nil
}

func (m *mockOTPRepo) Consume(_ context.Context, credentialID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cred := range m.creds {
		if cred.ID == credentialID && !cred.Consumed {
			cred.Consumed = true
			return true, nil
		}
	}
	return false, nil
}

type mockTokenRepo struct {
	mu       sync.Mutex
	nextID   int64
	tokens   map[string]*domain.ResetToken
	userRepo *mockUserRepo
}

func (m *mockTokenRepo) Create(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.tokens[token] = &domain.ResetToken{ID: m.nextID, UserID: userID, Token: token, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	return nil
}

func (m *mockTokenRepo) FindByValue(_ context.Context, token string) (*domain.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockTokenRepo) RedeemAndSetPassword(_ context.Context, tokenID, userID int64, passwordHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == tokenID {
			if t.Used {
				return false, nil
			}
			t.Used = true
			if u, ok := m.userRepo.users[userID]; ok {
				u.PasswordHash = passwordHash
			}
			return true, nil
		}
	}
	return false, nil
}

type mockVerifyRepo struct{}

func (mockVerifyRepo) CreateEmailVerification(context.Context, int64, string, time.Time) error {
	return nil
}
func (mockVerifyRepo) ConsumeEmailVerification(context.Context, string) (int64, error) { return 0, nil }
func (mockVerifyRepo) DeleteExpiredTokens(context.Context) (int64, error)              { return 0, nil }

type mockRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	limit  int
}

func (m *mockRateLimiter) CheckRateLimit(_ context.Context, key string, requests int, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	limit := m.limit
	if limit == 0 {
		limit = requests
	}
	return m.counts[key] <= limit, nil
}

// ---------- Setup ----------

func setupTestServer(t *testing.T) (*httptest.Server, *mockMailer) {
	t.Helper()

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:            "test-secret",
			AccessTokenTTL:       15 * time.Minute,
			RefreshTokenTTL:      time.Hour,
			EmailVerificationTTL: time.Hour,
		},
		Reset: config.ResetConfig{
			CodeTTL:           10 * time.Minute,
			TokenTTL:          30 * time.Minute,
			MinPasswordLength: 8,
		},
	}

	userRepo := &mockUserRepo{users: map[int64]*domain.User{
		1: {ID: 1, Role: domain.RoleBuyer, Email: "a@b.com", Username: "alice", IsVerified: true},
	}}
	otpRepo := &mockOTPRepo{creds: make(map[int64]*domain.OTPCredential)}
	tokenRepo := &mockTokenRepo{tokens: make(map[string]*domain.ResetToken), userRepo: userRepo}
	m := &mockMailer{}
	limiter := &mockRateLimiter{counts: make(map[string]int)}

	accountSvc := service.NewAccountService(userRepo, mockVerifyRepo{}, m, events.NoopEventBus{}, cfg)
	resetSvc := service.NewPasswordResetService(userRepo, otpRepo, tokenRepo, m, events.NoopEventBus{}, cfg)

	h := handlers.New(accountSvc, resetSvc, limiter, cfg)

	r := chi.NewRouter()
	r.Route("/v1/password", func(r chi.Router) {
		r.With(h.RecoveryRateLimit()).Post("/request-code", h.RequestCode)
		r.With(h.RecoveryRateLimit()).Post("/resend-code", h.ResendCode)
		r.Post("/verify-code", h.VerifyCode)
		r.Post("/reset", h.RedeemToken)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, m
}

func postJSON(t *testing.T, url string, data interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()

	body, _ := json.Marshal(data)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		t.Fatalf("POST %s: expected status %d, got %d", url, expectedStatus, resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return result
}

// ---------- Tests ----------

func TestPasswordRecovery_FullFlow(t *testing.T) {
	server, m := setupTestServer(t)

	// Request a code
	result := postJSON(t, server.URL+"/v1/password/request-code",
		map[string]string{"email": "a@b.com", "username": "alice"}, http.StatusOK)

	if result["accepted"] != true {
		t.Fatalf("expected accepted response, got %v", result)
	}
	code := m.code()
	if len(code) != 6 {
		t.Fatalf("expected a 6-digit code in the email, got %q", code)
	}

	// Verify it
	verifyResult := postJSON(t, server.URL+"/v1/password/verify-code",
		map[string]string{"email": "a@b.com", "username": "alice", "code": code}, http.StatusOK)

	token, ok := verifyResult["reset_token"].(string)
	if !ok || token == "" {
		t.Fatalf("expected reset_token in response, got %v", verifyResult)
	}

	// Redeem the token
	postJSON(t, server.URL+"/v1/password/reset", map[string]string{
		"token":            token,
		"new_password":     "Secret123",
		"confirm_password": "Secret123",
	}, http.StatusOK)

	// Second redemption fails
	again := postJSON(t, server.URL+"/v1/password/reset", map[string]string{
		"token":            token,
		"new_password":     "Another123",
		"confirm_password": "Another123",
	}, http.StatusBadRequest)

	if again["code"] != "TOKEN_ALREADY_USED" {
		t.Fatalf("expected TOKEN_ALREADY_USED, got %v", again)
	}
}

func TestPasswordRecovery_UnknownAccountLooksLikeSuccess(t *testing.T) {
	server, m := setupTestServer(t)

	result := postJSON(t, server.URL+"/v1/password/request-code",
		map[string]string{"email": "nobody@b.com", "username": "nobody"}, http.StatusOK)

	if result["accepted"] != true || result["delivery_confirmed"] != true {
		t.Fatalf("unknown account must be indistinguishable from success, got %v", result)
	}
	if m.code() != "" {
		t.Fatal("no email should have been sent")
	}
}

func TestVerifyCode_WrongCode(t *testing.T) {
	server, m := setupTestServer(t)

	postJSON(t, server.URL+"/v1/password/request-code",
		map[string]string{"email": "a@b.com", "username": "alice"}, http.StatusOK)

	wrong := "000000"
	if m.code() == wrong {
		wrong = "000001"
	}

	result := postJSON(t, server.URL+"/v1/password/verify-code",
		map[string]string{"email": "a@b.com", "username": "alice", "code": wrong}, http.StatusBadRequest)

	if result["code"] != "CODE_MISMATCH" {
		t.Fatalf("expected CODE_MISMATCH, got %v", result)
	}
}

func TestVerifyCode_Replay(t *testing.T) {
	server, m := setupTestServer(t)

	postJSON(t, server.URL+"/v1/password/request-code",
		map[string]string{"email": "a@b.com", "username": "alice"}, http.StatusOK)
	code := m.code()

	postJSON(t, server.URL+"/v1/password/verify-code",
		map[string]string{"email": "a@b.com", "username": "alice", "code": code}, http.StatusOK)

	result := postJSON(t, server.URL+"/v1/password/verify-code",
		map[string]string{"email": "a@b.com", "username": "alice", "code": code}, http.StatusBadRequest)

	if result["code"] != "CODE_ALREADY_USED" {
		t.Fatalf("expected CODE_ALREADY_USED, got %v", result)
	}
}

func TestRedeemToken_ConfirmationMismatch(t *testing.T) {
	server, _ := setupTestServer(t)

	result := postJSON(t, server.URL+"/v1/password/reset", map[string]string{
		"token":            "whatever",
		"new_password":     "Secret123",
		"confirm_password": "Different123",
	}, http.StatusBadRequest)

	if result["code"] != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %v", result)
	}
}

func TestRequestCode_RateLimited(t *testing.T) {
	server, _ := setupTestServer(t)

	body := map[string]string{"email": "a@b.com", "username": "alice"}
	for i := 0; i < 5; i++ {
		postJSON(t, server.URL+"/v1/password/request-code", body, http.StatusOK)
	}

	result := postJSON(t, server.URL+"/v1/password/request-code", body, http.StatusTooManyRequests)
	if result["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %v", result)
	}
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-account-api/internal/application/auth"
	"github.com/go-account-api/internal/application/token"
	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockAuthSvc struct{ mock.Mock }

func (m *mockAuthSvc) Register(ctx context.Context, req auth.RegisterRequest, meta domain.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, req, meta)
	res, _ := args.Get(0).(*auth.LoginResult)
	return res, args.Error(1)
}
func (m *mockAuthSvc) PasswordLogin(ctx context.Context, req auth.PasswordLoginRequest, meta domain.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, req, meta)
	res, _ := args.Get(0).(*auth.LoginResult)
	return res, args.Error(1)
}
func (m *mockAuthSvc) RequestPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}
func (m *mockAuthSvc) UpdatePassword(ctx context.Context, tokenStr, newPassword string, meta domain.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, tokenStr, newPassword, meta)
	res, _ := args.Get(0).(*auth.LoginResult)
	return res, args.Error(1)
}
func (m *mockAuthSvc) SendOTP(ctx context.Context, req auth.SendOTPRequest) (*domain.Challenge, error) {
	args := m.Called(ctx, req)
	ch, _ := args.Get(0).(*domain.Challenge)
	return ch, args.Error(1)
}
func (m *mockAuthSvc) OTPLogin(ctx context.Context, req auth.OTPLoginRequest, meta domain.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, req, meta)
	res, _ := args.Get(0).(*auth.LoginResult)
	return res, args.Error(1)
}
func (m *mockAuthSvc) GenerateTOTP(ctx context.Context, userID string) (*auth.TOTPSetup, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).(*auth.TOTPSetup)
	return s, args.Error(1)
}
func (m *mockAuthSvc) EnableTOTP(ctx context.Context, userID, secret, code string) error {
	return m.Called(ctx, userID, secret, code).Error(0)
}
func (m *mockAuthSvc) DisableTOTP(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockAuthSvc) TOTPLogin(ctx context.Context, req auth.TOTPLoginRequest, meta domain.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, req, meta)
	res, _ := args.Get(0).(*auth.LoginResult)
	return res, args.Error(1)
}
func (m *mockAuthSvc) FederatedLogin(ctx context.Context, kind domain.AuthenticatorKind, providerToken string, meta domain.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, kind, providerToken, meta)
	res, _ := args.Get(0).(*auth.LoginResult)
	return res, args.Error(1)
}
func (m *mockAuthSvc) EnableFederated(ctx context.Context, userID string, kind domain.AuthenticatorKind, providerToken string) error {
	return m.Called(ctx, userID, kind, providerToken).Error(0)
}
func (m *mockAuthSvc) DisableFederated(ctx context.Context, userID string, kind domain.AuthenticatorKind) error {
	return m.Called(ctx, userID, kind).Error(0)
}
func (m *mockAuthSvc) BeginPasskeyRegistration(ctx context.Context, userID string) (*auth.PasskeyChallenge, error) {
	args := m.Called(ctx, userID)
	ch, _ := args.Get(0).(*auth.PasskeyChallenge)
	return ch, args.Error(1)
}
func (m *mockAuthSvc) FinishPasskeyRegistration(ctx context.Context, userID, tokenStr string, response []byte, name string) error {
	return m.Called(ctx, userID, tokenStr, response, name).Error(0)
}
func (m *mockAuthSvc) BeginPasskeyLogin(ctx context.Context, email string) (*auth.PasskeyChallenge, error) {
	args := m.Called(ctx, email)
	ch, _ := args.Get(0).(*auth.PasskeyChallenge)
	return ch, args.Error(1)
}
func (m *mockAuthSvc) FinishPasskeyLogin(ctx context.Context, tokenStr string, response []byte, meta domain.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, tokenStr, response, meta)
	res, _ := args.Get(0).(*auth.LoginResult)
	return res, args.Error(1)
}
func (m *mockAuthSvc) DisablePasskeys(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockAuthSvc) SendInvite(ctx context.Context, req auth.InviteRequest) error {
	return m.Called(ctx, req).Error(0)
}
func (m *mockAuthSvc) AcceptInvite(ctx context.Context, req auth.AcceptInviteRequest, meta domain.ClientMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, req, meta)
	res, _ := args.Get(0).(*auth.LoginResult)
	return res, args.Error(1)
}
func (m *mockAuthSvc) RequestEmailVerification(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockAuthSvc) ConfirmEmail(ctx context.Context, tokenStr string) error {
	return m.Called(ctx, tokenStr).Error(0)
}
func (m *mockAuthSvc) SetMFAMethod(ctx context.Context, userID string, method domain.MFAMethod) (*domain.User, error) {
	args := m.Called(ctx, userID, method)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}
func (m *mockAuthSvc) Logout(ctx context.Context, u *domain.User, jti string, all bool) error {
	return m.Called(ctx, u, jti, all).Error(0)
}

// --- helpers ---

func jsonReq(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewReader(b))
}

// authedCtx injects a user and claims the way the auth middleware would.
func authedCtx(r *http.Request, u *domain.User) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserKey, u)
	ctx = context.WithValue(ctx, middleware.ClaimsKey, &token.Claims{})
	return r.WithContext(ctx)
}

// --- login ---

func TestLogin_HappyPath(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("PasswordLogin", mock.Anything, auth.PasswordLoginRequest{Email: "a@b.com", Password: "secret123"}, mock.Anything).
		Return(&auth.LoginResult{Token: "signed-token"}, nil)

	rr := httptest.NewRecorder()
	req := jsonReq(t, http.MethodPost, "/v1/auth/password/login", map[string]string{"email": "a@b.com", "password": "secret123"})
	NewSessionHandler(svc).Login(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data auth.LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "signed-token", body.Data.Token)
}

func TestLogin_MFAChallenge(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("PasswordLogin", mock.Anything, mock.Anything, mock.Anything).
		Return(&auth.LoginResult{Challenge: &domain.Challenge{
			Kind:    domain.ChallengeCode,
			Channel: domain.ChannelSMS,
			Phone:   "*******0000",
		}}, nil)

	rr := httptest.NewRecorder()
	req := jsonReq(t, http.MethodPost, "/v1/auth/password/login", map[string]string{"email": "a@b.com", "password": "secret123"})
	NewSessionHandler(svc).Login(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data auth.LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Empty(t, body.Data.Token)
	require.NotNil(t, body.Data.Challenge)
	assert.Equal(t, domain.ChannelSMS, body.Data.Challenge.Channel)
}

func TestLogin_BadCredentials(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("PasswordLogin", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrBadCredentials)

	rr := httptest.NewRecorder()
	req := jsonReq(t, http.MethodPost, "/v1/auth/password/login", map[string]string{"email": "a@b.com", "password": "secret123"})
	NewSessionHandler(svc).Login(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var body ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "bad_credentials", body.Error.Type)
	assert.Equal(t, "Incorrect password.", body.Error.Message)
}

func TestLogin_Throttled_SetsRetryAfter(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("PasswordLogin", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &domain.ThrottledError{RetryAfter: 42 * time.Second})

	rr := httptest.NewRecorder()
	req := jsonReq(t, http.MethodPost, "/v1/auth/password/login", map[string]string{"email": "a@b.com", "password": "secret123"})
	NewSessionHandler(svc).Login(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "43", rr.Header().Get("Retry-After"))
	var body ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "throttled", body.Error.Type)
}

func TestLogin_ValidationFailure(t *testing.T) {
	svc := &mockAuthSvc{}

	rr := httptest.NewRecorder()
	req := jsonReq(t, http.MethodPost, "/v1/auth/password/login", map[string]string{"email": "not-an-email", "password": "x"})
	NewSessionHandler(svc).Login(rr, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	svc.AssertNotCalled(t, "PasswordLogin", mock.Anything, mock.Anything, mock.Anything)
}

// --- logout ---

func TestLogout_All(t *testing.T) {
	svc := &mockAuthSvc{}
	u := &domain.User{UserID: "u1"}
	svc.On("Logout", mock.Anything, u, mock.Anything, true).Return(nil)

	rr := httptest.NewRecorder()
	req := authedCtx(jsonReq(t, http.MethodPost, "/v1/auth/logout", map[string]bool{"all": true}), u)
	NewSessionHandler(svc).Logout(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestLogout_NoBody_CurrentSessionOnly(t *testing.T) {
	svc := &mockAuthSvc{}
	u := &domain.User{UserID: "u1"}
	svc.On("Logout", mock.Anything, u, mock.Anything, false).Return(nil)

	rr := httptest.NewRecorder()
	req := authedCtx(httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil), u)
	NewSessionHandler(svc).Logout(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestLogout_Unauthenticated(t *testing.T) {
	svc := &mockAuthSvc{}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	NewSessionHandler(svc).Logout(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// --- register ---

func TestRegister_Created(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Register", mock.Anything, mock.MatchedBy(func(req auth.RegisterRequest) bool {
		return req.Email == "a@b.com"
	}), mock.Anything).Return(&auth.LoginResult{Token: "tok"}, nil)

	rr := httptest.NewRecorder()
	req := jsonReq(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"email": "a@b.com", "password": "secret123", "first_name": "Ada", "last_name": "L",
	})
	NewAccountHandler(svc).Register(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrConflict)

	rr := httptest.NewRecorder()
	req := jsonReq(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"email": "a@b.com", "password": "secret123", "first_name": "Ada", "last_name": "L",
	})
	NewAccountHandler(svc).Register(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body.Error.Type)
}

// --- MFA settings ---

func TestSetMFAMethod(t *testing.T) {
	svc := &mockAuthSvc{}
	u := &domain.User{UserID: "u1", MFAMethod: domain.MFANone}
	svc.On("SetMFAMethod", mock.Anything, "u1", domain.MFASMS).
		Return(&domain.User{UserID: "u1", MFAMethod: domain.MFASMS}, nil)

	rr := httptest.NewRecorder()
	req := authedCtx(jsonReq(t, http.MethodPatch, "/v1/auth/mfa-method", map[string]string{"method": "sms"}), u)
	NewAccountHandler(svc).SetMFAMethod(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

// --- passkeys ---

func TestFinishPasskeyLogin_Replay(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("FinishPasskeyLogin", mock.Anything, "ceremony-token", mock.Anything, mock.Anything).
		Return(nil, domain.ErrReplayDetected)

	rr := httptest.NewRecorder()
	req := jsonReq(t, http.MethodPost, "/v1/auth/passkey/login", map[string]interface{}{
		"token":    "ceremony-token",
		"response": map[string]string{"id": "x"},
	})
	NewPasskeyHandler(svc).FinishLogin(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var body ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "replay_detected", body.Error.Type)
}

// --- error mapping ---

func TestHTTPError_UnknownErrorIs500(t *testing.T) {
	rr := httptest.NewRecorder()
	httpError(rr, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal", body.Error.Type)
	assert.NotContains(t, body.Error.Message, assert.AnError.Error())
}

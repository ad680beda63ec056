package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-account-api/internal/application/token"
	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserLoader struct {
	user *domain.User
	err  error

	touchedIndex int
	touchedJTI   string
	touched      bool
}

func (s *stubUserLoader) Get(_ context.Context, _ string) (*domain.User, error) {
	return s.user, s.err
}

func (s *stubUserLoader) TouchSession(_ context.Context, _ string, index int, jti string, _ time.Time) error {
	s.touched = true
	s.touchedIndex = index
	s.touchedJTI = jti
	return nil
}

func newTestTokens(clk clock.Clock) *token.Service {
	return token.NewService("test-secret", 24*time.Hour, clk)
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuth_MissingHeader(t *testing.T) {
	tokens := newTestTokens(clock.New())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	Auth(tokens, &stubUserLoader{})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_BadToken(t *testing.T) {
	tokens := newTestTokens(clock.New())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rr := httptest.NewRecorder()
	Auth(tokens, &stubUserLoader{})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_RevokedSession(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens := newTestTokens(clk)

	u := &domain.User{UserID: "u1"}
	signed, err := tokens.IssueSession(u, domain.ClientMeta{})
	require.NoError(t, err)

	// Session list persisted without this jti — token is revoked.
	loader := &stubUserLoader{user: &domain.User{UserID: "u1"}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	Auth(tokens, loader)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_ValidToken_InjectsUser(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens := newTestTokens(clk)

	u := &domain.User{UserID: "u1", Role: domain.RoleUser}
	signed, err := tokens.IssueSession(u, domain.ClientMeta{})
	require.NoError(t, err)
	loader := &stubUserLoader{user: u}

	var gotUser *domain.User
	var gotClaims *token.Claims
	captureHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFromContext(r.Context())
		gotClaims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	Auth(tokens, loader)(captureHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, gotUser)
	assert.Equal(t, "u1", gotUser.UserID)
	require.NotNil(t, gotClaims)
	assert.Equal(t, u.Sessions[0].JTI, gotClaims.ID)
}

func TestAuth_ValidToken_StampsSessionUse(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens := newTestTokens(clk)

	u := &domain.User{UserID: "u1"}
	_, err := tokens.IssueSession(u, domain.ClientMeta{})
	require.NoError(t, err)
	signed, err := tokens.IssueSession(u, domain.ClientMeta{})
	require.NoError(t, err)
	loader := &stubUserLoader{user: u}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	Auth(tokens, loader)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.True(t, loader.touched)
	assert.Equal(t, 1, loader.touchedIndex)
	assert.Equal(t, u.Sessions[1].JTI, loader.touchedJTI)
	assert.True(t, u.Sessions[1].LastUsedAt.After(u.Sessions[1].IssuedAt))
	assert.Equal(t, u.Sessions[0].IssuedAt, u.Sessions[0].LastUsedAt)
}

func TestAuth_ActionTokenRejected(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens := newTestTokens(clk)

	u := &domain.User{UserID: "u1"}
	signed, err := tokens.IssueAction(u, token.ActionResetPassword, token.ResetPasswordTTL)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	Auth(tokens, &stubUserLoader{user: u})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

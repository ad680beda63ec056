package token

import (
	"errors"
	"testing"
	"time"

	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func newTestService(clk clock.Clock) *Service {
	return NewService(testSecret, 30*24*time.Hour, clk)
}

func TestIssueSession_AppendsJTI(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)
	u := &domain.User{UserID: "u1"}

	tokenStr, err := svc.IssueSession(u, domain.ClientMeta{IP: "1.2.3.4", UserAgent: "cli"})
	require.NoError(t, err)
	require.Len(t, u.Sessions, 1)

	claims, err := svc.ParseSession(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, u.Sessions[0].JTI, claims.ID)
	assert.Equal(t, "1.2.3.4", u.Sessions[0].IP)

	sess, err := svc.CheckSession(u, claims)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, sess.JTI)
}

func TestIssueSession_PrunesExpired(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)
	u := &domain.User{UserID: "u1"}
	u.AddSession(domain.SessionToken{JTI: "stale", ExpiresAt: clk.Now().Add(-time.Hour)})

	_, err := svc.IssueSession(u, domain.ClientMeta{})
	require.NoError(t, err)
	require.Len(t, u.Sessions, 1)
	assert.Nil(t, u.SessionByJTI("stale"))
}

func TestCheckSession_RevokedJTI(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)
	u := &domain.User{UserID: "u1"}

	tokenStr, err := svc.IssueSession(u, domain.ClientMeta{})
	require.NoError(t, err)

	claims, err := svc.ParseSession(tokenStr)
	require.NoError(t, err)

	// Logout: removing the jti is the only revocation mechanism.
	u.RemoveSession(claims.ID)
	_, err = svc.CheckSession(u, claims)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadToken))
}

func TestParseSession_Expired(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)
	u := &domain.User{UserID: "u1"}

	tokenStr, err := svc.IssueSession(u, domain.ClientMeta{})
	require.NoError(t, err)

	clk.Advance(31 * 24 * time.Hour)
	_, err = svc.ParseSession(tokenStr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExpiredToken))
}

func TestParseSession_GarbageToken(t *testing.T) {
	svc := newTestService(clock.NewFake(time.Now()))
	_, err := svc.ParseSession("not-a-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadToken))
}

func TestParseSession_RejectsActionToken(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)
	u := &domain.User{UserID: "u1"}

	actionToken, err := svc.IssueAction(u, ActionResetPassword, ResetPasswordTTL)
	require.NoError(t, err)

	_, err = svc.ParseSession(actionToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrWrongTokenType))
}

func TestIssueAction_SetsPendingSlot(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)
	u := &domain.User{UserID: "u1"}

	tokenStr, err := svc.IssueAction(u, ActionResetPassword, ResetPasswordTTL)
	require.NoError(t, err)
	require.NotEmpty(t, u.PendingTokenID)

	claims, err := svc.ParseAction(tokenStr, ActionResetPassword)
	require.NoError(t, err)
	assert.Equal(t, u.PendingTokenID, claims.ID)
	assert.Empty(t, u.Sessions, "action tokens never join the session list")
}

func TestIssueAction_DisplacesPrior(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)
	u := &domain.User{UserID: "u1"}

	_, err := svc.IssueAction(u, ActionResetPassword, ResetPasswordTTL)
	require.NoError(t, err)
	first := u.PendingTokenID

	_, err = svc.IssueAction(u, ActionResetPassword, ResetPasswordTTL)
	require.NoError(t, err)
	assert.NotEqual(t, first, u.PendingTokenID)
}

func TestParseAction_WrongAction(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)
	u := &domain.User{UserID: "u1"}

	tokenStr, err := svc.IssueAction(u, ActionInvite, InviteTTL)
	require.NoError(t, err)

	_, err = svc.ParseAction(tokenStr, ActionResetPassword)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrWrongTokenType))
}

func TestParseAction_Expired(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)
	u := &domain.User{UserID: "u1"}

	tokenStr, err := svc.IssueAction(u, ActionResetPassword, ResetPasswordTTL)
	require.NoError(t, err)

	clk.Advance(31 * time.Minute)
	_, err = svc.ParseAction(tokenStr, ActionResetPassword)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExpiredToken))
}

func TestPasskeySession_RoundTrip(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(clk)

	tokenStr, err := svc.IssuePasskeySession("u1", []byte(`{"challenge":"abc"}`))
	require.NoError(t, err)

	claims, err := svc.ParsePasskeySession(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.JSONEq(t, `{"challenge":"abc"}`, string(claims.Data))

	clk.Advance(6 * time.Minute)
	_, err = svc.ParsePasskeySession(tokenStr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExpiredToken))
}

func TestParse_ForeignSignature(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := NewService("other-secret", time.Hour, clk)
	u := &domain.User{UserID: "u1"}
	tokenStr, err := issuer.IssueSession(u, domain.ClientMeta{})
	require.NoError(t, err)

	svc := newTestService(clk)
	_, err = svc.ParseSession(tokenStr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadToken))
}

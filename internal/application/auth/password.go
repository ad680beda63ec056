package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-account-api/internal/application/token"
	"github.com/go-account-api/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// verifyPassword checks a plaintext attempt against the user's password
// authenticator. A missing authenticator and a wrong password are
// indistinguishable to the caller.
func verifyPassword(u *domain.User, plain string) error {
	a := u.Authenticator(domain.KindPassword)
	if a == nil {
		return domain.ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.Hash), []byte(plain)); err != nil {
		return domain.ErrBadCredentials
	}
	return nil
}

// PasswordLogin runs the throttle gate, verifies the password and finishes
// the primary step. The throttle is checked before the password so a locked
// account never leaks whether the attempt would have succeeded.
func (s *service) PasswordLogin(ctx context.Context, req PasswordLoginRequest, meta domain.ClientMeta) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBadCredentials
		}
		return nil, err
	}

	if err := s.checkLoginAttempts(u); err != nil {
		return nil, err
	}

	if err := verifyPassword(u, req.Password); err != nil {
		s.recordFailure(ctx, u)
		return nil, err
	}

	return s.finishPrimary(ctx, u, domain.KindPassword, meta)
}

// RequestPasswordReset mails a single-use reset link. Unknown addresses are
// acknowledged without effect so the endpoint cannot be used to enumerate
// accounts.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	tok, err := s.tokens.IssueAction(u, token.ActionResetPassword, token.ResetPasswordTTL)
	if err != nil {
		return err
	}
	if err := s.users.SetPendingToken(ctx, u.UserID, u.PendingTokenID); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.appURL, tok)
	body := fmt.Sprintf("Hello %s,\n\nReset your %s password using the link below. It expires in 30 minutes.\n\n%s\n", u.FirstName, s.appName, link)
	return s.mailer.SendEmail(u.Email, s.appName+" password reset", body)
}

// UpdatePassword consumes a reset token and replaces the password. The new
// hash is computed before the token is consumed: once the conditional write
// clears the pending slot the token is spent, so nothing fallible may run
// between consumption and persisting the new credential.
func (s *service) UpdatePassword(ctx context.Context, tokenStr, newPassword string, meta domain.ClientMeta) (*LoginResult, error) {
	claims, err := s.tokens.ParseAction(tokenStr, token.ActionResetPassword)
	if err != nil {
		return nil, err
	}

	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	if err := s.users.ConsumePendingToken(ctx, u.UserID, claims.ID); err != nil {
		return nil, err
	}
	u.PendingTokenID = ""

	now := s.clock.Now()
	u.UpsertAuthenticator(domain.Authenticator{
		Kind:       domain.KindPassword,
		Hash:       hash,
		CreatedAt:  now,
		LastUsedAt: &now,
	})
	// A reset proves control of the email channel.
	u.EmailVerified = true
	u.ClearSessions()
	if err := s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{"email_verified": true}); err != nil {
		return nil, err
	}
	_ = s.users.ResetLoginAttempts(ctx, u.UserID)

	return s.issueSession(ctx, u, meta)
}

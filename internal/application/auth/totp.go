package auth

import (
	"context"
	"errors"

	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/pkg/totp"
)

// GenerateTOTP returns fresh enrollment material. Nothing is stored until the
// client proves possession of the secret through EnableTOTP.
func (s *service) GenerateTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	return &TOTPSetup{
		Secret: secret,
		URI:    totp.ProvisionURI(secret, s.appName, u.Email),
	}, nil
}

// EnableTOTP arms the time-based factor. The submitted code must match the
// candidate secret so a mistyped or lost secret can never lock the account.
func (s *service) EnableTOTP(ctx context.Context, userID, secret, code string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := totp.Verify(secret, code, s.clock.Now())
	if err != nil {
		return domain.ErrBadRequest
	}
	if !ok {
		return domain.ErrIncorrectCode
	}

	now := s.clock.Now()
	u.UpsertAuthenticator(domain.Authenticator{
		Kind:      domain.KindTOTP,
		Secret:    secret,
		CreatedAt: now,
	})
	return s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators)
}

// DisableTOTP removes the time-based factor. If it was the active MFA method
// the requirement is cleared with it.
func (s *service) DisableTOTP(ctx context.Context, userID string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := u.RequireAuthenticator(domain.KindTOTP); err != nil {
		return err
	}

	u.RemoveAuthenticator(domain.KindTOTP)
	if err := s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators); err != nil {
		return err
	}
	if u.MFAMethod == domain.MFATOTP {
		u.MFAMethod = domain.MFANone
		return s.users.Update(ctx, u.UserID, map[string]interface{}{"mfa_method": string(domain.MFANone)})
	}
	return nil
}

func (s *service) verifyTOTP(u *domain.User, code string) error {
	a, err := u.RequireAuthenticator(domain.KindTOTP)
	if err != nil {
		return err
	}
	ok, err := totp.Verify(a.Secret, code, s.clock.Now())
	if err != nil || !ok {
		return domain.ErrIncorrectCode
	}
	return nil
}

// TOTPLogin finishes an MFA login with an authenticator-app code. TOTP is
// never a standalone factor, so a recently verified primary is required.
func (s *service) TOTPLogin(ctx context.Context, req TOTPLoginRequest, meta domain.ClientMeta) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrIncorrectCode
		}
		return nil, err
	}

	if err := s.checkLoginAttempts(u); err != nil {
		return nil, err
	}
	if err := s.requireRecentPrimary(u); err != nil {
		return nil, err
	}

	if err := s.verifyTOTP(u, req.Code); err != nil {
		if errors.Is(err, domain.ErrIncorrectCode) {
			s.recordFailure(ctx, u)
		}
		return nil, err
	}

	if err := s.users.ResetLoginAttempts(ctx, u.UserID); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, u, meta)
}

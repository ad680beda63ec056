package auth

import (
	"context"

	"github.com/go-account-api/internal/domain"
)

// finishPrimary completes the first factor of a login: the failure counter is
// reset, the authenticator's last-use time is stamped, and either a session
// is issued or an MFA challenge is opened depending on the user's settings.
func (s *service) finishPrimary(ctx context.Context, u *domain.User, kind domain.AuthenticatorKind, meta domain.ClientMeta) (*LoginResult, error) {
	// Passkeys are multi-instance; the caller stamps the specific credential.
	if kind != domain.KindPasskey {
		if a := u.Authenticator(kind); a != nil {
			now := s.clock.Now()
			a.LastUsedAt = &now
		}
	}

	if err := s.users.ResetLoginAttempts(ctx, u.UserID); err != nil {
		return nil, err
	}

	if u.MFAMethod == domain.MFANone {
		if err := s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators); err != nil {
			return nil, err
		}
		return s.issueSession(ctx, u, meta)
	}

	challenge, err := s.openMFAChallenge(ctx, u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Challenge: challenge, User: u}, nil
}

// openMFAChallenge prepares the second step after a verified primary factor.
// For sms and email an OTP flagged as an MFA step is created and delivered;
// for totp the user already holds the generator so nothing is sent. The
// mutated authenticator list (last-use stamp plus any OTP) is persisted here.
func (s *service) openMFAChallenge(ctx context.Context, u *domain.User) (*domain.Challenge, error) {
	switch u.MFAMethod {
	case domain.MFASMS, domain.MFAEmail:
		otp, err := s.createOTP(u, true)
		if err != nil {
			return nil, err
		}
		if err := s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators); err != nil {
			return nil, err
		}
		ch := &domain.Challenge{
			Kind:      domain.ChallengeCode,
			ExpiresAt: *otp.ExpiresAt,
		}
		if u.MFAMethod == domain.MFASMS {
			ch.Channel = domain.ChannelSMS
			ch.Phone = maskPhone(*u.Phone)
			if err := s.deliverOTPSMS(ctx, u, otp.Code); err != nil {
				return nil, err
			}
		} else {
			ch.Channel = domain.ChannelEmail
			ch.Email = maskEmail(u.Email)
			if err := s.deliverOTPEmail(u, otp.Code, domain.ChallengeCode); err != nil {
				return nil, err
			}
		}
		return ch, nil
	case domain.MFATOTP:
		if err := s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators); err != nil {
			return nil, err
		}
		return &domain.Challenge{
			Kind:    domain.ChallengeCode,
			Channel: domain.ChannelAuthenticator,
		}, nil
	}
	return nil, domain.ErrBadRequest
}

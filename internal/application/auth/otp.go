package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-account-api/internal/domain"
)

const (
	otpTTL = time.Hour

	// testAccountCode is the fixed code handed to test accounts so end-to-end
	// suites can log in without intercepting delivery.
	testAccountCode = "111111"
)

// createOTP materializes a six-digit one-time code on the user's record,
// replacing any outstanding one. mfaStep marks codes that only complete a
// login whose primary factor was already verified. The caller persists the
// authenticator list.
func (s *service) createOTP(u *domain.User, mfaStep bool) (*domain.Authenticator, error) {
	code, err := randomCode()
	if err != nil {
		return nil, err
	}
	if u.IsTestAccount {
		code = testAccountCode
	}

	now := s.clock.Now()
	exp := now.Add(otpTTL)
	a := domain.Authenticator{
		Kind:      domain.KindOTP,
		Code:      code,
		ExpiresAt: &exp,
		MFAStep:   mfaStep,
		CreatedAt: now,
	}
	u.UpsertAuthenticator(a)
	return u.Authenticator(domain.KindOTP), nil
}

// verifyOTP checks a submitted code against the user's OTP authenticator and
// consumes it on success. Expired codes are removed on sight so a retry with
// the right digits still fails.
func (s *service) verifyOTP(ctx context.Context, u *domain.User, code string) (mfaStep bool, err error) {
	a, err := u.RequireAuthenticator(domain.KindOTP)
	if err != nil {
		return false, err
	}

	if a.ExpiresAt == nil || !a.ExpiresAt.After(s.clock.Now()) {
		u.RemoveAuthenticator(domain.KindOTP)
		if saveErr := s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators); saveErr != nil {
			return false, saveErr
		}
		return false, domain.ErrExpiredToken
	}

	if subtle.ConstantTimeCompare([]byte(a.Code), []byte(code)) != 1 {
		return false, domain.ErrIncorrectCode
	}

	mfaStep = a.MFAStep
	u.RemoveAuthenticator(domain.KindOTP)
	if err := s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators); err != nil {
		return false, err
	}
	return mfaStep, nil
}

// SendOTP creates and delivers a standalone login code over the requested
// channel. Delivery to test accounts is suppressed.
func (s *service) SendOTP(ctx context.Context, req SendOTPRequest) (*domain.Challenge, error) {
	u, err := s.findUser(ctx, req.Email, req.Phone)
	if err != nil {
		return nil, err
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.ChallengeCode
	}
	if kind == domain.ChallengeLink && req.Email == "" {
		return nil, domain.ErrBadRequest
	}

	otp, err := s.createOTP(u, false)
	if err != nil {
		return nil, err
	}
	if err := s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators); err != nil {
		return nil, err
	}

	ch := &domain.Challenge{Kind: kind, ExpiresAt: *otp.ExpiresAt}
	if req.Phone != "" {
		ch.Channel = domain.ChannelSMS
		ch.Phone = maskPhone(req.Phone)
		if err := s.deliverOTPSMS(ctx, u, otp.Code); err != nil {
			return nil, err
		}
	} else {
		ch.Channel = domain.ChannelEmail
		ch.Email = maskEmail(u.Email)
		if err := s.deliverOTPEmail(u, otp.Code, kind); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// OTPLogin finishes a login with a one-time code. A code created as an MFA
// step additionally requires a recently verified primary factor; a standalone
// code is a complete login by itself.
func (s *service) OTPLogin(ctx context.Context, req OTPLoginRequest, meta domain.ClientMeta) (*LoginResult, error) {
	u, err := s.findUser(ctx, req.Email, req.Phone)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrIncorrectCode
		}
		return nil, err
	}

	if err := s.checkLoginAttempts(u); err != nil {
		return nil, err
	}

	mfaStep, err := s.verifyOTP(ctx, u, req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrIncorrectCode) {
			s.recordFailure(ctx, u)
		}
		return nil, err
	}

	if mfaStep {
		if err := s.requireRecentPrimary(u); err != nil {
			return nil, err
		}
	}

	// Receiving the code proves control of the channel it went to.
	updates := map[string]interface{}{}
	if req.Phone != "" && !u.PhoneVerified {
		u.PhoneVerified = true
		updates["phone_verified"] = true
	}
	if req.Email != "" && !u.EmailVerified {
		u.EmailVerified = true
		updates["email_verified"] = true
	}
	if len(updates) > 0 {
		if err := s.users.Update(ctx, u.UserID, updates); err != nil {
			return nil, err
		}
	}

	if err := s.users.ResetLoginAttempts(ctx, u.UserID); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, u, meta)
}

func (s *service) deliverOTPSMS(ctx context.Context, u *domain.User, code string) error {
	if u.IsTestAccount {
		return nil
	}
	if s.sms == nil {
		return fmt.Errorf("sms delivery not configured: %w", domain.ErrBadRequest)
	}
	if u.Phone == nil || *u.Phone == "" {
		return domain.ErrBadRequest
	}
	msg := fmt.Sprintf("Your %s code is %s. It expires in 1 hour.", s.appName, code)
	return s.sms.SendSMS(ctx, *u.Phone, msg)
}

func (s *service) deliverOTPEmail(u *domain.User, code string, kind domain.ChallengeKind) error {
	if u.IsTestAccount {
		return nil
	}
	var body string
	if kind == domain.ChallengeLink {
		link := fmt.Sprintf("%s/login?email=%s&code=%s", s.appURL, u.Email, code)
		body = fmt.Sprintf("Hello %s,\n\nSign in to %s using the link below. It expires in 1 hour.\n\n%s\n", u.FirstName, s.appName, link)
	} else {
		body = fmt.Sprintf("Hello %s,\n\nYour %s sign-in code is %s. It expires in 1 hour.\n", u.FirstName, s.appName, code)
	}
	return s.mailer.SendEmail(u.Email, s.appName+" sign-in code", body)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

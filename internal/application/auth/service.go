package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-account-api/internal/application/token"
	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/pkg/clock"
)

// mfaFreshness bounds how long ago the primary factor may have been verified
// before an MFA code submission is rejected with ErrPrimaryNotVerified.
const mfaFreshness = 30 * time.Minute

// UserStore is the persistence contract the auth service needs. The
// correctness-critical writes (throttle counters, pending-token consumption)
// are single-document atomic operations, not read-modify-write.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	AddLoginAttempt(ctx context.Context, userID string, at time.Time) error
	ResetLoginAttempts(ctx context.Context, userID string) error
	SaveAuthenticators(ctx context.Context, userID string, authenticators []domain.Authenticator) error
	SaveSessions(ctx context.Context, userID string, sessions []domain.SessionToken) error
	SetPendingToken(ctx context.Context, userID, jti string) error
	ConsumePendingToken(ctx context.Context, userID, jti string) error
}

// Mailer delivers templated mail.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// SMSSender delivers SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// FederatedVerifier exchanges a provider token for the identity it asserts.
type FederatedVerifier interface {
	Verify(ctx context.Context, token string) (*domain.FederatedIdentity, error)
}

// LoginResult is the outcome of any login-shaped operation: either a session
// token, or a pending challenge describing the secondary proof still needed.
type LoginResult struct {
	Token     string            `json:"token,omitempty"`
	Challenge *domain.Challenge `json:"challenge,omitempty"`
	// Outcome is "login" or "signup" on federated flows.
	Outcome string       `json:"outcome,omitempty"`
	User    *domain.User `json:"user,omitempty"`
}

// Service is the authentication core: credential verification per kind,
// challenge orchestration, throttling and token lifecycle.
type Service interface {
	Register(ctx context.Context, req RegisterRequest, meta domain.ClientMeta) (*LoginResult, error)

	PasswordLogin(ctx context.Context, req PasswordLoginRequest, meta domain.ClientMeta) (*LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, tokenStr, newPassword string, meta domain.ClientMeta) (*LoginResult, error)

	SendOTP(ctx context.Context, req SendOTPRequest) (*domain.Challenge, error)
	OTPLogin(ctx context.Context, req OTPLoginRequest, meta domain.ClientMeta) (*LoginResult, error)

	GenerateTOTP(ctx context.Context, userID string) (*TOTPSetup, error)
	EnableTOTP(ctx context.Context, userID, secret, code string) error
	DisableTOTP(ctx context.Context, userID string) error
	TOTPLogin(ctx context.Context, req TOTPLoginRequest, meta domain.ClientMeta) (*LoginResult, error)

	FederatedLogin(ctx context.Context, kind domain.AuthenticatorKind, providerToken string, meta domain.ClientMeta) (*LoginResult, error)
	EnableFederated(ctx context.Context, userID string, kind domain.AuthenticatorKind, providerToken string) error
	DisableFederated(ctx context.Context, userID string, kind domain.AuthenticatorKind) error

	BeginPasskeyRegistration(ctx context.Context, userID string) (*PasskeyChallenge, error)
	FinishPasskeyRegistration(ctx context.Context, userID, tokenStr string, response []byte, name string) error
	BeginPasskeyLogin(ctx context.Context, email string) (*PasskeyChallenge, error)
	FinishPasskeyLogin(ctx context.Context, tokenStr string, response []byte, meta domain.ClientMeta) (*LoginResult, error)
	DisablePasskeys(ctx context.Context, userID string) error

	SendInvite(ctx context.Context, req InviteRequest) error
	AcceptInvite(ctx context.Context, req AcceptInviteRequest, meta domain.ClientMeta) (*LoginResult, error)

	RequestEmailVerification(ctx context.Context, userID string) error
	ConfirmEmail(ctx context.Context, tokenStr string) error

	SetMFAMethod(ctx context.Context, userID string, method domain.MFAMethod) (*domain.User, error)
	Logout(ctx context.Context, u *domain.User, jti string, all bool) error
}

// Deps wires the service's collaborators.
type Deps struct {
	Users         UserStore
	Mailer        Mailer
	SMS           SMSSender
	Google        FederatedVerifier
	Apple         FederatedVerifier
	Passkeys      PasskeyProvider
	PasskeyParser PasskeyParser
	Tokens        *token.Service
	Clock         clock.Clock
	AppName       string
	AppURL        string
}

type service struct {
	users    UserStore
	mailer   Mailer
	sms      SMSSender
	google   FederatedVerifier
	apple    FederatedVerifier
	passkeys PasskeyProvider
	parser   PasskeyParser
	tokens   *token.Service
	clock    clock.Clock
	appName  string
	appURL   string
}

func NewService(deps Deps) Service {
	parser := deps.PasskeyParser
	if parser == nil {
		parser = defaultPasskeyParser{}
	}
	return &service{
		users:    deps.Users,
		mailer:   deps.Mailer,
		sms:      deps.SMS,
		google:   deps.Google,
		apple:    deps.Apple,
		passkeys: deps.Passkeys,
		parser:   parser,
		tokens:   deps.Tokens,
		clock:    deps.Clock,
		appName:  deps.AppName,
		appURL:   deps.AppURL,
	}
}

// findUser resolves a user by email or phone, whichever was provided.
func (s *service) findUser(ctx context.Context, email, phone string) (*domain.User, error) {
	if email != "" {
		return s.users.GetByEmail(ctx, strings.ToLower(email))
	}
	if phone != "" {
		return s.users.GetByPhone(ctx, phone)
	}
	return nil, domain.ErrBadRequest
}

// issueSession signs a session token, persists the mutated session list and
// returns the finished result.
func (s *service) issueSession(ctx context.Context, u *domain.User, meta domain.ClientMeta) (*LoginResult, error) {
	tok, err := s.tokens.IssueSession(u, meta)
	if err != nil {
		return nil, err
	}
	if err := s.users.SaveSessions(ctx, u.UserID, u.Sessions); err != nil {
		return nil, err
	}
	return &LoginResult{Token: tok, User: u}, nil
}

// recordFailure bumps the throttle counter after a failed verification.
// Errors are swallowed: losing one increment under-counts, which fails open
// toward availability.
func (s *service) recordFailure(ctx context.Context, u *domain.User) {
	_ = s.users.AddLoginAttempt(ctx, u.UserID, s.clock.Now())
}

// requireRecentPrimary enforces primary-factor freshness before a secondary
// factor can finish the login.
func (s *service) requireRecentPrimary(u *domain.User) error {
	last := u.LastPrimaryVerifiedAt()
	if last == nil || s.clock.Now().Sub(*last) > mfaFreshness {
		return domain.ErrPrimaryNotVerified
	}
	return nil
}

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/pkg/clock"
	"github.com/go-account-api/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
)

// Key classes carried in the kid claim. A token is only ever accepted by the
// verifier expecting its class.
const (
	KeyIDUser    = "user"    // long-lived session tokens, revocable via the jti list
	KeyIDAction  = "action"  // short-lived single-use tokens (reset, invite, verify)
	KeyIDPasskey = "passkey" // transient WebAuthn ceremony state
)

// Action names for action tokens.
const (
	ActionResetPassword = "reset-password"
	ActionVerifyEmail   = "verify-email"
	ActionInvite        = "invite"
)

// Default action-token lifetimes.
const (
	ResetPasswordTTL = 30 * time.Minute
	VerifyEmailTTL   = time.Hour
	InviteTTL        = 24 * time.Hour
	PasskeyTTL       = 5 * time.Minute
)

// Claims is the signed token payload. The kid claim selects the key class;
// Action is set on action tokens only; Data carries opaque ceremony state on
// passkey tokens.
type Claims struct {
	KeyID  string `json:"kid"`
	Action string `json:"action,omitempty"`
	Data   []byte `json:"data,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and verifies the two token families: session tokens bound
// to the user's session list, and single-use action tokens bound to the
// pending-token slot.
type Service struct {
	secret     []byte
	sessionTTL time.Duration
	clock      clock.Clock
}

func NewService(secret string, sessionTTL time.Duration, clk clock.Clock) *Service {
	return &Service{secret: []byte(secret), sessionTTL: sessionTTL, clock: clk}
}

// IssueSession signs a session token and appends its jti to the user's
// session list, pruning expired entries on the way. The caller persists the
// mutated list.
func (s *Service) IssueSession(u *domain.User, meta domain.ClientMeta) (string, error) {
	now := s.clock.Now()
	jti := id.NewTokenID()

	u.PruneExpiredSessions(now)
	u.AddSession(domain.SessionToken{
		JTI:        jti,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.sessionTTL),
		LastUsedAt: now,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	})

	return s.sign(Claims{
		KeyID: KeyIDUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
		},
	})
}

// IssueAction signs a single-use action token and records its jti in the
// user's pending-token slot. Issuing a new action token displaces any prior
// one. The caller persists the slot.
func (s *Service) IssueAction(u *domain.User, action string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	jti := id.NewTokenID()
	u.PendingTokenID = jti

	return s.sign(Claims{
		KeyID:  KeyIDAction,
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
}

// IssuePasskeySession wraps WebAuthn ceremony state in a short-lived signed
// token so no server-side challenge storage is needed.
func (s *Service) IssuePasskeySession(userID string, data []byte) (string, error) {
	now := s.clock.Now()
	return s.sign(Claims{
		KeyID: KeyIDPasskey,
		Data:  data,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        id.NewTokenID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(PasskeyTTL)),
		},
	})
}

// ParseSession validates a session token's signature, expiry and key class.
// The revocation check against the subject's session list is CheckSession,
// performed after the caller loads the user.
func (s *Service) ParseSession(tokenStr string) (*Claims, error) {
	return s.parse(tokenStr, KeyIDUser)
}

// CheckSession enforces revocation: the token's jti must still be present in
// the subject's session list.
func (s *Service) CheckSession(u *domain.User, claims *Claims) (*domain.SessionToken, error) {
	sess := u.SessionByJTI(claims.ID)
	if sess == nil {
		return nil, fmt.Errorf("session revoked: %w", domain.ErrBadToken)
	}
	if !sess.ExpiresAt.After(s.clock.Now()) {
		return nil, domain.ErrExpiredToken
	}
	return sess, nil
}

// ParseAction validates an action token and requires it to authorize the
// given action. Single-use enforcement is the caller's ConsumePendingToken
// conditional write; a jti that no longer matches the pending slot is
// rejected there as already used.
func (s *Service) ParseAction(tokenStr, action string) (*Claims, error) {
	claims, err := s.parse(tokenStr, KeyIDAction)
	if err != nil {
		return nil, err
	}
	if claims.Action != action {
		return nil, domain.ErrWrongTokenType
	}
	return claims, nil
}

// ParsePasskeySession unwraps ceremony state from a passkey token.
func (s *Service) ParsePasskeySession(tokenStr string) (*Claims, error) {
	return s.parse(tokenStr, KeyIDPasskey)
}

func (s *Service) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) parse(tokenStr, wantKeyID string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrExpiredToken
		}
		return nil, fmt.Errorf("parse token: %w", domain.ErrBadToken)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrBadToken
	}
	switch claims.KeyID {
	case wantKeyID:
		return claims, nil
	case KeyIDUser, KeyIDAction, KeyIDPasskey:
		return nil, domain.ErrWrongTokenType
	default:
		return nil, domain.ErrUnknownKeyID
	}
}

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/pkg/id"
)

func (s *service) verifier(kind domain.AuthenticatorKind) (FederatedVerifier, error) {
	switch kind {
	case domain.KindGoogle:
		if s.google == nil {
			return nil, domain.ErrBadRequest
		}
		return s.google, nil
	case domain.KindApple:
		if s.apple == nil {
			return nil, domain.ErrBadRequest
		}
		return s.apple, nil
	}
	return nil, domain.ErrBadRequest
}

// FederatedLogin verifies a provider identity token and signs the holder in,
// creating the account on first contact. The provider must assert a verified
// email: it is the join key to existing accounts, and an unverified one would
// let anyone claim an address they do not control.
func (s *service) FederatedLogin(ctx context.Context, kind domain.AuthenticatorKind, providerToken string, meta domain.ClientMeta) (*LoginResult, error) {
	v, err := s.verifier(kind)
	if err != nil {
		return nil, err
	}
	identity, err := v.Verify(ctx, providerToken)
	if err != nil {
		return nil, domain.ErrBadCredentials
	}
	if !identity.EmailVerified {
		return nil, domain.ErrBadCredentials
	}

	u, err := s.users.GetByEmail(ctx, strings.ToLower(identity.Email))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return s.federatedSignup(ctx, kind, identity, meta)
	}

	if err := s.checkLoginAttempts(u); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if u.Authenticator(kind) == nil {
		u.UpsertAuthenticator(domain.Authenticator{
			Kind:       kind,
			VerifiedAt: &now,
			CreatedAt:  now,
		})
	}

	res, err := s.finishPrimary(ctx, u, kind, meta)
	if err != nil {
		return nil, err
	}
	res.Outcome = "login"
	return res, nil
}

func (s *service) federatedSignup(ctx context.Context, kind domain.AuthenticatorKind, identity *domain.FederatedIdentity, meta domain.ClientMeta) (*LoginResult, error) {
	now := s.clock.Now()
	u := &domain.User{
		UserID:        id.New(),
		Email:         strings.ToLower(identity.Email),
		FirstName:     identity.FirstName,
		LastName:      identity.LastName,
		Role:          domain.RoleUser,
		EmailVerified: true,
		MFAMethod:     domain.MFANone,
		Authenticators: []domain.Authenticator{{
			Kind:       kind,
			VerifiedAt: &now,
			CreatedAt:  now,
			LastUsedAt: &now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	res, err := s.issueSession(ctx, u, meta)
	if err != nil {
		return nil, err
	}
	res.Outcome = "signup"
	return res, nil
}

// EnableFederated links a provider identity to an existing signed-in account.
// The asserted email must match the account's so a session cannot be used to
// attach someone else's identity.
func (s *service) EnableFederated(ctx context.Context, userID string, kind domain.AuthenticatorKind, providerToken string) error {
	v, err := s.verifier(kind)
	if err != nil {
		return err
	}
	identity, err := v.Verify(ctx, providerToken)
	if err != nil {
		return domain.ErrBadCredentials
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(identity.Email, u.Email) {
		return domain.ErrBadCredentials
	}

	now := s.clock.Now()
	u.UpsertAuthenticator(domain.Authenticator{
		Kind:       kind,
		VerifiedAt: &now,
		CreatedAt:  now,
	})
	return s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators)
}

// DisableFederated unlinks a provider identity. Removing the last primary
// factor is refused so the account stays reachable.
func (s *service) DisableFederated(ctx context.Context, userID string, kind domain.AuthenticatorKind) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := u.RequireAuthenticator(kind); err != nil {
		return err
	}
	if countPrimaries(u) <= 1 {
		return domain.ErrConflict
	}

	u.RemoveAuthenticator(kind)
	return s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators)
}

func countPrimaries(u *domain.User) int {
	n := 0
	for i := range u.Authenticators {
		if u.Authenticators[i].Kind.Primary() {
			n++
		}
	}
	return n
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-account-api/internal/application/token"
	"github.com/go-account-api/internal/domain"
	"github.com/go-account-api/internal/pkg/id"
)

// ensureEmailFree rejects an address that already belongs to an account. The
// store's Create closes the remaining race window; this check exists so the
// common case answers with a clean conflict before anything is written.
func (s *service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return err
	}
}

// Register creates an account with a password credential and signs it in. The
// email stays unverified until confirmed through a mailed link or code.
func (s *service) Register(ctx context.Context, req RegisterRequest, meta domain.ClientMeta) (*LoginResult, error) {
	email := strings.ToLower(req.Email)
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	u := &domain.User{
		UserID:    id.New(),
		Email:     email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      domain.RoleUser,
		MFAMethod: domain.MFANone,
		Authenticators: []domain.Authenticator{{
			Kind:       domain.KindPassword,
			Hash:       hash,
			CreatedAt:  now,
			LastUsedAt: &now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Phone != "" {
		u.Phone = &req.Phone
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	if err := s.sendEmailVerification(ctx, u); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, u, meta)
}

// SendInvite creates a shell account and mails a single-use invite link. The
// invitee has no credentials until the invite is accepted.
func (s *service) SendInvite(ctx context.Context, req InviteRequest) error {
	email := strings.ToLower(req.Email)
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return err
	}

	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}

	now := s.clock.Now()
	u := &domain.User{
		UserID:    id.New(),
		Email:     email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		MFAMethod: domain.MFANone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return err
	}

	tok, err := s.tokens.IssueAction(u, token.ActionInvite, token.InviteTTL)
	if err != nil {
		return err
	}
	if err := s.users.SetPendingToken(ctx, u.UserID, u.PendingTokenID); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/accept-invite?token=%s", s.appURL, tok)
	body := fmt.Sprintf("Hello %s,\n\nYou have been invited to %s. Finish setting up your account using the link below. It expires in 24 hours.\n\n%s\n", u.FirstName, s.appName, link)
	return s.mailer.SendEmail(u.Email, "You're invited to "+s.appName, body)
}

// AcceptInvite consumes an invite token, sets the first password and signs
// the new user in. Reaching the mailed link proves the address.
func (s *service) AcceptInvite(ctx context.Context, req AcceptInviteRequest, meta domain.ClientMeta) (*LoginResult, error) {
	claims, err := s.tokens.ParseAction(req.Token, token.ActionInvite)
	if err != nil {
		return nil, err
	}

	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	hash, err := hashPassword(req.Password)
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
	u.EmailVerified = true
	if err := s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{"email_verified": true}); err != nil {
		return nil, err
	}

	return s.issueSession(ctx, u, meta)
}

// RequestEmailVerification re-sends the confirmation mail for the signed-in
// user's address.
func (s *service) RequestEmailVerification(ctx context.Context, userID string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return domain.ErrConflict
	}
	return s.sendEmailVerification(ctx, u)
}

func (s *service) sendEmailVerification(ctx context.Context, u *domain.User) error {
	tok, err := s.tokens.IssueAction(u, token.ActionVerifyEmail, token.VerifyEmailTTL)
	if err != nil {
		return err
	}
	if err := s.users.SetPendingToken(ctx, u.UserID, u.PendingTokenID); err != nil {
		return err
	}
	if u.IsTestAccount {
		return nil
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", s.appURL, tok)
	body := fmt.Sprintf("Hello %s,\n\nConfirm your %s email address using the link below. It expires in 1 hour.\n\n%s\n", u.FirstName, s.appName, link)
	return s.mailer.SendEmail(u.Email, "Verify your "+s.appName+" email", body)
}

// ConfirmEmail consumes a verification token and marks the address verified.
func (s *service) ConfirmEmail(ctx context.Context, tokenStr string) error {
	claims, err := s.tokens.ParseAction(tokenStr, token.ActionVerifyEmail)
	if err != nil {
		return err
	}

	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		return err
	}

	if err := s.users.ConsumePendingToken(ctx, u.UserID, claims.ID); err != nil {
		return err
	}
	return s.users.Update(ctx, u.UserID, map[string]interface{}{"email_verified": true})
}

// SetMFAMethod switches the required second factor. The user must hold the
// channel the method delivers over before it can be required.
func (s *service) SetMFAMethod(ctx context.Context, userID string, method domain.MFAMethod) (*domain.User, error) {
	switch method {
	case domain.MFANone, domain.MFASMS, domain.MFAEmail, domain.MFATOTP:
	default:
		return nil, domain.ErrBadRequest
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.CanUseMFAMethod(method) {
		return nil, domain.ErrConflict
	}

	u.MFAMethod = method
	if err := s.users.Update(ctx, u.UserID, map[string]interface{}{"mfa_method": string(method)}); err != nil {
		return nil, err
	}
	return u, nil
}

// Logout revokes the current session, or every session when all is set.
// Revocation is immediate: the jti leaves the session list, so the token
// fails CheckSession on its next use even though its signature stays valid.
func (s *service) Logout(ctx context.Context, u *domain.User, jti string, all bool) error {
	if all {
		u.ClearSessions()
	} else {
		if u.SessionByJTI(jti) == nil {
			return domain.ErrBadToken
		}
		u.RemoveSession(jti)
	}
	return s.users.SaveSessions(ctx, u.UserID, u.Sessions)
}

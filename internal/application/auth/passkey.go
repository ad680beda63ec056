package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/go-account-api/internal/domain"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// PasskeyProvider runs the WebAuthn ceremonies.
type PasskeyProvider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	FinishRegistration(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	FinishLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// PasskeyParser decodes raw browser responses into the protocol types. Split
// out so tests can inject parsed fixtures without building full attestation
// payloads.
type PasskeyParser interface {
	ParseCreation(body []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseAssertion(body []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultPasskeyParser struct{}

func (defaultPasskeyParser) ParseCreation(body []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(body)
}

func (defaultPasskeyParser) ParseAssertion(body []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(body)
}

// passkeyUser adapts a user record to the relying-party interface.
type passkeyUser struct {
	u *domain.User
}

func (p passkeyUser) WebAuthnID() []byte {
	return []byte(p.u.UserID)
}

func (p passkeyUser) WebAuthnName() string {
	return p.u.Email
}

func (p passkeyUser) WebAuthnDisplayName() string {
	return p.u.FirstName + " " + p.u.LastName
}

func (p passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	var creds []webauthn.Credential
	for _, a := range p.u.Passkeys() {
		credID, err := base64.RawURLEncoding.DecodeString(a.CredentialID)
		if err != nil {
			continue
		}
		var transports []protocol.AuthenticatorTransport
		for _, t := range a.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		creds = append(creds, webauthn.Credential{
			ID:        credID,
			PublicKey: a.PublicKey,
			Transport: transports,
			Authenticator: webauthn.Authenticator{
				SignCount: a.SignCount,
			},
		})
	}
	return creds
}

// BeginPasskeyRegistration opens a registration ceremony for a signed-in
// user. The ceremony state rides back to the client inside a signed token
// instead of server-side storage.
func (s *service) BeginPasskeyRegistration(ctx context.Context, userID string) (*PasskeyChallenge, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	creation, session, err := s.passkeys.BeginRegistration(passkeyUser{u})
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	tok, err := s.tokens.IssuePasskeySession(u.UserID, data)
	if err != nil {
		return nil, err
	}
	return &PasskeyChallenge{Options: creation, Token: tok}, nil
}

// FinishPasskeyRegistration validates the attestation response and stores the
// new credential.
func (s *service) FinishPasskeyRegistration(ctx context.Context, userID, tokenStr string, response []byte, name string) error {
	claims, err := s.tokens.ParsePasskeySession(tokenStr)
	if err != nil {
		return err
	}
	if claims.Subject != userID {
		return domain.ErrBadToken
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(claims.Data, &session); err != nil {
		return domain.ErrBadToken
	}

	parsed, err := s.parser.ParseCreation(response)
	if err != nil {
		return domain.ErrBadRequest
	}

	cred, err := s.passkeys.FinishRegistration(passkeyUser{u}, session, parsed)
	if err != nil {
		return domain.ErrBadCredentials
	}

	credID := base64.RawURLEncoding.EncodeToString(cred.ID)
	if u.PasskeyByCredentialID(credID) != nil {
		return domain.ErrConflict
	}

	var transports []string
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	now := s.clock.Now()
	u.UpsertAuthenticator(domain.Authenticator{
		Kind:         domain.KindPasskey,
		CredentialID: credID,
		PublicKey:    cred.PublicKey,
		SignCount:    cred.Authenticator.SignCount,
		Transports:   transports,
		Name:         name,
		CreatedAt:    now,
	})
	return s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators)
}

// BeginPasskeyLogin opens an authentication ceremony for the account behind
// the given email.
func (s *service) BeginPasskeyLogin(ctx context.Context, email string) (*PasskeyChallenge, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBadCredentials
		}
		return nil, err
	}
	if len(u.Passkeys()) == 0 {
		return nil, domain.ErrNoSuchAuthenticator
	}

	assertion, session, err := s.passkeys.BeginLogin(passkeyUser{u})
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	tok, err := s.tokens.IssuePasskeySession(u.UserID, data)
	if err != nil {
		return nil, err
	}
	return &PasskeyChallenge{Options: assertion, Token: tok}, nil
}

// FinishPasskeyLogin validates the assertion and signs the user in. The
// signature counter must move strictly forward relative to the stored value;
// a stalled or regressed counter marks a cloned credential, except that many
// platform authenticators never count at all and legitimately report zero
// forever.
func (s *service) FinishPasskeyLogin(ctx context.Context, tokenStr string, response []byte, meta domain.ClientMeta) (*LoginResult, error) {
	claims, err := s.tokens.ParsePasskeySession(tokenStr)
	if err != nil {
		return nil, err
	}

	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	if err := s.checkLoginAttempts(u); err != nil {
		return nil, err
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(claims.Data, &session); err != nil {
		return nil, domain.ErrBadToken
	}

	parsed, err := s.parser.ParseAssertion(response)
	if err != nil {
		return nil, domain.ErrBadRequest
	}

	cred, err := s.passkeys.FinishLogin(passkeyUser{u}, session, parsed)
	if err != nil {
		s.recordFailure(ctx, u)
		return nil, domain.ErrBadCredentials
	}

	credID := base64.RawURLEncoding.EncodeToString(cred.ID)
	stored := u.PasskeyByCredentialID(credID)
	if stored == nil {
		return nil, domain.ErrNoSuchAuthenticator
	}

	newCount := cred.Authenticator.SignCount
	if newCount <= stored.SignCount && !(newCount == 0 && stored.SignCount == 0) {
		s.recordFailure(ctx, u)
		return nil, domain.ErrReplayDetected
	}
	stored.SignCount = newCount
	now := s.clock.Now()
	stored.LastUsedAt = &now

	return s.finishPrimary(ctx, u, domain.KindPasskey, meta)
}

// DisablePasskeys removes every passkey on the account.
func (s *service) DisablePasskeys(ctx context.Context, userID string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if len(u.Passkeys()) == 0 {
		return domain.ErrNoSuchAuthenticator
	}
	if countPrimaries(u)-len(u.Passkeys()) < 1 {
		return domain.ErrConflict
	}

	u.RemoveAuthenticator(domain.KindPasskey)
	return s.users.SaveAuthenticators(ctx, u.UserID, u.Authenticators)
}

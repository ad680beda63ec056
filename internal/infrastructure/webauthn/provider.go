// Package webauthnx wraps the go-webauthn relying party behind the narrow
// surface the auth service needs. The cryptographic ceremony itself is the
// library's job; this module only orchestrates around it.
package webauthnx

import (
	"fmt"

	"github.com/go-account-api/internal/config"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Provider executes WebAuthn registration and authentication ceremonies.
type Provider struct {
	wa *webauthn.WebAuthn
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.WebAuthnRPID,
		RPDisplayName: cfg.AppName,
		RPOrigins:     []string{cfg.WebAuthnOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}
	return &Provider{wa: wa}, nil
}

func (p *Provider) BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	return p.wa.BeginRegistration(user, opts...)
}

func (p *Provider) FinishRegistration(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	return p.wa.CreateCredential(user, session, response)
}

func (p *Provider) BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return p.wa.BeginLogin(user, opts...)
}

func (p *Provider) FinishLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	return p.wa.ValidateLogin(user, session, response)
}

package domain

import "time"

// AuthenticatorKind is the closed set of credential kinds a user can hold.
type AuthenticatorKind string

const (
	KindPassword AuthenticatorKind = "password"
	KindOTP      AuthenticatorKind = "otp"
	KindTOTP     AuthenticatorKind = "totp"
	KindGoogle   AuthenticatorKind = "google"
	KindApple    AuthenticatorKind = "apple"
	KindPasskey  AuthenticatorKind = "passkey"
)

// MultiInstance reports whether a user may hold more than one authenticator
// of this kind. Everything except passkeys is single-instance: creating a new
// one replaces the prior one.
func (k AuthenticatorKind) MultiInstance() bool {
	return k == KindPasskey
}

// Primary reports whether this kind can stand alone as a first login factor.
func (k AuthenticatorKind) Primary() bool {
	switch k {
	case KindPassword, KindGoogle, KindApple, KindPasskey:
		return true
	}
	return false
}

// Authenticator is one credential registered to a user. Kind selects which of
// the payload fields are meaningful; the rest stay at their zero value and
// are omitted from the stored document.
type Authenticator struct {
	Kind AuthenticatorKind `json:"kind" dynamodbav:"kind"`

	// password
	Hash string `json:"-" dynamodbav:"hash,omitempty"`

	// otp
	Code      string     `json:"-" dynamodbav:"code,omitempty"`
	ExpiresAt *time.Time `json:"-" dynamodbav:"expires_at,omitempty"`
	MFAStep   bool       `json:"-" dynamodbav:"mfa_step,omitempty"`

	// totp
	Secret string `json:"-" dynamodbav:"secret,omitempty"`

	// google / apple
	VerifiedAt *time.Time `json:"verified_at,omitempty" dynamodbav:"verified_at,omitempty"`

	// passkey
	CredentialID string   `json:"credential_id,omitempty" dynamodbav:"credential_id,omitempty"`
	PublicKey    []byte   `json:"-" dynamodbav:"public_key,omitempty"`
	SignCount    uint32   `json:"-" dynamodbav:"sign_count,omitempty"`
	Transports   []string `json:"-" dynamodbav:"transports,omitempty"`
	Name         string   `json:"name,omitempty" dynamodbav:"name,omitempty"`

	CreatedAt  time.Time  `json:"created" dynamodbav:"created_at"`
	LastUsedAt *time.Time `json:"last_used,omitempty" dynamodbav:"last_used_at,omitempty"`
}

// Authenticator returns the first authenticator of the given kind, or nil.
func (u *User) Authenticator(kind AuthenticatorKind) *Authenticator {
	for i := range u.Authenticators {
		if u.Authenticators[i].Kind == kind {
			return &u.Authenticators[i]
		}
	}
	return nil
}

// RequireAuthenticator returns the authenticator of the given kind or
// ErrNoSuchAuthenticator.
func (u *User) RequireAuthenticator(kind AuthenticatorKind) (*Authenticator, error) {
	if a := u.Authenticator(kind); a != nil {
		return a, nil
	}
	return nil, ErrNoSuchAuthenticator
}

// UpsertAuthenticator adds an authenticator to the user. For single-instance
// kinds any existing entry of the same kind is replaced in place, so the
// at-most-one-per-kind invariant holds without a separate cleanup pass.
func (u *User) UpsertAuthenticator(a Authenticator) {
	if !a.Kind.MultiInstance() {
		for i := range u.Authenticators {
			if u.Authenticators[i].Kind == a.Kind {
				u.Authenticators[i] = a
				return
			}
		}
	}
	u.Authenticators = append(u.Authenticators, a)
}

// RemoveAuthenticator removes all authenticators of the given kind.
func (u *User) RemoveAuthenticator(kind AuthenticatorKind) {
	kept := u.Authenticators[:0]
	for _, a := range u.Authenticators {
		if a.Kind != kind {
			kept = append(kept, a)
		}
	}
	u.Authenticators = kept
}

// PasskeyByCredentialID returns the passkey authenticator holding the given
// credential id, or nil.
func (u *User) PasskeyByCredentialID(credentialID string) *Authenticator {
	for i := range u.Authenticators {
		a := &u.Authenticators[i]
		if a.Kind == KindPasskey && a.CredentialID == credentialID {
			return a
		}
	}
	return nil
}

// Passkeys returns all passkey authenticators.
func (u *User) Passkeys() []*Authenticator {
	var out []*Authenticator
	for i := range u.Authenticators {
		if u.Authenticators[i].Kind == KindPasskey {
			out = append(out, &u.Authenticators[i])
		}
	}
	return out
}

// LastPrimaryVerifiedAt returns the most recent time any primary-capable
// authenticator was used, or nil if none ever was.
func (u *User) LastPrimaryVerifiedAt() *time.Time {
	var latest *time.Time
	for i := range u.Authenticators {
		a := &u.Authenticators[i]
		if !a.Kind.Primary() || a.LastUsedAt == nil {
			continue
		}
		if latest == nil || a.LastUsedAt.After(*latest) {
			latest = a.LastUsedAt
		}
	}
	return latest
}

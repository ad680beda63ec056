package apple

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-account-api/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const (
	jwksURL = "https://appleid.apple.com/auth/keys"
	issuer  = "https://appleid.apple.com"
)

// Verifier verifies Sign in with Apple identity tokens against Apple's JWKS.
type Verifier struct {
	clientID string
	keys     keyfunc.Keyfunc
}

// NewVerifier builds a Verifier that refreshes Apple's signing keys in the
// background.
func NewVerifier(ctx context.Context, clientID string) (*Verifier, error) {
	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load apple jwks: %w", err)
	}
	return &Verifier{clientID: clientID, keys: keys}, nil
}

// Verify validates the Apple identity token and returns the asserted
// identity. Apple does not assert names in the token, so only the email
// fields are populated. Returns a domain.ErrBadToken-wrapped error if the
// token is invalid.
func (v *Verifier) Verify(ctx context.Context, token string) (*domain.FederatedIdentity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, v.keys.Keyfunc,
		jwt.WithIssuer(issuer),
		jwt.WithAudience(v.clientID),
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid apple token: %w", domain.ErrBadToken)
	}

	email, _ := claims["email"].(string)
	return &domain.FederatedIdentity{
		Email:         email,
		EmailVerified: emailVerified(claims["email_verified"]),
	}, nil
}

// Apple has historically sent email_verified as both a bool and the strings
// "true"/"false".
func emailVerified(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

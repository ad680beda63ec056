package domain

// FederatedIdentity holds the claims a federated OAuth provider asserted
// about the person signing in. Names may be empty; Apple does not assert
// them in the identity token.
type FederatedIdentity struct {
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
}

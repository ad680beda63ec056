package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs are lexicographically sortable by
// creation time and safe as DynamoDB partition keys.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewTokenID generates a jti. Kept separate from New so the token id scheme
// can diverge from record ids without touching call sites.
func NewTokenID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

package domain

import "time"

// ClientMeta is the request-level context recorded on a session at issuance.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// SessionToken is one live session in the user's session list. The list is
// the sole revocation mechanism: a bearer token is only valid while its jti
// appears here. Deleting an entry revokes that session; clearing the list
// logs out everywhere.
type SessionToken struct {
	JTI        string    `json:"jti" dynamodbav:"jti"`
	IssuedAt   time.Time `json:"issued" dynamodbav:"issued_at"`
	ExpiresAt  time.Time `json:"expires" dynamodbav:"expires_at"`
	LastUsedAt time.Time `json:"last_used" dynamodbav:"last_used_at"`
	IP         string    `json:"ip,omitempty" dynamodbav:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty" dynamodbav:"user_agent,omitempty"`
}

// SessionByJTI returns the session holding the given jti, or nil.
func (u *User) SessionByJTI(jti string) *SessionToken {
	for i := range u.Sessions {
		if u.Sessions[i].JTI == jti {
			return &u.Sessions[i]
		}
	}
	return nil
}

// AddSession appends a session, displacing any entry that already carries
// the same jti so jti values stay unique within the list.
func (u *User) AddSession(s SessionToken) {
	u.RemoveSession(s.JTI)
	u.Sessions = append(u.Sessions, s)
}

// RemoveSession removes the session with the given jti, if present.
func (u *User) RemoveSession(jti string) {
	kept := u.Sessions[:0]
	for _, s := range u.Sessions {
		if s.JTI != jti {
			kept = append(kept, s)
		}
	}
	u.Sessions = kept
}

// ClearSessions logs the user out everywhere.
func (u *User) ClearSessions() {
	u.Sessions = nil
}

// PruneExpiredSessions drops sessions whose expiry has passed.
func (u *User) PruneExpiredSessions(now time.Time) {
	kept := u.Sessions[:0]
	for _, s := range u.Sessions {
		if s.ExpiresAt.After(now) {
			kept = append(kept, s)
		}
	}
	u.Sessions = kept
}

package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// MFAMethod is the secondary factor a user requires after a primary login.
type MFAMethod string

const (
	MFANone  MFAMethod = "none"
	MFASMS   MFAMethod = "sms"
	MFAEmail MFAMethod = "email"
	MFATOTP  MFAMethod = "totp"
)

// User is the aggregate root. Authenticators and sessions are embedded so
// that throttle counters, the pending-token slot and the session list can all
// be updated with single-document conditional writes.
type User struct {
	UserID    string  `json:"id" dynamodbav:"user_id"`
	Email     string  `json:"email" dynamodbav:"email"`
	Phone     *string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	FirstName string  `json:"first_name" dynamodbav:"first_name"`
	LastName  string  `json:"last_name" dynamodbav:"last_name"`
	Role      string  `json:"role" dynamodbav:"role"`

	EmailVerified bool `json:"email_verified" dynamodbav:"email_verified"`
	PhoneVerified bool `json:"phone_verified" dynamodbav:"phone_verified"`

	MFAMethod MFAMethod `json:"mfa_method" dynamodbav:"mfa_method"`

	LoginAttempts      int        `json:"-" dynamodbav:"login_attempts"`
	LastLoginAttemptAt *time.Time `json:"-" dynamodbav:"last_login_attempt_at,omitempty"`

	// PendingTokenID holds the jti of the single outstanding action token
	// (password reset, invite, email verification). Empty means none.
	PendingTokenID string `json:"-" dynamodbav:"pending_token_id,omitempty"`

	// IsTestAccount yields a fixed OTP code and suppresses outbound delivery
	// so end-to-end suites can log in deterministically.
	IsTestAccount bool `json:"-" dynamodbav:"is_test_account,omitempty"`

	Authenticators []Authenticator `json:"-" dynamodbav:"authenticators,omitempty"`
	Sessions       []SessionToken  `json:"-" dynamodbav:"sessions,omitempty"`

	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}

// CanUseMFAMethod reports whether the user has the channel a given MFA
// method delivers over (a phone for sms, an email for email, an enrolled
// authenticator for totp).
func (u *User) CanUseMFAMethod(m MFAMethod) bool {
	switch m {
	case MFANone:
		return true
	case MFASMS:
		return u.Phone != nil && *u.Phone != ""
	case MFAEmail:
		return u.Email != ""
	case MFATOTP:
		return u.Authenticator(KindTOTP) != nil
	}
	return false
}

package auth

import "github.com/go-account-api/internal/domain"

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,e164"`
}

type PasswordLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SendOTPRequest struct {
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,e164"`
	// Kind selects the delivery shape: a short code to type back, or a
	// clickable link embedding the code.
	Kind domain.ChallengeKind `json:"kind,omitempty"`
}

type OTPLoginRequest struct {
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,e164"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type TOTPLoginRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type InviteRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Role      string `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
}

type AcceptInviteRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// TOTPSetup is the enrollment material returned before the factor is armed.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"uri,omitempty"`
}

// PasskeyChallenge carries the ceremony options for the browser plus the
// signed token that must accompany the finishing call.
type PasskeyChallenge struct {
	Options interface{} `json:"options"`
	Token   string      `json:"token"`
}

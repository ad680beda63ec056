package domain

import "time"

// ChallengeKind says how the client completes the challenge: by submitting a
// code, or by following a link that embeds it.
type ChallengeKind string

const (
	ChallengeCode ChallengeKind = "code"
	ChallengeLink ChallengeKind = "link"
)

// ChallengeChannel says where the secondary proof comes from.
type ChallengeChannel string

const (
	ChannelSMS           ChallengeChannel = "sms"
	ChannelEmail         ChallengeChannel = "email"
	ChannelAuthenticator ChallengeChannel = "authenticator"
)

// Challenge is the client-facing description of the secondary proof required
// to finish logging in. It is derived state: the materialized OTP or TOTP
// authenticator on the user record is the durable backing.
type Challenge struct {
	Kind    ChallengeKind    `json:"kind"`
	Channel ChallengeChannel `json:"channel"`
	// Phone or Email identifies the delivery target, masked for display.
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires,omitempty"`
}

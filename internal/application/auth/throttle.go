package auth

import (
	"time"

	"github.com/go-account-api/internal/domain"
)

// Failure thresholds for the escalating login throttle.
const (
	throttleSoftLimit = 5
	throttleHardLimit = 10
	throttleSoftWait  = time.Minute
	throttleHardWait  = time.Hour
)

// checkLoginAttempts gates a login attempt on the user's failure history.
// Below the soft limit attempts pass freely. From the soft limit a quiet
// minute since the last failure is required, and from the hard limit a quiet
// hour. Returns ThrottledError with the remaining wait when the attempt must
// be refused.
func (s *service) checkLoginAttempts(u *domain.User) error {
	if u.LoginAttempts < throttleSoftLimit || u.LastLoginAttemptAt == nil {
		return nil
	}

	wait := throttleSoftWait
	if u.LoginAttempts >= throttleHardLimit {
		wait = throttleHardWait
	}

	elapsed := s.clock.Now().Sub(*u.LastLoginAttemptAt)
	if elapsed >= wait {
		return nil
	}
	return &domain.ThrottledError{RetryAfter: wait - elapsed}
}

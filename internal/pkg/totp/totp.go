// Package totp implements RFC 6238 time-based one-time passwords with the
// parameters authenticator apps expect: SHA-1, 6 digits, 30-second steps.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	secretBytes = 20
	period      = 30
	digits      = 6
)

// Skew is the accepted tolerance window in time steps on either side of now,
// absorbing client/server clock drift of roughly a minute.
const Skew = 2

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a new random shared secret, base32-encoded.
func GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return encoding.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI encoded into enrollment QR codes.
func ProvisionURI(secret, issuer, account string) string {
	label := url.PathEscape(issuer + ":" + account)
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", fmt.Sprint(period))
	v.Set("digits", fmt.Sprint(digits))
	v.Set("algorithm", "SHA1")
	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify checks code against the shared secret at the given time, accepting
// codes from ±Skew steps.
func Verify(secret, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != digits || !numeric(trimmed) {
		return false, nil
	}
	key, err := encoding.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return false, fmt.Errorf("decode totp secret: %w", err)
	}
	if len(key) == 0 {
		return false, errors.New("empty totp secret")
	}

	base := now.Unix() / period
	for step := int64(-Skew); step <= Skew; step++ {
		counter := base + step
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotp(key, counter)), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// Code returns the code for the secret at the given time. Used by tests and
// the enrollment confirmation step.
func Code(secret string, now time.Time) (string, error) {
	key, err := encoding.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("decode totp secret: %w", err)
	}
	return hotp(key, now.Unix()/period), nil
}

func hotp(key []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%06d", bin%1000000)
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

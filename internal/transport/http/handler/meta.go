package handler

import (
	"net"
	"net/http"

	"github.com/go-account-api/internal/domain"
)

// clientMeta captures where a login request came from, recorded on the
// session entry it creates.
func clientMeta(r *http.Request) domain.ClientMeta {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = fwd
	}
	return domain.ClientMeta{IP: ip, UserAgent: r.UserAgent()}
}

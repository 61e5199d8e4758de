// Package authsession builds bearer Authorization headers and holds the
// caller-owned session token.
package authsession

import (
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Session holds zero or one bearer token. It belongs to the caller; clients
// receive the token explicitly on every call and never keep a copy.
type Session struct {
	Token string
}

// Authenticated reports whether a non-empty token is held.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Clear drops the token (logout, or any failed login).
func (s *Session) Clear() {
	s.Token = ""
}

// Header returns {"Authorization": "Bearer <token>"} for a non-empty token,
// or an empty header otherwise. The token is passed through verbatim.
func Header(token string) http.Header {
	h := make(http.Header)
	if token == "" {
		return h
	}
	req := &http.Request{Header: h}
	Apply(req, token)
	return h
}

// Apply sets the bearer header on req when token is non-empty.
func Apply(req *http.Request, token string) {
	if req == nil || token == "" {
		return
	}
	tok := &oauth2.Token{AccessToken: token}
	tok.SetAuthHeader(req)
}

// Describe renders the token state for display without revealing it.
func Describe(token string) string {
	if strings.TrimSpace(token) == "" {
		return "none"
	}
	return "present"
}

package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"multiverse/sim/internal/auth"
)

type viewerAuthenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type allowAllAuthenticator struct{}

func (allowAllAuthenticator) Authenticate(*http.Request) (string, error) {
	return "", nil
}

type hmacViewerAuthenticator struct {
	verifier *auth.HMACTokenVerifier
}

func newHMACViewerAuthenticator(secret string) (viewerAuthenticator, error) {
	verifier, err := auth.NewHMACTokenVerifier(secret, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &hmacViewerAuthenticator{verifier: verifier}, nil
}

// Authenticate validates the incoming token and returns the logical viewer identifier.
func (a *hmacViewerAuthenticator) Authenticate(r *http.Request) (string, error) {
	if a == nil || a.verifier == nil {
		return "", errors.New("verifier not configured")
	}
	token := viewerToken(r)
	if token == "" {
		return "", errors.New("missing auth token")
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// viewerToken reads the auth_token query parameter, falling back to the
// X-Auth-Token header for clients that cannot set query strings.
func viewerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("auth_token")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Auth-Token"))
}

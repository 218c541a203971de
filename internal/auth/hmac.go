// Package auth verifies the compact HS256 tokens viewers present when the
// host runs with a shared WebSocket secret.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed structure and signature mismatches.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals the expiry lies in the past beyond the leeway.
	ErrExpiredToken = errors.New("token expired")
)

// TokenClaims is the subset of the JWT payload the host cares about.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Audience  string
}

// HMACTokenVerifier checks HS256 compact tokens against a shared secret.
type HMACTokenVerifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewHMACTokenVerifier builds a verifier; leeway absorbs clock skew between
// the token issuer and this host.
func NewHMACTokenVerifier(secret string, leeway time.Duration) (*HMACTokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &HMACTokenVerifier{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// WithClock overrides the verifier clock for deterministic tests.
func (v *HMACTokenVerifier) WithClock(clock func() time.Time) {
	if clock != nil {
		v.now = clock
	}
}

// Verify checks structure, signature, and expiry, returning the claims.
func (v *HMACTokenVerifier) Verify(token string) (*TokenClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("verifier not initialised")
	}
	header, payload, err := v.splitAndAuthenticate(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}
	return v.claimsFromPayload(payload)
}

// splitAndAuthenticate validates the three-segment layout and the signature
// before any claim is trusted.
func (v *HMACTokenVerifier) splitAndAuthenticate(token string) (header, payload []byte, err error) {
	if token == "" {
		return nil, nil, ErrInvalidToken
	}
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return nil, nil, ErrInvalidToken
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(segments[0] + "." + segments[1]))
	presented, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil || !hmac.Equal(presented, mac.Sum(nil)) {
		return nil, nil, ErrInvalidToken
	}

	if header, err = base64.RawURLEncoding.DecodeString(segments[0]); err != nil {
		return nil, nil, ErrInvalidToken
	}
	if payload, err = base64.RawURLEncoding.DecodeString(segments[1]); err != nil {
		return nil, nil, ErrInvalidToken
	}
	return header, payload, nil
}

func checkHeader(raw []byte) error {
	var header struct {
		Algorithm string `json:"alg"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}
	return nil
}

func (v *HMACTokenVerifier) claimsFromPayload(raw []byte) (*TokenClaims, error) {
	var body struct {
		Subject  string `json:"sub"`
		Expires  int64  `json:"exp"`
		Issued   int64  `json:"iat"`
		Audience string `json:"aud"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, ErrInvalidToken
	}
	//1.- A token without a subject or expiry cannot identify a viewer.
	if strings.TrimSpace(body.Subject) == "" || body.Expires <= 0 {
		return nil, ErrInvalidToken
	}
	expiresAt := time.Unix(body.Expires, 0)
	if expiresAt.Add(v.leeway).Before(v.now()) {
		return nil, ErrExpiredToken
	}
	return &TokenClaims{
		Subject:   body.Subject,
		ExpiresAt: expiresAt,
		IssuedAt:  time.Unix(body.Issued, 0),
		Audience:  body.Audience,
	}, nil
}

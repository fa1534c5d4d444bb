// Package jwtsigner issues the signed session tokens the primary service
// attaches to successful login and registration responses.
package jwtsigner

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer holds an Ed25519 keypair for issuing JWTs.
type Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	KeyID   string
	Issuer  string
}

// NewFromBase64 creates a signer from base64-encoded ed25519 private key bytes.
// If privB64 is empty, it generates an ephemeral key (good for local dev).
func NewFromBase64(privB64, kid, iss string) (*Signer, error) {
	var priv ed25519.PrivateKey
	if privB64 == "" {
		_, priv, _ = ed25519.GenerateKey(rand.Reader)
	} else {
		raw, err := base64.StdEncoding.DecodeString(privB64)
		if err != nil {
			return nil, err
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, errors.New("invalid ed25519 private key size")
		}
		priv = ed25519.PrivateKey(raw)
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{private: priv, public: pub, KeyID: kid, Issuer: iss}, nil
}

// SignSession issues a session token for the given username.
func (s *Signer) SignSession(username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.Issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.KeyID
	return t.SignedString(s.private)
}

// Verify parses a session token and returns its subject.
func (s *Signer) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.public, nil
	}, jwt.WithIssuer(s.Issuer))
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

// PublicJWK renders the public part as JWK for the JWKS endpoint.
func (s *Signer) PublicJWK() map[string]any {
	return map[string]any{
		"kty": "OKP",
		"crv": "Ed25519",
		"alg": "EdDSA",
		"use": "sig",
		"kid": s.KeyID,
		"x":   base64.RawURLEncoding.EncodeToString(s.public),
	}
}

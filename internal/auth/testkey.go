package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Development helpers for exercising the bearer guard locally.
// Production tokens come from the identity provider named in Issuer.

const testKeyBits = 2048

// GenerateTestKey creates an RSA key pair and returns the private key with
// its PEM encoded public half, ready for auth.public_key_file.
func GenerateTestKey() (*rsa.PrivateKey, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, testKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	return key, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// SignTestToken issues an RS256 token the guard configured with issuer and
// audience will accept until ttl elapses.
func SignTestToken(key *rsa.PrivateKey, subject, issuer, audience string, ttl time.Duration) (string, error) {
	if key == nil {
		return "", errors.New("signing key must not be nil")
	}
	if subject == "" {
		return "", errors.New("subject must not be empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

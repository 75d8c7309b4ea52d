package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

/*
BEARER GUARD

Off unless a public key is configured. When on:
- RS256 only (alg=none and HMAC are rejected by the parser)
- issuer, audience and exp are all mandatory
- the relay never issues tokens
*/

type JWTConfig struct {
	Issuer    string
	Audience  string
	PublicKey *rsa.PublicKey
	Leeway    time.Duration
}

// LoadPublicKey reads a PEM encoded RSA public key.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return key, nil
}

// BearerGuard rejects requests without a valid RS256 bearer token and stores
// the caller's identity in the request context.
func BearerGuard(cfg JWTConfig) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	)

	keyFunc := func(*jwt.Token) (interface{}, error) {
		if cfg.PublicKey == nil {
			return nil, errors.New("no public key configured")
		}
		return cfg.PublicKey, nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims := jwt.RegisteredClaims{}
			token, err := parser.ParseWithClaims(tokenStr, &claims, keyFunc)
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			if strings.TrimSpace(claims.Subject) == "" {
				http.Error(w, "token subject missing", http.StatusUnauthorized)
				return
			}

			id := &Identity{
				Subject:  claims.Subject,
				Issuer:   claims.Issuer,
				Audience: cfg.Audience,
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/permissions"
)

// Claims carried by operator tokens
type Claims struct {
	Role         string   `json:"role"`
	Capabilities []string `json:"caps,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for p
func IssueToken(secret string, p permissions.Principal, ttl time.Duration) (string, error) {
	caps := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		caps = append(caps, c.String())
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:         p.Role,
		Capabilities: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token and returns its principal
func ParseToken(secret, raw string) (permissions.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return permissions.Principal{}, fmt.Errorf("invalid token: %w", err)
	}

	p := permissions.Principal{Subject: claims.Subject, Role: claims.Role}
	for _, name := range claims.Capabilities {
		// Unknown capability names are ignored so they can never widen access
		if c, ok := permissions.ParseCapability(name); ok {
			p.Capabilities = append(p.Capabilities, c)
		}
	}
	return p, nil
}

// AuthMiddleware attaches the bearer token's principal to the request context.
// Requests without a token continue anonymously; invalid tokens are rejected.
func AuthMiddleware(secret string, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}
			p, err := ParseToken(secret, raw)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					log.Debugf("Expired token presented for %s", r.URL.Path)
				} else {
					log.Warnf("Rejected token for %s: %v", r.URL.Path, err)
				}
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(permissions.WithPrincipal(r.Context(), p)))
		})
	}
}

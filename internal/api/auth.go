package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is the iss claim on tokens minted by IssueToken.
const tokenIssuer = "lanwake"

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("api: invalid token")

// IssueToken mints an HS256 token for subject, valid for ttl.
// A ttl of zero produces a token without expiry.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   tokenIssuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// verifyToken checks the signature, algorithm, issuer and expiry of raw.
func verifyToken(secret, raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// bearerToken extracts the token from the Authorization header, falling
// back to the access_token query parameter for WebSocket handshakes.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if r.URL.Path == "/api/v1/ws" {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// authMiddleware enforces bearer tokens when a JWT secret is configured.
// With no secret every request passes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	secret := s.secCfg.JWT.Secret
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			writeUnauthorized(w, "bearer token required")
			return
		}
		claims, err := verifyToken(secret, raw)
		if err != nil {
			s.logger.Debug("rejected token", "error", err, "request_id", r.Context().Value(ctxKeyRequestID))
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextWithSubject(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/hon-bridge/internal/infrastructure/config"
)

// ScopeCommand allows discovery and sending commands.
const ScopeCommand = "command"

// ErrTokenInvalid is returned by ParseToken for any rejected token.
var ErrTokenInvalid = errors.New("invalid operator token")

// Claims are the claims of an operator token.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// IssueToken signs an operator token for subject, valid for cfg.TokenTTL
// from now.
func IssueToken(cfg config.APIAuthConfig, subject string, now time.Time) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("signing operator token: no secret configured")
	}
	if subject == "" {
		return "", fmt.Errorf("signing operator token: empty subject")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
			ID:        uuid.NewString(),
		},
		Scope: ScopeCommand,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing operator token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies signature, expiry, issuer and scope.
func ParseToken(cfg config.APIAuthConfig, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Scope != ScopeCommand {
		return nil, fmt.Errorf("%w: scope %q", ErrTokenInvalid, claims.Scope)
	}
	return claims, nil
}

// authMiddleware requires a valid operator bearer token. It is a pass-through
// when auth is disabled.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if !s.cfg.Auth.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeUnauthorized(w, "bearer token required")
			return
		}

		claims, err := ParseToken(s.cfg.Auth, raw)
		if err != nil {
			s.logger.Warn("operator token rejected",
				"path", r.URL.Path,
				"request_id", requestID(r.Context()),
				"error", err,
			)
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		s.logger.Debug("operator authenticated", "subject", claims.Subject, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

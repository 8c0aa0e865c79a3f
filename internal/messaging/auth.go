package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by bearer tokens. Issuing them belongs to the auth service;
// this package only verifies.
type Claims struct {
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type viewerKey struct{}

func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

func ViewerFrom(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(Viewer)
	return v, ok
}

// SignToken mints an HS256 token. Used by tests and the dev CLI.
func SignToken(secret string, v Viewer, ttl time.Duration) (string, error) {
	if !v.Role.Valid() {
		return "", ErrBadRole
	}
	now := time.Now()
	claims := Claims{
		Role: v.Role,
		Name: v.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   v.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseToken(secret, raw string) (Viewer, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Viewer{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return Viewer{}, errors.New("token has no subject")
	}
	if !claims.Role.Valid() {
		return Viewer{}, ErrBadRole
	}
	return Viewer{ID: claims.Subject, Role: claims.Role, Name: claims.Name}, nil
}

// PeekViewer reads the identity out of a token without checking its
// signature. Clients use it to learn who they are; the server always verifies.
func PeekViewer(raw string) (Viewer, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return Viewer{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return Viewer{}, errors.New("token has no subject")
	}
	if !claims.Role.Valid() {
		return Viewer{}, ErrBadRole
	}
	return Viewer{ID: claims.Subject, Role: claims.Role, Name: claims.Name}, nil
}

// AuthMiddleware resolves the bearer token into a Viewer on the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("missing bearer token"))
				return
			}
			viewer, err := ParseToken(secret, strings.TrimSpace(raw))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
		})
	}
}

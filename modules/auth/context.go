package auth

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/Deepreo/zeit/errors"
)

// Admin API permissions.
const (
	PermissionSchedulesRead   = "schedules.read"
	PermissionSchedulesCancel = "schedules.cancel"
)

// AuthContext, doğrulanmış token'ın taşıdığı kimlik ve yetki bilgileri
type AuthContext struct {
	Subject     string    `json:"subject"`
	Permissions []string  `json:"permissions"`
	TokenID     string    `json:"token_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type contextKey string

const AuthContextKey contextKey = "auth_context"

var (
	ErrAuthContextNotFound = errors.AuthError(errors.New("auth context not found"))
	ErrMissingToken        = errors.AuthError(errors.New("missing bearer token"))
	ErrInvalidToken        = errors.AuthError(errors.New("invalid token"))
	ErrPermissionDenied    = errors.PermissionError(errors.New("permission denied"))
)

func (ac *AuthContext) HasPermission(permission string) bool {
	return slices.Contains(ac.Permissions, permission)
}

func (ac *AuthContext) HasAnyPermission(permissions ...string) bool {
	for _, p := range permissions {
		if ac.HasPermission(p) {
			return true
		}
	}
	return false
}

// RequireAnyPermission, en az bir permission yoksa hata döner. Boş liste her zaman geçer.
func (ac *AuthContext) RequireAnyPermission(permissions ...string) error {
	if len(permissions) == 0 || ac.HasAnyPermission(permissions...) {
		return nil
	}
	return ErrPermissionDenied
}

// WithAuthContext, context'e AuthContext ekler
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, authCtx)
}

// GetAuthContext, context'ten AuthContext'i çıkarır
func GetAuthContext(ctx context.Context) (*AuthContext, error) {
	authCtx, ok := ctx.Value(AuthContextKey).(*AuthContext)
	if !ok || authCtx == nil {
		return nil, ErrAuthContextNotFound
	}
	return authCtx, nil
}

// ExtractTokenFromBearer, "Bearer token" formatından token'ı çıkarır
func ExtractTokenFromBearer(bearerToken string) string {
	const prefix = "Bearer "
	if len(bearerToken) > len(prefix) && strings.EqualFold(bearerToken[:len(prefix)], prefix) {
		return strings.TrimSpace(bearerToken[len(prefix):])
	}
	return ""
}

func CreateBearerToken(token string) string {
	return "Bearer " + token
}

package auth

import (
	"github.com/gofiber/fiber/v2"
	"go.elastic.co/apm/v2"
)

// APM Span names
const (
	SpanAuthTokenValidation = "auth.token.validation"
	SpanAuthPermissionCheck = "auth.permission.check"
)

// TokenValidator, bearer token'ı AuthContext'e çevirir
type TokenValidator interface {
	Validate(token string) (*AuthContext, error)
}

// Guard, Authorization header'ındaki bearer token'ı doğrular ve AuthContext'i
// request'in user context'ine ekler.
func Guard(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractTokenFromBearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return ErrMissingToken
		}

		ctx := c.UserContext()
		span, ctx := apm.StartSpan(ctx, SpanAuthTokenValidation, "auth.token")
		authCtx, err := validator.Validate(token)
		span.End()
		if err != nil {
			return err
		}

		c.SetUserContext(WithAuthContext(ctx, authCtx))
		return c.Next()
	}
}

// RequirePermission, Guard'dan sonra çalışır ve permission'lardan en az birini ister.
func RequirePermission(permissions ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		span, _ := apm.StartSpan(ctx, SpanAuthPermissionCheck, "auth.permissions")
		authCtx, err := GetAuthContext(ctx)
		if err == nil {
			err = authCtx.RequireAnyPermission(permissions...)
		}
		span.End()
		if err != nil {
			return err
		}
		return c.Next()
	}
}

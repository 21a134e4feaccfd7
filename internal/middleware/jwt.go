package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the fiber.Locals key holding the authenticated owner id.
const UserIDKey = "user_id"

// TokenVerifier resolves an access token to its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// JWTAuth returns a middleware that validates bearer access tokens.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		sub, err := verifier.Verify(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(UserIDKey, sub)
		return c.Next()
	}
}

// UserID returns the owner id set by JWTAuth.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(UserIDKey).(string)
	return uid
}

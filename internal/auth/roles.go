package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/conductor-oer/support-service/pkg/util/errorutil"
)

// RequireStaff ensures the principal holds a staff role.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.IsStaff() {
			return apperrors.NewForbidden("staff role required")
		}
		return c.Next()
	}
}

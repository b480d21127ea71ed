package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campuscare/counseling-service/internal/domain"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.User == nil {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.User.Role]; !exists {
			return apperrors.NewNotAuthorized("insufficient role")
		}
		return c.Next()
	}
}

// RequireCounselor admits counselors, peer counselors and admins.
func RequireCounselor() fiber.Handler {
	return RequireRole(domain.RoleCounselor, domain.RolePeerCounselor, domain.RoleAdmin)
}

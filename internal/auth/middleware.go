package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/conductor-oer/support-service/internal/domain"
	apperrors "github.com/conductor-oer/support-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller. Identity data comes from
// the token claims; this service keeps no account records of its own.
type Principal struct {
	SubjectType domain.SubjectType
	UUID        string
	Role        *domain.StaffRole
	FirstName   string
}

// IsStaff reports whether the principal may perform staff actions.
func (p *Principal) IsStaff() bool {
	return p != nil && p.SubjectType == domain.SubjectTypeStaff && p.Role != nil
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.principalFromHeader(c)
	if err != nil {
		return err
	}
	if principal == nil {
		return apperrors.NewUnauthorized("missing authorization header")
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// HandleOptional parses a bearer token when present but lets anonymous
// callers through. Guest ticket creation and access-key reads rely on it.
func (m *AuthMiddleware) HandleOptional(c *fiber.Ctx) error {
	principal, err := m.principalFromHeader(c)
	if err != nil {
		return err
	}
	if principal != nil {
		c.Locals(principalKey, principal)
	}
	return c.Next()
}

func (m *AuthMiddleware) principalFromHeader(c *fiber.Ctx) (*Principal, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}

	switch claims.Subject {
	case domain.SubjectTypeUser, domain.SubjectTypeStaff:
	default:
		return nil, apperrors.NewUnauthorized("unknown subject")
	}

	return &Principal{
		SubjectType: claims.Subject,
		UUID:        claims.SubjectUUID,
		Role:        claims.Role,
		FirstName:   claims.FirstName,
	}, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
